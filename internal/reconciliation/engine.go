// Package reconciliation implements the matching engine that partitions a
// bank statement and a book of record into matched pairs, bank-only items,
// and book-only items.
//
// The engine is a deterministic function of its inputs: transactions are
// never mutated, strategies run in a fixed priority order (exact,
// tolerance, fuzzy), and every accepted pairing or classification appends
// one audit-trail entry. Re-running on identical inputs and options yields
// an identical result.
package reconciliation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pandawa-stack/ai-bank-recon/pkg/models"
)

// Engine runs reconciliations. It holds no per-run state; concurrent runs
// over disjoint inputs need no coordination.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a reconciliation engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// runContext carries one run's mutable state. The consumed flags inside the
// pools are the only shared mutable state of a run, written exclusively by
// the strategy chain.
type runContext struct {
	opts      Options
	bank      *pool
	book      *pool
	bankIndex *index
	bookIndex *index

	matched []models.MatchedPair
	audit   []models.AuditEntry
	seq     int
}

// emit promotes a candidate pair into the result: both participants are
// consumed and one audit entry is appended. Rejected candidates never reach
// this point and leave no trace.
func (rc *runContext) emit(pair models.MatchedPair, detail string) error {
	if err := rc.bank.consume(pair.BankID); err != nil {
		return err
	}
	if err := rc.book.consume(pair.BookID); err != nil {
		return err
	}

	rc.matched = append(rc.matched, pair)
	rc.seq++
	rc.audit = append(rc.audit, models.AuditEntry{
		Seq:           rc.seq,
		Stage:         models.StageMatch,
		Rule:          string(pair.Strategy),
		BankID:        pair.BankID,
		BookID:        pair.BookID,
		Score:         pair.Score,
		DateDeltaDays: pair.DateDeltaDays,
		AmountDelta:   pair.AmountDelta,
		Detail:        fmt.Sprintf("matched %s to %s: %s", pair.BankID, pair.BookID, detail),
	})
	return nil
}

// Reconcile validates the inputs, runs the strategy chain, tags the
// residues, and assembles the immutable result. The context is only
// checked between strategies; there are no suspension points inside one.
func (e *Engine) Reconcile(ctx context.Context, bank, book []*models.Transaction, opts Options) (*models.ReconciliationResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := validateSide(bank, models.SideBank); err != nil {
		return nil, err
	}
	if err := validateSide(book, models.SideBook); err != nil {
		return nil, err
	}

	rc := &runContext{
		opts: opts,
		bank: newPool(bank),
		book: newPool(book),
	}
	rc.bankIndex = buildIndex(rc.bank)
	rc.bookIndex = buildIndex(rc.book)

	for _, s := range []strategy{exactStrategy{}, toleranceStrategy{}, fuzzyStrategy{}} {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		before := len(rc.matched)
		if err := s.run(rc); err != nil {
			return nil, err
		}
		e.logger.Debug("strategy completed",
			"strategy", s.name(),
			"pairs", len(rc.matched)-before,
			"remaining_bank", len(rc.bank.unconsumed()),
			"remaining_book", len(rc.book.unconsumed()))
	}

	bankOnly := e.tagResidue(rc, rc.bank, models.SideBank)
	bookOnly := e.tagResidue(rc, rc.book, models.SideBook)

	result := buildReport(rc, bankOnly, bookOnly)
	e.logger.Info("reconciliation completed",
		"matched", len(result.Matched),
		"bank_only", len(result.BankOnly),
		"book_only", len(result.BookOnly),
		"difference", result.Summary.Difference)
	return result, nil
}

// tagResidue classifies every transaction the chain left unconsumed,
// appending one audit entry per item.
func (e *Engine) tagResidue(rc *runContext, p *pool, side models.Side) []models.UnmatchedItem {
	tg := &tagger{opts: rc.opts, bankIndex: rc.bankIndex, bookIndex: rc.bookIndex}

	items := make([]models.UnmatchedItem, 0)
	for _, ent := range p.entries {
		if ent.consumed {
			continue
		}
		decision := tg.classify(ent.txn)
		items = append(items, models.UnmatchedItem{
			Transaction:      ent.txn,
			ReasonTag:        decision.tag,
			ReasonConfidence: decision.confidence,
		})

		entry := models.AuditEntry{
			Seq:        rc.seq + 1,
			Stage:      models.StageClassification,
			Rule:       decision.rule,
			Score:      decision.confidence,
			Detail:     fmt.Sprintf("%s-only %s tagged %s: %s", side, ent.txn.ID, decision.tag, decision.detail),
		}
		if side == models.SideBank {
			entry.BankID = ent.txn.ID
		} else {
			entry.BookID = ent.txn.ID
		}
		rc.seq++
		rc.audit = append(rc.audit, entry)
	}
	return items
}

// validateSide checks the input contract for one ledger: non-empty unique
// ids, the right side tag, and a usable date.
func validateSide(txns []*models.Transaction, side models.Side) error {
	seen := make(map[string]bool, len(txns))
	for i, txn := range txns {
		if txn == nil {
			return &ValidationError{Side: side, Field: "transaction", Message: fmt.Sprintf("entry %d is nil", i)}
		}
		if txn.ID == "" {
			return &ValidationError{Side: side, Field: "id", Message: fmt.Sprintf("entry %d has no id", i)}
		}
		if seen[txn.ID] {
			return &ValidationError{Side: side, ID: txn.ID, Field: "id", Message: "duplicate id within side"}
		}
		seen[txn.ID] = true
		if txn.Side != side {
			return &ValidationError{Side: side, ID: txn.ID, Field: "side", Message: fmt.Sprintf("tagged %q, expected %q", txn.Side, side)}
		}
		if txn.Date.IsZero() {
			return &ValidationError{Side: side, ID: txn.ID, Field: "date", Message: "missing date"}
		}
	}
	return nil
}
