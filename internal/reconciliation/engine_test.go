package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pandawa-stack/ai-bank-recon/pkg/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func txn(id string, side models.Side, date string, amount float64, description string) *models.Transaction {
	return &models.Transaction{
		ID:          id,
		Side:        side,
		Date:        day(date),
		Amount:      decimal.NewFromFloat(amount),
		Description: description,
	}
}

func bankTxn(id, date string, amount float64, description string) *models.Transaction {
	return txn(id, models.SideBank, date, amount, description)
}

func bookTxn(id, date string, amount float64, description string) *models.Transaction {
	return txn(id, models.SideBook, date, amount, description)
}

func reconcile(t *testing.T, bank, book []*models.Transaction, opts Options) *models.ReconciliationResult {
	t.Helper()
	result, err := NewEngine(nil).Reconcile(context.Background(), bank, book, opts)
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	return result
}

func TestReconcile_ExactMatch(t *testing.T) {
	bank := []*models.Transaction{bankTxn("b1", "2024-01-05", 100, "payment")}
	book := []*models.Transaction{bookTxn("k1", "2024-01-05", 100, "payment")}

	result := reconcile(t, bank, book, DefaultOptions())

	if len(result.Matched) != 1 {
		t.Fatalf("expected 1 matched pair, got %d", len(result.Matched))
	}
	pair := result.Matched[0]
	if pair.Strategy != models.StrategyExact {
		t.Errorf("expected exact strategy, got %s", pair.Strategy)
	}
	if pair.Score != 1.0 {
		t.Errorf("expected score 1.0, got %f", pair.Score)
	}
	if pair.DateDeltaDays != 0 || !pair.AmountDelta.IsZero() {
		t.Errorf("expected zero deltas, got %d days / %s", pair.DateDeltaDays, pair.AmountDelta)
	}
	if len(result.BankOnly) != 0 || len(result.BookOnly) != 0 {
		t.Errorf("expected no unmatched items, got %d/%d", len(result.BankOnly), len(result.BookOnly))
	}
}

func TestReconcile_ExactDuplicates_PairInInputOrder(t *testing.T) {
	// Two bank and two book entries with the same (date, amount): greedy
	// pairing keeps stable input order on both sides.
	bank := []*models.Transaction{
		bankTxn("b1", "2024-01-05", 100, "first"),
		bankTxn("b2", "2024-01-05", 100, "second"),
	}
	book := []*models.Transaction{
		bookTxn("k1", "2024-01-05", 100, "first"),
		bookTxn("k2", "2024-01-05", 100, "second"),
	}

	result := reconcile(t, bank, book, DefaultOptions())

	if len(result.Matched) != 2 {
		t.Fatalf("expected 2 matched pairs, got %d", len(result.Matched))
	}
	if result.Matched[0].BankID != "b1" || result.Matched[0].BookID != "k1" {
		t.Errorf("expected b1->k1, got %s->%s", result.Matched[0].BankID, result.Matched[0].BookID)
	}
	if result.Matched[1].BankID != "b2" || result.Matched[1].BookID != "k2" {
		t.Errorf("expected b2->k2, got %s->%s", result.Matched[1].BankID, result.Matched[1].BookID)
	}
}

func TestReconcile_ToleranceBoundary(t *testing.T) {
	bank := []*models.Transaction{bankTxn("b1", "2024-01-05", 100, "invoice 42")}
	book := []*models.Transaction{bookTxn("k1", "2024-01-07", 100, "inv 42")}

	opts := DefaultOptions()
	opts.DateToleranceDays = 2
	result := reconcile(t, bank, book, opts)

	if len(result.Matched) != 1 {
		t.Fatalf("expected tolerance match at boundary, got %d pairs", len(result.Matched))
	}
	pair := result.Matched[0]
	if pair.Strategy != models.StrategyTolerance {
		t.Errorf("expected tolerance strategy, got %s", pair.Strategy)
	}
	if pair.DateDeltaDays != 2 {
		t.Errorf("expected date delta 2, got %d", pair.DateDeltaDays)
	}
	if pair.Score >= 1.0 || pair.Score < 0 {
		t.Errorf("tolerance score out of range: %f", pair.Score)
	}

	// One day tighter: both sides end up unmatched and timing-tagged.
	opts.DateToleranceDays = 1
	result = reconcile(t, bank, book, opts)

	if len(result.Matched) != 0 {
		t.Fatalf("expected no match below tolerance, got %d pairs", len(result.Matched))
	}
	if len(result.BankOnly) != 1 || len(result.BookOnly) != 1 {
		t.Fatalf("expected one unmatched item per side, got %d/%d", len(result.BankOnly), len(result.BookOnly))
	}
	if result.BankOnly[0].ReasonTag != models.ReasonTiming {
		t.Errorf("expected bank item tagged timing, got %s", result.BankOnly[0].ReasonTag)
	}
	if result.BookOnly[0].ReasonTag != models.ReasonTiming {
		t.Errorf("expected book item tagged timing, got %s", result.BookOnly[0].ReasonTag)
	}
}

func TestReconcile_TolerancePrefersClosestCandidate(t *testing.T) {
	bank := []*models.Transaction{bankTxn("b1", "2024-01-05", 100, "x")}
	book := []*models.Transaction{
		bookTxn("k2", "2024-01-08", 100, "far"),
		bookTxn("k1", "2024-01-06", 100, "near"),
	}

	opts := DefaultOptions()
	opts.DateToleranceDays = 3
	result := reconcile(t, bank, book, opts)

	if len(result.Matched) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(result.Matched))
	}
	if result.Matched[0].BookID != "k1" {
		t.Errorf("expected closest candidate k1, got %s", result.Matched[0].BookID)
	}
}

func TestReconcile_ToleranceTieBreaksOnBookID(t *testing.T) {
	bank := []*models.Transaction{bankTxn("b1", "2024-01-05", 100, "x")}
	book := []*models.Transaction{
		bookTxn("k9", "2024-01-06", 100, "later id"),
		bookTxn("k2", "2024-01-04", 100, "smaller id"),
	}

	opts := DefaultOptions()
	opts.DateToleranceDays = 1
	result := reconcile(t, bank, book, opts)

	if len(result.Matched) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(result.Matched))
	}
	if result.Matched[0].BookID != "k2" {
		t.Errorf("expected tie broken toward k2, got %s", result.Matched[0].BookID)
	}
}

func TestReconcile_FuzzyThresholdBoundary(t *testing.T) {
	// "alpha beta" vs "alpha gamma": token overlap 1 common / 3 union.
	bank := []*models.Transaction{bankTxn("b1", "2024-01-05", 100, "alpha beta")}
	book := []*models.Transaction{bookTxn("k1", "2024-01-05", 150, "alpha gamma")}

	opts := DefaultOptions()
	opts.FuzzyMetric = TokenOverlapMetric{}
	opts.FuzzyUnbounded = true
	opts.FuzzyThreshold = 1.0 / 3.0

	result := reconcile(t, bank, book, opts)
	if len(result.Matched) != 1 {
		t.Fatalf("expected match at threshold, got %d pairs", len(result.Matched))
	}
	if result.Matched[0].Strategy != models.StrategyFuzzy {
		t.Errorf("expected fuzzy strategy, got %s", result.Matched[0].Strategy)
	}

	opts.FuzzyThreshold = 1.0/3.0 + 0.001
	result = reconcile(t, bank, book, opts)
	if len(result.Matched) != 0 {
		t.Fatalf("expected no match above similarity, got %d pairs", len(result.Matched))
	}
}

func TestReconcile_FuzzyHighestSimilarityWins(t *testing.T) {
	bank := []*models.Transaction{bankTxn("b1", "2024-01-05", 100, "acme invoice 42")}
	book := []*models.Transaction{
		bookTxn("k1", "2024-02-01", 90, "acme invoice 41"),
		bookTxn("k2", "2024-02-02", 95, "acme invoice 42"),
	}

	opts := DefaultOptions()
	opts.FuzzyUnbounded = true
	opts.FuzzyThreshold = 0.5
	result := reconcile(t, bank, book, opts)

	if len(result.Matched) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(result.Matched))
	}
	if result.Matched[0].BookID != "k2" {
		t.Errorf("expected best similarity k2, got %s", result.Matched[0].BookID)
	}
}

func TestReconcile_PartitionInvariant(t *testing.T) {
	bank := []*models.Transaction{
		bankTxn("b1", "2024-01-02", 100, "transfer"),
		bankTxn("b2", "2024-01-03", -15.5, "bank fee"),
		bankTxn("b3", "2024-01-05", 230, "deposit acme"),
		bankTxn("b4", "2024-01-09", 42, "card"),
	}
	book := []*models.Transaction{
		bookTxn("k1", "2024-01-02", 100, "transfer"),
		bookTxn("k2", "2024-01-06", 230, "deposit acme corp"),
		bookTxn("k3", "2024-01-20", 999, "rent"),
	}

	opts := DefaultOptions()
	opts.DateToleranceDays = 1
	result := reconcile(t, bank, book, opts)

	seen := make(map[string]int)
	for _, pair := range result.Matched {
		seen["bank/"+pair.BankID]++
		seen["book/"+pair.BookID]++
	}
	for _, item := range result.BankOnly {
		seen["bank/"+item.Transaction.ID]++
	}
	for _, item := range result.BookOnly {
		seen["book/"+item.Transaction.ID]++
	}

	if len(seen) != len(bank)+len(book) {
		t.Fatalf("partition covers %d transactions, want %d", len(seen), len(bank)+len(book))
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("transaction %s appears %d times in the partition", id, count)
		}
	}
}

func TestReconcile_Idempotence(t *testing.T) {
	build := func() ([]*models.Transaction, []*models.Transaction) {
		bank := []*models.Transaction{
			bankTxn("b1", "2024-01-02", 100, "transfer"),
			bankTxn("b2", "2024-01-02", 100, "transfer dup"),
			bankTxn("b3", "2024-01-03", -9.9, "monthly fee"),
			bankTxn("b4", "2024-01-08", 77, "pos purchase"),
		}
		book := []*models.Transaction{
			bookTxn("k1", "2024-01-02", 100, "transfer"),
			bookTxn("k2", "2024-01-02", 100, "transfer dup"),
			bookTxn("k3", "2024-01-09", 77.5, "pos purchase"),
		}
		return bank, book
	}

	opts := DefaultOptions()
	opts.DateToleranceDays = 2
	opts.AmountTolerance = decimal.NewFromFloat(1)
	opts.FuzzyThreshold = 0.6

	bank1, book1 := build()
	first := reconcile(t, bank1, book1, opts)
	bank2, book2 := build()
	second := reconcile(t, bank2, book2, opts)

	a, err := json.Marshal(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(second)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("results differ across identical runs:\n%s\n%s", a, b)
	}
}

func TestReconcile_MonotonicTolerance(t *testing.T) {
	bank := []*models.Transaction{
		bankTxn("b1", "2024-01-02", 100, "a"),
		bankTxn("b2", "2024-01-05", 50, "b"),
		bankTxn("b3", "2024-01-10", 75, "c"),
	}
	book := []*models.Transaction{
		bookTxn("k1", "2024-01-03", 100, "a"),
		bookTxn("k2", "2024-01-08", 50, "b"),
		bookTxn("k3", "2024-01-10", 75.5, "c"),
	}

	prev := -1
	for _, tolDays := range []int{0, 1, 2, 3, 4} {
		opts := DefaultOptions()
		opts.DateToleranceDays = tolDays
		opts.AmountTolerance = decimal.NewFromFloat(0.5)
		opts.FuzzyThreshold = 1.0 // only identical narratives could fuzzy-match
		result := reconcile(t, copyTxns(bank), copyTxns(book), opts)
		if len(result.Matched) < prev {
			t.Errorf("tolerance %dd produced %d pairs, fewer than %d at tighter tolerance",
				tolDays, len(result.Matched), prev)
		}
		prev = len(result.Matched)
	}
}

func copyTxns(in []*models.Transaction) []*models.Transaction {
	out := make([]*models.Transaction, len(in))
	for i, txn := range in {
		copied := *txn
		out[i] = &copied
	}
	return out
}

func TestReconcile_AuditCompleteness(t *testing.T) {
	bank := []*models.Transaction{
		bankTxn("b1", "2024-01-02", 100, "transfer"),
		bankTxn("b2", "2024-01-03", -5, "bank fee"),
	}
	book := []*models.Transaction{
		bookTxn("k1", "2024-01-02", 100, "transfer"),
		bookTxn("k2", "2024-01-15", 320, "supplier"),
	}

	result := reconcile(t, bank, book, DefaultOptions())

	want := len(result.Matched) + len(result.BankOnly) + len(result.BookOnly)
	if len(result.AuditTrail) != want {
		t.Fatalf("audit trail has %d entries, want %d", len(result.AuditTrail), want)
	}
	for i, entry := range result.AuditTrail {
		if entry.Seq != i+1 {
			t.Errorf("audit entry %d has seq %d", i, entry.Seq)
		}
		if entry.Rule == "" || entry.Detail == "" {
			t.Errorf("audit entry %d missing rule or detail: %+v", i, entry)
		}
	}
}

func TestReconcile_ReasonTagging(t *testing.T) {
	tests := []struct {
		name     string
		txn      *models.Transaction
		opts     func(Options) Options
		wantTag  models.ReasonTag
		wantConf bool // true when confidence must be > 0
	}{
		{
			name:     "bank fee below ceiling",
			txn:      bankTxn("b1", "2024-01-03", 5, "bank fee"),
			opts:     func(o Options) Options { return o },
			wantTag:  models.ReasonFee,
			wantConf: true,
		},
		{
			name:    "fee keyword above ceiling stays unknown",
			txn:     bankTxn("b1", "2024-01-03", 5000, "bank fee"),
			opts:    func(o Options) Options { return o },
			wantTag: models.ReasonUnknown,
		},
		{
			name:    "no rule fires",
			txn:     bankTxn("b1", "2024-01-03", 812.33, "wire out"),
			opts:    func(o Options) Options { return o },
			wantTag: models.ReasonUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := reconcile(t, []*models.Transaction{tt.txn}, nil, tt.opts(DefaultOptions()))
			if len(result.BankOnly) != 1 {
				t.Fatalf("expected 1 bank-only item, got %d", len(result.BankOnly))
			}
			item := result.BankOnly[0]
			if item.ReasonTag != tt.wantTag {
				t.Errorf("expected tag %s, got %s", tt.wantTag, item.ReasonTag)
			}
			if tt.wantConf && item.ReasonConfidence <= 0 {
				t.Errorf("expected positive confidence, got %f", item.ReasonConfidence)
			}
			if !tt.wantConf && tt.wantTag == models.ReasonUnknown && item.ReasonConfidence != 0 {
				t.Errorf("expected zero confidence for unknown, got %f", item.ReasonConfidence)
			}
		})
	}
}

func TestReconcile_DepositInTransit(t *testing.T) {
	// Bank records the deposit after the cutoff; the book recorded the same
	// amount before it.
	bank := []*models.Transaction{bankTxn("b1", "2024-02-02", 500, "deposit")}
	book := []*models.Transaction{bookTxn("k1", "2024-01-28", 500, "customer deposit")}

	opts := DefaultOptions()
	opts.CutoffDate = day("2024-01-31")
	result := reconcile(t, bank, book, opts)

	if len(result.BankOnly) != 1 {
		t.Fatalf("expected 1 bank-only item, got %d", len(result.BankOnly))
	}
	if result.BankOnly[0].ReasonTag != models.ReasonDepositInTransit {
		t.Errorf("expected deposit_in_transit, got %s", result.BankOnly[0].ReasonTag)
	}
}

func TestReconcile_OrderingDeterministic(t *testing.T) {
	bank := []*models.Transaction{
		bankTxn("b2", "2024-01-05", 10, "later entry"),
		bankTxn("b1", "2024-01-02", 20, "earlier entry"),
	}
	book := []*models.Transaction{
		bookTxn("k2", "2024-01-05", 10, "later entry"),
		bookTxn("k1", "2024-01-02", 20, "earlier entry"),
	}

	result := reconcile(t, bank, book, DefaultOptions())
	if len(result.Matched) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(result.Matched))
	}
	if result.Matched[0].BankID != "b1" || result.Matched[1].BankID != "b2" {
		t.Errorf("pairs not ordered by bank date: %s, %s",
			result.Matched[0].BankID, result.Matched[1].BankID)
	}
}

func TestReconcile_ValidationErrors(t *testing.T) {
	valid := bankTxn("b1", "2024-01-02", 10, "x")

	tests := []struct {
		name string
		bank []*models.Transaction
		book []*models.Transaction
		opts func(Options) Options
	}{
		{
			name: "missing id",
			bank: []*models.Transaction{txn("", models.SideBank, "2024-01-02", 10, "x")},
		},
		{
			name: "duplicate id",
			bank: []*models.Transaction{valid, bankTxn("b1", "2024-01-03", 20, "y")},
		},
		{
			name: "wrong side tag",
			bank: []*models.Transaction{txn("b1", models.SideBook, "2024-01-02", 10, "x")},
		},
		{
			name: "zero date",
			bank: []*models.Transaction{{ID: "b1", Side: models.SideBank, Amount: decimal.NewFromInt(1)}},
		},
		{
			name: "negative date tolerance",
			bank: []*models.Transaction{valid},
			opts: func(o Options) Options { o.DateToleranceDays = -1; return o },
		},
		{
			name: "negative amount tolerance",
			bank: []*models.Transaction{valid},
			opts: func(o Options) Options { o.AmountTolerance = decimal.NewFromInt(-1); return o },
		},
		{
			name: "fuzzy threshold out of range",
			bank: []*models.Transaction{valid},
			opts: func(o Options) Options { o.FuzzyThreshold = 1.5; return o },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tt.opts != nil {
				opts = tt.opts(opts)
			}
			_, err := NewEngine(nil).Reconcile(context.Background(), tt.bank, tt.book, opts)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected *ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestReconcile_Summary(t *testing.T) {
	bank := []*models.Transaction{
		bankTxn("b1", "2024-01-02", 100, "a"),
		bankTxn("b2", "2024-01-03", 50, "b"),
	}
	book := []*models.Transaction{bookTxn("k1", "2024-01-02", 100, "a")}

	result := reconcile(t, bank, book, DefaultOptions())

	if !result.Summary.BankTotal.Equal(decimal.NewFromInt(150)) {
		t.Errorf("bank total %s, want 150", result.Summary.BankTotal)
	}
	if !result.Summary.BookTotal.Equal(decimal.NewFromInt(100)) {
		t.Errorf("book total %s, want 100", result.Summary.BookTotal)
	}
	if !result.Summary.Difference.Equal(decimal.NewFromInt(50)) {
		t.Errorf("difference %s, want 50", result.Summary.Difference)
	}
}

func TestReconcile_EmptyInputs(t *testing.T) {
	result := reconcile(t, nil, nil, DefaultOptions())
	if len(result.Matched) != 0 || len(result.BankOnly) != 0 || len(result.BookOnly) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
	if len(result.AuditTrail) != 0 {
		t.Errorf("expected empty audit trail, got %d entries", len(result.AuditTrail))
	}
}
