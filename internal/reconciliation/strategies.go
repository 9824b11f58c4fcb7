package reconciliation

import (
	"fmt"

	"github.com/pandawa-stack/ai-bank-recon/pkg/models"
)

// strategy consumes pairs from the remaining unmatched pools. Strategies
// run strictly in priority order; each one only ever sees transactions left
// unconsumed by its predecessors.
type strategy interface {
	name() models.Strategy
	run(rc *runContext) error
}

// exactStrategy pairs transactions sharing an identical (date, amount) key.
// Duplicate-valued transactions pair greedily in stable input order: first
// unconsumed bank entry to first unconsumed book entry. Deterministic, not
// uniqueness-optimal.
type exactStrategy struct{}

func (exactStrategy) name() models.Strategy { return models.StrategyExact }

func (exactStrategy) run(rc *runContext) error {
	for _, bank := range rc.bank.entries {
		if bank.consumed {
			continue
		}
		candidates := rc.bookIndex.exactCandidates(bank.txn.Date, bank.txn.Amount)
		if len(candidates) == 0 {
			continue
		}
		book := candidates[0]
		if err := rc.emit(models.MatchedPair{
			BankID:   bank.txn.ID,
			BookID:   book.txn.ID,
			Strategy: models.StrategyExact,
			Score:    1.0,
		}, fmt.Sprintf("identical date %s and amount %s",
			dateKey(bank.txn.Date).Format("2006-01-02"), bank.txn.Amount)); err != nil {
			return err
		}
	}
	return nil
}

// toleranceStrategy pairs transactions within the configured date and
// amount windows, minimizing a weighted composite of the two deltas. Ties
// break toward the smallest book id.
type toleranceStrategy struct{}

func (toleranceStrategy) name() models.Strategy { return models.StrategyTolerance }

func (toleranceStrategy) run(rc *runContext) error {
	opts := rc.opts
	for _, bank := range rc.bank.entries {
		if bank.consumed {
			continue
		}
		candidates := rc.bookIndex.windowCandidates(
			bank.txn.Date, opts.DateToleranceDays, bank.txn.Amount, opts.AmountTolerance)

		var best *entry
		var bestScore float64
		for _, cand := range candidates {
			dateDelta := daysBetween(bank.txn.Date, cand.txn.Date)
			amountDelta := cand.txn.Amount.Sub(bank.txn.Amount)

			score := absFloat(float64(dateDelta))*opts.DateWeight +
				amountDelta.Abs().InexactFloat64()*opts.AmountWeight

			if best == nil || score < bestScore ||
				(score == bestScore && cand.txn.ID < best.txn.ID) {
				best = cand
				bestScore = score
			}
		}
		if best == nil {
			continue
		}

		dateDelta := daysBetween(bank.txn.Date, best.txn.Date)
		amountDelta := best.txn.Amount.Sub(bank.txn.Amount)
		if err := rc.emit(models.MatchedPair{
			BankID:        bank.txn.ID,
			BookID:        best.txn.ID,
			Strategy:      models.StrategyTolerance,
			Score:         toleranceConfidence(dateDelta, amountDelta.Abs().InexactFloat64(), opts),
			DateDeltaDays: dateDelta,
			AmountDelta:   amountDelta,
		}, fmt.Sprintf("within tolerance: date delta %dd, amount delta %s", dateDelta, amountDelta)); err != nil {
			return err
		}
	}
	return nil
}

// toleranceConfidence maps the pair's deltas to a confidence below 1.0; a
// perfect tolerance hit still scores under an exact match.
func toleranceConfidence(dateDelta int, amountDelta float64, opts Options) float64 {
	dateConf := 1.0
	if opts.DateToleranceDays > 0 {
		dateConf = 1.0 - absFloat(float64(dateDelta))/float64(opts.DateToleranceDays)
	}
	amountConf := 1.0
	if tol := opts.AmountTolerance.InexactFloat64(); tol > 0 {
		amountConf = 1.0 - amountDelta/tol
	}
	return (dateConf + amountConf) / 2 * 0.95
}

// fuzzyStrategy pairs transactions by narrative similarity. Candidates come
// from the same window as the tolerance strategy unless unbounded matching
// is configured; a pair is accepted only at or above the threshold.
type fuzzyStrategy struct{}

func (fuzzyStrategy) name() models.Strategy { return models.StrategyFuzzy }

func (fuzzyStrategy) run(rc *runContext) error {
	opts := rc.opts
	metric := opts.metric()

	for _, bank := range rc.bank.entries {
		if bank.consumed {
			continue
		}

		var candidates []*entry
		if opts.FuzzyUnbounded {
			candidates = rc.book.unconsumed()
		} else {
			candidates = rc.bookIndex.windowCandidates(
				bank.txn.Date, opts.DateToleranceDays, bank.txn.Amount, opts.AmountTolerance)
		}

		var best *entry
		var bestSim float64
		for _, cand := range candidates {
			sim := metric.Similarity(narrative(bank.txn), narrative(cand.txn))
			if sim < opts.FuzzyThreshold {
				continue
			}
			if best == nil || sim > bestSim ||
				(sim == bestSim && cand.txn.ID < best.txn.ID) {
				best = cand
				bestSim = sim
			}
		}
		if best == nil {
			continue
		}

		dateDelta := daysBetween(bank.txn.Date, best.txn.Date)
		amountDelta := best.txn.Amount.Sub(bank.txn.Amount)
		if err := rc.emit(models.MatchedPair{
			BankID:        bank.txn.ID,
			BookID:        best.txn.ID,
			Strategy:      models.StrategyFuzzy,
			Score:         bestSim,
			DateDeltaDays: dateDelta,
			AmountDelta:   amountDelta,
		}, fmt.Sprintf("%s similarity %.3f at threshold %.3f", metric.Name(), bestSim, opts.FuzzyThreshold)); err != nil {
			return err
		}
	}
	return nil
}

// narrative is the text the fuzzy metric compares: reference plus
// description.
func narrative(txn *models.Transaction) string {
	if txn.Reference == "" {
		return txn.Description
	}
	if txn.Description == "" {
		return txn.Reference
	}
	return txn.Reference + " " + txn.Description
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
