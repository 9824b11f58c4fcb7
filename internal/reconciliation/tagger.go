package reconciliation

import (
	"fmt"
	"strings"

	"github.com/pandawa-stack/ai-bank-recon/pkg/models"
)

// Reason-rule confidences. The rule list is fixed and ordered; the first
// rule that fires wins.
const (
	feeConfidence     = 0.9
	transitConfidence = 0.8
	timingConfidence  = 0.7
)

// tagger classifies unmatched residues after the strategy chain completes.
type tagger struct {
	opts      Options
	bankIndex *index
	bookIndex *index
}

type tagDecision struct {
	tag        models.ReasonTag
	confidence float64
	rule       string
	detail     string
}

// classify runs the rule list against one unmatched transaction.
func (t *tagger) classify(txn *models.Transaction) tagDecision {
	if d, ok := t.feeRule(txn); ok {
		return d
	}
	if d, ok := t.depositInTransitRule(txn); ok {
		return d
	}
	if d, ok := t.timingRule(txn); ok {
		return d
	}
	return tagDecision{
		tag:    models.ReasonUnknown,
		rule:   "unknown",
		detail: "no classification rule fired",
	}
}

// feeRule fires on small amounts whose narrative mentions a fee keyword.
func (t *tagger) feeRule(txn *models.Transaction) (tagDecision, bool) {
	if txn.Amount.Abs().GreaterThan(t.opts.SmallAmountCeiling) {
		return tagDecision{}, false
	}
	text := strings.ToLower(narrative(txn))
	for _, keyword := range t.opts.FeeKeywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(keyword)) {
			return tagDecision{
				tag:        models.ReasonFee,
				confidence: feeConfidence,
				rule:       "fee_keyword",
				detail:     fmt.Sprintf("keyword %q with amount %s below ceiling %s", keyword, txn.Amount, t.opts.SmallAmountCeiling),
			}, true
		}
	}
	return tagDecision{}, false
}

// depositInTransitRule fires on an item dated after the period cutoff when
// a same-amount entry exists on the opposite side before the cutoff: the
// asymmetric timing signature of funds recorded on one ledger but not yet
// cleared on the other.
func (t *tagger) depositInTransitRule(txn *models.Transaction) (tagDecision, bool) {
	if t.opts.CutoffDate.IsZero() {
		return tagDecision{}, false
	}
	if !dateKey(txn.Date).After(dateKey(t.opts.CutoffDate)) {
		return tagDecision{}, false
	}
	if !t.opposite(txn.Side).sameAmountBefore(t.opts.CutoffDate, txn.Amount) {
		return tagDecision{}, false
	}
	return tagDecision{
		tag:        models.ReasonDepositInTransit,
		confidence: transitConfidence,
		rule:       "deposit_in_transit",
		detail: fmt.Sprintf("dated after cutoff %s with same-amount %s entry before cutoff",
			dateKey(t.opts.CutoffDate).Format("2006-01-02"), txn.Side.Opposite()),
	}, true
}

// timingRule flags near-misses: a same-amount entry on the opposite side
// that would have matched under a larger date tolerance.
func (t *tagger) timingRule(txn *models.Transaction) (tagDecision, bool) {
	if !t.opposite(txn.Side).sameAmountOutsideWindow(txn.Date, t.opts.DateToleranceDays, txn.Amount) {
		return tagDecision{}, false
	}
	return tagDecision{
		tag:        models.ReasonTiming,
		confidence: timingConfidence,
		rule:       "timing_difference",
		detail: fmt.Sprintf("same-amount %s entry outside %dd tolerance window",
			txn.Side.Opposite(), t.opts.DateToleranceDays),
	}, true
}

func (t *tagger) opposite(side models.Side) *index {
	if side == models.SideBank {
		return t.bookIndex
	}
	return t.bankIndex
}
