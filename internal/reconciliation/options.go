package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Options controls a single engine run. The zero value of every tolerance
// means strict matching; DefaultOptions fills in the documented defaults.
type Options struct {
	// DateToleranceDays bounds the date window for the tolerance strategy.
	DateToleranceDays int
	// AmountTolerance bounds the absolute amount difference for the
	// tolerance strategy.
	AmountTolerance decimal.Decimal

	// DateWeight and AmountWeight weigh the composite score used to pick
	// among tolerance candidates.
	DateWeight   float64
	AmountWeight float64

	// FuzzyThreshold is the minimum description similarity accepted by the
	// fuzzy strategy, inclusive.
	FuzzyThreshold float64
	// FuzzyMetric selects the similarity metric; defaults to Levenshtein.
	FuzzyMetric Metric
	// FuzzyUnbounded lifts the date/amount window from fuzzy candidates so
	// any unmatched book transaction is considered.
	FuzzyUnbounded bool

	// FeeKeywords mark probable bank fees during reason tagging.
	FeeKeywords []string
	// SmallAmountCeiling caps the magnitude a fee-tagged item may have.
	SmallAmountCeiling decimal.Decimal
	// CutoffDate is the end of the reconciliation period, used by the
	// deposit-in-transit rule. Zero disables the rule.
	CutoffDate time.Time
}

// DefaultOptions returns the documented engine defaults.
func DefaultOptions() Options {
	return Options{
		DateToleranceDays:  0,
		AmountTolerance:    decimal.Zero,
		DateWeight:         1.0,
		AmountWeight:       1.0,
		FuzzyThreshold:     0.75,
		FuzzyMetric:        LevenshteinMetric{},
		FeeKeywords:        []string{"fee", "charge", "admin", "interest", "service"},
		SmallAmountCeiling: decimal.NewFromInt(100),
	}
}

// Validate checks option ranges before a run.
func (o Options) Validate() error {
	if o.DateToleranceDays < 0 {
		return &ValidationError{Field: "date_tolerance_days", Message: "must not be negative"}
	}
	if o.AmountTolerance.IsNegative() {
		return &ValidationError{Field: "amount_tolerance", Message: "must not be negative"}
	}
	if o.FuzzyThreshold < 0 || o.FuzzyThreshold > 1 {
		return &ValidationError{Field: "fuzzy_threshold", Message: "must be within [0, 1]"}
	}
	if o.DateWeight < 0 || o.AmountWeight < 0 {
		return &ValidationError{Field: "weights", Message: "must not be negative"}
	}
	return nil
}

func (o Options) metric() Metric {
	if o.FuzzyMetric == nil {
		return LevenshteinMetric{}
	}
	return o.FuzzyMetric
}
