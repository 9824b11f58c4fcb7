package reconciliation

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pandawa-stack/ai-bank-recon/pkg/models"
)

// buildReport freezes the chain's output into the final result: matched
// pairs ordered by bank transaction date then id, unmatched items by date
// then id, audit trail in decision order. Pure aggregation; cannot fail
// given well-formed inputs.
func buildReport(rc *runContext, bankOnly, bookOnly []models.UnmatchedItem) *models.ReconciliationResult {
	matched := make([]models.MatchedPair, len(rc.matched))
	copy(matched, rc.matched)
	sort.SliceStable(matched, func(i, j int) bool {
		a := rc.bank.byID[matched[i].BankID].txn
		b := rc.bank.byID[matched[j].BankID].txn
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})

	sortUnmatched(bankOnly)
	sortUnmatched(bookOnly)

	audit := make([]models.AuditEntry, len(rc.audit))
	copy(audit, rc.audit)

	return &models.ReconciliationResult{
		Matched:    matched,
		BankOnly:   bankOnly,
		BookOnly:   bookOnly,
		AuditTrail: audit,
		Summary:    buildSummary(rc, len(matched)),
	}
}

func sortUnmatched(items []models.UnmatchedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Transaction, items[j].Transaction
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})
}

func buildSummary(rc *runContext, matchedCount int) models.ReconcileSummary {
	bankTotal := decimal.Zero
	for _, e := range rc.bank.entries {
		bankTotal = bankTotal.Add(e.txn.Amount)
	}
	bookTotal := decimal.Zero
	for _, e := range rc.book.entries {
		bookTotal = bookTotal.Add(e.txn.Amount)
	}

	total := len(rc.bank.entries) + len(rc.book.entries)
	matchRate := 0.0
	if total > 0 {
		matchRate = float64(matchedCount*2) / float64(total)
	}

	return models.ReconcileSummary{
		BankTotal:  bankTotal,
		BookTotal:  bookTotal,
		Difference: bankTotal.Sub(bookTotal).Abs(),
		MatchRate:  matchRate,
	}
}
