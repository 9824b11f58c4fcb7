package reconciliation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pandawa-stack/ai-bank-recon/pkg/models"
)

// entry wraps a transaction with its matching state. The consumed flag is
// written only by the strategy chain, strictly in strategy-priority order.
type entry struct {
	txn      *models.Transaction
	consumed bool
}

// pool holds one side's transactions in stable input order.
type pool struct {
	entries []*entry
	byID    map[string]*entry
}

func newPool(txns []*models.Transaction) *pool {
	p := &pool{
		entries: make([]*entry, 0, len(txns)),
		byID:    make(map[string]*entry, len(txns)),
	}
	for _, txn := range txns {
		e := &entry{txn: txn}
		p.entries = append(p.entries, e)
		p.byID[txn.ID] = e
	}
	return p
}

// consume marks an entry as matched. Consuming twice is an engine bug.
func (p *pool) consume(id string) error {
	e, ok := p.byID[id]
	if !ok {
		return invariantf("transaction %q not present in input", id)
	}
	if e.consumed {
		return invariantf("transaction %q consumed twice", id)
	}
	e.consumed = true
	return nil
}

// unconsumed returns the remaining entries in input order.
func (p *pool) unconsumed() []*entry {
	var out []*entry
	for _, e := range p.entries {
		if !e.consumed {
			out = append(out, e)
		}
	}
	return out
}

// dateKey truncates a timestamp to its calendar day.
func dateKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func exactKey(date time.Time, amount decimal.Decimal) string {
	return dateKey(date).Format("2006-01-02") + "|" + amount.String()
}

// index provides candidate lookup over one side's pool without scanning the
// whole side. It is read-only; querying an emptied pool yields no
// candidates, not an error.
type index struct {
	byDateAmount map[string][]*entry
	byDate       map[time.Time][]*entry
	dates        []time.Time
}

func buildIndex(p *pool) *index {
	idx := &index{
		byDateAmount: make(map[string][]*entry),
		byDate:       make(map[time.Time][]*entry),
	}
	for _, e := range p.entries {
		key := exactKey(e.txn.Date, e.txn.Amount)
		idx.byDateAmount[key] = append(idx.byDateAmount[key], e)

		day := dateKey(e.txn.Date)
		if _, seen := idx.byDate[day]; !seen {
			idx.dates = append(idx.dates, day)
		}
		idx.byDate[day] = append(idx.byDate[day], e)
	}
	sort.Slice(idx.dates, func(i, j int) bool { return idx.dates[i].Before(idx.dates[j]) })
	return idx
}

// exactCandidates returns unconsumed entries sharing the exact (date,
// amount) key, in input order.
func (idx *index) exactCandidates(date time.Time, amount decimal.Decimal) []*entry {
	var out []*entry
	for _, e := range idx.byDateAmount[exactKey(date, amount)] {
		if !e.consumed {
			out = append(out, e)
		}
	}
	return out
}

// windowCandidates returns unconsumed entries dated within toleranceDays of
// date whose amount differs by at most amountTolerance, ordered by date then
// input order. The binary search over the sorted day list keeps the scan
// proportional to the window, not the side.
func (idx *index) windowCandidates(date time.Time, toleranceDays int, amount, amountTolerance decimal.Decimal) []*entry {
	day := dateKey(date)
	lo := day.AddDate(0, 0, -toleranceDays)
	hi := day.AddDate(0, 0, toleranceDays)

	start := sort.Search(len(idx.dates), func(i int) bool { return !idx.dates[i].Before(lo) })

	var out []*entry
	for i := start; i < len(idx.dates) && !idx.dates[i].After(hi); i++ {
		for _, e := range idx.byDate[idx.dates[i]] {
			if e.consumed {
				continue
			}
			if e.txn.Amount.Sub(amount).Abs().GreaterThan(amountTolerance) {
				continue
			}
			out = append(out, e)
		}
	}
	return out
}

// sameAmountOutsideWindow reports whether any entry (consumed or not)
// carries the identical amount but is dated outside the tolerance window.
// Used by the timing near-miss rule.
func (idx *index) sameAmountOutsideWindow(date time.Time, toleranceDays int, amount decimal.Decimal) bool {
	day := dateKey(date)
	for _, d := range idx.dates {
		deltaDays := daysBetween(day, d)
		if deltaDays < 0 {
			deltaDays = -deltaDays
		}
		if deltaDays <= toleranceDays {
			continue
		}
		for _, e := range idx.byDate[d] {
			if e.txn.Amount.Equal(amount) {
				return true
			}
		}
	}
	return false
}

// sameAmountBefore reports whether any entry with the identical amount is
// dated strictly before the cutoff. Used by the deposit-in-transit rule.
func (idx *index) sameAmountBefore(cutoff time.Time, amount decimal.Decimal) bool {
	cut := dateKey(cutoff)
	for _, d := range idx.dates {
		if !d.Before(cut) {
			break
		}
		for _, e := range idx.byDate[d] {
			if e.txn.Amount.Equal(amount) {
				return true
			}
		}
	}
	return false
}

// daysBetween returns the signed day count from a to b.
func daysBetween(a, b time.Time) int {
	return int(dateKey(b).Sub(dateKey(a)).Hours() / 24)
}
