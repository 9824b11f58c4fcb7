// Package ingest loads bank statements and cash books from CSV files into
// engine transactions.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pandawa-stack/ai-bank-recon/pkg/models"
)

// ColumnMapping names the CSV headers to read each field from. Header
// matching is case-insensitive. When AmountColumn is empty, DebitColumn and
// CreditColumn derive the signed amount instead: on the bank side money in
// is a credit, in the books money in is a debit.
type ColumnMapping struct {
	IDColumn          string `yaml:"id_column" json:"id_column"`
	DateColumn        string `yaml:"date_column" json:"date_column"`
	DescriptionColumn string `yaml:"description_column" json:"description_column"`
	ReferenceColumn   string `yaml:"reference_column" json:"reference_column"`
	AmountColumn      string `yaml:"amount_column" json:"amount_column"`
	DebitColumn       string `yaml:"debit_column" json:"debit_column"`
	CreditColumn      string `yaml:"credit_column" json:"credit_column"`
}

// DefaultMapping matches the common export headers.
func DefaultMapping() ColumnMapping {
	return ColumnMapping{
		DateColumn:        "date",
		DescriptionColumn: "description",
		AmountColumn:      "amount",
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"2006-01-02 15:04:05",
	"02 Jan 2006",
}

// ReadFile loads one side of the reconciliation from a CSV file on disk.
func ReadFile(path string, side models.Side, mapping ColumnMapping) ([]*models.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, side, mapping)
}

// Read loads transactions from CSV data. The first row must be a header.
func Read(r io.Reader, side models.Side, mapping ColumnMapping) ([]*models.Transaction, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("invalid side %q", side)
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := resolveColumns(header, mapping)
	if err != nil {
		return nil, err
	}

	var txns []*models.Transaction
	for row := 2; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		txn, err := cols.transaction(record, side, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

// columns holds resolved header indexes; -1 means the column is absent.
type columns struct {
	id, date, description, reference int
	amount, debit, credit            int
}

func resolveColumns(header []string, mapping ColumnMapping) (*columns, error) {
	find := func(name string) int {
		if name == "" {
			return -1
		}
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
		return -1
	}

	cols := &columns{
		id:          find(mapping.IDColumn),
		date:        find(mapping.DateColumn),
		description: find(mapping.DescriptionColumn),
		reference:   find(mapping.ReferenceColumn),
		amount:      find(mapping.AmountColumn),
		debit:       find(mapping.DebitColumn),
		credit:      find(mapping.CreditColumn),
	}

	if cols.date < 0 {
		return nil, fmt.Errorf("date column %q not found in header", mapping.DateColumn)
	}
	if cols.amount < 0 {
		if mapping.AmountColumn != "" {
			return nil, fmt.Errorf("amount column %q not found in header", mapping.AmountColumn)
		}
		if cols.debit < 0 || cols.credit < 0 {
			return nil, fmt.Errorf("need an amount column or both debit and credit columns")
		}
	}
	return cols, nil
}

func (c *columns) transaction(record []string, side models.Side, row int) (*models.Transaction, error) {
	field := func(idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	date, err := ParseDate(field(c.date))
	if err != nil {
		return nil, err
	}

	var amount decimal.Decimal
	if c.amount >= 0 {
		amount, err = ParseAmount(field(c.amount))
		if err != nil {
			return nil, err
		}
	} else {
		amount, err = deriveAmount(field(c.debit), field(c.credit), side)
		if err != nil {
			return nil, err
		}
	}

	id := field(c.id)
	if id == "" {
		id = fmt.Sprintf("%s-%04d", side, row-1)
	}

	return &models.Transaction{
		ID:          id,
		Side:        side,
		Date:        date,
		Amount:      amount,
		Reference:   field(c.reference),
		Description: field(c.description),
	}, nil
}

// deriveAmount folds separate debit/credit columns into one signed amount.
// Bank statements record money in as credit; cash books record it as debit.
func deriveAmount(debitRaw, creditRaw string, side models.Side) (decimal.Decimal, error) {
	debit, credit := decimal.Zero, decimal.Zero
	var err error
	if debitRaw != "" {
		if debit, err = ParseAmount(debitRaw); err != nil {
			return decimal.Zero, err
		}
	}
	if creditRaw != "" {
		if credit, err = ParseAmount(creditRaw); err != nil {
			return decimal.Zero, err
		}
	}
	if side == models.SideBank {
		return credit.Sub(debit), nil
	}
	return debit.Sub(credit), nil
}

// ParseDate tries the supported date layouts in order.
func ParseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
