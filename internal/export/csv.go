// Package export renders reconciliation results as CSV files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pandawa-stack/ai-bank-recon/pkg/models"
)

const dateFormat = "2006-01-02"

// WriteMatched writes one row per accepted pair, joining both transactions.
func WriteMatched(w io.Writer, result *models.ReconciliationResult, bank, book []*models.Transaction) error {
	bankByID := indexByID(bank)
	bookByID := indexByID(book)

	cw := csv.NewWriter(w)
	header := []string{
		"bank_id", "bank_date", "bank_description",
		"book_id", "book_date", "book_description",
		"amount", "strategy", "score", "date_delta_days", "amount_delta",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, pair := range result.Matched {
		bt, ok := bankByID[pair.BankID]
		if !ok {
			return fmt.Errorf("matched pair references unknown bank transaction %s", pair.BankID)
		}
		kt, ok := bookByID[pair.BookID]
		if !ok {
			return fmt.Errorf("matched pair references unknown book transaction %s", pair.BookID)
		}
		row := []string{
			bt.ID, bt.Date.Format(dateFormat), bt.Description,
			kt.ID, kt.Date.Format(dateFormat), kt.Description,
			bt.Amount.String(),
			string(pair.Strategy),
			formatScore(pair.Score),
			strconv.Itoa(pair.DateDeltaDays),
			pair.AmountDelta.String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteUnmatched writes one row per exception, both sides interleaved as
// given.
func WriteUnmatched(w io.Writer, items []models.UnmatchedItem) error {
	cw := csv.NewWriter(w)
	header := []string{
		"side", "id", "date", "amount", "reference", "description",
		"reason_tag", "reason_confidence",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, item := range items {
		t := item.Transaction
		row := []string{
			string(t.Side), t.ID, t.Date.Format(dateFormat),
			t.Amount.String(), t.Reference, t.Description,
			string(item.ReasonTag), formatScore(item.ReasonConfidence),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAudit writes the full decision trail in sequence order.
func WriteAudit(w io.Writer, entries []models.AuditEntry) error {
	cw := csv.NewWriter(w)
	header := []string{
		"seq", "stage", "rule", "bank_id", "book_id",
		"score", "date_delta_days", "amount_delta", "detail",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, e := range entries {
		row := []string{
			strconv.Itoa(e.Seq), string(e.Stage), e.Rule,
			e.BankID, e.BookID,
			formatScore(e.Score),
			strconv.Itoa(e.DateDeltaDays),
			e.AmountDelta.String(),
			e.Detail,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteResultDir writes matched.csv, exceptions.csv and audit.csv under dir.
func WriteResultDir(dir string, result *models.ReconciliationResult, bank, book []*models.Transaction) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	exceptions := make([]models.UnmatchedItem, 0, len(result.BankOnly)+len(result.BookOnly))
	exceptions = append(exceptions, result.BankOnly...)
	exceptions = append(exceptions, result.BookOnly...)

	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"matched.csv", func(w io.Writer) error { return WriteMatched(w, result, bank, book) }},
		{"exceptions.csv", func(w io.Writer) error { return WriteUnmatched(w, exceptions) }},
		{"audit.csv", func(w io.Writer) error { return WriteAudit(w, result.AuditTrail) }},
	}

	for _, f := range files {
		out, err := os.Create(filepath.Join(dir, f.name))
		if err != nil {
			return err
		}
		if err := f.write(out); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
	}
	return nil
}

func indexByID(txns []*models.Transaction) map[string]*models.Transaction {
	m := make(map[string]*models.Transaction, len(txns))
	for _, t := range txns {
		m[t.ID] = t
	}
	return m
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
