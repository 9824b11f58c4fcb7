// Command recon reconciles a bank statement CSV against a cash book CSV
// from the command line and writes the result as CSV files.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pandawa-stack/ai-bank-recon/internal/config"
	"github.com/pandawa-stack/ai-bank-recon/internal/export"
	"github.com/pandawa-stack/ai-bank-recon/internal/ingest"
	"github.com/pandawa-stack/ai-bank-recon/internal/observability"
	"github.com/pandawa-stack/ai-bank-recon/internal/reconciliation"
	"github.com/pandawa-stack/ai-bank-recon/internal/storage"
	"github.com/pandawa-stack/ai-bank-recon/pkg/models"
)

var cli struct {
	Reconcile ReconcileCmd `cmd:"" help:"Reconcile a bank statement against a cash book."`
	Batches   BatchesCmd   `cmd:"" help:"List batches stored in the database."`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:"warn"`
}

// ReconcileCmd loads both CSV files, runs the engine and writes
// matched.csv, exceptions.csv and audit.csv to the output directory.
type ReconcileCmd struct {
	Bank string `arg:"" help:"Bank statement CSV." type:"existingfile"`
	Book string `arg:"" help:"Cash book CSV." type:"existingfile"`

	Out string `help:"Output directory for result CSVs." default:"recon-out"`
	DB  string `help:"SQLite database to store the batch in." optional:""`

	IDColumn          string `help:"Header of the id column." optional:""`
	DateColumn        string `help:"Header of the date column." default:"date"`
	DescriptionColumn string `help:"Header of the description column." default:"description"`
	ReferenceColumn   string `help:"Header of the reference column." optional:""`
	AmountColumn      string `help:"Header of the signed amount column." default:"amount"`
	DebitColumn       string `help:"Debit column, used with --credit-column instead of --amount-column." optional:""`
	CreditColumn      string `help:"Credit column, used with --debit-column instead of --amount-column." optional:""`

	DateTolerance   int     `help:"Date window in days for tolerance matching." default:"3"`
	AmountTolerance float64 `help:"Absolute amount tolerance." default:"0.01"`
	FuzzyThreshold  float64 `help:"Minimum description similarity for fuzzy matching." default:"0.75"`
	FuzzyMetric     string  `help:"Similarity metric (levenshtein, tokens)." default:"levenshtein"`
	FuzzyUnbounded  bool    `help:"Consider fuzzy candidates outside the date/amount window."`
	Cutoff          string  `help:"Reconciliation cutoff date (YYYY-MM-DD) for in-transit detection." optional:""`
}

func (c *ReconcileCmd) Run() error {
	mapping := ingest.ColumnMapping{
		IDColumn:          c.IDColumn,
		DateColumn:        c.DateColumn,
		DescriptionColumn: c.DescriptionColumn,
		ReferenceColumn:   c.ReferenceColumn,
		AmountColumn:      c.AmountColumn,
		DebitColumn:       c.DebitColumn,
		CreditColumn:      c.CreditColumn,
	}
	if c.DebitColumn != "" && c.CreditColumn != "" {
		mapping.AmountColumn = ""
	}

	bank, err := ingest.ReadFile(c.Bank, models.SideBank, mapping)
	if err != nil {
		return fmt.Errorf("loading %s: %w", c.Bank, err)
	}
	book, err := ingest.ReadFile(c.Book, models.SideBook, mapping)
	if err != nil {
		return fmt.Errorf("loading %s: %w", c.Book, err)
	}

	opts := reconciliation.DefaultOptions()
	opts.DateToleranceDays = c.DateTolerance
	opts.AmountTolerance = decimal.NewFromFloat(c.AmountTolerance)
	opts.FuzzyThreshold = c.FuzzyThreshold
	opts.FuzzyMetric = reconciliation.MetricByName(c.FuzzyMetric)
	opts.FuzzyUnbounded = c.FuzzyUnbounded
	if c.Cutoff != "" {
		cutoff, err := time.Parse("2006-01-02", c.Cutoff)
		if err != nil {
			return fmt.Errorf("invalid cutoff date %q: %w", c.Cutoff, err)
		}
		opts.CutoffDate = cutoff
	}

	logger := observability.NewLogger(config.LoggingConfig{Level: cli.LogLevel})
	engine := reconciliation.NewEngine(logger)

	result, err := engine.Reconcile(context.Background(), bank, book, opts)
	if err != nil {
		return err
	}

	if err := export.WriteResultDir(c.Out, result, bank, book); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}

	if c.DB != "" {
		if err := c.saveBatch(result, len(bank), len(book)); err != nil {
			return fmt.Errorf("saving batch: %w", err)
		}
	}

	s := result.Summary
	fmt.Printf("matched %d pairs, %d bank-only, %d book-only\n",
		len(result.Matched), len(result.BankOnly), len(result.BookOnly))
	fmt.Printf("bank total %s, book total %s, difference %s, match rate %.1f%%\n",
		s.BankTotal, s.BookTotal, s.Difference, s.MatchRate*100)
	fmt.Printf("results written to %s\n", c.Out)
	return nil
}

func (c *ReconcileCmd) saveBatch(result *models.ReconciliationResult, bankCount, bookCount int) error {
	store, err := storage.NewStorage(c.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	now := time.Now().UTC()
	return store.SaveBatch(&models.ReconciliationBatch{
		ID:          uuid.NewString(),
		BankLabel:   c.Bank,
		BookLabel:   c.Book,
		Status:      models.BatchStatusCompleted,
		BankCount:   bankCount,
		BookCount:   bookCount,
		StartedAt:   now,
		CompletedAt: &now,
		Result:      result,
	})
}

// BatchesCmd prints stored batches, most recent first.
type BatchesCmd struct {
	DB string `help:"SQLite database path." default:"recon.db"`
}

func (c *BatchesCmd) Run() error {
	store, err := storage.NewStorage(c.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	batches, err := store.ListBatches()
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Println("no batches stored")
		return nil
	}

	for _, b := range batches {
		matched := 0
		if b.Result != nil {
			matched = len(b.Result.Matched)
		}
		fmt.Printf("%s  %s  %s vs %s  %d+%d txns  %d matched\n",
			b.StartedAt.Format("2006-01-02 15:04"), b.Status,
			b.BankLabel, b.BookLabel, b.BankCount, b.BookCount, matched)
	}
	return nil
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("recon"),
		kong.Description("Bank reconciliation from CSV files."),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
