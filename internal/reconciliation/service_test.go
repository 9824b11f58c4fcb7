package reconciliation

import (
	"context"
	"sync"
	"testing"

	"github.com/pandawa-stack/ai-bank-recon/pkg/models"
)

func newTestService() *Service {
	return NewService(NewEngine(nil), nil)
}

func TestService_BatchLifecycle(t *testing.T) {
	svc := newTestService()

	bank := []*models.Transaction{bankTxn("b1", "2024-01-05", 100, "transfer")}
	book := []*models.Transaction{bookTxn("k1", "2024-01-05", 100, "transfer")}

	batch := svc.CreateBatch("statement.csv", "ledger.csv", bank, book, DefaultOptions())
	if batch.Status != models.BatchStatusPending {
		t.Fatalf("new batch status %s, want pending", batch.Status)
	}
	if batch.BankCount != 1 || batch.BookCount != 1 {
		t.Errorf("unexpected counts: %d/%d", batch.BankCount, batch.BookCount)
	}

	ran, err := svc.Run(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ran.Status != models.BatchStatusCompleted {
		t.Errorf("status %s, want completed", ran.Status)
	}
	if ran.Result == nil || len(ran.Result.Matched) != 1 {
		t.Errorf("expected 1 matched pair in result")
	}
	if ran.CompletedAt == nil {
		t.Error("completed batch has no completion time")
	}

	// A batch runs at most once.
	if _, err := svc.Run(context.Background(), batch.ID); err != ErrBatchNotRunnable {
		t.Errorf("expected ErrBatchNotRunnable, got %v", err)
	}
}

func TestService_RunUnknownBatch(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Run(context.Background(), "nope"); err != ErrBatchNotFound {
		t.Errorf("expected ErrBatchNotFound, got %v", err)
	}
	if _, err := svc.Get("nope"); err != ErrBatchNotFound {
		t.Errorf("expected ErrBatchNotFound, got %v", err)
	}
}

func TestService_FailedValidationMarksBatch(t *testing.T) {
	svc := newTestService()

	bad := []*models.Transaction{txn("", models.SideBank, "2024-01-05", 1, "no id")}
	batch := svc.CreateBatch("bank", "book", bad, nil, DefaultOptions())

	if _, err := svc.Run(context.Background(), batch.ID); err == nil {
		t.Fatal("expected validation error")
	}
	got, err := svc.Get(batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.BatchStatusFailed {
		t.Errorf("status %s, want failed", got.Status)
	}
	if got.Error == "" {
		t.Error("failed batch carries no error message")
	}
}

func TestService_Exceptions(t *testing.T) {
	svc := newTestService()

	bank := []*models.Transaction{
		bankTxn("b1", "2024-01-05", 100, "transfer"),
		bankTxn("b2", "2024-01-06", -4, "monthly fee"),
	}
	book := []*models.Transaction{
		bookTxn("k1", "2024-01-05", 100, "transfer"),
		bookTxn("k2", "2024-01-20", 777, "supplier"),
	}

	batch := svc.CreateBatch("bank", "book", bank, book, DefaultOptions())
	if _, err := svc.Run(context.Background(), batch.ID); err != nil {
		t.Fatal(err)
	}

	items, err := svc.Exceptions(batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 exceptions, got %d", len(items))
	}
	// Bank side first.
	if items[0].Transaction.Side != models.SideBank || items[1].Transaction.Side != models.SideBook {
		t.Errorf("exceptions not ordered bank-first: %s, %s",
			items[0].Transaction.Side, items[1].Transaction.Side)
	}
}

func TestService_ParallelBatches(t *testing.T) {
	svc := newTestService()

	const n = 8
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		bank := []*models.Transaction{bankTxn("b1", "2024-01-05", 100, "transfer")}
		book := []*models.Transaction{bookTxn("k1", "2024-01-05", 100, "transfer")}
		ids[i] = svc.CreateBatch("bank", "book", bank, book, DefaultOptions()).ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := svc.Run(context.Background(), id); err != nil {
				t.Errorf("parallel run failed: %v", err)
			}
		}(id)
	}
	wg.Wait()

	stats := svc.Stats()
	if stats.TotalBatches != n {
		t.Errorf("stats report %d batches, want %d", stats.TotalBatches, n)
	}
	if stats.TotalMatched != n {
		t.Errorf("stats report %d matches, want %d", stats.TotalMatched, n)
	}
	if stats.ByStatus[string(models.BatchStatusCompleted)] != n {
		t.Errorf("expected all batches completed: %+v", stats.ByStatus)
	}
}
