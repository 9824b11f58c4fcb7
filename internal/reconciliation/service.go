package reconciliation

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pandawa-stack/ai-bank-recon/pkg/models"
)

// Service owns reconciliation batches. Each batch keeps its own transaction
// copies and produces an independent result, so batches may run in parallel
// without coordination beyond the bookkeeping mutex here.
type Service struct {
	engine *Engine
	logger *slog.Logger

	mu      sync.RWMutex
	batches map[string]*batchState
}

type batchState struct {
	batch *models.ReconciliationBatch
	bank  []*models.Transaction
	book  []*models.Transaction
	opts  Options
}

// NewService creates a batch service around an engine.
func NewService(engine *Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:  engine,
		logger:  logger,
		batches: make(map[string]*batchState),
	}
}

// CreateBatch registers a pending batch over the given ledgers.
func (s *Service) CreateBatch(bankLabel, bookLabel string, bank, book []*models.Transaction, opts Options) *models.ReconciliationBatch {
	batch := &models.ReconciliationBatch{
		ID:        uuid.NewString(),
		BankLabel: bankLabel,
		BookLabel: bookLabel,
		Status:    models.BatchStatusPending,
		BankCount: len(bank),
		BookCount: len(book),
		StartedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.batches[batch.ID] = &batchState{batch: batch, bank: bank, book: book, opts: opts}
	s.mu.Unlock()

	s.logger.Info("batch created", "batch_id", batch.ID, "bank", len(bank), "book", len(book))
	return snapshotBatch(batch)
}

// Run executes a pending batch. A batch runs at most once; the result is
// immutable after completion.
func (s *Service) Run(ctx context.Context, id string) (*models.ReconciliationBatch, error) {
	s.mu.Lock()
	state, ok := s.batches[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrBatchNotFound
	}
	if state.batch.Status != models.BatchStatusPending {
		s.mu.Unlock()
		return nil, ErrBatchNotRunnable
	}
	state.batch.Status = models.BatchStatusRunning
	bank, book, opts := state.bank, state.book, state.opts
	s.mu.Unlock()

	result, err := s.engine.Reconcile(ctx, bank, book, opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	state.batch.CompletedAt = &now
	if err != nil {
		state.batch.Status = models.BatchStatusFailed
		state.batch.Error = err.Error()
		s.logger.Error("batch failed", "batch_id", id, "error", err)
		return snapshotBatch(state.batch), err
	}
	state.batch.Status = models.BatchStatusCompleted
	state.batch.Result = result
	return snapshotBatch(state.batch), nil
}

// Get returns a batch by id.
func (s *Service) Get(id string) (*models.ReconciliationBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return snapshotBatch(state.batch), nil
}

// List returns all batches, most recent first.
func (s *Service) List() []*models.ReconciliationBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ReconciliationBatch, 0, len(s.batches))
	for _, state := range s.batches {
		out = append(out, snapshotBatch(state.batch))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Exceptions returns a completed batch's unmatched items, bank side first.
func (s *Service) Exceptions(id string) ([]models.UnmatchedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	if state.batch.Result == nil {
		return nil, nil
	}
	items := make([]models.UnmatchedItem, 0,
		len(state.batch.Result.BankOnly)+len(state.batch.Result.BookOnly))
	items = append(items, state.batch.Result.BankOnly...)
	items = append(items, state.batch.Result.BookOnly...)
	return items, nil
}

// Stats aggregates across all batches.
func (s *Service) Stats() *ServiceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &ServiceStats{ByStatus: make(map[string]int)}
	for _, state := range s.batches {
		stats.TotalBatches++
		stats.ByStatus[string(state.batch.Status)]++
		if r := state.batch.Result; r != nil {
			stats.TotalMatched += len(r.Matched)
			stats.TotalUnmatched += len(r.BankOnly) + len(r.BookOnly)
			stats.TotalTransactions += state.batch.BankCount + state.batch.BookCount
		}
	}
	if stats.TotalTransactions > 0 {
		stats.OverallMatchRate = float64(stats.TotalMatched*2) / float64(stats.TotalTransactions)
	}
	return stats
}

// ServiceStats aggregates reconciliation activity.
type ServiceStats struct {
	TotalBatches      int            `json:"total_batches"`
	TotalTransactions int            `json:"total_transactions"`
	TotalMatched      int            `json:"total_matched"`
	TotalUnmatched    int            `json:"total_unmatched"`
	OverallMatchRate  float64        `json:"overall_match_rate"`
	ByStatus          map[string]int `json:"by_status"`
}

// snapshotBatch copies the batch header so callers cannot race the service
// bookkeeping. The result itself is immutable and shared.
func snapshotBatch(b *models.ReconciliationBatch) *models.ReconciliationBatch {
	copied := *b
	return &copied
}
