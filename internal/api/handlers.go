package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pandawa-stack/ai-bank-recon/internal/config"
	"github.com/pandawa-stack/ai-bank-recon/internal/ingest"
	"github.com/pandawa-stack/ai-bank-recon/internal/reconciliation"
	"github.com/pandawa-stack/ai-bank-recon/internal/storage"
	"github.com/pandawa-stack/ai-bank-recon/internal/worker"
	"github.com/pandawa-stack/ai-bank-recon/pkg/models"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	service   *reconciliation.Service
	pool      *worker.Pool
	store     storage.Repository
	engineCfg config.EngineConfig
}

// NewHandlers creates new handlers
func NewHandlers(svc *reconciliation.Service, pool *worker.Pool, store storage.Repository, engineCfg config.EngineConfig) *Handlers {
	return &Handlers{
		service:   svc,
		pool:      pool,
		store:     store,
		engineCfg: engineCfg,
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "bank-recon",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// transactionPayload is the wire form of a ledger entry. Dates accept the
// same layouts as CSV ingest.
type transactionPayload struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (p transactionPayload) toModel(side models.Side, position int) (*models.Transaction, error) {
	date, err := ingest.ParseDate(p.Date)
	if err != nil {
		return nil, fmt.Errorf("%s entry %d: %w", side, position, err)
	}
	id := p.ID
	if id == "" {
		id = fmt.Sprintf("%s-%04d", side, position)
	}
	return &models.Transaction{
		ID:          id,
		Side:        side,
		Date:        date,
		Amount:      p.Amount,
		Reference:   p.Reference,
		Description: p.Description,
	}, nil
}

type batchRequest struct {
	BankLabel string               `json:"bank_label"`
	BookLabel string               `json:"book_label"`
	Bank      []transactionPayload `json:"bank"`
	Book      []transactionPayload `json:"book"`
	Options   json.RawMessage      `json:"options,omitempty"`
}

func (h *Handlers) parseBatchRequest(r *http.Request) (*batchRequest, []*models.Transaction, []*models.Transaction, reconciliation.Options, error) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, nil, nil, reconciliation.Options{}, fmt.Errorf("invalid request body: %w", err)
	}
	if req.BankLabel == "" {
		req.BankLabel = "bank"
	}
	if req.BookLabel == "" {
		req.BookLabel = "book"
	}

	bank := make([]*models.Transaction, 0, len(req.Bank))
	for i, p := range req.Bank {
		txn, err := p.toModel(models.SideBank, i+1)
		if err != nil {
			return nil, nil, nil, reconciliation.Options{}, err
		}
		bank = append(bank, txn)
	}
	book := make([]*models.Transaction, 0, len(req.Book))
	for i, p := range req.Book {
		txn, err := p.toModel(models.SideBook, i+1)
		if err != nil {
			return nil, nil, nil, reconciliation.Options{}, err
		}
		book = append(book, txn)
	}

	// Request options override the configured defaults field by field.
	cfg := h.engineCfg
	if len(req.Options) > 0 {
		if err := json.Unmarshal(req.Options, &cfg); err != nil {
			return nil, nil, nil, reconciliation.Options{}, fmt.Errorf("invalid options: %w", err)
		}
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, nil, nil, reconciliation.Options{}, err
	}
	return &req, bank, book, opts, nil
}

// Reconcile runs the engine synchronously and returns the completed batch.
func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	_, bank, book, opts, err := h.parseBatchRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch := h.service.CreateBatch("bank", "book", bank, book, opts)
	ran, err := h.service.Run(r.Context(), batch.ID)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.persist(ran)
	respond(w, http.StatusOK, ran)
}

// CreateBatch registers a pending batch without running it.
func (h *Handlers) CreateBatch(w http.ResponseWriter, r *http.Request) {
	req, bank, book, opts, err := h.parseBatchRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch := h.service.CreateBatch(req.BankLabel, req.BookLabel, bank, book, opts)
	respond(w, http.StatusCreated, batch)
}

// RunBatch schedules a pending batch on the worker pool.
func (h *Handlers) RunBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	batch, err := h.service.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Batch not found")
		return
	}
	if batch.Status != models.BatchStatusPending {
		respondError(w, http.StatusConflict, "Batch is not runnable")
		return
	}

	err = h.pool.Submit(func() error {
		ran, err := h.service.Run(context.Background(), id)
		if ran != nil {
			h.persist(ran)
		}
		return err
	})
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "Worker queue is full")
		return
	}

	respond(w, http.StatusAccepted, map[string]string{
		"batch_id": id,
		"status":   string(models.BatchStatusRunning),
	})
}

// ListBatches lists all batches, most recent first.
func (h *Handlers) ListBatches(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.service.List())
}

// GetBatch gets a batch by ID
func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Batch not found")
		return
	}
	respond(w, http.StatusOK, batch)
}

// GetBatchResult returns the full result of a completed batch.
func (h *Handlers) GetBatchResult(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Batch not found")
		return
	}
	if batch.Result == nil {
		respondError(w, http.StatusConflict, "Batch has no result yet")
		return
	}
	respond(w, http.StatusOK, batch.Result)
}

// GetBatchExceptions returns the unmatched items of a completed batch.
func (h *Handlers) GetBatchExceptions(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Exceptions(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Batch not found")
		return
	}
	respond(w, http.StatusOK, items)
}

// GetBatchAudit returns the decision trail of a completed batch.
func (h *Handlers) GetBatchAudit(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Batch not found")
		return
	}
	if batch.Result == nil {
		respondError(w, http.StatusConflict, "Batch has no result yet")
		return
	}
	respond(w, http.StatusOK, batch.Result.AuditTrail)
}

// GetStats returns service and worker statistics.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"batches": h.service.Stats(),
		"worker":  h.pool.Stats(),
	})
}

func (h *Handlers) persist(batch *models.ReconciliationBatch) {
	if h.store == nil || batch == nil {
		return
	}
	if err := h.store.SaveBatch(batch); err != nil {
		// Persistence is best effort; the in-memory batch stays available.
		slog.Default().Error("failed to persist batch", "batch_id", batch.ID, "error", err)
	}
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respond(w, status, map[string]string{"error": message})
}
