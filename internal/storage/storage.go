// Package storage persists completed reconciliation batches in SQLite.
package storage

import (
	"errors"

	"github.com/pandawa-stack/ai-bank-recon/pkg/models"
)

// ErrNotFound is returned when a batch id has no stored row.
var ErrNotFound = errors.New("batch not found")

// Repository is the persistence surface used by the service and CLI.
type Repository interface {
	SaveBatch(batch *models.ReconciliationBatch) error
	GetBatch(id string) (*models.ReconciliationBatch, error)
	ListBatches() ([]*models.ReconciliationBatch, error)
	Close() error
}
