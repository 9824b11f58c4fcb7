package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pandawa-stack/ai-bank-recon/pkg/models"
)

// Storage provides SQLite persistence for reconciliation batches.
// It implements the Repository interface.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS batches (
	id            TEXT PRIMARY KEY,
	bank_label    TEXT NOT NULL,
	book_label    TEXT NOT NULL,
	status        TEXT NOT NULL,
	bank_count    INTEGER NOT NULL,
	book_count    INTEGER NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	started_at    TEXT NOT NULL,
	completed_at  TEXT,
	result_json   TEXT
);
CREATE INDEX IF NOT EXISTS idx_batches_started_at ON batches(started_at);
`

// NewStorage opens the SQLite database at dbPath and ensures the schema.
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveBatch inserts or replaces a batch row. The full result, when present,
// is stored as a JSON blob.
func (s *Storage) SaveBatch(batch *models.ReconciliationBatch) error {
	var resultJSON sql.NullString
	if batch.Result != nil {
		data, err := json.Marshal(batch.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}

	var completedAt sql.NullString
	if batch.CompletedAt != nil {
		completedAt = sql.NullString{String: batch.CompletedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	query := `
	INSERT OR REPLACE INTO batches
	(id, bank_label, book_label, status, bank_count, book_count,
	 error_message, started_at, completed_at, result_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		batch.ID,
		batch.BankLabel,
		batch.BookLabel,
		string(batch.Status),
		batch.BankCount,
		batch.BookCount,
		batch.Error,
		batch.StartedAt.UTC().Format(time.RFC3339Nano),
		completedAt,
		resultJSON,
	)
	return err
}

// GetBatch retrieves a batch by id, including its stored result.
func (s *Storage) GetBatch(id string) (*models.ReconciliationBatch, error) {
	query := `
	SELECT id, bank_label, book_label, status, bank_count, book_count,
	       error_message, started_at, completed_at, result_json
	FROM batches WHERE id = ?
	`
	batch, err := scanBatch(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return batch, err
}

// ListBatches returns all stored batches, most recent first. Results are
// included so a restarted server can serve historical batches.
func (s *Storage) ListBatches() ([]*models.ReconciliationBatch, error) {
	query := `
	SELECT id, bank_label, book_label, status, bank_count, book_count,
	       error_message, started_at, completed_at, result_json
	FROM batches
	ORDER BY started_at DESC, id ASC
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var batches []*models.ReconciliationBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*models.ReconciliationBatch, error) {
	batch := &models.ReconciliationBatch{}
	var status, startedAt string
	var completedAt, resultJSON sql.NullString

	err := row.Scan(
		&batch.ID,
		&batch.BankLabel,
		&batch.BookLabel,
		&status,
		&batch.BankCount,
		&batch.BookCount,
		&batch.Error,
		&startedAt,
		&completedAt,
		&resultJSON,
	)
	if err != nil {
		return nil, err
	}

	batch.Status = models.BatchStatus(status)
	if batch.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		batch.CompletedAt = &t
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result models.ReconciliationResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		batch.Result = &result
	}
	return batch, nil
}
