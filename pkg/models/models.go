package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies which ledger a transaction came from.
type Side string

const (
	SideBank Side = "bank"
	SideBook Side = "book"
)

// Opposite returns the other ledger side.
func (s Side) Opposite() Side {
	if s == SideBank {
		return SideBook
	}
	return SideBank
}

// Valid reports whether the side is one of the two known ledgers.
func (s Side) Valid() bool {
	return s == SideBank || s == SideBook
}

// Transaction is one canonical ledger entry produced by the ingest layer.
// The engine never mutates a transaction; matching state is tracked
// internally by the strategy chain.
type Transaction struct {
	ID          string          `json:"id"`
	Side        Side            `json:"side"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Strategy identifies which matching strategy produced a pair.
type Strategy string

const (
	StrategyExact     Strategy = "exact"
	StrategyTolerance Strategy = "tolerance"
	StrategyFuzzy     Strategy = "fuzzy"
)

// MatchedPair is an accepted pairing of a bank and a book transaction.
// Pairs are immutable once emitted by the strategy chain.
type MatchedPair struct {
	BankID        string          `json:"bank_id"`
	BookID        string          `json:"book_id"`
	Strategy      Strategy        `json:"strategy"`
	Score         float64         `json:"score"`
	DateDeltaDays int             `json:"date_delta_days"`
	AmountDelta   decimal.Decimal `json:"amount_delta"`
}

// ReasonTag classifies why an unmatched item likely has no counterpart.
type ReasonTag string

const (
	ReasonFee              ReasonTag = "fee"
	ReasonTiming           ReasonTag = "timing"
	ReasonDepositInTransit ReasonTag = "deposit_in_transit"
	ReasonUnknown          ReasonTag = "unknown"
)

// UnmatchedItem is a transaction that survived the full strategy chain.
type UnmatchedItem struct {
	Transaction      *Transaction `json:"transaction"`
	ReasonTag        ReasonTag    `json:"reason_tag"`
	ReasonConfidence float64      `json:"reason_confidence"`
}

// DecisionStage names the phase that produced an audit entry.
type DecisionStage string

const (
	StageMatch          DecisionStage = "match"
	StageClassification DecisionStage = "classification"
)

// AuditEntry records one matching or classification decision. The trail is
// strictly ordered: one entry per accepted pair, one per tagged residue.
type AuditEntry struct {
	Seq           int             `json:"seq"`
	Stage         DecisionStage   `json:"stage"`
	Rule          string          `json:"rule"`
	BankID        string          `json:"bank_id,omitempty"`
	BookID        string          `json:"book_id,omitempty"`
	Score         float64         `json:"score"`
	DateDeltaDays int             `json:"date_delta_days"`
	AmountDelta   decimal.Decimal `json:"amount_delta"`
	Detail        string          `json:"detail"`
}

// ReconcileSummary compares ledger totals for a completed run.
type ReconcileSummary struct {
	BankTotal  decimal.Decimal `json:"bank_total"`
	BookTotal  decimal.Decimal `json:"book_total"`
	Difference decimal.Decimal `json:"difference"`
	MatchRate  float64         `json:"match_rate"`
}

// ReconciliationResult is the immutable output of one engine run.
// Matched pairs are ordered by bank transaction date then id; unmatched
// items by date then id within their side.
type ReconciliationResult struct {
	Matched    []MatchedPair    `json:"matched"`
	BankOnly   []UnmatchedItem  `json:"bank_only"`
	BookOnly   []UnmatchedItem  `json:"book_only"`
	AuditTrail []AuditEntry     `json:"audit_trail"`
	Summary    ReconcileSummary `json:"summary"`
}

// BatchStatus is the lifecycle state of a reconciliation batch.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
)

// ReconciliationBatch tracks one service-level reconciliation run over a
// pair of ledgers. The engine itself is stateless; batches belong to the
// service layer.
type ReconciliationBatch struct {
	ID          string                `json:"id"`
	BankLabel   string                `json:"bank_label"`
	BookLabel   string                `json:"book_label"`
	Status      BatchStatus           `json:"status"`
	BankCount   int                   `json:"bank_count"`
	BookCount   int                   `json:"book_count"`
	Error       string                `json:"error,omitempty"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Result      *ReconciliationResult `json:"result,omitempty"`
}
