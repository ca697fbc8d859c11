package banking

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSyncLogFinalized is returned when finalizing an already completed log
var ErrSyncLogFinalized = errors.New("banking: sync log already finalized")

// SyncOutcome represents the result of one sync attempt
type SyncOutcome string

const (
	// SyncOutcomeInProgress means the sync is still running (or crashed)
	SyncOutcomeInProgress SyncOutcome = "IN_PROGRESS"
	// SyncOutcomeSuccess means every account synced cleanly
	SyncOutcomeSuccess SyncOutcome = "SUCCESS"
	// SyncOutcomePartial means some accounts synced and others failed
	SyncOutcomePartial SyncOutcome = "PARTIAL"
	// SyncOutcomeFailure means nothing from this sync was committed
	SyncOutcomeFailure SyncOutcome = "FAILURE"
)

// IsValid returns true if the outcome is valid
func (o SyncOutcome) IsValid() bool {
	switch o {
	case SyncOutcomeInProgress, SyncOutcomeSuccess, SyncOutcomePartial, SyncOutcomeFailure:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncOutcome
func (o SyncOutcome) String() string {
	return string(o)
}

// IsFinal returns true once the outcome can no longer change
func (o SyncOutcome) IsFinal() bool {
	return o != SyncOutcomeInProgress
}

// SyncLog is the immutable audit record of one sync attempt. It is created
// when the run starts, finalized exactly once when the run ends, and never
// deleted. A log stuck IN_PROGRESS with a nil CompletedAt marks a crashed run.
type SyncLog struct {
	// ID is the unique identifier of the log entry
	ID uuid.UUID
	// ConnectionID is the connection the sync ran for
	ConnectionID uuid.UUID
	// StartedAt is when the run began
	StartedAt time.Time
	// CompletedAt is when the run finished; nil if it crashed mid-flight
	CompletedAt *time.Time
	// Outcome is the final result of the run
	Outcome SyncOutcome
	// AccountsProcessed is how many external accounts the run touched
	AccountsProcessed int
	// TransactionsCreated is how many local transactions were imported
	TransactionsCreated int
	// TransactionsSkipped is how many fetched transactions were dropped as
	// duplicates or as non-deduplicable
	TransactionsSkipped int
	// ErrorDetail carries structured failure information, nil on full success
	ErrorDetail *SyncError
}

// NewSyncLog opens an audit record for a starting run
func NewSyncLog(connectionID uuid.UUID) *SyncLog {
	return &SyncLog{
		ID:           uuid.New(),
		ConnectionID: connectionID,
		StartedAt:    time.Now(),
		Outcome:      SyncOutcomeInProgress,
	}
}

// Finalize closes the log with its outcome and counters. A log can only be
// finalized once; audit records are never rewritten.
func (l *SyncLog) Finalize(outcome SyncOutcome, accounts, created, skipped int, detail *SyncError) error {
	if l.Outcome.IsFinal() {
		return ErrSyncLogFinalized
	}
	now := time.Now()
	l.CompletedAt = &now
	l.Outcome = outcome
	l.AccountsProcessed = accounts
	l.TransactionsCreated = created
	l.TransactionsSkipped = skipped
	l.ErrorDetail = detail
	return nil
}

// SyncResult is the caller-facing summary of one sync run
type SyncResult struct {
	// SyncLogID is the audit record of the run
	SyncLogID uuid.UUID `json:"sync_log_id"`
	// Outcome is SUCCESS, PARTIAL or FAILURE
	Outcome SyncOutcome `json:"outcome"`
	// AccountsProcessed is how many external accounts the run touched
	AccountsProcessed int `json:"accounts_processed"`
	// AccountsFailed is how many accounts were excluded from the change-set
	AccountsFailed int `json:"accounts_failed"`
	// TransactionsCreated is how many transactions were imported
	TransactionsCreated int `json:"transactions_created"`
	// TransactionsSkipped is how many fetched transactions were dropped
	TransactionsSkipped int `json:"transactions_skipped"`
	// Error carries structured failure detail for PARTIAL and FAILURE
	Error *SyncError `json:"error,omitempty"`
}
