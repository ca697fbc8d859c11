package banking

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fintrack/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// LinkedAccount
// ---------------------------------------------------------------------------

// AccountSyncStatus represents the per-account sync state
type AccountSyncStatus string

const (
	// AccountSyncIdle means no sync is running for the account
	AccountSyncIdle AccountSyncStatus = "IDLE"
	// AccountSyncRunning means a sync is currently touching the account
	AccountSyncRunning AccountSyncStatus = "SYNCING"
	// AccountSyncError means the last sync left the account in error
	AccountSyncError AccountSyncStatus = "ERROR"
)

// IsValid returns true if the status is valid
func (s AccountSyncStatus) IsValid() bool {
	switch s {
	case AccountSyncIdle, AccountSyncRunning, AccountSyncError:
		return true
	default:
		return false
	}
}

// String returns the string representation of AccountSyncStatus
func (s AccountSyncStatus) String() string {
	return string(s)
}

// LinkedAccount binds an account discovered through a BankingConnection to a
// local Account record. The local Account itself is owned by the generic
// account subsystem; this row only carries the binding and sync bookkeeping.
// It is deleted when the connection is revoked while the local Account and
// its transactions are preserved.
type LinkedAccount struct {
	shared.BaseEntity
	// ConnectionID is the owning connection
	ConnectionID uuid.UUID
	// LocalAccountID is the bound record in the generic account store
	LocalAccountID uuid.UUID
	// ExternalAccountID is the provider-assigned account identifier,
	// unique within the connection
	ExternalAccountID string
	// Name is the account display name at link time
	Name string
	// Currency is the ISO 4217 currency the account is expected to report in
	Currency string
	// CurrentBalance is the balance from the last sync
	CurrentBalance decimal.Decimal
	// SyncStatus is the per-account sync state
	SyncStatus AccountSyncStatus
	// LastSyncedAt is when the account last completed a sync
	LastSyncedAt *time.Time
}

// NewLinkedAccount creates a binding for a freshly discovered external account
func NewLinkedAccount(connectionID, localAccountID uuid.UUID, ext ExternalAccount) *LinkedAccount {
	return &LinkedAccount{
		BaseEntity:        shared.NewBaseEntity(),
		ConnectionID:      connectionID,
		LocalAccountID:    localAccountID,
		ExternalAccountID: ext.ExternalAccountID,
		Name:              ext.Name,
		Currency:          ext.Currency,
		CurrentBalance:    ext.Balance,
		SyncStatus:        AccountSyncIdle,
	}
}

// ApplyBalance records a new balance after a sync
func (a *LinkedAccount) ApplyBalance(balance decimal.Decimal, at time.Time) {
	a.CurrentBalance = balance
	a.LastSyncedAt = &at
	a.SyncStatus = AccountSyncIdle
	a.Touch()
}

// ---------------------------------------------------------------------------
// ExternalTransactionRef
// ---------------------------------------------------------------------------

// Fingerprint is the (localAccountID, externalTransactionID) pair that
// uniquely identifies an imported transaction. Exact match only; fuzzy
// matching would silently merge distinct transactions.
type Fingerprint struct {
	LocalAccountID        uuid.UUID
	ExternalTransactionID string
}

// ExternalTransactionRef maps an imported provider transaction to the local
// Transaction it created. The unique fingerprint is the sole mechanism
// preventing duplicate imports across repeated syncs. Created atomically with
// its Transaction; never updated; removed only when the transaction is
// deleted (cascade).
type ExternalTransactionRef struct {
	// LocalAccountID is the account the transaction was imported into
	LocalAccountID uuid.UUID
	// ExternalTransactionID is the provider-assigned transaction identifier
	ExternalTransactionID string
	// LocalTransactionID is the transaction created by the import
	LocalTransactionID uuid.UUID
	// CreatedAt is when the ref was written
	CreatedAt time.Time
}

// FingerprintOf returns the dedup key of the ref
func (r ExternalTransactionRef) FingerprintOf() Fingerprint {
	return Fingerprint{
		LocalAccountID:        r.LocalAccountID,
		ExternalTransactionID: r.ExternalTransactionID,
	}
}
