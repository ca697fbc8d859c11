package banking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConnectionRepository defines the interface for banking connection persistence
type ConnectionRepository interface {
	// Save creates or updates a connection
	Save(ctx context.Context, connection *BankingConnection) error

	// FindByID finds a connection by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*BankingConnection, error)

	// FindByExternalID finds a connection by provider and external connection ID
	FindByExternalID(ctx context.Context, provider ProviderCode, externalID string) (*BankingConnection, error)

	// FindByOwner finds all connections belonging to an owner
	FindByOwner(ctx context.Context, owner Owner, filter ConnectionFilter) ([]*BankingConnection, int64, error)

	// FindPendingBefore finds PENDING connections initiated before the cutoff
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*BankingConnection, error)

	// FindConsentLapsed finds non-terminal connections whose consent expired before now
	FindConsentLapsed(ctx context.Context, now time.Time, limit int) ([]*BankingConnection, error)

	// FindSyncDue finds syncable connections not synced since the cutoff,
	// never-synced ones included
	FindSyncDue(ctx context.Context, cutoff time.Time, limit int) ([]*BankingConnection, error)
}

// LinkedAccountRepository defines the interface for linked account persistence
type LinkedAccountRepository interface {
	// Save creates or updates a linked account
	Save(ctx context.Context, account *LinkedAccount) error

	// SaveBatch creates or updates multiple linked accounts
	SaveBatch(ctx context.Context, accounts []*LinkedAccount) error

	// FindByID finds a linked account by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*LinkedAccount, error)

	// FindByConnectionID finds all linked accounts of a connection
	FindByConnectionID(ctx context.Context, connectionID uuid.UUID) ([]*LinkedAccount, error)

	// DeleteByConnectionID removes all bindings of a connection. Local
	// accounts and their transactions are untouched.
	DeleteByConnectionID(ctx context.Context, connectionID uuid.UUID) error
}

// SyncLogRepository defines the interface for sync log persistence.
// Finalized logs are immutable; Update exists only to finalize an
// IN_PROGRESS row.
type SyncLogRepository interface {
	// Create persists a new sync log
	Create(ctx context.Context, log *SyncLog) error

	// Update persists the finalized state of a sync log
	Update(ctx context.Context, log *SyncLog) error

	// FindByID finds a sync log by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*SyncLog, error)

	// FindByConnectionID finds sync logs of a connection, newest first
	FindByConnectionID(ctx context.Context, connectionID uuid.UUID, page, pageSize int) ([]*SyncLog, int64, error)

	// FindLatestByConnectionID finds the most recent sync log of a connection
	FindLatestByConnectionID(ctx context.Context, connectionID uuid.UUID) (*SyncLog, error)
}

// ExternalTransactionRefRepository defines the interface for import
// fingerprint persistence
type ExternalTransactionRefRepository interface {
	// CreateBatch persists multiple refs
	CreateBatch(ctx context.Context, refs []ExternalTransactionRef) error

	// FindByLocalAccountIDs finds all refs for the given local accounts
	FindByLocalAccountIDs(ctx context.Context, localAccountIDs []uuid.UUID) ([]ExternalTransactionRef, error)
}

// ---------------------------------------------------------------------------
// Collaborator ports
// ---------------------------------------------------------------------------

// Ledger is the write surface of the generic account/transaction store that
// imported data lands in. Implementations mark created records as imported so
// the rest of the system can distinguish them from manual entries.
type Ledger interface {
	// CreateAccount creates a local account for the owner and returns its ID
	CreateAccount(ctx context.Context, owner Owner, name, currency string, balance decimal.Decimal) (uuid.UUID, error)

	// UpdateAccountBalance sets the current balance of a local account
	UpdateAccountBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) error

	// CreateTransaction creates a local transaction from an imported external
	// one and returns its ID
	CreateTransaction(ctx context.Context, accountID uuid.UUID, external ExternalTransaction) (uuid.UUID, error)
}

// TxRepositories bundles the ports bound to one database transaction
type TxRepositories struct {
	Connections    ConnectionRepository
	LinkedAccounts LinkedAccountRepository
	SyncLogs       SyncLogRepository
	Refs           ExternalTransactionRefRepository
	Ledger         Ledger
}

// UnitOfWork runs a function against transaction-scoped repositories. The
// function's error rolls everything back; nil commits.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}

// ReleaseFunc releases a held sync lock. Safe to call once; errors are
// advisory since the lease expires on its own.
type ReleaseFunc func(ctx context.Context) error

// SyncLock serializes syncs per connection. Acquire fails fast with
// ErrSyncAlreadyInProgress when another sync holds the lease; it never
// blocks waiting for release.
type SyncLock interface {
	Acquire(ctx context.Context, connectionID uuid.UUID, ttl time.Duration) (ReleaseFunc, error)
}
