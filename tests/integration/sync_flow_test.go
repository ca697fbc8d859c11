package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appbanking "github.com/fintrack/backend/internal/application/banking"
	"github.com/fintrack/backend/internal/domain/banking"
	"github.com/fintrack/backend/internal/infrastructure/lock"
	"github.com/fintrack/backend/internal/infrastructure/persistence"
	"github.com/fintrack/backend/internal/infrastructure/providers"
)

// bankingStack wires the application services over a real database, the
// sandbox provider and an in-process sync lock
type bankingStack struct {
	connRepo     *persistence.GormConnectionRepository
	linkService  *appbanking.LinkService
	orchestrator *appbanking.SyncOrchestrator
	sweeper      *appbanking.ConnectionSweeper
}

func newBankingStack(t *testing.T, tdb *TestDB) *bankingStack {
	t.Helper()

	connRepo := persistence.NewGormConnectionRepository(tdb.DB)
	linkedRepo := persistence.NewGormLinkedAccountRepository(tdb.DB)
	syncLogRepo := persistence.NewGormSyncLogRepository(tdb.DB)
	refRepo := persistence.NewGormExternalTransactionRefRepository(tdb.DB)
	uow := persistence.NewGormUnitOfWork(tdb.DB)

	registry := providers.NewRegistry()
	registry.Register(providers.NewSandboxAdapter(banking.ProviderCodeSaltEdge))

	log := zap.NewNop()
	linkService := appbanking.NewLinkService(connRepo, linkedRepo, syncLogRepo, registry, log)
	orchestrator := appbanking.NewSyncOrchestrator(
		connRepo, linkedRepo, syncLogRepo, refRepo, registry,
		lock.NewInMemorySyncLock(), uow,
		appbanking.SyncConfig{
			Timeout:         time.Minute,
			LockTTL:         time.Minute,
			LookbackOverlap: 3 * 24 * time.Hour,
			InitialLookback: 7 * 24 * time.Hour,
		}, log)
	sweeper := appbanking.NewConnectionSweeper(connRepo, appbanking.SweepConfig{
		PendingWindow: time.Hour,
		BatchSize:     100,
	}, log)

	return &bankingStack{
		connRepo:     connRepo,
		linkService:  linkService,
		orchestrator: orchestrator,
		sweeper:      sweeper,
	}
}

// TestSyncFlow walks the whole connection lifecycle against PostgreSQL: link,
// authorize, initial sync, idempotent re-sync, revoke.
func TestSyncFlow(t *testing.T) {
	tdb := NewTestDB(t)
	stack := newBankingStack(t, tdb)
	ctx := context.Background()
	owner := banking.UserOwner(uuid.New())

	// Link initiation creates a PENDING connection with a consent URL
	created, err := stack.linkService.InitiateLink(ctx, owner, appbanking.InitiateLinkRequest{
		Provider:  "SALTEDGE",
		ReturnURL: "https://app.fintrack.local/settings/banks",
	})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", created.Status)
	assert.NotEmpty(t, created.RedirectURL)

	// Completing the callback authorizes the connection
	authorized, err := stack.linkService.CompleteLink(ctx, owner, created.ID, banking.CallbackParams{})
	require.NoError(t, err)
	assert.Equal(t, "AUTHORIZED", authorized.Status)
	require.NotNil(t, authorized.ExpiresAt)
	assert.True(t, authorized.ExpiresAt.After(time.Now()))

	// Initial sync imports both sandbox accounts and their backlog
	result, err := stack.orchestrator.SyncConnection(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, banking.SyncOutcomeSuccess, result.Outcome)
	assert.Equal(t, 2, result.AccountsProcessed)
	assert.Zero(t, result.AccountsFailed)
	assert.Positive(t, result.TransactionsCreated)
	assert.Zero(t, result.TransactionsSkipped)

	conn, err := stack.connRepo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, banking.ConnectionStatusActive, conn.Status)
	require.NotNil(t, conn.LastSyncedAt)

	accounts, err := stack.linkService.ListLinkedAccounts(ctx, owner, created.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	for _, a := range accounts {
		assert.NotEqual(t, uuid.Nil, a.LocalAccountID)
		assert.Equal(t, "EUR", a.Currency)
	}

	// Every imported transaction landed in the ledger with a fingerprint
	assert.Equal(t, int64(2), tdb.Count("accounts"))
	assert.Equal(t, int64(result.TransactionsCreated), tdb.Count("transactions"))
	assert.Equal(t, int64(result.TransactionsCreated), tdb.Count("external_transaction_refs"))

	// Re-syncing only refetches the overlap window and dedups everything
	second, err := stack.orchestrator.SyncConnection(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, banking.SyncOutcomeSuccess, second.Outcome)
	assert.Zero(t, second.TransactionsCreated)
	assert.Positive(t, second.TransactionsSkipped)
	assert.Equal(t, int64(result.TransactionsCreated), tdb.Count("transactions"))

	logs, total, err := stack.linkService.ListSyncLogs(ctx, owner, created.ID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, logs, 2)
	assert.Equal(t, "SUCCESS", logs[0].Outcome)

	// Revoking drops the account bindings but keeps imported data
	revoked, err := stack.linkService.RevokeConnection(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "REVOKED", revoked.Status)
	assert.Zero(t, tdb.Count("linked_accounts"))
	assert.Equal(t, int64(result.TransactionsCreated), tdb.Count("transactions"))

	// A revoked connection can never sync again
	_, err = stack.orchestrator.SyncConnection(ctx, owner, created.ID)
	assert.ErrorIs(t, err, banking.ErrConnectionNotSyncable)
}

// TestSyncFlow_OwnerIsolation checks that another user can neither see nor
// act on a connection they do not own.
func TestSyncFlow_OwnerIsolation(t *testing.T) {
	tdb := NewTestDB(t)
	stack := newBankingStack(t, tdb)
	ctx := context.Background()
	owner := banking.UserOwner(uuid.New())
	stranger := banking.UserOwner(uuid.New())

	created, err := stack.linkService.InitiateLink(ctx, owner, appbanking.InitiateLinkRequest{Provider: "SALTEDGE"})
	require.NoError(t, err)

	_, err = stack.linkService.GetConnection(ctx, stranger, created.ID)
	assert.ErrorIs(t, err, banking.ErrConnectionNotFound)

	_, err = stack.orchestrator.SyncConnection(ctx, stranger, created.ID)
	assert.ErrorIs(t, err, banking.ErrConnectionNotFound)

	_, err = stack.linkService.RevokeConnection(ctx, stranger, created.ID)
	assert.ErrorIs(t, err, banking.ErrConnectionNotFound)

	conns, total, err := stack.linkService.ListConnections(ctx, stranger, banking.ConnectionFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, conns)
}

// TestSyncFlow_DeletedTransactionReimports checks that a fingerprint follows
// its transaction: deleting an imported transaction cascades the fingerprint
// away, and the next sync imports the transaction again.
func TestSyncFlow_DeletedTransactionReimports(t *testing.T) {
	tdb := NewTestDB(t)
	stack := newBankingStack(t, tdb)
	ctx := context.Background()
	owner := banking.UserOwner(uuid.New())

	created, err := stack.linkService.InitiateLink(ctx, owner, appbanking.InitiateLinkRequest{Provider: "SALTEDGE"})
	require.NoError(t, err)
	_, err = stack.linkService.CompleteLink(ctx, owner, created.ID, banking.CallbackParams{})
	require.NoError(t, err)

	first, err := stack.orchestrator.SyncConnection(ctx, owner, created.ID)
	require.NoError(t, err)
	imported := int64(first.TransactionsCreated)
	require.Equal(t, imported, tdb.Count("external_transaction_refs"))

	// The user deletes the most recently imported transaction
	res := tdb.DB.Exec(`DELETE FROM transactions WHERE id = (SELECT id FROM transactions ORDER BY made_on DESC LIMIT 1)`)
	require.NoError(t, res.Error)
	require.EqualValues(t, 1, res.RowsAffected)
	assert.Equal(t, imported-1, tdb.Count("external_transaction_refs"))

	// With the fingerprint gone the next sync re-imports exactly that one
	second, err := stack.orchestrator.SyncConnection(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, banking.SyncOutcomeSuccess, second.Outcome)
	assert.Equal(t, 1, second.TransactionsCreated)
	assert.Equal(t, imported, tdb.Count("transactions"))
	assert.Equal(t, imported, tdb.Count("external_transaction_refs"))
}

// TestSweeper_AgainstDatabase exercises both sweep passes over real rows.
func TestSweeper_AgainstDatabase(t *testing.T) {
	tdb := NewTestDB(t)
	stack := newBankingStack(t, tdb)
	ctx := context.Background()
	owner := banking.UserOwner(uuid.New())

	// A stale PENDING link, older than the sweep window
	stale, err := banking.NewBankingConnection(owner, banking.ProviderCodeSaltEdge)
	require.NoError(t, err)
	stale.CreatedAt = time.Now().Add(-2 * time.Hour)
	stale.UpdatedAt = stale.CreatedAt
	require.NoError(t, stack.connRepo.Save(ctx, stale))

	// An ACTIVE connection whose consent lapsed
	lapsed, err := banking.NewBankingConnection(owner, banking.ProviderCodeSaltEdge)
	require.NoError(t, err)
	require.NoError(t, lapsed.AttachExternalID("ext-lapsed", "https://consent.example"))
	expired := time.Now().Add(-24 * time.Hour)
	require.NoError(t, lapsed.Authorize(&expired))
	require.NoError(t, lapsed.Activate())
	require.NoError(t, stack.connRepo.Save(ctx, lapsed))

	swept, err := stack.sweeper.SweepStalePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	lapsedSwept, err := stack.sweeper.SweepLapsedConsents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, lapsedSwept)

	found, err := stack.connRepo.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, banking.ConnectionStatusRevoked, found.Status)

	found, err = stack.connRepo.FindByID(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, banking.ConnectionStatusExpired, found.Status)
}
