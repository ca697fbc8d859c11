package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fintrack/backend/internal/domain/banking"
	"github.com/fintrack/backend/internal/infrastructure/persistence/models"
)

func setupUnitOfWorkTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.AccountModel{},
		&models.TransactionModel{},
		&models.BankingConnectionModel{},
		&models.LinkedAccountModel{},
		&models.SyncLogModel{},
		&models.ExternalTransactionRefModel{},
	)
	require.NoError(t, err)

	return db
}

func newTestConnection(t *testing.T) *banking.BankingConnection {
	t.Helper()
	conn, err := banking.NewBankingConnection(banking.UserOwner(uuid.New()), banking.ProviderCodeSaltEdge)
	require.NoError(t, err)
	return conn
}

func TestGormUnitOfWork_CommitsTogether(t *testing.T) {
	db := setupUnitOfWorkTestDB(t)
	uow := NewGormUnitOfWork(db)
	ctx := context.Background()

	conn := newTestConnection(t)
	syncLog := banking.NewSyncLog(conn.ID)
	ref := banking.ExternalTransactionRef{
		LocalAccountID:        uuid.New(),
		ExternalTransactionID: "tx-001",
		LocalTransactionID:    uuid.New(),
		CreatedAt:             time.Now().UTC(),
	}

	err := uow.Execute(ctx, func(ctx context.Context, repos banking.TxRepositories) error {
		if err := repos.Connections.Save(ctx, conn); err != nil {
			return err
		}
		if err := repos.SyncLogs.Create(ctx, syncLog); err != nil {
			return err
		}
		return repos.Refs.CreateBatch(ctx, []banking.ExternalTransactionRef{ref})
	})
	require.NoError(t, err)

	found, err := NewGormConnectionRepository(db).FindByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, conn.ID, found.ID)

	foundLog, err := NewGormSyncLogRepository(db).FindByID(ctx, syncLog.ID)
	require.NoError(t, err)
	assert.Equal(t, banking.SyncOutcomeInProgress, foundLog.Outcome)

	refs, err := NewGormExternalTransactionRefRepository(db).
		FindByLocalAccountIDs(ctx, []uuid.UUID{ref.LocalAccountID})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "tx-001", refs[0].ExternalTransactionID)
}

func TestGormUnitOfWork_RollsBackEverythingOnError(t *testing.T) {
	db := setupUnitOfWorkTestDB(t)
	uow := NewGormUnitOfWork(db)
	ctx := context.Background()

	conn := newTestConnection(t)
	boom := errors.New("provider fetch failed")

	err := uow.Execute(ctx, func(ctx context.Context, repos banking.TxRepositories) error {
		if err := repos.Connections.Save(ctx, conn); err != nil {
			return err
		}
		if err := repos.SyncLogs.Create(ctx, banking.NewSyncLog(conn.ID)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = NewGormConnectionRepository(db).FindByID(ctx, conn.ID)
	assert.ErrorIs(t, err, banking.ErrConnectionNotFound)

	var count int64
	require.NoError(t, db.Model(&models.SyncLogModel{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGormUnitOfWork_NestedWritesSeeUncommittedState(t *testing.T) {
	db := setupUnitOfWorkTestDB(t)
	uow := NewGormUnitOfWork(db)
	ctx := context.Background()

	conn := newTestConnection(t)

	err := uow.Execute(ctx, func(ctx context.Context, repos banking.TxRepositories) error {
		if err := repos.Connections.Save(ctx, conn); err != nil {
			return err
		}
		// The transaction-scoped repository must see the row written above
		found, err := repos.Connections.FindByID(ctx, conn.ID)
		if err != nil {
			return err
		}
		if err := found.AttachExternalID("ext-123", "https://consent.example"); err != nil {
			return err
		}
		return repos.Connections.Save(ctx, found)
	})
	require.NoError(t, err)

	found, err := NewGormConnectionRepository(db).FindByID(ctx, conn.ID)
	require.NoError(t, err)
	require.NotNil(t, found.ExternalConnectionID)
	assert.Equal(t, "ext-123", *found.ExternalConnectionID)
}
