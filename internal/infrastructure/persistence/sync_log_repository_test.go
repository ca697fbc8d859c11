package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fintrack/backend/internal/domain/banking"
	"github.com/fintrack/backend/internal/domain/shared"
)

func newMockSyncLogRepository(t *testing.T) (*GormSyncLogRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormSyncLogRepository(gormDB), mock, mockDB
}

func syncLogColumns() []string {
	return []string{
		"id", "connection_id", "started_at", "completed_at", "outcome",
		"accounts_processed", "transactions_created", "transactions_skipped",
		"error_detail",
	}
}

func TestGormSyncLogRepository_Create(t *testing.T) {
	t.Run("creates in-progress log", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncLogRepository(t)
		defer mockDB.Close()

		log := banking.NewSyncLog(uuid.New())

		mock.ExpectExec(`INSERT INTO "sync_logs"`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(context.Background(), log)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormSyncLogRepository_Update(t *testing.T) {
	t.Run("persists finalized log", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncLogRepository(t)
		defer mockDB.Close()

		log := banking.NewSyncLog(uuid.New())
		require.NoError(t, log.Finalize(banking.SyncOutcomeSuccess, 2, 10, 3, nil))

		mock.ExpectExec(`UPDATE "sync_logs" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Update(context.Background(), log)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found when no row updated", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncLogRepository(t)
		defer mockDB.Close()

		log := banking.NewSyncLog(uuid.New())

		mock.ExpectExec(`UPDATE "sync_logs" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Update(context.Background(), log)

		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormSyncLogRepository_FindByConnectionID(t *testing.T) {
	t.Run("pages logs newest first", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncLogRepository(t)
		defer mockDB.Close()

		connID := uuid.New()
		now := time.Now()
		completed := now.Add(time.Minute)

		mock.ExpectQuery(`SELECT count\(\*\) FROM "sync_logs" WHERE connection_id = \$1`).
			WithArgs(connID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		rows := sqlmock.NewRows(syncLogColumns()).
			AddRow(uuid.New(), connID, now, completed, "SUCCESS", 2, 10, 3, "").
			AddRow(uuid.New(), connID, now.Add(-time.Hour), now.Add(-time.Hour), "FAILURE", 0, 0, 0,
				`{"code":"PROVIDER_UNAVAILABLE","message":"banking: provider temporarily unavailable","occurred_at":"2026-08-01T00:00:00Z"}`)

		mock.ExpectQuery(`SELECT \* FROM "sync_logs" WHERE connection_id = \$1 ORDER BY started_at DESC LIMIT .*`).
			WithArgs(connID, 10).
			WillReturnRows(rows)

		logs, total, err := repo.FindByConnectionID(context.Background(), connID, 1, 10)

		assert.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, logs, 2)
		assert.Equal(t, banking.SyncOutcomeSuccess, logs[0].Outcome)
		require.NotNil(t, logs[1].ErrorDetail)
		assert.Equal(t, "PROVIDER_UNAVAILABLE", logs[1].ErrorDetail.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormSyncLogRepository_FindLatestByConnectionID(t *testing.T) {
	t.Run("returns not found without logs", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncLogRepository(t)
		defer mockDB.Close()

		connID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "sync_logs" WHERE connection_id = \$1 ORDER BY started_at DESC,.* LIMIT .*`).
			WithArgs(connID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		log, err := repo.FindLatestByConnectionID(context.Background(), connID)

		assert.Nil(t, log)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
