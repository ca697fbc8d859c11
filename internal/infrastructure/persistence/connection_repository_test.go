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
)

// newMockConnectionRepository creates a GormConnectionRepository with a mocked SQL connection
func newMockConnectionRepository(t *testing.T) (*GormConnectionRepository, sqlmock.Sqlmock, *sql.DB) {
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

	return NewGormConnectionRepository(gormDB), mock, mockDB
}

func connectionColumns() []string {
	return []string{
		"id", "created_at", "updated_at", "version",
		"user_id", "family_id", "provider", "external_connection_id",
		"status", "redirect_url", "authorized_at", "expires_at",
		"last_synced_at", "last_sync_error",
	}
}

func TestGormConnectionRepository_FindByID(t *testing.T) {
	t.Run("finds existing connection", func(t *testing.T) {
		repo, mock, mockDB := newMockConnectionRepository(t)
		defer mockDB.Close()

		connID := uuid.New()
		userID := uuid.New()
		extID := "se-conn-1"
		now := time.Now()

		rows := sqlmock.NewRows(connectionColumns()).
			AddRow(connID, now, now, 1, userID, nil, "SALTEDGE", extID,
				"ACTIVE", "", now, nil, now, `{"code":"PARTIAL_SYNC","message":"1 account failed","occurred_at":"2026-08-01T00:00:00Z"}`)

		mock.ExpectQuery(`SELECT \* FROM "banking_connections" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(connID, 1).
			WillReturnRows(rows)

		conn, err := repo.FindByID(context.Background(), connID)

		assert.NoError(t, err)
		require.NotNil(t, conn)
		assert.Equal(t, connID, conn.ID)
		assert.Equal(t, banking.ConnectionStatusActive, conn.Status)
		assert.True(t, conn.Owner.IsUser())
		require.NotNil(t, conn.LastSyncError)
		assert.Equal(t, "PARTIAL_SYNC", conn.LastSyncError.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns domain error for missing connection", func(t *testing.T) {
		repo, mock, mockDB := newMockConnectionRepository(t)
		defer mockDB.Close()

		connID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "banking_connections" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(connID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		conn, err := repo.FindByID(context.Background(), connID)

		assert.Nil(t, conn)
		assert.ErrorIs(t, err, banking.ErrConnectionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormConnectionRepository_FindByExternalID(t *testing.T) {
	t.Run("finds connection by provider and external ID", func(t *testing.T) {
		repo, mock, mockDB := newMockConnectionRepository(t)
		defer mockDB.Close()

		connID := uuid.New()
		familyID := uuid.New()
		now := time.Now()

		rows := sqlmock.NewRows(connectionColumns()).
			AddRow(connID, now, now, 1, nil, familyID, "SALTEDGE", "se-conn-9",
				"AUTHORIZED", "", now, nil, nil, "")

		mock.ExpectQuery(`SELECT \* FROM "banking_connections" WHERE provider = \$1 AND external_connection_id = \$2 ORDER BY .* LIMIT .*`).
			WithArgs("SALTEDGE", "se-conn-9", 1).
			WillReturnRows(rows)

		conn, err := repo.FindByExternalID(context.Background(), banking.ProviderCodeSaltEdge, "se-conn-9")

		assert.NoError(t, err)
		require.NotNil(t, conn)
		assert.False(t, conn.Owner.IsUser())
		assert.Nil(t, conn.LastSyncError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormConnectionRepository_FindByOwner(t *testing.T) {
	t.Run("filters by user and status", func(t *testing.T) {
		repo, mock, mockDB := newMockConnectionRepository(t)
		defer mockDB.Close()

		userID := uuid.New()
		status := banking.ConnectionStatusActive
		now := time.Now()

		mock.ExpectQuery(`SELECT count\(\*\) FROM "banking_connections" WHERE user_id = \$1 AND status = \$2`).
			WithArgs(userID, status).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		rows := sqlmock.NewRows(connectionColumns()).
			AddRow(uuid.New(), now, now, 1, userID, nil, "TINK", "tink-1",
				"ACTIVE", "", now, nil, now, "")

		mock.ExpectQuery(`SELECT \* FROM "banking_connections" WHERE user_id = \$1 AND status = \$2 ORDER BY created_at DESC LIMIT .*`).
			WithArgs(userID, status, 20).
			WillReturnRows(rows)

		conns, total, err := repo.FindByOwner(context.Background(), banking.UserOwner(userID),
			banking.ConnectionFilter{Status: &status, Page: 1, PageSize: 20})

		assert.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Len(t, conns, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects invalid owner", func(t *testing.T) {
		repo, _, mockDB := newMockConnectionRepository(t)
		defer mockDB.Close()

		_, _, err := repo.FindByOwner(context.Background(), banking.Owner{}, banking.ConnectionFilter{})

		assert.ErrorIs(t, err, banking.ErrInvalidOwner)
	})
}

func TestGormConnectionRepository_FindPendingBefore(t *testing.T) {
	t.Run("returns stale pending connections", func(t *testing.T) {
		repo, mock, mockDB := newMockConnectionRepository(t)
		defer mockDB.Close()

		cutoff := time.Now().Add(-24 * time.Hour)
		now := time.Now()

		rows := sqlmock.NewRows(connectionColumns()).
			AddRow(uuid.New(), now.Add(-48*time.Hour), now, 1, uuid.New(), nil, "SALTEDGE", nil,
				"PENDING", "https://consent.example", nil, nil, nil, "")

		mock.ExpectQuery(`SELECT \* FROM "banking_connections" WHERE status = \$1 AND created_at < \$2 ORDER BY created_at ASC LIMIT .*`).
			WithArgs("PENDING", cutoff, 100).
			WillReturnRows(rows)

		conns, err := repo.FindPendingBefore(context.Background(), cutoff, 100)

		assert.NoError(t, err)
		assert.Len(t, conns, 1)
		assert.Equal(t, banking.ConnectionStatusPending, conns[0].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormConnectionRepository_FindSyncDue(t *testing.T) {
	t.Run("returns syncable connections past the cutoff", func(t *testing.T) {
		repo, mock, mockDB := newMockConnectionRepository(t)
		defer mockDB.Close()

		cutoff := time.Now().Add(-6 * time.Hour)
		now := time.Now()

		rows := sqlmock.NewRows(connectionColumns()).
			AddRow(uuid.New(), now.Add(-72*time.Hour), now, 3, uuid.New(), nil, "SALTEDGE", "se-conn-1",
				"ACTIVE", "", now.Add(-72*time.Hour), nil, nil, "").
			AddRow(uuid.New(), now.Add(-48*time.Hour), now, 2, nil, uuid.New(), "TINK", "tink-conn-1",
				"ERROR", "", now.Add(-48*time.Hour), nil, now.Add(-12*time.Hour), "")

		mock.ExpectQuery(`SELECT \* FROM "banking_connections" WHERE status IN \(\$1,\$2\) AND \(last_synced_at IS NULL OR last_synced_at < \$3\) ORDER BY last_synced_at ASC NULLS FIRST LIMIT .*`).
			WithArgs("ACTIVE", "ERROR", cutoff, 50).
			WillReturnRows(rows)

		conns, err := repo.FindSyncDue(context.Background(), cutoff, 50)

		assert.NoError(t, err)
		require.Len(t, conns, 2)
		assert.Nil(t, conns[0].LastSyncedAt)
		assert.Equal(t, banking.ConnectionStatusError, conns[1].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormConnectionRepository_Save(t *testing.T) {
	t.Run("saves connection", func(t *testing.T) {
		repo, mock, mockDB := newMockConnectionRepository(t)
		defer mockDB.Close()

		conn, err := banking.NewBankingConnection(banking.UserOwner(uuid.New()), banking.ProviderCodeSaltEdge)
		require.NoError(t, err)

		mock.ExpectExec(`UPDATE "banking_connections" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = repo.Save(context.Background(), conn)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormConnectionRepository_InterfaceCompliance(t *testing.T) {
	repo, _, mockDB := newMockConnectionRepository(t)
	defer mockDB.Close()

	var _ banking.ConnectionRepository = repo
}
