package banking

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBankingConnection(t *testing.T) {
	userID := uuid.New()

	t.Run("creates pending connection for user owner", func(t *testing.T) {
		conn, err := NewBankingConnection(UserOwner(userID), ProviderCodeSaltEdge)
		require.NoError(t, err)
		require.NotNil(t, conn)

		assert.Equal(t, ConnectionStatusPending, conn.Status)
		assert.Equal(t, ProviderCodeSaltEdge, conn.Provider)
		assert.Equal(t, userID, *conn.Owner.UserID)
		assert.Nil(t, conn.ExternalConnectionID)
		assert.Nil(t, conn.LastSyncedAt)
		assert.NotEmpty(t, conn.ID)
	})

	t.Run("creates connection for family owner", func(t *testing.T) {
		familyID := uuid.New()
		conn, err := NewBankingConnection(FamilyOwner(familyID), ProviderCodeTink)
		require.NoError(t, err)
		assert.Equal(t, familyID, *conn.Owner.FamilyID)
		assert.Nil(t, conn.Owner.UserID)
	})

	t.Run("publishes ConnectionInitiated event", func(t *testing.T) {
		conn, err := NewBankingConnection(UserOwner(userID), ProviderCodeSaltEdge)
		require.NoError(t, err)

		events := conn.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeConnectionInitiated, events[0].EventType())
	})

	t.Run("fails when both user and family are set", func(t *testing.T) {
		familyID := uuid.New()
		owner := Owner{UserID: &userID, FamilyID: &familyID}
		_, err := NewBankingConnection(owner, ProviderCodeSaltEdge)
		require.ErrorIs(t, err, ErrInvalidOwner)
	})

	t.Run("fails when neither user nor family is set", func(t *testing.T) {
		_, err := NewBankingConnection(Owner{}, ProviderCodeSaltEdge)
		require.ErrorIs(t, err, ErrInvalidOwner)
	})

	t.Run("fails with unknown provider", func(t *testing.T) {
		_, err := NewBankingConnection(UserOwner(userID), ProviderCode("MONZO"))
		require.ErrorIs(t, err, ErrInvalidProvider)
	})
}

func TestOwner(t *testing.T) {
	t.Run("equals compares same principal", func(t *testing.T) {
		id := uuid.New()
		assert.True(t, UserOwner(id).Equals(UserOwner(id)))
		assert.True(t, FamilyOwner(id).Equals(FamilyOwner(id)))
		assert.False(t, UserOwner(id).Equals(FamilyOwner(id)))
		assert.False(t, UserOwner(id).Equals(UserOwner(uuid.New())))
	})

	t.Run("string identifies owner kind", func(t *testing.T) {
		id := uuid.New()
		assert.Contains(t, UserOwner(id).String(), "user:")
		assert.Contains(t, FamilyOwner(id).String(), "family:")
	})
}

func TestConnectionStatusTransitions(t *testing.T) {
	cases := []struct {
		from    ConnectionStatus
		to      ConnectionStatus
		allowed bool
	}{
		{ConnectionStatusPending, ConnectionStatusAuthorized, true},
		{ConnectionStatusPending, ConnectionStatusRevoked, true},
		{ConnectionStatusPending, ConnectionStatusActive, false},
		{ConnectionStatusPending, ConnectionStatusError, false},
		{ConnectionStatusAuthorized, ConnectionStatusActive, true},
		{ConnectionStatusAuthorized, ConnectionStatusExpired, true},
		{ConnectionStatusAuthorized, ConnectionStatusRevoked, true},
		{ConnectionStatusAuthorized, ConnectionStatusError, false},
		{ConnectionStatusActive, ConnectionStatusError, true},
		{ConnectionStatusActive, ConnectionStatusExpired, true},
		{ConnectionStatusActive, ConnectionStatusRevoked, true},
		{ConnectionStatusActive, ConnectionStatusAuthorized, false},
		{ConnectionStatusError, ConnectionStatusActive, true},
		{ConnectionStatusError, ConnectionStatusExpired, true},
		{ConnectionStatusError, ConnectionStatusRevoked, true},
		{ConnectionStatusExpired, ConnectionStatusActive, false},
		{ConnectionStatusExpired, ConnectionStatusRevoked, false},
		{ConnectionStatusRevoked, ConnectionStatusActive, false},
		{ConnectionStatusRevoked, ConnectionStatusExpired, false},
	}
	for _, tc := range cases {
		t.Run(tc.from.String()+"_to_"+tc.to.String(), func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}

	t.Run("only expired and revoked are terminal", func(t *testing.T) {
		assert.True(t, ConnectionStatusExpired.IsTerminal())
		assert.True(t, ConnectionStatusRevoked.IsTerminal())
		assert.False(t, ConnectionStatusActive.IsTerminal())
		assert.False(t, ConnectionStatusError.IsTerminal())
	})

	t.Run("only active and error are syncable", func(t *testing.T) {
		assert.True(t, ConnectionStatusActive.IsSyncable())
		assert.True(t, ConnectionStatusError.IsSyncable())
		assert.False(t, ConnectionStatusPending.IsSyncable())
		assert.False(t, ConnectionStatusAuthorized.IsSyncable())
		assert.False(t, ConnectionStatusExpired.IsSyncable())
	})
}

func TestBankingConnectionLifecycle(t *testing.T) {
	newConn := func(t *testing.T) *BankingConnection {
		conn, err := NewBankingConnection(UserOwner(uuid.New()), ProviderCodeSaltEdge)
		require.NoError(t, err)
		return conn
	}

	t.Run("attach external ID is write-once", func(t *testing.T) {
		conn := newConn(t)
		require.NoError(t, conn.AttachExternalID("se-conn-1", "https://consent.example/1"))
		assert.Equal(t, "se-conn-1", *conn.ExternalConnectionID)
		assert.Equal(t, "https://consent.example/1", conn.RedirectURL)

		err := conn.AttachExternalID("se-conn-2", "https://consent.example/2")
		require.ErrorIs(t, err, ErrExternalIDAlreadySet)
		assert.Equal(t, "se-conn-1", *conn.ExternalConnectionID)
	})

	t.Run("authorize records consent expiry", func(t *testing.T) {
		conn := newConn(t)
		expires := time.Now().Add(90 * 24 * time.Hour)
		require.NoError(t, conn.Authorize(&expires))

		assert.Equal(t, ConnectionStatusAuthorized, conn.Status)
		assert.NotNil(t, conn.AuthorizedAt)
		assert.Equal(t, expires, *conn.ExpiresAt)
	})

	t.Run("full happy path reaches active", func(t *testing.T) {
		conn := newConn(t)
		require.NoError(t, conn.Authorize(nil))
		require.NoError(t, conn.Activate())
		assert.Equal(t, ConnectionStatusActive, conn.Status)
	})

	t.Run("mark synced clears last error on full success", func(t *testing.T) {
		conn := newConn(t)
		require.NoError(t, conn.Authorize(nil))
		require.NoError(t, conn.Activate())
		require.NoError(t, conn.MarkSyncFailed(NewSyncError(errors.New("boom"))))
		assert.Equal(t, ConnectionStatusError, conn.Status)
		assert.NotNil(t, conn.LastSyncError)

		now := time.Now()
		require.NoError(t, conn.MarkSynced(now, nil))
		assert.Equal(t, ConnectionStatusActive, conn.Status)
		assert.Nil(t, conn.LastSyncError)
		assert.Equal(t, now, *conn.LastSyncedAt)
	})

	t.Run("mark synced keeps partial error", func(t *testing.T) {
		conn := newConn(t)
		require.NoError(t, conn.Authorize(nil))
		require.NoError(t, conn.Activate())

		partial := &SyncError{Code: "PARTIAL_SYNC", Message: "1 of 3 accounts failed", OccurredAt: time.Now()}
		require.NoError(t, conn.MarkSynced(time.Now(), partial))
		assert.Equal(t, ConnectionStatusActive, conn.Status)
		assert.Equal(t, "PARTIAL_SYNC", conn.LastSyncError.Code)
	})

	t.Run("mark sync failed from error state refreshes error", func(t *testing.T) {
		conn := newConn(t)
		require.NoError(t, conn.Authorize(nil))
		require.NoError(t, conn.Activate())
		require.NoError(t, conn.MarkSyncFailed(NewSyncError(errors.New("first"))))
		require.NoError(t, conn.MarkSyncFailed(NewSyncError(ErrProviderRateLimited)))

		assert.Equal(t, ConnectionStatusError, conn.Status)
		assert.Equal(t, "PROVIDER_RATE_LIMITED", conn.LastSyncError.Code)
	})

	t.Run("mark synced rejected outside syncable states", func(t *testing.T) {
		conn := newConn(t)
		err := conn.MarkSynced(time.Now(), nil)
		require.ErrorIs(t, err, ErrConnectionNotSyncable)
	})

	t.Run("revoke allowed from any non-terminal state", func(t *testing.T) {
		conn := newConn(t)
		require.NoError(t, conn.Revoke())
		assert.Equal(t, ConnectionStatusRevoked, conn.Status)
	})

	t.Run("terminal connection rejects further transitions", func(t *testing.T) {
		conn := newConn(t)
		require.NoError(t, conn.Revoke())

		err := conn.Authorize(nil)
		require.ErrorIs(t, err, ErrConnectionTerminal)
		err = conn.Revoke()
		require.ErrorIs(t, err, ErrConnectionTerminal)
	})

	t.Run("expire from active is terminal", func(t *testing.T) {
		conn := newConn(t)
		require.NoError(t, conn.Authorize(nil))
		require.NoError(t, conn.Activate())
		require.NoError(t, conn.Expire())
		assert.Equal(t, ConnectionStatusExpired, conn.Status)

		err := conn.MarkSynced(time.Now(), nil)
		require.ErrorIs(t, err, ErrConnectionNotSyncable)
	})

	t.Run("consent lapsed checks expiry against clock", func(t *testing.T) {
		conn := newConn(t)
		past := time.Now().Add(-time.Hour)
		require.NoError(t, conn.Authorize(&past))
		assert.True(t, conn.ConsentLapsed(time.Now()))

		conn2 := newConn(t)
		require.NoError(t, conn2.Authorize(nil))
		assert.False(t, conn2.ConsentLapsed(time.Now()))
	})

	t.Run("pending since detects stale link attempts", func(t *testing.T) {
		conn := newConn(t)
		assert.False(t, conn.PendingSince(time.Now(), time.Hour))
		assert.True(t, conn.PendingSince(time.Now().Add(2*time.Hour), time.Hour))

		require.NoError(t, conn.Authorize(nil))
		assert.False(t, conn.PendingSince(time.Now().Add(2*time.Hour), time.Hour))
	})
}

func TestNewSyncError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"provider unavailable", ErrProviderUnavailable, "PROVIDER_UNAVAILABLE"},
		{"consent expired", ErrConnectionExpired, "CONSENT_EXPIRED"},
		{"auth failed", ErrProviderAuthFailed, "PROVIDER_AUTH_FAILED"},
		{"rate limited", ErrProviderRateLimited, "PROVIDER_RATE_LIMITED"},
		{"unclassified", errors.New("connection reset"), "SYNC_FAILED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			se := NewSyncError(tc.err)
			assert.Equal(t, tc.code, se.Code)
			assert.Equal(t, tc.err.Error(), se.Message)
			assert.False(t, se.OccurredAt.IsZero())
		})
	}
}
