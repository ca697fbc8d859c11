package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/backend/internal/domain/banking"
)

func TestSandboxAdapter_LinkFlow(t *testing.T) {
	adapter := NewSandboxAdapter(banking.ProviderCodeSaltEdge)
	ctx := context.Background()

	t.Run("initiate fabricates a connection", func(t *testing.T) {
		result, err := adapter.InitiateLink(ctx, banking.InitiateLinkRequest{
			ReturnURL: "https://app.example.com/callback",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, result.ExternalConnectionID)
		assert.Contains(t, result.RedirectURL, result.ExternalConnectionID)
	})

	t.Run("complete authorizes with a consent window", func(t *testing.T) {
		result, err := adapter.CompleteLink(ctx, "sandbox-1", banking.CallbackParams{})
		require.NoError(t, err)
		assert.Equal(t, banking.LinkOutcomeAuthorized, result.Outcome)
		require.NotNil(t, result.ConsentExpiresAt)
		assert.True(t, result.ConsentExpiresAt.After(time.Now()))
	})

	t.Run("denied param refuses consent", func(t *testing.T) {
		result, err := adapter.CompleteLink(ctx, "sandbox-1", banking.CallbackParams{"denied": "true"})
		require.NoError(t, err)
		assert.Equal(t, banking.LinkOutcomeDenied, result.Outcome)
	})
}

func TestSandboxAdapter_ListAccounts(t *testing.T) {
	adapter := NewSandboxAdapter(banking.ProviderCodeSaltEdge)
	ctx := context.Background()

	accounts, err := adapter.ListAccounts(ctx, "sandbox-1")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "sandbox-1:checking", accounts[0].ExternalAccountID)
	assert.Equal(t, "EUR", accounts[0].Currency)
	assert.Equal(t, "sandbox-1:savings", accounts[1].ExternalAccountID)
}

func TestSandboxAdapter_FetchTransactions(t *testing.T) {
	adapter := NewSandboxAdapter(banking.ProviderCodeSaltEdge)
	ctx := context.Background()
	since := time.Now().AddDate(0, 0, -10)

	t.Run("generates stable IDs across runs", func(t *testing.T) {
		first := drainPager(t, adapter.FetchTransactions(ctx, "acc-1", since, ""))
		second := drainPager(t, adapter.FetchTransactions(ctx, "acc-1", since, ""))

		require.NotEmpty(t, first)
		require.Len(t, second, len(first))
		for i := range first {
			assert.Equal(t, first[i].ExternalTransactionID, second[i].ExternalTransactionID)
		}
	})

	t.Run("resumes after a cursor", func(t *testing.T) {
		all := drainPager(t, adapter.FetchTransactions(ctx, "acc-1", since, ""))
		require.Greater(t, len(all), 2)

		resumed := drainPager(t, adapter.FetchTransactions(ctx, "acc-1", since, all[1].ExternalTransactionID))
		require.Len(t, resumed, len(all)-2)
		assert.Equal(t, all[2].ExternalTransactionID, resumed[0].ExternalTransactionID)
	})
}

func TestSandboxAdapter_Revoke(t *testing.T) {
	adapter := NewSandboxAdapter(banking.ProviderCodeSaltEdge)
	ctx := context.Background()

	require.NoError(t, adapter.Revoke(ctx, "sandbox-1"))

	_, err := adapter.ListAccounts(ctx, "sandbox-1")
	assert.ErrorIs(t, err, banking.ErrConnectionExpired)

	// Other connections are unaffected.
	_, err = adapter.ListAccounts(ctx, "sandbox-2")
	assert.NoError(t, err)
}

func drainPager(t *testing.T, pager banking.TransactionPager) []banking.ExternalTransaction {
	t.Helper()
	var all []banking.ExternalTransaction
	for {
		page, more, err := pager.Next(context.Background())
		require.NoError(t, err)
		all = append(all, page...)
		if !more {
			return all
		}
	}
}
