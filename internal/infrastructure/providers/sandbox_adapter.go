package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fintrack/backend/internal/domain/banking"
)

// sandboxPageSize is how many transactions a sandbox pager returns per page
const sandboxPageSize = 50

// SandboxAdapter implements the BankingProvider port against deterministic
// in-memory data. It stands in for a real aggregator in development and
// automated tests: links always authorize, every connection exposes the same
// two demo accounts, and transactions are generated one per day since the
// requested start.
type SandboxAdapter struct {
	code banking.ProviderCode

	mu      sync.Mutex
	revoked map[string]bool
}

// NewSandboxAdapter creates a sandbox adapter masquerading as the given provider
func NewSandboxAdapter(code banking.ProviderCode) *SandboxAdapter {
	return &SandboxAdapter{
		code:    code,
		revoked: make(map[string]bool),
	}
}

// Code returns the provider code this adapter handles
func (a *SandboxAdapter) Code() banking.ProviderCode {
	return a.code
}

// InitiateLink fabricates a connection and a fake consent page URL
func (a *SandboxAdapter) InitiateLink(ctx context.Context, req banking.InitiateLinkRequest) (*banking.InitiateLinkResult, error) {
	externalID := "sandbox-" + uuid.NewString()
	return &banking.InitiateLinkResult{
		RedirectURL:          fmt.Sprintf("https://sandbox.fintrack.local/consent/%s?return_to=%s", externalID, req.ReturnURL),
		ExternalConnectionID: externalID,
	}, nil
}

// CompleteLink always authorizes with a 90-day consent, unless the callback
// carries denied=true for testing the refusal path
func (a *SandboxAdapter) CompleteLink(ctx context.Context, externalConnectionID string, params banking.CallbackParams) (*banking.CompleteLinkResult, error) {
	if params["denied"] == "true" {
		return &banking.CompleteLinkResult{Outcome: banking.LinkOutcomeDenied}, nil
	}
	expiresAt := time.Now().AddDate(0, 0, 90)
	return &banking.CompleteLinkResult{
		Outcome:          banking.LinkOutcomeAuthorized,
		ConsentExpiresAt: &expiresAt,
	}, nil
}

// ListAccounts returns the fixed demo accounts of a connection
func (a *SandboxAdapter) ListAccounts(ctx context.Context, externalConnectionID string) ([]banking.ExternalAccount, error) {
	a.mu.Lock()
	revoked := a.revoked[externalConnectionID]
	a.mu.Unlock()
	if revoked {
		return nil, banking.ErrConnectionExpired
	}

	return []banking.ExternalAccount{
		{
			ExternalAccountID: externalConnectionID + ":checking",
			Name:              "Sandbox Checking",
			Currency:          "EUR",
			Balance:           decimal.NewFromFloat(1250.42),
			IBAN:              "DE02120300000000202051",
			Nature:            "account",
		},
		{
			ExternalAccountID: externalConnectionID + ":savings",
			Name:              "Sandbox Savings",
			Currency:          "EUR",
			Balance:           decimal.NewFromFloat(8000),
			Nature:            "savings",
		},
	}, nil
}

// FetchTransactions returns a pager over one generated transaction per day
// from since until today. IDs are stable per account and day, so repeated
// syncs exercise the dedup path the way a real provider would.
func (a *SandboxAdapter) FetchTransactions(ctx context.Context, externalAccountID string, since time.Time, fromCursor string) banking.TransactionPager {
	start := since.Truncate(24 * time.Hour)
	if start.IsZero() {
		start = time.Now().AddDate(0, 0, -90).Truncate(24 * time.Hour)
	}

	var transactions []banking.ExternalTransaction
	for day := start; !day.After(time.Now()); day = day.AddDate(0, 0, 1) {
		transactions = append(transactions, banking.ExternalTransaction{
			ExternalTransactionID: fmt.Sprintf("%s:%s", externalAccountID, day.Format("2006-01-02")),
			ExternalAccountID:     externalAccountID,
			Amount:                decimal.NewFromFloat(-12.34),
			Currency:              "EUR",
			Description:           "Sandbox purchase " + day.Format("2006-01-02"),
			MadeOn:                day,
		})
	}

	pager := &sandboxPager{transactions: transactions}
	if fromCursor != "" {
		for i, tx := range transactions {
			if tx.ExternalTransactionID == fromCursor {
				pager.offset = i + 1
				break
			}
		}
	}
	return pager
}

// Revoke marks the connection revoked; further listings fail as expired
func (a *SandboxAdapter) Revoke(ctx context.Context, externalConnectionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked[externalConnectionID] = true
	return nil
}

// sandboxPager pages over a pre-generated transaction slice
type sandboxPager struct {
	transactions []banking.ExternalTransaction
	offset       int
	cursor       string
}

// Next returns the next page of sandbox transactions
func (p *sandboxPager) Next(ctx context.Context) ([]banking.ExternalTransaction, bool, error) {
	if p.offset >= len(p.transactions) {
		return nil, false, nil
	}

	end := p.offset + sandboxPageSize
	if end > len(p.transactions) {
		end = len(p.transactions)
	}
	page := p.transactions[p.offset:end]
	p.offset = end
	p.cursor = page[len(page)-1].ExternalTransactionID

	return page, p.offset < len(p.transactions), nil
}

// Cursor returns the ID of the last transaction handed out
func (p *sandboxPager) Cursor() string {
	return p.cursor
}

// Ensure SandboxAdapter implements the BankingProvider port
var _ banking.BankingProvider = (*SandboxAdapter)(nil)
