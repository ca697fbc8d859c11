package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fintrack/backend/internal/domain/banking"
)

// maxSaltEdgeResponseSize limits the response body size to prevent memory exhaustion
const maxSaltEdgeResponseSize = 10 * 1024 * 1024 // 10MB max response

// SaltEdgeAdapter implements the BankingProvider port for the Salt Edge AIS API
type SaltEdgeAdapter struct {
	config     *SaltEdgeConfig
	httpClient *http.Client
}

// NewSaltEdgeAdapter creates a new Salt Edge adapter with the given configuration
func NewSaltEdgeAdapter(config *SaltEdgeConfig) (*SaltEdgeAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &SaltEdgeAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// Code returns the provider code this adapter handles
func (a *SaltEdgeAdapter) Code() banking.ProviderCode {
	return banking.ProviderCodeSaltEdge
}

// InitiateLink creates a connect session and returns the hosted consent page
func (a *SaltEdgeAdapter) InitiateLink(ctx context.Context, req banking.InitiateLinkRequest) (*banking.InitiateLinkResult, error) {
	var payload SaltEdgeConnectSessionRequest
	payload.Data.CustomerReference = req.OwnerReference
	payload.Data.ReturnTo = req.ReturnURL
	payload.Data.Consent.Scopes = []string{"accounts", "transactions"}

	respBody, err := a.doRequest(ctx, http.MethodPost, "/connections/connect", nil, payload)
	if err != nil {
		return nil, err
	}

	var resp SaltEdgeConnectSessionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", banking.ErrProviderInvalidResponse, err)
	}
	if resp.Data.ConnectURL == "" || resp.Data.ID == "" {
		return nil, banking.ErrProviderInvalidResponse
	}

	return &banking.InitiateLinkResult{
		RedirectURL:          resp.Data.ConnectURL,
		ExternalConnectionID: resp.Data.ID,
	}, nil
}

// CompleteLink reads the connection state after the user returns from the
// consent page. Idempotent: it only inspects provider state.
func (a *SaltEdgeAdapter) CompleteLink(ctx context.Context, externalConnectionID string, params banking.CallbackParams) (*banking.CompleteLinkResult, error) {
	if params["error_class"] != "" || params["denied"] == "true" {
		return &banking.CompleteLinkResult{Outcome: banking.LinkOutcomeDenied}, nil
	}

	respBody, err := a.doRequest(ctx, http.MethodGet, "/connections/"+externalConnectionID, nil, nil)
	if err != nil {
		return nil, err
	}

	var resp SaltEdgeConnectionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", banking.ErrProviderInvalidResponse, err)
	}

	switch resp.Data.Status {
	case "active":
		result := &banking.CompleteLinkResult{Outcome: banking.LinkOutcomeAuthorized}
		if resp.Data.ConsentUntil != "" {
			if expiresAt, err := time.Parse(time.RFC3339, resp.Data.ConsentUntil); err == nil {
				result.ConsentExpiresAt = &expiresAt
			}
		}
		return result, nil
	case "inactive", "disabled":
		return &banking.CompleteLinkResult{Outcome: banking.LinkOutcomeDenied}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected connection status %q", banking.ErrProviderInvalidResponse, resp.Data.Status)
	}
}

// ListAccounts returns all accounts of a connection, following cursor pagination
func (a *SaltEdgeAdapter) ListAccounts(ctx context.Context, externalConnectionID string) ([]banking.ExternalAccount, error) {
	accounts := make([]banking.ExternalAccount, 0)
	nextID := ""

	for {
		query := url.Values{}
		query.Set("connection_id", externalConnectionID)
		query.Set("per_page", strconv.Itoa(a.config.PageSize))
		if nextID != "" {
			query.Set("from_id", nextID)
		}

		respBody, err := a.doRequest(ctx, http.MethodGet, "/accounts", query, nil)
		if err != nil {
			return nil, err
		}

		var resp SaltEdgeAccountsResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", banking.ErrProviderInvalidResponse, err)
		}

		for _, acc := range resp.Data {
			accounts = append(accounts, banking.ExternalAccount{
				ExternalAccountID: acc.ID,
				Name:              acc.Name,
				Currency:          acc.Currency,
				Balance:           acc.Balance,
				IBAN:              acc.Extra.IBAN,
				Nature:            acc.Nature,
			})
		}

		if resp.Meta.NextID == "" {
			return accounts, nil
		}
		nextID = resp.Meta.NextID
	}
}

// FetchTransactions returns a pager over booked transactions of an account
func (a *SaltEdgeAdapter) FetchTransactions(ctx context.Context, externalAccountID string, since time.Time, fromCursor string) banking.TransactionPager {
	return &saltEdgePager{
		adapter:   a,
		accountID: externalAccountID,
		since:     since,
		cursor:    fromCursor,
	}
}

// Revoke removes the connection on the Salt Edge side
func (a *SaltEdgeAdapter) Revoke(ctx context.Context, externalConnectionID string) error {
	_, err := a.doRequest(ctx, http.MethodDelete, "/connections/"+externalConnectionID, nil, nil)
	return err
}

// ---------------------------------------------------------------------------
// Transaction pager
// ---------------------------------------------------------------------------

// saltEdgePager walks the cursor-paginated transactions listing. The cursor
// only advances after a successful fetch, so an interrupted sync resumes from
// the last complete page. Transient failures are retried with exponential
// backoff before surfacing.
type saltEdgePager struct {
	adapter   *SaltEdgeAdapter
	accountID string
	since     time.Time
	cursor    string
	done      bool
}

// Next fetches the next page of transactions
func (p *saltEdgePager) Next(ctx context.Context) ([]banking.ExternalTransaction, bool, error) {
	if p.done {
		return nil, false, nil
	}

	var resp SaltEdgeTransactionsResponse
	fetch := func() error {
		body, err := p.adapter.fetchTransactionPage(ctx, p.accountID, p.since, p.cursor)
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", banking.ErrProviderInvalidResponse, err))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(p.adapter.config.MaxRetries)),
		ctx,
	)
	if err := backoff.Retry(fetch, policy); err != nil {
		return nil, false, err
	}

	page := make([]banking.ExternalTransaction, 0, len(resp.Data))
	for _, tx := range resp.Data {
		page = append(page, banking.ExternalTransaction{
			ExternalTransactionID: tx.ID,
			ExternalAccountID:     tx.AccountID,
			Amount:                tx.Amount,
			Currency:              tx.Currency,
			Description:           tx.Description,
			MadeOn:                tx.madeOnTime(),
			Pending:               tx.Status == "pending",
		})
	}

	if resp.Meta.NextID == "" {
		p.done = true
		return page, false, nil
	}
	p.cursor = resp.Meta.NextID
	return page, true, nil
}

// Cursor returns the resumption cursor after the last successful page
func (p *saltEdgePager) Cursor() string {
	return p.cursor
}

// isRetryable reports whether a page fetch failure is worth retrying
func isRetryable(err error) bool {
	return errors.Is(err, banking.ErrProviderUnavailable) || errors.Is(err, banking.ErrProviderRateLimited)
}

// fetchTransactionPage performs one transactions listing request
func (a *SaltEdgeAdapter) fetchTransactionPage(ctx context.Context, accountID string, since time.Time, cursor string) ([]byte, error) {
	query := url.Values{}
	query.Set("account_id", accountID)
	query.Set("per_page", strconv.Itoa(a.config.PageSize))
	if !since.IsZero() {
		query.Set("from_date", since.Format(saltEdgeDateLayout))
	}
	if cursor != "" {
		query.Set("from_id", cursor)
	}
	return a.doRequest(ctx, http.MethodGet, "/transactions", query, nil)
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// doRequest performs an HTTP request to the Salt Edge API and maps failures
// to the domain's provider error taxonomy.
func (a *SaltEdgeAdapter) doRequest(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	reqURL := a.config.BaseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("saltedge: failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("saltedge: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("App-id", a.config.AppID)
	req.Header.Set("Secret", a.config.Secret)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", banking.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxSaltEdgeResponseSize))
	if err != nil {
		return nil, fmt.Errorf("saltedge: failed to read response: %w", err)
	}

	if resp.StatusCode < 400 {
		return respBody, nil
	}
	return nil, a.classifyError(resp.StatusCode, respBody)
}

// classifyError maps an HTTP error response to a domain sentinel
func (a *SaltEdgeAdapter) classifyError(statusCode int, body []byte) error {
	var errResp SaltEdgeErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch errResp.Error.Class {
	case "ConsentExpired", "ConnectionDisabled", "ConsentRevoked":
		return fmt.Errorf("%w: %s", banking.ErrConnectionExpired, errResp.Error.Message)
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", banking.ErrProviderAuthFailed, errResp.Error.Message)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", banking.ErrProviderRateLimited, errResp.Error.Message)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", banking.ErrProviderUnavailable, statusCode)
	default:
		return fmt.Errorf("%w: HTTP %d %s - %s", banking.ErrProviderRequestFailed,
			statusCode, errResp.Error.Class, errResp.Error.Message)
	}
}

// Ensure SaltEdgeAdapter implements the BankingProvider port
var _ banking.BankingProvider = (*SaltEdgeAdapter)(nil)
