package banking

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fintrack/backend/internal/domain/banking"
)

// ==================== Link DTOs ====================

// InitiateLinkRequest represents a request to start linking a bank
type InitiateLinkRequest struct {
	Provider  string `json:"provider" binding:"required"`
	ReturnURL string `json:"return_url" binding:"omitempty,url"`
}

// CompleteLinkRequest represents the OAuth callback payload forwarded by the
// frontend after the provider redirected the user back
type CompleteLinkRequest struct {
	Params map[string]string `json:"params"`
}

// ==================== Connection DTOs ====================

// ConnectionResponse represents a banking connection in API responses
type ConnectionResponse struct {
	ID            uuid.UUID          `json:"id"`
	Provider      string             `json:"provider"`
	ProviderName  string             `json:"provider_name"`
	Status        string             `json:"status"`
	RedirectURL   string             `json:"redirect_url,omitempty"`
	AuthorizedAt  *time.Time         `json:"authorized_at,omitempty"`
	ExpiresAt     *time.Time         `json:"expires_at,omitempty"`
	LastSyncedAt  *time.Time         `json:"last_synced_at,omitempty"`
	LastSyncError *banking.SyncError `json:"last_sync_error,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ToConnectionResponse converts a domain connection to a response DTO.
// The consent redirect URL is only exposed while the link is pending.
func ToConnectionResponse(c *banking.BankingConnection) *ConnectionResponse {
	resp := &ConnectionResponse{
		ID:            c.ID,
		Provider:      c.Provider.String(),
		ProviderName:  c.Provider.DisplayName(),
		Status:        c.Status.String(),
		AuthorizedAt:  c.AuthorizedAt,
		ExpiresAt:     c.ExpiresAt,
		LastSyncedAt:  c.LastSyncedAt,
		LastSyncError: c.LastSyncError,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	if c.Status == banking.ConnectionStatusPending {
		resp.RedirectURL = c.RedirectURL
	}
	return resp
}

// ToConnectionResponses converts a slice of domain connections
func ToConnectionResponses(conns []*banking.BankingConnection) []*ConnectionResponse {
	responses := make([]*ConnectionResponse, len(conns))
	for i, c := range conns {
		responses[i] = ToConnectionResponse(c)
	}
	return responses
}

// ==================== Linked account DTOs ====================

// LinkedAccountResponse represents a linked account in API responses
type LinkedAccountResponse struct {
	ID                uuid.UUID       `json:"id"`
	ConnectionID      uuid.UUID       `json:"connection_id"`
	LocalAccountID    uuid.UUID       `json:"local_account_id"`
	ExternalAccountID string          `json:"external_account_id"`
	Name              string          `json:"name"`
	Currency          string          `json:"currency"`
	CurrentBalance    decimal.Decimal `json:"current_balance"`
	SyncStatus        string          `json:"sync_status"`
	LastSyncedAt      *time.Time      `json:"last_synced_at,omitempty"`
}

// ToLinkedAccountResponse converts a domain linked account to a response DTO
func ToLinkedAccountResponse(a *banking.LinkedAccount) *LinkedAccountResponse {
	return &LinkedAccountResponse{
		ID:                a.ID,
		ConnectionID:      a.ConnectionID,
		LocalAccountID:    a.LocalAccountID,
		ExternalAccountID: a.ExternalAccountID,
		Name:              a.Name,
		Currency:          a.Currency,
		CurrentBalance:    a.CurrentBalance,
		SyncStatus:        a.SyncStatus.String(),
		LastSyncedAt:      a.LastSyncedAt,
	}
}

// ToLinkedAccountResponses converts a slice of domain linked accounts
func ToLinkedAccountResponses(accounts []*banking.LinkedAccount) []*LinkedAccountResponse {
	responses := make([]*LinkedAccountResponse, len(accounts))
	for i, a := range accounts {
		responses[i] = ToLinkedAccountResponse(a)
	}
	return responses
}

// ==================== Sync log DTOs ====================

// SyncLogResponse represents a sync audit record in API responses
type SyncLogResponse struct {
	ID                  uuid.UUID          `json:"id"`
	ConnectionID        uuid.UUID          `json:"connection_id"`
	StartedAt           time.Time          `json:"started_at"`
	CompletedAt         *time.Time         `json:"completed_at,omitempty"`
	Outcome             string             `json:"outcome"`
	AccountsProcessed   int                `json:"accounts_processed"`
	TransactionsCreated int                `json:"transactions_created"`
	TransactionsSkipped int                `json:"transactions_skipped"`
	ErrorDetail         *banking.SyncError `json:"error_detail,omitempty"`
}

// ToSyncLogResponse converts a domain sync log to a response DTO
func ToSyncLogResponse(l *banking.SyncLog) *SyncLogResponse {
	return &SyncLogResponse{
		ID:                  l.ID,
		ConnectionID:        l.ConnectionID,
		StartedAt:           l.StartedAt,
		CompletedAt:         l.CompletedAt,
		Outcome:             l.Outcome.String(),
		AccountsProcessed:   l.AccountsProcessed,
		TransactionsCreated: l.TransactionsCreated,
		TransactionsSkipped: l.TransactionsSkipped,
		ErrorDetail:         l.ErrorDetail,
	}
}

// ToSyncLogResponses converts a slice of domain sync logs
func ToSyncLogResponses(logs []*banking.SyncLog) []*SyncLogResponse {
	responses := make([]*SyncLogResponse, len(logs))
	for i, l := range logs {
		responses[i] = ToSyncLogResponse(l)
	}
	return responses
}
