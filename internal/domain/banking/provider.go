package banking

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Provider Errors
// ---------------------------------------------------------------------------

var (
	// Provider errors
	ErrProviderUnavailable     = errors.New("banking: provider temporarily unavailable")
	ErrInvalidProvider         = errors.New("banking: unsupported provider")
	ErrProviderRequestFailed   = errors.New("banking: provider request failed")
	ErrProviderInvalidResponse = errors.New("banking: invalid provider response")
	ErrProviderAuthFailed      = errors.New("banking: provider authentication failed")
	ErrProviderRateLimited     = errors.New("banking: provider rate limited")
	ErrConnectionExpired       = errors.New("banking: provider consent expired")
	ErrLinkDenied              = errors.New("banking: link denied by user or bank")
	ErrProviderNotConfigured   = errors.New("banking: provider not configured")
)

// ---------------------------------------------------------------------------
// ProviderCode represents the external banking aggregator
// ---------------------------------------------------------------------------

// ProviderCode identifies a banking aggregator (OAuth broker to bank data)
type ProviderCode string

const (
	// ProviderCodeSaltEdge represents the SaltEdge aggregator
	ProviderCodeSaltEdge ProviderCode = "SALTEDGE"
	// ProviderCodeTink represents the Tink aggregator
	ProviderCodeTink ProviderCode = "TINK"
	// ProviderCodeYapily represents the Yapily aggregator
	ProviderCodeYapily ProviderCode = "YAPILY"
)

// IsValid returns true if the provider code is valid
func (c ProviderCode) IsValid() bool {
	switch c {
	case ProviderCodeSaltEdge, ProviderCodeTink, ProviderCodeYapily:
		return true
	default:
		return false
	}
}

// String returns the string representation of ProviderCode
func (c ProviderCode) String() string {
	return string(c)
}

// DisplayName returns a human-readable name for the provider
func (c ProviderCode) DisplayName() string {
	switch c {
	case ProviderCodeSaltEdge:
		return "Salt Edge"
	case ProviderCodeTink:
		return "Tink"
	case ProviderCodeYapily:
		return "Yapily"
	default:
		return string(c)
	}
}

// ---------------------------------------------------------------------------
// Normalized external shapes
// ---------------------------------------------------------------------------

// ExternalAccount is a bank account as reported by a provider, normalized at
// the adapter boundary. Provider-specific payload shapes never cross into the
// reconciler.
type ExternalAccount struct {
	// ExternalAccountID is the provider-assigned, stable account identifier
	ExternalAccountID string
	// Name is the account display name at the bank
	Name string
	// Currency is the ISO 4217 currency code of the account
	Currency string
	// Balance is the current balance as reported by the provider
	Balance decimal.Decimal
	// IBAN is the account IBAN if the provider exposes one
	IBAN string
	// Nature is the provider's account classification (checking, savings, card)
	Nature string
}

// ExternalTransaction is a booked transaction as reported by a provider,
// normalized at the adapter boundary.
type ExternalTransaction struct {
	// ExternalTransactionID is the provider-assigned, stable transaction
	// identifier. Empty means the record cannot be deduplicated.
	ExternalTransactionID string
	// ExternalAccountID is the provider account the transaction belongs to
	ExternalAccountID string
	// Amount is the signed transaction amount (negative for debits)
	Amount decimal.Decimal
	// Currency is the ISO 4217 currency code of the amount
	Currency string
	// Description is the booking text
	Description string
	// MadeOn is the booking date
	MadeOn time.Time
	// Pending indicates the transaction is not yet booked
	Pending bool
}

// HasFingerprint returns true if the transaction carries a stable external ID
// and can take part in deduplication.
func (t ExternalTransaction) HasFingerprint() bool {
	return t.ExternalTransactionID != ""
}

// ---------------------------------------------------------------------------
// Link requests and results
// ---------------------------------------------------------------------------

// InitiateLinkRequest asks the provider to start an OAuth link attempt
type InitiateLinkRequest struct {
	// ReturnURL is where the provider redirects the user after consent
	ReturnURL string
	// OwnerReference is an opaque reference the provider echoes in callbacks
	OwnerReference string
}

// InitiateLinkResult is the provider's answer to a link initiation
type InitiateLinkResult struct {
	// RedirectURL is the provider-hosted OAuth consent page
	RedirectURL string
	// ExternalConnectionID is the provider-side connection identifier
	ExternalConnectionID string
}

// CallbackParams carries the raw query/body parameters of the OAuth callback
type CallbackParams map[string]string

// LinkOutcome is the provider's verdict on a completed OAuth flow
type LinkOutcome string

const (
	// LinkOutcomeAuthorized means the user granted consent
	LinkOutcomeAuthorized LinkOutcome = "AUTHORIZED"
	// LinkOutcomeDenied means the user or bank refused consent
	LinkOutcomeDenied LinkOutcome = "DENIED"
)

// CompleteLinkResult is the provider's answer to a link completion
type CompleteLinkResult struct {
	// Outcome is AUTHORIZED or DENIED
	Outcome LinkOutcome
	// ConsentExpiresAt is when the provider consent lapses, if time-limited
	ConsentExpiresAt *time.Time
}

// ---------------------------------------------------------------------------
// TransactionPager
// ---------------------------------------------------------------------------

// TransactionPager is a lazy, restartable sequence of transaction pages.
// Next returns the next page and whether more pages remain; after a transient
// failure the pager can be resumed because Cursor survives the failed call.
type TransactionPager interface {
	// Next fetches the next page. more is false once the sequence is exhausted.
	Next(ctx context.Context) (page []ExternalTransaction, more bool, err error)
	// Cursor returns the resumption cursor for the position after the last
	// successfully fetched page. Empty means the start of the sequence.
	Cursor() string
}

// ---------------------------------------------------------------------------
// BankingProvider Port Interface
// ---------------------------------------------------------------------------

// BankingProvider is the port interface for external banking aggregators.
// It is defined in the domain layer; concrete adapters (SaltEdge, sandbox)
// live in the infrastructure layer.
type BankingProvider interface {
	// Code returns the provider code this adapter handles
	Code() ProviderCode

	// InitiateLink starts an OAuth link attempt and returns the consent URL.
	// Fails with ErrProviderUnavailable on network/5xx failures and
	// ErrInvalidProvider when the adapter is misconfigured for the request.
	InitiateLink(ctx context.Context, req InitiateLinkRequest) (*InitiateLinkResult, error)

	// CompleteLink finalizes an OAuth flow. Idempotent: calling it twice with
	// the same params yields the same result without provider side effects.
	CompleteLink(ctx context.Context, externalConnectionID string, params CallbackParams) (*CompleteLinkResult, error)

	// ListAccounts returns the accounts exposed by a connection.
	// Fails with ErrConnectionExpired once the provider consent has lapsed.
	ListAccounts(ctx context.Context, externalConnectionID string) ([]ExternalAccount, error)

	// FetchTransactions returns a pager over booked transactions of an
	// external account since the given time. fromCursor resumes a previously
	// interrupted fetch; pass "" to start from the beginning.
	FetchTransactions(ctx context.Context, externalAccountID string, since time.Time, fromCursor string) TransactionPager

	// Revoke terminates the connection on the provider side. Best-effort:
	// callers log failures but proceed with local revocation.
	Revoke(ctx context.Context, externalConnectionID string) error
}

// ProviderRegistry resolves provider adapters by code
type ProviderRegistry interface {
	// Get returns the adapter for the given code, or ErrInvalidProvider
	Get(code ProviderCode) (BankingProvider, error)
	// List returns all registered adapters
	List() []BankingProvider
}
