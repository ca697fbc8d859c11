package banking

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fintrack/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Connection Errors
// ---------------------------------------------------------------------------

var (
	ErrConnectionNotFound    = errors.New("banking: connection not found")
	ErrConnectionNotSyncable = errors.New("banking: connection not in a syncable state")
	ErrSyncAlreadyInProgress = errors.New("banking: sync already in progress for connection")
	ErrInvalidOwner          = errors.New("banking: exactly one of user or family owner must be set")
	ErrInvalidTransition     = errors.New("banking: invalid connection state transition")
	ErrConnectionTerminal    = errors.New("banking: connection is in a terminal state")
	ErrExternalIDAlreadySet  = errors.New("banking: external connection ID already set")
)

// ---------------------------------------------------------------------------
// ConnectionStatus state machine
// ---------------------------------------------------------------------------

// ConnectionStatus represents the lifecycle state of a bank link
type ConnectionStatus string

const (
	// ConnectionStatusPending means linking was initiated, user OAuth pending
	ConnectionStatusPending ConnectionStatus = "PENDING"
	// ConnectionStatusAuthorized means the provider confirmed consent,
	// accounts not yet fetched
	ConnectionStatusAuthorized ConnectionStatus = "AUTHORIZED"
	// ConnectionStatusActive means accounts were fetched at least once
	ConnectionStatusActive ConnectionStatus = "ACTIVE"
	// ConnectionStatusError means the last sync failed; retries are expected
	ConnectionStatusError ConnectionStatus = "ERROR"
	// ConnectionStatusExpired means the provider consent lapsed (terminal)
	ConnectionStatusExpired ConnectionStatus = "EXPIRED"
	// ConnectionStatusRevoked means the user or system terminated the link (terminal)
	ConnectionStatusRevoked ConnectionStatus = "REVOKED"
)

// IsValid returns true if the status is valid
func (s ConnectionStatus) IsValid() bool {
	switch s {
	case ConnectionStatusPending, ConnectionStatusAuthorized, ConnectionStatusActive,
		ConnectionStatusError, ConnectionStatusExpired, ConnectionStatusRevoked:
		return true
	default:
		return false
	}
}

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further transitions are allowed
func (s ConnectionStatus) IsTerminal() bool {
	return s == ConnectionStatusExpired || s == ConnectionStatusRevoked
}

// IsSyncable returns true if a sync may be attempted in this state
func (s ConnectionStatus) IsSyncable() bool {
	return s == ConnectionStatusActive || s == ConnectionStatusError
}

// CanTransitionTo reports whether the transition s -> target is legal
func (s ConnectionStatus) CanTransitionTo(target ConnectionStatus) bool {
	switch s {
	case ConnectionStatusPending:
		return target == ConnectionStatusAuthorized || target == ConnectionStatusRevoked
	case ConnectionStatusAuthorized:
		return target == ConnectionStatusActive || target == ConnectionStatusRevoked ||
			target == ConnectionStatusExpired
	case ConnectionStatusActive:
		return target == ConnectionStatusError || target == ConnectionStatusExpired ||
			target == ConnectionStatusRevoked
	case ConnectionStatusError:
		return target == ConnectionStatusActive || target == ConnectionStatusExpired ||
			target == ConnectionStatusRevoked
	default:
		// EXPIRED and REVOKED are terminal
		return false
	}
}

// ---------------------------------------------------------------------------
// Owner value object
// ---------------------------------------------------------------------------

// Owner identifies who a connection belongs to: a user or a family, never
// both and never neither. This mirrors the account ownership rule used
// throughout the system.
type Owner struct {
	UserID   *uuid.UUID
	FamilyID *uuid.UUID
}

// UserOwner creates an Owner for a single user
func UserOwner(userID uuid.UUID) Owner {
	return Owner{UserID: &userID}
}

// FamilyOwner creates an Owner for a family group
func FamilyOwner(familyID uuid.UUID) Owner {
	return Owner{FamilyID: &familyID}
}

// Validate checks the XOR ownership invariant
func (o Owner) Validate() error {
	if (o.UserID == nil) == (o.FamilyID == nil) {
		return ErrInvalidOwner
	}
	return nil
}

// IsUser returns true if the owner is a single user
func (o Owner) IsUser() bool {
	return o.UserID != nil
}

// Equals reports whether two owners identify the same principal
func (o Owner) Equals(other Owner) bool {
	if o.IsUser() != other.IsUser() {
		return false
	}
	if o.IsUser() {
		return *o.UserID == *other.UserID
	}
	if o.FamilyID == nil || other.FamilyID == nil {
		return o.FamilyID == other.FamilyID
	}
	return *o.FamilyID == *other.FamilyID
}

// String returns a log-friendly owner reference
func (o Owner) String() string {
	if o.UserID != nil {
		return "user:" + o.UserID.String()
	}
	if o.FamilyID != nil {
		return "family:" + o.FamilyID.String()
	}
	return "unowned"
}

// ---------------------------------------------------------------------------
// SyncError value object
// ---------------------------------------------------------------------------

// SyncError is the structured last-error surfaced on a connection so the user
// can see why a sync failed without log access.
type SyncError struct {
	// Code is a stable machine-readable error class
	Code string `json:"code"`
	// Message is a human-readable description
	Message string `json:"message"`
	// OccurredAt is when the failure happened
	OccurredAt time.Time `json:"occurred_at"`
}

// NewSyncError builds a SyncError from an error, classifying known sentinels
func NewSyncError(err error) *SyncError {
	code := "SYNC_FAILED"
	switch {
	case errors.Is(err, ErrProviderUnavailable):
		code = "PROVIDER_UNAVAILABLE"
	case errors.Is(err, ErrConnectionExpired):
		code = "CONSENT_EXPIRED"
	case errors.Is(err, ErrProviderAuthFailed):
		code = "PROVIDER_AUTH_FAILED"
	case errors.Is(err, ErrProviderRateLimited):
		code = "PROVIDER_RATE_LIMITED"
	}
	return &SyncError{
		Code:       code,
		Message:    err.Error(),
		OccurredAt: time.Now(),
	}
}

// ---------------------------------------------------------------------------
// BankingConnection aggregate
// ---------------------------------------------------------------------------

// BankingConnection represents one owner's attempt to link one external bank
// via one provider. All state transitions go through the methods below; the
// persistence layer never mutates Status directly.
type BankingConnection struct {
	shared.BaseAggregateRoot
	// Owner is the user or family the connection belongs to (XOR)
	Owner Owner
	// Provider is the aggregator brokering the bank access
	Provider ProviderCode
	// ExternalConnectionID is the provider-side identifier, nil until the
	// provider has responded to link initiation. Unique per provider once set.
	ExternalConnectionID *string
	// Status is the current lifecycle state
	Status ConnectionStatus
	// RedirectURL is the provider consent page handed to the frontend while
	// the connection is PENDING
	RedirectURL string
	// AuthorizedAt is when the provider confirmed consent
	AuthorizedAt *time.Time
	// ExpiresAt is when the provider consent lapses; nil for open-ended consents
	ExpiresAt *time.Time
	// LastSyncedAt is when the last successful or partial sync finished
	LastSyncedAt *time.Time
	// LastSyncError is the structured error of the last failed sync, nil after
	// a fully successful sync
	LastSyncError *SyncError
}

// NewBankingConnection creates a connection in PENDING state
func NewBankingConnection(owner Owner, provider ProviderCode) (*BankingConnection, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if !provider.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidProvider, provider)
	}
	conn := &BankingConnection{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Owner:             owner,
		Provider:          provider,
		Status:            ConnectionStatusPending,
	}
	conn.AddDomainEvent(NewConnectionInitiatedEvent(conn))
	return conn, nil
}

// AttachExternalID records the provider-side connection ID after initiation.
// The ID is written once and never changes afterwards.
func (c *BankingConnection) AttachExternalID(externalID, redirectURL string) error {
	if c.ExternalConnectionID != nil {
		return ErrExternalIDAlreadySet
	}
	c.ExternalConnectionID = &externalID
	c.RedirectURL = redirectURL
	c.Touch()
	return nil
}

// transition applies a state change after validating it against the matrix
func (c *BankingConnection) transition(target ConnectionStatus) error {
	if c.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrConnectionTerminal, c.Status)
	}
	if !c.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, target)
	}
	c.Status = target
	c.Touch()
	return nil
}

// Authorize moves PENDING -> AUTHORIZED on successful link completion
func (c *BankingConnection) Authorize(consentExpiresAt *time.Time) error {
	if err := c.transition(ConnectionStatusAuthorized); err != nil {
		return err
	}
	now := time.Now()
	c.AuthorizedAt = &now
	c.ExpiresAt = consentExpiresAt
	c.AddDomainEvent(NewConnectionAuthorizedEvent(c))
	return nil
}

// Activate moves AUTHORIZED -> ACTIVE on the first successful account listing
func (c *BankingConnection) Activate() error {
	if err := c.transition(ConnectionStatusActive); err != nil {
		return err
	}
	c.AddDomainEvent(NewConnectionActivatedEvent(c))
	return nil
}

// MarkSynced records a successful or partial sync. It clears the last error
// on full success and moves ERROR back to ACTIVE.
func (c *BankingConnection) MarkSynced(at time.Time, partialErr *SyncError) error {
	if !c.Status.IsSyncable() {
		return fmt.Errorf("%w: %s", ErrConnectionNotSyncable, c.Status)
	}
	if c.Status == ConnectionStatusError {
		if err := c.transition(ConnectionStatusActive); err != nil {
			return err
		}
	}
	c.LastSyncedAt = &at
	c.LastSyncError = partialErr
	c.Touch()
	return nil
}

// MarkSyncFailed records a total sync failure and moves ACTIVE -> ERROR.
// A connection already in ERROR stays there with the error refreshed.
func (c *BankingConnection) MarkSyncFailed(syncErr *SyncError) error {
	if !c.Status.IsSyncable() {
		return fmt.Errorf("%w: %s", ErrConnectionNotSyncable, c.Status)
	}
	if c.Status == ConnectionStatusActive {
		if err := c.transition(ConnectionStatusError); err != nil {
			return err
		}
	}
	c.LastSyncError = syncErr
	c.Touch()
	return nil
}

// Expire marks the provider consent as lapsed. Terminal.
func (c *BankingConnection) Expire() error {
	if err := c.transition(ConnectionStatusExpired); err != nil {
		return err
	}
	c.AddDomainEvent(NewConnectionExpiredEvent(c))
	return nil
}

// Revoke terminates the connection. Allowed from any non-terminal state;
// irreversible. The row is kept for audit, never deleted.
func (c *BankingConnection) Revoke() error {
	if err := c.transition(ConnectionStatusRevoked); err != nil {
		return err
	}
	c.AddDomainEvent(NewConnectionRevokedEvent(c))
	return nil
}

// ConsentLapsed reports whether the consent expiry has passed at the given time
func (c *BankingConnection) ConsentLapsed(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// PendingSince reports whether the connection has been stuck in PENDING for
// longer than the given window. Stale OAuth attempts are swept to REVOKED.
func (c *BankingConnection) PendingSince(now time.Time, window time.Duration) bool {
	return c.Status == ConnectionStatusPending && now.Sub(c.CreatedAt) > window
}

// ---------------------------------------------------------------------------
// ConnectionFilter
// ---------------------------------------------------------------------------

// ConnectionFilter defines filter criteria for connection listings
type ConnectionFilter struct {
	// Provider filters by provider code (optional)
	Provider *ProviderCode
	// Status filters by lifecycle state (optional)
	Status *ConnectionStatus
	// Page number (1-indexed)
	Page int
	// Page size
	PageSize int
}
