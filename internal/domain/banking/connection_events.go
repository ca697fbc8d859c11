package banking

import (
	"time"

	"github.com/google/uuid"

	"github.com/fintrack/backend/internal/domain/shared"
)

// Event type constants for the banking context
const (
	EventTypeConnectionInitiated  = "BankingConnectionInitiated"
	EventTypeConnectionAuthorized = "BankingConnectionAuthorized"
	EventTypeConnectionActivated  = "BankingConnectionActivated"
	EventTypeConnectionExpired    = "BankingConnectionExpired"
	EventTypeConnectionRevoked    = "BankingConnectionRevoked"
	EventTypeSyncCompleted        = "BankingSyncCompleted"
)

// AggregateTypeBankingConnection names the aggregate in event metadata
const AggregateTypeBankingConnection = "BankingConnection"

// ConnectionInitiatedEvent is raised when a user starts linking a bank
type ConnectionInitiatedEvent struct {
	shared.BaseDomainEvent
	ConnectionID uuid.UUID    `json:"connection_id"`
	Owner        string       `json:"owner"`
	Provider     ProviderCode `json:"provider"`
}

// EventType returns the event type name
func (e *ConnectionInitiatedEvent) EventType() string {
	return EventTypeConnectionInitiated
}

// NewConnectionInitiatedEvent creates a new ConnectionInitiatedEvent
func NewConnectionInitiatedEvent(c *BankingConnection) *ConnectionInitiatedEvent {
	return &ConnectionInitiatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeConnectionInitiated, AggregateTypeBankingConnection, c.ID),
		ConnectionID:    c.ID,
		Owner:           c.Owner.String(),
		Provider:        c.Provider,
	}
}

// ConnectionAuthorizedEvent is raised when the provider confirms consent
type ConnectionAuthorizedEvent struct {
	shared.BaseDomainEvent
	ConnectionID uuid.UUID    `json:"connection_id"`
	Provider     ProviderCode `json:"provider"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
}

// EventType returns the event type name
func (e *ConnectionAuthorizedEvent) EventType() string {
	return EventTypeConnectionAuthorized
}

// NewConnectionAuthorizedEvent creates a new ConnectionAuthorizedEvent
func NewConnectionAuthorizedEvent(c *BankingConnection) *ConnectionAuthorizedEvent {
	return &ConnectionAuthorizedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeConnectionAuthorized, AggregateTypeBankingConnection, c.ID),
		ConnectionID:    c.ID,
		Provider:        c.Provider,
		ExpiresAt:       c.ExpiresAt,
	}
}

// ConnectionActivatedEvent is raised on the first successful account listing
type ConnectionActivatedEvent struct {
	shared.BaseDomainEvent
	ConnectionID uuid.UUID    `json:"connection_id"`
	Provider     ProviderCode `json:"provider"`
}

// EventType returns the event type name
func (e *ConnectionActivatedEvent) EventType() string {
	return EventTypeConnectionActivated
}

// NewConnectionActivatedEvent creates a new ConnectionActivatedEvent
func NewConnectionActivatedEvent(c *BankingConnection) *ConnectionActivatedEvent {
	return &ConnectionActivatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeConnectionActivated, AggregateTypeBankingConnection, c.ID),
		ConnectionID:    c.ID,
		Provider:        c.Provider,
	}
}

// ConnectionExpiredEvent is raised when the provider consent lapses
type ConnectionExpiredEvent struct {
	shared.BaseDomainEvent
	ConnectionID uuid.UUID    `json:"connection_id"`
	Provider     ProviderCode `json:"provider"`
}

// EventType returns the event type name
func (e *ConnectionExpiredEvent) EventType() string {
	return EventTypeConnectionExpired
}

// NewConnectionExpiredEvent creates a new ConnectionExpiredEvent
func NewConnectionExpiredEvent(c *BankingConnection) *ConnectionExpiredEvent {
	return &ConnectionExpiredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeConnectionExpired, AggregateTypeBankingConnection, c.ID),
		ConnectionID:    c.ID,
		Provider:        c.Provider,
	}
}

// ConnectionRevokedEvent is raised when a connection is terminated
type ConnectionRevokedEvent struct {
	shared.BaseDomainEvent
	ConnectionID uuid.UUID    `json:"connection_id"`
	Provider     ProviderCode `json:"provider"`
}

// EventType returns the event type name
func (e *ConnectionRevokedEvent) EventType() string {
	return EventTypeConnectionRevoked
}

// NewConnectionRevokedEvent creates a new ConnectionRevokedEvent
func NewConnectionRevokedEvent(c *BankingConnection) *ConnectionRevokedEvent {
	return &ConnectionRevokedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeConnectionRevoked, AggregateTypeBankingConnection, c.ID),
		ConnectionID:    c.ID,
		Provider:        c.Provider,
	}
}

// SyncCompletedEvent is raised after every sync run, whatever the outcome
type SyncCompletedEvent struct {
	shared.BaseDomainEvent
	ConnectionID        uuid.UUID   `json:"connection_id"`
	Outcome             SyncOutcome `json:"outcome"`
	AccountsProcessed   int         `json:"accounts_processed"`
	TransactionsCreated int         `json:"transactions_created"`
	TransactionsSkipped int         `json:"transactions_skipped"`
}

// EventType returns the event type name
func (e *SyncCompletedEvent) EventType() string {
	return EventTypeSyncCompleted
}

// NewSyncCompletedEvent creates a new SyncCompletedEvent from a finalized log
func NewSyncCompletedEvent(log *SyncLog) *SyncCompletedEvent {
	return &SyncCompletedEvent{
		BaseDomainEvent:     shared.NewBaseDomainEvent(EventTypeSyncCompleted, AggregateTypeBankingConnection, log.ConnectionID),
		ConnectionID:        log.ConnectionID,
		Outcome:             log.Outcome,
		AccountsProcessed:   log.AccountsProcessed,
		TransactionsCreated: log.TransactionsCreated,
		TransactionsSkipped: log.TransactionsSkipped,
	}
}
