package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fintrack/backend/internal/domain/banking"
)

// BankingConnectionModel is the persistence model for the BankingConnection aggregate.
type BankingConnectionModel struct {
	AggregateModel
	UserID               *uuid.UUID               `gorm:"type:uuid;index:idx_banking_connections_user"`
	FamilyID             *uuid.UUID               `gorm:"type:uuid;index:idx_banking_connections_family"`
	Provider             banking.ProviderCode     `gorm:"type:varchar(20);not null;uniqueIndex:uq_banking_connections_external,priority:1"`
	ExternalConnectionID *string                  `gorm:"type:varchar(100);uniqueIndex:uq_banking_connections_external,priority:2"`
	Status               banking.ConnectionStatus `gorm:"type:varchar(20);not null;index"`
	RedirectURL          string                   `gorm:"type:text"`
	AuthorizedAt         *time.Time
	ExpiresAt            *time.Time `gorm:"index"`
	LastSyncedAt         *time.Time
	LastSyncErrorJSON    string `gorm:"type:jsonb;column:last_sync_error"`
}

// TableName returns the table name for GORM
func (BankingConnectionModel) TableName() string {
	return "banking_connections"
}

// ToDomain converts the persistence model to a domain BankingConnection aggregate.
func (m *BankingConnectionModel) ToDomain() *banking.BankingConnection {
	conn := &banking.BankingConnection{
		Owner: banking.Owner{
			UserID:   m.UserID,
			FamilyID: m.FamilyID,
		},
		Provider:             m.Provider,
		ExternalConnectionID: m.ExternalConnectionID,
		Status:               m.Status,
		RedirectURL:          m.RedirectURL,
		AuthorizedAt:         m.AuthorizedAt,
		ExpiresAt:            m.ExpiresAt,
		LastSyncedAt:         m.LastSyncedAt,
	}
	m.PopulateAggregateRoot(&conn.BaseAggregateRoot)

	if m.LastSyncErrorJSON != "" {
		var syncErr banking.SyncError
		if err := json.Unmarshal([]byte(m.LastSyncErrorJSON), &syncErr); err == nil {
			conn.LastSyncError = &syncErr
		}
	}

	return conn
}

// FromDomain populates the persistence model from a domain BankingConnection aggregate.
func (m *BankingConnectionModel) FromDomain(c *banking.BankingConnection) {
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	m.UserID = c.Owner.UserID
	m.FamilyID = c.Owner.FamilyID
	m.Provider = c.Provider
	m.ExternalConnectionID = c.ExternalConnectionID
	m.Status = c.Status
	m.RedirectURL = c.RedirectURL
	m.AuthorizedAt = c.AuthorizedAt
	m.ExpiresAt = c.ExpiresAt
	m.LastSyncedAt = c.LastSyncedAt

	if c.LastSyncError != nil {
		if jsonBytes, err := json.Marshal(c.LastSyncError); err == nil {
			m.LastSyncErrorJSON = string(jsonBytes)
		}
	} else {
		m.LastSyncErrorJSON = ""
	}
}

// BankingConnectionModelFromDomain creates a new persistence model from a domain aggregate.
func BankingConnectionModelFromDomain(c *banking.BankingConnection) *BankingConnectionModel {
	m := &BankingConnectionModel{}
	m.FromDomain(c)
	return m
}

// LinkedAccountModel is the persistence model for the LinkedAccount entity.
type LinkedAccountModel struct {
	BaseModel
	ConnectionID      uuid.UUID                 `gorm:"type:uuid;not null;uniqueIndex:uq_linked_accounts_external,priority:1;index:idx_linked_accounts_connection"`
	LocalAccountID    uuid.UUID                 `gorm:"type:uuid;not null;index:idx_linked_accounts_local_account"`
	ExternalAccountID string                    `gorm:"type:varchar(100);not null;uniqueIndex:uq_linked_accounts_external,priority:2"`
	Name              string                    `gorm:"type:varchar(255);not null"`
	Currency          string                    `gorm:"type:varchar(3);not null"`
	CurrentBalance    decimal.Decimal           `gorm:"type:decimal(18,2);not null;default:0"`
	SyncStatus        banking.AccountSyncStatus `gorm:"type:varchar(20);not null;default:'IDLE'"`
	LastSyncedAt      *time.Time
}

// TableName returns the table name for GORM
func (LinkedAccountModel) TableName() string {
	return "linked_accounts"
}

// ToDomain converts the persistence model to a domain LinkedAccount entity.
func (m *LinkedAccountModel) ToDomain() *banking.LinkedAccount {
	return &banking.LinkedAccount{
		BaseEntity:        m.BaseModel.ToDomain(),
		ConnectionID:      m.ConnectionID,
		LocalAccountID:    m.LocalAccountID,
		ExternalAccountID: m.ExternalAccountID,
		Name:              m.Name,
		Currency:          m.Currency,
		CurrentBalance:    m.CurrentBalance,
		SyncStatus:        m.SyncStatus,
		LastSyncedAt:      m.LastSyncedAt,
	}
}

// FromDomain populates the persistence model from a domain LinkedAccount entity.
func (m *LinkedAccountModel) FromDomain(a *banking.LinkedAccount) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.ConnectionID = a.ConnectionID
	m.LocalAccountID = a.LocalAccountID
	m.ExternalAccountID = a.ExternalAccountID
	m.Name = a.Name
	m.Currency = a.Currency
	m.CurrentBalance = a.CurrentBalance
	m.SyncStatus = a.SyncStatus
	m.LastSyncedAt = a.LastSyncedAt
}

// LinkedAccountModelFromDomain creates a new persistence model from a domain entity.
func LinkedAccountModelFromDomain(a *banking.LinkedAccount) *LinkedAccountModel {
	m := &LinkedAccountModel{}
	m.FromDomain(a)
	return m
}

// SyncLogModel is the persistence model for the SyncLog audit record.
type SyncLogModel struct {
	ID                  uuid.UUID           `gorm:"type:uuid;primary_key"`
	ConnectionID        uuid.UUID           `gorm:"type:uuid;not null;index:idx_sync_logs_connection"`
	StartedAt           time.Time           `gorm:"not null;index"`
	CompletedAt         *time.Time          `gorm:""`
	Outcome             banking.SyncOutcome `gorm:"type:varchar(20);not null;default:'IN_PROGRESS'"`
	AccountsProcessed   int                 `gorm:"not null;default:0"`
	TransactionsCreated int                 `gorm:"not null;default:0"`
	TransactionsSkipped int                 `gorm:"not null;default:0"`
	ErrorDetailJSON     string              `gorm:"type:jsonb;column:error_detail"`
}

// TableName returns the table name for GORM
func (SyncLogModel) TableName() string {
	return "sync_logs"
}

// ToDomain converts the persistence model to a domain SyncLog.
func (m *SyncLogModel) ToDomain() *banking.SyncLog {
	log := &banking.SyncLog{
		ID:                  m.ID,
		ConnectionID:        m.ConnectionID,
		StartedAt:           m.StartedAt,
		CompletedAt:         m.CompletedAt,
		Outcome:             m.Outcome,
		AccountsProcessed:   m.AccountsProcessed,
		TransactionsCreated: m.TransactionsCreated,
		TransactionsSkipped: m.TransactionsSkipped,
	}

	if m.ErrorDetailJSON != "" {
		var detail banking.SyncError
		if err := json.Unmarshal([]byte(m.ErrorDetailJSON), &detail); err == nil {
			log.ErrorDetail = &detail
		}
	}

	return log
}

// FromDomain populates the persistence model from a domain SyncLog.
func (m *SyncLogModel) FromDomain(l *banking.SyncLog) {
	m.ID = l.ID
	m.ConnectionID = l.ConnectionID
	m.StartedAt = l.StartedAt
	m.CompletedAt = l.CompletedAt
	m.Outcome = l.Outcome
	m.AccountsProcessed = l.AccountsProcessed
	m.TransactionsCreated = l.TransactionsCreated
	m.TransactionsSkipped = l.TransactionsSkipped

	if l.ErrorDetail != nil {
		if jsonBytes, err := json.Marshal(l.ErrorDetail); err == nil {
			m.ErrorDetailJSON = string(jsonBytes)
		}
	} else {
		m.ErrorDetailJSON = ""
	}
}

// SyncLogModelFromDomain creates a new persistence model from a domain SyncLog.
func SyncLogModelFromDomain(l *banking.SyncLog) *SyncLogModel {
	m := &SyncLogModel{}
	m.FromDomain(l)
	return m
}

// ExternalTransactionRefModel is the persistence model for import fingerprints.
// The unique index on (local_account_id, external_transaction_id) is the
// database-level guarantee against duplicate imports.
type ExternalTransactionRefModel struct {
	LocalAccountID        uuid.UUID `gorm:"type:uuid;primary_key;uniqueIndex:uq_external_transaction_refs_fingerprint,priority:1"`
	ExternalTransactionID string    `gorm:"type:varchar(100);primary_key;uniqueIndex:uq_external_transaction_refs_fingerprint,priority:2"`
	LocalTransactionID    uuid.UUID `gorm:"type:uuid;not null;index:idx_external_transaction_refs_transaction"`
	CreatedAt             time.Time `gorm:"not null"`

	// A fingerprint lives exactly as long as the rows it maps: deleting the
	// imported transaction (or its account) cascades the fingerprint away so
	// the transaction can be imported again.
	Account     *AccountModel     `gorm:"foreignKey:LocalAccountID;constraint:OnDelete:CASCADE"`
	Transaction *TransactionModel `gorm:"foreignKey:LocalTransactionID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (ExternalTransactionRefModel) TableName() string {
	return "external_transaction_refs"
}

// ToDomain converts the persistence model to a domain ExternalTransactionRef.
func (m *ExternalTransactionRefModel) ToDomain() banking.ExternalTransactionRef {
	return banking.ExternalTransactionRef{
		LocalAccountID:        m.LocalAccountID,
		ExternalTransactionID: m.ExternalTransactionID,
		LocalTransactionID:    m.LocalTransactionID,
		CreatedAt:             m.CreatedAt,
	}
}

// ExternalTransactionRefModelFromDomain creates a persistence model from a domain ref.
func ExternalTransactionRefModelFromDomain(r banking.ExternalTransactionRef) *ExternalTransactionRefModel {
	return &ExternalTransactionRefModel{
		LocalAccountID:        r.LocalAccountID,
		ExternalTransactionID: r.ExternalTransactionID,
		LocalTransactionID:    r.LocalTransactionID,
		CreatedAt:             r.CreatedAt,
	}
}
