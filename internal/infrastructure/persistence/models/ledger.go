package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionSource marks how a ledger transaction came to exist.
type TransactionSource string

const (
	// TransactionSourceManual marks a transaction entered by hand
	TransactionSourceManual TransactionSource = "MANUAL"
	// TransactionSourceImported marks a transaction created by a bank sync
	TransactionSourceImported TransactionSource = "IMPORTED"
)

// AccountModel is the persistence model for local ledger accounts. Accounts
// created by a bank sync outlive the connection that created them.
type AccountModel struct {
	BaseModel
	UserID         *uuid.UUID      `gorm:"type:uuid;index:idx_accounts_user"`
	FamilyID       *uuid.UUID      `gorm:"type:uuid;index:idx_accounts_family"`
	Name           string          `gorm:"type:varchar(255);not null"`
	Currency       string          `gorm:"type:varchar(3);not null"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Imported       bool            `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (AccountModel) TableName() string {
	return "accounts"
}

// TransactionModel is the persistence model for local ledger transactions.
type TransactionModel struct {
	BaseModel
	AccountID   uuid.UUID         `gorm:"type:uuid;not null;index:idx_transactions_account"`
	Amount      decimal.Decimal   `gorm:"type:decimal(18,2);not null"`
	Currency    string            `gorm:"type:varchar(3);not null"`
	Description string            `gorm:"type:text"`
	MadeOn      time.Time         `gorm:"not null;index"`
	Pending     bool              `gorm:"not null;default:false"`
	Source      TransactionSource `gorm:"type:varchar(20);not null;default:'MANUAL'"`
}

// TableName returns the table name for GORM
func (TransactionModel) TableName() string {
	return "transactions"
}
