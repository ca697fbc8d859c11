package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/fintrack/backend/internal/domain/banking"
)

// GormUnitOfWork implements banking.UnitOfWork on a GORM database transaction.
// All repositories handed to the callback share one transaction, so a sync's
// change-set, connection state and audit log commit or roll back together.
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewGormUnitOfWork creates a new GormUnitOfWork
func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

// Execute runs fn inside a database transaction. The function's error rolls
// everything back; nil commits.
func (u *GormUnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, repos banking.TxRepositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := banking.TxRepositories{
			Connections:    NewGormConnectionRepository(tx),
			LinkedAccounts: NewGormLinkedAccountRepository(tx),
			SyncLogs:       NewGormSyncLogRepository(tx),
			Refs:           NewGormExternalTransactionRefRepository(tx),
			Ledger:         NewGormLedger(tx),
		}
		return fn(ctx, repos)
	})
}

// Ensure GormUnitOfWork implements banking.UnitOfWork
var _ banking.UnitOfWork = (*GormUnitOfWork)(nil)
