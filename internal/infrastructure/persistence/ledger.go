package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/fintrack/backend/internal/domain/banking"
	"github.com/fintrack/backend/internal/domain/shared"
	"github.com/fintrack/backend/internal/infrastructure/persistence/models"
)

// GormLedger implements banking.Ledger on the local account and transaction
// tables. Records it creates are marked as imported so they can be told apart
// from manual entries.
type GormLedger struct {
	db *gorm.DB
}

// NewGormLedger creates a new GormLedger
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// CreateAccount creates a local account for the owner and returns its ID
func (l *GormLedger) CreateAccount(ctx context.Context, owner banking.Owner, name, currency string, balance decimal.Decimal) (uuid.UUID, error) {
	if err := owner.Validate(); err != nil {
		return uuid.Nil, err
	}

	model := &models.AccountModel{
		UserID:         owner.UserID,
		FamilyID:       owner.FamilyID,
		Name:           name,
		Currency:       currency,
		CurrentBalance: balance,
		Imported:       true,
	}
	model.FromDomainBaseEntity(shared.NewBaseEntity())

	if err := l.db.WithContext(ctx).Create(model).Error; err != nil {
		return uuid.Nil, err
	}
	return model.ID, nil
}

// UpdateAccountBalance sets the current balance of a local account
func (l *GormLedger) UpdateAccountBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) error {
	result := l.db.WithContext(ctx).
		Model(&models.AccountModel{}).
		Where("id = ?", accountID).
		Updates(map[string]any{
			"current_balance": balance,
			"updated_at":      gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateTransaction creates a local transaction from an imported external one
// and returns its ID
func (l *GormLedger) CreateTransaction(ctx context.Context, accountID uuid.UUID, external banking.ExternalTransaction) (uuid.UUID, error) {
	if accountID == uuid.Nil {
		return uuid.Nil, errors.New("persistence: transaction requires an account ID")
	}

	model := &models.TransactionModel{
		AccountID:   accountID,
		Amount:      external.Amount,
		Currency:    external.Currency,
		Description: external.Description,
		MadeOn:      external.MadeOn,
		Pending:     external.Pending,
		Source:      models.TransactionSourceImported,
	}
	model.FromDomainBaseEntity(shared.NewBaseEntity())

	if err := l.db.WithContext(ctx).Create(model).Error; err != nil {
		return uuid.Nil, err
	}
	return model.ID, nil
}

// Ensure GormLedger implements banking.Ledger
var _ banking.Ledger = (*GormLedger)(nil)
