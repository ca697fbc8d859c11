package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fintrack/backend/internal/domain/banking"
	"github.com/fintrack/backend/internal/domain/shared"
	"github.com/fintrack/backend/internal/infrastructure/persistence/models"
)

// GormLinkedAccountRepository implements banking.LinkedAccountRepository using GORM
type GormLinkedAccountRepository struct {
	db *gorm.DB
}

// NewGormLinkedAccountRepository creates a new GormLinkedAccountRepository
func NewGormLinkedAccountRepository(db *gorm.DB) *GormLinkedAccountRepository {
	return &GormLinkedAccountRepository{db: db}
}

// Save creates or updates a linked account
func (r *GormLinkedAccountRepository) Save(ctx context.Context, account *banking.LinkedAccount) error {
	model := models.LinkedAccountModelFromDomain(account)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveBatch creates or updates multiple linked accounts
func (r *GormLinkedAccountRepository) SaveBatch(ctx context.Context, accounts []*banking.LinkedAccount) error {
	if len(accounts) == 0 {
		return nil
	}

	accountModels := make([]*models.LinkedAccountModel, len(accounts))
	for i, a := range accounts {
		accountModels[i] = models.LinkedAccountModelFromDomain(a)
	}

	return r.db.WithContext(ctx).Save(accountModels).Error
}

// FindByID finds a linked account by its ID
func (r *GormLinkedAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*banking.LinkedAccount, error) {
	var model models.LinkedAccountModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByConnectionID finds all linked accounts of a connection
func (r *GormLinkedAccountRepository) FindByConnectionID(ctx context.Context, connectionID uuid.UUID) ([]*banking.LinkedAccount, error) {
	var accountModels []models.LinkedAccountModel
	if err := r.db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Order("created_at ASC").
		Find(&accountModels).Error; err != nil {
		return nil, err
	}

	accounts := make([]*banking.LinkedAccount, len(accountModels))
	for i := range accountModels {
		accounts[i] = accountModels[i].ToDomain()
	}
	return accounts, nil
}

// DeleteByConnectionID removes all bindings of a connection. Local accounts
// and their transactions are untouched.
func (r *GormLinkedAccountRepository) DeleteByConnectionID(ctx context.Context, connectionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&models.LinkedAccountModel{}, "connection_id = ?", connectionID).Error
}

// Ensure GormLinkedAccountRepository implements banking.LinkedAccountRepository
var _ banking.LinkedAccountRepository = (*GormLinkedAccountRepository)(nil)
