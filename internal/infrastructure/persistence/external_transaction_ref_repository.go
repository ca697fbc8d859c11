package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fintrack/backend/internal/domain/banking"
	"github.com/fintrack/backend/internal/infrastructure/persistence/models"
)

// GormExternalTransactionRefRepository implements
// banking.ExternalTransactionRefRepository using GORM
type GormExternalTransactionRefRepository struct {
	db *gorm.DB
}

// NewGormExternalTransactionRefRepository creates a new GormExternalTransactionRefRepository
func NewGormExternalTransactionRefRepository(db *gorm.DB) *GormExternalTransactionRefRepository {
	return &GormExternalTransactionRefRepository{db: db}
}

// CreateBatch persists multiple refs. Refs are insert-only; a unique index
// violation here means the reconciler produced a duplicate and the whole
// transaction must roll back.
func (r *GormExternalTransactionRefRepository) CreateBatch(ctx context.Context, refs []banking.ExternalTransactionRef) error {
	if len(refs) == 0 {
		return nil
	}

	refModels := make([]*models.ExternalTransactionRefModel, len(refs))
	for i, ref := range refs {
		refModels[i] = models.ExternalTransactionRefModelFromDomain(ref)
	}

	return r.db.WithContext(ctx).Create(refModels).Error
}

// FindByLocalAccountIDs finds all refs for the given local accounts
func (r *GormExternalTransactionRefRepository) FindByLocalAccountIDs(ctx context.Context, localAccountIDs []uuid.UUID) ([]banking.ExternalTransactionRef, error) {
	if len(localAccountIDs) == 0 {
		return []banking.ExternalTransactionRef{}, nil
	}

	var refModels []models.ExternalTransactionRefModel
	if err := r.db.WithContext(ctx).
		Where("local_account_id IN ?", localAccountIDs).
		Find(&refModels).Error; err != nil {
		return nil, err
	}

	refs := make([]banking.ExternalTransactionRef, len(refModels))
	for i := range refModels {
		refs[i] = refModels[i].ToDomain()
	}
	return refs, nil
}

// Ensure GormExternalTransactionRefRepository implements the port
var _ banking.ExternalTransactionRefRepository = (*GormExternalTransactionRefRepository)(nil)
