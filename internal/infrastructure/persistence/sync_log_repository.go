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

// GormSyncLogRepository implements banking.SyncLogRepository using GORM
type GormSyncLogRepository struct {
	db *gorm.DB
}

// NewGormSyncLogRepository creates a new GormSyncLogRepository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// Create persists a new sync log
func (r *GormSyncLogRepository) Create(ctx context.Context, log *banking.SyncLog) error {
	model := models.SyncLogModelFromDomain(log)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update persists the finalized state of a sync log
func (r *GormSyncLogRepository) Update(ctx context.Context, log *banking.SyncLog) error {
	model := models.SyncLogModelFromDomain(log)
	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a sync log by its ID
func (r *GormSyncLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*banking.SyncLog, error) {
	var model models.SyncLogModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByConnectionID finds sync logs of a connection, newest first
func (r *GormSyncLogRepository) FindByConnectionID(ctx context.Context, connectionID uuid.UUID, page, pageSize int) ([]*banking.SyncLog, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.SyncLogModel{}).
		Where("connection_id = ?", connectionID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page > 0 && pageSize > 0 {
		query = query.Offset((page - 1) * pageSize).Limit(pageSize)
	}

	var logModels []models.SyncLogModel
	if err := query.Order("started_at DESC").Find(&logModels).Error; err != nil {
		return nil, 0, err
	}

	logs := make([]*banking.SyncLog, len(logModels))
	for i := range logModels {
		logs[i] = logModels[i].ToDomain()
	}
	return logs, total, nil
}

// FindLatestByConnectionID finds the most recent sync log of a connection
func (r *GormSyncLogRepository) FindLatestByConnectionID(ctx context.Context, connectionID uuid.UUID) (*banking.SyncLog, error) {
	var model models.SyncLogModel
	if err := r.db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Order("started_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure GormSyncLogRepository implements banking.SyncLogRepository
var _ banking.SyncLogRepository = (*GormSyncLogRepository)(nil)
