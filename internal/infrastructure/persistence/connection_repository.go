package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fintrack/backend/internal/domain/banking"
	"github.com/fintrack/backend/internal/infrastructure/persistence/models"
)

// GormConnectionRepository implements banking.ConnectionRepository using GORM
type GormConnectionRepository struct {
	db *gorm.DB
}

// NewGormConnectionRepository creates a new GormConnectionRepository
func NewGormConnectionRepository(db *gorm.DB) *GormConnectionRepository {
	return &GormConnectionRepository{db: db}
}

// Save creates or updates a connection
func (r *GormConnectionRepository) Save(ctx context.Context, connection *banking.BankingConnection) error {
	model := models.BankingConnectionModelFromDomain(connection)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds a connection by its ID
func (r *GormConnectionRepository) FindByID(ctx context.Context, id uuid.UUID) (*banking.BankingConnection, error) {
	var model models.BankingConnectionModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, banking.ErrConnectionNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByExternalID finds a connection by provider and external connection ID
func (r *GormConnectionRepository) FindByExternalID(ctx context.Context, provider banking.ProviderCode, externalID string) (*banking.BankingConnection, error) {
	var model models.BankingConnectionModel
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND external_connection_id = ?", provider, externalID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, banking.ErrConnectionNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByOwner finds all connections belonging to an owner
func (r *GormConnectionRepository) FindByOwner(ctx context.Context, owner banking.Owner, filter banking.ConnectionFilter) ([]*banking.BankingConnection, int64, error) {
	if err := owner.Validate(); err != nil {
		return nil, 0, err
	}

	query := r.db.WithContext(ctx).Model(&models.BankingConnectionModel{})
	if owner.IsUser() {
		query = query.Where("user_id = ?", *owner.UserID)
	} else {
		query = query.Where("family_id = ?", *owner.FamilyID)
	}
	query = applyConnectionFilter(query, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var connectionModels []models.BankingConnectionModel
	if err := query.Order("created_at DESC").Find(&connectionModels).Error; err != nil {
		return nil, 0, err
	}

	connections := make([]*banking.BankingConnection, len(connectionModels))
	for i := range connectionModels {
		connections[i] = connectionModels[i].ToDomain()
	}
	return connections, total, nil
}

// FindPendingBefore finds PENDING connections initiated before the cutoff
func (r *GormConnectionRepository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*banking.BankingConnection, error) {
	var connectionModels []models.BankingConnectionModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", banking.ConnectionStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&connectionModels).Error; err != nil {
		return nil, err
	}

	connections := make([]*banking.BankingConnection, len(connectionModels))
	for i := range connectionModels {
		connections[i] = connectionModels[i].ToDomain()
	}
	return connections, nil
}

// FindConsentLapsed finds non-terminal connections whose consent expired before now
func (r *GormConnectionRepository) FindConsentLapsed(ctx context.Context, now time.Time, limit int) ([]*banking.BankingConnection, error) {
	var connectionModels []models.BankingConnectionModel
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
			[]banking.ConnectionStatus{
				banking.ConnectionStatusAuthorized,
				banking.ConnectionStatusActive,
				banking.ConnectionStatusError,
			}, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&connectionModels).Error; err != nil {
		return nil, err
	}

	connections := make([]*banking.BankingConnection, len(connectionModels))
	for i := range connectionModels {
		connections[i] = connectionModels[i].ToDomain()
	}
	return connections, nil
}

// FindSyncDue finds syncable connections not synced since the cutoff
func (r *GormConnectionRepository) FindSyncDue(ctx context.Context, cutoff time.Time, limit int) ([]*banking.BankingConnection, error) {
	var connectionModels []models.BankingConnectionModel
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND (last_synced_at IS NULL OR last_synced_at < ?)",
			[]banking.ConnectionStatus{
				banking.ConnectionStatusActive,
				banking.ConnectionStatusError,
			}, cutoff).
		Order("last_synced_at ASC NULLS FIRST").
		Limit(limit).
		Find(&connectionModels).Error; err != nil {
		return nil, err
	}

	connections := make([]*banking.BankingConnection, len(connectionModels))
	for i := range connectionModels {
		connections[i] = connectionModels[i].ToDomain()
	}
	return connections, nil
}

// applyConnectionFilter applies optional filter criteria to the query
func applyConnectionFilter(query *gorm.DB, filter banking.ConnectionFilter) *gorm.DB {
	if filter.Provider != nil && filter.Provider.IsValid() {
		query = query.Where("provider = ?", *filter.Provider)
	}
	if filter.Status != nil && filter.Status.IsValid() {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}

// Ensure GormConnectionRepository implements banking.ConnectionRepository
var _ banking.ConnectionRepository = (*GormConnectionRepository)(nil)
