package persistence

import (
	"context"
	"errors"

	"github.com/commledger/backend/internal/domain/penalty"
	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/commledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormPenaltyRepository implements penalty.Repository using GORM
type GormPenaltyRepository struct {
	db *gorm.DB
}

// NewGormPenaltyRepository creates a new GormPenaltyRepository
func NewGormPenaltyRepository(db *gorm.DB) *GormPenaltyRepository {
	return &GormPenaltyRepository{db: db}
}

var _ penalty.Repository = (*GormPenaltyRepository)(nil)

// FindByID finds a penalty row by ID
func (r *GormPenaltyRepository) FindByID(ctx context.Context, id uuid.UUID) (*penalty.PenaltyAccrual, error) {
	var model models.PenaltyAccrualModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByPropertyAndPeriod finds the (property, period) penalty row
func (r *GormPenaltyRepository) FindByPropertyAndPeriod(ctx context.Context, propertyID uuid.UUID, period valueobject.Period) (*penalty.PenaltyAccrual, error) {
	var model models.PenaltyAccrualModel
	if err := r.db.WithContext(ctx).
		Where("property_id = ? AND period = ?", propertyID, period.String()).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByPeriod returns all penalty rows of a period
func (r *GormPenaltyRepository) ListByPeriod(ctx context.Context, period valueobject.Period, includeVoided bool) ([]penalty.PenaltyAccrual, error) {
	query := r.db.WithContext(ctx).Where("period = ?", period.String())
	if !includeVoided {
		query = query.Where("status <> ?", penalty.StatusVoided)
	}

	var rowModels []models.PenaltyAccrualModel
	if err := query.Order("created_at ASC").Find(&rowModels).Error; err != nil {
		return nil, err
	}
	rows := make([]penalty.PenaltyAccrual, len(rowModels))
	for i := range rowModels {
		rows[i] = *rowModels[i].ToDomain()
	}
	return rows, nil
}

// Save creates or updates a penalty row
func (r *GormPenaltyRepository) Save(ctx context.Context, row *penalty.PenaltyAccrual) error {
	model := models.PenaltyAccrualModelFromDomain(row)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveGuarded persists a lifecycle transition with the expected prior
// status embedded in the write condition. When the row was concurrently
// moved out of the expected status, zero rows match and the transition is
// rejected instead of clobbering the other write.
func (r *GormPenaltyRepository) SaveGuarded(ctx context.Context, row *penalty.PenaltyAccrual, expectedStatus penalty.Status) error {
	model := models.PenaltyAccrualModelFromDomain(row)
	result := r.db.WithContext(ctx).
		Model(&models.PenaltyAccrualModel{}).
		Where("id = ? AND status = ?", row.ID, expectedStatus).
		Select("*").Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}
