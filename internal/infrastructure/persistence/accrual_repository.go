package persistence

import (
	"context"
	"errors"

	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormAccrualRepository implements billing.AccrualRepository using GORM
type GormAccrualRepository struct {
	db *gorm.DB
}

// NewGormAccrualRepository creates a new GormAccrualRepository
func NewGormAccrualRepository(db *gorm.DB) *GormAccrualRepository {
	return &GormAccrualRepository{db: db}
}

var _ billing.AccrualRepository = (*GormAccrualRepository)(nil)

// FindByID finds an accrual by ID
func (r *GormAccrualRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Accrual, error) {
	var model models.AccrualModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates an accrual
func (r *GormAccrualRepository) Save(ctx context.Context, accrual *billing.Accrual) error {
	model := models.AccrualModelFromDomain(accrual)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindOutstandingByProperty returns the property's accruals together with
// their allocation totals, ordered oldest period first. The total is
// derived with a subquery at read time; nothing is cached on the accrual.
func (r *GormAccrualRepository) FindOutstandingByProperty(ctx context.Context, propertyID uuid.UUID) ([]billing.OutstandingAccrual, error) {
	var accrualModels []models.AccrualModel
	if err := r.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("period ASC, created_at ASC").
		Find(&accrualModels).Error; err != nil {
		return nil, err
	}
	if len(accrualModels) == 0 {
		return nil, nil
	}

	type allocatedRow struct {
		AccrualID uuid.UUID
		Allocated decimal.Decimal
	}
	ids := make([]uuid.UUID, len(accrualModels))
	for i := range accrualModels {
		ids[i] = accrualModels[i].ID
	}
	var allocated []allocatedRow
	if err := r.db.WithContext(ctx).Table("allocations").
		Select("accrual_id, COALESCE(SUM(amount), 0) AS allocated").
		Where("accrual_id IN ?", ids).
		Group("accrual_id").
		Scan(&allocated).Error; err != nil {
		return nil, err
	}
	allocatedByID := make(map[uuid.UUID]decimal.Decimal, len(allocated))
	for _, row := range allocated {
		allocatedByID[row.AccrualID] = row.Allocated
	}

	outstanding := make([]billing.OutstandingAccrual, len(accrualModels))
	for i := range accrualModels {
		outstanding[i] = billing.OutstandingAccrual{
			Accrual:   *accrualModels[i].ToDomain(),
			Allocated: allocatedByID[accrualModels[i].ID],
		}
	}
	return outstanding, nil
}
