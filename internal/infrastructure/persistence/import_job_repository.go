package persistence

import (
	"context"
	"errors"

	"github.com/commledger/backend/internal/domain/bulk"
	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormImportJobRepository implements bulk.ImportJobRepository using GORM
type GormImportJobRepository struct {
	db *gorm.DB
}

// NewGormImportJobRepository creates a new GormImportJobRepository
func NewGormImportJobRepository(db *gorm.DB) *GormImportJobRepository {
	return &GormImportJobRepository{db: db}
}

var _ bulk.ImportJobRepository = (*GormImportJobRepository)(nil)

// FindByID finds an import job by ID
func (r *GormImportJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*bulk.ImportJob, error) {
	var model models.ImportJobModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns import jobs, most recent first
func (r *GormImportJobRepository) FindAll(ctx context.Context, filter shared.Filter) ([]bulk.ImportJob, error) {
	query := r.db.WithContext(ctx).Model(&models.ImportJobModel{})
	if filter.Search != "" {
		query = query.Where("file_name LIKE ?", "%"+filter.Search+"%")
	}
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var jobModels []models.ImportJobModel
	if err := query.Order("started_at DESC, created_at DESC").Find(&jobModels).Error; err != nil {
		return nil, err
	}
	jobs := make([]bulk.ImportJob, len(jobModels))
	for i := range jobModels {
		jobs[i] = *jobModels[i].ToDomain()
	}
	return jobs, nil
}

// Save creates or updates an import job
func (r *GormImportJobRepository) Save(ctx context.Context, job *bulk.ImportJob) error {
	model := models.ImportJobModelFromDomain(job)
	return r.db.WithContext(ctx).Save(model).Error
}
