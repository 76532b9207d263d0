package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormPaymentRepository implements billing.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

var _ billing.PaymentRepository = (*GormPaymentRepository)(nil)

// FindByID finds a payment by ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates a payment
func (r *GormPaymentRepository) Save(ctx context.Context, payment *billing.Payment) error {
	model := models.PaymentModelFromDomain(payment)
	return r.db.WithContext(ctx).Save(model).Error
}

// ExistsByExternalID reports whether any stored payment carries the given
// source-system reference. Voided payments count: a retracted payment
// still blocks re-import of the same source row.
func (r *GormPaymentRepository) ExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	if externalID == "" {
		return false, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Where("external_id = ?", externalID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExistsByFingerprint reports whether any stored payment carries the given
// content fingerprint.
func (r *GormPaymentRepository) ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Where("fingerprint = ?", fingerprint).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExistsSimilarOnDay reports whether a non-voided payment with the same
// property, amount and calendar day is already on file.
func (r *GormPaymentRepository) ExistsSimilarOnDay(ctx context.Context, propertyID uuid.UUID, amount decimal.Decimal, day time.Time) (bool, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Where("property_id = ? AND amount = ? AND voided = ? AND paid_at >= ? AND paid_at < ?",
			propertyID, amount, false, dayStart, dayEnd).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindAllocatable returns non-voided, property-resolved payments whose
// derived remainder is positive, oldest payment date first.
func (r *GormPaymentRepository) FindAllocatable(ctx context.Context, filter billing.AllocatableFilter) ([]billing.Payment, error) {
	query := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Where("voided = ?", false).
		Where("property_id IS NOT NULL").
		Where("amount > COALESCE((SELECT SUM(a.amount) FROM allocations a WHERE a.payment_id = payments.id), 0)")

	if filter.Period != nil {
		from, to := filter.Period.Range()
		query = query.Where("paid_at >= ? AND paid_at < ?", from, to)
	}
	if len(filter.PaymentIDs) > 0 {
		query = query.Where("id IN ?", filter.PaymentIDs)
	}

	var paymentModels []models.PaymentModel
	if err := query.Order("paid_at ASC, created_at ASC").Find(&paymentModels).Error; err != nil {
		return nil, err
	}
	payments := make([]billing.Payment, len(paymentModels))
	for i := range paymentModels {
		payments[i] = *paymentModels[i].ToDomain()
	}
	return payments, nil
}
