package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAllocationRepository implements billing.AllocationRepository using
// GORM. Writes re-derive both remainders from current allocation rows
// inside the insert transaction, so a stale check at the service layer can
// never overspend a payment or overfill an accrual.
type GormAllocationRepository struct {
	db *gorm.DB
}

// NewGormAllocationRepository creates a new GormAllocationRepository
func NewGormAllocationRepository(db *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: db}
}

var _ billing.AllocationRepository = (*GormAllocationRepository)(nil)

// FindByID finds an allocation by ID
func (r *GormAllocationRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Allocation, error) {
	var model models.AllocationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByPayment returns all allocations of a payment, oldest first
func (r *GormAllocationRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]billing.Allocation, error) {
	var allocationModels []models.AllocationModel
	if err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&allocationModels).Error; err != nil {
		return nil, err
	}
	allocations := make([]billing.Allocation, len(allocationModels))
	for i := range allocationModels {
		allocations[i] = *allocationModels[i].ToDomain()
	}
	return allocations, nil
}

// SumByPayment returns the allocation total of a payment
func (r *GormAllocationRepository) SumByPayment(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error) {
	return sumAllocations(r.db.WithContext(ctx), "payment_id", paymentID)
}

// SumByAccrual returns the allocation total of an accrual
func (r *GormAllocationRepository) SumByAccrual(ctx context.Context, accrualID uuid.UUID) (decimal.Decimal, error) {
	return sumAllocations(r.db.WithContext(ctx), "accrual_id", accrualID)
}

func sumAllocations(db *gorm.DB, column string, id uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := db.Table("allocations").
		Select("COALESCE(SUM(amount), 0)").
		Where(fmt.Sprintf("%s = ?", column), id).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// Create inserts exactly one allocation under the conservation guard.
func (r *GormAllocationRepository) Create(ctx context.Context, allocation *billing.Allocation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createAllocationGuarded(tx, allocation)
	})
}

// CreateBatch inserts all allocations in one all-or-nothing transaction.
// A guard failure on any row rolls back the whole batch.
func (r *GormAllocationRepository) CreateBatch(ctx context.Context, allocations []billing.Allocation) error {
	if len(allocations) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range allocations {
			if err := createAllocationGuarded(tx, &allocations[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// createAllocationGuarded locks the payment and accrual rows, re-derives
// both remainders from allocation rows inside the transaction, and inserts
// only when the amount still fits both.
func createAllocationGuarded(tx *gorm.DB, allocation *billing.Allocation) error {
	var payment models.PaymentModel
	if err := lockForUpdate(tx).First(&payment, "id = ?", allocation.PaymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.ErrNotFound
		}
		return err
	}
	if payment.Voided {
		return shared.NewDomainError(shared.ErrCodeAllocationConflict,
			"Cannot allocate a voided payment")
	}

	var accrual models.AccrualModel
	if err := lockForUpdate(tx).First(&accrual, "id = ?", allocation.AccrualID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.ErrNotFound
		}
		return err
	}

	paymentAllocated, err := sumAllocations(tx, "payment_id", allocation.PaymentID)
	if err != nil {
		return err
	}
	accrualAllocated, err := sumAllocations(tx, "accrual_id", allocation.AccrualID)
	if err != nil {
		return err
	}

	if allocation.Amount.GreaterThan(payment.Amount.Sub(paymentAllocated)) {
		return shared.NewDomainError(shared.ErrCodeAllocationConflict,
			fmt.Sprintf("Allocation amount %s exceeds payment remainder %s",
				allocation.Amount.StringFixed(2), payment.Amount.Sub(paymentAllocated).StringFixed(2)))
	}
	if allocation.Amount.GreaterThan(accrual.Amount.Sub(accrualAllocated)) {
		return shared.NewDomainError(shared.ErrCodeAllocationConflict,
			fmt.Sprintf("Allocation amount %s exceeds accrual remainder %s",
				allocation.Amount.StringFixed(2), accrual.Amount.Sub(accrualAllocated).StringFixed(2)))
	}

	return tx.Create(models.AllocationModelFromDomain(allocation)).Error
}

// lockForUpdate adds a row lock on dialects that support it. SQLite
// serializes writers on its own and rejects the FOR UPDATE syntax.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// Delete removes one allocation and returns the removed row
func (r *GormAllocationRepository) Delete(ctx context.Context, id uuid.UUID) (*billing.Allocation, error) {
	var removed *billing.Allocation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model models.AllocationModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound
			}
			return err
		}
		if err := tx.Delete(&models.AllocationModel{}, "id = ?", id).Error; err != nil {
			return err
		}
		removed = model.ToDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// DeleteByPayment removes all allocations of a payment and returns the
// removed rows.
func (r *GormAllocationRepository) DeleteByPayment(ctx context.Context, paymentID uuid.UUID) ([]billing.Allocation, error) {
	var removed []billing.Allocation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var allocationModels []models.AllocationModel
		if err := tx.Where("payment_id = ?", paymentID).Find(&allocationModels).Error; err != nil {
			return err
		}
		if len(allocationModels) == 0 {
			return nil
		}
		if err := tx.Delete(&models.AllocationModel{}, "payment_id = ?", paymentID).Error; err != nil {
			return err
		}
		removed = make([]billing.Allocation, len(allocationModels))
		for i := range allocationModels {
			removed[i] = *allocationModels[i].ToDomain()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
