package billing

import (
	"context"
	"time"

	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocatableFilter selects payments eligible for automatic allocation
type AllocatableFilter struct {
	Period     *valueobject.Period // restrict by paid_at falling inside the period
	PaymentIDs []uuid.UUID         // explicit list; overrides nothing else
}

// PaymentRepository provides access to payments
type PaymentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	Save(ctx context.Context, payment *Payment) error

	// ExistsByExternalID reports whether any stored payment carries the
	// given source-system reference.
	ExistsByExternalID(ctx context.Context, externalID string) (bool, error)
	// ExistsByFingerprint reports whether any stored payment carries the
	// given content fingerprint.
	ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error)
	// ExistsSimilarOnDay reports whether a non-voided payment with the same
	// property, amount and calendar day is already on file. Advisory only:
	// used by the import preview, never enforced at commit.
	ExistsSimilarOnDay(ctx context.Context, propertyID uuid.UUID, amount decimal.Decimal, day time.Time) (bool, error)

	// FindAllocatable returns non-voided, property-resolved payments whose
	// derived remainder is positive, matching the filter.
	FindAllocatable(ctx context.Context, filter AllocatableFilter) ([]Payment, error)
}

// OutstandingAccrual pairs an accrual with its current allocation total
type OutstandingAccrual struct {
	Accrual
	Allocated decimal.Decimal
}

// RemainingAmount returns the derived unpaid remainder
func (o *OutstandingAccrual) RemainingAmount() decimal.Decimal {
	return o.Accrual.Remaining(o.Allocated)
}

// AccrualRepository provides access to accruals
type AccrualRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Accrual, error)
	Save(ctx context.Context, accrual *Accrual) error

	// FindOutstandingByProperty returns the property's accruals together
	// with their allocation totals, ordered oldest period first.
	FindOutstandingByProperty(ctx context.Context, propertyID uuid.UUID) ([]OutstandingAccrual, error)
}

// AllocationRepository provides access to allocation rows. Write methods
// carry the conservation guard: implementations must re-derive both
// remainders from current allocation rows inside the same transaction as
// the insert, and reject with an ALLOCATION_CONFLICT domain error when the
// requested amount no longer fits. This closes the race where two
// concurrent allocations both pass a stale remainder check.
type AllocationRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Allocation, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]Allocation, error)
	SumByPayment(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error)
	SumByAccrual(ctx context.Context, accrualID uuid.UUID) (decimal.Decimal, error)

	// Create inserts exactly one allocation under the conservation guard.
	Create(ctx context.Context, allocation *Allocation) error
	// CreateBatch inserts all allocations in one all-or-nothing
	// transaction; a guard failure on any row rolls back the whole batch.
	CreateBatch(ctx context.Context, allocations []Allocation) error

	// Delete removes one allocation and returns the removed row so callers
	// can compute which period aggregates went stale.
	Delete(ctx context.Context, id uuid.UUID) (*Allocation, error)
	// DeleteByPayment removes all allocations of a payment and returns the
	// removed rows.
	DeleteByPayment(ctx context.Context, paymentID uuid.UUID) ([]Allocation, error)
}
