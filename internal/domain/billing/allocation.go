package billing

import (
	"fmt"
	"sort"
	"time"

	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Allocation links part or all of one payment to part or all of one
// accrual. Conservation is enforced at creation time against remainders
// derived from current allocation rows, never retroactively.
type Allocation struct {
	shared.BaseAggregateRoot
	PaymentID uuid.UUID       `json:"payment_id"`
	AccrualID uuid.UUID       `json:"accrual_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// NewAllocation creates an allocation after checking the requested amount
// against both remainders. Exceeding either is an allocation conflict.
func NewAllocation(paymentID, accrualID uuid.UUID, amount, paymentRemaining, accrualRemaining decimal.Decimal) (*Allocation, error) {
	if paymentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PAYMENT", "Payment ID cannot be empty")
	}
	if accrualID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ACCRUAL", "Accrual ID cannot be empty")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError(shared.ErrCodeAllocationConflict, "Allocation amount must be positive")
	}
	if amount.GreaterThan(paymentRemaining) {
		return nil, shared.NewDomainError(shared.ErrCodeAllocationConflict,
			fmt.Sprintf("Allocation amount %s exceeds payment remainder %s", amount.StringFixed(2), paymentRemaining.StringFixed(2)))
	}
	if amount.GreaterThan(accrualRemaining) {
		return nil, shared.NewDomainError(shared.ErrCodeAllocationConflict,
			fmt.Sprintf("Allocation amount %s exceeds accrual remainder %s", amount.StringFixed(2), accrualRemaining.StringFixed(2)))
	}
	return &Allocation{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PaymentID:         paymentID,
		AccrualID:         accrualID,
		Amount:            amount,
	}, nil
}

// AllocationTarget is one outstanding accrual a payment can fund
type AllocationTarget struct {
	AccrualID uuid.UUID
	Period    valueobject.Period
	Remaining decimal.Decimal
	CreatedAt time.Time
}

// PlannedAllocation is one step of an allocation plan
type PlannedAllocation struct {
	AccrualID uuid.UUID
	Period    valueobject.Period
	Amount    decimal.Decimal
}

// AllocationPlan is the result of planning one payment against a property's
// outstanding accruals. It is a pure computation; persisting the plan is
// the caller's job.
type AllocationPlan struct {
	Allocations    []PlannedAllocation
	TotalAllocated decimal.Decimal
	Remaining      decimal.Decimal
	FullySpent     bool
}

// PlanFIFO walks the targets oldest period first and consumes the payment
// remainder with min(payment remaining, accrual remaining) steps. A newer
// period is never funded while an older one still has remainder.
func PlanFIFO(paymentRemaining decimal.Decimal, targets []AllocationTarget) (*AllocationPlan, error) {
	if paymentRemaining.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment remainder must be positive")
	}

	ordered := make([]AllocationTarget, len(targets))
	copy(ordered, targets)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Period.Equal(ordered[j].Period) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].Period.Before(ordered[j].Period)
	})

	plan := &AllocationPlan{
		TotalAllocated: decimal.Zero,
		Remaining:      paymentRemaining,
	}
	for _, target := range ordered {
		if plan.Remaining.IsZero() {
			break
		}
		if target.Remaining.LessThanOrEqual(decimal.Zero) {
			continue
		}
		amount := decimal.Min(plan.Remaining, target.Remaining)
		plan.Allocations = append(plan.Allocations, PlannedAllocation{
			AccrualID: target.AccrualID,
			Period:    target.Period,
			Amount:    amount,
		})
		plan.TotalAllocated = plan.TotalAllocated.Add(amount)
		plan.Remaining = plan.Remaining.Sub(amount)
	}
	plan.FullySpent = plan.Remaining.IsZero()
	return plan, nil
}
