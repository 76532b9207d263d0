// Package billing coordinates payments, accruals and the allocation rows
// linking them. Remainders are always derived from allocation rows at the
// moment of use; no balance is ever cached on a payment or accrual.
package billing

import (
	"context"

	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReportInvalidator drops cached report summaries of touched periods.
// Allocation writes call it so a reconciliation change is never hidden by
// a stale cache entry.
type ReportInvalidator interface {
	InvalidatePeriods(ctx context.Context, periods []valueobject.Period)
}

// AllocationService applies payments to accruals, automatically in FIFO
// order or manually one pair at a time, and unapplies them.
type AllocationService struct {
	paymentRepo    billing.PaymentRepository
	accrualRepo    billing.AccrualRepository
	allocationRepo billing.AllocationRepository
	invalidator    ReportInvalidator
	logger         *zap.Logger
}

// NewAllocationService creates a new AllocationService
func NewAllocationService(
	paymentRepo billing.PaymentRepository,
	accrualRepo billing.AccrualRepository,
	allocationRepo billing.AllocationRepository,
	invalidator ReportInvalidator,
	logger *zap.Logger,
) *AllocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationService{
		paymentRepo:    paymentRepo,
		accrualRepo:    accrualRepo,
		allocationRepo: allocationRepo,
		invalidator:    invalidator,
		logger:         logger,
	}
}

// AutoAllocateRequest selects the payments to run FIFO allocation over
type AutoAllocateRequest struct {
	Period     *valueobject.Period
	PaymentIDs []uuid.UUID
}

// PaymentAllocationOutcome describes what auto-allocation did to one payment
type PaymentAllocationOutcome struct {
	PaymentID  uuid.UUID       `json:"payment_id"`
	Allocated  decimal.Decimal `json:"allocated"`
	Remaining  decimal.Decimal `json:"remaining"`
	FullySpent bool            `json:"fully_spent"`
	Steps      int             `json:"steps"`
}

// AutoAllocateResult summarizes one auto-allocation run
type AutoAllocateResult struct {
	Payments       []PaymentAllocationOutcome `json:"payments"`
	TotalAllocated decimal.Decimal            `json:"total_allocated"`
	PeriodsTouched []valueobject.Period       `json:"periods_touched"`
}

// AutoAllocate runs FIFO allocation over every eligible payment in the
// selection. Planning is side-effect-free; every planned allocation of the
// run is then persisted as a single all-or-nothing batch, so a failure
// partway through, including a conflicting concurrent write, leaves no
// allocations from this invocation behind.
func (s *AllocationService) AutoAllocate(ctx context.Context, req AutoAllocateRequest) (*AutoAllocateResult, error) {
	payments, err := s.paymentRepo.FindAllocatable(ctx, billing.AllocatableFilter{
		Period:     req.Period,
		PaymentIDs: req.PaymentIDs,
	})
	if err != nil {
		return nil, err
	}

	result := &AutoAllocateResult{TotalAllocated: decimal.Zero}
	var run []billing.Allocation
	var stale []valueobject.Period
	consumed := make(map[uuid.UUID]decimal.Decimal)

	for i := range payments {
		payment := &payments[i]
		outcome, planned, touched, err := s.planPayment(ctx, payment, consumed)
		if err != nil {
			return nil, err
		}
		if outcome == nil {
			continue
		}
		run = append(run, planned...)
		result.Payments = append(result.Payments, *outcome)
		result.TotalAllocated = result.TotalAllocated.Add(outcome.Allocated)
		stale = appendPeriods(stale, touched)
	}

	if len(run) > 0 {
		if err := s.allocationRepo.CreateBatch(ctx, run); err != nil {
			if isAllocationConflict(err) {
				s.logger.Warn("Auto-allocation run rolled back on conflict",
					zap.Int("planned", len(run)),
					zap.Error(err))
			}
			return nil, err
		}
	}

	result.PeriodsTouched = stale
	s.invalidate(ctx, stale)
	return result, nil
}

// planPayment plans FIFO allocation for one payment without writing.
// consumed carries the amounts already planned against each accrual by
// earlier payments of the same run, so the remainder a later payment sees
// accounts for allocations that are not committed yet. Returns nil outcome
// when the payment has no remainder or no targets.
func (s *AllocationService) planPayment(ctx context.Context, payment *billing.Payment, consumed map[uuid.UUID]decimal.Decimal) (*PaymentAllocationOutcome, []billing.Allocation, []valueobject.Period, error) {
	allocated, err := s.allocationRepo.SumByPayment(ctx, payment.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	remaining := payment.Remaining(allocated)
	if remaining.LessThanOrEqual(decimal.Zero) {
		return nil, nil, nil, nil
	}

	outstanding, err := s.accrualRepo.FindOutstandingByProperty(ctx, *payment.PropertyID)
	if err != nil {
		return nil, nil, nil, err
	}
	targets := make([]billing.AllocationTarget, 0, len(outstanding))
	for i := range outstanding {
		left := outstanding[i].RemainingAmount().Sub(consumed[outstanding[i].ID])
		if left.LessThanOrEqual(decimal.Zero) {
			continue
		}
		targets = append(targets, billing.AllocationTarget{
			AccrualID: outstanding[i].ID,
			Period:    outstanding[i].Period,
			Remaining: left,
			CreatedAt: outstanding[i].CreatedAt,
		})
	}
	if len(targets) == 0 {
		return nil, nil, nil, nil
	}

	plan, err := billing.PlanFIFO(remaining, targets)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(plan.Allocations) == 0 {
		return nil, nil, nil, nil
	}

	allocations := make([]billing.Allocation, 0, len(plan.Allocations))
	var touched []valueobject.Period
	for _, step := range plan.Allocations {
		allocation, err := billing.NewAllocation(payment.ID, step.AccrualID, step.Amount, remaining, step.Amount)
		if err != nil {
			return nil, nil, nil, err
		}
		allocations = append(allocations, *allocation)
		remaining = remaining.Sub(step.Amount)
		consumed[step.AccrualID] = consumed[step.AccrualID].Add(step.Amount)
		touched = append(touched, step.Period)
	}

	return &PaymentAllocationOutcome{
		PaymentID:  payment.ID,
		Allocated:  plan.TotalAllocated,
		Remaining:  plan.Remaining,
		FullySpent: plan.FullySpent,
		Steps:      len(plan.Allocations),
	}, allocations, touched, nil
}

// ManualAllocateRequest applies part of one payment to one accrual
type ManualAllocateRequest struct {
	PaymentID uuid.UUID
	AccrualID uuid.UUID
	Amount    decimal.Decimal
}

// ManualAllocate applies the requested amount of one payment to one
// accrual. Remainders are checked here for a fast answer and re-checked
// inside the write transaction, where the check is authoritative.
func (s *AllocationService) ManualAllocate(ctx context.Context, req ManualAllocateRequest) (*billing.Allocation, error) {
	payment, err := s.paymentRepo.FindByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Voided {
		return nil, shared.NewDomainError(shared.ErrCodeAllocationConflict,
			"Cannot allocate a voided payment")
	}
	accrual, err := s.accrualRepo.FindByID(ctx, req.AccrualID)
	if err != nil {
		return nil, err
	}
	if payment.PropertyID == nil || *payment.PropertyID != accrual.PropertyID {
		return nil, shared.NewDomainError(shared.ErrCodeAllocationConflict,
			"Payment and accrual belong to different properties")
	}

	paymentAllocated, err := s.allocationRepo.SumByPayment(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	accrualAllocated, err := s.allocationRepo.SumByAccrual(ctx, accrual.ID)
	if err != nil {
		return nil, err
	}

	allocation, err := billing.NewAllocation(
		req.PaymentID, req.AccrualID, req.Amount,
		payment.Remaining(paymentAllocated), accrual.Remaining(accrualAllocated))
	if err != nil {
		return nil, err
	}
	if err := s.allocationRepo.Create(ctx, allocation); err != nil {
		return nil, err
	}

	s.invalidate(ctx, []valueobject.Period{accrual.Period})
	s.logger.Info("Manual allocation applied",
		zap.String("payment_id", req.PaymentID.String()),
		zap.String("accrual_id", req.AccrualID.String()),
		zap.String("amount", req.Amount.StringFixed(2)))
	return allocation, nil
}

// Unapply removes one allocation, returning its amount to the payment
// remainder and reopening the accrual remainder.
func (s *AllocationService) Unapply(ctx context.Context, allocationID uuid.UUID) error {
	removed, err := s.allocationRepo.Delete(ctx, allocationID)
	if err != nil {
		return err
	}
	s.invalidateForAccruals(ctx, []billing.Allocation{*removed})
	return nil
}

// UnapplyPayment removes every allocation of one payment
func (s *AllocationService) UnapplyPayment(ctx context.Context, paymentID uuid.UUID) (int, error) {
	removed, err := s.allocationRepo.DeleteByPayment(ctx, paymentID)
	if err != nil {
		return 0, err
	}
	s.invalidateForAccruals(ctx, removed)
	return len(removed), nil
}

// invalidateForAccruals resolves the periods of the removed allocations'
// accruals and drops their cached summaries.
func (s *AllocationService) invalidateForAccruals(ctx context.Context, removed []billing.Allocation) {
	var stale []valueobject.Period
	for i := range removed {
		accrual, err := s.accrualRepo.FindByID(ctx, removed[i].AccrualID)
		if err != nil {
			continue
		}
		stale = appendPeriods(stale, []valueobject.Period{accrual.Period})
	}
	s.invalidate(ctx, stale)
}

func (s *AllocationService) invalidate(ctx context.Context, periods []valueobject.Period) {
	if s.invalidator == nil || len(periods) == 0 {
		return
	}
	s.invalidator.InvalidatePeriods(ctx, periods)
}

// appendPeriods merges periods without duplicates
func appendPeriods(existing, extra []valueobject.Period) []valueobject.Period {
	for _, period := range extra {
		seen := false
		for _, have := range existing {
			if have.Equal(period) {
				seen = true
				break
			}
		}
		if !seen {
			existing = append(existing, period)
		}
	}
	return existing
}

func isAllocationConflict(err error) bool {
	domainErr, ok := err.(*shared.DomainError)
	return ok && domainErr.Code == shared.ErrCodeAllocationConflict
}
