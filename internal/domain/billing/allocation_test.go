package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func period(t *testing.T, s string) valueobject.Period {
	t.Helper()
	p, err := valueobject.ParsePeriod(s)
	require.NoError(t, err)
	return p
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewAllocation(t *testing.T) {
	paymentID := uuid.New()
	accrualID := uuid.New()

	t.Run("creates allocation within both remainders", func(t *testing.T) {
		allocation, err := NewAllocation(paymentID, accrualID, money("100"), money("150"), money("100"))

		require.NoError(t, err)
		assert.Equal(t, paymentID, allocation.PaymentID)
		assert.Equal(t, accrualID, allocation.AccrualID)
		assert.True(t, allocation.Amount.Equal(money("100")))
	})

	t.Run("rejects amount exceeding payment remainder", func(t *testing.T) {
		_, err := NewAllocation(paymentID, accrualID, money("200"), money("150"), money("500"))

		require.Error(t, err)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, shared.ErrCodeAllocationConflict, domainErr.Code)
	})

	t.Run("rejects amount exceeding accrual remainder", func(t *testing.T) {
		_, err := NewAllocation(paymentID, accrualID, money("200"), money("500"), money("150"))

		require.Error(t, err)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, shared.ErrCodeAllocationConflict, domainErr.Code)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		_, err := NewAllocation(paymentID, accrualID, money("0"), money("100"), money("100"))
		assert.Error(t, err)

		_, err = NewAllocation(paymentID, accrualID, money("-5"), money("100"), money("100"))
		assert.Error(t, err)
	})

	t.Run("rejects empty ids", func(t *testing.T) {
		_, err := NewAllocation(uuid.Nil, accrualID, money("10"), money("100"), money("100"))
		assert.Error(t, err)

		_, err = NewAllocation(paymentID, uuid.Nil, money("10"), money("100"), money("100"))
		assert.Error(t, err)
	})
}

func TestPlanFIFO(t *testing.T) {
	now := time.Now()
	jan := uuid.New()
	feb := uuid.New()
	mar := uuid.New()

	targets := []AllocationTarget{
		{AccrualID: mar, Period: period(t, "2024-03"), Remaining: money("500"), CreatedAt: now},
		{AccrualID: jan, Period: period(t, "2024-01"), Remaining: money("300"), CreatedAt: now},
		{AccrualID: feb, Period: period(t, "2024-02"), Remaining: money("200"), CreatedAt: now},
	}

	t.Run("funds oldest periods first", func(t *testing.T) {
		plan, err := PlanFIFO(money("400"), targets)

		require.NoError(t, err)
		require.Len(t, plan.Allocations, 2)
		assert.Equal(t, jan, plan.Allocations[0].AccrualID)
		assert.True(t, plan.Allocations[0].Amount.Equal(money("300")))
		assert.Equal(t, feb, plan.Allocations[1].AccrualID)
		assert.True(t, plan.Allocations[1].Amount.Equal(money("100")))
		assert.True(t, plan.TotalAllocated.Equal(money("400")))
		assert.True(t, plan.Remaining.IsZero())
		assert.True(t, plan.FullySpent)
	})

	t.Run("leaves a remainder when targets run out", func(t *testing.T) {
		plan, err := PlanFIFO(money("2000"), targets)

		require.NoError(t, err)
		require.Len(t, plan.Allocations, 3)
		assert.True(t, plan.TotalAllocated.Equal(money("1000")))
		assert.True(t, plan.Remaining.Equal(money("1000")))
		assert.False(t, plan.FullySpent)
	})

	t.Run("breaks period ties by creation order", func(t *testing.T) {
		older := uuid.New()
		newer := uuid.New()
		samePeriod := []AllocationTarget{
			{AccrualID: newer, Period: period(t, "2024-01"), Remaining: money("100"), CreatedAt: now.Add(time.Hour)},
			{AccrualID: older, Period: period(t, "2024-01"), Remaining: money("100"), CreatedAt: now},
		}

		plan, err := PlanFIFO(money("100"), samePeriod)

		require.NoError(t, err)
		require.Len(t, plan.Allocations, 1)
		assert.Equal(t, older, plan.Allocations[0].AccrualID)
	})

	t.Run("skips exhausted targets", func(t *testing.T) {
		withExhausted := []AllocationTarget{
			{AccrualID: jan, Period: period(t, "2024-01"), Remaining: decimal.Zero, CreatedAt: now},
			{AccrualID: feb, Period: period(t, "2024-02"), Remaining: money("50"), CreatedAt: now},
		}

		plan, err := PlanFIFO(money("50"), withExhausted)

		require.NoError(t, err)
		require.Len(t, plan.Allocations, 1)
		assert.Equal(t, feb, plan.Allocations[0].AccrualID)
	})

	t.Run("does not mutate the input slice", func(t *testing.T) {
		_, err := PlanFIFO(money("400"), targets)

		require.NoError(t, err)
		assert.Equal(t, mar, targets[0].AccrualID)
	})

	t.Run("rejects a non-positive payment remainder", func(t *testing.T) {
		_, err := PlanFIFO(decimal.Zero, targets)
		assert.Error(t, err)
	})

	t.Run("handles no targets", func(t *testing.T) {
		plan, err := PlanFIFO(money("100"), nil)

		require.NoError(t, err)
		assert.Empty(t, plan.Allocations)
		assert.True(t, plan.Remaining.Equal(money("100")))
		assert.False(t, plan.FullySpent)
	})
}
