package billing

import (
	"context"
	"testing"
	"time"

	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockPaymentRepository is a mock implementation of billing.PaymentRepository
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) Save(ctx context.Context, payment *billing.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) ExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	args := m.Called(ctx, externalID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	args := m.Called(ctx, fingerprint)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) ExistsSimilarOnDay(ctx context.Context, propertyID uuid.UUID, amount decimal.Decimal, day time.Time) (bool, error) {
	args := m.Called(ctx, propertyID, amount, day)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) FindAllocatable(ctx context.Context, filter billing.AllocatableFilter) ([]billing.Payment, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]billing.Payment), args.Error(1)
}

// MockAccrualRepository is a mock implementation of billing.AccrualRepository
type MockAccrualRepository struct {
	mock.Mock
}

func (m *MockAccrualRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Accrual, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Accrual), args.Error(1)
}

func (m *MockAccrualRepository) Save(ctx context.Context, accrual *billing.Accrual) error {
	args := m.Called(ctx, accrual)
	return args.Error(0)
}

func (m *MockAccrualRepository) FindOutstandingByProperty(ctx context.Context, propertyID uuid.UUID) ([]billing.OutstandingAccrual, error) {
	args := m.Called(ctx, propertyID)
	return args.Get(0).([]billing.OutstandingAccrual), args.Error(1)
}

// MockAllocationRepository is a mock implementation of billing.AllocationRepository
type MockAllocationRepository struct {
	mock.Mock
}

func (m *MockAllocationRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Allocation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Allocation), args.Error(1)
}

func (m *MockAllocationRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]billing.Allocation, error) {
	args := m.Called(ctx, paymentID)
	return args.Get(0).([]billing.Allocation), args.Error(1)
}

func (m *MockAllocationRepository) SumByPayment(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, paymentID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockAllocationRepository) SumByAccrual(ctx context.Context, accrualID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, accrualID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockAllocationRepository) Create(ctx context.Context, allocation *billing.Allocation) error {
	args := m.Called(ctx, allocation)
	return args.Error(0)
}

func (m *MockAllocationRepository) CreateBatch(ctx context.Context, allocations []billing.Allocation) error {
	args := m.Called(ctx, allocations)
	return args.Error(0)
}

func (m *MockAllocationRepository) Delete(ctx context.Context, id uuid.UUID) (*billing.Allocation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Allocation), args.Error(1)
}

func (m *MockAllocationRepository) DeleteByPayment(ctx context.Context, paymentID uuid.UUID) ([]billing.Allocation, error) {
	args := m.Called(ctx, paymentID)
	return args.Get(0).([]billing.Allocation), args.Error(1)
}

// recordingInvalidator collects the periods dropped from the report cache
type recordingInvalidator struct {
	periods []valueobject.Period
}

func (r *recordingInvalidator) InvalidatePeriods(_ context.Context, periods []valueobject.Period) {
	r.periods = append(r.periods, periods...)
}

func mustPeriod(t *testing.T, s string) valueobject.Period {
	t.Helper()
	p, err := valueobject.ParsePeriod(s)
	require.NoError(t, err)
	return p
}

func resolvedPayment(t *testing.T, propertyID uuid.UUID, amount string) *billing.Payment {
	t.Helper()
	payment, err := billing.NewPayment(&propertyID,
		valueobject.NewMoneyRUB(decimal.RequireFromString(amount)),
		time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		billing.PaymentOriginManual)
	require.NoError(t, err)
	return payment
}

func outstandingFor(t *testing.T, propertyID uuid.UUID, periodStr, amount, allocated string, createdAt time.Time) billing.OutstandingAccrual {
	t.Helper()
	accrual, err := billing.NewAccrual(propertyID, mustPeriod(t, periodStr), billing.AccrualCategoryMembership,
		valueobject.NewMoneyRUB(decimal.RequireFromString(amount)))
	require.NoError(t, err)
	accrual.CreatedAt = createdAt
	return billing.OutstandingAccrual{Accrual: *accrual, Allocated: decimal.RequireFromString(allocated)}
}

func TestAutoAllocate(t *testing.T) {
	propertyID := uuid.New()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("plans in period order and persists one batch for the run", func(t *testing.T) {
		payment := resolvedPayment(t, propertyID, "900")
		jan := outstandingFor(t, propertyID, "2024-01", "700", "0", now.AddDate(0, -2, 0))
		feb := outstandingFor(t, propertyID, "2024-02", "700", "0", now.AddDate(0, -1, 0))

		payments := new(MockPaymentRepository)
		accruals := new(MockAccrualRepository)
		allocations := new(MockAllocationRepository)
		invalidator := &recordingInvalidator{}
		payments.On("FindAllocatable", mock.Anything, mock.Anything).Return([]billing.Payment{*payment}, nil)
		allocations.On("SumByPayment", mock.Anything, payment.ID).Return(decimal.Zero, nil)
		accruals.On("FindOutstandingByProperty", mock.Anything, propertyID).
			Return([]billing.OutstandingAccrual{feb, jan}, nil)

		var batch []billing.Allocation
		allocations.On("CreateBatch", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			batch = args.Get(1).([]billing.Allocation)
		}).Return(nil)

		service := NewAllocationService(payments, accruals, allocations, invalidator, zap.NewNop())
		result, err := service.AutoAllocate(context.Background(), AutoAllocateRequest{PaymentIDs: []uuid.UUID{payment.ID}})

		require.NoError(t, err)
		require.Len(t, result.Payments, 1)
		outcome := result.Payments[0]
		assert.True(t, outcome.Allocated.Equal(decimal.RequireFromString("900")))
		assert.True(t, outcome.Remaining.IsZero())
		assert.True(t, outcome.FullySpent)
		assert.Equal(t, 2, outcome.Steps)

		require.Len(t, batch, 2)
		assert.Equal(t, jan.ID, batch[0].AccrualID, "January funds before February")
		assert.True(t, batch[0].Amount.Equal(decimal.RequireFromString("700")))
		assert.Equal(t, feb.ID, batch[1].AccrualID)
		assert.True(t, batch[1].Amount.Equal(decimal.RequireFromString("200")))

		require.Len(t, result.PeriodsTouched, 2)
		require.Len(t, invalidator.periods, 2)
	})

	t.Run("payments in one run share accrual remainders", func(t *testing.T) {
		first := resolvedPayment(t, propertyID, "500")
		second := resolvedPayment(t, propertyID, "300")
		jan := outstandingFor(t, propertyID, "2024-01", "700", "0", now)

		payments := new(MockPaymentRepository)
		accruals := new(MockAccrualRepository)
		allocations := new(MockAllocationRepository)
		payments.On("FindAllocatable", mock.Anything, mock.Anything).Return([]billing.Payment{*first, *second}, nil)
		allocations.On("SumByPayment", mock.Anything, mock.Anything).Return(decimal.Zero, nil)
		accruals.On("FindOutstandingByProperty", mock.Anything, propertyID).
			Return([]billing.OutstandingAccrual{jan}, nil)

		var batch []billing.Allocation
		allocations.On("CreateBatch", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			batch = args.Get(1).([]billing.Allocation)
		}).Return(nil).Once()

		service := NewAllocationService(payments, accruals, allocations, nil, zap.NewNop())
		result, err := service.AutoAllocate(context.Background(), AutoAllocateRequest{})

		require.NoError(t, err)
		require.Len(t, result.Payments, 2)
		assert.True(t, result.Payments[0].FullySpent)
		assert.False(t, result.Payments[1].FullySpent, "second payment only finds 200 left in January")
		assert.True(t, result.Payments[1].Allocated.Equal(decimal.RequireFromString("200")))
		assert.True(t, result.Payments[1].Remaining.Equal(decimal.RequireFromString("100")))

		require.Len(t, batch, 2, "both payments' plans land in the same batch")
		assert.True(t, batch[0].Amount.Equal(decimal.RequireFromString("500")))
		assert.True(t, batch[1].Amount.Equal(decimal.RequireFromString("200")))
		require.Len(t, result.PeriodsTouched, 1)
	})

	t.Run("a failed batch aborts the run with nothing committed", func(t *testing.T) {
		first := resolvedPayment(t, propertyID, "500")
		second := resolvedPayment(t, propertyID, "300")
		jan := outstandingFor(t, propertyID, "2024-01", "700", "0", now)

		payments := new(MockPaymentRepository)
		accruals := new(MockAccrualRepository)
		allocations := new(MockAllocationRepository)
		invalidator := &recordingInvalidator{}
		payments.On("FindAllocatable", mock.Anything, mock.Anything).Return([]billing.Payment{*first, *second}, nil)
		allocations.On("SumByPayment", mock.Anything, mock.Anything).Return(decimal.Zero, nil)
		accruals.On("FindOutstandingByProperty", mock.Anything, propertyID).
			Return([]billing.OutstandingAccrual{jan}, nil)
		allocations.On("CreateBatch", mock.Anything, mock.Anything).
			Return(shared.NewDomainError(shared.ErrCodeAllocationConflict, "remainder changed"))

		service := NewAllocationService(payments, accruals, allocations, invalidator, zap.NewNop())
		result, err := service.AutoAllocate(context.Background(), AutoAllocateRequest{})

		require.Error(t, err)
		assert.Nil(t, result)
		allocations.AssertNumberOfCalls(t, "CreateBatch", 1)
		assert.Empty(t, invalidator.periods, "no periods go stale when the run rolls back")
	})

	t.Run("skips payments with nothing left or nothing to fund", func(t *testing.T) {
		spent := resolvedPayment(t, propertyID, "500")

		payments := new(MockPaymentRepository)
		accruals := new(MockAccrualRepository)
		allocations := new(MockAllocationRepository)
		payments.On("FindAllocatable", mock.Anything, mock.Anything).Return([]billing.Payment{*spent}, nil)
		allocations.On("SumByPayment", mock.Anything, spent.ID).Return(decimal.RequireFromString("500"), nil)

		service := NewAllocationService(payments, accruals, allocations, nil, zap.NewNop())
		result, err := service.AutoAllocate(context.Background(), AutoAllocateRequest{})

		require.NoError(t, err)
		assert.Empty(t, result.Payments)
		allocations.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
	})
}

func TestManualAllocate(t *testing.T) {
	propertyID := uuid.New()

	setup := func(t *testing.T, payment *billing.Payment, accrual *billing.Accrual) (*AllocationService, *MockAllocationRepository) {
		payments := new(MockPaymentRepository)
		accruals := new(MockAccrualRepository)
		allocations := new(MockAllocationRepository)
		payments.On("FindByID", mock.Anything, payment.ID).Return(payment, nil)
		accruals.On("FindByID", mock.Anything, accrual.ID).Return(accrual, nil)
		allocations.On("SumByPayment", mock.Anything, payment.ID).Return(decimal.Zero, nil)
		allocations.On("SumByAccrual", mock.Anything, accrual.ID).Return(decimal.Zero, nil)
		return NewAllocationService(payments, accruals, allocations, nil, zap.NewNop()), allocations
	}

	newAccrual := func(t *testing.T, owner uuid.UUID, amount string) *billing.Accrual {
		accrual, err := billing.NewAccrual(owner, mustPeriod(t, "2024-01"), billing.AccrualCategoryMembership,
			valueobject.NewMoneyRUB(decimal.RequireFromString(amount)))
		require.NoError(t, err)
		return accrual
	}

	t.Run("applies within both remainders", func(t *testing.T) {
		payment := resolvedPayment(t, propertyID, "500")
		accrual := newAccrual(t, propertyID, "700")
		service, allocations := setup(t, payment, accrual)
		allocations.On("Create", mock.Anything, mock.Anything).Return(nil)

		allocation, err := service.ManualAllocate(context.Background(), ManualAllocateRequest{
			PaymentID: payment.ID,
			AccrualID: accrual.ID,
			Amount:    decimal.RequireFromString("300"),
		})

		require.NoError(t, err)
		assert.True(t, allocation.Amount.Equal(decimal.RequireFromString("300")))
		allocations.AssertExpectations(t)
	})

	t.Run("rejects a cross-property pair", func(t *testing.T) {
		payment := resolvedPayment(t, propertyID, "500")
		accrual := newAccrual(t, uuid.New(), "700")
		service, allocations := setup(t, payment, accrual)

		_, err := service.ManualAllocate(context.Background(), ManualAllocateRequest{
			PaymentID: payment.ID,
			AccrualID: accrual.ID,
			Amount:    decimal.RequireFromString("300"),
		})

		require.Error(t, err)
		allocations.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("rejects a voided payment", func(t *testing.T) {
		payment := resolvedPayment(t, propertyID, "500")
		require.NoError(t, payment.Void("entered twice"))
		accrual := newAccrual(t, propertyID, "700")
		service, allocations := setup(t, payment, accrual)

		_, err := service.ManualAllocate(context.Background(), ManualAllocateRequest{
			PaymentID: payment.ID,
			AccrualID: accrual.ID,
			Amount:    decimal.RequireFromString("300"),
		})

		require.Error(t, err)
		allocations.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("rejects an amount over the remainder", func(t *testing.T) {
		payment := resolvedPayment(t, propertyID, "500")
		accrual := newAccrual(t, propertyID, "700")
		service, allocations := setup(t, payment, accrual)

		_, err := service.ManualAllocate(context.Background(), ManualAllocateRequest{
			PaymentID: payment.ID,
			AccrualID: accrual.ID,
			Amount:    decimal.RequireFromString("600"),
		})

		require.Error(t, err)
		domainErr, ok := err.(*shared.DomainError)
		require.True(t, ok)
		assert.Equal(t, shared.ErrCodeAllocationConflict, domainErr.Code)
		allocations.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestUnapply(t *testing.T) {
	propertyID := uuid.New()

	t.Run("removes every allocation of a payment", func(t *testing.T) {
		payment := resolvedPayment(t, propertyID, "500")
		accrual, err := billing.NewAccrual(propertyID, mustPeriod(t, "2024-01"), billing.AccrualCategoryMembership,
			valueobject.NewMoneyRUB(decimal.RequireFromString("700")))
		require.NoError(t, err)
		allocation, err := billing.NewAllocation(payment.ID, accrual.ID,
			decimal.RequireFromString("300"), decimal.RequireFromString("500"), decimal.RequireFromString("700"))
		require.NoError(t, err)

		accruals := new(MockAccrualRepository)
		allocations := new(MockAllocationRepository)
		invalidator := &recordingInvalidator{}
		allocations.On("DeleteByPayment", mock.Anything, payment.ID).Return([]billing.Allocation{*allocation}, nil)
		accruals.On("FindByID", mock.Anything, accrual.ID).Return(accrual, nil)

		service := NewAllocationService(new(MockPaymentRepository), accruals, allocations, invalidator, zap.NewNop())
		removed, err := service.UnapplyPayment(context.Background(), payment.ID)

		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		require.Len(t, invalidator.periods, 1)
		assert.True(t, invalidator.periods[0].Equal(accrual.Period))
	})

	t.Run("no allocations is a zero-count success", func(t *testing.T) {
		allocations := new(MockAllocationRepository)
		allocations.On("DeleteByPayment", mock.Anything, mock.Anything).Return([]billing.Allocation{}, nil)

		service := NewAllocationService(new(MockPaymentRepository), new(MockAccrualRepository), allocations, nil, zap.NewNop())
		removed, err := service.UnapplyPayment(context.Background(), uuid.New())

		require.NoError(t, err)
		assert.Equal(t, 0, removed)
	})
}
