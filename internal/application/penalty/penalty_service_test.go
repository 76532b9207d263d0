package penalty

import (
	"context"
	"testing"
	"time"

	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/penalty"
	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockPenaltyRepository is a mock implementation of penalty.Repository
type MockPenaltyRepository struct {
	mock.Mock
}

func (m *MockPenaltyRepository) FindByID(ctx context.Context, id uuid.UUID) (*penalty.PenaltyAccrual, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*penalty.PenaltyAccrual), args.Error(1)
}

func (m *MockPenaltyRepository) FindByPropertyAndPeriod(ctx context.Context, propertyID uuid.UUID, period valueobject.Period) (*penalty.PenaltyAccrual, error) {
	args := m.Called(ctx, propertyID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*penalty.PenaltyAccrual), args.Error(1)
}

func (m *MockPenaltyRepository) ListByPeriod(ctx context.Context, period valueobject.Period, includeVoided bool) ([]penalty.PenaltyAccrual, error) {
	args := m.Called(ctx, period, includeVoided)
	return args.Get(0).([]penalty.PenaltyAccrual), args.Error(1)
}

func (m *MockPenaltyRepository) Save(ctx context.Context, row *penalty.PenaltyAccrual) error {
	args := m.Called(ctx, row)
	return args.Error(0)
}

func (m *MockPenaltyRepository) SaveGuarded(ctx context.Context, row *penalty.PenaltyAccrual, expectedStatus penalty.Status) error {
	args := m.Called(ctx, row, expectedStatus)
	return args.Error(0)
}

// MockReportRepository is a mock implementation of billing.ReportRepository
type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) UnallocatedPayments(ctx context.Context, filter billing.ReportFilter) ([]billing.PaymentReportRow, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]billing.PaymentReportRow), args.Error(1)
}

func (m *MockReportRepository) Overpayments(ctx context.Context, filter billing.ReportFilter) ([]billing.PaymentReportRow, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]billing.PaymentReportRow), args.Error(1)
}

func (m *MockReportRepository) Payments(ctx context.Context, filter billing.ReportFilter) ([]billing.PaymentReportRow, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]billing.PaymentReportRow), args.Error(1)
}

func (m *MockReportRepository) Accruals(ctx context.Context, filter billing.ReportFilter) ([]billing.AccrualReportRow, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]billing.AccrualReportRow), args.Error(1)
}

func (m *MockReportRepository) DebtorBalances(ctx context.Context, filter billing.ReportFilter) ([]billing.DebtorRow, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]billing.DebtorRow), args.Error(1)
}

func (m *MockReportRepository) Balances(ctx context.Context, filter billing.ReportFilter) ([]billing.BalanceRow, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]billing.BalanceRow), args.Error(1)
}

func (m *MockReportRepository) OutstandingAccruals(ctx context.Context, filter billing.OutstandingFilter) ([]billing.OutstandingAccrualRow, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]billing.OutstandingAccrualRow), args.Error(1)
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

func newTestService(penaltyRepo *MockPenaltyRepository, reports *MockReportRepository, accruals *MockAccrualRepository) *Service {
	return NewService(penaltyRepo, reports, accruals, decimal.RequireFromString("0.2"), zap.NewNop())
}

func testPeriod(t *testing.T, s string) valueobject.Period {
	t.Helper()
	p, err := valueobject.ParsePeriod(s)
	require.NoError(t, err)
	return p
}

func outstandingRow(propertyID uuid.UUID, period valueobject.Period, amount string, createdAt time.Time) billing.OutstandingAccrualRow {
	return billing.OutstandingAccrualRow{
		AccrualID:  uuid.New(),
		PropertyID: propertyID,
		Period:     period,
		Category:   billing.AccrualCategoryMembership,
		Amount:     decimal.RequireFromString(amount),
		Allocated:  decimal.Zero,
		CreatedAt:  createdAt,
	}
}

func TestServicePreview(t *testing.T) {
	asOf := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	propertyID := uuid.New()
	jan := testPeriod(t, "2024-01")

	t.Run("computes without writing", func(t *testing.T) {
		penaltyRepo := new(MockPenaltyRepository)
		reports := new(MockReportRepository)
		accruals := new(MockAccrualRepository)
		reports.On("OutstandingAccruals", mock.Anything, mock.Anything).
			Return([]billing.OutstandingAccrualRow{outstandingRow(propertyID, jan, "1000", asOf.AddDate(0, 0, -30))}, nil)
		service := newTestService(penaltyRepo, reports, accruals)

		result, err := service.Preview(context.Background(), ComputeRequest{AsOf: asOf})

		require.NoError(t, err)
		require.Len(t, result.Rows, 1)
		assert.True(t, result.Rows[0].Amount.Equal(decimal.NewFromInt(16)))
		assert.True(t, result.Total.Equal(decimal.NewFromInt(16)))
		penaltyRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		penaltyRepo.AssertNotCalled(t, "SaveGuarded", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("falls back to the policy rate", func(t *testing.T) {
		reports := new(MockReportRepository)
		reports.On("OutstandingAccruals", mock.Anything, mock.Anything).
			Return([]billing.OutstandingAccrualRow{}, nil)
		service := newTestService(new(MockPenaltyRepository), reports, new(MockAccrualRepository))

		result, err := service.Preview(context.Background(), ComputeRequest{AsOf: asOf})

		require.NoError(t, err)
		assert.True(t, result.AnnualRate.Equal(decimal.RequireFromString("0.2")))
	})
}

func TestServiceRecalculate(t *testing.T) {
	asOf := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	propertyID := uuid.New()
	jan := testPeriod(t, "2024-01")
	rows := []billing.OutstandingAccrualRow{outstandingRow(propertyID, jan, "1000", asOf.AddDate(0, 0, -30))}

	t.Run("creates a row the first time", func(t *testing.T) {
		penaltyRepo := new(MockPenaltyRepository)
		reports := new(MockReportRepository)
		reports.On("OutstandingAccruals", mock.Anything, mock.Anything).Return(rows, nil)
		penaltyRepo.On("FindByPropertyAndPeriod", mock.Anything, propertyID, jan).Return(nil, shared.ErrNotFound)
		penaltyRepo.On("Save", mock.Anything, mock.Anything).Return(nil)
		service := newTestService(penaltyRepo, reports, new(MockAccrualRepository))

		result, err := service.Recalculate(context.Background(), RecalculateRequest{
			ComputeRequest: ComputeRequest{AsOf: asOf},
			ActorID:        uuid.New(),
		})

		require.NoError(t, err)
		assert.Equal(t, 1, result.Created)
		assert.Equal(t, 0, result.Updated)
		penaltyRepo.AssertExpectations(t)
	})

	t.Run("same basis is a no-op", func(t *testing.T) {
		existing, err := penalty.NewPenaltyAccrual(propertyID, jan, decimal.NewFromInt(16), penalty.Meta{
			AsOfDate:      asOf,
			AnnualRate:    decimal.RequireFromString("0.2"),
			BaseDebt:      decimal.NewFromInt(1000),
			DaysOverdue:   30,
			PolicyVersion: penalty.CurrentPolicyVersion,
		})
		require.NoError(t, err)

		penaltyRepo := new(MockPenaltyRepository)
		reports := new(MockReportRepository)
		reports.On("OutstandingAccruals", mock.Anything, mock.Anything).Return(rows, nil)
		penaltyRepo.On("FindByPropertyAndPeriod", mock.Anything, propertyID, jan).Return(existing, nil)
		service := newTestService(penaltyRepo, reports, new(MockAccrualRepository))

		result, err := service.Recalculate(context.Background(), RecalculateRequest{
			ComputeRequest: ComputeRequest{AsOf: asOf},
			ActorID:        uuid.New(),
		})

		require.NoError(t, err)
		assert.Equal(t, 1, result.Unchanged)
		assert.Equal(t, 0, result.Created)
		assert.Equal(t, 0, result.Updated)
		penaltyRepo.AssertNotCalled(t, "SaveGuarded", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("changed basis updates the row", func(t *testing.T) {
		existing, err := penalty.NewPenaltyAccrual(propertyID, jan, decimal.NewFromInt(9), penalty.Meta{
			AsOfDate:      asOf.AddDate(0, 0, -14),
			AnnualRate:    decimal.RequireFromString("0.2"),
			BaseDebt:      decimal.NewFromInt(1000),
			DaysOverdue:   16,
			PolicyVersion: penalty.CurrentPolicyVersion,
		})
		require.NoError(t, err)

		penaltyRepo := new(MockPenaltyRepository)
		reports := new(MockReportRepository)
		reports.On("OutstandingAccruals", mock.Anything, mock.Anything).Return(rows, nil)
		penaltyRepo.On("FindByPropertyAndPeriod", mock.Anything, propertyID, jan).Return(existing, nil)
		penaltyRepo.On("SaveGuarded", mock.Anything, existing, penalty.StatusActive).Return(nil)
		service := newTestService(penaltyRepo, reports, new(MockAccrualRepository))

		result, err := service.Recalculate(context.Background(), RecalculateRequest{
			ComputeRequest: ComputeRequest{AsOf: asOf},
			ActorID:        uuid.New(),
		})

		require.NoError(t, err)
		assert.Equal(t, 1, result.Updated)
		assert.True(t, existing.Amount.Equal(decimal.NewFromInt(16)))
		penaltyRepo.AssertExpectations(t)
	})

	t.Run("frozen and voided rows are skipped untouched", func(t *testing.T) {
		frozen, err := penalty.NewPenaltyAccrual(propertyID, jan, decimal.NewFromInt(9), penalty.Meta{})
		require.NoError(t, err)
		require.NoError(t, frozen.Freeze(uuid.New(), "dispute"))

		penaltyRepo := new(MockPenaltyRepository)
		reports := new(MockReportRepository)
		reports.On("OutstandingAccruals", mock.Anything, mock.Anything).Return(rows, nil)
		penaltyRepo.On("FindByPropertyAndPeriod", mock.Anything, propertyID, jan).Return(frozen, nil)
		service := newTestService(penaltyRepo, reports, new(MockAccrualRepository))

		result, err := service.Recalculate(context.Background(), RecalculateRequest{
			ComputeRequest: ComputeRequest{AsOf: asOf},
			ActorID:        uuid.New(),
		})

		require.NoError(t, err)
		assert.Equal(t, 1, result.SkippedFrozen)
		assert.True(t, frozen.Amount.Equal(decimal.NewFromInt(9)), "frozen amount stays")
		penaltyRepo.AssertNotCalled(t, "SaveGuarded", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("reports active rows whose debt is gone", func(t *testing.T) {
		paidOff, err := penalty.NewPenaltyAccrual(uuid.New(), jan, decimal.NewFromInt(5), penalty.Meta{})
		require.NoError(t, err)

		penaltyRepo := new(MockPenaltyRepository)
		reports := new(MockReportRepository)
		reports.On("OutstandingAccruals", mock.Anything, mock.Anything).Return([]billing.OutstandingAccrualRow{}, nil)
		penaltyRepo.On("ListByPeriod", mock.Anything, jan, false).Return([]penalty.PenaltyAccrual{*paidOff}, nil)
		service := newTestService(penaltyRepo, reports, new(MockAccrualRepository))

		result, err := service.Recalculate(context.Background(), RecalculateRequest{
			ComputeRequest: ComputeRequest{AsOf: asOf, Period: &jan},
			ActorID:        uuid.New(),
		})

		require.NoError(t, err)
		assert.Equal(t, 1, result.SkippedZero)
	})

	t.Run("voided rows are skipped unless explicitly included", func(t *testing.T) {
		newVoided := func(t *testing.T) *penalty.PenaltyAccrual {
			row, err := penalty.NewPenaltyAccrual(propertyID, jan, decimal.NewFromInt(9), penalty.Meta{})
			require.NoError(t, err)
			require.NoError(t, row.Void(uuid.New(), "entered in error"))
			return row
		}

		t.Run("skipped by default", func(t *testing.T) {
			voided := newVoided(t)
			penaltyRepo := new(MockPenaltyRepository)
			reports := new(MockReportRepository)
			reports.On("OutstandingAccruals", mock.Anything, mock.Anything).Return(rows, nil)
			penaltyRepo.On("FindByPropertyAndPeriod", mock.Anything, propertyID, jan).Return(voided, nil)
			service := newTestService(penaltyRepo, reports, new(MockAccrualRepository))

			result, err := service.Recalculate(context.Background(), RecalculateRequest{
				ComputeRequest: ComputeRequest{AsOf: asOf},
				ActorID:        uuid.New(),
			})

			require.NoError(t, err)
			assert.Equal(t, 1, result.SkippedVoided)
			assert.Equal(t, penalty.StatusVoided, voided.Status)
			penaltyRepo.AssertNotCalled(t, "SaveGuarded", mock.Anything, mock.Anything, mock.Anything)
		})

		t.Run("revived and recomputed when included", func(t *testing.T) {
			voided := newVoided(t)
			penaltyRepo := new(MockPenaltyRepository)
			reports := new(MockReportRepository)
			reports.On("OutstandingAccruals", mock.Anything, mock.Anything).Return(rows, nil)
			penaltyRepo.On("FindByPropertyAndPeriod", mock.Anything, propertyID, jan).Return(voided, nil)
			penaltyRepo.On("SaveGuarded", mock.Anything, voided, penalty.StatusVoided).Return(nil)
			service := newTestService(penaltyRepo, reports, new(MockAccrualRepository))

			result, err := service.Recalculate(context.Background(), RecalculateRequest{
				ComputeRequest: ComputeRequest{AsOf: asOf},
				IncludeVoided:  true,
				ActorID:        uuid.New(),
			})

			require.NoError(t, err)
			assert.Equal(t, 1, result.Updated)
			assert.Equal(t, 0, result.SkippedVoided)
			assert.Equal(t, penalty.StatusActive, voided.Status)
			assert.True(t, voided.Amount.Equal(decimal.NewFromInt(16)))
			penaltyRepo.AssertExpectations(t)
		})
	})

	t.Run("property list and row limit scope the base query", func(t *testing.T) {
		penaltyRepo := new(MockPenaltyRepository)
		reports := new(MockReportRepository)
		reports.On("OutstandingAccruals", mock.Anything, mock.MatchedBy(func(f billing.OutstandingFilter) bool {
			return len(f.PropertyIDs) == 1 && f.PropertyIDs[0] == propertyID && f.Limit == 50
		})).Return([]billing.OutstandingAccrualRow{}, nil)
		service := newTestService(penaltyRepo, reports, new(MockAccrualRepository))

		_, err := service.Recalculate(context.Background(), RecalculateRequest{
			ComputeRequest: ComputeRequest{AsOf: asOf},
			PropertyIDs:    []uuid.UUID{propertyID},
			Limit:          50,
			ActorID:        uuid.New(),
		})

		require.NoError(t, err)
		reports.AssertExpectations(t)
	})

	t.Run("samples pair each amount with the one it replaced", func(t *testing.T) {
		existing, err := penalty.NewPenaltyAccrual(propertyID, jan, decimal.NewFromInt(9), penalty.Meta{
			AsOfDate:      asOf.AddDate(0, 0, -14),
			AnnualRate:    decimal.RequireFromString("0.2"),
			BaseDebt:      decimal.NewFromInt(1000),
			DaysOverdue:   16,
			PolicyVersion: penalty.CurrentPolicyVersion,
		})
		require.NoError(t, err)

		penaltyRepo := new(MockPenaltyRepository)
		reports := new(MockReportRepository)
		reports.On("OutstandingAccruals", mock.Anything, mock.Anything).Return(rows, nil)
		penaltyRepo.On("FindByPropertyAndPeriod", mock.Anything, propertyID, jan).Return(existing, nil)
		penaltyRepo.On("SaveGuarded", mock.Anything, existing, penalty.StatusActive).Return(nil)
		service := newTestService(penaltyRepo, reports, new(MockAccrualRepository))

		result, err := service.Recalculate(context.Background(), RecalculateRequest{
			ComputeRequest: ComputeRequest{AsOf: asOf},
			ActorID:        uuid.New(),
		})

		require.NoError(t, err)
		require.Len(t, result.Samples, 1)
		assert.True(t, result.Samples[0].PriorAmount.Equal(decimal.NewFromInt(9)))
		assert.True(t, result.Samples[0].Amount.Equal(decimal.NewFromInt(16)))
	})
}

func TestServiceCharge(t *testing.T) {
	propertyID := uuid.New()
	jan := testPeriod(t, "2024-01")
	actor := uuid.New()

	t.Run("materializes a penalty-category accrual", func(t *testing.T) {
		row, err := penalty.NewPenaltyAccrual(propertyID, jan, decimal.NewFromInt(16), penalty.Meta{})
		require.NoError(t, err)

		penaltyRepo := new(MockPenaltyRepository)
		accruals := new(MockAccrualRepository)
		penaltyRepo.On("FindByID", mock.Anything, row.ID).Return(row, nil)
		accruals.On("Save", mock.Anything, mock.Anything).Return(nil)
		penaltyRepo.On("SaveGuarded", mock.Anything, row, penalty.StatusActive).Return(nil)
		service := newTestService(penaltyRepo, new(MockReportRepository), accruals)

		accrual, err := service.Charge(context.Background(), row.ID, actor)

		require.NoError(t, err)
		assert.Equal(t, billing.AccrualCategoryPenalty, accrual.Category)
		assert.True(t, accrual.Amount.Equal(decimal.NewFromInt(16)))
		assert.Equal(t, propertyID, accrual.PropertyID)
		require.NotNil(t, row.ChargeID)
		assert.Equal(t, accrual.ID, *row.ChargeID)
		penaltyRepo.AssertExpectations(t)
		accruals.AssertExpectations(t)
	})

	t.Run("refuses a second charge", func(t *testing.T) {
		row, err := penalty.NewPenaltyAccrual(propertyID, jan, decimal.NewFromInt(16), penalty.Meta{})
		require.NoError(t, err)
		require.NoError(t, row.AttachCharge(uuid.New()))

		penaltyRepo := new(MockPenaltyRepository)
		accruals := new(MockAccrualRepository)
		penaltyRepo.On("FindByID", mock.Anything, row.ID).Return(row, nil)
		service := newTestService(penaltyRepo, new(MockReportRepository), accruals)

		_, err = service.Charge(context.Background(), row.ID, actor)

		require.Error(t, err)
		accruals.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}
