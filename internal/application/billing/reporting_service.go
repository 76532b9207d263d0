package billing

import (
	"context"

	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SummaryCache caches per-period report summaries. A nil cache is valid;
// every read then recomputes.
type SummaryCache interface {
	GetSummary(ctx context.Context, report string, period valueobject.Period, dest interface{}) bool
	SetSummary(ctx context.Context, report string, period valueobject.Period, value interface{})
}

// ReportingService is the read-only reconciliation view: registers,
// remainder reports and per-plot balances. It never writes billing data.
type ReportingService struct {
	reports billing.ReportRepository
	cache   SummaryCache
	logger  *zap.Logger
}

// NewReportingService creates a new ReportingService
func NewReportingService(reports billing.ReportRepository, cache SummaryCache, logger *zap.Logger) *ReportingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportingService{reports: reports, cache: cache, logger: logger}
}

// UnallocatedPayments returns payments nothing has been applied from yet
func (s *ReportingService) UnallocatedPayments(ctx context.Context, filter billing.ReportFilter) ([]billing.PaymentReportRow, error) {
	return s.reports.UnallocatedPayments(ctx, filter)
}

// Overpayments returns partially consumed payments with a positive remainder
func (s *ReportingService) Overpayments(ctx context.Context, filter billing.ReportFilter) ([]billing.PaymentReportRow, error) {
	return s.reports.Overpayments(ctx, filter)
}

// Payments returns the payments register for the range
func (s *ReportingService) Payments(ctx context.Context, filter billing.ReportFilter) ([]billing.PaymentReportRow, error) {
	return s.reports.Payments(ctx, filter)
}

// Accruals returns the accruals register for the range
func (s *ReportingService) Accruals(ctx context.Context, filter billing.ReportFilter) ([]billing.AccrualReportRow, error) {
	return s.reports.Accruals(ctx, filter)
}

// Debtors returns properties with a positive debt over the range
func (s *ReportingService) Debtors(ctx context.Context, filter billing.ReportFilter) ([]billing.DebtorRow, error) {
	return s.reports.DebtorBalances(ctx, filter)
}

// Balances returns every property's signed balance over the range
func (s *ReportingService) Balances(ctx context.Context, filter billing.ReportFilter) ([]billing.BalanceRow, error) {
	return s.reports.Balances(ctx, filter)
}

// PeriodSummary aggregates one billing period's reconciliation totals
type PeriodSummary struct {
	Period       string          `json:"period"`
	Accrued      decimal.Decimal `json:"accrued"`
	Paid         decimal.Decimal `json:"paid"`
	Debt         decimal.Decimal `json:"debt"`
	DebtorCount  int             `json:"debtor_count"`
	BalanceCount int             `json:"balance_count"`
}

// Summary returns the period's totals, served from cache when a fresh
// entry exists. Allocation writes invalidate the touched periods.
func (s *ReportingService) Summary(ctx context.Context, period valueobject.Period) (*PeriodSummary, error) {
	if s.cache != nil {
		var cached PeriodSummary
		if s.cache.GetSummary(ctx, "period_totals", period, &cached) {
			return &cached, nil
		}
	}

	from, to := period.Range()
	filter := billing.ReportFilter{From: &from, To: &to}
	balances, err := s.reports.Balances(ctx, filter)
	if err != nil {
		return nil, err
	}
	debtors, err := s.reports.DebtorBalances(ctx, filter)
	if err != nil {
		return nil, err
	}

	summary := &PeriodSummary{
		Period:       period.String(),
		Accrued:      decimal.Zero,
		Paid:         decimal.Zero,
		Debt:         decimal.Zero,
		DebtorCount:  len(debtors),
		BalanceCount: len(balances),
	}
	for i := range balances {
		summary.Accrued = summary.Accrued.Add(balances[i].Accrued)
		summary.Paid = summary.Paid.Add(balances[i].Paid)
	}
	for i := range debtors {
		summary.Debt = summary.Debt.Add(debtors[i].Debt())
	}

	if s.cache != nil {
		s.cache.SetSummary(ctx, "period_totals", period, summary)
	}
	return summary, nil
}
