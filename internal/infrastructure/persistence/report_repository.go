package persistence

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/property"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormReportRepository implements billing.ReportRepository using GORM.
// Every figure is aggregated from allocation rows at query time; no table
// carries a cached debt or remainder column.
type GormReportRepository struct {
	db *gorm.DB
}

// NewGormReportRepository creates a new GormReportRepository
func NewGormReportRepository(db *gorm.DB) *GormReportRepository {
	return &GormReportRepository{db: db}
}

var _ billing.ReportRepository = (*GormReportRepository)(nil)

type paymentScanRow struct {
	ID         uuid.UUID
	PaidAt     time.Time
	Amount     decimal.Decimal
	PayerName  string
	PlotNumber string
	Street     string
	Allocated  decimal.Decimal
}

func (r *GormReportRepository) paymentQuery(ctx context.Context, filter billing.ReportFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Table("payments p").
		Select("p.id, p.paid_at, p.amount, p.payer_name, " +
			"COALESCE(pr.plot_number, '') AS plot_number, COALESCE(pr.street, '') AS street, " +
			"COALESCE((SELECT SUM(a.amount) FROM allocations a WHERE a.payment_id = p.id), 0) AS allocated").
		Joins("LEFT JOIN properties pr ON pr.id = p.property_id").
		Where("p.voided = ?", false)
	if filter.From != nil {
		query = query.Where("p.paid_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("p.paid_at < ?", *filter.To)
	}
	if s := strings.ToLower(strings.TrimSpace(filter.Search)); s != "" {
		pattern := "%" + s + "%"
		query = query.Where(
			"LOWER(COALESCE(pr.plot_number, '')) LIKE ? OR LOWER(COALESCE(pr.street, '')) LIKE ? OR "+
				"LOWER(COALESCE(pr.owner_name, '')) LIKE ? OR LOWER(p.payer_name) LIKE ?",
			pattern, pattern, pattern, pattern)
	}
	return query.Order("p.paid_at ASC, p.created_at ASC")
}

func paymentReportRows(rows []paymentScanRow) []billing.PaymentReportRow {
	result := make([]billing.PaymentReportRow, len(rows))
	for i, row := range rows {
		result[i] = billing.PaymentReportRow{
			PaymentID:     row.ID,
			PaidAt:        row.PaidAt,
			Amount:        row.Amount,
			PayerName:     row.PayerName,
			PropertyLabel: propertyLabel(row.PlotNumber, row.Street),
			Allocated:     row.Allocated,
		}
	}
	return result
}

// propertyLabel rebuilds the report label from the joined columns
func propertyLabel(plotNumber, street string) string {
	if plotNumber == "" {
		return ""
	}
	p := property.Property{PlotNumber: plotNumber, Street: street}
	return p.Label()
}

// UnallocatedPayments returns non-voided payments with no allocation rows
func (r *GormReportRepository) UnallocatedPayments(ctx context.Context, filter billing.ReportFilter) ([]billing.PaymentReportRow, error) {
	var rows []paymentScanRow
	err := r.paymentQuery(ctx, filter).
		Where("NOT EXISTS (SELECT 1 FROM allocations a WHERE a.payment_id = p.id)").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return paymentReportRows(rows), nil
}

// Overpayments returns payments whose allocation total is positive but
// below the payment amount.
func (r *GormReportRepository) Overpayments(ctx context.Context, filter billing.ReportFilter) ([]billing.PaymentReportRow, error) {
	var rows []paymentScanRow
	err := r.paymentQuery(ctx, filter).
		Where("EXISTS (SELECT 1 FROM allocations a WHERE a.payment_id = p.id)").
		Where("p.amount > COALESCE((SELECT SUM(a.amount) FROM allocations a WHERE a.payment_id = p.id), 0)").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return paymentReportRows(rows), nil
}

// Payments returns the full payments register for the range
func (r *GormReportRepository) Payments(ctx context.Context, filter billing.ReportFilter) ([]billing.PaymentReportRow, error) {
	var rows []paymentScanRow
	if err := r.paymentQuery(ctx, filter).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return paymentReportRows(rows), nil
}

type accrualScanRow struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	Period     string
	Category   billing.AccrualCategory
	Amount     decimal.Decimal
	PlotNumber string
	Street     string
	Paid       decimal.Decimal
}

// Accruals returns the accruals register for the range. Range endpoints
// are compared at billing-period granularity.
func (r *GormReportRepository) Accruals(ctx context.Context, filter billing.ReportFilter) ([]billing.AccrualReportRow, error) {
	query := r.db.WithContext(ctx).Table("accruals ac").
		Select("ac.id, ac.created_at, ac.period, ac.category, ac.amount, " +
			"pr.plot_number, COALESCE(pr.street, '') AS street, " +
			"COALESCE((SELECT SUM(al.amount) FROM allocations al WHERE al.accrual_id = ac.id), 0) AS paid").
		Joins("JOIN properties pr ON pr.id = ac.property_id")
	query = applyPeriodRange(query, "ac.period", filter.From, filter.To)
	if s := strings.ToLower(strings.TrimSpace(filter.Search)); s != "" {
		pattern := "%" + s + "%"
		query = query.Where(
			"LOWER(pr.plot_number) LIKE ? OR LOWER(COALESCE(pr.street, '')) LIKE ? OR LOWER(COALESCE(pr.owner_name, '')) LIKE ?",
			pattern, pattern, pattern)
	}

	var rows []accrualScanRow
	if err := query.Order("ac.period ASC, ac.created_at ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]billing.AccrualReportRow, len(rows))
	for i, row := range rows {
		period, _ := valueobject.ParsePeriod(row.Period)
		result[i] = billing.AccrualReportRow{
			AccrualID:     row.ID,
			CreatedAt:     row.CreatedAt,
			Period:        period,
			PropertyLabel: propertyLabel(row.PlotNumber, row.Street),
			Category:      row.Category,
			Amount:        row.Amount,
			Paid:          row.Paid,
		}
	}
	return result, nil
}

// applyPeriodRange narrows a "YYYY-MM" period column to the date range.
// Period strings sort chronologically, so the comparison happens at month
// granularity; callers derive the endpoints from whole billing periods.
func applyPeriodRange(query *gorm.DB, column string, from, to *time.Time) *gorm.DB {
	if from != nil {
		query = query.Where(column+" >= ?", from.UTC().Format("2006-01"))
	}
	if to != nil {
		query = query.Where(column+" < ?", to.UTC().Format("2006-01"))
	}
	return query
}

type propertyTotalRow struct {
	PropertyID uuid.UUID
	Total      decimal.Decimal
}

// accruedByProperty sums accrual amounts per property over the period range
func (r *GormReportRepository) accruedByProperty(ctx context.Context, filter billing.ReportFilter) (map[uuid.UUID]decimal.Decimal, error) {
	query := r.db.WithContext(ctx).Table("accruals").
		Select("property_id, COALESCE(SUM(amount), 0) AS total").
		Group("property_id")
	query = applyPeriodRange(query, "period", filter.From, filter.To)

	var rows []propertyTotalRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return totalsByProperty(rows), nil
}

// allocatedByProperty sums allocations against each property's accruals in
// the period range: what the range's charges actually received.
func (r *GormReportRepository) allocatedByProperty(ctx context.Context, filter billing.ReportFilter) (map[uuid.UUID]decimal.Decimal, error) {
	query := r.db.WithContext(ctx).Table("allocations al").
		Select("ac.property_id, COALESCE(SUM(al.amount), 0) AS total").
		Joins("JOIN accruals ac ON ac.id = al.accrual_id").
		Group("ac.property_id")
	query = applyPeriodRange(query, "ac.period", filter.From, filter.To)

	var rows []propertyTotalRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return totalsByProperty(rows), nil
}

// paidByProperty sums non-voided payment amounts per property in the range
func (r *GormReportRepository) paidByProperty(ctx context.Context, filter billing.ReportFilter) (map[uuid.UUID]decimal.Decimal, error) {
	query := r.db.WithContext(ctx).Table("payments").
		Select("property_id, COALESCE(SUM(amount), 0) AS total").
		Where("voided = ?", false).
		Where("property_id IS NOT NULL").
		Group("property_id")
	if filter.From != nil {
		query = query.Where("paid_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("paid_at < ?", *filter.To)
	}

	var rows []propertyTotalRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return totalsByProperty(rows), nil
}

func totalsByProperty(rows []propertyTotalRow) map[uuid.UUID]decimal.Decimal {
	totals := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		totals[row.PropertyID] = row.Total
	}
	return totals
}

// reportProperties loads the property register narrowed by the search term
func (r *GormReportRepository) reportProperties(ctx context.Context, search string) ([]property.Property, error) {
	repo := NewGormPropertyRepository(r.db)
	properties, err := repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	s := strings.ToLower(strings.TrimSpace(search))
	if s == "" {
		return properties, nil
	}
	filtered := properties[:0]
	for _, p := range properties {
		if strings.Contains(strings.ToLower(p.PlotNumber), s) ||
			strings.Contains(strings.ToLower(p.Street), s) ||
			strings.Contains(strings.ToLower(p.OwnerName), s) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// DebtorBalances returns properties whose accruals in the range received
// less than they charged, largest debt first. Paid here means allocations
// against the range's accruals, so an unallocated payment does not hide a
// debtor.
func (r *GormReportRepository) DebtorBalances(ctx context.Context, filter billing.ReportFilter) ([]billing.DebtorRow, error) {
	accrued, err := r.accruedByProperty(ctx, filter)
	if err != nil {
		return nil, err
	}
	allocated, err := r.allocatedByProperty(ctx, filter)
	if err != nil {
		return nil, err
	}
	properties, err := r.reportProperties(ctx, filter.Search)
	if err != nil {
		return nil, err
	}

	var rows []billing.DebtorRow
	for _, p := range properties {
		row := billing.DebtorRow{
			PropertyID:    p.ID,
			PropertyLabel: p.Label(),
			ResidentLabel: p.ResidentLabel(),
			Accrued:       accrued[p.ID],
			Paid:          allocated[p.ID],
		}
		if row.Debt().IsPositive() {
			rows = append(rows, row)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Debt().GreaterThan(rows[j].Debt())
	})
	return rows, nil
}

// Balances returns every property's signed ledger balance over the range:
// payments received versus fees charged.
func (r *GormReportRepository) Balances(ctx context.Context, filter billing.ReportFilter) ([]billing.BalanceRow, error) {
	accrued, err := r.accruedByProperty(ctx, filter)
	if err != nil {
		return nil, err
	}
	paid, err := r.paidByProperty(ctx, filter)
	if err != nil {
		return nil, err
	}
	properties, err := r.reportProperties(ctx, filter.Search)
	if err != nil {
		return nil, err
	}

	rows := make([]billing.BalanceRow, len(properties))
	for i, p := range properties {
		rows[i] = billing.BalanceRow{
			PropertyID:    p.ID,
			PropertyLabel: p.Label(),
			ResidentLabel: p.ResidentLabel(),
			Accrued:       accrued[p.ID],
			Paid:          paid[p.ID],
		}
	}
	return rows, nil
}

type outstandingScanRow struct {
	ID         uuid.UUID
	PropertyID uuid.UUID
	Period     string
	Category   billing.AccrualCategory
	Amount     decimal.Decimal
	Allocated  decimal.Decimal
	CreatedAt  time.Time
}

// OutstandingAccruals returns accruals whose derived remainder is still
// positive, matching the filter, oldest period first.
func (r *GormReportRepository) OutstandingAccruals(ctx context.Context, filter billing.OutstandingFilter) ([]billing.OutstandingAccrualRow, error) {
	query := r.db.WithContext(ctx).Table("accruals ac").
		Select("ac.id, ac.property_id, ac.period, ac.category, ac.amount, ac.created_at, " +
			"COALESCE((SELECT SUM(al.amount) FROM allocations al WHERE al.accrual_id = ac.id), 0) AS allocated").
		Where("ac.amount > COALESCE((SELECT SUM(al.amount) FROM allocations al WHERE al.accrual_id = ac.id), 0)")

	if filter.Period != nil {
		query = query.Where("ac.period = ?", filter.Period.String())
	}
	if len(filter.PropertyIDs) > 0 {
		query = query.Where("ac.property_id IN ?", filter.PropertyIDs)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("ac.created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("ac.created_at < ?", *filter.CreatedTo)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []outstandingScanRow
	if err := query.Order("ac.period ASC, ac.created_at ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]billing.OutstandingAccrualRow, len(rows))
	for i, row := range rows {
		period, _ := valueobject.ParsePeriod(row.Period)
		result[i] = billing.OutstandingAccrualRow{
			AccrualID:  row.ID,
			PropertyID: row.PropertyID,
			Period:     period,
			Category:   row.Category,
			Amount:     row.Amount,
			Allocated:  row.Allocated,
			CreatedAt:  row.CreatedAt,
		}
	}
	return result, nil
}
