package billing

import (
	"context"
	"time"

	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReportFilter scopes a report to a date range and an optional free-text
// search over property identifiers, addresses and owner names.
type ReportFilter struct {
	From   *time.Time
	To     *time.Time
	Search string
}

// PaymentReportRow is one payment with its derived allocation total
type PaymentReportRow struct {
	PaymentID     uuid.UUID       `json:"payment_id"`
	PaidAt        time.Time       `json:"paid_at"`
	Amount        decimal.Decimal `json:"amount"`
	PayerName     string          `json:"payer_name"`
	PropertyLabel string          `json:"property_label"`
	Allocated     decimal.Decimal `json:"allocated"`
}

// Remaining returns the derived unconsumed amount
func (r *PaymentReportRow) Remaining() decimal.Decimal {
	return r.Amount.Sub(r.Allocated)
}

// Status classifies the row for the payments register export
func (r *PaymentReportRow) Status() AllocationStatus {
	p := Payment{Amount: r.Amount}
	return p.StatusFor(r.Allocated)
}

// AccrualReportRow is one accrual with its derived paid total
type AccrualReportRow struct {
	AccrualID     uuid.UUID          `json:"accrual_id"`
	CreatedAt     time.Time          `json:"created_at"`
	Period        valueobject.Period `json:"period"`
	PropertyLabel string             `json:"property_label"`
	Category      AccrualCategory    `json:"category"`
	Amount        decimal.Decimal    `json:"amount"`
	Paid          decimal.Decimal    `json:"paid"`
}

// Remaining returns the derived unpaid amount
func (r *AccrualReportRow) Remaining() decimal.Decimal {
	return r.Amount.Sub(r.Paid)
}

// Status classifies the row for the accruals register export
func (r *AccrualReportRow) Status() AccrualStatus {
	a := Accrual{Amount: r.Amount}
	return a.StatusFor(r.Paid)
}

// DebtorRow is one property's accrued-versus-paid aggregate over a range
type DebtorRow struct {
	PropertyID    uuid.UUID       `json:"property_id"`
	PropertyLabel string          `json:"property_label"`
	ResidentLabel string          `json:"resident_label"`
	Accrued       decimal.Decimal `json:"accrued"`
	Paid          decimal.Decimal `json:"paid"`
}

// Debt returns the outstanding amount (accrued minus paid)
func (r *DebtorRow) Debt() decimal.Decimal {
	return r.Accrued.Sub(r.Paid)
}

// BalanceRow is one property's signed ledger balance over a range
type BalanceRow struct {
	PropertyID    uuid.UUID       `json:"property_id"`
	PropertyLabel string          `json:"property_label"`
	ResidentLabel string          `json:"resident_label"`
	Accrued       decimal.Decimal `json:"accrued"`
	Paid          decimal.Decimal `json:"paid"`
}

// Balance returns the signed balance (paid minus accrued)
func (r *BalanceRow) Balance() decimal.Decimal {
	return r.Paid.Sub(r.Accrued)
}

// Debt returns the debt magnitude (zero when in credit)
func (r *BalanceRow) Debt() decimal.Decimal {
	if b := r.Balance(); b.IsNegative() {
		return b.Neg()
	}
	return decimal.Zero
}

// Credit returns the credit magnitude (zero when in debt)
func (r *BalanceRow) Credit() decimal.Decimal {
	if b := r.Balance(); b.Sign() > 0 {
		return b
	}
	return decimal.Zero
}

// OutstandingFilter scopes the outstanding-accrual view used by penalty
// computation.
type OutstandingFilter struct {
	Period      *valueobject.Period
	PropertyIDs []uuid.UUID
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
}

// OutstandingAccrualRow is one accrual remainder used as a penalty base
type OutstandingAccrualRow struct {
	AccrualID  uuid.UUID          `json:"accrual_id"`
	PropertyID uuid.UUID          `json:"property_id"`
	Period     valueobject.Period `json:"period"`
	Category   AccrualCategory    `json:"category"`
	Amount     decimal.Decimal    `json:"amount"`
	Allocated  decimal.Decimal    `json:"allocated"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Remaining returns the derived unpaid amount
func (r *OutstandingAccrualRow) Remaining() decimal.Decimal {
	return r.Amount.Sub(r.Allocated)
}

// ReportRepository is the read-only reporting view over payments, accruals
// and allocations. Every figure is computed from allocation rows at query
// time; implementations must not maintain cached debt columns.
type ReportRepository interface {
	UnallocatedPayments(ctx context.Context, filter ReportFilter) ([]PaymentReportRow, error)
	Overpayments(ctx context.Context, filter ReportFilter) ([]PaymentReportRow, error)
	Payments(ctx context.Context, filter ReportFilter) ([]PaymentReportRow, error)
	Accruals(ctx context.Context, filter ReportFilter) ([]AccrualReportRow, error)
	DebtorBalances(ctx context.Context, filter ReportFilter) ([]DebtorRow, error)
	Balances(ctx context.Context, filter ReportFilter) ([]BalanceRow, error)
	OutstandingAccruals(ctx context.Context, filter OutstandingFilter) ([]OutstandingAccrualRow, error)
}
