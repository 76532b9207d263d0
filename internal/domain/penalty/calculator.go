package penalty

import (
	"sort"
	"time"

	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CurrentPolicyVersion tags computed rows with the formula revision they
// were produced under.
const CurrentPolicyVersion = "v1"

var daysPerYear = decimal.NewFromInt(365)

// DaysOverdue returns the whole days elapsed between the accrual creation
// and the reference date. Negative spans clamp to zero.
func DaysOverdue(asOf, accruedAt time.Time) int {
	days := int(asOf.Sub(accruedAt).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Compute returns round(remaining * annualRate * daysOverdue / 365), in
// whole currency units.
func Compute(remaining, annualRate decimal.Decimal, daysOverdue int) decimal.Decimal {
	if daysOverdue <= 0 || remaining.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return remaining.
		Mul(annualRate).
		Mul(decimal.NewFromInt(int64(daysOverdue))).
		Div(daysPerYear).
		Round(0)
}

// PreviewRow is one computed penalty, aggregated per (property, period)
type PreviewRow struct {
	PropertyID  uuid.UUID          `json:"property_id"`
	Period      valueobject.Period `json:"period"`
	BaseDebt    decimal.Decimal    `json:"base_debt"`
	DaysOverdue int                `json:"days_overdue"`
	Amount      decimal.Decimal    `json:"amount"`
}

// BuildPreview computes penalties from outstanding accrual remainders. It
// is a pure function with no side effects, safe to call repeatedly for
// what-if exploration. Penalty-category accruals are excluded from the
// base so penalties never compound. Rows whose computed amount falls below
// minAmount (when given) are dropped. The returned total sums the kept
// rows.
func BuildPreview(outstanding []billing.OutstandingAccrualRow, asOf time.Time, annualRate decimal.Decimal, minAmount *decimal.Decimal) ([]PreviewRow, decimal.Decimal) {
	type key struct {
		property uuid.UUID
		period   int
	}
	grouped := make(map[key]*PreviewRow)
	var order []key

	for i := range outstanding {
		row := &outstanding[i]
		if row.Category == billing.AccrualCategoryPenalty {
			continue
		}
		remaining := row.Remaining()
		if remaining.LessThanOrEqual(decimal.Zero) {
			continue
		}
		days := DaysOverdue(asOf, row.CreatedAt)
		amount := Compute(remaining, annualRate, days)

		k := key{property: row.PropertyID, period: row.Period.Key()}
		agg, ok := grouped[k]
		if !ok {
			agg = &PreviewRow{PropertyID: row.PropertyID, Period: row.Period}
			grouped[k] = agg
			order = append(order, k)
		}
		agg.BaseDebt = agg.BaseDebt.Add(remaining)
		agg.Amount = agg.Amount.Add(amount)
		if days > agg.DaysOverdue {
			agg.DaysOverdue = days
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].period == order[j].period {
			return grouped[order[i]].PropertyID.String() < grouped[order[j]].PropertyID.String()
		}
		return order[i].period < order[j].period
	})

	rows := make([]PreviewRow, 0, len(order))
	total := decimal.Zero
	for _, k := range order {
		row := grouped[k]
		if row.Amount.LessThanOrEqual(decimal.Zero) {
			continue
		}
		if minAmount != nil && row.Amount.LessThan(*minAmount) {
			continue
		}
		rows = append(rows, *row)
		total = total.Add(row.Amount)
	}
	return rows, total
}

// MetaFor builds the audit metadata for one computed row
func MetaFor(row PreviewRow, asOf time.Time, annualRate decimal.Decimal) Meta {
	return Meta{
		AsOfDate:      asOf,
		AnnualRate:    annualRate,
		BaseDebt:      row.BaseDebt,
		DaysOverdue:   row.DaysOverdue,
		PolicyVersion: CurrentPolicyVersion,
	}
}
