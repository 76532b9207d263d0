package billing

import (
	"fmt"

	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccrualCategory is the kind of fee an accrual charges
type AccrualCategory string

const (
	AccrualCategoryMembership  AccrualCategory = "membership"
	AccrualCategoryTarget      AccrualCategory = "target"
	AccrualCategoryElectricity AccrualCategory = "electricity"
	AccrualCategoryPenalty     AccrualCategory = "penalty" // charge created from a penalty ledger row
)

// IsValid checks if the category is valid
func (c AccrualCategory) IsValid() bool {
	switch c {
	case AccrualCategoryMembership, AccrualCategoryTarget, AccrualCategoryElectricity, AccrualCategoryPenalty:
		return true
	}
	return false
}

// Title returns the display title for report exports
func (c AccrualCategory) Title() string {
	switch c {
	case AccrualCategoryMembership:
		return "Членские взносы"
	case AccrualCategoryTarget:
		return "Целевые взносы"
	case AccrualCategoryElectricity:
		return "Электроэнергия"
	case AccrualCategoryPenalty:
		return "Пени"
	default:
		return string(c)
	}
}

// AccrualStatus classifies how much of an accrual has been paid
type AccrualStatus string

const (
	AccrualStatusOpen          AccrualStatus = "open"
	AccrualStatusPartiallyPaid AccrualStatus = "partially_paid"
	AccrualStatusPaid          AccrualStatus = "paid"
)

// Accrual represents money owed by one property for one billing period.
type Accrual struct {
	shared.BaseAggregateRoot
	PropertyID  uuid.UUID          `json:"property_id"`
	Period      valueobject.Period `json:"period"`
	Category    AccrualCategory    `json:"category"`
	Amount      decimal.Decimal    `json:"amount"`
	Description string             `json:"description,omitempty"`
}

// NewAccrual creates a new accrual
func NewAccrual(propertyID uuid.UUID, period valueobject.Period, category AccrualCategory, amount valueobject.Money) (*Accrual, error) {
	if propertyID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PROPERTY", "Property ID cannot be empty")
	}
	if period.IsZero() {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Billing period is required")
	}
	if !category.IsValid() {
		return nil, shared.NewDomainError("INVALID_CATEGORY", fmt.Sprintf("Invalid accrual category: %s", category))
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Accrual amount must be positive")
	}
	return &Accrual{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PropertyID:        propertyID,
		Period:            period,
		Category:          category,
		Amount:            amount.Amount(),
	}, nil
}

// Remaining returns the unpaid part of the accrual given the current
// allocation total, always derived from allocation rows.
func (a *Accrual) Remaining(allocated decimal.Decimal) decimal.Decimal {
	return a.Amount.Sub(allocated)
}

// StatusFor classifies the accrual against the given allocation total
func (a *Accrual) StatusFor(allocated decimal.Decimal) AccrualStatus {
	switch {
	case allocated.IsZero():
		return AccrualStatusOpen
	case allocated.GreaterThanOrEqual(a.Amount):
		return AccrualStatusPaid
	default:
		return AccrualStatusPartiallyPaid
	}
}
