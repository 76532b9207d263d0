package penalty

import (
	"strings"
	"time"

	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a penalty ledger row
type Status string

const (
	StatusActive Status = "active"
	StatusFrozen Status = "frozen" // manual override: excluded from recalculation until unfrozen
	StatusVoided Status = "voided" // retracted: excluded from totals
)

// IsValid checks if the status is valid
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusFrozen || s == StatusVoided
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// Meta is the audit metadata recorded with every computed amount, kept so
// each figure stays explainable after the fact.
type Meta struct {
	AsOfDate      time.Time       `json:"as_of_date"`
	AnnualRate    decimal.Decimal `json:"annual_rate"`
	BaseDebt      decimal.Decimal `json:"base_debt"`
	DaysOverdue   int             `json:"days_overdue"`
	PolicyVersion string          `json:"policy_version"`
}

// SameBasis reports whether two computations were made from the same
// inputs. Used by recalculation to tell a genuine update from a no-op.
func (m Meta) SameBasis(other Meta) bool {
	return m.AsOfDate.Truncate(24*time.Hour).Equal(other.AsOfDate.Truncate(24*time.Hour)) &&
		m.AnnualRate.Equal(other.AnnualRate) &&
		m.BaseDebt.Equal(other.BaseDebt) &&
		m.DaysOverdue == other.DaysOverdue &&
		m.PolicyVersion == other.PolicyVersion
}

// PenaltyAccrual is a late-fee ledger row: one per (property, period), with
// its own lifecycle independent of the underlying fee accruals. All
// transition metadata is explicit columns, not a generic map - the
// actor/timestamp/reason triple per transition is part of the audit
// contract.
type PenaltyAccrual struct {
	shared.BaseAggregateRoot
	PropertyID uuid.UUID          `json:"property_id"`
	Period     valueobject.Period `json:"period"`
	Amount     decimal.Decimal    `json:"amount"`
	Status     Status             `json:"status"`
	Meta       Meta               `json:"meta"`
	ChargeID   *uuid.UUID         `json:"charge_id,omitempty"` // resulting accrual, when materialized

	FrozenBy     *uuid.UUID `json:"frozen_by,omitempty"`
	FrozenAt     *time.Time `json:"frozen_at,omitempty"`
	FreezeReason string     `json:"freeze_reason,omitempty"`
	UnfrozenBy   *uuid.UUID `json:"unfrozen_by,omitempty"`
	UnfrozenAt   *time.Time `json:"unfrozen_at,omitempty"`
	VoidedBy     *uuid.UUID `json:"voided_by,omitempty"`
	VoidedAt     *time.Time `json:"voided_at,omitempty"`
	VoidReason   string     `json:"void_reason,omitempty"`
}

// NewPenaltyAccrual creates an active penalty row for a (property, period)
func NewPenaltyAccrual(propertyID uuid.UUID, period valueobject.Period, amount decimal.Decimal, meta Meta) (*PenaltyAccrual, error) {
	if propertyID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PROPERTY", "Property ID cannot be empty")
	}
	if period.IsZero() {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Billing period is required")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Penalty amount must be positive")
	}
	return &PenaltyAccrual{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PropertyID:        propertyID,
		Period:            period,
		Amount:            amount,
		Status:            StatusActive,
		Meta:              meta,
	}, nil
}

// Recalculate overwrites the amount and metadata of an active row.
// Frozen and voided rows are manual overrides recalculation must never
// silently clobber; callers skip them instead.
func (p *PenaltyAccrual) Recalculate(amount decimal.Decimal, meta Meta) error {
	if p.Status != StatusActive {
		return shared.NewDomainError(shared.ErrCodeInvalidTransition,
			"Only an active penalty row can be recalculated")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Penalty amount must be positive")
	}
	p.Amount = amount
	p.Meta = meta
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return nil
}

// Freeze excludes the row from future recalculation. Only an active row
// can be frozen; a voided row must be unvoided first.
func (p *PenaltyAccrual) Freeze(actor uuid.UUID, reason string) error {
	if p.Status != StatusActive {
		return shared.NewDomainError(shared.ErrCodeInvalidTransition,
			"Only an active penalty row can be frozen")
	}
	if strings.TrimSpace(reason) == "" {
		return shared.NewDomainError("INVALID_REASON", "Freeze reason is required")
	}
	now := time.Now()
	p.Status = StatusFrozen
	p.FrozenBy = &actor
	p.FrozenAt = &now
	p.FreezeReason = reason
	p.UpdatedAt = now
	p.IncrementVersion()
	return nil
}

// Unfreeze returns a frozen row to active, keeping the freeze history
func (p *PenaltyAccrual) Unfreeze(actor uuid.UUID) error {
	if p.Status != StatusFrozen {
		return shared.NewDomainError(shared.ErrCodeInvalidTransition,
			"Only a frozen penalty row can be unfrozen")
	}
	now := time.Now()
	p.Status = StatusActive
	p.UnfrozenBy = &actor
	p.UnfrozenAt = &now
	p.UpdatedAt = now
	p.IncrementVersion()
	return nil
}

// Void retracts the row; any non-voided row may be voided
func (p *PenaltyAccrual) Void(actor uuid.UUID, reason string) error {
	if p.Status == StatusVoided {
		return shared.NewDomainError(shared.ErrCodeInvalidTransition,
			"Penalty row is already voided")
	}
	if strings.TrimSpace(reason) == "" {
		return shared.NewDomainError("INVALID_REASON", "Void reason is required")
	}
	now := time.Now()
	p.Status = StatusVoided
	p.VoidedBy = &actor
	p.VoidedAt = &now
	p.VoidReason = reason
	p.UpdatedAt = now
	p.IncrementVersion()
	return nil
}

// Unvoid returns a voided row to active, clearing the void metadata
func (p *PenaltyAccrual) Unvoid(actor uuid.UUID) error {
	if p.Status != StatusVoided {
		return shared.NewDomainError(shared.ErrCodeInvalidTransition,
			"Only a voided penalty row can be unvoided")
	}
	now := time.Now()
	p.Status = StatusActive
	p.VoidedBy = nil
	p.VoidedAt = nil
	p.VoidReason = ""
	p.UpdatedAt = now
	p.IncrementVersion()
	return nil
}

// AttachCharge links the row to the accrual created from it
func (p *PenaltyAccrual) AttachCharge(accrualID uuid.UUID) error {
	if p.ChargeID != nil {
		return shared.NewDomainError(shared.ErrCodeInvalidTransition,
			"Penalty row already has a resulting charge")
	}
	if p.Status != StatusActive {
		return shared.NewDomainError(shared.ErrCodeInvalidTransition,
			"Only an active penalty row can be charged")
	}
	p.ChargeID = &accrualID
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return nil
}
