package models

import (
	"time"

	"github.com/commledger/backend/internal/domain/penalty"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PenaltyAccrualModel is the persistence model for the PenaltyAccrual
// domain entity. Computation metadata is stored as explicit columns so
// every figure stays queryable and explainable without JSON digging.
type PenaltyAccrualModel struct {
	AggregateModel
	PropertyID uuid.UUID       `gorm:"type:uuid;not null;index:idx_penalty_property_period"`
	Period     string          `gorm:"type:varchar(7);not null;index:idx_penalty_property_period"`
	Amount     decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Status     penalty.Status  `gorm:"type:varchar(10);not null;index"`
	ChargeID   *uuid.UUID      `gorm:"type:uuid"`

	AsOfDate      time.Time       `gorm:"type:timestamptz;not null"`
	AnnualRate    decimal.Decimal `gorm:"type:numeric(6,4);not null"`
	BaseDebt      decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	DaysOverdue   int             `gorm:"not null"`
	PolicyVersion string          `gorm:"type:varchar(10);not null"`

	FrozenBy     *uuid.UUID `gorm:"type:uuid"`
	FrozenAt     *time.Time `gorm:"type:timestamptz"`
	FreezeReason string     `gorm:"type:varchar(500)"`
	UnfrozenBy   *uuid.UUID `gorm:"type:uuid"`
	UnfrozenAt   *time.Time `gorm:"type:timestamptz"`
	VoidedBy     *uuid.UUID `gorm:"type:uuid"`
	VoidedAt     *time.Time `gorm:"type:timestamptz"`
	VoidReason   string     `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (PenaltyAccrualModel) TableName() string {
	return "penalty_accruals"
}

// ToDomain converts the persistence model to a domain PenaltyAccrual entity.
func (m *PenaltyAccrualModel) ToDomain() *penalty.PenaltyAccrual {
	p := &penalty.PenaltyAccrual{
		PropertyID: m.PropertyID,
		Period:     periodFromColumn(m.Period),
		Amount:     m.Amount,
		Status:     m.Status,
		ChargeID:   m.ChargeID,
		Meta: penalty.Meta{
			AsOfDate:      m.AsOfDate,
			AnnualRate:    m.AnnualRate,
			BaseDebt:      m.BaseDebt,
			DaysOverdue:   m.DaysOverdue,
			PolicyVersion: m.PolicyVersion,
		},
		FrozenBy:     m.FrozenBy,
		FrozenAt:     m.FrozenAt,
		FreezeReason: m.FreezeReason,
		UnfrozenBy:   m.UnfrozenBy,
		UnfrozenAt:   m.UnfrozenAt,
		VoidedBy:     m.VoidedBy,
		VoidedAt:     m.VoidedAt,
		VoidReason:   m.VoidReason,
	}
	m.PopulateAggregateRoot(&p.BaseAggregateRoot)
	return p
}

// FromDomain populates the persistence model from a domain PenaltyAccrual entity.
func (m *PenaltyAccrualModel) FromDomain(p *penalty.PenaltyAccrual) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.PropertyID = p.PropertyID
	m.Period = periodColumn(p.Period)
	m.Amount = p.Amount
	m.Status = p.Status
	m.ChargeID = p.ChargeID
	m.AsOfDate = p.Meta.AsOfDate
	m.AnnualRate = p.Meta.AnnualRate
	m.BaseDebt = p.Meta.BaseDebt
	m.DaysOverdue = p.Meta.DaysOverdue
	m.PolicyVersion = p.Meta.PolicyVersion
	m.FrozenBy = p.FrozenBy
	m.FrozenAt = p.FrozenAt
	m.FreezeReason = p.FreezeReason
	m.UnfrozenBy = p.UnfrozenBy
	m.UnfrozenAt = p.UnfrozenAt
	m.VoidedBy = p.VoidedBy
	m.VoidedAt = p.VoidedAt
	m.VoidReason = p.VoidReason
}

// PenaltyAccrualModelFromDomain creates a new persistence model from a domain entity.
func PenaltyAccrualModelFromDomain(p *penalty.PenaltyAccrual) *PenaltyAccrualModel {
	m := &PenaltyAccrualModel{}
	m.FromDomain(p)
	return m
}
