package models

import (
	"time"

	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Billing periods are stored as "YYYY-MM" strings so lexicographic order
// matches chronological order and FIFO ordering can happen in SQL.
func periodColumn(p valueobject.Period) string {
	return p.String()
}

func periodFromColumn(s string) valueobject.Period {
	p, _ := valueobject.ParsePeriod(s)
	return p
}

// PaymentModel is the persistence model for the Payment domain entity.
type PaymentModel struct {
	AggregateModel
	PropertyID  *uuid.UUID            `gorm:"type:uuid;index"`
	Amount      decimal.Decimal       `gorm:"type:numeric(14,2);not null"`
	PaidAt      time.Time             `gorm:"type:timestamptz;not null;index"`
	Origin      billing.PaymentOrigin `gorm:"type:varchar(20);not null"`
	ExternalID  string                `gorm:"type:varchar(255);index"`
	Fingerprint string                `gorm:"type:char(64);index"`
	PayerName   string                `gorm:"type:varchar(255)"`
	Memo        string                `gorm:"type:varchar(1000)"`
	MatchType   string                `gorm:"type:varchar(20)"`
	Voided      bool                  `gorm:"not null;default:false;index"`
	VoidedAt    *time.Time            `gorm:"type:timestamptz"`
	VoidReason  string                `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment entity.
func (m *PaymentModel) ToDomain() *billing.Payment {
	p := &billing.Payment{
		PropertyID:  m.PropertyID,
		Amount:      m.Amount,
		PaidAt:      m.PaidAt,
		Origin:      m.Origin,
		ExternalID:  m.ExternalID,
		Fingerprint: m.Fingerprint,
		PayerName:   m.PayerName,
		Memo:        m.Memo,
		MatchType:   m.MatchType,
		Voided:      m.Voided,
		VoidedAt:    m.VoidedAt,
		VoidReason:  m.VoidReason,
	}
	m.PopulateAggregateRoot(&p.BaseAggregateRoot)
	return p
}

// FromDomain populates the persistence model from a domain Payment entity.
func (m *PaymentModel) FromDomain(p *billing.Payment) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.PropertyID = p.PropertyID
	m.Amount = p.Amount
	m.PaidAt = p.PaidAt
	m.Origin = p.Origin
	m.ExternalID = p.ExternalID
	m.Fingerprint = p.Fingerprint
	m.PayerName = p.PayerName
	m.Memo = p.Memo
	m.MatchType = p.MatchType
	m.Voided = p.Voided
	m.VoidedAt = p.VoidedAt
	m.VoidReason = p.VoidReason
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment entity.
func PaymentModelFromDomain(p *billing.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

// AccrualModel is the persistence model for the Accrual domain entity.
type AccrualModel struct {
	AggregateModel
	PropertyID  uuid.UUID               `gorm:"type:uuid;not null;index"`
	Period      string                  `gorm:"type:varchar(7);not null;index"`
	Category    billing.AccrualCategory `gorm:"type:varchar(20);not null"`
	Amount      decimal.Decimal         `gorm:"type:numeric(14,2);not null"`
	Description string                  `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (AccrualModel) TableName() string {
	return "accruals"
}

// ToDomain converts the persistence model to a domain Accrual entity.
func (m *AccrualModel) ToDomain() *billing.Accrual {
	a := &billing.Accrual{
		PropertyID:  m.PropertyID,
		Period:      periodFromColumn(m.Period),
		Category:    m.Category,
		Amount:      m.Amount,
		Description: m.Description,
	}
	m.PopulateAggregateRoot(&a.BaseAggregateRoot)
	return a
}

// FromDomain populates the persistence model from a domain Accrual entity.
func (m *AccrualModel) FromDomain(a *billing.Accrual) {
	m.FromDomainAggregateRoot(a.BaseAggregateRoot)
	m.PropertyID = a.PropertyID
	m.Period = periodColumn(a.Period)
	m.Category = a.Category
	m.Amount = a.Amount
	m.Description = a.Description
}

// AccrualModelFromDomain creates a new persistence model from a domain Accrual entity.
func AccrualModelFromDomain(a *billing.Accrual) *AccrualModel {
	m := &AccrualModel{}
	m.FromDomain(a)
	return m
}

// AllocationModel is the persistence model for the Allocation domain entity.
type AllocationModel struct {
	AggregateModel
	PaymentID uuid.UUID       `gorm:"type:uuid;not null;index"`
	AccrualID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount    decimal.Decimal `gorm:"type:numeric(14,2);not null"`
}

// TableName returns the table name for GORM
func (AllocationModel) TableName() string {
	return "allocations"
}

// ToDomain converts the persistence model to a domain Allocation entity.
func (m *AllocationModel) ToDomain() *billing.Allocation {
	a := &billing.Allocation{
		PaymentID: m.PaymentID,
		AccrualID: m.AccrualID,
		Amount:    m.Amount,
	}
	m.PopulateAggregateRoot(&a.BaseAggregateRoot)
	return a
}

// FromDomain populates the persistence model from a domain Allocation entity.
func (m *AllocationModel) FromDomain(a *billing.Allocation) {
	m.FromDomainAggregateRoot(a.BaseAggregateRoot)
	m.PaymentID = a.PaymentID
	m.AccrualID = a.AccrualID
	m.Amount = a.Amount
}

// AllocationModelFromDomain creates a new persistence model from a domain Allocation entity.
func AllocationModelFromDomain(a *billing.Allocation) *AllocationModel {
	m := &AllocationModel{}
	m.FromDomain(a)
	return m
}
