package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentOrigin tags how a payment entered the system
type PaymentOrigin string

const (
	PaymentOriginManual   PaymentOrigin = "manual"
	PaymentOriginImported PaymentOrigin = "imported"
)

// IsValid checks if the origin is valid
func (o PaymentOrigin) IsValid() bool {
	return o == PaymentOriginManual || o == PaymentOriginImported
}

// AllocationStatus classifies how much of a payment has been consumed
type AllocationStatus string

const (
	AllocationStatusUnallocated AllocationStatus = "unallocated"
	AllocationStatusPartial     AllocationStatus = "partially_allocated"
	AllocationStatusAllocated   AllocationStatus = "allocated"
)

// Payment represents money received from a payer. It may or may not be
// resolved to a property; unresolved payments stay on file pending manual
// resolution. Payments are never hard-deleted - Void is the retraction
// mechanism.
type Payment struct {
	shared.BaseAggregateRoot
	PropertyID  *uuid.UUID    `json:"property_id"` // nil until matched
	Amount      decimal.Decimal `json:"amount"`
	PaidAt      time.Time     `json:"paid_at"`
	Origin      PaymentOrigin `json:"origin"`
	ExternalID  string        `json:"external_id,omitempty"` // source-system reference
	Fingerprint string        `json:"fingerprint,omitempty"`
	PayerName   string        `json:"payer_name,omitempty"`
	Memo        string        `json:"memo,omitempty"`
	MatchType   string        `json:"match_type,omitempty"` // which strategy resolved the property
	Voided      bool          `json:"voided"`
	VoidedAt    *time.Time    `json:"voided_at,omitempty"`
	VoidReason  string        `json:"void_reason,omitempty"`
}

// NewPayment creates a new payment
func NewPayment(propertyID *uuid.UUID, amount valueobject.Money, paidAt time.Time, origin PaymentOrigin) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if paidAt.IsZero() {
		return nil, shared.NewDomainError("INVALID_PAID_AT", "Payment date cannot be empty")
	}
	if !origin.IsValid() {
		return nil, shared.NewDomainError("INVALID_ORIGIN", fmt.Sprintf("Invalid payment origin: %s", origin))
	}
	return &Payment{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PropertyID:        propertyID,
		Amount:            amount.Amount(),
		PaidAt:            paidAt,
		Origin:            origin,
	}, nil
}

// SetSource attaches the import-source identifiers to the payment
func (p *Payment) SetSource(externalID, payerName, memo string) {
	p.ExternalID = strings.TrimSpace(externalID)
	p.PayerName = strings.TrimSpace(payerName)
	p.Memo = strings.TrimSpace(memo)
	p.Fingerprint = PaymentFingerprint(p.PaidAt, p.Amount, p.ExternalID)
}

// AssignProperty resolves the payment to a property, recording which
// matcher strategy produced the hit.
func (p *Payment) AssignProperty(propertyID uuid.UUID, matchType string) {
	p.PropertyID = &propertyID
	p.MatchType = matchType
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
}

// Void retracts the payment. The caller must have verified the payment
// holds no active allocations; a voided payment must not fund accruals.
func (p *Payment) Void(reason string) error {
	if p.Voided {
		return shared.NewDomainError(shared.ErrCodeInvalidTransition, "Payment is already voided")
	}
	if strings.TrimSpace(reason) == "" {
		return shared.NewDomainError("INVALID_REASON", "Void reason is required")
	}
	now := time.Now()
	p.Voided = true
	p.VoidedAt = &now
	p.VoidReason = reason
	p.UpdatedAt = now
	p.IncrementVersion()
	return nil
}

// Remaining returns the unconsumed part of the payment given the current
// allocation total. The total is always derived from allocation rows,
// never cached on the payment.
func (p *Payment) Remaining(allocated decimal.Decimal) decimal.Decimal {
	return p.Amount.Sub(allocated)
}

// StatusFor classifies the payment against the given allocation total
func (p *Payment) StatusFor(allocated decimal.Decimal) AllocationStatus {
	switch {
	case allocated.IsZero():
		return AllocationStatusUnallocated
	case allocated.GreaterThanOrEqual(p.Amount):
		return AllocationStatusAllocated
	default:
		return AllocationStatusPartial
	}
}

// PaymentFingerprint computes the content fingerprint used by the
// deduplication gate: date (calendar day), amount and external id. The
// amount is rendered with fixed precision so 100 and 100.00 collide.
func PaymentFingerprint(paidAt time.Time, amount decimal.Decimal, externalID string) string {
	content := fmt.Sprintf("%s|%s|%s", paidAt.UTC().Format("2006-01-02"), amount.StringFixed(2), externalID)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
