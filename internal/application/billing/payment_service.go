package billing

import (
	"context"
	"time"

	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/property"
	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentService handles manual payment and accrual entry and payment
// retraction. Imported payments come in through the import service; this
// is the path for one-off records entered by hand.
type PaymentService struct {
	paymentRepo    billing.PaymentRepository
	accrualRepo    billing.AccrualRepository
	allocationRepo billing.AllocationRepository
	propertyRepo   property.Repository
	logger         *zap.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	paymentRepo billing.PaymentRepository,
	accrualRepo billing.AccrualRepository,
	allocationRepo billing.AllocationRepository,
	propertyRepo property.Repository,
	logger *zap.Logger,
) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		paymentRepo:    paymentRepo,
		accrualRepo:    accrualRepo,
		allocationRepo: allocationRepo,
		propertyRepo:   propertyRepo,
		logger:         logger,
	}
}

// CreatePaymentRequest is one manually entered payment
type CreatePaymentRequest struct {
	PropertyID uuid.UUID
	Amount     decimal.Decimal
	PaidAt     time.Time
	PayerName  string
	Memo       string
	ActorID    uuid.UUID
}

// CreatePayment records a manually entered payment against a property
func (s *PaymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*billing.Payment, error) {
	if _, err := s.propertyRepo.FindByID(ctx, req.PropertyID); err != nil {
		return nil, err
	}
	payment, err := billing.NewPayment(&req.PropertyID, valueobject.NewMoneyRUB(req.Amount), req.PaidAt, billing.PaymentOriginManual)
	if err != nil {
		return nil, err
	}
	payment.SetCreatedBy(req.ActorID)
	payment.SetSource("", req.PayerName, req.Memo)
	if err := s.paymentRepo.Save(ctx, payment); err != nil {
		return nil, err
	}
	s.logger.Info("Manual payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("property_id", req.PropertyID.String()),
		zap.String("amount", req.Amount.StringFixed(2)))
	return payment, nil
}

// VoidPayment retracts a payment. The payment must hold no allocations;
// unapply them first so the reopened accrual remainders are explicit.
func (s *PaymentService) VoidPayment(ctx context.Context, paymentID uuid.UUID, reason string) (*billing.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	allocated, err := s.allocationRepo.SumByPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if allocated.IsPositive() {
		return nil, shared.NewDomainError(shared.ErrCodeInvalidTransition,
			"Cannot void a payment with allocations; unapply them first")
	}
	if err := payment.Void(reason); err != nil {
		return nil, err
	}
	if err := s.paymentRepo.Save(ctx, payment); err != nil {
		return nil, err
	}
	s.logger.Info("Payment voided",
		zap.String("payment_id", paymentID.String()),
		zap.String("reason", reason))
	return payment, nil
}

// PaymentDetails is one payment with its derived allocation state
type PaymentDetails struct {
	Payment     *billing.Payment         `json:"payment"`
	Allocated   decimal.Decimal          `json:"allocated"`
	Remaining   decimal.Decimal          `json:"remaining"`
	Status      billing.AllocationStatus `json:"status"`
	Allocations []billing.Allocation     `json:"allocations"`
}

// GetPayment returns one payment with its allocations and derived totals
func (s *PaymentService) GetPayment(ctx context.Context, paymentID uuid.UUID) (*PaymentDetails, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	allocations, err := s.allocationRepo.ListByPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	allocated := decimal.Zero
	for i := range allocations {
		allocated = allocated.Add(allocations[i].Amount)
	}
	return &PaymentDetails{
		Payment:     payment,
		Allocated:   allocated,
		Remaining:   payment.Remaining(allocated),
		Status:      payment.StatusFor(allocated),
		Allocations: allocations,
	}, nil
}

// CreateAccrualRequest is one fee charge entered against a property
type CreateAccrualRequest struct {
	PropertyID  uuid.UUID
	Period      valueobject.Period
	Category    billing.AccrualCategory
	Amount      decimal.Decimal
	Description string
	ActorID     uuid.UUID
}

// CreateAccrual records a fee charge against a property for a period
func (s *PaymentService) CreateAccrual(ctx context.Context, req CreateAccrualRequest) (*billing.Accrual, error) {
	if _, err := s.propertyRepo.FindByID(ctx, req.PropertyID); err != nil {
		return nil, err
	}
	accrual, err := billing.NewAccrual(req.PropertyID, req.Period, req.Category, valueobject.NewMoneyRUB(req.Amount))
	if err != nil {
		return nil, err
	}
	accrual.SetCreatedBy(req.ActorID)
	accrual.Description = req.Description
	if err := s.accrualRepo.Save(ctx, accrual); err != nil {
		return nil, err
	}
	return accrual, nil
}
