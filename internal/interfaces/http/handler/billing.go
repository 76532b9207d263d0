package handler

import (
	"time"

	appbilling "github.com/commledger/backend/internal/application/billing"
	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingHandler exposes payment entry, accrual entry and allocation
// endpoints.
type BillingHandler struct {
	BaseHandler
	payments    *appbilling.PaymentService
	allocations *appbilling.AllocationService
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(payments *appbilling.PaymentService, allocations *appbilling.AllocationService) *BillingHandler {
	return &BillingHandler{payments: payments, allocations: allocations}
}

// RegisterRoutes registers billing routes
func (h *BillingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	payments := rg.Group("/payments")
	{
		payments.POST("", h.CreatePayment)
		payments.GET("/:id", h.GetPayment)
		payments.POST("/:id/void", h.VoidPayment)
		payments.DELETE("/:id/allocations", h.UnapplyPayment)
	}
	accruals := rg.Group("/accruals")
	{
		accruals.POST("", h.CreateAccrual)
	}
	allocations := rg.Group("/allocations")
	{
		allocations.POST("", h.ManualAllocate)
		allocations.POST("/auto", h.AutoAllocate)
		allocations.DELETE("/:id", h.Unapply)
	}
}

// createPaymentRequest is the manual payment entry payload
type createPaymentRequest struct {
	PropertyID string `json:"property_id" binding:"required,uuid"`
	Amount     string `json:"amount" binding:"required"`
	PaidAt     string `json:"paid_at" binding:"required"` // YYYY-MM-DD
	PayerName  string `json:"payer_name"`
	Memo       string `json:"memo"`
}

// CreatePayment records a manually entered payment
func (h *BillingHandler) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.BadRequest(c, "Invalid amount")
		return
	}
	paidAt, err := time.Parse("2006-01-02", req.PaidAt)
	if err != nil {
		h.BadRequest(c, "Invalid paid_at date, expected YYYY-MM-DD")
		return
	}

	payment, err := h.payments.CreatePayment(c.Request.Context(), appbilling.CreatePaymentRequest{
		PropertyID: uuid.MustParse(req.PropertyID),
		Amount:     amount,
		PaidAt:     paidAt.UTC(),
		PayerName:  req.PayerName,
		Memo:       req.Memo,
		ActorID:    getActorID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, payment)
}

// GetPayment returns one payment with its derived allocation state
func (h *BillingHandler) GetPayment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid payment ID")
		return
	}
	details, err := h.payments.GetPayment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, details)
}

// voidRequest carries the retraction reason
type voidRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// VoidPayment retracts a payment
func (h *BillingHandler) VoidPayment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid payment ID")
		return
	}
	var req voidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Void reason is required")
		return
	}
	payment, err := h.payments.VoidPayment(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payment)
}

// createAccrualRequest is the fee charge entry payload
type createAccrualRequest struct {
	PropertyID  string `json:"property_id" binding:"required,uuid"`
	Period      string `json:"period" binding:"required"` // YYYY-MM
	Category    string `json:"category" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	Description string `json:"description"`
}

// CreateAccrual records a fee charge
func (h *BillingHandler) CreateAccrual(c *gin.Context) {
	var req createAccrualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}
	period, err := valueobject.ParsePeriod(req.Period)
	if err != nil {
		h.BadRequest(c, "Invalid period, expected YYYY-MM")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.BadRequest(c, "Invalid amount")
		return
	}

	accrual, err := h.payments.CreateAccrual(c.Request.Context(), appbilling.CreateAccrualRequest{
		PropertyID:  uuid.MustParse(req.PropertyID),
		Period:      period,
		Category:    billing.AccrualCategory(req.Category),
		Amount:      amount,
		Description: req.Description,
		ActorID:     getActorID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, accrual)
}

// manualAllocateRequest applies part of one payment to one accrual
type manualAllocateRequest struct {
	PaymentID string `json:"payment_id" binding:"required,uuid"`
	AccrualID string `json:"accrual_id" binding:"required,uuid"`
	Amount    string `json:"amount" binding:"required"`
}

// ManualAllocate applies one payment to one accrual
func (h *BillingHandler) ManualAllocate(c *gin.Context) {
	var req manualAllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.BadRequest(c, "Invalid amount")
		return
	}

	allocation, err := h.allocations.ManualAllocate(c.Request.Context(), appbilling.ManualAllocateRequest{
		PaymentID: uuid.MustParse(req.PaymentID),
		AccrualID: uuid.MustParse(req.AccrualID),
		Amount:    amount,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, allocation)
}

// autoAllocateRequest selects payments for a FIFO allocation run
type autoAllocateRequest struct {
	Period     string   `json:"period"` // YYYY-MM, optional
	PaymentIDs []string `json:"payment_ids"`
}

// AutoAllocate runs FIFO allocation over the selected payments
func (h *BillingHandler) AutoAllocate(c *gin.Context) {
	var req autoAllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	appReq := appbilling.AutoAllocateRequest{}
	if req.Period != "" {
		period, err := valueobject.ParsePeriod(req.Period)
		if err != nil {
			h.BadRequest(c, "Invalid period, expected YYYY-MM")
			return
		}
		appReq.Period = &period
	}
	for _, raw := range req.PaymentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid payment ID in payment_ids")
			return
		}
		appReq.PaymentIDs = append(appReq.PaymentIDs, id)
	}

	result, err := h.allocations.AutoAllocate(c.Request.Context(), appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Unapply removes one allocation
func (h *BillingHandler) Unapply(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid allocation ID")
		return
	}
	if err := h.allocations.Unapply(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// UnapplyPayment removes every allocation of one payment
func (h *BillingHandler) UnapplyPayment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid payment ID")
		return
	}
	removed, err := h.allocations.UnapplyPayment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"removed": removed})
}
