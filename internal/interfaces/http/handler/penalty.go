package handler

import (
	"time"

	apppenalty "github.com/commledger/backend/internal/application/penalty"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PenaltyHandler exposes the penalty accrual engine: preview,
// recalculation, lifecycle transitions and charge hand-off.
type PenaltyHandler struct {
	BaseHandler
	service *apppenalty.Service
}

// NewPenaltyHandler creates a new PenaltyHandler
func NewPenaltyHandler(service *apppenalty.Service) *PenaltyHandler {
	return &PenaltyHandler{service: service}
}

// RegisterRoutes registers penalty routes
func (h *PenaltyHandler) RegisterRoutes(rg *gin.RouterGroup) {
	penalties := rg.Group("/penalties")
	{
		penalties.POST("/preview", h.Preview)
		penalties.POST("/recalculate", h.Recalculate)
		penalties.GET("", h.List)
		penalties.GET("/:id", h.Get)
		penalties.POST("/:id/freeze", h.Freeze)
		penalties.POST("/:id/unfreeze", h.Unfreeze)
		penalties.POST("/:id/void", h.Void)
		penalties.POST("/:id/unvoid", h.Unvoid)
		penalties.POST("/:id/charge", h.Charge)
	}
}

// computeRequest carries the penalty computation parameters
type computeRequest struct {
	Period     string `json:"period"`      // YYYY-MM, optional
	AsOf       string `json:"as_of"`       // YYYY-MM-DD, optional
	AnnualRate string `json:"annual_rate"` // optional override, e.g. "0.2"
	MinAmount  string `json:"min_amount"`  // optional threshold
}

func (h *PenaltyHandler) parseComputeRequest(c *gin.Context, req computeRequest) (apppenalty.ComputeRequest, bool) {
	var out apppenalty.ComputeRequest
	if req.Period != "" {
		period, err := valueobject.ParsePeriod(req.Period)
		if err != nil {
			h.BadRequest(c, "Invalid period, expected YYYY-MM")
			return out, false
		}
		out.Period = &period
	}
	if req.AsOf != "" {
		asOf, err := time.Parse("2006-01-02", req.AsOf)
		if err != nil {
			h.BadRequest(c, "Invalid as_of date, expected YYYY-MM-DD")
			return out, false
		}
		out.AsOf = asOf.UTC()
	}
	if req.AnnualRate != "" {
		rate, err := decimal.NewFromString(req.AnnualRate)
		if err != nil || rate.IsNegative() {
			h.BadRequest(c, "Invalid annual_rate")
			return out, false
		}
		out.AnnualRate = &rate
	}
	if req.MinAmount != "" {
		min, err := decimal.NewFromString(req.MinAmount)
		if err != nil || min.IsNegative() {
			h.BadRequest(c, "Invalid min_amount")
			return out, false
		}
		out.MinAmount = &min
	}
	return out, true
}

// Preview computes penalties without writing anything
func (h *PenaltyHandler) Preview(c *gin.Context) {
	var req computeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}
	computeReq, ok := h.parseComputeRequest(c, req)
	if !ok {
		return
	}
	result, err := h.service.Preview(c.Request.Context(), computeReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// recalculateRequest adds the rollout controls to the computation
// parameters: an explicit property list, a row cap and the voided-row
// opt-in.
type recalculateRequest struct {
	computeRequest
	PropertyIDs   []string `json:"property_ids"`
	Limit         int      `json:"limit"`
	IncludeVoided bool     `json:"include_voided"`
}

// Recalculate writes the computed penalties to the ledger
func (h *PenaltyHandler) Recalculate(c *gin.Context) {
	var req recalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}
	computeReq, ok := h.parseComputeRequest(c, req.computeRequest)
	if !ok {
		return
	}
	if req.Limit < 0 {
		h.BadRequest(c, "Invalid limit")
		return
	}
	appReq := apppenalty.RecalculateRequest{
		ComputeRequest: computeReq,
		Limit:          req.Limit,
		IncludeVoided:  req.IncludeVoided,
		ActorID:        getActorID(c),
	}
	for _, raw := range req.PropertyIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid property ID in property_ids")
			return
		}
		appReq.PropertyIDs = append(appReq.PropertyIDs, id)
	}
	result, err := h.service.Recalculate(c.Request.Context(), appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// List returns one period's penalty ledger
func (h *PenaltyHandler) List(c *gin.Context) {
	period, err := valueobject.ParsePeriod(c.Query("period"))
	if err != nil {
		h.BadRequest(c, "Invalid period, expected YYYY-MM")
		return
	}
	includeVoided := c.Query("include_voided") == "true"
	rows, err := h.service.ListByPeriod(c.Request.Context(), period, includeVoided)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rows)
}

// Get returns one penalty row
func (h *PenaltyHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid penalty ID")
		return
	}
	row, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, row)
}

// reasonRequest carries a freeze or void reason
type reasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Freeze pins a penalty row at its current amount
func (h *PenaltyHandler) Freeze(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid penalty ID")
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Freeze reason is required")
		return
	}
	row, err := h.service.Freeze(c.Request.Context(), id, getActorID(c), req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, row)
}

// Unfreeze returns a frozen row to recalculation
func (h *PenaltyHandler) Unfreeze(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid penalty ID")
		return
	}
	row, err := h.service.Unfreeze(c.Request.Context(), id, getActorID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, row)
}

// Void retracts a penalty row
func (h *PenaltyHandler) Void(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid penalty ID")
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Void reason is required")
		return
	}
	row, err := h.service.Void(c.Request.Context(), id, getActorID(c), req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, row)
}

// Unvoid restores a voided penalty row
func (h *PenaltyHandler) Unvoid(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid penalty ID")
		return
	}
	row, err := h.service.Unvoid(c.Request.Context(), id, getActorID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, row)
}

// Charge materializes an active penalty row as a billable accrual
func (h *PenaltyHandler) Charge(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid penalty ID")
		return
	}
	accrual, err := h.service.Charge(c.Request.Context(), id, getActorID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, accrual)
}
