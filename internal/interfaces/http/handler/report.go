package handler

import (
	"context"
	"io"

	appbilling "github.com/commledger/backend/internal/application/billing"
	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/gin-gonic/gin"
)

// ReportHandler exposes the read-only reconciliation reports, each as
// JSON and as a CSV download.
type ReportHandler struct {
	BaseHandler
	reports *appbilling.ReportingService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(reports *appbilling.ReportingService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// RegisterRoutes registers report routes
func (h *ReportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	reports := rg.Group("/reports")
	{
		reports.GET("/summary", h.Summary)
		reports.GET("/payments", h.Payments)
		reports.GET("/payments.csv", h.PaymentsCSV)
		reports.GET("/unallocated", h.UnallocatedPayments)
		reports.GET("/unallocated.csv", h.UnallocatedPaymentsCSV)
		reports.GET("/overpayments", h.Overpayments)
		reports.GET("/overpayments.csv", h.OverpaymentsCSV)
		reports.GET("/accruals", h.Accruals)
		reports.GET("/accruals.csv", h.AccrualsCSV)
		reports.GET("/debtors", h.Debtors)
		reports.GET("/debtors.csv", h.DebtorsCSV)
		reports.GET("/balances", h.Balances)
		reports.GET("/balances.csv", h.BalancesCSV)
	}
}

// Summary returns one period's reconciliation totals
func (h *ReportHandler) Summary(c *gin.Context) {
	period, err := valueobject.ParsePeriod(c.Query("period"))
	if err != nil {
		h.BadRequest(c, "Invalid period, expected YYYY-MM")
		return
	}
	summary, err := h.reports.Summary(c.Request.Context(), period)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

type paymentReportFunc func(context.Context, billing.ReportFilter) ([]billing.PaymentReportRow, error)

func (h *ReportHandler) servePaymentReport(c *gin.Context, load paymentReportFunc) {
	filter, err := reportFilter(c)
	if err != nil {
		h.BadRequest(c, "Invalid report range")
		return
	}
	rows, err := load(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rows)
}

type csvReportFunc func(context.Context, billing.ReportFilter, io.Writer) error

func (h *ReportHandler) serveCSV(c *gin.Context, fileName string, write csvReportFunc) {
	filter, err := reportFilter(c)
	if err != nil {
		h.BadRequest(c, "Invalid report range")
		return
	}
	setCSVHeaders(c, fileName)
	if err := write(c.Request.Context(), filter, c.Writer); err != nil {
		// Headers are already sent, so the error can only be logged
		_ = c.Error(err)
	}
}

// Payments returns the payments register
func (h *ReportHandler) Payments(c *gin.Context) {
	h.servePaymentReport(c, h.reports.Payments)
}

// PaymentsCSV downloads the payments register
func (h *ReportHandler) PaymentsCSV(c *gin.Context) {
	h.serveCSV(c, "payments.csv", h.reports.WritePaymentsCSV)
}

// UnallocatedPayments returns payments nothing has been applied from yet
func (h *ReportHandler) UnallocatedPayments(c *gin.Context) {
	h.servePaymentReport(c, h.reports.UnallocatedPayments)
}

// UnallocatedPaymentsCSV downloads the unallocated payments report
func (h *ReportHandler) UnallocatedPaymentsCSV(c *gin.Context) {
	h.serveCSV(c, "unallocated_payments.csv", h.reports.WriteUnallocatedPaymentsCSV)
}

// Overpayments returns partially consumed payments with a positive remainder
func (h *ReportHandler) Overpayments(c *gin.Context) {
	h.servePaymentReport(c, h.reports.Overpayments)
}

// OverpaymentsCSV downloads the overpayments report
func (h *ReportHandler) OverpaymentsCSV(c *gin.Context) {
	h.serveCSV(c, "overpayments.csv", h.reports.WriteOverpaymentsCSV)
}

// Accruals returns the accruals register
func (h *ReportHandler) Accruals(c *gin.Context) {
	filter, err := reportFilter(c)
	if err != nil {
		h.BadRequest(c, "Invalid report range")
		return
	}
	rows, err := h.reports.Accruals(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rows)
}

// AccrualsCSV downloads the accruals register
func (h *ReportHandler) AccrualsCSV(c *gin.Context) {
	h.serveCSV(c, "accruals.csv", h.reports.WriteAccrualsCSV)
}

// Debtors returns properties with a positive debt over the range
func (h *ReportHandler) Debtors(c *gin.Context) {
	filter, err := reportFilter(c)
	if err != nil {
		h.BadRequest(c, "Invalid report range")
		return
	}
	rows, err := h.reports.Debtors(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rows)
}

// DebtorsCSV downloads the debtors report
func (h *ReportHandler) DebtorsCSV(c *gin.Context) {
	h.serveCSV(c, "debtors.csv", h.reports.WriteDebtorsCSV)
}

// Balances returns every property's signed balance over the range
func (h *ReportHandler) Balances(c *gin.Context) {
	filter, err := reportFilter(c)
	if err != nil {
		h.BadRequest(c, "Invalid report range")
		return
	}
	rows, err := h.reports.Balances(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rows)
}

// BalancesCSV downloads the per-plot balance report
func (h *ReportHandler) BalancesCSV(c *gin.Context) {
	h.serveCSV(c, "balances.csv", h.reports.WriteBalancesCSV)
}
