package handler

import (
	"fmt"
	"io"
	"net/http"

	appbilling "github.com/commledger/backend/internal/application/billing"
	"github.com/commledger/backend/internal/application/importapp"
	"github.com/commledger/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// ImportHandler exposes the payment register import endpoints
type ImportHandler struct {
	BaseHandler
	service      *importapp.PaymentImportService
	allocations  *appbilling.AllocationService
	maxFileBytes int64
}

// NewImportHandler creates a new ImportHandler
func NewImportHandler(service *importapp.PaymentImportService, allocations *appbilling.AllocationService, maxFileBytes int64) *ImportHandler {
	return &ImportHandler{service: service, allocations: allocations, maxFileBytes: maxFileBytes}
}

// RegisterRoutes registers import routes
func (h *ImportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	imports := rg.Group("/imports")
	{
		imports.POST("/payments", h.ImportPayments)
		imports.POST("/payments/preview", h.PreviewPayments)
		imports.GET("/jobs", h.ListJobs)
		imports.GET("/jobs/:id", h.GetJob)
		imports.GET("/jobs/:id/errors.csv", h.DownloadErrorReport)
	}
}

// readUpload extracts the uploaded file from the multipart form
func (h *ImportHandler) readUpload(c *gin.Context) (string, []byte, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.BadRequest(c, "Missing file upload field 'file'")
		return "", nil, false
	}
	if h.maxFileBytes > 0 && fileHeader.Size > h.maxFileBytes {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge,
			fmt.Sprintf("File exceeds the %d byte limit", h.maxFileBytes))
		return "", nil, false
	}
	file, err := fileHeader.Open()
	if err != nil {
		h.InternalError(c, "Failed to read uploaded file")
		return "", nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		h.InternalError(c, "Failed to read uploaded file")
		return "", nil, false
	}
	return fileHeader.Filename, data, true
}

// ImportPayments commits a payments file import
func (h *ImportHandler) ImportPayments(c *gin.Context) {
	fileName, data, ok := h.readUpload(c)
	if !ok {
		return
	}

	result, err := h.service.Import(c.Request.Context(), importapp.ImportRequest{
		FileName: fileName,
		Data:     data,
		ActorID:  getActorID(c),
	})
	if err != nil {
		if importapp.IsStructuralError(err) {
			// The job record exists in failed status; report both.
			c.JSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeValidation, err.Error(), getRequestID(c)))
			return
		}
		h.HandleError(c, err)
		return
	}

	response := gin.H{"import": result}
	if c.PostForm("auto_allocate") == "true" && len(result.CreatedIDs) > 0 {
		allocation, err := h.allocations.AutoAllocate(c.Request.Context(), appbilling.AutoAllocateRequest{
			PaymentIDs: result.CreatedIDs,
		})
		if err != nil {
			// The import itself committed; surface the allocation failure
			// without discarding the job result.
			response["allocation_error"] = err.Error()
		} else {
			response["allocation"] = allocation
		}
	}
	h.Created(c, response)
}

// PreviewPayments dry-runs an import over the first rows of the file
func (h *ImportHandler) PreviewPayments(c *gin.Context) {
	_, data, ok := h.readUpload(c)
	if !ok {
		return
	}
	result, err := h.service.Preview(c.Request.Context(), data)
	if err != nil {
		if importapp.IsStructuralError(err) {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, err.Error())
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListJobs returns the import job ledger
func (h *ImportHandler) ListJobs(c *gin.Context) {
	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}
	req.Normalize()

	jobs, err := h.service.ListJobs(c.Request.Context(), listFilter(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, jobs)
}

// GetJob returns one import job with its error entries
func (h *ImportHandler) GetJob(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid job ID")
		return
	}
	job, err := h.service.GetJob(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

// DownloadErrorReport streams the job's row errors as CSV
func (h *ImportHandler) DownloadErrorReport(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid job ID")
		return
	}
	setCSVHeaders(c, fmt.Sprintf("import-errors-%s.csv", id))
	if err := h.service.WriteErrorReport(c.Request.Context(), id, c.Writer); err != nil {
		h.HandleError(c, err)
	}
}
