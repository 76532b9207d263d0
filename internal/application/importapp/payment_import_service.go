// Package importapp turns uploaded payment register files into payment
// records: parse, normalize, match to properties, deduplicate, persist,
// and keep the whole run on an import job for audit.
package importapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/bulk"
	"github.com/commledger/backend/internal/domain/property"
	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	csvimport "github.com/commledger/backend/internal/infrastructure/import"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentImportService handles payment register imports
type PaymentImportService struct {
	paymentRepo   billing.PaymentRepository
	propertyRepo  property.Repository
	jobRepo       bulk.ImportJobRepository
	matcher       *property.Matcher
	maxErrorsKept int
	logger        *zap.Logger
}

// NewPaymentImportService creates a new PaymentImportService
func NewPaymentImportService(
	paymentRepo billing.PaymentRepository,
	propertyRepo property.Repository,
	jobRepo bulk.ImportJobRepository,
	maxErrorsKept int,
	logger *zap.Logger,
) *PaymentImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentImportService{
		paymentRepo:   paymentRepo,
		propertyRepo:  propertyRepo,
		jobRepo:       jobRepo,
		matcher:       property.NewMatcher(),
		maxErrorsKept: maxErrorsKept,
		logger:        logger,
	}
}

// ImportRequest carries one uploaded payments file
type ImportRequest struct {
	FileName string
	Data     []byte
	ActorID  uuid.UUID
}

// ImportResult summarizes one committed import run
type ImportResult struct {
	JobID           uuid.UUID       `json:"job_id"`
	Status          bulk.JobStatus  `json:"status"`
	TotalRows       int             `json:"total_rows"`
	SuccessRows     int             `json:"success_rows"`
	FailedRows      int             `json:"failed_rows"`
	CreatedPayments int             `json:"created_payments"`
	CreatedIDs      []uuid.UUID     `json:"created_ids,omitempty"`
	Errors          []bulk.RowError `json:"errors,omitempty"`
	TotalErrors     int             `json:"total_errors"`
	IsTruncated     bool            `json:"is_truncated,omitempty"`
}

// parsedRow is one data row after normalization
type parsedRow struct {
	index      int // 1-based data row number, header excluded
	raw        []string
	paidAt     time.Time
	amount     valueobject.Money
	payerName  string
	phone      string
	plotRef    string
	externalID string
	memo       string
	failReason string
}

// Import processes the whole file and persists payments and the job
// record. A structural problem (unreadable file, missing required
// columns) fails the job; row-level problems accumulate on it.
func (s *PaymentImportService) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	job, err := bulk.NewImportJob(req.FileName, req.ActorID)
	if err != nil {
		return nil, err
	}
	if err := s.jobRepo.Save(ctx, job); err != nil {
		return nil, err
	}

	rows, headers, structuralErr := s.parseFile(req.Data)
	if structuralErr != nil {
		if failErr := job.Fail(structuralErr.Error()); failErr != nil {
			return nil, failErr
		}
		if err := s.jobRepo.Save(ctx, job); err != nil {
			return nil, err
		}
		s.logger.Warn("Payment import failed before row processing",
			zap.String("file", req.FileName),
			zap.Error(structuralErr))
		return s.result(job, nil), structuralErr
	}

	candidates, err := s.propertyRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	// Duplicates inside the same file are caught with in-memory sets so
	// the second occurrence fails even before it hits the database.
	seenExternalIDs := make(map[string]bool)
	seenFingerprints := make(map[string]bool)
	var createdIDs []uuid.UUID

	for _, row := range rows {
		payment, rowErr := s.processRow(ctx, headers, row, candidates, seenExternalIDs, seenFingerprints)
		if rowErr != nil {
			s.recordError(job, *rowErr)
			continue
		}
		if err := s.paymentRepo.Save(ctx, payment); err != nil {
			if failErr := job.Fail(fmt.Sprintf("row %d: %v", row.index, err)); failErr != nil {
				return nil, failErr
			}
			if saveErr := s.jobRepo.Save(ctx, job); saveErr != nil {
				return nil, saveErr
			}
			return s.result(job, createdIDs), err
		}
		createdIDs = append(createdIDs, payment.ID)
		if payment.PropertyID == nil {
			s.recordUnmatched(job, bulk.RowError{
				Row:    row.index,
				Type:   bulk.RowErrorUnmatched,
				Reason: "no property matched; payment saved for manual resolution",
				Raw:    row.raw,
			})
		} else {
			job.RecordSuccess()
		}
	}

	if err := job.Complete(); err != nil {
		return nil, err
	}
	if err := s.jobRepo.Save(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("Payment import completed",
		zap.String("file", req.FileName),
		zap.String("job_id", job.ID.String()),
		zap.Int("total", job.TotalRows),
		zap.Int("created", job.CreatedPayments),
		zap.Int("failed", job.FailedRows))
	return s.result(job, createdIDs), nil
}

// parseFile scans the raw upload and resolves the header row
func (s *PaymentImportService) parseFile(data []byte) ([]parsedRow, csvimport.HeaderMap, error) {
	rawRows, err := csvimport.ParseRows(data, 0)
	if err != nil {
		return nil, nil, err
	}
	headers, err := csvimport.MapHeaders(rawRows[0])
	if err != nil {
		return nil, nil, err
	}
	if len(rawRows) < 2 {
		return nil, nil, csvimport.ErrNoDataRows
	}

	rows := make([]parsedRow, 0, len(rawRows)-1)
	for i, raw := range rawRows[1:] {
		rows = append(rows, s.normalizeRow(headers, i+1, raw))
	}
	return rows, headers, nil
}

// normalizeRow resolves the typed fields of one raw row. A failure stops
// at the first unusable required field; the row never reaches matching.
func (s *PaymentImportService) normalizeRow(headers csvimport.HeaderMap, index int, raw []string) parsedRow {
	row := parsedRow{
		index:      index,
		raw:        raw,
		payerName:  headers.Value(raw, csvimport.FieldPayerName),
		phone:      property.NormalizePhone(headers.Value(raw, csvimport.FieldPhone)),
		plotRef:    headers.Value(raw, csvimport.FieldPlot),
		externalID: headers.Value(raw, csvimport.FieldExternalID),
		memo:       headers.Value(raw, csvimport.FieldMemo),
	}

	paidAt, err := csvimport.ParseDate(headers.Value(raw, csvimport.FieldDate))
	if err != nil {
		row.failReason = err.Error()
		return row
	}
	row.paidAt = paidAt

	amount, err := csvimport.ParseAmount(headers.Value(raw, csvimport.FieldAmount))
	if err != nil {
		row.failReason = err.Error()
		return row
	}
	row.amount = valueobject.NewMoneyRUB(amount)
	return row
}

// processRow takes one normalized row through matching, dedup and payment
// construction. It returns either a payment ready to persist or the row
// error to record.
func (s *PaymentImportService) processRow(
	ctx context.Context,
	headers csvimport.HeaderMap,
	row parsedRow,
	candidates []property.Property,
	seenExternalIDs, seenFingerprints map[string]bool,
) (*billing.Payment, *bulk.RowError) {
	if row.failReason != "" {
		return nil, &bulk.RowError{Row: row.index, Type: bulk.RowErrorValidation, Reason: row.failReason, Raw: row.raw}
	}

	fingerprint := billing.PaymentFingerprint(row.paidAt, row.amount.Amount(), row.externalID)
	if dupReason, err := s.duplicateReason(ctx, row.externalID, fingerprint, seenExternalIDs, seenFingerprints); err != nil {
		return nil, &bulk.RowError{Row: row.index, Type: bulk.RowErrorValidation, Reason: err.Error(), Raw: row.raw}
	} else if dupReason != "" {
		return nil, &bulk.RowError{Row: row.index, Type: bulk.RowErrorDuplicate, Reason: dupReason, Raw: row.raw}
	}

	payment, err := billing.NewPayment(nil, row.amount, row.paidAt, billing.PaymentOriginImported)
	if err != nil {
		return nil, &bulk.RowError{Row: row.index, Type: bulk.RowErrorValidation, Reason: err.Error(), Raw: row.raw}
	}
	payment.SetSource(row.externalID, row.payerName, row.memo)

	match := s.matcher.Match(property.MatchInput{
		PlotRef:  row.plotRef,
		Phone:    row.phone,
		FullName: row.payerName,
		Memo:     row.memo,
	}, candidates)
	if match.Matched() {
		payment.AssignProperty(*match.PropertyID, match.MatchType.String())
	}

	if row.externalID != "" {
		seenExternalIDs[row.externalID] = true
	}
	seenFingerprints[fingerprint] = true
	return payment, nil
}

// duplicateReason checks the dedup gate: external id first, then the
// content fingerprint, against both the database and this file's rows.
func (s *PaymentImportService) duplicateReason(
	ctx context.Context,
	externalID, fingerprint string,
	seenExternalIDs, seenFingerprints map[string]bool,
) (string, error) {
	if externalID != "" {
		if seenExternalIDs[externalID] {
			return fmt.Sprintf("duplicate external id %q earlier in this file", externalID), nil
		}
		exists, err := s.paymentRepo.ExistsByExternalID(ctx, externalID)
		if err != nil {
			return "", err
		}
		if exists {
			return fmt.Sprintf("payment with external id %q already imported", externalID), nil
		}
	}
	if seenFingerprints[fingerprint] {
		return "identical date, amount and reference earlier in this file", nil
	}
	exists, err := s.paymentRepo.ExistsByFingerprint(ctx, fingerprint)
	if err != nil {
		return "", err
	}
	if exists {
		return "payment with identical date, amount and reference already imported", nil
	}
	return "", nil
}

// recordError keeps the job counters exact while capping the stored error
// entries at the configured limit.
func (s *PaymentImportService) recordError(job *bulk.ImportJob, rowErr bulk.RowError) {
	if s.maxErrorsKept > 0 && len(job.RowErrors) >= s.maxErrorsKept {
		job.TotalRows++
		job.FailedRows++
		return
	}
	job.RecordError(rowErr)
}

func (s *PaymentImportService) recordUnmatched(job *bulk.ImportJob, rowErr bulk.RowError) {
	if s.maxErrorsKept > 0 && len(job.RowErrors) >= s.maxErrorsKept {
		job.RecordSuccess()
		return
	}
	job.RecordUnmatched(rowErr)
}

func (s *PaymentImportService) result(job *bulk.ImportJob, createdIDs []uuid.UUID) *ImportResult {
	return &ImportResult{
		JobID:           job.ID,
		Status:          job.Status,
		TotalRows:       job.TotalRows,
		SuccessRows:     job.SuccessRows,
		FailedRows:      job.FailedRows,
		CreatedPayments: job.CreatedPayments,
		CreatedIDs:      createdIDs,
		Errors:          job.RowErrors,
		TotalErrors:     len(job.RowErrors),
		IsTruncated:     s.maxErrorsKept > 0 && len(job.RowErrors) >= s.maxErrorsKept,
	}
}

// PreviewRow is one analyzed row of an import preview
type PreviewRow struct {
	Row       int             `json:"row"`
	Status    string          `json:"status"` // ok, validation, duplicate, unmatched
	Reason    string          `json:"reason,omitempty"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
	Amount    string          `json:"amount,omitempty"`
	PayerName string          `json:"payer_name,omitempty"`
	Match     *MatchedSummary `json:"match,omitempty"`
}

// MatchedSummary names the property a preview row would resolve to
type MatchedSummary struct {
	PropertyID uuid.UUID `json:"property_id"`
	Label      string    `json:"label"`
	MatchType  string    `json:"match_type"`
}

// PreviewResult is the dry-run outcome over the first rows of a file
type PreviewResult struct {
	Delimiter    string       `json:"delimiter"`
	AnalyzedRows int          `json:"analyzed_rows"`
	OkRows       int          `json:"ok_rows"`
	ProblemRows  int          `json:"problem_rows"`
	Rows         []PreviewRow `json:"rows"`
	Truncated    bool         `json:"truncated"`
}

// Preview dry-runs the import over the first rows of the file. Nothing is
// written; duplicate checks report what commit would reject, plus the
// advisory same-day similarity hint.
func (s *PaymentImportService) Preview(ctx context.Context, data []byte) (*PreviewResult, error) {
	rawRows, err := csvimport.ParseRows(data, csvimport.PreviewRowLimit+1)
	if err != nil {
		return nil, err
	}
	headers, err := csvimport.MapHeaders(rawRows[0])
	if err != nil {
		return nil, err
	}
	if len(rawRows) < 2 {
		return nil, csvimport.ErrNoDataRows
	}

	candidates, err := s.propertyRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	labelsByID := make(map[uuid.UUID]string, len(candidates))
	for i := range candidates {
		labelsByID[candidates[i].ID] = candidates[i].Label()
	}

	seenExternalIDs := make(map[string]bool)
	seenFingerprints := make(map[string]bool)
	result := &PreviewResult{
		Truncated: len(rawRows)-1 >= csvimport.PreviewRowLimit,
	}

	for i, raw := range rawRows[1:] {
		row := s.normalizeRow(headers, i+1, raw)
		preview := s.previewRow(ctx, row, candidates, labelsByID, seenExternalIDs, seenFingerprints)
		result.Rows = append(result.Rows, preview)
		result.AnalyzedRows++
		if preview.Status == "ok" {
			result.OkRows++
		} else {
			result.ProblemRows++
		}
	}
	return result, nil
}

func (s *PaymentImportService) previewRow(
	ctx context.Context,
	row parsedRow,
	candidates []property.Property,
	labelsByID map[uuid.UUID]string,
	seenExternalIDs, seenFingerprints map[string]bool,
) PreviewRow {
	if row.failReason != "" {
		return PreviewRow{Row: row.index, Status: "validation", Reason: row.failReason}
	}

	preview := PreviewRow{
		Row:       row.index,
		PaidAt:    &row.paidAt,
		Amount:    row.amount.Amount().StringFixed(2),
		PayerName: row.payerName,
	}

	fingerprint := billing.PaymentFingerprint(row.paidAt, row.amount.Amount(), row.externalID)
	dupReason, err := s.duplicateReason(ctx, row.externalID, fingerprint, seenExternalIDs, seenFingerprints)
	if err != nil {
		preview.Status = "validation"
		preview.Reason = err.Error()
		return preview
	}
	if row.externalID != "" {
		seenExternalIDs[row.externalID] = true
	}
	seenFingerprints[fingerprint] = true
	if dupReason != "" {
		preview.Status = "duplicate"
		preview.Reason = dupReason
		return preview
	}

	match := s.matcher.Match(property.MatchInput{
		PlotRef:  row.plotRef,
		Phone:    row.phone,
		FullName: row.payerName,
		Memo:     row.memo,
	}, candidates)
	if !match.Matched() {
		preview.Status = "unmatched"
		preview.Reason = "no property matched"
		return preview
	}

	preview.Status = "ok"
	preview.Match = &MatchedSummary{
		PropertyID: *match.PropertyID,
		Label:      labelsByID[*match.PropertyID],
		MatchType:  match.MatchType.String(),
	}
	if similar, err := s.paymentRepo.ExistsSimilarOnDay(ctx, *match.PropertyID, row.amount.Amount(), row.paidAt); err == nil && similar {
		// Advisory only. Commit never rejects on this signal.
		preview.Reason = "a payment with the same property, amount and day is already on file"
	}
	return preview
}

// GetJob returns one import job by ID
func (s *PaymentImportService) GetJob(ctx context.Context, id uuid.UUID) (*bulk.ImportJob, error) {
	return s.jobRepo.FindByID(ctx, id)
}

// ListJobs returns the import job ledger, most recent first
func (s *PaymentImportService) ListJobs(ctx context.Context, filter shared.Filter) ([]bulk.ImportJob, error) {
	return s.jobRepo.FindAll(ctx, filter)
}

// IsStructuralError reports whether an import error describes the file as
// a whole rather than a single row.
func IsStructuralError(err error) bool {
	var missing *csvimport.MissingColumnsError
	return errors.Is(err, csvimport.ErrEmptyFile) ||
		errors.Is(err, csvimport.ErrMissingHeader) ||
		errors.Is(err, csvimport.ErrNoDataRows) ||
		errors.As(err, &missing)
}
