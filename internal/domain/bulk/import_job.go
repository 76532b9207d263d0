package bulk

import (
	"fmt"
	"time"

	"github.com/commledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// JobStatus represents the status of an import job
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsValid checks if the status is valid
func (s JobStatus) IsValid() bool {
	return s == JobStatusProcessing || s == JobStatusCompleted || s == JobStatusFailed
}

// IsTerminal returns true if this is a terminal state
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// RowErrorType classifies why an import row was not turned into a payment
type RowErrorType string

const (
	// RowErrorValidation: a required field is missing or malformed; the row
	// never reaches matching or dedup and is not persisted.
	RowErrorValidation RowErrorType = "validation"
	// RowErrorDuplicate: external-id or fingerprint collision; the row is
	// not persisted but the data itself is fine.
	RowErrorDuplicate RowErrorType = "duplicate"
	// RowErrorUnmatched: the row is valid and unique but no property could
	// be resolved. The payment IS still persisted, unallocated, pending
	// manual resolution; the error entry exists for review.
	RowErrorUnmatched RowErrorType = "unmatched"
)

// RowError is one per-row problem recorded on the job, with the raw field
// values snapshot so the error report can reproduce the offending line.
type RowError struct {
	Row    int          `json:"row"`
	Type   RowErrorType `json:"type"`
	Reason string       `json:"reason"`
	Raw    []string     `json:"raw,omitempty"`
}

// ImportJob records one batch run over an uploaded payments file, with
// aggregate counters and the per-row error entries used for audit and the
// CSV error export.
type ImportJob struct {
	shared.BaseAggregateRoot
	FileName        string     `json:"file_name"`
	Status          JobStatus  `json:"status"`
	TotalRows       int        `json:"total_rows"`
	SuccessRows     int        `json:"success_rows"`
	FailedRows      int        `json:"failed_rows"`
	CreatedPayments int        `json:"created_payments"`
	RowErrors       []RowError `json:"row_errors,omitempty"`
	FailureMessage  string     `json:"failure_message,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// NewImportJob creates a job in processing status. The processing status
// is what lets a client detect an abandoned or crashed run after the fact.
func NewImportJob(fileName string, createdBy uuid.UUID) (*ImportJob, error) {
	if fileName == "" {
		return nil, shared.NewDomainError("INVALID_FILE_NAME", "File name cannot be empty")
	}
	return &ImportJob{
		BaseAggregateRoot: shared.NewBaseAggregateRootWithCreator(createdBy),
		FileName:          fileName,
		Status:            JobStatusProcessing,
		StartedAt:         time.Now(),
	}, nil
}

// RecordSuccess counts one row that produced a payment
func (j *ImportJob) RecordSuccess() {
	j.TotalRows++
	j.SuccessRows++
	j.CreatedPayments++
}

// RecordError counts one failed row and keeps its error entry
func (j *ImportJob) RecordError(rowErr RowError) {
	j.TotalRows++
	j.FailedRows++
	j.RowErrors = append(j.RowErrors, rowErr)
}

// RecordUnmatched counts one row that was persisted without a resolved
// property. It is a success for the counters (a payment exists) but still
// carries an error entry for review.
func (j *ImportJob) RecordUnmatched(rowErr RowError) {
	if rowErr.Type != RowErrorUnmatched {
		rowErr.Type = RowErrorUnmatched
	}
	j.TotalRows++
	j.SuccessRows++
	j.CreatedPayments++
	j.RowErrors = append(j.RowErrors, rowErr)
}

// Complete marks the job finished
func (j *ImportJob) Complete() error {
	if j.Status != JobStatusProcessing {
		return shared.NewDomainError(shared.ErrCodeInvalidTransition,
			fmt.Sprintf("Cannot complete import job in %s status", j.Status))
	}
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.IncrementVersion()
	return nil
}

// Fail marks the job failed with a message naming what went wrong
func (j *ImportJob) Fail(message string) error {
	if j.Status != JobStatusProcessing {
		return shared.NewDomainError(shared.ErrCodeInvalidTransition,
			fmt.Sprintf("Cannot fail import job in %s status", j.Status))
	}
	now := time.Now()
	j.Status = JobStatusFailed
	j.FailureMessage = message
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.IncrementVersion()
	return nil
}
