package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/commledger/backend/internal/domain/bulk"
)

// RowErrorsColumn stores the per-row error entries of an import job as a
// jsonb column.
type RowErrorsColumn []bulk.RowError

// Value implements driver.Valuer
func (c RowErrorsColumn) Value() (driver.Value, error) {
	if len(c) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal([]bulk.RowError(c))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (c *RowErrorsColumn) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into RowErrorsColumn", value)
	}
	if len(data) == 0 {
		*c = nil
		return nil
	}
	return json.Unmarshal(data, (*[]bulk.RowError)(c))
}

// ImportJobModel is the persistence model for the ImportJob domain entity.
type ImportJobModel struct {
	AggregateModel
	FileName        string          `gorm:"type:varchar(255);not null"`
	Status          bulk.JobStatus  `gorm:"type:varchar(20);not null;index"`
	TotalRows       int             `gorm:"not null;default:0"`
	SuccessRows     int             `gorm:"not null;default:0"`
	FailedRows      int             `gorm:"not null;default:0"`
	CreatedPayments int             `gorm:"not null;default:0"`
	RowErrors       RowErrorsColumn `gorm:"type:jsonb;default:'[]'"`
	FailureMessage  string          `gorm:"type:varchar(1000)"`
	StartedAt       time.Time       `gorm:"type:timestamptz;not null"`
	CompletedAt     *time.Time      `gorm:"type:timestamptz"`
}

// TableName returns the table name for GORM
func (ImportJobModel) TableName() string {
	return "import_jobs"
}

// ToDomain converts the persistence model to a domain ImportJob entity.
func (m *ImportJobModel) ToDomain() *bulk.ImportJob {
	j := &bulk.ImportJob{
		FileName:        m.FileName,
		Status:          m.Status,
		TotalRows:       m.TotalRows,
		SuccessRows:     m.SuccessRows,
		FailedRows:      m.FailedRows,
		CreatedPayments: m.CreatedPayments,
		RowErrors:       []bulk.RowError(m.RowErrors),
		FailureMessage:  m.FailureMessage,
		StartedAt:       m.StartedAt,
		CompletedAt:     m.CompletedAt,
	}
	m.PopulateAggregateRoot(&j.BaseAggregateRoot)
	return j
}

// FromDomain populates the persistence model from a domain ImportJob entity.
func (m *ImportJobModel) FromDomain(j *bulk.ImportJob) {
	m.FromDomainAggregateRoot(j.BaseAggregateRoot)
	m.FileName = j.FileName
	m.Status = j.Status
	m.TotalRows = j.TotalRows
	m.SuccessRows = j.SuccessRows
	m.FailedRows = j.FailedRows
	m.CreatedPayments = j.CreatedPayments
	m.RowErrors = RowErrorsColumn(j.RowErrors)
	m.FailureMessage = j.FailureMessage
	m.StartedAt = j.StartedAt
	m.CompletedAt = j.CompletedAt
}

// ImportJobModelFromDomain creates a new persistence model from a domain ImportJob entity.
func ImportJobModelFromDomain(j *bulk.ImportJob) *ImportJobModel {
	m := &ImportJobModel{}
	m.FromDomain(j)
	return m
}
