package importapp

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/commledger/backend/internal/application/export"
	"github.com/google/uuid"
)

var errorReportHeader = []string{"Строка", "Тип", "Причина", "Исходные данные"}

// WriteErrorReport renders the row errors of one import job as a CSV
// download, raw field values included so the offending line can be fixed
// and re-imported.
func (s *PaymentImportService) WriteErrorReport(ctx context.Context, jobID uuid.UUID, w io.Writer) error {
	job, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}

	rows := make([][]string, len(job.RowErrors))
	for i, rowErr := range job.RowErrors {
		rows[i] = []string{
			strconv.Itoa(rowErr.Row),
			string(rowErr.Type),
			rowErr.Reason,
			strings.Join(rowErr.Raw, "; "),
		}
	}
	return export.NewWriter(w).WriteAll(errorReportHeader, rows)
}
