package billing

import (
	"context"
	"io"

	"github.com/commledger/backend/internal/application/export"
	"github.com/commledger/backend/internal/domain/billing"
)

// Report CSV downloads. Every export goes through the same writer, so the
// dialect (BOM, semicolons, quoted fields) is identical across reports.

const exportDateLayout = "02.01.2006"

var paymentReportHeader = []string{"Дата", "Плательщик", "Участок", "Сумма", "Разнесено", "Остаток", "Статус"}

func paymentReportCSVRows(rows []billing.PaymentReportRow) [][]string {
	result := make([][]string, len(rows))
	for i := range rows {
		row := &rows[i]
		result[i] = []string{
			row.PaidAt.Format(exportDateLayout),
			row.PayerName,
			row.PropertyLabel,
			row.Amount.StringFixed(2),
			row.Allocated.StringFixed(2),
			row.Remaining().StringFixed(2),
			string(row.Status()),
		}
	}
	return result
}

// unallocatedCSVRows labels every row with the literal unmatched status:
// the payment is on file but nothing has been applied from it, so the
// remaining column always equals the full amount.
func unallocatedCSVRows(rows []billing.PaymentReportRow) [][]string {
	result := make([][]string, len(rows))
	for i := range rows {
		row := &rows[i]
		result[i] = []string{
			row.PaidAt.Format(exportDateLayout),
			row.PayerName,
			row.PropertyLabel,
			row.Amount.StringFixed(2),
			row.Allocated.StringFixed(2),
			row.Remaining().StringFixed(2),
			"unmatched",
		}
	}
	return result
}

// WriteUnallocatedPaymentsCSV exports the unallocated payments report
func (s *ReportingService) WriteUnallocatedPaymentsCSV(ctx context.Context, filter billing.ReportFilter, w io.Writer) error {
	rows, err := s.UnallocatedPayments(ctx, filter)
	if err != nil {
		return err
	}
	return export.NewWriter(w).WriteAll(paymentReportHeader, unallocatedCSVRows(rows))
}

// WriteOverpaymentsCSV exports the overpayments report
func (s *ReportingService) WriteOverpaymentsCSV(ctx context.Context, filter billing.ReportFilter, w io.Writer) error {
	rows, err := s.Overpayments(ctx, filter)
	if err != nil {
		return err
	}
	return export.NewWriter(w).WriteAll(paymentReportHeader, paymentReportCSVRows(rows))
}

// WritePaymentsCSV exports the payments register
func (s *ReportingService) WritePaymentsCSV(ctx context.Context, filter billing.ReportFilter, w io.Writer) error {
	rows, err := s.Payments(ctx, filter)
	if err != nil {
		return err
	}
	return export.NewWriter(w).WriteAll(paymentReportHeader, paymentReportCSVRows(rows))
}

var accrualReportHeader = []string{"Период", "Участок", "Категория", "Начислено", "Оплачено", "Остаток", "Статус"}

// WriteAccrualsCSV exports the accruals register
func (s *ReportingService) WriteAccrualsCSV(ctx context.Context, filter billing.ReportFilter, w io.Writer) error {
	rows, err := s.Accruals(ctx, filter)
	if err != nil {
		return err
	}
	csvRows := make([][]string, len(rows))
	for i := range rows {
		row := &rows[i]
		csvRows[i] = []string{
			row.Period.String(),
			row.PropertyLabel,
			row.Category.Title(),
			row.Amount.StringFixed(2),
			row.Paid.StringFixed(2),
			row.Remaining().StringFixed(2),
			string(row.Status()),
		}
	}
	return export.NewWriter(w).WriteAll(accrualReportHeader, csvRows)
}

var debtorReportHeader = []string{"Участок", "Владелец", "Начислено", "Оплачено", "Долг"}

// WriteDebtorsCSV exports the debtors report
func (s *ReportingService) WriteDebtorsCSV(ctx context.Context, filter billing.ReportFilter, w io.Writer) error {
	rows, err := s.Debtors(ctx, filter)
	if err != nil {
		return err
	}
	csvRows := make([][]string, len(rows))
	for i := range rows {
		row := &rows[i]
		csvRows[i] = []string{
			row.PropertyLabel,
			row.ResidentLabel,
			row.Accrued.StringFixed(2),
			row.Paid.StringFixed(2),
			row.Debt().StringFixed(2),
		}
	}
	return export.NewWriter(w).WriteAll(debtorReportHeader, csvRows)
}

var balanceReportHeader = []string{"Участок", "Владелец", "Начислено", "Оплачено", "Долг", "Переплата"}

// WriteBalancesCSV exports the per-plot balance report
func (s *ReportingService) WriteBalancesCSV(ctx context.Context, filter billing.ReportFilter, w io.Writer) error {
	rows, err := s.Balances(ctx, filter)
	if err != nil {
		return err
	}
	csvRows := make([][]string, len(rows))
	for i := range rows {
		row := &rows[i]
		csvRows[i] = []string{
			row.PropertyLabel,
			row.ResidentLabel,
			row.Accrued.StringFixed(2),
			row.Paid.StringFixed(2),
			row.Debt().StringFixed(2),
			row.Credit().StringFixed(2),
		}
	}
	return export.NewWriter(w).WriteAll(balanceReportHeader, csvRows)
}
