package csvimport

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Field is a canonical payment-file column
type Field string

const (
	FieldDate       Field = "date"
	FieldAmount     Field = "amount"
	FieldPayerName  Field = "payer_name"
	FieldPhone      Field = "phone"
	FieldPlot       Field = "plot"
	FieldExternalID Field = "external_id"
	FieldMemo       Field = "memo"
)

// RequiredFields must be locatable in the header row or the whole file is
// rejected. Everything else degrades to "not provided".
var RequiredFields = []Field{FieldDate, FieldAmount}

// fieldAliases maps canonical fields to lowercase substrings accepted in
// header cells. Sourced from the header spellings seen in bank and
// spreadsheet exports, localized included.
var fieldAliases = map[Field][]string{
	FieldDate:       {"дата", "date", "paid_at", "день"},
	FieldAmount:     {"сумма", "amount", "sum", "платеж"},
	FieldPayerName:  {"фио", "плательщик", "payer", "name", "owner"},
	FieldPhone:      {"телефон", "phone", "тел."},
	FieldPlot:       {"участок", "уч.", "plot", "номер уч"},
	FieldExternalID: {"id операции", "operation", "external", "transaction", "номер документа"},
	FieldMemo:       {"назначение", "комментар", "memo", "примечание", "comment"},
}

// aliasOrder fixes the priority between fields when a header cell could
// alias more than one (e.g. "номер участка" must hit plot, not external id).
var aliasOrder = []Field{
	FieldDate, FieldAmount, FieldPlot, FieldPhone, FieldExternalID, FieldPayerName, FieldMemo,
}

// HeaderMap maps canonical fields to column indexes in the raw rows
type HeaderMap map[Field]int

// MapHeaders resolves arbitrary header cells to canonical fields by
// lower-cased substring matching against the known aliases. The first
// header matching a field wins; headers matching nothing are ignored.
// Missing required fields fail the whole file with the discovered headers
// listed in the error.
func MapHeaders(headers []string) (HeaderMap, error) {
	mapped := make(HeaderMap)
	for idx, header := range headers {
		cell := strings.ToLower(strings.TrimSpace(header))
		if cell == "" {
			continue
		}
		for _, field := range aliasOrder {
			if _, taken := mapped[field]; taken {
				continue
			}
			if matchesAlias(cell, fieldAliases[field]) {
				mapped[field] = idx
				break
			}
		}
	}

	var missing []Field
	for _, field := range RequiredFields {
		if _, ok := mapped[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Missing: missing, Found: headers}
	}
	return mapped, nil
}

// matchesAlias reports whether the lowered header cell contains any alias
func matchesAlias(cell string, aliases []string) bool {
	for _, alias := range aliases {
		if strings.Contains(cell, alias) {
			return true
		}
	}
	return false
}

// Has reports whether a field was located in the header row
func (m HeaderMap) Has(field Field) bool {
	_, ok := m[field]
	return ok
}

// Value extracts the trimmed cell for a field, or "" when the field or
// cell is absent.
func (m HeaderMap) Value(row []string, field Field) string {
	idx, ok := m[field]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// dateLayouts are the accepted date formats, tried in order
var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"02.01.2006 15:04:05",
	time.RFC3339,
}

// ParseDate resolves a date cell to an unambiguous absolute timestamp
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", value)
}

// amountCleaner strips whitespace thousands separators (regular and
// non-breaking spaces) and converts the decimal comma.
var amountCleaner = strings.NewReplacer(" ", "", " ", "", "\t", "", ",", ".")

// ParseAmount parses a money cell, accepting comma as the decimal
// separator. Non-positive and non-numeric results are rejected.
func ParseAmount(value string) (decimal.Decimal, error) {
	cleaned := amountCleaner.Replace(strings.TrimSpace(value))
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", value)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("amount must be positive, got %s", amount)
	}
	return amount, nil
}
