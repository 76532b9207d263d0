package csvimport

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHeaders(t *testing.T) {
	t.Run("maps localized bank export headers", func(t *testing.T) {
		mapped, err := MapHeaders([]string{"Дата операции", "Сумма платежа", "ФИО плательщика", "Телефон", "Участок", "Назначение платежа"})

		require.NoError(t, err)
		assert.Equal(t, 0, mapped[FieldDate])
		assert.Equal(t, 1, mapped[FieldAmount])
		assert.Equal(t, 2, mapped[FieldPayerName])
		assert.Equal(t, 3, mapped[FieldPhone])
		assert.Equal(t, 4, mapped[FieldPlot])
		assert.Equal(t, 5, mapped[FieldMemo])
	})

	t.Run("maps english headers", func(t *testing.T) {
		mapped, err := MapHeaders([]string{"Date", "Amount", "Payer", "External ID"})

		require.NoError(t, err)
		assert.True(t, mapped.Has(FieldDate))
		assert.True(t, mapped.Has(FieldAmount))
		assert.True(t, mapped.Has(FieldPayerName))
		assert.True(t, mapped.Has(FieldExternalID))
	})

	t.Run("plot wins over external id for plot-number headers", func(t *testing.T) {
		mapped, err := MapHeaders([]string{"Дата", "Сумма", "Номер уч."})

		require.NoError(t, err)
		assert.Equal(t, 2, mapped[FieldPlot])
		assert.False(t, mapped.Has(FieldExternalID))
	})

	t.Run("first matching header wins for a field", func(t *testing.T) {
		mapped, err := MapHeaders([]string{"Дата", "Сумма", "Сумма комиссии"})

		require.NoError(t, err)
		assert.Equal(t, 1, mapped[FieldAmount])
	})

	t.Run("rejects a file without required columns", func(t *testing.T) {
		_, err := MapHeaders([]string{"ФИО", "Телефон"})

		require.Error(t, err)
		var missingErr *MissingColumnsError
		require.ErrorAs(t, err, &missingErr)
		assert.Contains(t, missingErr.Missing, FieldDate)
		assert.Contains(t, missingErr.Missing, FieldAmount)
		assert.Contains(t, err.Error(), "ФИО")
	})
}

func TestHeaderMapValue(t *testing.T) {
	mapped, err := MapHeaders([]string{"Дата", "Сумма", "ФИО"})
	require.NoError(t, err)

	t.Run("extracts trimmed cell", func(t *testing.T) {
		assert.Equal(t, "Иванов", mapped.Value([]string{"01.02.2024", "100", "  Иванов "}, FieldPayerName))
	})

	t.Run("returns empty for short rows", func(t *testing.T) {
		assert.Equal(t, "", mapped.Value([]string{"01.02.2024"}, FieldPayerName))
	})

	t.Run("returns empty for unmapped fields", func(t *testing.T) {
		assert.Equal(t, "", mapped.Value([]string{"01.02.2024", "100", "Иванов"}, FieldPhone))
	})
}

func TestParseDate(t *testing.T) {
	t.Run("accepts common export layouts", func(t *testing.T) {
		for _, value := range []string{"2024-02-01", "01.02.2024", "01/02/2024", "01.02.2024 15:30:00"} {
			parsed, err := ParseDate(value)
			require.NoError(t, err, value)
			assert.Equal(t, 2024, parsed.Year())
			assert.Equal(t, time.February, parsed.Month())
			assert.Equal(t, 1, parsed.Day())
		}
	})

	t.Run("rejects empty and garbage values", func(t *testing.T) {
		_, err := ParseDate("")
		assert.Error(t, err)

		_, err = ParseDate("вчера")
		assert.Error(t, err)
	})
}

func TestParseAmount(t *testing.T) {
	t.Run("accepts decimal comma and space separators", func(t *testing.T) {
		amount, err := ParseAmount("1 234,56")
		require.NoError(t, err)
		assert.True(t, amount.Equal(decimal.RequireFromString("1234.56")))
	})

	t.Run("accepts plain decimal point", func(t *testing.T) {
		amount, err := ParseAmount("100.50")
		require.NoError(t, err)
		assert.True(t, amount.Equal(decimal.RequireFromString("100.5")))
	})

	t.Run("rejects zero and negative amounts", func(t *testing.T) {
		_, err := ParseAmount("0")
		assert.Error(t, err)

		_, err = ParseAmount("-50")
		assert.Error(t, err)
	})

	t.Run("rejects non-numeric values", func(t *testing.T) {
		_, err := ParseAmount("сто")
		assert.Error(t, err)

		_, err = ParseAmount("")
		assert.Error(t, err)
	})
}
