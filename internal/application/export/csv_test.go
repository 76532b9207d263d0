package export

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	t.Run("emits BOM before the first row", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewWriter(&buf)

		require.NoError(t, w.Write([]string{"Дата", "Сумма"}))
		out := buf.Bytes()
		assert.Equal(t, []byte{0xEF, 0xBB, 0xBF}, out[:3])
		assert.Equal(t, "\"Дата\";\"Сумма\"\r\n", string(out[3:]))
	})

	t.Run("quotes every field and doubles internal quotes", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewWriter(&buf)

		require.NoError(t, w.Write([]string{`участок "Сосны"; ул. Лесная`, "", "1234.56"}))
		line := strings.TrimPrefix(buf.String(), "\ufeff")
		assert.Equal(t, "\"участок \"\"Сосны\"\"; ул. Лесная\";\"\";\"1234.56\"\r\n", line)
	})

	t.Run("writes header and rows together", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewWriter(&buf)

		require.NoError(t, w.WriteAll(
			[]string{"Участок", "Долг"},
			[][]string{{"12", "700"}, {"7а", "0"}},
		))
		body := strings.TrimPrefix(buf.String(), "\ufeff")
		lines := strings.Split(strings.TrimSuffix(body, "\r\n"), "\r\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "\"Участок\";\"Долг\"", lines[0])
		assert.Equal(t, "\"7а\";\"0\"", lines[2])
	})

	t.Run("sticks to the first error", func(t *testing.T) {
		failing := &failAfter{n: 1}
		w := NewWriter(failing)

		err := w.Write([]string{"x"})
		require.Error(t, err)
		assert.Equal(t, err, w.Err())
		assert.Equal(t, err, w.Write([]string{"y"}), "later writes return the stored error")
		assert.Equal(t, 1, failing.writes, "no writes after the first failure")
	})
}

// failAfter accepts n writes then fails
type failAfter struct {
	n      int
	writes int
}

func (f *failAfter) Write(p []byte) (int, error) {
	if f.writes >= f.n {
		return 0, errors.New("disk full")
	}
	f.writes++
	return len(p), nil
}
