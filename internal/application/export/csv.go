// Package export renders report and register data as CSV downloads in the
// dialect the target spreadsheet tooling expects: UTF-8 BOM, semicolon
// separators and every field quoted.
package export

import (
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Writer writes CSV rows in the export dialect. Fields are always quoted
// and internal quotes doubled, so free-text cells with semicolons, line
// breaks or quotes survive the round trip.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter creates a Writer and emits the UTF-8 BOM so spreadsheet tools
// pick the right encoding.
func NewWriter(w io.Writer) *Writer {
	writer := &Writer{w: w}
	_, writer.err = w.Write(utf8BOM)
	return writer
}

// Write emits one row. After the first error every call is a no-op.
func (c *Writer) Write(fields []string) error {
	if c.err != nil {
		return c.err
	}
	var b strings.Builder
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(field, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteString("\r\n")
	_, c.err = io.WriteString(c.w, b.String())
	return c.err
}

// WriteAll emits the header and every row
func (c *Writer) WriteAll(header []string, rows [][]string) error {
	if err := c.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := c.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// Err returns the first write error encountered
func (c *Writer) Err() error {
	return c.err
}
