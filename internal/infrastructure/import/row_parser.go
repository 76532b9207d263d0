package csvimport

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// PreviewRowLimit caps the rows processed on interactive preview paths.
// Batch-commit paths pass limit 0 and process the full file.
const PreviewRowLimit = 200

// utf8BOM is the UTF-8 byte-order mark some spreadsheet exports prepend
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectDelimiter picks the field delimiter by comparing semicolon and
// comma counts in the first line. Semicolon wins ties, matching the
// spreadsheet exports this parser most often sees.
func DetectDelimiter(firstLine string) rune {
	if strings.Count(firstLine, ",") > strings.Count(firstLine, ";") {
		return ','
	}
	return ';'
}

// ParseRows decodes raw uploaded bytes into trimmed string cells. It
// strips a leading BOM, transparently decodes Windows-1251 content, picks
// the delimiter from the first line and runs a quote-aware scanner:
// inside quotes a doubled quote is a literal quote, and delimiters and
// newlines are content. A bare carriage return terminates a row only when
// not followed by a newline, so CRLF and lone-CR files both parse. When
// limit > 0 at most that many rows are returned.
func ParseRows(data []byte, limit int) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	delimiter := DetectDelimiter(firstLine(text))
	rows := scanRows(text, delimiter, limit)
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return rows, nil
}

// decodeText returns the content as UTF-8, decoding Windows-1251 exports
// when the raw bytes are not valid UTF-8.
func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	decoded, err := charmap.Windows1251.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode file content: %w", err)
	}
	return string(decoded), nil
}

// firstLine returns the text up to the first row terminator
func firstLine(text string) string {
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		return text[:i]
	}
	return text
}

// scanRows is the character-by-character scanner
func scanRows(text string, delimiter rune, limit int) [][]string {
	var (
		rows    [][]string
		row     []string
		cell    strings.Builder
		inQuote bool
	)

	endCell := func() {
		row = append(row, strings.TrimSpace(cell.String()))
		cell.Reset()
	}
	endRow := func() {
		endCell()
		if !rowIsEmpty(row) {
			rows = append(rows, row)
		}
		row = nil
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if inQuote {
			if r == '"' {
				if i+1 < len(runes) && runes[i+1] == '"' {
					cell.WriteRune('"')
					i++
					continue
				}
				inQuote = false
				continue
			}
			cell.WriteRune(r)
			continue
		}
		switch r {
		case '"':
			inQuote = true
		case delimiter:
			endCell()
		case '\n':
			endRow()
		case '\r':
			if i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
			endRow()
		default:
			cell.WriteRune(r)
		}
		if limit > 0 && len(rows) >= limit {
			return rows
		}
	}
	if cell.Len() > 0 || len(row) > 0 {
		endRow()
	}
	return rows
}

// rowIsEmpty reports whether every cell of a row is blank
func rowIsEmpty(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
