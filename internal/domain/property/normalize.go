package property

import (
	"strings"
	"unicode"
)

// NormalizePhone reduces a phone string to a canonical "+<country><number>"
// form. All non-digit characters are stripped first; a leading national
// prefix is folded into the country code when the digit count matches a
// known national pattern. Two phones are equal only when their normalized
// forms are equal.
func NormalizePhone(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case d == "":
		return ""
	case len(d) == 11 && (d[0] == '7' || d[0] == '8'):
		return "+7" + d[1:]
	case len(d) == 10:
		return "+7" + d
	default:
		return "+" + d
	}
}

// NormalizeName lower-cases a full name and collapses runs of whitespace,
// so "Иванов  Иван " and "иванов иван" compare equal.
func NormalizeName(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}

// NormalizePlotNumber trims a plot reference and strips a leading zero run,
// so "№012 " matches "12". Letter suffixes ("12а") are preserved.
func NormalizePlotNumber(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "№")
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	// Strip leading zeros but keep a single zero intact.
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		return "0"
	}
	return trimmed
}

// collapseForStreetMatch lowers a street name and drops punctuation so memo
// text like "ул.Садовая" still matches the street "Садовая".
func collapseForStreetMatch(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
