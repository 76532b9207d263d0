package csvimport

import (
	"errors"
	"fmt"
	"strings"
)

// Common parse-level errors. These abort the whole file before any row is
// processed, unlike row-level errors which accumulate on the import job.
var (
	// ErrEmptyFile is returned when the uploaded file has no content
	ErrEmptyFile = errors.New("file is empty")

	// ErrMissingHeader is returned when the file has no header row
	ErrMissingHeader = errors.New("file missing header row")

	// ErrNoDataRows is returned when the file has a header but no data rows
	ErrNoDataRows = errors.New("file contains no data rows")
)

// MissingColumnsError reports required columns that could not be located,
// naming the headers that were found so the user can fix the file.
type MissingColumnsError struct {
	Missing []Field
	Found   []string
}

// Error implements the error interface
func (e *MissingColumnsError) Error() string {
	missing := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		missing[i] = string(f)
	}
	return fmt.Sprintf("required columns not found: %s (headers present: %s)",
		strings.Join(missing, ", "), strings.Join(e.Found, ", "))
}
