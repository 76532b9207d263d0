package dto

import "net/http"

// Error codes returned by the API. Domain error codes map onto these via
// NormalizeErrorCode so the HTTP surface stays stable even when internal
// codes evolve.
const (
	ErrCodeInternal   = "ERR_INTERNAL"
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	ErrCodeNotFound   = "ERR_NOT_FOUND"

	// ErrCodeValidation: a field is missing or malformed
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeDuplicate: the dedup gate rejected the record
	ErrCodeDuplicate = "ERR_DUPLICATE"
	// ErrCodeUnmatched: no property could be resolved
	ErrCodeUnmatched = "ERR_UNMATCHED"
	// ErrCodeAllocationConflict: an allocation would exceed a remainder
	ErrCodeAllocationConflict = "ERR_ALLOCATION_CONFLICT"
	// ErrCodeInvalidTransition: a lifecycle guard rejected the operation
	ErrCodeInvalidTransition = "ERR_INVALID_TRANSITION"
	// ErrCodeConcurrencyConflict: a concurrent write won the race
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"

	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:   http.StatusInternalServerError,
	ErrCodeBadRequest: http.StatusBadRequest,
	ErrCodeNotFound:   http.StatusNotFound,

	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeDuplicate:           http.StatusConflict,
	ErrCodeUnmatched:           http.StatusUnprocessableEntity,
	ErrCodeAllocationConflict:  http.StatusConflict,
	ErrCodeInvalidTransition:   http.StatusUnprocessableEntity,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes fall back to 500 Internal Server Error.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainErrorCodeMapping maps domain error codes to API error codes
var domainErrorCodeMapping = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"VALIDATION":           ErrCodeValidation,
	"DUPLICATE":            ErrCodeDuplicate,
	"UNMATCHED":            ErrCodeUnmatched,
	"ALLOCATION_CONFLICT":  ErrCodeAllocationConflict,
	"INVALID_TRANSITION":   ErrCodeInvalidTransition,
	"CONCURRENCY_CONFLICT": ErrCodeConcurrencyConflict,
	"INVALID_INPUT":        ErrCodeBadRequest,
	"INVALID_AMOUNT":       ErrCodeValidation,
	"INVALID_PAID_AT":      ErrCodeValidation,
	"INVALID_PERIOD":       ErrCodeValidation,
	"INVALID_PROPERTY":     ErrCodeValidation,
	"INVALID_CATEGORY":     ErrCodeValidation,
	"INVALID_REASON":       ErrCodeValidation,
	"INVALID_ORIGIN":       ErrCodeValidation,
	"INVALID_FILE_NAME":    ErrCodeValidation,
	"INVALID_PAYMENT":      ErrCodeValidation,
	"INVALID_ACCRUAL":      ErrCodeValidation,
	"INVALID_STATE":        ErrCodeInvalidTransition,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Unknown codes pass through unchanged.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := domainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
