package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
	// ErrCodeValidationRange is used when a value is out of range
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeBusinessRule is used for generic business rule violations
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
	// ErrCodeInvalidPolicy is used when a matching policy override is unusable
	ErrCodeInvalidPolicy = "ERR_INVALID_POLICY"
	// ErrCodeRunTooLarge is used when a run snapshot exceeds the configured limit
	ErrCodeRunTooLarge = "ERR_RUN_TOO_LARGE"
	// ErrCodeAmountExceedsOutstanding is used when an approval would over-allocate
	ErrCodeAmountExceedsOutstanding = "ERR_AMOUNT_EXCEEDS_OUTSTANDING"
	// ErrCodeAmountExceedsPayment is used when an approval exceeds the payment itself
	ErrCodeAmountExceedsPayment = "ERR_AMOUNT_EXCEEDS_PAYMENT"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,

	// Resource errors
	ErrCodeNotFound: http.StatusNotFound,
	ErrCodeConflict: http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:             http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:             http.StatusUnprocessableEntity,
	ErrCodeInvalidPolicy:            http.StatusUnprocessableEntity,
	ErrCodeRunTooLarge:              http.StatusUnprocessableEntity,
	ErrCodeAmountExceedsOutstanding: http.StatusUnprocessableEntity,
	ErrCodeAmountExceedsPayment:     http.StatusUnprocessableEntity,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	// Rate limiting -> 429 Too Many Requests
	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to the standardized
// transport codes above. Codes emitted by the reconciliation engine and
// the application services are listed here; anything unmapped passes
// through as-is and resolves to 500.
var DomainErrorCodeMapping = map[string]string{
	"RUN_NOT_FOUND":     ErrCodeNotFound,
	"RESULT_NOT_FOUND":  ErrCodeNotFound,
	"INVOICE_NOT_FOUND": ErrCodeNotFound,
	"PAYMENT_NOT_FOUND": ErrCodeNotFound,

	"INVALID_PERIOD":         ErrCodeValidationRange,
	"INVALID_SEVERITY":       ErrCodeValidationFormat,
	"INVALID_REVIEW_OUTCOME": ErrCodeValidationFormat,
	"REVIEWER_REQUIRED":      ErrCodeValidationRequired,
	"INVALID_AMOUNT":         ErrCodeValidationRange,

	"INVALID_CONFIG":             ErrCodeInvalidPolicy,
	"RUN_TOO_LARGE":              ErrCodeRunTooLarge,
	"NOT_REVIEWABLE":             ErrCodeInvalidState,
	"INVALID_RUN_STATE":          ErrCodeInvalidState,
	"AMOUNT_EXCEEDS_OUTSTANDING": ErrCodeAmountExceedsOutstanding,
	"AMOUNT_EXCEEDS_PAYMENT":     ErrCodeAmountExceedsPayment,
}

// NormalizeErrorCode converts a domain error code to the standardized format
// If the code is already in the new format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
