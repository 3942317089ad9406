package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrInternal     = errors.New("internal error")
)

// Interpretation pipeline failures
var (
	ErrConsentRequired       = errors.New("ai consent not granted")
	ErrProfileLookup         = errors.New("profile lookup failed")
	ErrNoValidTestData       = errors.New("no valid test data")
	ErrAIServiceUnavailable  = errors.New("ai service unavailable")
	ErrMalformedAIResponse   = errors.New("malformed ai response")
	ErrInvalidRiskAssessment = errors.New("invalid risk assessment")
	ErrEmptyAIResponse       = errors.New("empty ai response")
	ErrAuditWriteFailed      = errors.New("audit write failed")
)

// Machine-readable error codes returned to callers.
const (
	CodeAuthMissing           = "AUTH_MISSING"
	CodeBadRequest            = "BAD_REQUEST"
	CodeResultNotFound        = "RESULT_NOT_FOUND"
	CodeNotFound              = "NOT_FOUND"
	CodeForbidden             = "FORBIDDEN"
	CodeConsentRequired       = "CONSENT_REQUIRED"
	CodeProfileLookupFailed   = "PROFILE_LOOKUP_FAILED"
	CodeNoValidTestData       = "NO_VALID_TEST_DATA"
	CodeAIServiceUnavailable  = "AI_SERVICE_UNAVAILABLE"
	CodeMalformedAIResponse   = "MALFORMED_AI_RESPONSE"
	CodeInvalidRiskAssessment = "INVALID_RISK_ASSESSMENT"
	CodeEmptyAIResponse       = "EMPTY_AI_RESPONSE"
	CodeAuditWriteFailed      = "AUDIT_WRITE_FAILED"
	CodeInternal              = "INTERNAL_ERROR"
)

// AppError represents an application error with context.
// Details are for logs only and are never written to HTTP responses.
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// As extracts an *AppError from an error chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// CodeOf returns the machine-readable code of err, or INTERNAL_ERROR.
func CodeOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// AuthMissing creates an unauthorized error
func AuthMissing(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       CodeAuthMissing,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       CodeNotFound,
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// ResultNotFound creates the not found error for a lab result record
func ResultNotFound(id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    "result not found",
		Code:       CodeResultNotFound,
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"result_id": id},
	}
}

// Forbidden creates a forbidden error
func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       CodeForbidden,
		HTTPStatus: http.StatusForbidden,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       CodeBadRequest,
		HTTPStatus: http.StatusBadRequest,
	}
}

// ConsentRequired is returned when the user has not opted in to AI processing.
func ConsentRequired() *AppError {
	return &AppError{
		Err:        ErrConsentRequired,
		Message:    "ai consent required",
		Code:       CodeConsentRequired,
		HTTPStatus: http.StatusForbidden,
	}
}

// ProfileLookup is returned when consent could not be determined.
func ProfileLookup(err error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %v", ErrProfileLookup, err),
		Message:    "profile lookup failed",
		Code:       CodeProfileLookupFailed,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NoValidTestData is returned when anonymization leaves no tests.
func NoValidTestData() *AppError {
	return &AppError{
		Err:        ErrNoValidTestData,
		Message:    "no valid test data",
		Code:       CodeNoValidTestData,
		HTTPStatus: http.StatusBadRequest,
	}
}

// AIServiceUnavailable wraps a gateway failure. status is 0 for transport errors.
func AIServiceUnavailable(status int, cause error) *AppError {
	err := ErrAIServiceUnavailable
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrAIServiceUnavailable, cause)
	}
	return &AppError{
		Err:        err,
		Message:    "ai service unavailable",
		Code:       CodeAIServiceUnavailable,
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]string{"upstream_status": fmt.Sprintf("%d", status)},
	}
}

// MalformedAIResponse is returned when the risk completion is not valid JSON.
func MalformedAIResponse(cause error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %v", ErrMalformedAIResponse, cause),
		Message:    "malformed ai response",
		Code:       CodeMalformedAIResponse,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// InvalidRiskAssessment is returned when riskLevel is outside the vocabulary.
func InvalidRiskAssessment(level string) *AppError {
	return &AppError{
		Err:        ErrInvalidRiskAssessment,
		Message:    "invalid risk assessment",
		Code:       CodeInvalidRiskAssessment,
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]string{"risk_level": level},
	}
}

// EmptyAIResponse is returned when the model produced no text.
func EmptyAIResponse() *AppError {
	return &AppError{
		Err:        ErrEmptyAIResponse,
		Message:    "empty ai response",
		Code:       CodeEmptyAIResponse,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// AuditWriteFailed marks a swallowed audit failure. It is only ever logged.
func AuditWriteFailed(cause error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %v", ErrAuditWriteFailed, cause),
		Message:    "audit write failed",
		Code:       CodeAuditWriteFailed,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Internal creates an internal error
func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		Code:       CodeInternal,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	if appErr, ok := err.(*AppError); ok {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       CodeInternal,
		HTTPStatus: http.StatusInternalServerError,
	}
}
