// Package errors provides standardized error handling for the anti-spam
// component and its BPMN workflow integration.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode is the internal classification of a failure.
type ErrorCode string

const (
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout         ErrorCode = "TIMEOUT_ERROR"
	ErrCodeCleantalkAPI    ErrorCode = "CLEANTALK_API_ERROR"

	ErrCodeSessionStore ErrorCode = "SESSION_STORE_ERROR"

	ErrCodeSpamRejected ErrorCode = "SPAM_REJECTED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError is the error type every layer of the service returns.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func newError(code ErrorCode, message string, retryable bool, cause error, details string) *StandardError {
	if details == "" && cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying failure, e.g. context.DeadlineExceeded.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// HasCode reports whether err is, or wraps, a StandardError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return errors.As(err, &stdErr) && stdErr.Code == code
}

// BPMNError is what gets thrown to the workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables flattens the error into process variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := make(map[string]interface{}, len(e.ErrorVariables)+4)
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	vars["errorCode"] = e.Code
	vars["errorMessage"] = e.Message
	vars["errorDetails"] = e.Details
	vars["retryable"] = e.Retryable
	return vars
}

// ==========================
// Constructors
// ==========================

func NewConfigInvalidError(details string) *StandardError {
	return newError(ErrCodeConfigInvalid, "Invalid configuration", false, nil, details)
}

// NewInvalidArgumentError reports a caller bug, such as a missing dependency.
func NewInvalidArgumentError(details string) *StandardError {
	return newError(ErrCodeInvalidArgument, "Invalid argument", false, nil, details)
}

func NewValidationFailedError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Input validation failed", false, nil, details)
}

// NewExternalServiceError covers transport failures and unreadable responses.
func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service '%s' error", service), true, err, "")
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), true, err, "")
}

// NewCleantalkAPIError wraps an error reported inside a well-formed API response.
func NewCleantalkAPIError(errno int, errstr string) *StandardError {
	e := newError(ErrCodeCleantalkAPI, "CleanTalk API returned an error", false, nil, errstr)
	e.Metadata = map[string]interface{}{"errno": errno}
	return e
}

func NewSessionStoreError(op string, err error) *StandardError {
	return newError(ErrCodeSessionStore, fmt.Sprintf("Session store %s failed", op), true, err, "")
}

// NewSpamRejectedError turns a negative verdict into an error response body.
func NewSpamRejectedError(comment string) *StandardError {
	return newError(ErrCodeSpamRejected, "Submission rejected by anti-spam check", false, nil, comment)
}

// ==========================
// BPMN conversion
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeConfigInvalid:    "CONFIG_INVALID",
	ErrCodeInvalidArgument:  "INVALID_ARGUMENT",
	ErrCodeValidationFailed: "VALIDATION_FAILED",
	ErrCodeExternalService:  "ANTISPAM_UNAVAILABLE",
	ErrCodeTimeout:          "ANTISPAM_TIMEOUT",
	ErrCodeCleantalkAPI:     "CLEANTALK_API_ERROR",
	ErrCodeSessionStore:     "SESSION_STORE_ERROR",
	ErrCodeSpamRejected:     "SPAM_REJECTED",
}

// GetRetryCount returns the recommended job retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeExternalService,
		ErrCodeSessionStore:
		return 3

	case ErrCodeTimeout:
		return 2

	default:
		return 0 // business and programming errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory groups codes for dashboards and log filters.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeConfigInvalid:
		return "CONFIGURATION"
	case ErrCodeCleantalkAPI, ErrCodeExternalService, ErrCodeTimeout:
		return "REMOTE"
	case ErrCodeSessionStore:
		return "SESSION"
	case ErrCodeSpamRejected:
		return "VERDICT"
	case ErrCodeInvalidArgument, ErrCodeValidationFailed:
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

// Normalize ensures err is a StandardError, wrapping unknown errors as internal.
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", false, err, "")
}
