package core

import (
	"context"
	"errors"
	"fmt"
)

// Code is a stable error code string.
type Code string

// Error codes. These appear in persisted failure entries and CLI output.
const (
	EValidation Code = "E_VALIDATION"

	// Provider error codes
	EAuth             Code = "E_AUTH"
	EQuota            Code = "E_QUOTA"
	ERateLimited      Code = "E_RATE_LIMITED"
	EEmptyResponse    Code = "E_EMPTY_RESPONSE"
	ETransientNetwork Code = "E_TRANSIENT_NETWORK"
	EModelNotFound    Code = "E_MODEL_NOT_FOUND"
	EProviderUnknown  Code = "E_PROVIDER_UNKNOWN"

	// Run lifecycle error codes
	ETimeout   Code = "E_TIMEOUT"
	ERunFailed Code = "E_RUN_FAILED"
	ECanceled  Code = "E_CANCELED"

	// Storage error codes
	EInvalidRunID        Code = "E_INVALID_RUN_ID"
	EPathEscape          Code = "E_PATH_ESCAPE"
	EAllocationExhausted Code = "E_ALLOCATION_EXHAUSTED"
	ERunNotFound         Code = "E_RUN_NOT_FOUND"
	EStorage             Code = "E_STORAGE"

	// Statistics precondition violations
	EInvalidInput Code = "E_INVALID_INPUT"
)

// Category groups codes into the coarse kinds callers branch on.
type Category string

const (
	CategoryValidation Category = "ValidationError"
	CategoryProvider   Category = "ProviderError"
	CategoryTimeout    Category = "TimeoutError"
	CategoryRun        Category = "RunError"
	CategoryStorage    Category = "StorageError"
	CategoryInput      Category = "InvalidInputError"
)

// Category returns the kind a code belongs to.
func (c Code) Category() Category {
	switch c {
	case EValidation:
		return CategoryValidation
	case EAuth, EQuota, ERateLimited, EEmptyResponse, ETransientNetwork, EModelNotFound, EProviderUnknown:
		return CategoryProvider
	case ETimeout:
		return CategoryTimeout
	case EInvalidRunID, EPathEscape, EAllocationExhausted, ERunNotFound, EStorage:
		return CategoryStorage
	case EInvalidInput:
		return CategoryInput
	default:
		return CategoryRun
	}
}

// retriableByDefault lists the provider kinds recovered locally by retry.
var retriableByDefault = map[Code]bool{
	ERateLimited:      true,
	ETransientNetwork: true,
}

// publicMessages are safe to show to an end user regardless of the cause.
var publicMessages = map[Code]string{
	EValidation:          "the run configuration is invalid",
	EAuth:                "the provider rejected the credentials",
	EQuota:               "the provider account has insufficient quota or balance",
	ERateLimited:         "the provider is rate limiting requests",
	EEmptyResponse:       "the model returned an empty response",
	ETransientNetwork:    "the provider could not be reached",
	EModelNotFound:       "the requested model does not exist",
	EProviderUnknown:     "the provider returned an unexpected error",
	ETimeout:             "the run did not finish before its deadline",
	ERunFailed:           "no iteration of the run succeeded",
	ECanceled:            "the run was cancelled before it finished",
	EInvalidRunID:        "the run identifier is not valid",
	EPathEscape:          "the run identifier is not valid",
	EAllocationExhausted: "could not allocate a run identifier",
	ERunNotFound:         "the run was not found",
	EStorage:             "the run store is unavailable",
	EInvalidInput:        "the statistics input is invalid",
}

// Error is the standard error type for the benchmark engine.
type Error struct {
	Code      Code
	Msg       string
	Cause     error
	Retriable bool
}

// Error returns the stable error format: "CODE: message".
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error. Retriability follows the code.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg, Retriable: retriableByDefault[code]}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new Error wrapping an underlying cause.
func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Cause: cause, Retriable: retriableByDefault[code]}
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "".
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsRetriable reports whether err is a provider fault eligible for retry.
func IsRetriable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retriable
	}
	return false
}

// PublicMessage renders err for an end user. Causes, file paths and
// provider bodies are never included.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	e, ok := AsError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return publicMessages[ETimeout]
		}
		return "internal error"
	}
	msg, ok := publicMessages[e.Code]
	if !ok {
		msg = "internal error"
	}
	return fmt.Sprintf("%s: %s", e.Code.Category(), msg)
}
