package apperr

import (
	"errors"
	"fmt"
)

// Error codes
const (
	// Provider / fetch errors
	CodeProviderUnknown = "PROVIDER_UNKNOWN"
	CodeAuthFailed      = "AUTH_FAILED"
	CodeIMAPTransport   = "IMAP_TRANSPORT"
	CodeParseFailed     = "PARSE_FAILED"

	// Attachment errors
	CodeAttachmentRejected = "ATTACHMENT_REJECTED"

	// Pipeline errors
	CodeGateBusy         = "GATE_BUSY"
	CodeNoActiveAccounts = "NO_ACTIVE_ACCOUNTS"

	// External errors
	CodeStoreFailed      = "STORE_FAILED"
	CodeSummarizerFailed = "SUMMARIZER_FAILED"
	CodeCacheFailed      = "CACHE_FAILED"

	// Internal errors
	CodeNotFound      = "NOT_FOUND"
	CodeInvalidInput  = "INVALID_INPUT"
	CodeConfigError   = "CONFIG_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// Constructor functions
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Provider / fetch errors
func ProviderUnknown(tag string) *AppError {
	return &AppError{
		Code:    CodeProviderUnknown,
		Message: fmt.Sprintf("unknown mail provider: %s", tag),
		Details: map[string]any{"provider": tag},
	}
}

func AuthFailed(address string, err error) *AppError {
	return &AppError{
		Code:    CodeAuthFailed,
		Message: fmt.Sprintf("IMAP login failed for %s", address),
		Details: map[string]any{"address": address},
		Err:     err,
	}
}

func IMAPTransport(host string, port int, err error) *AppError {
	return &AppError{
		Code:    CodeIMAPTransport,
		Message: fmt.Sprintf("IMAP transport error at %s:%d", host, port),
		Details: map[string]any{"host": host, "port": port},
		Err:     err,
	}
}

func ParseFailed(uid uint32, err error) *AppError {
	return &AppError{
		Code:    CodeParseFailed,
		Message: fmt.Sprintf("failed to parse message uid %d", uid),
		Details: map[string]any{"uid": uid},
		Err:     err,
	}
}

// Attachment errors
func AttachmentRejected(filename, reason string) *AppError {
	return &AppError{
		Code:    CodeAttachmentRejected,
		Message: fmt.Sprintf("attachment rejected: %s", reason),
		Details: map[string]any{"filename": filename},
	}
}

// Pipeline errors
func GateBusy(userID int64) *AppError {
	return &AppError{
		Code:    CodeGateBusy,
		Message: "concurrency gate rejected run",
		Details: map[string]any{"user_id": userID},
	}
}

func NoActiveAccounts(userID int64) *AppError {
	return &AppError{
		Code:    CodeNoActiveAccounts,
		Message: "user has no active mail accounts",
		Details: map[string]any{"user_id": userID},
	}
}

// External errors
func StoreFailed(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeStoreFailed,
		Message: fmt.Sprintf("store error: %s", operation),
		Err:     err,
	}
}

func SummarizerFailed(err error) *AppError {
	return &AppError{
		Code:    CodeSummarizerFailed,
		Message: "summarizer call failed",
		Err:     err,
	}
}

// Internal errors
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func InvalidInput(field, reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("invalid input for '%s': %s", field, reason),
		Details: map[string]any{"field": field},
	}
}

func ConfigError(message string) *AppError {
	return &AppError{Code: CodeConfigError, Message: message}
}

func Internal(err error) *AppError {
	return &AppError{Code: CodeInternalError, Message: "internal error", Err: err}
}

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// CodeOf returns the code of err, or CodeInternalError for plain errors.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}
