package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/louisbranch/famledger/internal/platform/errors/i18n"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs/telemetry)
	Metadata map[string]string // Additional context for templating
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Extensions exposes the code and metadata to GraphQL error responses.
func (e *Error) Extensions() map[string]any {
	ext := map[string]any{
		"code":      string(e.Code),
		"status":    e.Code.GRPCCode().String(),
		"retryable": e.Code.Retryable(),
	}
	if len(e.Metadata) > 0 {
		meta := make(map[string]any, len(e.Metadata))
		for key, value := range e.Metadata {
			meta[key] = value
		}
		ext["metadata"] = meta
	}
	return ext
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithMetadata creates a domain error with metadata for i18n templating.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Sentinel returns a code-only error usable as an errors.Is target.
func Sentinel(code Code) *Error {
	return &Error{Code: code, Message: string(code)}
}

// CodeOf extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MetadataOf extracts metadata from an error if present.
func MetadataOf(err error) map[string]string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Metadata
	}
	return nil
}

// UserMessage renders the localized user-facing message for err.
// Errors outside the domain collapse to a generic message.
func UserMessage(err error, locale string) string {
	var e *Error
	if !stderrors.As(err, &e) {
		return i18n.GetCatalog(locale).Format(string(CodeUnknown), nil)
	}
	return i18n.GetCatalog(locale).Format(string(e.Code), e.Metadata)
}
