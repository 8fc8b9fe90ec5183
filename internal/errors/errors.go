// Package errors defines the coded errors surfaced by the rules engine and
// its transports.
package errors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Code categorises an error.
type Code string

const (
	CodeUnknown         Code = "unknown"
	CodeInvalidArgument Code = "invalid_argument"
	CodeNotFound        Code = "not_found"
	CodeInternal        Code = "internal"

	// CodeValidation marks a submission that does not fit the open selects.
	// Nothing was changed; the action is still open.
	CodeValidation Code = "validation"

	// CodeInvalidResolution marks a rule violation found while paying costs
	// or applying modifiers. The request that triggered it was unwound.
	CodeInvalidResolution Code = "invalid_action_resolution"
)

// Error is an engine error with a code and optional metadata.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Meta    map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithMeta attaches a metadata value and returns the error.
func (e *Error) WithMeta(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

// New creates an error with the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap adds context to err, keeping its code when it already carries one.
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return &Error{Code: coded.Code, Message: message, Cause: err, Meta: copyMeta(coded.Meta)}
	}
	return &Error{Code: CodeUnknown, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Validationf reports a malformed or out of range submission.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// InvalidResolutionf reports a rule violation during resolution.
func InvalidResolutionf(format string, args ...any) *Error {
	return Newf(CodeInvalidResolution, format, args...)
}

// NotFoundf reports a missing game, entity or snapshot.
func NotFoundf(format string, args ...any) *Error {
	return Newf(CodeNotFound, format, args...)
}

// InvalidArgumentf reports a bad request outside of a select submission.
func InvalidArgumentf(format string, args ...any) *Error {
	return Newf(CodeInvalidArgument, format, args...)
}

// Internalf reports an engine invariant violation.
func Internalf(format string, args ...any) *Error {
	return Newf(CodeInternal, format, args...)
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code == code
	}
	return false
}

func IsValidation(err error) bool { return Is(err, CodeValidation) }
func IsInvalidResolution(err error) bool { return Is(err, CodeInvalidResolution) }
func IsNotFound(err error) bool { return Is(err, CodeNotFound) }
func IsInternal(err error) bool { return Is(err, CodeInternal) }

// IsRecoverable reports whether the caller can retry with other input.
func IsRecoverable(err error) bool {
	return IsValidation(err) || IsInvalidResolution(err)
}

// GetCode returns the code carried by err, or CodeUnknown.
func GetCode(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeUnknown
}

// GRPCCode maps an error onto a gRPC status code.
func GRPCCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	switch GetCode(err) {
	case CodeValidation, CodeInvalidArgument:
		return codes.InvalidArgument
	case CodeInvalidResolution:
		return codes.FailedPrecondition
	case CodeNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

func copyMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	copied := make(map[string]any, len(meta))
	for k, v := range meta {
		copied[k] = v
	}
	return copied
}
