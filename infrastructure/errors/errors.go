// Package errors provides unified error handling for the Secrets Manager SDK.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfig ErrorCode = "CONFIG"

	// Encoding errors
	ErrCodeDecode        ErrorCode = "DECODE"
	ErrCodeSerialization ErrorCode = "SERIALIZATION"

	// Cryptographic errors
	ErrCodeCrypto ErrorCode = "CRYPTO"

	// Transport errors
	ErrCodeHTTP                 ErrorCode = "HTTP"
	ErrCodeServerKeyRotation    ErrorCode = "SERVER_KEY_ROTATION"
	ErrCodeInvalidClientVersion ErrorCode = "INVALID_CLIENT_VERSION"

	// Binding errors
	ErrCodeBindingConflict ErrorCode = "BINDING_CONFLICT"

	// Data errors
	ErrCodeRecordData ErrorCode = "RECORD_DATA"
	ErrCodeNotation   ErrorCode = "NOTATION"
	ErrCodeFile       ErrorCode = "FILE"
	ErrCodeTOTP       ErrorCode = "TOTP"
)

// Error is a structured SDK error with code, originating component and cause.
type Error struct {
	Code      ErrorCode
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error
func New(code ErrorCode, component, message string) *Error {
	return &Error{
		Code:      code,
		Component: component,
		Message:   message,
	}
}

// Newf creates a new Error with a formatted message
func Newf(code ErrorCode, component, format string, args ...interface{}) *Error {
	return New(code, component, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a code and component context. A nil err
// returns nil so call sites can wrap unconditionally.
func Wrap(code ErrorCode, component, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:      code,
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed. Returns an
// empty code for non-SDK errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// As is a convenience re-export so callers don't need both error packages.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is a convenience re-export so callers don't need both error packages.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
