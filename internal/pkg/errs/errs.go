/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the standard Go error
interface and carries a business code, a human-readable message, and the HTTP
status associated with the error (the status the backend returned, or the status
the simulated backend should respond with).
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"

	"lobbyhub/internal/pkg/logx"
)

// CustomError is the custom error structure used throughout the application.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the human-readable error description. For errors surfaced by
	// the backend this is the server-supplied reason, verbatim.
	Message string

	// Status is the HTTP status code corresponding to this error.
	Status int
}

// Error implements the standard Go error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// NewError constructs a new *CustomError from a predefined error code.
// Optional details are printf-style arguments applied to the template message.
// Unknown codes fall back to ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &CustomError{
			Code:    unknownErr.Code,
			Message: unknownErr.Message,
			Status:  unknownErr.Status,
		}
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	if len(details) > 0 {
		customErr.Message = fmt.Sprintf(customErr.Message, details...)
	}

	return &customErr
}

// NewErrorWithMessage constructs a *CustomError for code but replaces the
// template message with msg. Used when the backend supplied its own reason
// and that reason must be surfaced verbatim.
func NewErrorWithMessage(code int, msg string) *CustomError {
	customErr := NewError(code)
	if msg != "" {
		customErr.Message = msg
	}
	return customErr
}

// CodeOf extracts the business code from err, or ErrUnknown when err is not a
// *CustomError (wrapped CustomErrors are unwrapped first).
func CodeOf(err error) int {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrUnknown
}

// Is reports whether err carries the given business code.
func Is(err error, code int) bool {
	return CodeOf(err) == code
}
