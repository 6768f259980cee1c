// Package apperrors defines the error taxonomy shared by the upload pipeline,
// the storage backends and the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code is a stable, caller-visible error identifier.
type Code string

const (
	CodeEmptyFile        Code = "EMPTY_FILE"
	CodeNoHeaders        Code = "NO_HEADERS"
	CodeParseError       Code = "PARSE_ERROR"
	CodeFieldValidation  Code = "FIELD_VALIDATION_ERROR"
	CodeMissingColumns   Code = "MISSING_REQUIRED_COLUMNS"
	CodeStorage          Code = "STORAGE_ERROR"
	CodeConstraint       Code = "CONSTRAINT_VIOLATION"
	CodeFileTooLarge     Code = "FILE_TOO_LARGE"
	CodeInvalidExtension Code = "INVALID_EXTENSION"
	CodeInvalidMimeType  Code = "INVALID_MIME_TYPE"
	CodeNoFile           Code = "NO_FILE"
	CodeNotFound         Code = "NOT_FOUND"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// Problem is a single field- or row-level issue attached to an Error.
type Problem struct {
	Row        int    `json:"row,omitempty"`
	Field      string `json:"field,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	Value      any    `json:"value,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Error is the typed error carried through the pipeline.
// Operational errors are expected failures whose details may be shown to a
// caller; non-operational ones are bugs or infrastructure faults.
type Error struct {
	Code        Code
	Message     string
	Details     map[string]any
	Problems    []Problem
	Operational bool
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so errors.Is(err, &Error{Code: X}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus maps the error code onto a response status.
func (e *Error) HTTPStatus() int {
	return StatusFor(e.Code)
}

// WithDetail returns e with key set in Details.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// StatusFor returns the HTTP status associated with a code.
func StatusFor(code Code) int {
	switch code {
	case CodeEmptyFile, CodeNoHeaders, CodeParseError, CodeInvalidExtension, CodeNoFile:
		return http.StatusBadRequest
	case CodeFieldValidation, CodeMissingColumns:
		return http.StatusUnprocessableEntity
	case CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeInvalidMimeType:
		return http.StatusUnsupportedMediaType
	case CodeConstraint:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// New creates an operational error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Operational: true}
}

// Wrap creates an operational error around cause.
func Wrap(cause error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Operational: true, Err: cause}
}

// Internal creates a non-operational error around cause.
func Internal(cause error, message string) *Error {
	return &Error{Code: CodeInternal, Message: message, Err: cause}
}

func EmptyFile(message string) *Error {
	return New(CodeEmptyFile, message)
}

func NoHeaders() *Error {
	return New(CodeNoHeaders, "CSV file has no headers")
}

// Parse reports fatal CSV structure problems.
func Parse(problems []Problem) *Error {
	e := New(CodeParseError, "CSV parsing failed with fatal errors")
	e.Problems = problems
	return e
}

// MissingColumns reports required columns absent from the header.
func MissingColumns(missing, found []string) *Error {
	e := New(CodeMissingColumns, "CSV file is missing required columns")
	e.Details = map[string]any{
		"missing": missing,
		"found":   found,
	}
	e.Problems = []Problem{{
		Field:      "columns",
		Message:    fmt.Sprintf("Missing columns: %s. Found: %s", strings.Join(missing, ", "), strings.Join(found, ", ")),
		Value:      found,
		Suggestion: "Add missing columns: " + strings.Join(missing, ", "),
	}}
	return e
}

// FieldValidation reports per-row field problems.
func FieldValidation(problems []Problem) *Error {
	e := New(CodeFieldValidation, "One or more rows failed validation")
	e.Problems = problems
	return e
}

func FileTooLarge(maxBytes, actualBytes int64) *Error {
	return New(CodeFileTooLarge, fmt.Sprintf("File too large. Maximum size is %s, got %s", FormatBytes(maxBytes), FormatBytes(actualBytes))).
		WithDetail("maxSizeBytes", maxBytes).
		WithDetail("actualSizeBytes", actualBytes)
}

// FileExceedsLimit is FileTooLarge for bodies cut off before their size
// was known.
func FileExceedsLimit(maxBytes int64) *Error {
	return New(CodeFileTooLarge, fmt.Sprintf("File too large. Maximum size is %s", FormatBytes(maxBytes))).
		WithDetail("maxSizeBytes", maxBytes)
}

func InvalidExtension(filename, ext string, allowed []string) *Error {
	if ext == "" {
		ext = "none"
	}
	return New(CodeInvalidExtension, fmt.Sprintf("Invalid file extension. Expected %s, got %s", strings.Join(allowed, ", "), ext)).
		WithDetail("filename", filename).
		WithDetail("extension", ext).
		WithDetail("allowedExtensions", allowed)
}

func InvalidMimeType(filename, mimeType string, allowed []string) *Error {
	return New(CodeInvalidMimeType, fmt.Sprintf("Invalid file type. Expected %s, got %s", strings.Join(allowed, ", "), mimeType)).
		WithDetail("filename", filename).
		WithDetail("mimetype", mimeType).
		WithDetail("allowedMimeTypes", allowed)
}

func NoFile() *Error {
	return New(CodeNoFile, "No file uploaded. Please include a file in the request.")
}

func NotFound(resource, id string) *Error {
	msg := resource + " not found"
	if id != "" {
		msg = fmt.Sprintf("%s not found: %s", resource, id)
	}
	return New(CodeNotFound, msg).WithDetail("resource", resource)
}

// Storage wraps a persistence failure. Storage faults are not operational:
// their detail stays in the logs.
func Storage(op string, cause error) *Error {
	return &Error{
		Code:    CodeStorage,
		Message: "Storage operation failed: " + op,
		Err:     cause,
	}
}

// Constraint reports a violated database constraint.
func Constraint(constraint string, cause error) *Error {
	return Wrap(cause, CodeConstraint, "Database constraint violation: "+constraint).
		WithDetail("constraint", constraint)
}

// SQL states for the constraint classes the backends distinguish.
const (
	SQLStateForeignKey = "23503"
	SQLStateUnique     = "23505"
	SQLStateCheck      = "23514"
)

// FromSQLState classifies a backend failure by its SQL state.
func FromSQLState(state string, cause error) *Error {
	switch state {
	case SQLStateForeignKey:
		return Constraint("foreign key", cause)
	case SQLStateUnique:
		return Constraint("unique", cause)
	case SQLStateCheck:
		return Constraint("check", cause)
	default:
		return Storage("query", cause)
	}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Normalize returns err as an *Error, classifying unknown errors as internal.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return Internal(err, "An unexpected error occurred")
}

// IsOperational reports whether err is an expected, caller-presentable failure.
func IsOperational(err error) bool {
	e, ok := As(err)
	return ok && e.Operational
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// FormatBytes renders a byte count the way limits are quoted to users.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d Bytes", n)
	}
	units := []string{"KB", "MB", "GB"}
	value := float64(n) / unit
	i := 0
	for value >= unit && i < len(units)-1 {
		value /= unit
		i++
	}
	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", value), "0"), ".")
	return s + " " + units[i]
}
