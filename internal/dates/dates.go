// Package dates detects, parses and range-checks the transaction date formats
// accepted in uploaded files.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Format is one of the accepted date layouts.
type Format string

const (
	ISO      Format = "YYYY-MM-DD"
	European Format = "DD.MM.YYYY"
	US       Format = "DD/MM/YYYY"
)

// Formats lists the accepted layouts in detection order.
var Formats = []Format{ISO, European, US}

// ErrorCode classifies a date rejection.
type ErrorCode string

const (
	CodeInvalidFormat ErrorCode = "INVALID_FORMAT"
	CodeInvalidDate   ErrorCode = "INVALID_DATE"
	CodeFutureDate    ErrorCode = "FUTURE_DATE"
	CodeTooOld        ErrorCode = "TOO_OLD"
)

// RuleError explains why a date was rejected.
type RuleError struct {
	Code    ErrorCode
	Message string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const isoLayout = "2006-01-02"

var (
	// DefaultMinDate is the earliest accepted transaction date.
	DefaultMinDate = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	// PermissiveMinDate is the floor used by Normalize.
	PermissiveMinDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
)

var (
	isoRe      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	europeanRe = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)
	usRe       = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
)

// Options control date range validation. A zero MinDate means DefaultMinDate;
// a zero MaxDate means the end of the current day unless AllowFuture is set.
// Now overrides the clock.
type Options struct {
	AllowFuture bool
	MinDate     time.Time
	MaxDate     time.Time
	Now         func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Result is a successfully parsed and validated date.
type Result struct {
	Normalized string
	Time       time.Time
	Format     Format
}

// DetectFormat reports which accepted layout s uses.
func DetectFormat(s string) (Format, bool) {
	s = strings.TrimSpace(s)
	switch {
	case isoRe.MatchString(s):
		return ISO, true
	case europeanRe.MatchString(s):
		return European, true
	case usRe.MatchString(s):
		return US, true
	}
	return "", false
}

// Parse returns the calendar date written in s. Dates that would roll over
// (Feb 30, month 13) are rejected rather than normalized.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	format, ok := DetectFormat(s)
	if !ok {
		return time.Time{}, false
	}

	var parts []string
	var year, month, day int
	switch format {
	case ISO:
		parts = strings.Split(s, "-")
		year, month, day = atoi(parts[0]), atoi(parts[1]), atoi(parts[2])
	case European:
		parts = strings.Split(s, ".")
		day, month, year = atoi(parts[0]), atoi(parts[1]), atoi(parts[2])
	case US:
		parts = strings.Split(s, "/")
		day, month, year = atoi(parts[0]), atoi(parts[1]), atoi(parts[2])
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// FormatISO renders t as YYYY-MM-DD.
func FormatISO(t time.Time) string {
	return t.Format(isoLayout)
}

// ParseISO parses a normalized YYYY-MM-DD date.
func ParseISO(s string) (time.Time, error) {
	return time.Parse(isoLayout, s)
}

// EndOfDay returns the last instant of t's calendar day in UTC.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
}

// ValidateRules applies the future and minimum date rules to a parsed date.
func ValidateRules(t time.Time, opts Options) error {
	minDate := opts.MinDate
	if minDate.IsZero() {
		minDate = DefaultMinDate
	}

	if !opts.AllowFuture && t.After(EndOfDay(opts.now())) {
		return &RuleError{Code: CodeFutureDate, Message: "Date cannot be in the future"}
	}

	if t.Before(minDate) {
		return &RuleError{Code: CodeTooOld, Message: "Date must be after " + FormatISO(minDate)}
	}

	if !opts.MaxDate.IsZero() && t.After(opts.MaxDate) {
		return &RuleError{Code: CodeFutureDate, Message: "Date must be before " + FormatISO(opts.MaxDate)}
	}

	return nil
}

// ParseAndValidate detects, parses and range-checks s.
func ParseAndValidate(s string, opts Options) (Result, error) {
	format, ok := DetectFormat(s)
	if !ok {
		return Result{}, &RuleError{
			Code:    CodeInvalidFormat,
			Message: fmt.Sprintf("Invalid date format. Expected: %s, %s, or %s", ISO, European, US),
		}
	}

	t, ok := Parse(s)
	if !ok {
		return Result{}, &RuleError{Code: CodeInvalidDate, Message: "Invalid date value"}
	}

	if err := ValidateRules(t, opts); err != nil {
		return Result{}, err
	}

	return Result{Normalized: FormatISO(t), Time: t, Format: format}, nil
}

// Normalize converts any accepted date to YYYY-MM-DD without the business
// range rules: future dates and anything from 1900 on are allowed.
func Normalize(s string) (string, bool) {
	res, err := ParseAndValidate(s, Options{AllowFuture: true, MinDate: PermissiveMinDate})
	if err != nil {
		return "", false
	}
	return res.Normalized, true
}

// IsValid reports whether s passes the default rules.
func IsValid(s string) bool {
	_, err := ParseAndValidate(s, Options{})
	return err == nil
}

// DaysBetween returns the whole days from a to b, truncated toward zero.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
