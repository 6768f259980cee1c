// Package schema validates a single raw CSV row into a typed transaction.
package schema

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/csv-intake/internal/dates"
	"github.com/dvloznov/csv-intake/internal/domain"
	"github.com/shopspring/decimal"
)

// Field names looked up in a row, case-insensitively.
const (
	FieldDate        = "date"
	FieldAmount      = "amount"
	FieldCategory    = "category"
	FieldDescription = "description"
)

// Error codes attached to field errors.
const (
	CodeRequired      = "required"
	CodeInvalidFormat = "invalid_format"
	CodeInvalidDate   = "invalid_date"
	CodeInvalidNumber = "invalid_number"
	CodeTooSmall      = "too_small"
	CodeTooBig        = "too_big"
	CodeFutureDate    = "future_date"
	CodeTooOld        = "too_old"
)

const (
	MaxCategoryLength    = 100
	MaxDescriptionLength = 500
)

var (
	minAmount = decimal.RequireFromString("0.01")
	maxAmount = decimal.NewFromInt(1_000_000)
)

var amountNoise = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", ",", "")

// Options configure a Validator.
type Options struct {
	Dates dates.Options
}

// Validator checks raw rows against the transaction schema.
type Validator struct {
	opts Options
}

// New returns a Validator using opts.
func New(opts Options) *Validator {
	return &Validator{opts: opts}
}

// Validate converts raw into a Transaction. It returns either a transaction
// and no errors, or every field error found in the row.
func (v *Validator) Validate(raw domain.RawRow) (domain.Transaction, []domain.FieldError) {
	var (
		tx   domain.Transaction
		errs []domain.FieldError
	)

	if date, fe := v.date(raw); fe != nil {
		errs = append(errs, *fe)
	} else {
		tx.Date = date
	}

	if amount, fe := parseAmount(raw); fe != nil {
		errs = append(errs, *fe)
	} else {
		tx.Amount = amount
	}

	if category, fe := parseCategory(raw); fe != nil {
		errs = append(errs, *fe)
	} else {
		tx.Category = category
	}

	if desc, fe := parseDescription(raw); fe != nil {
		errs = append(errs, *fe)
	} else {
		tx.Description = desc
	}

	if len(errs) > 0 {
		return domain.Transaction{}, errs
	}
	return tx, nil
}

func (v *Validator) date(raw domain.RawRow) (string, *domain.FieldError) {
	s, _ := raw.Lookup(FieldDate)
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fieldError(FieldDate, CodeRequired, "Date is required")
	}

	res, err := dates.ParseAndValidate(s, v.opts.Dates)
	if err == nil {
		return res.Normalized, nil
	}

	var re *dates.RuleError
	if !errors.As(err, &re) {
		return "", fieldError(FieldDate, CodeInvalidDate, "Invalid date value")
	}
	switch re.Code {
	case dates.CodeInvalidFormat:
		return "", fieldError(FieldDate, CodeInvalidFormat, "Date must be in format YYYY-MM-DD, DD.MM.YYYY, or DD/MM/YYYY")
	case dates.CodeInvalidDate:
		return "", fieldError(FieldDate, CodeInvalidDate, "Invalid date value")
	case dates.CodeFutureDate:
		return "", fieldError(FieldDate, CodeFutureDate, re.Message)
	default:
		return "", fieldError(FieldDate, CodeTooOld, re.Message)
	}
}

// ParseAmount cleans currency symbols, thousands separators and whitespace
// from s and parses what remains as a decimal number.
func ParseAmount(s string) (decimal.Decimal, bool) {
	cleaned := strings.Join(strings.Fields(amountNoise.Replace(s)), "")
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func parseAmount(raw domain.RawRow) (decimal.Decimal, *domain.FieldError) {
	s, _ := raw.Lookup(FieldAmount)
	if strings.TrimSpace(s) == "" {
		return decimal.Decimal{}, fieldError(FieldAmount, CodeRequired, "Amount is required")
	}

	d, ok := ParseAmount(s)
	if !ok {
		return decimal.Decimal{}, fieldError(FieldAmount, CodeInvalidNumber, "Amount must be a valid number")
	}

	abs := d.Abs()
	if abs.LessThan(minAmount) {
		return decimal.Decimal{}, fieldError(FieldAmount, CodeTooSmall, "Amount must be at least 0.01 (or -0.01 for expenses)")
	}
	if abs.GreaterThan(maxAmount) {
		return decimal.Decimal{}, fieldError(FieldAmount, CodeTooBig, "Amount must not exceed 1,000,000")
	}
	return d, nil
}

func parseCategory(raw domain.RawRow) (string, *domain.FieldError) {
	s, _ := raw.Lookup(FieldCategory)
	if s == "" {
		return "", fieldError(FieldCategory, CodeRequired, "Category is required")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fieldError(FieldCategory, CodeRequired, "Category cannot be empty or whitespace only")
	}
	if utf8.RuneCountInString(s) > MaxCategoryLength {
		return "", fieldError(FieldCategory, CodeTooBig, "Category must not exceed 100 characters")
	}
	return s, nil
}

func parseDescription(raw domain.RawRow) (string, *domain.FieldError) {
	s, _ := raw.Lookup(FieldDescription)
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > MaxDescriptionLength {
		return "", fieldError(FieldDescription, CodeTooBig, "Description must not exceed 500 characters")
	}
	return s, nil
}

func fieldError(field, code, message string) *domain.FieldError {
	return &domain.FieldError{Field: field, Code: code, Message: message}
}
