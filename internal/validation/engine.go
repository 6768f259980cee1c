// Package validation runs the row schema over a parsed table and summarises
// the outcome.
package validation

import (
	"sort"

	"github.com/dvloznov/csv-intake/internal/csvparse"
	"github.com/dvloznov/csv-intake/internal/domain"
	"github.com/shopspring/decimal"
)

// RowValidator validates one raw row.
type RowValidator interface {
	Validate(raw domain.RawRow) (domain.Transaction, []domain.FieldError)
}

// Engine validates every row of a table.
type Engine struct {
	validator RowValidator
}

// NewEngine returns an Engine backed by v.
func NewEngine(v RowValidator) *Engine {
	return &Engine{validator: v}
}

// ValidateRows validates table rows in order. Row numbers are 1-based
// positions in the parsed table.
func (e *Engine) ValidateRows(table *csvparse.Table) []domain.RowResult {
	results := make([]domain.RowResult, 0, len(table.Rows))
	for i, raw := range table.Rows {
		res := domain.RowResult{Row: i + 1, RawData: raw}
		tx, errs := e.validator.Validate(raw)
		if len(errs) == 0 {
			res.Valid = true
			res.Data = &tx
		} else {
			res.Errors = errs
		}
		results = append(results, res)
	}
	return results
}

const maxCommonErrors = 10

// ErrorCount is how often one field error message occurred.
type ErrorCount struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Stats summarises a validation run.
type Stats struct {
	Total         int            `json:"total"`
	Valid         int            `json:"valid"`
	Invalid       int            `json:"invalid"`
	SuccessRate   float64        `json:"successRate"`
	ErrorsByField map[string]int `json:"errorsByField"`
	CommonErrors  []ErrorCount   `json:"commonErrors"`
}

// Summarize counts valid and invalid rows and ranks the most frequent
// field errors.
func Summarize(results []domain.RowResult) Stats {
	s := Stats{
		Total:         len(results),
		ErrorsByField: map[string]int{},
		CommonErrors:  []ErrorCount{},
	}

	type key struct{ field, message string }
	counts := map[key]int{}
	for _, r := range results {
		if r.Valid {
			s.Valid++
			continue
		}
		s.Invalid++
		for _, fe := range r.Errors {
			s.ErrorsByField[fe.Field]++
			counts[key{fe.Field, fe.Message}]++
		}
	}

	if s.Total > 0 {
		s.SuccessRate = Percent(s.Valid, s.Total)
	}

	for k, n := range counts {
		s.CommonErrors = append(s.CommonErrors, ErrorCount{Field: k.field, Message: k.message, Count: n})
	}
	sort.Slice(s.CommonErrors, func(i, j int) bool {
		a, b := s.CommonErrors[i], s.CommonErrors[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		return a.Message < b.Message
	})
	if len(s.CommonErrors) > maxCommonErrors {
		s.CommonErrors = s.CommonErrors[:maxCommonErrors]
	}
	return s
}

// Percent returns part/whole*100 rounded to two decimals. whole must be
// positive.
func Percent(part, whole int) float64 {
	return decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(whole)), 2).
		InexactFloat64()
}
