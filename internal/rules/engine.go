// Package rules flags suspicious but valid transactions: duplicates, large
// amounts, unknown categories and long gaps between dates.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/csv-intake/internal/dates"
	"github.com/dvloznov/csv-intake/internal/domain"
	"github.com/dvloznov/csv-intake/internal/suggest"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Severity ranks a warning.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Severities lists every severity in reporting order.
var Severities = []Severity{SeverityInfo, SeverityWarning, SeverityError}

// Code identifies the rule that produced a warning.
type Code string

const (
	CodeDuplicate         Code = "DUPLICATE_TRANSACTION"
	CodeUnusualAmount     Code = "UNUSUAL_AMOUNT"
	CodeUnknownCategory   Code = "UNKNOWN_CATEGORY"
	CodeLargeDateGap      Code = "LARGE_DATE_GAP"
	CodeFutureDate        Code = "FUTURE_DATE"
	CodeVeryOldDate       Code = "VERY_OLD_DATE"
	CodeSuspiciousPattern Code = "SUSPICIOUS_PATTERN"
)

// Codes lists every warning code in reporting order.
var Codes = []Code{
	CodeDuplicate, CodeUnusualAmount, CodeUnknownCategory, CodeLargeDateGap,
	CodeFutureDate, CodeVeryOldDate, CodeSuspiciousPattern,
}

// Warning is a non-fatal finding about one row.
type Warning struct {
	Row         int      `json:"row"`
	Code        Code     `json:"code"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	Field       string   `json:"field,omitempty"`
	Value       any      `json:"value,omitempty"`
	Suggestion  string   `json:"suggestion,omitempty"`
	RelatedRows []int    `json:"relatedRows,omitempty"`
}

// Stats counts warnings. Every known code and severity is present.
type Stats struct {
	TotalWarnings int              `json:"totalWarnings"`
	ByCode        map[Code]int     `json:"byCode"`
	BySeverity    map[Severity]int `json:"bySeverity"`
}

// Result is the outcome of Evaluate.
type Result struct {
	Warnings []Warning `json:"warnings"`
	Stats    Stats     `json:"stats"`
}

// Engine applies the business rules configured in its Options.
type Engine struct {
	opts  Options
	known map[string]bool
}

// NewEngine returns an Engine for opts.
func NewEngine(opts Options) *Engine {
	known := make(map[string]bool, len(opts.KnownCategories))
	for _, c := range opts.KnownCategories {
		known[strings.ToLower(c)] = true
	}
	return &Engine{opts: opts, known: known}
}

// Evaluate runs the enabled checks over the valid rows of results. Invalid
// rows are ignored.
func (e *Engine) Evaluate(results []domain.RowResult) Result {
	valid := make([]domain.RowResult, 0, len(results))
	for _, r := range results {
		if r.Valid && r.Data != nil {
			valid = append(valid, r)
		}
	}

	warnings := []Warning{}
	if e.opts.CheckDuplicates {
		warnings = append(warnings, e.duplicates(valid)...)
	}
	if e.opts.CheckAmounts {
		warnings = append(warnings, e.unusualAmounts(valid)...)
	}
	if e.opts.CheckCategories {
		warnings = append(warnings, e.unknownCategories(valid)...)
	}
	if e.opts.CheckDateGaps {
		warnings = append(warnings, e.dateGaps(valid)...)
	}

	return Result{Warnings: warnings, Stats: countWarnings(warnings)}
}

func duplicateKey(tx *domain.Transaction) string {
	return tx.Date + "|" + tx.Amount.String() + "|" + strings.ToLower(tx.Category)
}

func (e *Engine) duplicates(rows []domain.RowResult) []Warning {
	var out []Warning
	seen := map[string][]int{}
	for _, r := range rows {
		key := duplicateKey(r.Data)
		prior := seen[key]
		if len(prior) > 0 {
			related := append([]int(nil), prior...)
			out = append(out, Warning{
				Row:         r.Row,
				Code:        CodeDuplicate,
				Severity:    SeverityWarning,
				Message:     "Possible duplicate transaction detected",
				Suggestion:  "Similar transaction found in row(s): " + joinInts(related),
				RelatedRows: related,
			})
		}
		seen[key] = append(prior, r.Row)
	}
	return out
}

func (e *Engine) unusualAmounts(rows []domain.RowResult) []Warning {
	var out []Warning
	p := message.NewPrinter(language.English)
	for _, r := range rows {
		amount := r.Data.Amount
		if amount.Abs().InexactFloat64() <= e.opts.UnusualAmountThreshold {
			continue
		}
		out = append(out, Warning{
			Row:        r.Row,
			Code:       CodeUnusualAmount,
			Severity:   SeverityInfo,
			Message:    "Unusually large amount: " + amount.String(),
			Field:      "amount",
			Value:      amount.InexactFloat64(),
			Suggestion: p.Sprintf("Amount exceeds $%v. Please verify this is correct.", number.Decimal(e.opts.UnusualAmountThreshold)),
		})
	}
	return out
}

func (e *Engine) unknownCategories(rows []domain.RowResult) []Warning {
	var out []Warning
	for _, r := range rows {
		category := r.Data.Category
		if e.known[strings.ToLower(category)] {
			continue
		}
		out = append(out, Warning{
			Row:        r.Row,
			Code:       CodeUnknownCategory,
			Severity:   SeverityInfo,
			Message:    fmt.Sprintf("Unknown category: %q", category),
			Field:      "category",
			Value:      category,
			Suggestion: suggest.Category(category, e.opts.KnownCategories),
		})
	}
	return out
}

func (e *Engine) dateGaps(rows []domain.RowResult) []Warning {
	sorted := append([]domain.RowResult(nil), rows...)
	// ISO dates order lexicographically.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Data.Date < sorted[j].Data.Date
	})

	var out []Warning
	for i := 1; i < len(sorted); i++ {
		prev, curr := sorted[i-1], sorted[i]
		prevDate, err := dates.ParseISO(prev.Data.Date)
		if err != nil {
			continue
		}
		currDate, err := dates.ParseISO(curr.Data.Date)
		if err != nil {
			continue
		}

		gap := dates.DaysBetween(prevDate, currDate)
		if gap <= e.opts.DateGapThreshold {
			continue
		}
		out = append(out, Warning{
			Row:      curr.Row,
			Code:     CodeLargeDateGap,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("Large date gap detected: %d days since previous transaction", gap),
			Field:    "date",
			Value:    curr.Data.Date,
			Suggestion: fmt.Sprintf("%d days gap between %s (row %d) and %s (row %d).",
				gap, prev.Data.Date, prev.Row, curr.Data.Date, curr.Row),
		})
	}
	return out
}

func countWarnings(warnings []Warning) Stats {
	s := Stats{
		TotalWarnings: len(warnings),
		ByCode:        make(map[Code]int, len(Codes)),
		BySeverity:    make(map[Severity]int, len(Severities)),
	}
	for _, c := range Codes {
		s.ByCode[c] = 0
	}
	for _, sv := range Severities {
		s.BySeverity[sv] = 0
	}
	for _, w := range warnings {
		s.ByCode[w.Code]++
		s.BySeverity[w.Severity]++
	}
	return s
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}

// FilterBySeverity returns the warnings with any of the given severities.
func FilterBySeverity(res Result, severities ...Severity) []Warning {
	var out []Warning
	for _, w := range res.Warnings {
		for _, s := range severities {
			if w.Severity == s {
				out = append(out, w)
				break
			}
		}
	}
	return out
}

// FilterByCode returns the warnings with any of the given codes.
func FilterByCode(res Result, codes ...Code) []Warning {
	var out []Warning
	for _, w := range res.Warnings {
		for _, c := range codes {
			if w.Code == c {
				out = append(out, w)
				break
			}
		}
	}
	return out
}

// WarningsByRow groups warnings by row number.
func WarningsByRow(res Result) map[int][]Warning {
	out := make(map[int][]Warning)
	for _, w := range res.Warnings {
		out[w.Row] = append(out[w.Row], w)
	}
	return out
}
