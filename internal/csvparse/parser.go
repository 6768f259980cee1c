// Package csvparse turns uploaded file bytes into a header-keyed table and
// checks it for the columns a transaction file must carry.
package csvparse

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/csv-intake/internal/apperrors"
	"github.com/dvloznov/csv-intake/internal/domain"
	"golang.org/x/text/encoding/htmlindex"
)

// SkipMode selects which blank lines are dropped before parsing.
type SkipMode string

const (
	// SkipNone keeps blank lines as data rows.
	SkipNone SkipMode = "none"
	// SkipBlank drops lines with no characters at all.
	SkipBlank SkipMode = "skip-blank"
	// SkipGreedy also drops rows whose fields are all whitespace.
	SkipGreedy SkipMode = "greedy"
)

// Issue types reported by the parser. Quotes and FieldMismatch are fatal.
const (
	IssueQuotes        = "Quotes"
	IssueFieldMismatch = "FieldMismatch"
	IssueDelimiter     = "Delimiter"
)

// Config controls parsing.
type Config struct {
	Header         bool
	SkipEmptyLines SkipMode
	TrimHeaders    bool
	// Encoding is an IANA/WHATWG label such as "utf-8" or "windows-1252".
	Encoding string
	// Delimiter forces a field separator; zero means auto-detect.
	Delimiter rune
}

// DefaultConfig returns the configuration used for uploads.
func DefaultConfig() Config {
	return Config{
		Header:         true,
		SkipEmptyLines: SkipGreedy,
		TrimHeaders:    true,
		Encoding:       "utf-8",
	}
}

// Issue is a problem found while parsing. Row is the 1-based data row, or 0
// for file-level issues; Line is the 1-based line in the decoded text.
type Issue struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Row     int    `json:"row"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// Fatal reports whether the issue aborts parsing.
func (i Issue) Fatal() bool {
	return i.Type == IssueQuotes || i.Type == IssueFieldMismatch
}

// Meta describes the detected text layout.
type Meta struct {
	Delimiter string `json:"delimiter"`
	Linebreak string `json:"linebreak"`
}

// Table is a parsed CSV file. Every row carries exactly Columns.
type Table struct {
	Columns     []string
	Rows        []domain.RawRow
	ParseErrors []Issue
	Meta        Meta
}

// TotalRows returns the number of data rows.
func (t *Table) TotalRows() int {
	return len(t.Rows)
}

// Parse decodes content and parses it into a Table. Failures are
// *apperrors.Error values with codes EMPTY_FILE, NO_HEADERS or PARSE_ERROR.
func Parse(content []byte, cfg Config) (*Table, error) {
	text, err := decode(content, cfg.Encoding)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return nil, apperrors.EmptyFile("CSV file is empty")
	}

	linebreak := detectLinebreak(text)
	records := splitRecords(normalizeLinebreaks(text, linebreak))

	var issues []Issue
	delim := cfg.Delimiter
	if delim == 0 {
		var ok bool
		delim, ok = detectDelimiter(records)
		if !ok {
			issues = append(issues, Issue{
				Type:    IssueDelimiter,
				Code:    "UndetectableDelimiter",
				Message: "Unable to auto-detect delimiting character; defaulted to ','",
			})
		}
	}

	mode := cfg.SkipEmptyLines
	if mode == "" {
		mode = SkipGreedy
	}

	table := &Table{
		Meta: Meta{Delimiter: string(delim), Linebreak: linebreak},
	}

	dataRow := 0
	for _, rec := range records {
		if mode != SkipNone && rec.text == "" {
			continue
		}

		fields, err := readFields(rec.text, delim)
		if err != nil {
			issues = append(issues, quoteIssue(err, dataRow+1, rec.line))
			dataRow++
			continue
		}

		if mode == SkipGreedy && allBlank(fields) {
			continue
		}

		if table.Columns == nil {
			if cfg.Header {
				table.Columns = headerColumns(fields, cfg.TrimHeaders)
				if table.Columns == nil {
					return nil, apperrors.NoHeaders()
				}
				continue
			}
			table.Columns = positionalColumns(len(fields))
		}

		dataRow++
		if len(fields) != len(table.Columns) {
			issues = append(issues, mismatchIssue(len(table.Columns), len(fields), dataRow, rec.line))
			continue
		}
		table.Rows = append(table.Rows, domain.NewRawRow(table.Columns, fields))
	}

	table.ParseErrors = issues
	if fatal := fatalProblems(issues); len(fatal) > 0 {
		return nil, apperrors.Parse(fatal)
	}

	if len(table.Rows) == 0 {
		return nil, apperrors.EmptyFile("CSV file contains no data rows")
	}

	return table, nil
}

func decode(content []byte, label string) (string, error) {
	if label == "" {
		label = "utf-8"
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeParseError, "Unsupported text encoding: "+label).
			WithDetail("encoding", label)
	}
	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeParseError, "Failed to decode file as "+label).
			WithDetail("encoding", label)
	}
	return strings.TrimPrefix(string(decoded), "\ufeff"), nil
}

func detectLinebreak(text string) string {
	idx := strings.IndexAny(text, "\r\n")
	if idx < 0 {
		return "\n"
	}
	if text[idx] == '\r' {
		if idx+1 < len(text) && text[idx+1] == '\n' {
			return "\r\n"
		}
		return "\r"
	}
	return "\n"
}

func normalizeLinebreaks(text, linebreak string) string {
	switch linebreak {
	case "\r\n":
		return strings.ReplaceAll(text, "\r\n", "\n")
	case "\r":
		return strings.ReplaceAll(text, "\r", "\n")
	}
	return text
}

type record struct {
	text string
	line int
}

// splitRecords cuts text into records at newlines outside quoted fields.
// A trailing newline does not produce an empty record.
func splitRecords(text string) []record {
	var out []record
	inQuotes := false
	start, line, startLine := 0, 1, 1
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '"':
			inQuotes = !inQuotes
		case '\n':
			line++
			if !inQuotes {
				out = append(out, record{text: text[start:i], line: startLine})
				start = i + 1
				startLine = line
			}
		}
	}
	if start < len(text) {
		out = append(out, record{text: text[start:], line: startLine})
	}
	return out
}

func readFields(text string, delim rune) ([]string, error) {
	if text == "" {
		return []string{""}, nil
	}
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	if err != nil {
		return nil, err
	}
	return fields, nil
}

func allBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// headerColumns names the columns, returning nil when no name is usable.
// Repeated names get a numeric suffix so every column stays addressable.
func headerColumns(fields []string, trim bool) []string {
	cols := make([]string, len(fields))
	seen := make(map[string]int, len(fields))
	named := false
	for i, f := range fields {
		name := f
		if trim {
			name = strings.TrimSpace(name)
		}
		if strings.TrimSpace(name) != "" {
			named = true
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n)
		} else {
			seen[name] = 1
		}
		cols[i] = name
	}
	if !named {
		return nil
	}
	return cols
}

func positionalColumns(n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = fmt.Sprintf("column%d", i+1)
	}
	return cols
}

func quoteIssue(err error, row, line int) Issue {
	code := "InvalidQuotes"
	if errors.Is(err, csv.ErrBareQuote) {
		code = "BareQuote"
	} else if errors.Is(err, csv.ErrQuote) {
		code = "MissingQuotes"
	}
	return Issue{
		Type:    IssueQuotes,
		Code:    code,
		Row:     row,
		Line:    line,
		Message: fmt.Sprintf("Malformed quoted field: %v", err),
	}
}

func mismatchIssue(want, got, row, line int) Issue {
	code := "TooFewFields"
	if got > want {
		code = "TooManyFields"
	}
	return Issue{
		Type:    IssueFieldMismatch,
		Code:    code,
		Row:     row,
		Line:    line,
		Message: fmt.Sprintf("Expected %d fields but parsed %d", want, got),
	}
}

func fatalProblems(issues []Issue) []apperrors.Problem {
	var out []apperrors.Problem
	for _, is := range issues {
		if !is.Fatal() {
			continue
		}
		out = append(out, apperrors.Problem{
			Row:     is.Row,
			Code:    is.Code,
			Message: is.Message,
			Value:   is.Type,
		})
	}
	return out
}
