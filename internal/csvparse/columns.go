package csvparse

import "strings"

var (
	// RequiredColumns must be present in every transaction file.
	RequiredColumns = []string{"date", "amount", "category"}
	// OptionalColumns are recognised but may be absent.
	OptionalColumns = []string{"description"}
)

// ColumnCheck is the outcome of ValidateColumns. Names are lowercased and
// trimmed.
type ColumnCheck struct {
	Valid          bool     `json:"valid"`
	MissingColumns []string `json:"missingColumns"`
	ExtraColumns   []string `json:"extraColumns"`
}

// ValidateColumns compares the table header with required, ignoring case.
// Columns that are neither required nor optional are reported as extra.
func ValidateColumns(table *Table, required []string) ColumnCheck {
	have := make(map[string]bool, len(table.Columns))
	for _, c := range table.Columns {
		have[normalizeColumn(c)] = true
	}

	known := make(map[string]bool, len(required)+len(OptionalColumns))
	check := ColumnCheck{MissingColumns: []string{}, ExtraColumns: []string{}}
	for _, r := range required {
		r = normalizeColumn(r)
		known[r] = true
		if !have[r] {
			check.MissingColumns = append(check.MissingColumns, r)
		}
	}
	for _, o := range OptionalColumns {
		known[o] = true
	}

	for _, c := range table.Columns {
		n := normalizeColumn(c)
		if !known[n] {
			check.ExtraColumns = append(check.ExtraColumns, n)
		}
	}

	check.Valid = len(check.MissingColumns) == 0
	return check
}

func normalizeColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Summary describes the shape of a parsed table.
type Summary struct {
	TotalRows     int `json:"totalRows"`
	TotalColumns  int `json:"totalColumns"`
	EmptyValues   int `json:"emptyValues"`
	ParsingErrors int `json:"parsingErrors"`
}

// Summarize counts rows, columns, blank cells and non-fatal parser issues.
func Summarize(table *Table) Summary {
	s := Summary{
		TotalRows:     len(table.Rows),
		TotalColumns:  len(table.Columns),
		ParsingErrors: len(table.ParseErrors),
	}
	for _, row := range table.Rows {
		for _, f := range row.Fields {
			if strings.TrimSpace(f.Value) == "" {
				s.EmptyValues++
			}
		}
	}
	return s
}
