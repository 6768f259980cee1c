// Package suggest builds human-readable hints for upload and validation
// errors.
package suggest

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/csv-intake/internal/domain"
	"github.com/dvloznov/csv-intake/internal/schema"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Levenshtein returns the edit distance between a and b counted in runes,
// with unit costs for insertion, deletion and substitution.
func Levenshtein(a, b string) int {
	return levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptionsWithSub)
}

// Similarity returns (maxLen - distance) / maxLen, in [0, 1]. Two empty
// strings are identical.
func Similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1.0
	}
	return float64(longest-Levenshtein(a, b)) / float64(longest)
}

func percent(sim float64) int {
	return int(math.Floor(sim*100 + 0.5))
}

type columnMatch struct {
	required   string
	found      string
	similarity float64
}

// MissingColumns explains which required columns are absent from found and
// points out found names that look like typos of them.
func MissingColumns(required, found []string) string {
	var missing []string
	for _, req := range required {
		if !containsFold(found, req) {
			missing = append(missing, req)
		}
	}
	if len(missing) == 0 {
		return "All required columns are present"
	}

	quoted := make([]string, len(missing))
	for i, m := range missing {
		quoted[i] = strconv.Quote(m)
	}
	lines := []string{"Add the missing column(s): " + strings.Join(quoted, ", ")}

	var similar []columnMatch
	for _, req := range missing {
		for _, fnd := range found {
			sim := Similarity(strings.ToLower(req), strings.ToLower(fnd))
			if sim > 0.6 && sim < 1.0 {
				similar = append(similar, columnMatch{required: req, found: fnd, similarity: sim})
			}
		}
	}
	sort.SliceStable(similar, func(i, j int) bool {
		return similar[i].similarity > similar[j].similarity
	})

	if len(similar) > 0 {
		lines = append(lines, "", "Possible typos detected:")
		for _, s := range similar {
			lines = append(lines, fmt.Sprintf("  - %q might be %q (%d%% match)", s.found, s.required, percent(s.similarity)))
		}
	}
	return strings.Join(lines, "\n")
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}

var dateFormats = []string{
	"YYYY-MM-DD (e.g., 2024-01-15)",
	"DD.MM.YYYY (e.g., 15.01.2024)",
	"DD/MM/YYYY (e.g., 15/01/2024)",
}

// Wrong layouts people commonly use, checked in order.
var dateMistakes = []struct {
	format     string
	pattern    *regexp.Regexp
	correction string
}{
	{"MM/DD/YYYY", regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`), "Use DD/MM/YYYY format (day first, not month)"},
	{"MM-DD-YYYY", regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{4}$`), "Use YYYY-MM-DD or DD.MM.YYYY format"},
	{"YYYY/MM/DD", regexp.MustCompile(`^\d{4}/\d{1,2}/\d{1,2}$`), "Use YYYY-MM-DD format (use - as separator)"},
}

var digitRuns = regexp.MustCompile(`\d+`)

// DateFormat lists the accepted date formats, names the wrong layout value
// appears to use and, when its numbers allow it, proposes an ISO date.
func DateFormat(value string) string {
	lines := []string{"Invalid date format. Use one of:"}
	for _, f := range dateFormats {
		lines = append(lines, "  - "+f)
	}

	for _, m := range dateMistakes {
		if m.pattern.MatchString(value) {
			lines = append(lines, "", "Detected format: "+m.format, "Suggestion: "+m.correction)
			break
		}
	}

	if corrected, ok := correctDate(value); ok {
		lines = append(lines, "", fmt.Sprintf("Did you mean: %s?", corrected))
	}
	return strings.Join(lines, "\n")
}

// correctDate reinterprets three numbers as day/month/year or year/month/day.
func correctDate(value string) (string, bool) {
	parts := digitRuns.FindAllString(value, -1)
	if len(parts) != 3 {
		return "", false
	}
	first, _ := strconv.Atoi(parts[0])
	second, _ := strconv.Atoi(parts[1])
	third, _ := strconv.Atoi(parts[2])

	if third >= 1000 && third <= 9999 && first >= 1 && first <= 31 && second >= 1 && second <= 12 {
		return fmt.Sprintf("%d-%02d-%02d", third, second, first), true
	}
	if first >= 1000 && first <= 9999 && second >= 1 && second <= 12 && third >= 1 && third <= 31 {
		return fmt.Sprintf("%d-%02d-%02d", first, second, third), true
	}
	return "", false
}

var (
	currencySymbols = regexp.MustCompile(`[$£€¥₹]`)
	whitespace      = regexp.MustCompile(`\s`)
	nonNumeric      = regexp.MustCompile(`[^0-9.\-+]`)
)

// AmountFormat runs every amount check independently and returns all that
// apply, or general format advice when none do.
func AmountFormat(value string) string {
	var lines []string

	if currencySymbols.MatchString(value) {
		lines = append(lines, "Remove currency symbols (e.g., $, £, €)")
	}
	if strings.Contains(value, ",") {
		lines = append(lines, fmt.Sprintf("Remove commas: %q → %q", value, strings.ReplaceAll(value, ",", "")))
	}
	if strings.Count(value, ".") > 1 {
		lines = append(lines, "Use only one decimal point")
	}
	if whitespace.MatchString(value) {
		lines = append(lines, fmt.Sprintf("Remove spaces: %q → %q", value, whitespace.ReplaceAllString(value, "")))
	}
	if nonNumeric.MatchString(value) {
		switch cleaned := nonNumeric.ReplaceAllString(value, ""); {
		case !strings.ContainsAny(cleaned, "0123456789"):
			lines = append(lines,
				fmt.Sprintf("Remove non-numeric characters: %q contains no digits", value),
				"Examples: 100, 100.50, -50.25",
			)
		case cleaned != value:
			lines = append(lines, fmt.Sprintf("Remove non-numeric characters: %q → %q", value, cleaned))
		}
	}

	if len(lines) == 0 {
		lines = append(lines,
			"Use numeric format with optional decimal point",
			"Examples: 100, 100.50, -50.25",
			"Range: 0.01 to 1,000,000",
		)
	}
	return strings.Join(lines, "\n")
}

type categoryMatch struct {
	category   string
	similarity float64
}

// Category suggests the three known categories closest to value, or lists
// the first ten known categories when nothing is close.
func Category(value string, known []string) string {
	lines := []string{fmt.Sprintf("Unknown category: %q", value)}

	var similar []categoryMatch
	lower := strings.ToLower(value)
	for _, c := range known {
		if sim := Similarity(lower, strings.ToLower(c)); sim > 0.5 {
			similar = append(similar, categoryMatch{category: c, similarity: sim})
		}
	}
	sort.SliceStable(similar, func(i, j int) bool {
		return similar[i].similarity > similar[j].similarity
	})
	if len(similar) > 3 {
		similar = similar[:3]
	}

	lines = append(lines, "")
	if len(similar) > 0 {
		lines = append(lines, "Did you mean:")
		for _, s := range similar {
			lines = append(lines, fmt.Sprintf("  - %s (%d%% match)", s.category, percent(s.similarity)))
		}
		return strings.Join(lines, "\n")
	}

	lines = append(lines, "Available categories:")
	for i, c := range known {
		if i == 10 {
			lines = append(lines, fmt.Sprintf("  ... and %d more", len(known)-10))
			break
		}
		lines = append(lines, "  - "+c)
	}
	return strings.Join(lines, "\n")
}

// FileErrorKind selects the advice returned by FileError.
type FileErrorKind string

const (
	FileTooLarge  FileErrorKind = "size"
	FileWrongType FileErrorKind = "type"
	FileEmpty     FileErrorKind = "empty"
	FileMissing   FileErrorKind = "missing"
)

var fileAdvice = map[FileErrorKind][]string{
	FileTooLarge: {
		"File is too large. Maximum size: 10 MB",
		"Try reducing the file size:",
		"  - Remove unnecessary columns",
		"  - Split into multiple smaller files",
		"  - Compress with ZIP (if supported)",
	},
	FileWrongType: {
		"Invalid file type. Only CSV files are accepted",
		"Ensure your file:",
		"  - Has .csv extension",
		"  - Is saved as CSV format (not Excel .xlsx)",
		"  - Uses comma (,) as delimiter",
	},
	FileEmpty: {
		"File is empty or contains no data",
		"Ensure your file:",
		"  - Contains a header row with column names",
		"  - Contains at least one data row",
		"  - Is not corrupted",
	},
	FileMissing: {
		"File not found or could not be read",
		"Try:",
		"  - Re-uploading the file",
		"  - Checking file permissions",
		"  - Ensuring file is not corrupted",
	},
}

// FileError returns advice for a rejected file.
func FileError(kind FileErrorKind) string {
	lines, ok := fileAdvice[kind]
	if !ok {
		lines = fileAdvice[FileMissing]
	}
	return strings.Join(lines, "\n")
}

var fieldAdvice = map[string][]string{
	"date": {
		"Check date format: YYYY-MM-DD, DD.MM.YYYY, or DD/MM/YYYY",
		"Ensure date is between 2020-01-01 and today",
		"Verify date is valid (e.g., not Feb 30)",
	},
	"amount": {
		"Use numeric format: 100 or 100.50",
		"Remove currency symbols and commas",
		"Ensure amount is between 0.01 and 1,000,000",
	},
	"category": {
		"Use one of the predefined categories",
		"Check for typos in category name",
		"Category names are matched without regard to case",
	},
	"description": {
		"Keep description under 500 characters",
		"Use plain text (no special formatting)",
		"Description is optional",
	},
}

var genericAdvice = []string{
	"Check the value format",
	"Ensure the value meets requirements",
	"Refer to documentation for valid formats",
}

// Validation wraps message with general advice for field.
func Validation(field, message string) string {
	advice, ok := fieldAdvice[strings.ToLower(field)]
	if !ok {
		advice = genericAdvice
	}
	lines := []string{message, "", "Suggestions:"}
	for _, a := range advice {
		lines = append(lines, "  - "+a)
	}
	return strings.Join(lines, "\n")
}

// ForFieldError picks the most specific hint for a field error given the
// offending raw value.
func ForFieldError(fe domain.FieldError, value string) string {
	switch {
	case fe.Field == schema.FieldDate && fe.Code == schema.CodeInvalidFormat:
		return DateFormat(value)
	case fe.Field == schema.FieldAmount && fe.Code == schema.CodeInvalidNumber:
		return AmountFormat(value)
	default:
		return Validation(fe.Field, fe.Message)
	}
}
