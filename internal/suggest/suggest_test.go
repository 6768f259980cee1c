package suggest

import (
	"strings"
	"testing"

	"github.com/dvloznov/csv-intake/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"date", "data", 1},
		{"café", "cafe", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b))
			assert.Equal(t, tt.want, Levenshtein(tt.b, tt.a))
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 1.0, Similarity("food", "food"))
	assert.Equal(t, 0.75, Similarity("date", "data"))
	assert.Equal(t, 0.0, Similarity("abc", "xyz"))
}

func TestMissingColumns(t *testing.T) {
	assert.Equal(t, "All required columns are present",
		MissingColumns([]string{"date", "amount"}, []string{"Date", "AMOUNT"}))

	got := MissingColumns([]string{"date", "amount", "category"}, []string{"date", "amount", "categry"})
	assert.Equal(t, strings.Join([]string{
		`Add the missing column(s): "category"`,
		"",
		"Possible typos detected:",
		`  - "categry" might be "category" (88% match)`,
	}, "\n"), got)

	got = MissingColumns([]string{"category"}, []string{"notes"})
	assert.Equal(t, `Add the missing column(s): "category"`, got)
}

func TestDateFormat(t *testing.T) {
	got := DateFormat("01/25/2024")
	assert.Contains(t, got, "  - YYYY-MM-DD (e.g., 2024-01-15)")
	assert.Contains(t, got, "Detected format: MM/DD/YYYY")
	assert.NotContains(t, got, "Did you mean")

	got = DateFormat("15-01-2024")
	assert.Contains(t, got, "Detected format: MM-DD-YYYY")
	assert.Contains(t, got, "Did you mean: 2024-01-15?")

	got = DateFormat("2024/1/5")
	assert.Contains(t, got, "Suggestion: Use YYYY-MM-DD format (use - as separator)")
	assert.Contains(t, got, "Did you mean: 2024-01-05?")

	got = DateFormat("yesterday")
	assert.NotContains(t, got, "Detected format")
	assert.NotContains(t, got, "Did you mean")
}

func TestAmountFormat(t *testing.T) {
	got := AmountFormat("$1,500.00")
	assert.Contains(t, got, "Remove currency symbols (e.g., $, £, €)")
	assert.Contains(t, got, `Remove commas: "$1,500.00" → "$1500.00"`)
	assert.Contains(t, got, `Remove non-numeric characters: "$1,500.00" → "1500.00"`)

	got = AmountFormat("1 000.5.0")
	assert.Contains(t, got, "Use only one decimal point")
	assert.Contains(t, got, `Remove spaces: "1 000.5.0" → "1000.5.0"`)

	got = AmountFormat("₹12abc")
	assert.Contains(t, got, "Remove currency symbols")
	assert.Contains(t, got, `→ "12"`)

	// No digits at all: still point at the offending characters.
	got = AmountFormat("abc")
	assert.Equal(t, "Remove non-numeric characters: \"abc\" contains no digits\nExamples: 100, 100.50, -50.25", got)

	got = AmountFormat("12.50")
	assert.Equal(t, "Use numeric format with optional decimal point\nExamples: 100, 100.50, -50.25\nRange: 0.01 to 1,000,000", got)
}

func TestCategory(t *testing.T) {
	known := []string{"Groceries", "Transport", "Salary"}

	got := Category("Grocery", known)
	assert.Contains(t, got, `Unknown category: "Grocery"`)
	assert.Contains(t, got, "Did you mean:\n  - Groceries (67% match)")

	many := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		many = append(many, strings.Repeat("z", i+1))
	}
	got = Category("Pets", many)
	assert.Contains(t, got, "Available categories:")
	assert.Contains(t, got, "  ... and 2 more")
	assert.Equal(t, 1+1+1+10+1, len(strings.Split(got, "\n")))
}

func TestFileError(t *testing.T) {
	assert.True(t, strings.HasPrefix(FileError(FileTooLarge), "File is too large. Maximum size: 10 MB"))
	assert.True(t, strings.HasPrefix(FileError(FileWrongType), "Invalid file type"))
	assert.True(t, strings.HasPrefix(FileError(FileEmpty), "File is empty"))
	assert.True(t, strings.HasPrefix(FileError("bogus"), "File not found"))
}

func TestValidationAndForFieldError(t *testing.T) {
	got := Validation("amount", "Amount must not exceed 1,000,000")
	assert.Equal(t, strings.Join([]string{
		"Amount must not exceed 1,000,000",
		"",
		"Suggestions:",
		"  - Use numeric format: 100 or 100.50",
		"  - Remove currency symbols and commas",
		"  - Ensure amount is between 0.01 and 1,000,000",
	}, "\n"), got)

	assert.Contains(t, Validation("memo", "bad"), "  - Check the value format")

	got = ForFieldError(domain.FieldError{Field: "amount", Code: "invalid_number", Message: "Amount must be a valid number"}, "12abc")
	assert.Contains(t, got, "Remove non-numeric characters")

	got = ForFieldError(domain.FieldError{Field: "date", Code: "invalid_format"}, "01-15-2024")
	assert.Contains(t, got, "Detected format: MM-DD-YYYY")

	got = ForFieldError(domain.FieldError{Field: "date", Code: "invalid_date", Message: "Invalid date value"}, "2024-02-30")
	assert.True(t, strings.HasPrefix(got, "Invalid date value\n\nSuggestions:"))
}
