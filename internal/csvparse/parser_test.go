package csvparse

import (
	"testing"

	"github.com/dvloznov/csv-intake/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasic(t *testing.T) {
	content := "date,amount,category\n2024-01-15,1500.00,Salary\n2024-01-16,-50.00,Groceries"

	table, err := Parse([]byte(content), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"date", "amount", "category"}, table.Columns)
	require.Equal(t, 2, table.TotalRows())
	v, _ := table.Rows[1].Get("amount")
	assert.Equal(t, "-50.00", v)
	assert.Equal(t, ",", table.Meta.Delimiter)
	assert.Equal(t, "\n", table.Meta.Linebreak)
	assert.Empty(t, table.ParseErrors)
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    apperrors.Code
	}{
		{"empty", "", apperrors.CodeEmptyFile},
		{"whitespace", "  \n\t\n", apperrors.CodeEmptyFile},
		{"header only", "date,amount,category\n", apperrors.CodeEmptyFile},
		{"too few fields", "date,amount,category\n2024-01-15,1\n", apperrors.CodeParseError},
		{"too many fields", "date,amount,category\n2024-01-15,1,Food,extra\n", apperrors.CodeParseError},
		{"unterminated quote", "date,amount,category\n2024-01-15,\"1,Food\n", apperrors.CodeParseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content), DefaultConfig())
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestParseBlankHeader(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SkipEmptyLines = SkipBlank

	_, err := Parse([]byte(",,\n2024-01-15,1,Food\n"), cfg)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoHeaders))
}

func TestParseMismatchReportsRow(t *testing.T) {
	content := "date,amount,category\n2024-01-15,1,Food\n2024-01-16,2\n"

	_, err := Parse([]byte(content), DefaultConfig())
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Len(t, appErr.Problems, 1)
	assert.Equal(t, 2, appErr.Problems[0].Row)
	assert.Equal(t, "TooFewFields", appErr.Problems[0].Code)
}

func TestParseSkipModes(t *testing.T) {
	content := "date,amount,category\n\n2024-01-15,1,Food\n  ,  ,  \n2024-01-16,2,Food\n"

	greedy, err := Parse([]byte(content), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, greedy.TotalRows())

	cfg := DefaultConfig()
	cfg.SkipEmptyLines = SkipBlank
	blank, err := Parse([]byte(content), cfg)
	require.NoError(t, err)
	require.Equal(t, 3, blank.TotalRows())
	v, _ := blank.Rows[1].Get("amount")
	assert.Equal(t, "  ", v)

	cfg.SkipEmptyLines = SkipNone
	_, err = Parse([]byte(content), cfg)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeParseError))
}

func TestParseQuotedFields(t *testing.T) {
	content := "date,amount,category,description\n2024-01-15,\"1,500.00\",Salary,\"Bonus, \"\"Q1\"\"\nline two\"\n"

	table, err := Parse([]byte(content), DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 1, table.TotalRows())

	amount, _ := table.Rows[0].Get("amount")
	desc, _ := table.Rows[0].Get("description")
	assert.Equal(t, "1,500.00", amount)
	assert.Equal(t, "Bonus, \"Q1\"\nline two", desc)
}

func TestParseDelimiterAndLinebreak(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		delimiter string
		linebreak string
	}{
		{"semicolon crlf", "date;amount;category\r\n15.01.2024;1,50;Food\r\n", ";", "\r\n"},
		{"tab", "date\tamount\tcategory\n2024-01-15\t1\tFood\n", "\t", "\n"},
		{"pipe cr", "date|amount|category\r2024-01-15|1|Food\r", "|", "\r"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Parse([]byte(tt.content), DefaultConfig())
			require.NoError(t, err)
			assert.Equal(t, tt.delimiter, table.Meta.Delimiter)
			assert.Equal(t, tt.linebreak, table.Meta.Linebreak)
			assert.Len(t, table.Columns, 3)
			assert.Equal(t, 1, table.TotalRows())
		})
	}
}

func TestParseSingleColumnReportsDelimiterIssue(t *testing.T) {
	table, err := Parse([]byte("date\n2024-01-15\n"), DefaultConfig())
	require.NoError(t, err)
	require.Len(t, table.ParseErrors, 1)
	assert.Equal(t, IssueDelimiter, table.ParseErrors[0].Type)
	assert.False(t, table.ParseErrors[0].Fatal())
}

func TestParseEncodings(t *testing.T) {
	// "Café" in windows-1252.
	latin := []byte("date,amount,category\n2024-01-15,1,Caf\xe9\n")
	cfg := DefaultConfig()
	cfg.Encoding = "windows-1252"

	table, err := Parse(latin, cfg)
	require.NoError(t, err)
	v, _ := table.Rows[0].Get("category")
	assert.Equal(t, "Café", v)

	bom := []byte("\xef\xbb\xbfdate,amount,category\n2024-01-15,1,Food\n")
	table, err = Parse(bom, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "date", table.Columns[0])

	cfg.Encoding = "klingon"
	_, err = Parse(latin, cfg)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeParseError))
}

func TestParseHeaders(t *testing.T) {
	table, err := Parse([]byte(" Date , Amount,amount\n2024-01-15,1,2\n"), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "Amount", "amount"}, table.Columns)

	table, err = Parse([]byte("a,a,a\n1,2,3\n"), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a_1", "a_2"}, table.Columns)

	cfg := DefaultConfig()
	cfg.Header = false
	table, err = Parse([]byte("2024-01-15,1,Food\n"), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"column1", "column2", "column3"}, table.Columns)
	assert.Equal(t, 1, table.TotalRows())
}

func TestValidateColumns(t *testing.T) {
	table, err := Parse([]byte("Date,AMOUNT,notes\n2024-01-15,1,x\n"), DefaultConfig())
	require.NoError(t, err)

	check := ValidateColumns(table, RequiredColumns)
	assert.False(t, check.Valid)
	assert.Equal(t, []string{"category"}, check.MissingColumns)
	assert.Equal(t, []string{"notes"}, check.ExtraColumns)

	table, err = Parse([]byte("date,amount,category,Description\n2024-01-15,1,Food,\n"), DefaultConfig())
	require.NoError(t, err)
	check = ValidateColumns(table, RequiredColumns)
	assert.True(t, check.Valid)
	assert.Empty(t, check.ExtraColumns)
}

func TestSummarize(t *testing.T) {
	table, err := Parse([]byte("date,amount,category,description\n2024-01-15,1,Food,\n2024-01-16,,Food, \n"), DefaultConfig())
	require.NoError(t, err)

	s := Summarize(table)
	assert.Equal(t, Summary{TotalRows: 2, TotalColumns: 4, EmptyValues: 3}, s)
}
