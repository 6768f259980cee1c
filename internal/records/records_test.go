package records

import (
	"testing"

	"github.com/dvloznov/csv-intake/internal/domain"
	"github.com/dvloznov/csv-intake/internal/rules"
	"github.com/dvloznov/csv-intake/internal/stats"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalStatus(t *testing.T) {
	assert.Equal(t, StatusCompleted, FinalStatus(3, 0))
	assert.Equal(t, StatusPartial, FinalStatus(3, 1))
	assert.Equal(t, StatusFailed, FinalStatus(0, 2))
	assert.Equal(t, StatusFailed, FinalStatus(0, 0))
}

func TestBuildTransactions(t *testing.T) {
	cols := []string{"date", "amount", "Category"}
	results := []domain.RowResult{
		{
			Row:     1,
			Valid:   true,
			Data:    &domain.Transaction{Date: "2024-01-15", Amount: decimal.RequireFromString("12.50"), Category: "Food"},
			RawData: domain.NewRawRow(cols, []string{"2024-01-15", "12.50", "Food"}),
		},
		{
			Row:     2,
			Errors:  []domain.FieldError{{Field: "amount", Message: "Amount must be a valid number", Code: "invalid_number"}},
			RawData: domain.NewRawRow(cols, []string{"2024-01-16", "abc", "Rent"}),
		},
	}
	warnings := map[int][]rules.Warning{1: {{Row: 1, Code: rules.CodeUnknownCategory}}}

	txs := BuildTransactions("u1", results, warnings)
	require.Len(t, txs, 2)

	assert.Equal(t, "u1", txs[0].UploadID)
	assert.NotEmpty(t, txs[0].ID)
	require.NotNil(t, txs[0].Date)
	assert.Equal(t, "2024-01-15", *txs[0].Date)
	assert.True(t, txs[0].Amount.Valid)
	assert.True(t, txs[0].HasWarnings)
	assert.Len(t, txs[0].Warnings, 1)

	assert.False(t, txs[1].IsValid)
	assert.Nil(t, txs[1].Date)
	assert.False(t, txs[1].Amount.Valid)
	assert.Equal(t, "Rent", txs[1].Category)
	assert.Len(t, txs[1].ValidationErrors, 1)
	assert.False(t, txs[1].HasWarnings)
}

func TestApplyStatistics(t *testing.T) {
	results := []domain.RowResult{
		{Row: 1, Valid: true, Data: &domain.Transaction{Date: "2024-01-15", Amount: decimal.RequireFromString("1500"), Category: "Salary"}},
		{Row: 2, Valid: true, Data: &domain.Transaction{Date: "2024-01-16", Amount: decimal.RequireFromString("-50"), Category: "Groceries"}},
		{Row: 3},
	}

	var u Upload
	ApplyStatistics(&u, stats.Calculate(results), 4)

	assert.Equal(t, 3, u.TotalRows)
	assert.Equal(t, 2, u.ValidRows)
	assert.Equal(t, 1, u.InvalidRows)
	assert.Equal(t, 66.67, u.ValidationRate)
	assert.Equal(t, 4, u.TotalWarnings)
	assert.Equal(t, "2024-01-15", *u.EarliestDate)
	assert.Equal(t, 1450.0, u.TotalAmount)
	assert.Equal(t, 1500.0, u.TotalIncome)
	assert.Equal(t, 50.0, u.TotalExpenses)
	assert.Equal(t, 1450.0, u.NetBalance)
}
