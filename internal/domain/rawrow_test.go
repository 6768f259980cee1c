package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawRowPreservesOrder(t *testing.T) {
	row := NewRawRow([]string{"date", "amount", "Category"}, []string{"2024-01-15", "10", "Food"})

	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"date":"2024-01-15","amount":"10","Category":"Food"}`, string(data))

	var back RawRow
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, row, back)
}

func TestRawRowLookup(t *testing.T) {
	row := NewRawRow([]string{"Date", " AMOUNT "}, []string{"2024-01-15", "10"})

	v, ok := row.Lookup("date")
	assert.True(t, ok)
	assert.Equal(t, "2024-01-15", v)

	v, ok = row.Lookup("amount")
	assert.True(t, ok)
	assert.Equal(t, "10", v)

	_, ok = row.Get("date")
	assert.False(t, ok)

	_, ok = row.Lookup("category")
	assert.False(t, ok)
}

func TestTransactionJSONAmountIsNumber(t *testing.T) {
	tx := Transaction{Date: "2024-01-15", Amount: decimal.RequireFromString("-50.25"), Category: "Food"}

	data, err := json.Marshal(tx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-01-15","amount":-50.25,"category":"Food"}`, string(data))

	var back Transaction
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, tx.Amount.Equal(back.Amount))
	assert.Equal(t, "Food", back.Category)
}

func TestValidTransactions(t *testing.T) {
	tx := Transaction{Date: "2024-01-15", Amount: decimal.NewFromInt(1), Category: "Food"}
	results := []RowResult{
		{Row: 1, Valid: true, Data: &tx},
		{Row: 2, Valid: false, Errors: []FieldError{{Field: "date", Message: "Date is required", Code: "required"}}},
	}

	got := ValidTransactions(results)
	require.Len(t, got, 1)
	assert.Equal(t, "Food", got[0].Category)
}
