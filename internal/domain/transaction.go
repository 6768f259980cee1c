package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Transaction is one validated CSV row.
// Date is always normalized to YYYY-MM-DD; Description is empty when absent.
type Transaction struct {
	Date        string
	Amount      decimal.Decimal
	Category    string
	Description string
}

// AmountFloat returns the amount as a float64 for aggregate maths.
func (t Transaction) AmountFloat() float64 {
	return t.Amount.InexactFloat64()
}

type transactionJSON struct {
	Date        string      `json:"date"`
	Amount      json.Number `json:"amount"`
	Category    string      `json:"category"`
	Description string      `json:"description,omitempty"`
}

// MarshalJSON renders the amount as a JSON number rather than a quoted string.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		Date:        t.Date,
		Amount:      json.Number(t.Amount.String()),
		Category:    t.Category,
		Description: t.Description,
	})
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	var v transactionJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(v.Amount.String())
	if err != nil {
		return err
	}
	*t = Transaction{
		Date:        v.Date,
		Amount:      amount,
		Category:    v.Category,
		Description: v.Description,
	}
	return nil
}

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// RowResult is the validation outcome for one data row.
// Row is 1-based in parsed order, so skipped blank lines are not counted.
type RowResult struct {
	Row     int          `json:"row"`
	Valid   bool         `json:"valid"`
	Data    *Transaction `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
	RawData RawRow       `json:"rawData"`
}

// ValidTransactions returns the transactions of the valid rows, in order.
func ValidTransactions(results []RowResult) []Transaction {
	out := make([]Transaction, 0, len(results))
	for _, r := range results {
		if r.Valid && r.Data != nil {
			out = append(out, *r.Data)
		}
	}
	return out
}
