package bigquery

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/csv-intake/internal/domain"
	"github.com/dvloznov/csv-intake/internal/records"
	"github.com/dvloznov/csv-intake/internal/rules"
	"github.com/shopspring/decimal"
)

// TransactionRow mirrors one row of the transactions table.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UploadID      string `bigquery:"upload_id"`      // REQUIRED
	RowNumber     int64  `bigquery:"row_number"`     // REQUIRED

	TransactionDate bigquery.NullDate   `bigquery:"transaction_date"` // NULLABLE for invalid rows
	Amount          *big.Rat            `bigquery:"amount"`           // NUMERIC, NULLABLE for invalid rows
	Category        bigquery.NullString `bigquery:"category"`
	Description     bigquery.NullString `bigquery:"description"`

	IsValid          bool              `bigquery:"is_valid"`
	ValidationErrors bigquery.NullJSON `bigquery:"validation_errors"` // JSON array
	HasWarnings      bool              `bigquery:"has_warnings"`
	Warnings         bigquery.NullJSON `bigquery:"warnings"` // JSON array
	RawData          bigquery.NullJSON `bigquery:"raw_data"` // JSON object in header order

	CreatedTS time.Time `bigquery:"created_ts"`
}

// Save implements bigquery.ValueSaver. NULL columns are sent as nil and the
// transaction id doubles as the insert id for best-effort de-duplication.
func (row *TransactionRow) Save() (map[string]bigquery.Value, string, error) {
	m := map[string]bigquery.Value{
		"transaction_id": row.TransactionID,
		"upload_id":      row.UploadID,
		"row_number":     row.RowNumber,
		"is_valid":       row.IsValid,
		"has_warnings":   row.HasWarnings,
		"created_ts":     row.CreatedTS,
	}
	m["transaction_date"] = nil
	if row.TransactionDate.Valid {
		m["transaction_date"] = row.TransactionDate.Date
	}
	m["amount"] = nil
	if row.Amount != nil {
		m["amount"] = row.Amount
	}
	m["category"] = nullValue(row.Category.Valid, row.Category.StringVal)
	m["description"] = nullValue(row.Description.Valid, row.Description.StringVal)
	m["validation_errors"] = nullValue(row.ValidationErrors.Valid, row.ValidationErrors.JSONVal)
	m["warnings"] = nullValue(row.Warnings.Valid, row.Warnings.JSONVal)
	m["raw_data"] = nullValue(row.RawData.Valid, row.RawData.JSONVal)
	return m, row.TransactionID, nil
}

func nullValue(valid bool, v string) bigquery.Value {
	if !valid {
		return nil
	}
	return v
}

func toTransactionRow(tx *records.Transaction, created time.Time) (*TransactionRow, error) {
	row := &TransactionRow{
		TransactionID:   tx.ID,
		UploadID:        tx.UploadID,
		RowNumber:       int64(tx.RowNumber),
		TransactionDate: nullDate(tx.Date),
		Category:        nullString(tx.Category),
		Description:     nullString(tx.Description),
		IsValid:         tx.IsValid,
		HasWarnings:     tx.HasWarnings,
		CreatedTS:       created,
	}
	if tx.Amount.Valid {
		row.Amount = tx.Amount.Decimal.Rat()
	}

	var err error
	if row.ValidationErrors, err = jsonColumn(tx.ValidationErrors, len(tx.ValidationErrors) > 0); err != nil {
		return nil, fmt.Errorf("row %d validation errors: %w", tx.RowNumber, err)
	}
	if row.Warnings, err = jsonColumn(tx.Warnings, len(tx.Warnings) > 0); err != nil {
		return nil, fmt.Errorf("row %d warnings: %w", tx.RowNumber, err)
	}
	if row.RawData, err = jsonColumn(tx.RawData, true); err != nil {
		return nil, fmt.Errorf("row %d raw data: %w", tx.RowNumber, err)
	}
	return row, nil
}

func jsonColumn(v any, present bool) (bigquery.NullJSON, error) {
	if !present {
		return bigquery.NullJSON{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return bigquery.NullJSON{}, err
	}
	return bigquery.NullJSON{JSONVal: string(b), Valid: true}, nil
}

// transactionReadRow is the SELECT shape. NUMERIC is read back as its
// canonical string so it converts to decimal without float rounding.
type transactionReadRow struct {
	TransactionID    string              `bigquery:"transaction_id"`
	UploadID         string              `bigquery:"upload_id"`
	RowNumber        int64               `bigquery:"row_number"`
	TransactionDate  bigquery.NullDate   `bigquery:"transaction_date"`
	AmountText       bigquery.NullString `bigquery:"amount_text"`
	Category         bigquery.NullString `bigquery:"category"`
	Description      bigquery.NullString `bigquery:"description"`
	IsValid          bool                `bigquery:"is_valid"`
	ValidationErrors bigquery.NullJSON   `bigquery:"validation_errors"`
	HasWarnings      bool                `bigquery:"has_warnings"`
	Warnings         bigquery.NullJSON   `bigquery:"warnings"`
	RawData          bigquery.NullJSON   `bigquery:"raw_data"`
}

func (row *transactionReadRow) toRecord() (*records.Transaction, error) {
	tx := &records.Transaction{
		ID:          row.TransactionID,
		UploadID:    row.UploadID,
		RowNumber:   int(row.RowNumber),
		Date:        dateString(row.TransactionDate),
		Category:    row.Category.StringVal,
		Description: row.Description.StringVal,
		IsValid:     row.IsValid,
		HasWarnings: row.HasWarnings,
	}
	if row.AmountText.Valid {
		d, err := decimal.NewFromString(row.AmountText.StringVal)
		if err != nil {
			return nil, fmt.Errorf("amount %q: %w", row.AmountText.StringVal, err)
		}
		tx.Amount = decimal.NewNullDecimal(d)
	}
	if row.ValidationErrors.Valid {
		var errs []domain.FieldError
		if err := json.Unmarshal([]byte(row.ValidationErrors.JSONVal), &errs); err != nil {
			return nil, fmt.Errorf("validation_errors: %w", err)
		}
		tx.ValidationErrors = errs
	}
	if row.Warnings.Valid {
		var ws []rules.Warning
		if err := json.Unmarshal([]byte(row.Warnings.JSONVal), &ws); err != nil {
			return nil, fmt.Errorf("warnings: %w", err)
		}
		tx.Warnings = ws
	}
	if row.RawData.Valid {
		if err := json.Unmarshal([]byte(row.RawData.JSONVal), &tx.RawData); err != nil {
			return nil, fmt.Errorf("raw_data: %w", err)
		}
	}
	return tx, nil
}
