package bigquery

import (
	"errors"
	"math/big"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/csv-intake/internal/apperrors"
	"github.com/dvloznov/csv-intake/internal/domain"
	"github.com/dvloznov/csv-intake/internal/records"
	"github.com/dvloznov/csv-intake/internal/rules"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestUploadRowRoundTrip(t *testing.T) {
	earliest := "2024-01-15"
	u := &records.Upload{
		ID:               "u1",
		Filename:         "tx_1_abc.csv",
		OriginalFilename: "tx.csv",
		FileSize:         120,
		MimeType:         "text/csv",
		Status:           records.StatusPartial,
		TotalRows:        3,
		ValidRows:        2,
		InvalidRows:      1,
		ValidationRate:   66.67,
		EarliestDate:     &earliest,
		TotalAmount:      1450,
		CreatedAt:        time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}

	row := toUploadRow(u)
	assert.False(t, row.StorageURI.Valid)
	assert.False(t, row.ErrorMessage.Valid)
	assert.True(t, row.EarliestDate.Valid)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.January, Day: 15}, row.EarliestDate.Date)
	assert.False(t, row.LatestDate.Valid)

	back := row.toRecord()
	assert.Equal(t, u, back)
}

func TestTransactionRowSave(t *testing.T) {
	date := "2024-01-15"
	valid := &records.Transaction{
		ID:        "t1",
		UploadID:  "u1",
		RowNumber: 1,
		Date:      &date,
		Amount:    decimal.NewNullDecimal(decimal.RequireFromString("-12.50")),
		Category:  "Food",
		IsValid:   true,
		RawData:   domain.NewRawRow([]string{"date", "amount"}, []string{"2024-01-15", "-12.50"}),
	}

	row, err := toTransactionRow(valid, time.Unix(0, 0))
	require.NoError(t, err)

	m, insertID, err := row.Save()
	require.NoError(t, err)
	assert.Equal(t, "t1", insertID)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.January, Day: 15}, m["transaction_date"])
	assert.Equal(t, "-25/2", m["amount"].(*big.Rat).String())
	assert.Equal(t, "Food", m["category"])
	assert.Nil(t, m["description"])
	assert.Nil(t, m["validation_errors"])
	assert.Nil(t, m["warnings"])
	assert.Equal(t, `{"date":"2024-01-15","amount":"-12.50"}`, m["raw_data"])

	invalid := &records.Transaction{
		ID:               "t2",
		UploadID:         "u1",
		RowNumber:        2,
		ValidationErrors: []domain.FieldError{{Field: "amount", Message: "Amount must be a valid number", Code: "invalid_number"}},
	}
	row, err = toTransactionRow(invalid, time.Unix(0, 0))
	require.NoError(t, err)
	m, _, err = row.Save()
	require.NoError(t, err)
	assert.Nil(t, m["transaction_date"])
	assert.Nil(t, m["amount"])
	assert.JSONEq(t, `[{"field":"amount","message":"Amount must be a valid number","code":"invalid_number"}]`, m["validation_errors"].(string))
}

func TestTransactionReadRow(t *testing.T) {
	row := &transactionReadRow{
		TransactionID:   "t1",
		UploadID:        "u1",
		RowNumber:       4,
		TransactionDate: bigquery.NullDate{Date: civil.Date{Year: 2024, Month: time.March, Day: 2}, Valid: true},
		AmountText:      bigquery.NullString{StringVal: "15000", Valid: true},
		Category:        bigquery.NullString{StringVal: "Travel", Valid: true},
		IsValid:         true,
		HasWarnings:     true,
		Warnings:        bigquery.NullJSON{JSONVal: `[{"row":4,"code":"UNUSUAL_AMOUNT","severity":"INFO","message":"big"}]`, Valid: true},
		RawData:         bigquery.NullJSON{JSONVal: `{"date":"2024-03-02","amount":"15000"}`, Valid: true},
	}

	tx, err := row.toRecord()
	require.NoError(t, err)
	assert.Equal(t, "2024-03-02", *tx.Date)
	assert.True(t, tx.Amount.Decimal.Equal(decimal.NewFromInt(15000)))
	require.Len(t, tx.Warnings, 1)
	assert.Equal(t, rules.CodeUnusualAmount, tx.Warnings[0].Code)
	assert.Equal(t, []string{"date", "amount"}, []string{tx.RawData.Fields[0].Name, tx.RawData.Fields[1].Name})

	row.AmountText = bigquery.NullString{StringVal: "not a number", Valid: true}
	_, err = row.toRecord()
	assert.Error(t, err)
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError("op", nil))
	assert.ErrorIs(t, mapError("op", records.ErrNotFound), records.ErrNotFound)

	conflict := mapError("insert", &googleapi.Error{Code: http.StatusConflict})
	assert.True(t, apperrors.HasCode(conflict, apperrors.CodeConstraint))

	other := mapError("insert", errors.New("boom"))
	assert.True(t, apperrors.HasCode(other, apperrors.CodeStorage))
}
