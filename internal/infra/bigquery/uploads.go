package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/csv-intake/internal/records"
)

// UploadRow mirrors one row of the uploads table.
type UploadRow struct {
	UploadID         string              `bigquery:"upload_id"`         // REQUIRED
	Filename         string              `bigquery:"filename"`          // REQUIRED
	OriginalFilename string              `bigquery:"original_filename"` // REQUIRED
	StorageURI       bigquery.NullString `bigquery:"storage_uri"`       // NULLABLE
	FileSize         int64               `bigquery:"file_size"`
	MimeType         string              `bigquery:"mime_type"`
	Status           string              `bigquery:"status"` // processing|completed|partial|failed

	TotalRows      int64   `bigquery:"total_rows"`
	ValidRows      int64   `bigquery:"valid_rows"`
	InvalidRows    int64   `bigquery:"invalid_rows"`
	ValidationRate float64 `bigquery:"validation_rate"`
	TotalWarnings  int64   `bigquery:"total_warnings"`

	EarliestDate bigquery.NullDate `bigquery:"earliest_date"` // NULLABLE
	LatestDate   bigquery.NullDate `bigquery:"latest_date"`   // NULLABLE

	TotalAmount   float64 `bigquery:"total_amount"`
	TotalIncome   float64 `bigquery:"total_income"`
	TotalExpenses float64 `bigquery:"total_expenses"`
	NetBalance    float64 `bigquery:"net_balance"`

	ProcessingTimeMs int64               `bigquery:"processing_time_ms"`
	ErrorMessage     bigquery.NullString `bigquery:"error_message"` // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"`
}

func toUploadRow(u *records.Upload) *UploadRow {
	return &UploadRow{
		UploadID:         u.ID,
		Filename:         u.Filename,
		OriginalFilename: u.OriginalFilename,
		StorageURI:       nullString(u.StorageURI),
		FileSize:         u.FileSize,
		MimeType:         u.MimeType,
		Status:           string(u.Status),
		TotalRows:        int64(u.TotalRows),
		ValidRows:        int64(u.ValidRows),
		InvalidRows:      int64(u.InvalidRows),
		ValidationRate:   u.ValidationRate,
		TotalWarnings:    int64(u.TotalWarnings),
		EarliestDate:     nullDate(u.EarliestDate),
		LatestDate:       nullDate(u.LatestDate),
		TotalAmount:      u.TotalAmount,
		TotalIncome:      u.TotalIncome,
		TotalExpenses:    u.TotalExpenses,
		NetBalance:       u.NetBalance,
		ProcessingTimeMs: u.ProcessingTimeMs,
		ErrorMessage:     nullString(u.ErrorMessage),
		CreatedTS:        u.CreatedAt,
	}
}

func (row *UploadRow) toRecord() *records.Upload {
	return &records.Upload{
		ID:               row.UploadID,
		Filename:         row.Filename,
		OriginalFilename: row.OriginalFilename,
		StorageURI:       row.StorageURI.StringVal,
		FileSize:         row.FileSize,
		MimeType:         row.MimeType,
		Status:           records.UploadStatus(row.Status),
		TotalRows:        int(row.TotalRows),
		ValidRows:        int(row.ValidRows),
		InvalidRows:      int(row.InvalidRows),
		ValidationRate:   row.ValidationRate,
		TotalWarnings:    int(row.TotalWarnings),
		EarliestDate:     dateString(row.EarliestDate),
		LatestDate:       dateString(row.LatestDate),
		TotalAmount:      row.TotalAmount,
		TotalIncome:      row.TotalIncome,
		TotalExpenses:    row.TotalExpenses,
		NetBalance:       row.NetBalance,
		ProcessingTimeMs: row.ProcessingTimeMs,
		ErrorMessage:     row.ErrorMessage.StringVal,
		CreatedAt:        row.CreatedTS,
	}
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

// nullDate converts an ISO date. Values that do not parse are stored as NULL.
func nullDate(s *string) bigquery.NullDate {
	if s == nil {
		return bigquery.NullDate{}
	}
	d, err := civil.ParseDate(*s)
	if err != nil {
		return bigquery.NullDate{}
	}
	return bigquery.NullDate{Date: d, Valid: true}
}

func dateString(d bigquery.NullDate) *string {
	if !d.Valid {
		return nil
	}
	s := d.Date.String()
	return &s
}
