package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/csv-intake/internal/logger"
	"github.com/dvloznov/csv-intake/internal/records"
	"google.golang.org/api/iterator"
)

const uploadColumns = `
	upload_id, filename, original_filename, storage_uri, file_size, mime_type,
	status, total_rows, valid_rows, invalid_rows, validation_rate,
	total_warnings, earliest_date, latest_date, total_amount, total_income,
	total_expenses, net_balance, processing_time_ms, error_message, created_ts`

// maxErrorMessageLen bounds error_message the same way for every writer.
const maxErrorMessageLen = 2000

// CreateUploadWithClient inserts one upload. It uses a DML INSERT instead of
// a streaming insert so the status can be updated right after.
func CreateUploadWithClient(ctx context.Context, client *bigquery.Client, dataset string, u *records.Upload) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	row := toUploadRow(u)

	q := client.Query(fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (
			@upload_id, @filename, @original_filename, @storage_uri, @file_size, @mime_type,
			@status, @total_rows, @valid_rows, @invalid_rows, @validation_rate,
			@total_warnings, @earliest_date, @latest_date, @total_amount, @total_income,
			@total_expenses, @net_balance, @processing_time_ms, @error_message, @created_ts
		)
	`, tableRef(dataset, uploadsTable), uploadColumns))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "upload_id", Value: row.UploadID},
		{Name: "filename", Value: row.Filename},
		{Name: "original_filename", Value: row.OriginalFilename},
		{Name: "storage_uri", Value: row.StorageURI},
		{Name: "file_size", Value: row.FileSize},
		{Name: "mime_type", Value: row.MimeType},
		{Name: "status", Value: row.Status},
		{Name: "total_rows", Value: row.TotalRows},
		{Name: "valid_rows", Value: row.ValidRows},
		{Name: "invalid_rows", Value: row.InvalidRows},
		{Name: "validation_rate", Value: row.ValidationRate},
		{Name: "total_warnings", Value: row.TotalWarnings},
		{Name: "earliest_date", Value: row.EarliestDate},
		{Name: "latest_date", Value: row.LatestDate},
		{Name: "total_amount", Value: row.TotalAmount},
		{Name: "total_income", Value: row.TotalIncome},
		{Name: "total_expenses", Value: row.TotalExpenses},
		{Name: "net_balance", Value: row.NetBalance},
		{Name: "processing_time_ms", Value: row.ProcessingTimeMs},
		{Name: "error_message", Value: row.ErrorMessage},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	return runDML(ctx, q, "CreateUpload")
}

// UpdateUploadStatusWithClient sets status and error_message of an upload.
func UpdateUploadStatusWithClient(ctx context.Context, client *bigquery.Client, dataset, id string, status records.UploadStatus, message string) error {
	if len(message) > maxErrorMessageLen {
		message = message[:maxErrorMessageLen]
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    error_message = @error_message
		WHERE upload_id = @upload_id
	`, tableRef(dataset, uploadsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(status)},
		{Name: "error_message", Value: nullString(message)},
		{Name: "upload_id", Value: id},
	}

	if err := runDML(ctx, q, "UpdateUploadStatus"); err != nil {
		log := logger.FromContext(ctx)
		log.Error().
			Err(err).
			Str("upload_id", id).
			Str("status", string(status)).
			Msg("UpdateUploadStatus: update failed")
		return err
	}
	return nil
}

// GetUploadWithClient returns one upload or records.ErrNotFound.
func GetUploadWithClient(ctx context.Context, client *bigquery.Client, dataset, id string) (*records.Upload, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE upload_id = @upload_id
		LIMIT 1
	`, uploadColumns, tableRef(dataset, uploadsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "upload_id", Value: id},
	}

	uploads, err := readUploads(ctx, q, "GetUpload")
	if err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, records.ErrNotFound
	}
	return uploads[0], nil
}

// ListUploadsWithClient returns up to limit uploads, newest first.
func ListUploadsWithClient(ctx context.Context, client *bigquery.Client, dataset string, limit int) ([]*records.Upload, error) {
	if limit <= 0 {
		limit = 50
	}
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY created_ts DESC
		LIMIT @limit
	`, uploadColumns, tableRef(dataset, uploadsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	return readUploads(ctx, q, "ListUploads")
}

func readUploads(ctx context.Context, q *bigquery.Query, op string) ([]*records.Upload, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: executing query: %w", op, err)
	}

	var out []*records.Upload
	for {
		var row UploadRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: reading row: %w", op, err)
		}
		out = append(out, row.toRecord())
	}
	return out, nil
}

// DeleteUploadWithClient removes an upload's transactions first, then the
// upload itself.
func DeleteUploadWithClient(ctx context.Context, client *bigquery.Client, dataset, id string) error {
	for _, table := range []string{transactionsTable, uploadsTable} {
		q := client.Query(fmt.Sprintf(`
			DELETE FROM %s
			WHERE upload_id = @upload_id
		`, tableRef(dataset, table)))
		q.Parameters = []bigquery.QueryParameter{
			{Name: "upload_id", Value: id},
		}
		if err := runDML(ctx, q, "DeleteUpload"); err != nil {
			return fmt.Errorf("deleting from %s: %w", table, err)
		}
	}
	return nil
}
