package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/csv-intake/internal/records"
	"google.golang.org/api/iterator"
)

// InsertTransactionsWithClient streams the rows of an upload into the
// transactions table in batches.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, dataset string, txs []*records.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	created := time.Now().UTC()
	rows := make([]*TransactionRow, 0, len(txs))
	for _, tx := range txs {
		row, err := toTransactionRow(tx, created)
		if err != nil {
			return fmt.Errorf("InsertTransactions: converting row: %w", err)
		}
		rows = append(rows, row)
	}

	inserter := client.Dataset(dataset).Table(transactionsTable).Inserter()
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("InsertTransactions: inserting rows %d-%d: %w", start+1, end, err)
		}
	}
	return nil
}

// ListTransactionsWithClient returns the rows of an upload ordered by row
// number.
func ListTransactionsWithClient(ctx context.Context, client *bigquery.Client, dataset, uploadID string) ([]*records.Transaction, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			transaction_id, upload_id, row_number, transaction_date,
			CAST(amount AS STRING) AS amount_text,
			category, description, is_valid, validation_errors,
			has_warnings, warnings, raw_data
		FROM %s
		WHERE upload_id = @upload_id
		ORDER BY row_number
	`, tableRef(dataset, transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "upload_id", Value: uploadID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: executing query: %w", err)
	}

	var out []*records.Transaction
	for {
		var row transactionReadRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: reading row: %w", err)
		}
		tx, err := row.toRecord()
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: row %d: %w", row.RowNumber, err)
		}
		out = append(out, tx)
	}
	return out, nil
}
