// Package bigquery stores uploads and their transactions in BigQuery.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/csv-intake/internal/apperrors"
	"github.com/dvloznov/csv-intake/internal/records"
	"google.golang.org/api/googleapi"
)

const (
	uploadsTable      = "uploads"
	transactionsTable = "transactions"

	// BigQuery rejects streaming inserts above this many rows per request.
	insertBatchSize = 500
)

// Config selects the dataset the repository writes to.
type Config struct {
	ProjectID string
	DatasetID string
}

// Repository implements records.Repository on top of a shared BigQuery
// client.
type Repository struct {
	client  *bigquery.Client
	dataset string
}

var _ records.Repository = (*Repository)(nil)

// NewRepository creates a BigQuery client for cfg.ProjectID.
func NewRepository(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.ProjectID == "" || cfg.DatasetID == "" {
		return nil, errors.New("NewRepository: project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, cfg.DatasetID), nil
}

// NewRepositoryWithClient wraps an existing client.
func NewRepositoryWithClient(client *bigquery.Client, dataset string) *Repository {
	return &Repository{client: client, dataset: dataset}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Repository) CreateUpload(ctx context.Context, u *records.Upload) error {
	return mapError("create upload", CreateUploadWithClient(ctx, r.client, r.dataset, u))
}

func (r *Repository) InsertTransactions(ctx context.Context, txs []*records.Transaction) error {
	return mapError("insert transactions", InsertTransactionsWithClient(ctx, r.client, r.dataset, txs))
}

func (r *Repository) UpdateUploadStatus(ctx context.Context, id string, status records.UploadStatus, message string) error {
	return mapError("update upload status", UpdateUploadStatusWithClient(ctx, r.client, r.dataset, id, status, message))
}

func (r *Repository) GetUpload(ctx context.Context, id string) (*records.Upload, error) {
	u, err := GetUploadWithClient(ctx, r.client, r.dataset, id)
	if err != nil {
		return nil, mapError("get upload", err)
	}
	return u, nil
}

func (r *Repository) ListUploads(ctx context.Context, limit int) ([]*records.Upload, error) {
	us, err := ListUploadsWithClient(ctx, r.client, r.dataset, limit)
	if err != nil {
		return nil, mapError("list uploads", err)
	}
	return us, nil
}

func (r *Repository) ListTransactions(ctx context.Context, uploadID string) ([]*records.Transaction, error) {
	txs, err := ListTransactionsWithClient(ctx, r.client, r.dataset, uploadID)
	if err != nil {
		return nil, mapError("list transactions", err)
	}
	return txs, nil
}

func (r *Repository) DeleteUpload(ctx context.Context, id string) error {
	if _, err := r.GetUpload(ctx, id); err != nil {
		return err
	}
	return mapError("delete upload", DeleteUploadWithClient(ctx, r.client, r.dataset, id))
}

// mapError translates BigQuery API failures into the error taxonomy.
// records.ErrNotFound passes through untouched.
func mapError(op string, err error) error {
	if err == nil || errors.Is(err, records.ErrNotFound) {
		return err
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return apperrors.FromSQLState(apperrors.SQLStateUnique, err)
	}
	return apperrors.Storage(op, err)
}

func tableRef(dataset, table string) string {
	return fmt.Sprintf("`%s.%s`", dataset, table)
}

// runDML runs a statement and waits for it to finish.
func runDML(ctx context.Context, q *bigquery.Query, op string) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running query: %w", op, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%s: job error: %w", op, err)
	}
	return nil
}
