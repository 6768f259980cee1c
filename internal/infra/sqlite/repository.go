// Package sqlite stores uploads and their transactions in a local SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/csv-intake/internal/apperrors"
	"github.com/dvloznov/csv-intake/internal/domain"
	"github.com/dvloznov/csv-intake/internal/logger"
	"github.com/dvloznov/csv-intake/internal/records"
	"github.com/dvloznov/csv-intake/internal/rules"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Fixed-width so lexical order on created_at matches time order.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Repository implements records.Repository on SQLite.
type Repository struct {
	db *sql.DB
}

var _ records.Repository = (*Repository)(nil)

// NewRepository opens (creating if needed) the database at dbPath and applies
// pending migrations.
func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const uploadColumns = `id, filename, original_filename, storage_uri, file_size, mime_type,
	status, total_rows, valid_rows, invalid_rows, validation_rate, total_warnings,
	earliest_date, latest_date, total_amount, total_income, total_expenses,
	net_balance, processing_time_ms, error_message, created_at`

func (r *Repository) CreateUpload(ctx context.Context, u *records.Upload) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO uploads (`+uploadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Filename, u.OriginalFilename, nullText(u.StorageURI), u.FileSize, u.MimeType,
		string(u.Status), u.TotalRows, u.ValidRows, u.InvalidRows, u.ValidationRate, u.TotalWarnings,
		u.EarliestDate, u.LatestDate, u.TotalAmount, u.TotalIncome, u.TotalExpenses,
		u.NetBalance, u.ProcessingTimeMs, nullText(u.ErrorMessage), u.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return mapError("create upload", err)
	}
	return nil
}

// InsertTransactions writes all rows in one transaction, so either every row
// of the batch is stored or none is.
func (r *Repository) InsertTransactions(ctx context.Context, txs []*records.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO transactions (
		id, upload_id, row_number, date, amount, category, description,
		is_valid, validation_errors, has_warnings, warnings, raw_data, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return mapError("prepare insert", err)
	}
	defer stmt.Close()

	created := time.Now().UTC().Format(timeLayout)
	for _, t := range txs {
		errs, err := jsonText(t.ValidationErrors, len(t.ValidationErrors) > 0)
		if err != nil {
			return fmt.Errorf("InsertTransactions: row %d validation errors: %w", t.RowNumber, err)
		}
		warns, err := jsonText(t.Warnings, len(t.Warnings) > 0)
		if err != nil {
			return fmt.Errorf("InsertTransactions: row %d warnings: %w", t.RowNumber, err)
		}
		raw, err := json.Marshal(t.RawData)
		if err != nil {
			return fmt.Errorf("InsertTransactions: row %d raw data: %w", t.RowNumber, err)
		}

		var amount sql.NullString
		if t.Amount.Valid {
			amount = sql.NullString{String: t.Amount.Decimal.String(), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			t.ID, t.UploadID, t.RowNumber, t.Date, amount, nullText(t.Category), nullText(t.Description),
			t.IsValid, errs, t.HasWarnings, warns, string(raw), created,
		); err != nil {
			return mapError("insert transaction", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return mapError("commit", err)
	}
	return nil
}

func (r *Repository) UpdateUploadStatus(ctx context.Context, id string, status records.UploadStatus, message string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE uploads SET status = ?, error_message = ? WHERE id = ?`,
		string(status), nullText(message), id,
	)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("upload_id", id).Str("status", string(status)).Msg("UpdateUploadStatus: update failed")
		return mapError("update upload status", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return records.ErrNotFound
	}
	return nil
}

func (r *Repository) GetUpload(ctx context.Context, id string) (*records.Upload, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = ?`, id)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, records.ErrNotFound
	}
	if err != nil {
		return nil, mapError("get upload", err)
	}
	return u, nil
}

func (r *Repository) ListUploads(ctx context.Context, limit int) ([]*records.Upload, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+uploadColumns+` FROM uploads ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, mapError("list uploads", err)
	}
	defer rows.Close()

	var out []*records.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, mapError("list uploads", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list uploads", err)
	}
	return out, nil
}

func (r *Repository) ListTransactions(ctx context.Context, uploadID string) ([]*records.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT
		id, upload_id, row_number, date, amount, category, description,
		is_valid, validation_errors, has_warnings, warnings, raw_data
		FROM transactions WHERE upload_id = ? ORDER BY row_number`, uploadID)
	if err != nil {
		return nil, mapError("list transactions", err)
	}
	defer rows.Close()

	var out []*records.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list transactions", err)
	}
	return out, nil
}

// DeleteUpload relies on ON DELETE CASCADE to remove the transactions.
func (r *Repository) DeleteUpload(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, id)
	if err != nil {
		return mapError("delete upload", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return records.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(s scanner) (*records.Upload, error) {
	var (
		u                      records.Upload
		status, created        string
		storageURI, errMessage sql.NullString
		earliest, latest       sql.NullString
	)
	err := s.Scan(
		&u.ID, &u.Filename, &u.OriginalFilename, &storageURI, &u.FileSize, &u.MimeType,
		&status, &u.TotalRows, &u.ValidRows, &u.InvalidRows, &u.ValidationRate, &u.TotalWarnings,
		&earliest, &latest, &u.TotalAmount, &u.TotalIncome, &u.TotalExpenses,
		&u.NetBalance, &u.ProcessingTimeMs, &errMessage, &created,
	)
	if err != nil {
		return nil, err
	}
	u.Status = records.UploadStatus(status)
	u.StorageURI = storageURI.String
	u.ErrorMessage = errMessage.String
	u.EarliestDate = stringPtr(earliest)
	u.LatestDate = stringPtr(latest)
	if u.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("created_at %q: %w", created, err)
	}
	return &u, nil
}

func scanTransaction(s scanner) (*records.Transaction, error) {
	var (
		t                               records.Transaction
		date, amount, category, desc    sql.NullString
		validationErrors, warnings, raw sql.NullString
	)
	err := s.Scan(
		&t.ID, &t.UploadID, &t.RowNumber, &date, &amount, &category, &desc,
		&t.IsValid, &validationErrors, &t.HasWarnings, &warnings, &raw,
	)
	if err != nil {
		return nil, err
	}
	t.Date = stringPtr(date)
	t.Category = category.String
	t.Description = desc.String
	if amount.Valid {
		d, err := decimal.NewFromString(amount.String)
		if err != nil {
			return nil, fmt.Errorf("row %d amount %q: %w", t.RowNumber, amount.String, err)
		}
		t.Amount = decimal.NewNullDecimal(d)
	}
	if validationErrors.Valid {
		var errs []domain.FieldError
		if err := json.Unmarshal([]byte(validationErrors.String), &errs); err != nil {
			return nil, fmt.Errorf("row %d validation errors: %w", t.RowNumber, err)
		}
		t.ValidationErrors = errs
	}
	if warnings.Valid {
		var ws []rules.Warning
		if err := json.Unmarshal([]byte(warnings.String), &ws); err != nil {
			return nil, fmt.Errorf("row %d warnings: %w", t.RowNumber, err)
		}
		t.Warnings = ws
	}
	if raw.Valid {
		if err := json.Unmarshal([]byte(raw.String), &t.RawData); err != nil {
			return nil, fmt.Errorf("row %d raw data: %w", t.RowNumber, err)
		}
	}
	return &t, nil
}

// mapError classifies SQLite failures by their SQL state equivalent.
func mapError(op string, err error) error {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return apperrors.FromSQLState(apperrors.SQLStateForeignKey, err)
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return apperrors.FromSQLState(apperrors.SQLStateUnique, err)
		case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return apperrors.FromSQLState(apperrors.SQLStateCheck, err)
		}
	}
	return apperrors.Storage(op, err)
}

func nullText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func jsonText(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
