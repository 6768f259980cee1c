// Package records defines how uploads and their rows are persisted, along with
// the Repository contract the storage backends implement.
package records

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/csv-intake/internal/domain"
	"github.com/dvloznov/csv-intake/internal/rules"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested upload does not exist.
var ErrNotFound = errors.New("record not found")

// UploadStatus is the lifecycle state of an upload.
type UploadStatus string

const (
	StatusProcessing UploadStatus = "processing"
	StatusCompleted  UploadStatus = "completed"
	StatusPartial    UploadStatus = "partial"
	StatusFailed     UploadStatus = "failed"
)

// Upload is one received file and its summary figures.
type Upload struct {
	ID               string       `json:"id"`
	Filename         string       `json:"filename"`
	OriginalFilename string       `json:"originalFilename"`
	StorageURI       string       `json:"storageUri,omitempty"`
	FileSize         int64        `json:"fileSize"`
	MimeType         string       `json:"mimeType"`
	Status           UploadStatus `json:"status"`
	TotalRows        int          `json:"totalRows"`
	ValidRows        int          `json:"validRows"`
	InvalidRows      int          `json:"invalidRows"`
	ValidationRate   float64      `json:"validationRate"`
	TotalWarnings    int          `json:"totalWarnings"`
	EarliestDate     *string      `json:"earliestDate"`
	LatestDate       *string      `json:"latestDate"`
	TotalAmount      float64      `json:"totalAmount"`
	TotalIncome      float64      `json:"totalIncome"`
	TotalExpenses    float64      `json:"totalExpenses"`
	NetBalance       float64      `json:"netBalance"`
	ProcessingTimeMs int64        `json:"processingTimeMs"`
	ErrorMessage     string       `json:"errorMessage,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// Transaction is one stored row, valid or not. Date and Amount are empty for
// rows whose values failed validation.
type Transaction struct {
	ID               string              `json:"id"`
	UploadID         string              `json:"uploadId"`
	RowNumber        int                 `json:"rowNumber"`
	Date             *string             `json:"date"`
	Amount           decimal.NullDecimal `json:"amount"`
	Category         string              `json:"category,omitempty"`
	Description      string              `json:"description,omitempty"`
	IsValid          bool                `json:"isValid"`
	ValidationErrors []domain.FieldError `json:"validationErrors,omitempty"`
	HasWarnings      bool                `json:"hasWarnings"`
	Warnings         []rules.Warning     `json:"warnings,omitempty"`
	RawData          domain.RawRow       `json:"rawData"`
}

// Repository persists uploads and their transactions.
type Repository interface {
	// CreateUpload stores a new upload record.
	CreateUpload(ctx context.Context, u *Upload) error

	// InsertTransactions stores the rows of an upload.
	InsertTransactions(ctx context.Context, txs []*Transaction) error

	// UpdateUploadStatus sets the status and error message of an upload.
	UpdateUploadStatus(ctx context.Context, id string, status UploadStatus, message string) error

	// GetUpload returns one upload or ErrNotFound.
	GetUpload(ctx context.Context, id string) (*Upload, error)

	// ListUploads returns the most recent uploads, newest first.
	ListUploads(ctx context.Context, limit int) ([]*Upload, error)

	// ListTransactions returns the rows of an upload in row order.
	ListTransactions(ctx context.Context, uploadID string) ([]*Transaction, error)

	// DeleteUpload removes an upload and its transactions.
	DeleteUpload(ctx context.Context, id string) error

	Close() error
}

// FinalStatus derives the status of a processed upload from its row counts.
func FinalStatus(valid, invalid int) UploadStatus {
	switch {
	case valid == 0:
		return StatusFailed
	case invalid == 0:
		return StatusCompleted
	default:
		return StatusPartial
	}
}
