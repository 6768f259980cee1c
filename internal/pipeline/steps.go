package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/csv-intake/internal/apperrors"
	"github.com/dvloznov/csv-intake/internal/csvparse"
	"github.com/dvloznov/csv-intake/internal/events"
	"github.com/dvloznov/csv-intake/internal/filegate"
	"github.com/dvloznov/csv-intake/internal/logger"
	"github.com/dvloznov/csv-intake/internal/rawstore"
	"github.com/dvloznov/csv-intake/internal/records"
	"github.com/dvloznov/csv-intake/internal/rules"
	"github.com/dvloznov/csv-intake/internal/stats"
	"github.com/dvloznov/csv-intake/internal/suggest"
	"github.com/dvloznov/csv-intake/internal/validation"
)

// Step 1: GateStep rejects files with a bad name, MIME type or size.
type GateStep struct {
	Config filegate.Config
}

func (s *GateStep) Execute(ctx context.Context, state *State) error {
	return filegate.Check(filegate.FileInfo{
		Filename: state.Filename,
		MimeType: state.MimeType,
		Size:     int64(len(state.Content)),
	}, s.Config)
}

// Step 2: StoreRawStep keeps the original bytes. It does nothing without a
// store or when the file is already stored.
type StoreRawStep struct {
	Store rawstore.Store
}

func (s *StoreRawStep) Execute(ctx context.Context, state *State) error {
	if s.Store == nil || state.StorageURI != "" {
		return nil
	}
	stored, err := s.Store.Save(ctx, state.Filename, state.Content)
	if err != nil {
		return storageError("save raw file", err)
	}
	state.Raw = &stored
	state.StorageURI = stored.URI
	return nil
}

// Step 3: ParseStep parses the content into a table.
type ParseStep struct {
	Config csvparse.Config
}

func (s *ParseStep) Execute(ctx context.Context, state *State) error {
	table, err := csvparse.Parse(state.Content, s.Config)
	if err != nil {
		return err
	}
	state.Table = table
	return nil
}

// Step 4: ColumnsStep aborts the upload when a required column is missing.
type ColumnsStep struct {
	Required []string
}

func (s *ColumnsStep) Execute(ctx context.Context, state *State) error {
	state.Columns = csvparse.ValidateColumns(state.Table, s.Required)
	if state.Columns.Valid {
		return nil
	}
	e := apperrors.MissingColumns(state.Columns.MissingColumns, state.Table.Columns)
	if len(e.Problems) > 0 {
		e.Problems[0].Suggestion = suggest.MissingColumns(s.Required, state.Table.Columns)
	}
	return e
}

// Step 5: ValidateRowsStep validates every row. Invalid rows are recorded,
// never fatal.
type ValidateRowsStep struct {
	Engine *validation.Engine
}

func (s *ValidateRowsStep) Execute(ctx context.Context, state *State) error {
	state.Results = s.Engine.ValidateRows(state.Table)
	state.Validation = validation.Summarize(state.Results)
	return nil
}

// Step 6: BusinessRulesStep flags suspicious valid rows.
type BusinessRulesStep struct {
	Engine *rules.Engine
}

func (s *BusinessRulesStep) Execute(ctx context.Context, state *State) error {
	state.Rules = s.Engine.Evaluate(state.Results)
	return nil
}

// Step 7: StatisticsStep aggregates the valid rows.
type StatisticsStep struct{}

func (s *StatisticsStep) Execute(ctx context.Context, state *State) error {
	state.Statistics = stats.Calculate(state.Results)
	return nil
}

// Step 8: PersistStep stores the upload and its rows, then sets the final
// status. A failed row insert leaves the upload marked failed.
type PersistStep struct {
	Repo records.Repository
}

func (s *PersistStep) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx).With().Str("upload_id", state.UploadID).Logger()

	u := &records.Upload{
		ID:               state.UploadID,
		Filename:         state.Filename,
		OriginalFilename: state.Filename,
		StorageURI:       state.StorageURI,
		FileSize:         int64(len(state.Content)),
		MimeType:         state.MimeType,
		Status:           records.StatusProcessing,
		ProcessingTimeMs: time.Since(state.ReceivedAt).Milliseconds(),
		CreatedAt:        state.ReceivedAt,
	}
	if state.Raw != nil {
		u.Filename = state.Raw.Filename
	}
	records.ApplyStatistics(u, state.Statistics, state.Rules.Stats.TotalWarnings)

	if err := s.Repo.CreateUpload(ctx, u); err != nil {
		return storageError("create upload", err)
	}
	state.Recorded = true

	txs := records.BuildTransactions(u.ID, state.Results, rules.WarningsByRow(state.Rules))
	if err := s.Repo.InsertTransactions(ctx, txs); err != nil {
		if uerr := s.Repo.UpdateUploadStatus(ctx, u.ID, records.StatusFailed, err.Error()); uerr != nil {
			log.Error().Err(uerr).Msg("failed to mark upload failed")
		}
		return storageError("insert transactions", err)
	}

	final := records.FinalStatus(u.ValidRows, u.InvalidRows)
	if err := s.Repo.UpdateUploadStatus(ctx, u.ID, final, ""); err != nil {
		return storageError("update upload status", err)
	}
	u.Status = final
	state.Upload = u

	log.Info().
		Str("status", string(final)).
		Int("rows", len(txs)).
		Msg("upload persisted")
	return nil
}

// Step 9: PublishStep announces the processed upload. Publishing failures
// are logged and do not fail the upload.
type PublishStep struct {
	Publisher events.Publisher
}

func (s *PublishStep) Execute(ctx context.Context, state *State) error {
	if s.Publisher == nil || state.Upload == nil {
		return nil
	}
	u := state.Upload
	msg := &events.UploadProcessedMessage{
		UploadID:    u.ID,
		Filename:    u.OriginalFilename,
		Status:      string(u.Status),
		TotalRows:   u.TotalRows,
		ValidRows:   u.ValidRows,
		InvalidRows: u.InvalidRows,
		Warnings:    u.TotalWarnings,
		StorageURI:  u.StorageURI,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.Publisher.PublishUploadProcessed(ctx, msg); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("upload_id", u.ID).Msg("failed to publish upload event")
	}
	return nil
}

// storageError keeps taxonomy errors from the backends and classifies the
// rest as storage faults.
func storageError(op string, err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.Storage(op, err)
}
