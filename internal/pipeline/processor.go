package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/csv-intake/internal/csvparse"
	"github.com/dvloznov/csv-intake/internal/dates"
	"github.com/dvloznov/csv-intake/internal/events"
	"github.com/dvloznov/csv-intake/internal/filegate"
	"github.com/dvloznov/csv-intake/internal/logger"
	"github.com/dvloznov/csv-intake/internal/rawstore"
	"github.com/dvloznov/csv-intake/internal/records"
	"github.com/dvloznov/csv-intake/internal/rules"
	"github.com/dvloznov/csv-intake/internal/schema"
	"github.com/dvloznov/csv-intake/internal/validation"
	"github.com/google/uuid"
)

// Options select the collaborators and settings of a Processor. Store, Repo
// and Publisher are optional; without Repo nothing is persisted.
type Options struct {
	Gate      filegate.Config
	CSV       csvparse.Config
	Dates     dates.Options
	Rules     rules.Options
	Required  []string
	Store     rawstore.Store
	Repo      records.Repository
	Publisher events.Publisher
}

// DefaultOptions returns the upload settings with no collaborators.
func DefaultOptions() Options {
	return Options{
		Gate:     filegate.DefaultConfig(),
		CSV:      csvparse.DefaultConfig(),
		Rules:    rules.DefaultOptions(),
		Required: csvparse.RequiredColumns,
	}
}

// Input is one file to process. StorageURI is set when the raw file is
// already stored.
type Input struct {
	Filename   string
	MimeType   string
	Content    []byte
	StorageURI string
}

// Outcome is what a run produced. State is filled up to the failing step.
type Outcome struct {
	State          *State
	Encoding       string
	ProcessingTime time.Duration
	Persisted      bool
}

// Processor runs the standard upload pipeline.
type Processor struct {
	opts     Options
	pipeline *Pipeline
}

// NewProcessor builds the pipeline described by opts.
func NewProcessor(opts Options) *Processor {
	if len(opts.Required) == 0 {
		opts.Required = csvparse.RequiredColumns
	}
	steps := []Step{
		&GateStep{Config: opts.Gate},
		&StoreRawStep{Store: opts.Store},
		&ParseStep{Config: opts.CSV},
		&ColumnsStep{Required: opts.Required},
		&ValidateRowsStep{Engine: validation.NewEngine(schema.New(schema.Options{Dates: opts.Dates}))},
		&BusinessRulesStep{Engine: rules.NewEngine(opts.Rules)},
		&StatisticsStep{},
	}
	if opts.Repo != nil {
		steps = append(steps, &PersistStep{Repo: opts.Repo})
	}
	if opts.Publisher != nil {
		steps = append(steps, &PublishStep{Publisher: opts.Publisher})
	}
	return &Processor{opts: opts, pipeline: NewPipeline(steps...)}
}

// discardRaw removes a raw file saved by this run when no upload record
// points at it. Files passed in through StorageURI are left alone.
func (p *Processor) discardRaw(ctx context.Context, state *State) {
	if p.opts.Store == nil || state.Raw == nil || state.Recorded {
		return
	}
	if err := p.opts.Store.Delete(context.WithoutCancel(ctx), state.Raw.URI); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("uri", state.Raw.URI).Msg("failed to discard raw file")
		return
	}
	state.Raw = nil
	state.StorageURI = ""
}

// Process runs in through the pipeline. The outcome is never nil; err is the
// first failure, classified in the apperrors taxonomy.
func (p *Processor) Process(ctx context.Context, in Input) (*Outcome, error) {
	state := &State{
		UploadID:   uuid.NewString(),
		Filename:   in.Filename,
		MimeType:   in.MimeType,
		Content:    in.Content,
		ReceivedAt: time.Now().UTC(),
		StorageURI: in.StorageURI,
	}
	encoding := p.opts.CSV.Encoding
	if encoding == "" {
		encoding = "utf-8"
	}

	log := logger.FromContext(ctx).With().
		Str("upload_id", state.UploadID).
		Str("filename", in.Filename).
		Logger()
	ctx = logger.WithContext(ctx, log)

	err := p.pipeline.Execute(ctx, state)
	out := &Outcome{
		State:          state,
		Encoding:       encoding,
		ProcessingTime: time.Since(state.ReceivedAt),
		Persisted:      state.Upload != nil,
	}
	if err != nil {
		log.Warn().Err(err).Msg("upload rejected")
		p.discardRaw(ctx, state)
		return out, err
	}

	log.Info().
		Int("total_rows", state.Validation.Total).
		Int("valid_rows", state.Validation.Valid).
		Int("invalid_rows", state.Validation.Invalid).
		Int("warnings", state.Rules.Stats.TotalWarnings).
		Dur("took", out.ProcessingTime).
		Msg("upload processed")
	return out, nil
}
