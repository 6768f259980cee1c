// Package pipeline runs an uploaded CSV file through gating, parsing, row
// validation, business rules and statistics, then persists and announces
// the result.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/csv-intake/internal/csvparse"
	"github.com/dvloznov/csv-intake/internal/domain"
	"github.com/dvloznov/csv-intake/internal/logger"
	"github.com/dvloznov/csv-intake/internal/rawstore"
	"github.com/dvloznov/csv-intake/internal/records"
	"github.com/dvloznov/csv-intake/internal/rules"
	"github.com/dvloznov/csv-intake/internal/stats"
	"github.com/dvloznov/csv-intake/internal/validation"
)

// Step is a single stage of the upload pipeline.
type Step interface {
	Execute(ctx context.Context, state *State) error
}

// State holds what the steps share. Steps fill it in order; a field set by a
// later step is zero when an earlier step fails.
type State struct {
	UploadID   string
	Filename   string
	MimeType   string
	Content    []byte
	ReceivedAt time.Time

	// StorageURI points at the raw file. Reprocessing sets it up front so
	// the file is not stored twice.
	StorageURI string
	Raw        *rawstore.Stored

	Table      *csvparse.Table
	Columns    csvparse.ColumnCheck
	Results    []domain.RowResult
	Validation validation.Stats
	Rules      rules.Result
	Statistics stats.Statistics
	Upload     *records.Upload

	// Recorded is set once an upload record references the raw file.
	Recorded bool
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)
	for i, step := range p.steps {
		start := time.Now()
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
		log.Debug().
			Str("upload_id", state.UploadID).
			Int("step", i+1).
			Str("name", stepName(step)).
			Dur("took", time.Since(start)).
			Msg("pipeline step done")
	}
	return nil
}

func stepName(s Step) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", s), "*pipeline.")
}
