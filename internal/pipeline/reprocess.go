package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/csv-intake/internal/jobs"
	"github.com/dvloznov/csv-intake/internal/rawstore"
	"github.com/dvloznov/csv-intake/internal/records"
)

// NewReprocessHandler returns a job handler that fetches the raw file of an
// earlier upload and runs it through p again. The new upload id is recorded
// on the job.
func NewReprocessHandler(p *Processor, store rawstore.Store, repo records.Repository) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		j, ok := job.(*jobs.ReprocessUploadJob)
		if !ok {
			return fmt.Errorf("unsupported job type %q", job.GetType())
		}

		if j.StorageURI == "" || j.Filename == "" {
			u, err := repo.GetUpload(ctx, j.UploadID)
			if err != nil {
				return fmt.Errorf("Reprocess: loading upload %s: %w", j.UploadID, err)
			}
			if j.StorageURI == "" {
				j.StorageURI = u.StorageURI
			}
			if j.Filename == "" {
				j.Filename = u.OriginalFilename
			}
			if j.MimeType == "" {
				j.MimeType = u.MimeType
			}
		}
		if j.StorageURI == "" {
			return fmt.Errorf("Reprocess: upload %s has no stored raw file", j.UploadID)
		}

		content, err := store.Fetch(ctx, j.StorageURI)
		if err != nil {
			return fmt.Errorf("Reprocess: fetching %s: %w", j.StorageURI, err)
		}

		out, err := p.Process(ctx, Input{
			Filename:   j.Filename,
			MimeType:   j.MimeType,
			Content:    content,
			StorageURI: j.StorageURI,
		})
		if err != nil {
			return fmt.Errorf("Reprocess: processing upload %s: %w", j.UploadID, err)
		}
		if out.Persisted {
			j.ResultUploadID = out.State.UploadID
		}
		return nil
	}
}
