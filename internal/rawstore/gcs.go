package rawstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/csv-intake/internal/apperrors"
)

const uploadTimeout = 2 * time.Minute

// GCSStore keeps raw files in a Cloud Storage bucket under
// uploads/YYYY/MM/DD/. It assumes Application Default Credentials.
type GCSStore struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

var _ Store = (*GCSStore)(nil)

// NewGCSStore creates a storage client for bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("NewGCSStore: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, now: time.Now}, nil
}

// Close closes the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// ObjectName returns the object path a file saved at t is written to.
func ObjectName(t time.Time, filename string) string {
	return path.Join("uploads", t.UTC().Format("2006/01/02"), filename)
}

func (s *GCSStore) Save(ctx context.Context, originalName string, data []byte) (Stored, error) {
	now := s.now()
	filename := UniqueName(originalName, now)
	object := ObjectName(now, filename)

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "text/csv"
	w.Metadata = map[string]string{"original_filename": originalName}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return Stored{}, apperrors.Storage("save raw file", fmt.Errorf("write to GCS writer: %w", err))
	}
	if err := w.Close(); err != nil {
		return Stored{}, apperrors.Storage("save raw file", fmt.Errorf("finalize upload: %w", err))
	}

	return Stored{
		Filename:         filename,
		OriginalFilename: originalName,
		URI:              fmt.Sprintf("gs://%s/%s", s.bucket, object),
		Size:             int64(len(data)),
		SavedAt:          now,
	}, nil
}

func (s *GCSStore) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, apperrors.NotFound("raw file", uri)
	}
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

func (s *GCSStore) Delete(ctx context.Context, uri string) error {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return err
	}
	err = s.client.Bucket(bucket).Object(object).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return apperrors.NotFound("raw file", uri)
	}
	if err != nil {
		return fmt.Errorf("Delete: %s: %w", uri, err)
	}
	return nil
}
