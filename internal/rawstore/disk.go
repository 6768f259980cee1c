package rawstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/csv-intake/internal/apperrors"
)

const fileScheme = "file://"

// DiskStore keeps raw files in a local directory.
type DiskStore struct {
	dir string
	now func() time.Time
}

var _ Store = (*DiskStore)(nil)

// NewDiskStore uses dir, creating it when missing.
func NewDiskStore(dir string) (*DiskStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("NewDiskStore: resolve %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, apperrors.Storage("create uploads directory", err).WithDetail("directory", abs)
	}
	return &DiskStore{dir: abs, now: time.Now}, nil
}

// Dir returns the absolute storage directory.
func (s *DiskStore) Dir() string {
	return s.dir
}

func (s *DiskStore) Save(ctx context.Context, originalName string, data []byte) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}

	now := s.now()
	filename := UniqueName(originalName, now)
	full := filepath.Join(s.dir, filename)

	if err := os.WriteFile(full, data, 0o644); err != nil {
		_ = os.Remove(full)
		return Stored{}, writeError(err, originalName)
	}

	return Stored{
		Filename:         filename,
		OriginalFilename: originalName,
		URI:              fileScheme + full,
		Size:             int64(len(data)),
		SavedAt:          now,
	}, nil
}

func writeError(err error, filename string) error {
	var reason string
	switch {
	case errors.Is(err, syscall.ENOSPC):
		reason = "disk is full"
	case errors.Is(err, fs.ErrPermission):
		reason = "permission denied"
	default:
		reason = "write failed"
	}
	return apperrors.Storage("save raw file", err).
		WithDetail("filename", filename).
		WithDetail("reason", reason)
}

// pathFor maps a file:// URI back to a path inside the store directory.
func (s *DiskStore) pathFor(uri string) (string, error) {
	if !strings.HasPrefix(uri, fileScheme) {
		return "", fmt.Errorf("invalid file URI: %s", uri)
	}
	p := filepath.Clean(strings.TrimPrefix(uri, fileScheme))
	if filepath.Dir(p) != s.dir {
		return "", fmt.Errorf("file URI outside storage directory: %s", uri)
	}
	return p, nil
}

func (s *DiskStore) Fetch(ctx context.Context, uri string) ([]byte, error) {
	p, err := s.pathFor(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.NotFound("raw file", filepath.Base(p))
	}
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	return data, nil
}

func (s *DiskStore) Delete(ctx context.Context, uri string) error {
	p, err := s.pathFor(uri)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return apperrors.NotFound("raw file", filepath.Base(p))
	}
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// CleanupOlderThan removes files whose modification time is more than age
// ago and returns how many were removed. Dotfiles and README.md are kept;
// files that cannot be inspected or removed are skipped.
func (s *DiskStore) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, apperrors.Storage("clean up raw files", err)
	}

	cutoff := s.now().Add(-age)
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		name := e.Name()
		if e.IsDir() || name == "README.md" || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, name)); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
