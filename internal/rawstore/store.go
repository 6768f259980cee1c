// Package rawstore keeps the original bytes of every accepted upload so it
// can be reprocessed later.
package rawstore

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stored describes a saved file.
type Stored struct {
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"originalFilename"`
	URI              string    `json:"uri"`
	Size             int64     `json:"size"`
	SavedAt          time.Time `json:"savedAt"`
}

// Store saves and fetches raw upload content.
type Store interface {
	Save(ctx context.Context, originalName string, data []byte) (Stored, error)
	Fetch(ctx context.Context, uri string) ([]byte, error)
	Delete(ctx context.Context, uri string) error
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// UniqueName builds <base>_<unixms>_<uuid><ext> from an uploaded filename.
// Characters outside [a-zA-Z0-9_-] in the base are replaced with '_'.
func UniqueName(original string, now time.Time) string {
	name := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	if name == "." || name == "/" {
		name = ""
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		base = "upload"
	}
	base = unsafeChars.ReplaceAllString(base, "_")
	ext = unsafeChars.ReplaceAllString(strings.TrimPrefix(ext, "."), "_")
	if ext != "" {
		ext = "." + ext
	}
	return fmt.Sprintf("%s_%d_%s%s", base, now.UnixMilli(), uuid.NewString(), ext)
}

// ParseGCSURI splits gs://bucket/object into its parts.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI returns the last path element of a storage URI,
// e.g. "gs://bucket/uploads/2024/01/02/tx.csv" → "tx.csv".
func FilenameFromURI(uri string) string {
	trimmed := uri
	for _, scheme := range []string{"gs://", "file://"} {
		trimmed = strings.TrimPrefix(trimmed, scheme)
	}
	return path.Base(trimmed)
}
