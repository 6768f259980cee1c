// Package filegate decides whether an uploaded file may enter the pipeline.
package filegate

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dvloznov/csv-intake/internal/apperrors"
)

// DefaultMaxSize is the largest accepted upload, 10 MiB.
const DefaultMaxSize int64 = 10 * 1024 * 1024

// Config lists what the gate accepts.
type Config struct {
	MaxSizeBytes      int64
	AllowedExtensions []string
	AllowedMimeTypes  []string
}

// DefaultConfig accepts .csv files up to 10 MiB sent with any of the MIME
// types browsers and HTTP clients commonly use for CSV.
func DefaultConfig() Config {
	return Config{
		MaxSizeBytes:      DefaultMaxSize,
		AllowedExtensions: []string{".csv"},
		AllowedMimeTypes: []string{
			"text/csv",
			"application/csv",
			"application/vnd.ms-excel",
			"application/octet-stream",
		},
	}
}

// FileInfo describes an upload before its content is parsed.
type FileInfo struct {
	Filename string
	MimeType string
	Size     int64
}

// Check returns nil when f passes every rule. Otherwise the returned
// *apperrors.Error carries the first failure's code and lists every failure
// in Problems.
func Check(f FileInfo, cfg Config) error {
	if f.Filename == "" && f.Size == 0 {
		return apperrors.NoFile()
	}

	var failures []*apperrors.Error

	ext := strings.ToLower(filepath.Ext(f.Filename))
	if !slices.Contains(cfg.AllowedExtensions, ext) {
		failures = append(failures, apperrors.InvalidExtension(f.Filename, ext, cfg.AllowedExtensions))
	}

	mediaType := normalizeMimeType(f.MimeType)
	if !slices.Contains(cfg.AllowedMimeTypes, mediaType) {
		failures = append(failures, apperrors.InvalidMimeType(f.Filename, mediaType, cfg.AllowedMimeTypes))
	}

	if cfg.MaxSizeBytes > 0 && f.Size > cfg.MaxSizeBytes {
		failures = append(failures, apperrors.FileTooLarge(cfg.MaxSizeBytes, f.Size).WithDetail("filename", f.Filename))
	}

	return combine(failures)
}

func normalizeMimeType(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "application/octet-stream"
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return mediaType
}

func combine(failures []*apperrors.Error) error {
	switch len(failures) {
	case 0:
		return nil
	case 1:
		return failures[0]
	}

	first := failures[0]
	problems := make([]apperrors.Problem, 0, len(failures))
	errs := make([]error, 0, len(failures))
	for _, f := range failures {
		problems = append(problems, apperrors.Problem{Code: string(f.Code), Message: f.Message, Field: "file"})
		errs = append(errs, f)
	}
	return &apperrors.Error{
		Code:        first.Code,
		Message:     first.Message,
		Details:     first.Details,
		Problems:    problems,
		Operational: true,
		Err:         errors.Join(errs...),
	}
}

// ReadLimited reads r up to max bytes. A body longer than max yields a
// FILE_TOO_LARGE error without reading the rest.
func ReadLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeNoFile, "Unable to read file content")
	}
	if int64(len(data)) > max {
		return nil, apperrors.FileTooLarge(max, int64(len(data)))
	}
	return data, nil
}

// Describe renders a gate failure for logs.
func Describe(err error) string {
	appErr, ok := apperrors.As(err)
	if !ok {
		return err.Error()
	}
	if len(appErr.Problems) == 0 {
		return appErr.Message
	}
	msgs := make([]string, len(appErr.Problems))
	for i, p := range appErr.Problems {
		msgs[i] = fmt.Sprintf("%s: %s", p.Code, p.Message)
	}
	return strings.Join(msgs, "; ")
}
