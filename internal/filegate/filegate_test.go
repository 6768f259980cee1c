package filegate

import (
	"errors"
	"strings"
	"testing"

	"github.com/dvloznov/csv-intake/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		file FileInfo
		code apperrors.Code
	}{
		{"ok", FileInfo{Filename: "tx.csv", MimeType: "text/csv", Size: 100}, ""},
		{"upper ext", FileInfo{Filename: "TX.CSV", MimeType: "text/csv", Size: 100}, ""},
		{"charset param", FileInfo{Filename: "tx.csv", MimeType: "text/csv; charset=utf-8", Size: 100}, ""},
		{"no mime", FileInfo{Filename: "tx.csv", Size: 100}, ""},
		{"excel mime", FileInfo{Filename: "tx.csv", MimeType: "application/vnd.ms-excel", Size: 1}, ""},
		{"no file", FileInfo{}, apperrors.CodeNoFile},
		{"xlsx", FileInfo{Filename: "tx.xlsx", MimeType: "text/csv", Size: 100}, apperrors.CodeInvalidExtension},
		{"no ext", FileInfo{Filename: "tx", MimeType: "text/csv", Size: 100}, apperrors.CodeInvalidExtension},
		{"json mime", FileInfo{Filename: "tx.csv", MimeType: "application/json", Size: 100}, apperrors.CodeInvalidMimeType},
		{"too large", FileInfo{Filename: "tx.csv", MimeType: "text/csv", Size: DefaultMaxSize + 1}, apperrors.CodeFileTooLarge},
		{"at limit", FileInfo{Filename: "tx.csv", MimeType: "text/csv", Size: DefaultMaxSize}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.file, cfg)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestCheckReportsEveryProblem(t *testing.T) {
	err := Check(FileInfo{Filename: "report.pdf", MimeType: "application/pdf", Size: DefaultMaxSize * 2}, DefaultConfig())

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidExtension, appErr.Code)
	require.Len(t, appErr.Problems, 3)
	assert.Equal(t, string(apperrors.CodeInvalidMimeType), appErr.Problems[1].Code)
	assert.Equal(t, string(apperrors.CodeFileTooLarge), appErr.Problems[2].Code)

	assert.True(t, errors.Is(err, &apperrors.Error{Code: apperrors.CodeInvalidExtension}))
	assert.Contains(t, Describe(err), "FILE_TOO_LARGE: File too large. Maximum size is 10 MB, got 20 MB")
	assert.Equal(t, "Invalid file extension. Expected .csv, got .pdf", appErr.Message)
}

func TestReadLimited(t *testing.T) {
	data, err := ReadLimited(strings.NewReader("abc"), 3)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	_, err = ReadLimited(strings.NewReader("abcd"), 3)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeFileTooLarge))
}
