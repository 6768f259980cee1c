package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/csv-intake/internal/events"
	"github.com/dvloznov/csv-intake/internal/infra/sqlite"
	"github.com/dvloznov/csv-intake/internal/logger"
	"github.com/dvloznov/csv-intake/internal/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyUpload(t *testing.T) {
	repo, err := sqlite.NewRepository(filepath.Join(t.TempDir(), "intake.db"))
	require.NoError(t, err)
	defer repo.Close()

	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))

	require.NoError(t, repo.CreateUpload(ctx, &records.Upload{
		ID:               "u1",
		Filename:         "stored.csv",
		OriginalFilename: "january.csv",
		MimeType:         "text/csv",
		Status:           records.StatusPartial,
		TotalRows:        3,
		ValidRows:        2,
		InvalidRows:      1,
		CreatedAt:        time.Now().UTC(),
	}))

	handle := verifyUpload(repo)

	tests := []struct {
		name string
		msg  events.UploadProcessedMessage
		want string
	}{
		{
			name: "matching event",
			msg:  events.UploadProcessedMessage{UploadID: "u1", Status: "partial", TotalRows: 3, ValidRows: 2, InvalidRows: 1},
			want: "Upload event verified",
		},
		{
			name: "stale event",
			msg:  events.UploadProcessedMessage{UploadID: "u1", Status: "completed", TotalRows: 3, ValidRows: 3},
			want: "Stored upload does not match event",
		},
		{
			name: "deleted upload",
			msg:  events.UploadProcessedMessage{UploadID: "gone", Status: "completed"},
			want: "Upload from event no longer exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			msg := tt.msg
			require.NoError(t, handle(ctx, &msg))
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestVerifyUploadRequeuesOnRepositoryError(t *testing.T) {
	repo, err := sqlite.NewRepository(filepath.Join(t.TempDir(), "intake.db"))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	err = verifyUpload(repo)(context.Background(), &events.UploadProcessedMessage{UploadID: "u1"})
	assert.ErrorContains(t, err, "verifyUpload")
}
