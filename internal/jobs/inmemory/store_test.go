package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/csv-intake/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCopiesJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	job := &jobs.ReprocessUploadJob{JobID: "j1", UploadID: "u1", Status: jobs.JobStatusPending}
	require.NoError(t, s.SaveJob(ctx, job))
	job.Status = jobs.JobStatusFailed

	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, got.Status)

	got.UploadID = "changed"
	again, _ := s.GetJob(ctx, "j1")
	assert.Equal(t, "u1", again.UploadID)
}

func TestStoreErrors(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	assert.Error(t, s.SaveJob(ctx, &jobs.ReprocessUploadJob{}))
	_, err := s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
	assert.ErrorIs(t, s.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, ""), jobs.ErrJobNotFound)
}

func TestStoreListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, j := range []*jobs.ReprocessUploadJob{
		{JobID: "a", UploadID: "u1", Status: jobs.JobStatusCompleted},
		{JobID: "b", UploadID: "u2", Status: jobs.JobStatusFailed},
		{JobID: "c", UploadID: "u1", Status: jobs.JobStatusFailed},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.SaveJob(ctx, j))
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all newest first", jobs.JobFilter{}, []string{"c", "b", "a"}},
		{"by upload", jobs.JobFilter{UploadID: "u1"}, []string{"c", "a"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusFailed}, []string{"c", "b"}},
		{"limit", jobs.JobFilter{Limit: 1}, []string{"c"}},
		{"offset", jobs.JobFilter{Offset: 1, Limit: 1}, []string{"b"}},
		{"offset past end", jobs.JobFilter{Offset: 5}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, j := range got {
				ids = append(ids, j.JobID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	require.NoError(t, s.UpdateJobStatus(ctx, "a", jobs.JobStatusFailed, "boom"))
	a, _ := s.GetJob(ctx, "a")
	assert.Equal(t, jobs.JobStatusFailed, a.Status)
	assert.Equal(t, "boom", a.Error)
}
