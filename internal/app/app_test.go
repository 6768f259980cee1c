package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dvloznov/csv-intake/internal/config"
	"github.com/dvloznov/csv-intake/internal/logger"
	"github.com/dvloznov/csv-intake/internal/pipeline"
	"github.com/dvloznov/csv-intake/internal/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Port:        "8080",
		Backend:     "sqlite",
		SQLitePath:  filepath.Join(dir, "intake.db"),
		RawStore:    "disk",
		RawDir:      filepath.Join(dir, "raw"),
		MaxFileSize: 1 << 20,
	}
}

func TestNewWiresSQLiteAndDisk(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, logger.NewWithWriter(os.Stderr))
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Repo)
	assert.NotNil(t, a.Store)
	assert.Nil(t, a.Publisher)
	assert.EqualValues(t, 1<<20, a.Options.Gate.MaxSizeBytes)

	csv := "date,amount,description,category\n2024-01-15,-42.50,Groceries,Food\n2024-01-16,1200,Salary,Income\n"
	out, err := a.Processor.Process(context.Background(), pipeline.Input{
		Filename: "january.csv",
		MimeType: "text/csv",
		Content:  []byte(csv),
	})
	require.NoError(t, err)
	require.True(t, out.Persisted)

	u, err := a.Repo.GetUpload(context.Background(), out.State.Upload.ID)
	require.NoError(t, err)
	assert.Equal(t, records.StatusCompleted, u.Status)
	assert.NotEmpty(t, u.StorageURI)

	raw, err := a.Store.Fetch(context.Background(), u.StorageURI)
	require.NoError(t, err)
	assert.Equal(t, csv, string(raw))
}

func TestRejectedUploadLeavesNoRawFile(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, logger.NewWithWriter(os.Stderr))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Processor.Process(context.Background(), pipeline.Input{
		Filename: "short.csv",
		MimeType: "text/csv",
		Content:  []byte("date,amount\n2024-01-15,10\n"),
	})
	require.Error(t, err)

	entries, err := os.ReadDir(cfg.RawDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewWithoutRawStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.RawStore = "none"

	a, err := New(context.Background(), cfg, logger.NewWithWriter(os.Stderr))
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Store)
}

func TestNewRepositoryUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend = "postgres"

	_, err := NewRepository(context.Background(), cfg)
	assert.ErrorContains(t, err, `unknown backend "postgres"`)
}

func TestProcessorOptions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Encoding = "windows-1252"
	cfg.AllowFutureDates = true

	opts, err := ProcessorOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "windows-1252", opts.CSV.Encoding)
	assert.True(t, opts.Dates.AllowFuture)
	assert.True(t, opts.Rules.CheckDuplicates)

	rulesFile := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rulesFile, []byte("unusual_amount_threshold: 500\ncheck_duplicates: false\n"), 0o600))
	cfg.RulesFile = rulesFile

	opts, err = ProcessorOptions(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 500, opts.Rules.UnusualAmountThreshold, 0.001)
	assert.False(t, opts.Rules.CheckDuplicates)

	cfg.RulesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = ProcessorOptions(cfg)
	assert.ErrorContains(t, err, "failed to load rules file")
}
