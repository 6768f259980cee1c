package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/csv-intake/internal/apperrors"
	"github.com/dvloznov/csv-intake/internal/pipeline"
	"github.com/dvloznov/csv-intake/internal/records"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodCSV = "date,amount,description,category\n2024-01-15,-42.50,Groceries,Food\n2024-01-16,1200,Salary,Income\n"

func init() {
	color.NoColor = true
}

type env struct {
	dir    string
	rawDir string
	dbPath string
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	return env{
		dir:    dir,
		rawDir: filepath.Join(dir, "raw"),
		dbPath: filepath.Join(dir, "intake.db"),
	}
}

func (e env) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// run executes the root command against the env's database and raw dir.
func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{
		"--backend", "sqlite",
		"--sqlite-path", e.dbPath,
		"--raw-store", "disk",
		"--raw-dir", e.rawDir,
		"--log-level", "error",
	}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestValidateJSON(t *testing.T) {
	e := newEnv(t)
	path := e.writeFile(t, "january.csv", goodCSV)

	out, err := e.run(t, "validate", "--json", path)
	require.NoError(t, err)

	var res pipeline.Success
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Data.Statistics.ValidRows)
	assert.Empty(t, res.Data.UploadID, "validate never persists")
	assert.NoFileExists(t, e.dbPath)
}

func TestValidateSummary(t *testing.T) {
	e := newEnv(t)
	path := e.writeFile(t, "mixed.csv", goodCSV+"not-a-date,12,Bad,Food\n")

	out, err := e.run(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "mixed.csv")
	assert.Contains(t, out, "2 valid")
	assert.Contains(t, out, "1 invalid")
	assert.Contains(t, out, "Validation errors (1):")
	assert.Contains(t, out, "row 3 date")
}

func TestValidateRejectsMissingColumns(t *testing.T) {
	e := newEnv(t)
	path := e.writeFile(t, "bad.csv", "date,amout,description\n2024-01-15,10,x\n")

	out, err := e.run(t, "validate", "--json", path)
	require.ErrorIs(t, err, errRejected)

	var f apperrors.Failure
	require.NoError(t, json.Unmarshal([]byte(out), &f))
	assert.False(t, f.Success)
	assert.Equal(t, apperrors.CodeMissingColumns, f.Error.Code)
}

func TestValidateMissingFile(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "validate", filepath.Join(e.dir, "nope.csv"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errRejected)
}

func TestIngestListShowDelete(t *testing.T) {
	e := newEnv(t)
	path := e.writeFile(t, "january.csv", goodCSV)

	out, err := e.run(t, "ingest", "--json", path)
	require.NoError(t, err)
	var res pipeline.Success
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	id := res.Data.UploadID
	require.NotEmpty(t, id)

	out, err = e.run(t, "uploads", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, string(records.StatusCompleted))

	out, err = e.run(t, "uploads", "show", "--transactions", id)
	require.NoError(t, err)
	var shown struct {
		Upload       records.Upload         `json:"upload"`
		Transactions []*records.Transaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "january.csv", shown.Upload.OriginalFilename)
	assert.Len(t, shown.Transactions, 2)
	require.NotEmpty(t, shown.Upload.StorageURI)

	out, err = e.run(t, "uploads", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted upload "+id)

	_, err = e.run(t, "uploads", "show", id)
	assert.ErrorContains(t, err, "not found")

	entries, err := os.ReadDir(e.rawDir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.True(t, strings.HasPrefix(entry.Name(), ".") || entry.Name() == "README.md", "raw file %s left behind", entry.Name())
	}
}

func TestUploadsListEmpty(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "uploads", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No uploads.")
}

func TestCleanup(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.MkdirAll(e.rawDir, 0o755))
	old := filepath.Join(e.rawDir, "old.csv")
	fresh := filepath.Join(e.rawDir, "fresh.csv")
	require.NoError(t, os.WriteFile(old, []byte(goodCSV), 0o600))
	require.NoError(t, os.WriteFile(fresh, []byte(goodCSV), 0o600))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	out, err := e.run(t, "cleanup", "--older-than", "24h")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 file(s)")
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}

func TestInvalidConfig(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "--backend", "postgres", "uploads", "list")
	assert.ErrorContains(t, err, "configuration validation failed")
}
