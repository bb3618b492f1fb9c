package models

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringListRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changed.json")

	require.NoError(t, WriteChangedTables(path, ChangedTables{"fct_gdp", "dim_country"}))
	tables, err := ReadChangedTables(path)
	require.NoError(t, err)
	assert.Equal(t, ChangedTables{"fct_gdp", "dim_country"}, tables)
}

func TestWriteStringList_NilBecomesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exported.json")

	require.NoError(t, WriteExportedFiles(path, nil))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestReadStringList_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0o644))

	_, err := ReadStringList(path)
	assert.Error(t, err)
}

func newTestRepository(t *testing.T) *SQLiteETLLogRepository {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "state.sqlite3"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	repo := NewSQLiteETLLogRepository(db)
	require.NoError(t, repo.CreateETLLogTable())
	return repo
}

func TestSQLiteETLLogRepository_Lifecycle(t *testing.T) {
	repo := newTestRepository(t)
	start := time.Now().Add(-time.Minute)

	okID, err := repo.CreateLogEntry("export-parquet", start)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateLogEntrySuccess(okID, start.Add(30*time.Second), 4, 2))

	failID, err := repo.CreateLogEntry("update-d1", start.Add(time.Second))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateLogEntryFailure(failID, start.Add(40*time.Second), "wrangler упал"))

	_, err = repo.CreateLogEntry("sync-parquet", start.Add(2*time.Second))
	require.NoError(t, err)

	last, err := repo.GetLastSuccessfulRun()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, okID, last.ID)
	assert.Equal(t, "export-parquet", last.Operation)
	assert.Equal(t, 4, last.TablesProcessed)
	assert.Equal(t, 2, last.FilesUploaded)
	assert.InDelta(t, 30.0, last.ExecutionTimeSeconds, 0.01)

	runs, err := repo.GetETLRunStats(7)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "sync-parquet", runs[0].Operation)
	assert.Equal(t, RunStatusInProgress, runs[0].Status)

	state, err := repo.GetETLStateMonitor()
	require.NoError(t, err)
	assert.Equal(t, 1, state.TotalSuccessfulRuns)
	assert.Equal(t, 1, state.TotalFailedRuns)
	assert.Equal(t, 4, state.TotalTablesProcessed)
	require.NotNil(t, state.LastFailedRun)
	assert.Equal(t, "wrangler упал", state.LastFailedRun.ErrorMessage)
	require.NotNil(t, state.CurrentRun)
	assert.Equal(t, "sync-parquet", state.CurrentRun.Operation)
}

func TestSQLiteETLLogRepository_Empty(t *testing.T) {
	repo := newTestRepository(t)

	last, err := repo.GetLastSuccessfulRun()
	require.NoError(t, err)
	assert.Nil(t, last)

	state, err := repo.GetETLStateMonitor()
	require.NoError(t, err)
	assert.Equal(t, 0, state.TotalSuccessfulRuns)
	assert.Nil(t, state.CurrentRun)
}
