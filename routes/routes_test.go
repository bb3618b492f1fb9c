package routes

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	etl "github.com/LilVoxy/wdi_pipeline/ETL"
	"github.com/LilVoxy/wdi_pipeline/ETL/models"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
	"github.com/LilVoxy/wdi_pipeline/websocket"
)

type fakeRunner struct {
	mu      sync.Mutex
	running bool
	calls   int
	repo    *models.SQLiteETLLogRepository
	done    chan struct{}
	release chan struct{}
}

// StartETL занимает runner так же, как ETLRunner: проверка и установка под одной блокировкой.
// Запуск завершается, когда тест закрывает release.
func (f *fakeRunner) StartETL(ctx context.Context) (<-chan error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil, etl.ErrRunInProgress
	}
	f.running = true
	f.calls++
	close(f.done)

	result := make(chan error, 1)
	go func() {
		<-f.release
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
		result <- nil
		close(result)
	}()
	return result, nil
}

func (f *fakeRunner) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeRunner) Repository() models.ETLLogRepository {
	return f.repo
}

func newTestRouter(t *testing.T) (*mux.Router, *fakeRunner) {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "state.sqlite3"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	repo := models.NewSQLiteETLLogRepository(db)
	require.NoError(t, repo.CreateETLLogTable())

	runner := &fakeRunner{repo: repo, done: make(chan struct{}), release: make(chan struct{})}
	t.Cleanup(func() { close(runner.release) })
	router := mux.NewRouter()
	logger := utils.NewNopLogger()
	SetupRoutes(context.Background(), router, runner, websocket.NewManager(logger), logger)
	return router, runner
}

func serve(router http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := serve(router, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"status":"ok","running":false}`, rec.Body.String())
}

func TestListRuns(t *testing.T) {
	router, runner := newTestRouter(t)

	id, err := runner.repo.CreateLogEntry("etl", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, runner.repo.UpdateLogEntrySuccess(id, time.Now(), 3, 2))
	_, err = runner.repo.CreateLogEntry("export-parquet", time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)

	rec := serve(router, http.MethodGet, "/api/runs?days=7")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RunsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Days)
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, "etl", resp.Runs[0].Operation)
	assert.Equal(t, 3, resp.Runs[0].TablesProcessed)
}

func TestListRuns_BadDays(t *testing.T) {
	router, _ := newTestRouter(t)
	for _, days := range []string{"abc", "0", "-1", "1000"} {
		rec := serve(router, http.MethodGet, "/api/runs?days="+days)
		assert.Equal(t, http.StatusBadRequest, rec.Code, days)
	}
}

func TestListRuns_Empty(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := serve(router, http.MethodGet, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"days":7,"runs":[]}`, rec.Body.String())
}

func TestLastRun(t *testing.T) {
	router, runner := newTestRouter(t)

	rec := serve(router, http.MethodGet, "/api/runs/last")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	id, err := runner.repo.CreateLogEntry("etl", time.Now())
	require.NoError(t, err)
	require.NoError(t, runner.repo.UpdateLogEntrySuccess(id, time.Now(), 1, 1))

	rec = serve(router, http.MethodGet, "/api/runs/last")
	require.Equal(t, http.StatusOK, rec.Code)
	var run models.ETLRunLog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, id, run.ID)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
}

func TestState(t *testing.T) {
	router, runner := newTestRouter(t)
	id, err := runner.repo.CreateLogEntry("etl", time.Now())
	require.NoError(t, err)
	require.NoError(t, runner.repo.UpdateLogEntryFailure(id, time.Now(), "boom"))

	rec := serve(router, http.MethodGet, "/api/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var monitor models.ETLStateMonitor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &monitor))
	assert.Equal(t, 1, monitor.TotalFailedRuns)
	require.NotNil(t, monitor.LastFailedRun)
	assert.Equal(t, "boom", monitor.LastFailedRun.ErrorMessage)
}

func TestStartRun(t *testing.T) {
	router, runner := newTestRouter(t)

	rec := serve(router, http.MethodPost, "/api/runs")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-runner.done:
	case <-time.After(5 * time.Second):
		t.Fatal("ETL не был запущен")
	}
	runner.mu.Lock()
	assert.Equal(t, 1, runner.calls)
	runner.mu.Unlock()
}

func TestStartRun_ConcurrentRequests(t *testing.T) {
	router, runner := newTestRouter(t)

	const requests = 8
	codes := make(chan int, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- serve(router, http.MethodPost, "/api/runs").Code
		}()
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for code := range codes {
		counts[code]++
	}
	assert.Equal(t, 1, counts[http.StatusAccepted])
	assert.Equal(t, requests-1, counts[http.StatusConflict])

	runner.mu.Lock()
	assert.Equal(t, 1, runner.calls)
	runner.mu.Unlock()
}

func TestStartRun_Conflict(t *testing.T) {
	router, runner := newTestRouter(t)
	runner.running = true

	rec := serve(router, http.MethodPost, "/api/runs")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "error"))
	assert.Equal(t, 0, runner.calls)
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := serve(router, http.MethodOptions, "/api/runs")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestLogLevel(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := serve(router, http.MethodGet, "/api/log-level")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"level":"info"}`, rec.Body.String())

	put := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/log-level", strings.NewReader(body)))
		return rec
	}

	rec = put(`{"level":"debug"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"level":"debug"}`, rec.Body.String())

	rec = serve(router, http.MethodGet, "/api/log-level")
	assert.JSONEq(t, `{"level":"debug"}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, put(`{"level":"loud"}`).Code)
	assert.Equal(t, http.StatusBadRequest, put(`not json`).Code)

	rec = serve(router, http.MethodGet, "/api/log-level")
	assert.JSONEq(t, `{"level":"debug"}`, rec.Body.String())
}
