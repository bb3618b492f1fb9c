package changes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LilVoxy/wdi_pipeline/ETL/models"
	"github.com/LilVoxy/wdi_pipeline/ETL/storage"
	"github.com/LilVoxy/wdi_pipeline/ETL/transform"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
)

// fakeLoader возвращает заранее заданные таблицы: локальные по имени файла,
// удаленные по имени файла в каталоге загрузки
type fakeLoader struct {
	mu        sync.Mutex
	tmpDir    string
	local     map[string]*models.Frame
	remote    map[string]*models.Frame
	loadCalls int
}

func (f *fakeLoader) ReadParquet(ctx context.Context, path string) (*models.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++

	frames := f.local
	if strings.HasPrefix(path, f.tmpDir) {
		frames = f.remote
	}
	frame, ok := frames[filepath.Base(path)]
	if !ok {
		return nil, errors.New("не удалось прочитать parquet")
	}
	return frame, nil
}

func valueFrame(v float64) *models.Frame {
	return &models.Frame{
		Columns: []string{"a"},
		Types:   []string{"DOUBLE"},
		Rows:    [][]interface{}{{v}},
	}
}

type fixture struct {
	store    *storage.LocalStore
	localDir string
	tmpDir   string
	loader   *fakeLoader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	tmpDir := t.TempDir()
	return &fixture{
		store:    store,
		localDir: t.TempDir(),
		tmpDir:   tmpDir,
		loader: &fakeLoader{
			tmpDir: tmpDir,
			local:  map[string]*models.Frame{},
			remote: map[string]*models.Frame{},
		},
	}
}

func (f *fixture) local(t *testing.T, name, content string) string {
	p := filepath.Join(f.localDir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func (f *fixture) remote(t *testing.T, name, content string) {
	require.NoError(t, f.store.Write(context.Background(), name, []byte(content)))
}

func (f *fixture) detector() *Detector {
	return NewDetector(f.store, f.loader, transform.DefaultTolerance, utils.NewNopLogger())
}

func TestChangedFiles_NoChanges(t *testing.T) {
	f := newFixture(t)
	a := f.local(t, "fct_a.parquet", "a")
	b := f.local(t, "fct_b.parquet", "b")
	f.remote(t, "fct_a.parquet", "a")
	f.remote(t, "fct_b.parquet", "b")

	changed, err := f.detector().ChangedFiles(context.Background(), []string{a, b}, "", f.tmpDir)
	require.NoError(t, err)
	assert.Empty(t, changed)
	assert.Equal(t, 0, f.loader.loadCalls)
}

func TestChangedFiles_MissingRemote(t *testing.T) {
	f := newFixture(t)
	oldFile := f.local(t, "old_file.parquet", "old")
	newFile := f.local(t, "new_file.parquet", "new")
	f.remote(t, "old_file.parquet", "old")

	changed, err := f.detector().ChangedFiles(context.Background(), []string{oldFile, newFile}, "", f.tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{newFile}, changed)
}

func TestChangedFiles_ContentDiffers(t *testing.T) {
	f := newFixture(t)
	changedFile := f.local(t, "changed.parquet", "local bytes")
	f.remote(t, "changed.parquet", "remote bytes")
	f.loader.local["changed.parquet"] = valueFrame(1.0)
	f.loader.remote["changed.parquet"] = valueFrame(2.0)

	changed, err := f.detector().ChangedFiles(context.Background(), []string{changedFile}, "", f.tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{changedFile}, changed)
	// Удаленная копия загружена во временный каталог
	assert.FileExists(t, filepath.Join(f.tmpDir, "0", "changed.parquet"))
}

func TestChangedFiles_ChecksumDiffersWithinTolerance(t *testing.T) {
	f := newFixture(t)
	fuzzy := f.local(t, "fuzzy_match.parquet", "local bytes")
	f.remote(t, "fuzzy_match.parquet", "remote bytes")
	f.loader.local["fuzzy_match.parquet"] = valueFrame(1.00001)
	f.loader.remote["fuzzy_match.parquet"] = valueFrame(1.0)

	changed, err := f.detector().ChangedFiles(context.Background(), []string{fuzzy}, "", f.tmpDir)
	require.NoError(t, err)
	assert.Empty(t, changed)
	assert.Equal(t, 2, f.loader.loadCalls)
}

func TestChangedFiles_LoadFailureCountsAsChanged(t *testing.T) {
	f := newFixture(t)
	broken := f.local(t, "broken.parquet", "local")
	f.remote(t, "broken.parquet", "remote")

	changed, err := f.detector().ChangedFiles(context.Background(), []string{broken}, "", f.tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{broken}, changed)
}

func TestChangedFiles_PreservesOrder(t *testing.T) {
	f := newFixture(t)
	var files []string
	for _, name := range []string{"fct_c.parquet", "fct_a.parquet", "dim_b.parquet"} {
		files = append(files, f.local(t, name, "local "+name))
		f.remote(t, name, "remote "+name)
		f.loader.local[name] = valueFrame(1)
		f.loader.remote[name] = valueFrame(5)
	}

	changed, err := f.detector().ChangedFiles(context.Background(), files, "", f.tmpDir)
	require.NoError(t, err)
	assert.Equal(t, files, changed)
}

func TestChangedFiles_SameBaseNameInDifferentDirs(t *testing.T) {
	f := newFixture(t)
	var files []string
	for _, dir := range []string{"current", "previous"} {
		require.NoError(t, os.MkdirAll(filepath.Join(f.localDir, dir), 0o755))
		files = append(files, f.local(t, filepath.Join(dir, "fct_gdp.parquet"), "local "+dir))
	}
	f.remote(t, "fct_gdp.parquet", "remote")
	f.loader.local["fct_gdp.parquet"] = valueFrame(1)
	f.loader.remote["fct_gdp.parquet"] = valueFrame(2)

	changed, err := f.detector().ChangedFiles(context.Background(), files, "", f.tmpDir)
	require.NoError(t, err)
	assert.Equal(t, files, changed)

	// Каждая удаленная копия загружается в свой каталог
	for i := range files {
		data, err := os.ReadFile(filepath.Join(f.tmpDir, strconv.Itoa(i), "fct_gdp.parquet"))
		require.NoError(t, err)
		assert.Equal(t, "remote", string(data))
	}
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, []string{"fct_gdp", "dim_country"},
		TableNames([]string{"/tmp/out/fct_gdp.parquet", "dim_country.parquet"}))
	assert.Empty(t, TableNames(nil))
}

func TestSyncChanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.local(t, "fct_a.parquet", "a")

	uploaded, err := SyncChanged(ctx, f.store, []string{a}, "", true, utils.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, uploaded)
	_, err = f.store.Stat(ctx, "fct_a.parquet")
	assert.ErrorIs(t, err, storage.ErrNotExist)

	uploaded, err = SyncChanged(ctx, f.store, []string{a}, "", false, utils.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, uploaded)
	data, err := f.store.Read(ctx, "fct_a.parquet")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}
