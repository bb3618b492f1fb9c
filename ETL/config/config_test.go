package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultETLConfig(t *testing.T) {
	cfg := DefaultETLConfig()

	assert.Equal(t, "wdi.duckdb", cfg.Warehouse.DuckDBPath)
	assert.Equal(t, []string{"fct_", "dim_", "agg_"}, cfg.Warehouse.MartPrefixes)
	assert.Equal(t, "r2:wdi", cfg.Remote.RcloneRemote)
	assert.Equal(t, 1e-5, cfg.Compare.RTol)
	assert.Equal(t, 5e-4, cfg.Compare.ATol)
	assert.Equal(t, 1000, cfg.WorldBank.PerPage)
	assert.Equal(t, "2022", cfg.WorldBank.Date)
	assert.Equal(t, []string{"npx", "wrangler@latest"}, cfg.D1.Wrangler)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wdi.yaml")
	content := `
warehouse:
  duckdb_path: ${WDI_TEST_DIR}/warehouse.duckdb
remote:
  backend: local
  local_root: /tmp/remote
compare:
  rtol: 0.001
schedule:
  interval: 1h
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("WDI_TEST_DIR", "/data")
	t.Setenv("WDI_D1_DATABASE", "wdi-staging")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/warehouse.duckdb", cfg.Warehouse.DuckDBPath)
	assert.Equal(t, BackendLocal, cfg.Remote.Backend)
	assert.Equal(t, 0.001, cfg.Compare.RTol)
	// Незаданные значения остаются по умолчанию
	assert.Equal(t, 5e-4, cfg.Compare.ATol)
	assert.Equal(t, time.Hour, cfg.Schedule.Interval)
	assert.Equal(t, "wdi-staging", cfg.D1.Database)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfig_LogLevel(t *testing.T) {
	t.Setenv("WDI_LOG_LEVEL", "debug")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)

	t.Setenv("WDI_LOG_LEVEL", "loud")
	_, err = LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *ETLConfig)
	}{
		{"unknown backend", func(c *ETLConfig) { c.Remote.Backend = "ftp" }},
		{"s3 without bucket", func(c *ETLConfig) { c.Remote.Backend = BackendS3 }},
		{"gcs without bucket", func(c *ETLConfig) { c.Remote.Backend = BackendGCS }},
		{"local without root", func(c *ETLConfig) { c.Remote.Backend = BackendLocal }},
		{"zero page size", func(c *ETLConfig) { c.WorldBank.PerPage = 0 }},
		{"negative tolerance", func(c *ETLConfig) { c.Compare.ATol = -1 }},
		{"sample rate too large", func(c *ETLConfig) { c.D1.SampleRate = 1.5 }},
		{"sample rate zero", func(c *ETLConfig) { c.D1.SampleRate = 0 }},
		{"unknown d1 mode", func(c *ETLConfig) { c.D1.Mode = "preview" }},
		{"no mart prefixes", func(c *ETLConfig) { c.Warehouse.MartPrefixes = nil }},
		{"unknown log level", func(c *ETLConfig) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultETLConfig()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConnectDatabases(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultETLConfig()
	cfg.Warehouse.DuckDBPath = filepath.Join(dir, "wdi.duckdb")
	cfg.State.Path = filepath.Join(dir, "state.sqlite3")

	conns, err := ConnectDatabases(cfg, false)
	require.NoError(t, err)

	_, err = conns.Warehouse.Exec("CREATE TABLE t (x INTEGER)")
	require.NoError(t, err)
	_, err = conns.State.Exec("CREATE TABLE t (x INTEGER)")
	require.NoError(t, err)

	assert.NoError(t, CloseDatabases(conns))
}
