package transform

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LilVoxy/wdi_pipeline/ETL/models"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
	"github.com/LilVoxy/wdi_pipeline/database"
)

func newTestTransformer(t *testing.T) *Transformer {
	t.Helper()
	db, err := sql.Open("duckdb", filepath.Join(t.TempDir(), "wdi.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewTransformer(database.NewWarehouse(db), utils.NewNopLogger(), []string{"fct_", "dim_", "agg_"})
}

func TestExportMartTables(t *testing.T) {
	ctx := context.Background()
	tr := newTestTransformer(t)

	for _, stmt := range []string{
		`CREATE TABLE dim_country (code VARCHAR, name VARCHAR)`,
		`INSERT INTO dim_country VALUES ('USA', 'United States'), ('ARG', 'Argentina')`,
		`CREATE TABLE fct_population (code VARCHAR, population BIGINT)`,
		`INSERT INTO fct_population VALUES ('USA', 333287557)`,
		`CREATE TABLE stg_raw (x INTEGER)`,
	} {
		_, err := tr.warehouse.DB.Exec(stmt)
		require.NoError(t, err)
	}

	outDir := filepath.Join(t.TempDir(), "out")
	files, err := tr.ExportMartTables(ctx, outDir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(outDir, "dim_country.parquet"),
		filepath.Join(outDir, "fct_population.parquet"),
	}, files)
	assert.NoFileExists(t, filepath.Join(outDir, "stg_raw.parquet"))

	frame, err := tr.warehouse.ReadParquet(ctx, files[0])
	require.NoError(t, err)
	assert.Equal(t, "ARG", frame.Rows[0][0])
}

func TestExportMartTables_NoMarts(t *testing.T) {
	tr := newTestTransformer(t)

	files, err := tr.ExportMartTables(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestWritePopulationParquet(t *testing.T) {
	ctx := context.Background()
	tr := newTestTransformer(t)

	population := int64(45510318)
	records := []models.PopulationRecord{
		{CountryCode: "ARG", Population: &population},
		{CountryCode: "XKX", Population: nil},
	}

	path := filepath.Join(t.TempDir(), "population_data.parquet")
	require.NoError(t, tr.WritePopulationParquet(ctx, records, path))

	frame, err := tr.warehouse.ReadParquet(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"country_code", "population"}, frame.Columns)
	assert.Equal(t, []string{"VARCHAR", "BIGINT"}, frame.Types)
	require.Equal(t, 2, frame.NumRows())
	assert.Equal(t, int64(45510318), frame.Rows[0][1])
	assert.Nil(t, frame.Rows[1][1])
}

func TestConvertCSVFiles(t *testing.T) {
	ctx := context.Background()
	tr := newTestTransformer(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "WDICountry.csv")
	require.NoError(t, os.WriteFile(good, []byte("Country Code,Short Name\nARG,Argentina\nUSA,United States\n"), 0o644))
	missing := filepath.Join(dir, "WDIMissing.csv")

	result := tr.ConvertCSVFiles(ctx, []string{good, missing}, dir)

	assert.Equal(t, []string{filepath.Join(dir, "WDICountry.parquet")}, result.Converted)
	require.Contains(t, result.Failed, missing)

	count, err := tr.warehouse.ParquetRowCount(ctx, result.Converted[0])
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
