package transform

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteType(t *testing.T) {
	tests := map[string]string{
		"INTEGER":       "INTEGER",
		"BIGINT":        "INTEGER",
		"HUGEINT":       "INTEGER",
		"DOUBLE":        "REAL",
		"FLOAT":         "REAL",
		"DECIMAL(18,3)": "REAL",
		"NUMERIC":       "REAL",
		"REAL":          "REAL",
		"BOOLEAN":       "INTEGER",
		"VARCHAR":       "TEXT",
		"DATE":          "TEXT",
		"TIMESTAMP":     "TEXT",
	}
	for duckType, want := range tests {
		t.Run(duckType, func(t *testing.T) {
			assert.Equal(t, want, SQLiteType(duckType))
		})
	}
}

func TestCleanDump(t *testing.T) {
	dump := "PRAGMA foreign_keys=OFF;\n" +
		"BEGIN TRANSACTION;\n" +
		"CREATE TABLE _cf_KV (\n" +
		"  key TEXT PRIMARY KEY,\n" +
		"  value BLOB\n" +
		") WITHOUT ROWID;\n" +
		"CREATE TABLE \"fct_gdp\" (\"country\" TEXT, \"value\" REAL);\n" +
		"INSERT INTO \"fct_gdp\" VALUES('ARG',1.5);\n" +
		"COMMIT;\n"

	cleaned, stats := CleanDump(dump)

	assert.Equal(t, "PRAGMA foreign_keys=OFF;\n"+
		"CREATE TABLE \"fct_gdp\" (\"country\" TEXT, \"value\" REAL);\n"+
		"INSERT INTO \"fct_gdp\" VALUES('ARG',1.5);", cleaned)
	assert.Equal(t, 9, stats.TotalLines)
	assert.Equal(t, 6, stats.SkippedLines)
}

func TestCleanDump_SingleLineKVTable(t *testing.T) {
	dump := "CREATE TABLE _cf_KV (key TEXT PRIMARY KEY, value BLOB) WITHOUT ROWID;\n" +
		"CREATE TABLE t(x);\n"

	cleaned, stats := CleanDump(dump)
	assert.Equal(t, "CREATE TABLE t(x);", cleaned)
	assert.Equal(t, 1, stats.SkippedLines)
}

func TestCleanDump_Empty(t *testing.T) {
	cleaned, stats := CleanDump("")
	assert.Equal(t, "", cleaned)
	assert.Equal(t, 0, stats.TotalLines)
}

func TestDumpSQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "wdi.sqlite3"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE "dim_country" ("code" TEXT, "population" INTEGER, "gdp" REAL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO "dim_country" VALUES ('CIV', 100, 2.5), ('O''Hare', NULL, 3.0)`)
	require.NoError(t, err)

	dump, err := DumpSQLite(context.Background(), db, []string{"dim_country"})
	require.NoError(t, err)

	assert.Equal(t, "PRAGMA foreign_keys=OFF;\n"+
		"BEGIN TRANSACTION;\n"+
		`CREATE TABLE "dim_country" ("code" TEXT, "population" INTEGER, "gdp" REAL);`+"\n"+
		`INSERT INTO "dim_country" VALUES('CIV',100,2.5);`+"\n"+
		`INSERT INTO "dim_country" VALUES('O''Hare',NULL,3.0);`+"\n"+
		"COMMIT;\n", dump)

	// Очищенный дамп применяется к пустой базе
	cleaned, _ := CleanDump(dump)
	target, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "target.sqlite3"))
	require.NoError(t, err)
	defer target.Close()
	_, err = target.Exec(cleaned)
	require.NoError(t, err)

	var count int
	require.NoError(t, target.QueryRow(`SELECT COUNT(*) FROM dim_country`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestDumpSQLite_MissingTable(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "wdi.sqlite3"))
	require.NoError(t, err)
	defer db.Close()

	_, err = DumpSQLite(context.Background(), db, []string{"missing"})
	assert.Error(t, err)
}
