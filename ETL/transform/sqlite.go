package transform

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// SQLiteType сопоставляет тип DuckDB типу SQLite
func SQLiteType(duckType string) string {
	dt := strings.ToLower(duckType)
	switch {
	case strings.Contains(dt, "int"):
		return "INTEGER"
	case strings.Contains(dt, "double"), strings.Contains(dt, "float"),
		strings.Contains(dt, "decimal"), strings.Contains(dt, "numeric"),
		strings.Contains(dt, "real"):
		return "REAL"
	case strings.Contains(dt, "bool"):
		// В SQLite нет отдельного логического типа
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// DumpStats содержит статистику очистки дампа
type DumpStats struct {
	TotalLines   int
	SkippedLines int
}

// CleanDump удаляет из дампа SQLite строки транзакций и служебную таблицу _cf_KV,
// которые D1 не принимает
func CleanDump(dump string) (string, DumpStats) {
	var stats DumpStats
	var cleaned []string
	skipKVBlock := false

	scanner := bufio.NewScanner(strings.NewReader(dump))
	scanner.Buffer(make([]byte, 0, 64*1024), math.MaxInt32)
	for scanner.Scan() {
		line := scanner.Text()
		stats.TotalLines++

		if strings.HasPrefix(line, "BEGIN TRANSACTION;") || strings.HasPrefix(line, "COMMIT;") {
			stats.SkippedLines++
			continue
		}

		if strings.HasPrefix(line, "CREATE TABLE _cf_KV ") {
			stats.SkippedLines++
			// Однострочное определение закрывает блок сразу
			skipKVBlock = !strings.Contains(line, "WITHOUT ROWID;")
			continue
		}

		if skipKVBlock {
			stats.SkippedLines++
			if strings.Contains(line, "WITHOUT ROWID;") {
				skipKVBlock = false
			}
			continue
		}

		cleaned = append(cleaned, line)
	}

	return strings.Join(cleaned, "\n"), stats
}

// DumpSQLite формирует текстовый дамп таблиц в формате sqlite3 .dump
func DumpSQLite(ctx context.Context, db *sql.DB, tables []string) (string, error) {
	var b strings.Builder
	b.WriteString("PRAGMA foreign_keys=OFF;\n")
	b.WriteString("BEGIN TRANSACTION;\n")

	for _, table := range tables {
		var createSQL string
		err := db.QueryRowContext(ctx,
			"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&createSQL)
		if err != nil {
			return "", fmt.Errorf("ошибка получения определения таблицы %s: %w", table, err)
		}
		b.WriteString(createSQL)
		b.WriteString(";\n")

		if err := dumpRows(ctx, db, table, &b); err != nil {
			return "", err
		}
	}

	b.WriteString("COMMIT;\n")
	return b.String(), nil
}

func dumpRows(ctx context.Context, db *sql.DB, table string, b *strings.Builder) error {
	quoted := `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoted)
	if err != nil {
		return fmt.Errorf("ошибка чтения таблицы %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	for rows.Next() {
		values := make([]interface{}, len(cols))
		pointers := make([]interface{}, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return fmt.Errorf("ошибка чтения строки %s: %w", table, err)
		}

		literals := make([]string, len(values))
		for i, v := range values {
			literals[i] = sqliteLiteral(v)
		}
		fmt.Fprintf(b, "INSERT INTO %s VALUES(%s);\n", quoted, strings.Join(literals, ","))
	}
	return rows.Err()
}

// sqliteLiteral форматирует значение как литерал SQLite
func sqliteLiteral(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if math.IsInf(x, 1) {
			return "1e999"
		}
		if math.IsInf(x, -1) {
			return "-1e999"
		}
		if math.IsNaN(x) {
			return "NULL"
		}
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case bool:
		if x {
			return "1"
		}
		return "0"
	case []byte:
		return fmt.Sprintf("X'%X'", x)
	case time.Time:
		return "'" + x.Format("2006-01-02 15:04:05") + "'"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(x), "'", "''") + "'"
	}
}
