package load

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/LilVoxy/wdi_pipeline/ETL/config"
	"github.com/LilVoxy/wdi_pipeline/ETL/transform"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
	"github.com/LilVoxy/wdi_pipeline/database"
)

// SQLiteExporter переносит таблицы DuckDB в файл SQLite
type SQLiteExporter struct {
	warehouse  *database.Warehouse
	logger     *utils.ETLLogger
	sampleRate float64
}

// NewSQLiteExporter создает новый экземпляр SQLiteExporter
func NewSQLiteExporter(warehouse *database.Warehouse, sampleRate float64, logger *utils.ETLLogger) *SQLiteExporter {
	return &SQLiteExporter{
		warehouse:  warehouse,
		logger:     logger,
		sampleRate: sampleRate,
	}
}

// Export пересоздает файл SQLite и переносит в него запрошенные таблицы, которые есть в DuckDB.
// Возвращает имена перенесенных таблиц в порядке SHOW TABLES.
func (e *SQLiteExporter) Export(ctx context.Context, sqlitePath string, tables []string, sample bool) ([]string, error) {
	if len(tables) == 0 {
		e.logger.Info("Нет таблиц для экспорта, экспорт пропущен")
		return nil, nil
	}

	if _, err := os.Stat(sqlitePath); err == nil {
		e.logger.Info("Перезапись существующего файла %s", sqlitePath)
		if err := os.Remove(sqlitePath); err != nil {
			return nil, fmt.Errorf("ошибка удаления %s: %w", sqlitePath, err)
		}
	}

	allTables, err := e.warehouse.ShowTables(ctx)
	if err != nil {
		return nil, err
	}
	requested := make(map[string]bool, len(tables))
	for _, t := range tables {
		requested[t] = true
	}
	var selected []string
	for _, t := range allTables {
		if requested[t] {
			selected = append(selected, t)
			delete(requested, t)
		}
	}
	for _, t := range tables {
		if requested[t] {
			e.logger.Warn("Таблица %s отсутствует в DuckDB и будет пропущена", t)
		}
	}
	if len(selected) == 0 {
		e.logger.Warn("Подходящие таблицы в DuckDB не найдены, экспорт пропущен")
		return nil, nil
	}

	sqliteDB, err := config.OpenSQLite(sqlitePath)
	if err != nil {
		return nil, err
	}
	defer sqliteDB.Close()

	e.logger.Info("Экспорт таблиц: %s", strings.Join(selected, ", "))
	var exported []string
	for _, table := range selected {
		e.logger.Info(" * Экспорт таблицы: %s", table)
		ok, err := e.exportTable(ctx, sqliteDB, table, sample)
		if err != nil {
			return exported, err
		}
		if ok {
			exported = append(exported, table)
		}
	}

	e.logger.Info("Экспорт в SQLite завершен")
	return exported, nil
}

// exportTable создает таблицу в SQLite и копирует строки в одной транзакции.
// Возвращает false, если у таблицы нет описания колонок.
func (e *SQLiteExporter) exportTable(ctx context.Context, sqliteDB *sql.DB, table string, sample bool) (bool, error) {
	columns, err := e.warehouse.DescribeTable(ctx, table)
	if err != nil {
		return false, err
	}
	if len(columns) == 0 {
		e.logger.Warn("Нет информации о колонках таблицы %s", table)
		return false, nil
	}

	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = database.QuoteIdent(c.Name) + " " + transform.SQLiteType(c.Type)
	}
	createStmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", database.QuoteIdent(table), strings.Join(defs, ", "))
	if _, err := sqliteDB.ExecContext(ctx, createStmt); err != nil {
		return false, fmt.Errorf("ошибка создания таблицы %s в SQLite: %w", table, err)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", database.ColumnList(columns), database.QuoteIdent(table))
	if sample {
		query += fmt.Sprintf(" WHERE random() < %v", e.sampleRate)
	}
	rows, err := e.warehouse.DB.QueryContext(ctx, query)
	if err != nil {
		return false, fmt.Errorf("ошибка чтения таблицы %s: %w", table, err)
	}
	defer rows.Close()

	tx, err := sqliteDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s);", database.QuoteIdent(table), placeholders))
	if err != nil {
		return false, fmt.Errorf("ошибка при подготовке запроса: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return false, fmt.Errorf("ошибка чтения строки %s: %w", table, err)
		}
		for i, v := range values {
			values[i] = sqliteValue(duckValue(v, columns[i].Type))
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return false, fmt.Errorf("ошибка вставки строки в %s: %w", table, err)
		}
		inserted++
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("ошибка чтения таблицы %s: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}

	if inserted == 0 {
		e.logger.Warn("Таблица %q не содержит строк", table)
	} else {
		e.logger.Info("Вставлено %d строк в %q", inserted, table)
	}
	return true, nil
}

// sqliteValue приводит значение DuckDB к типу, который понимает драйвер SQLite
func sqliteValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, int64, float64, bool, string, []byte, time.Time:
		return x
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > 1<<63-1 {
			return float64(x)
		}
		return int64(x)
	case float32:
		return float64(x)
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	case duckdb.Decimal:
		return x.Float64()
	default:
		return fmt.Sprint(x)
	}
}
