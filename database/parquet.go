package database

import (
	"context"
	"fmt"

	"github.com/LilVoxy/wdi_pipeline/ETL/models"
)

// readParquetExpr возвращает выражение read_parquet для файла
func readParquetExpr(path string) string {
	return "read_parquet(" + QuoteLiteral(path) + ")"
}

// CopyQueryToParquet выгружает результат запроса в Parquet-файл
func (w *Warehouse) CopyQueryToParquet(ctx context.Context, query, path string) error {
	copyQuery := fmt.Sprintf("COPY (%s) TO %s (FORMAT 'parquet')", query, QuoteLiteral(path))
	if _, err := w.DB.ExecContext(ctx, copyQuery); err != nil {
		return fmt.Errorf("ошибка выгрузки в %s: %w", path, err)
	}
	return nil
}

// CopyTableToParquet выгружает таблицу в Parquet, отсортировав по всем колонкам
func (w *Warehouse) CopyTableToParquet(ctx context.Context, table string, columns []Column, path string) error {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		ColumnList(columns), QuoteIdent(table), ColumnList(columns))
	return w.CopyQueryToParquet(ctx, query, path)
}

// CreateTableFromParquet создает таблицу из Parquet-файла, если ее еще нет
func (w *Warehouse) CreateTableFromParquet(ctx context.Context, schema, table, path string) error {
	if schema != "" {
		if _, err := w.DB.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+QuoteIdent(schema)); err != nil {
			return fmt.Errorf("ошибка создания схемы %s: %w", schema, err)
		}
	}

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s AS SELECT * FROM %s",
		QualifiedName(schema, table), readParquetExpr(path))
	if _, err := w.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы %s из %s: %w", table, path, err)
	}
	return nil
}

// ParquetSchema возвращает колонки Parquet-файла и их типы DuckDB
func (w *Warehouse) ParquetSchema(ctx context.Context, path string) ([]Column, error) {
	columns, err := w.describe(ctx, "SELECT * FROM "+readParquetExpr(path))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения схемы %s: %w", path, err)
	}
	return columns, nil
}

// ParquetRowCount возвращает количество строк в Parquet-файле
func (w *Warehouse) ParquetRowCount(ctx context.Context, path string) (int64, error) {
	var count int64
	err := w.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+readParquetExpr(path)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета строк в %s: %w", path, err)
	}
	return count, nil
}

// ScanParquet вызывает fn для каждой строки Parquet-файла в порядке файла
func (w *Warehouse) ScanParquet(ctx context.Context, path string, fn func(row []interface{}) error) ([]Column, error) {
	columns, err := w.ParquetSchema(ctx, path)
	if err != nil {
		return nil, err
	}

	rows, err := w.DB.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", ColumnList(columns), readParquetExpr(path)))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", path, err)
	}
	defer rows.Close()

	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки %s: %w", path, err)
		}
		if err := fn(values); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", path, err)
	}
	return columns, nil
}

// ReadParquet загружает Parquet-файл целиком, отсортировав строки по всем колонкам
func (w *Warehouse) ReadParquet(ctx context.Context, path string) (*models.Frame, error) {
	columns, err := w.ParquetSchema(ctx, path)
	if err != nil {
		return nil, err
	}

	frame := &models.Frame{
		Columns: make([]string, len(columns)),
		Types:   make([]string, len(columns)),
	}
	for i, c := range columns {
		frame.Columns[i] = c.Name
		frame.Types[i] = c.Type
	}
	if len(columns) == 0 {
		return frame, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		ColumnList(columns), readParquetExpr(path), OrderByAll(columns))
	rows, err := w.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", path, err)
	}
	defer rows.Close()

	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки %s: %w", path, err)
		}
		frame.Rows = append(frame.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", path, err)
	}
	return frame, nil
}
