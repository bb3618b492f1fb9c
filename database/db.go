package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Column описывает колонку таблицы DuckDB
type Column struct {
	Name string
	Type string
}

// Warehouse предоставляет операции над аналитическим хранилищем DuckDB
type Warehouse struct {
	DB *sql.DB
}

// NewWarehouse создает новый экземпляр Warehouse
func NewWarehouse(db *sql.DB) *Warehouse {
	return &Warehouse{DB: db}
}

// IsMartTable проверяет, начинается ли имя таблицы с одного из префиксов витрин
func IsMartTable(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// scanFirstColumns читает первые n колонок каждой строки как строки
func scanFirstColumns(rows *sql.Rows, n int) ([][]string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) < n {
		return nil, fmt.Errorf("ожидалось не менее %d колонок, получено %d", n, len(cols))
	}

	var result [][]string
	for rows.Next() {
		values := make([]interface{}, len(cols))
		pointers := make([]interface{}, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make([]string, n)
		for i := 0; i < n; i++ {
			if values[i] != nil {
				row[i] = fmt.Sprint(values[i])
			}
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// ShowTables возвращает имена таблиц в порядке SHOW TABLES
func (w *Warehouse) ShowTables(ctx context.Context) ([]string, error) {
	rows, err := w.DB.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка таблиц: %w", err)
	}
	defer rows.Close()

	values, err := scanFirstColumns(rows, 1)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения списка таблиц: %w", err)
	}

	tables := make([]string, 0, len(values))
	for _, v := range values {
		tables = append(tables, v[0])
	}
	return tables, nil
}

// TableExists проверяет наличие таблицы в схеме. Пустая схема означает текущую.
func (w *Warehouse) TableExists(ctx context.Context, schema, table string) (bool, error) {
	query := "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ? AND table_schema = "
	args := []interface{}{table}
	if schema == "" {
		query += "current_schema()"
	} else {
		query += "?"
		args = append(args, schema)
	}

	var count int
	if err := w.DB.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("ошибка проверки наличия таблицы %s: %w", table, err)
	}
	return count > 0, nil
}

// describe выполняет DESCRIBE для произвольного выражения
func (w *Warehouse) describe(ctx context.Context, target string) ([]Column, error) {
	rows, err := w.DB.QueryContext(ctx, "DESCRIBE "+target)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values, err := scanFirstColumns(rows, 2)
	if err != nil {
		return nil, err
	}

	columns := make([]Column, 0, len(values))
	for _, v := range values {
		columns = append(columns, Column{Name: v[0], Type: v[1]})
	}
	return columns, nil
}

// DescribeTable возвращает колонки таблицы и их типы DuckDB
func (w *Warehouse) DescribeTable(ctx context.Context, table string) ([]Column, error) {
	columns, err := w.describe(ctx, QuoteIdent(table))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения структуры таблицы %s: %w", table, err)
	}
	return columns, nil
}

// CountRows возвращает количество строк в таблице
func (w *Warehouse) CountRows(ctx context.Context, schema, table string) (int64, error) {
	var count int64
	err := w.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+QualifiedName(schema, table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета строк в %s: %w", table, err)
	}
	return count, nil
}
