package load

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
	"github.com/LilVoxy/wdi_pipeline/database"
)

// Цели загрузки populate
const (
	TargetDuckDB   = "duckdb"
	TargetPostgres = "postgres"
	TargetMySQL    = "mysql"
)

// Populator загружает Parquet-файл в таблицу целевой базы
type Populator interface {
	Target() string
	Populate(ctx context.Context, parquetPath, table string) error
	Close() error
}

// TableNameFor возвращает имя таблицы для Parquet-файла: имя без расширения и без дефисов
func TableNameFor(parquetPath string) string {
	base := filepath.Base(parquetPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(name, "-", "")
}

// PopulateAll загружает все файлы в цель и возвращает количество загруженных таблиц.
// DuckDB останавливается на первой ошибке, реляционные цели пробуют все таблицы
// и возвращают накопленные ошибки.
func PopulateAll(ctx context.Context, p Populator, files []string, logger *utils.ETLLogger) (int, error) {
	var result *multierror.Error
	loaded := 0

	for _, file := range files {
		table := TableNameFor(file)
		logger.Info("Загрузка таблицы %s (%s) из %s", table, p.Target(), file)

		if err := p.Populate(ctx, file, table); err != nil {
			if p.Target() == TargetDuckDB {
				return loaded, err
			}
			logger.Error("Ошибка обработки %s для таблицы %s: %v", file, table, err)
			result = multierror.Append(result, fmt.Errorf("таблица %s: %w", table, err))
			continue
		}
		loaded++
	}

	return loaded, result.ErrorOrNil()
}

// DuckDBPopulator создает таблицы в схеме DuckDB из Parquet-файлов
type DuckDBPopulator struct {
	warehouse *database.Warehouse
	schema    string
	logger    *utils.ETLLogger
}

// NewDuckDBPopulator создает новый экземпляр DuckDBPopulator
func NewDuckDBPopulator(warehouse *database.Warehouse, schema string, logger *utils.ETLLogger) *DuckDBPopulator {
	return &DuckDBPopulator{
		warehouse: warehouse,
		schema:    schema,
		logger:    logger,
	}
}

// Target возвращает имя цели
func (p *DuckDBPopulator) Target() string { return TargetDuckDB }

// Close ничего не делает: соединением владеет вызывающий код
func (p *DuckDBPopulator) Close() error { return nil }

// Populate создает таблицу, если ее еще нет, и проверяет количество строк.
// Существующая таблица не перезаписывается.
func (p *DuckDBPopulator) Populate(ctx context.Context, parquetPath, table string) error {
	exists, err := p.warehouse.TableExists(ctx, p.schema, table)
	if err != nil {
		return err
	}
	if exists {
		p.logger.Info("Таблица %s.%s уже существует, файл %s пропущен", p.schema, table, parquetPath)
	} else if err := p.warehouse.CreateTableFromParquet(ctx, p.schema, table, parquetPath); err != nil {
		return err
	}

	count, err := p.warehouse.CountRows(ctx, p.schema, table)
	if err != nil {
		return err
	}
	if count == 0 {
		p.logger.Error("В таблицу %s.%s не загружено ни одной строки", p.schema, table)
	} else {
		p.logger.Info("Таблица %s.%s загружена, строк: %d, файл: %s", p.schema, table, count, parquetPath)
	}
	return nil
}

// readParquetRows читает Parquet-файл целиком через DuckDB
func readParquetRows(ctx context.Context, warehouse *database.Warehouse, path string) ([]database.Column, [][]interface{}, error) {
	var rows [][]interface{}
	columns, err := warehouse.ScanParquet(ctx, path, func(row []interface{}) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return columns, rows, nil
}

// baseType возвращает тип DuckDB без параметров в верхнем регистре
func baseType(duckType string) string {
	t := strings.ToUpper(strings.TrimSpace(duckType))
	if i := strings.Index(t, "("); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// typeParams возвращает параметры типа вместе со скобками, например "(18,3)"
func typeParams(duckType string) string {
	if i := strings.Index(duckType, "("); i >= 0 {
		return duckType[i:]
	}
	return ""
}
