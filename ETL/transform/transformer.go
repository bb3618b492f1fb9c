package transform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/LilVoxy/wdi_pipeline/ETL/models"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
	"github.com/LilVoxy/wdi_pipeline/database"
)

// Transformer выполняет преобразования данных в DuckDB
type Transformer struct {
	warehouse    *database.Warehouse
	logger       *utils.ETLLogger
	martPrefixes []string
}

// NewTransformer создает новый экземпляр Transformer
func NewTransformer(warehouse *database.Warehouse, logger *utils.ETLLogger, martPrefixes []string) *Transformer {
	return &Transformer{
		warehouse:    warehouse,
		logger:       logger,
		martPrefixes: martPrefixes,
	}
}

// ConversionResult содержит итог преобразования набора CSV-файлов
type ConversionResult struct {
	Converted []string
	Failed    map[string]error
}

// ConvertCSVToParquet преобразует CSV-файл в Parquet через read_csv_auto
func (t *Transformer) ConvertCSVToParquet(ctx context.Context, csvPath, parquetPath string) error {
	query := fmt.Sprintf("SELECT * FROM read_csv_auto(%s)", database.QuoteLiteral(csvPath))
	if err := t.warehouse.CopyQueryToParquet(ctx, query, parquetPath); err != nil {
		return fmt.Errorf("ошибка преобразования %s: %w", csvPath, err)
	}
	return nil
}

// ConvertCSVFiles преобразует все CSV-файлы в outDir.
// Ошибка одного файла не прерывает обработку остальных.
func (t *Transformer) ConvertCSVFiles(ctx context.Context, csvPaths []string, outDir string) ConversionResult {
	result := ConversionResult{Failed: make(map[string]error)}

	for _, csvPath := range csvPaths {
		if ctx.Err() != nil {
			result.Failed[csvPath] = ctx.Err()
			continue
		}

		base := strings.TrimSuffix(filepath.Base(csvPath), filepath.Ext(csvPath))
		parquetPath := filepath.Join(outDir, base+".parquet")

		t.logger.Info("Преобразование %s в Parquet...", filepath.Base(csvPath))
		if err := t.ConvertCSVToParquet(ctx, csvPath, parquetPath); err != nil {
			t.logger.Error("Ошибка при преобразовании %s: %v", csvPath, err)
			result.Failed[csvPath] = err
			continue
		}
		result.Converted = append(result.Converted, parquetPath)
	}

	return result
}

// WritePopulationParquet записывает данные о населении в Parquet
// с колонками country_code VARCHAR и population BIGINT
func (t *Transformer) WritePopulationParquet(ctx context.Context, records []models.PopulationRecord, path string) error {
	// Временная таблица видна только в своем соединении
	conn, err := t.warehouse.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("ошибка получения соединения с DuckDB: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx,
		"CREATE OR REPLACE TEMP TABLE population_stage (country_code VARCHAR, population BIGINT)"); err != nil {
		return fmt.Errorf("ошибка создания временной таблицы: %w", err)
	}
	defer conn.ExecContext(context.Background(), "DROP TABLE IF EXISTS population_stage")

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO population_stage VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	for _, r := range records {
		var population interface{}
		if r.Population != nil {
			population = *r.Population
		}
		if _, err := stmt.ExecContext(ctx, r.CountryCode, population); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("ошибка вставки записи %s: %w", r.CountryCode, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	copyQuery := fmt.Sprintf("COPY population_stage TO %s (FORMAT 'parquet')", database.QuoteLiteral(path))
	if _, err := conn.ExecContext(ctx, copyQuery); err != nil {
		return fmt.Errorf("ошибка записи %s: %w", path, err)
	}

	written, err := t.warehouse.ParquetRowCount(ctx, path)
	if err != nil {
		return err
	}
	t.logger.Info("Записано %d записей о населении в %s", written, path)
	return nil
}

// ExportMartTables выгружает все витрины в outputDir/<table>.parquet
// и возвращает пути в порядке SHOW TABLES
func (t *Transformer) ExportMartTables(ctx context.Context, outputDir string) ([]string, error) {
	startTime := time.Now()
	t.logger.LogPhaseStart("export-parquet")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога %s: %w", outputDir, err)
	}

	tables, err := t.warehouse.ShowTables(ctx)
	if err != nil {
		return nil, err
	}

	t.logger.Info("Выгрузка витрин из DuckDB в локальные Parquet-файлы")
	exported := []string{}
	for _, table := range tables {
		if !database.IsMartTable(table, t.martPrefixes) {
			t.logger.Info("Пропуск таблицы, не являющейся витриной: %s", table)
			continue
		}

		columns, err := t.warehouse.DescribeTable(ctx, table)
		if err != nil {
			return nil, err
		}
		if len(columns) == 0 {
			t.logger.Warn("Не удалось получить колонки таблицы %s", table)
			continue
		}

		parquetPath := filepath.Join(outputDir, table+".parquet")
		if err := t.warehouse.CopyTableToParquet(ctx, table, columns, parquetPath); err != nil {
			return nil, err
		}
		rowCount, err := t.warehouse.ParquetRowCount(ctx, parquetPath)
		if err != nil {
			return nil, err
		}
		t.logger.Info("Таблица %s выгружена в %s, строк: %d", table, parquetPath, rowCount)
		exported = append(exported, parquetPath)
	}

	t.logger.LogPhaseComplete("export-parquet", len(exported), time.Since(startTime))
	return exported, nil
}
