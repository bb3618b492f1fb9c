package load

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/marcboeker/go-duckdb/v2"

	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
	"github.com/LilVoxy/wdi_pipeline/database"
)

// Количество строк в одном INSERT
const mysqlBatchSize = 500

// MySQLPopulator пересоздает таблицы MySQL из Parquet-файлов
type MySQLPopulator struct {
	db        *sql.DB
	warehouse *database.Warehouse
	logger    *utils.ETLLogger
	batchSize int
}

// NewMySQLPopulator подключается к MySQL
func NewMySQLPopulator(ctx context.Context, dsn string, warehouse *database.Warehouse, logger *utils.ETLLogger) (*MySQLPopulator, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к MySQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось установить соединение с MySQL: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &MySQLPopulator{
		db:        db,
		warehouse: warehouse,
		logger:    logger,
		batchSize: mysqlBatchSize,
	}, nil
}

// Target возвращает имя цели
func (p *MySQLPopulator) Target() string { return TargetMySQL }

// Close закрывает соединение с MySQL
func (p *MySQLPopulator) Close() error {
	return p.db.Close()
}

// Populate удаляет таблицу, создает ее по схеме Parquet и вставляет строки пакетами
func (p *MySQLPopulator) Populate(ctx context.Context, parquetPath, table string) error {
	columns, rows, err := readParquetRows(ctx, p.warehouse, parquetPath)
	if err != nil {
		return err
	}

	if _, err := p.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+mysqlIdent(table)); err != nil {
		return fmt.Errorf("ошибка удаления таблицы %s: %w", table, err)
	}
	if _, err := p.db.ExecContext(ctx, MySQLCreateTable(table, columns)); err != nil {
		return fmt.Errorf("ошибка создания таблицы %s: %w", table, err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(rows); start += p.batchSize {
		end := start + p.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		query, args := MySQLInsertBatch(table, columns, rows[start:end])
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("ошибка вставки строк в %s: %w", table, err)
		}
		p.logger.Debug("Загружено %d из %d строк в %s...", end, len(rows), table)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}
	p.logger.Info("Таблица %s загружена, строк: %d, файл: %s", table, len(rows), parquetPath)
	return nil
}

func mysqlIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// MySQLCreateTable формирует CREATE TABLE по колонкам DuckDB
func MySQLCreateTable(table string, columns []database.Column) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = mysqlIdent(c.Name) + " " + MySQLType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", mysqlIdent(table), strings.Join(defs, ", "))
}

// MySQLInsertBatch формирует многострочный INSERT и его аргументы
func MySQLInsertBatch(table string, columns []database.Column, rows [][]interface{}) (string, []interface{}) {
	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	placeholders := make([]string, len(rows))
	args := make([]interface{}, 0, len(rows)*len(columns))
	for i, row := range rows {
		placeholders[i] = rowPlaceholder
		for j, v := range row {
			args = append(args, mysqlValue(duckValue(v, columns[j].Type)))
		}
	}

	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = mysqlIdent(c.Name)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		mysqlIdent(table), strings.Join(names, ", "), strings.Join(placeholders, ", "))
	return query, args
}

// MySQLType сопоставляет тип DuckDB типу MySQL
func MySQLType(duckType string) string {
	switch t := baseType(duckType); t {
	case "BIGINT", "INT8", "LONG":
		return "BIGINT"
	case "INTEGER", "INT4", "INT", "SIGNED":
		return "INT"
	case "SMALLINT", "INT2", "SHORT":
		return "SMALLINT"
	case "TINYINT", "INT1":
		return "TINYINT"
	case "UBIGINT":
		return "BIGINT UNSIGNED"
	case "UINTEGER":
		return "INT UNSIGNED"
	case "USMALLINT":
		return "SMALLINT UNSIGNED"
	case "UTINYINT":
		return "TINYINT UNSIGNED"
	case "HUGEINT", "UHUGEINT":
		return "DECIMAL(38,0)"
	case "DECIMAL", "NUMERIC":
		return "DECIMAL" + typeParams(duckType)
	case "DOUBLE", "FLOAT8":
		return "DOUBLE"
	case "FLOAT", "FLOAT4", "REAL":
		return "FLOAT"
	case "BOOLEAN", "BOOL":
		return "BOOLEAN"
	case "DATE":
		return "DATE"
	case "TIMESTAMP", "DATETIME", "TIMESTAMP WITH TIME ZONE", "TIMESTAMPTZ":
		return "DATETIME(6)"
	case "BLOB", "BYTEA":
		return "LONGBLOB"
	default:
		return "LONGTEXT"
	}
}

// mysqlValue приводит значение DuckDB к типу, который принимает драйвер MySQL
func mysqlValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, int64, uint64, float64, bool, string, []byte, time.Time:
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
	case float32:
		return float64(x)
	case *big.Int:
		return x.String()
	case duckdb.Decimal:
		return decimalString(x)
	default:
		return fmt.Sprint(x)
	}
}

// decimalString форматирует Decimal без потери точности
func decimalString(d duckdb.Decimal) string {
	if d.Value == nil {
		return "0"
	}
	return new(big.Rat).SetFrac(d.Value, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.Scale)), nil)).FloatString(int(d.Scale))
}
