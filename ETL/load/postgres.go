package load

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/marcboeker/go-duckdb/v2"

	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
	"github.com/LilVoxy/wdi_pipeline/database"
)

const postgresSchema = "public"

// PostgresPopulator пересоздает таблицы PostgreSQL из Parquet-файлов
type PostgresPopulator struct {
	conn      *pgx.Conn
	warehouse *database.Warehouse
	logger    *utils.ETLLogger
}

// NewPostgresPopulator подключается к PostgreSQL
func NewPostgresPopulator(ctx context.Context, dsn string, warehouse *database.Warehouse, logger *utils.ETLLogger) (*PostgresPopulator, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}
	return &PostgresPopulator{
		conn:      conn,
		warehouse: warehouse,
		logger:    logger,
	}, nil
}

// Target возвращает имя цели
func (p *PostgresPopulator) Target() string { return TargetPostgres }

// Close закрывает соединение с PostgreSQL
func (p *PostgresPopulator) Close() error {
	return p.conn.Close(context.Background())
}

// Populate удаляет таблицу каскадно, создает ее по схеме Parquet и копирует строки
func (p *PostgresPopulator) Populate(ctx context.Context, parquetPath, table string) error {
	columns, rows, err := readParquetRows(ctx, p.warehouse, parquetPath)
	if err != nil {
		return err
	}

	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	qualified := pgx.Identifier{postgresSchema, table}.Sanitize()
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+qualified+" CASCADE"); err != nil {
		return fmt.Errorf("ошибка удаления таблицы %s: %w", table, err)
	}
	if _, err := tx.Exec(ctx, PostgresCreateTable(table, columns)); err != nil {
		return fmt.Errorf("ошибка создания таблицы %s: %w", table, err)
	}

	names := make([]string, len(columns))
	pgTypes := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
		pgTypes[i] = PostgresType(c.Type)
	}
	for _, row := range rows {
		for i, v := range row {
			row[i] = postgresValue(duckValue(v, columns[i].Type), pgTypes[i])
		}
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{postgresSchema, table}, names, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("ошибка копирования строк в %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}
	p.logger.Info("Таблица %s загружена, строк: %d, файл: %s", table, copied, parquetPath)
	return nil
}

// PostgresCreateTable формирует CREATE TABLE по колонкам DuckDB
func PostgresCreateTable(table string, columns []database.Column) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pgx.Identifier{c.Name}.Sanitize() + " " + PostgresType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)",
		pgx.Identifier{postgresSchema, table}.Sanitize(), strings.Join(defs, ", "))
}

// PostgresType сопоставляет тип DuckDB типу PostgreSQL
func PostgresType(duckType string) string {
	switch t := baseType(duckType); t {
	case "BIGINT", "INT8", "LONG":
		return "BIGINT"
	case "INTEGER", "INT4", "INT", "SIGNED", "USMALLINT", "UTINYINT":
		return "INTEGER"
	case "SMALLINT", "INT2", "SHORT", "TINYINT", "INT1":
		return "SMALLINT"
	case "UINTEGER":
		return "BIGINT"
	case "UBIGINT", "HUGEINT", "UHUGEINT":
		return "NUMERIC"
	case "DECIMAL", "NUMERIC":
		return "NUMERIC" + typeParams(duckType)
	case "DOUBLE", "FLOAT8":
		return "DOUBLE PRECISION"
	case "FLOAT", "FLOAT4", "REAL":
		return "REAL"
	case "BOOLEAN", "BOOL":
		return "BOOLEAN"
	case "DATE":
		return "DATE"
	case "TIMESTAMP", "DATETIME", "TIMESTAMP_NS", "TIMESTAMP_MS", "TIMESTAMP_S":
		return "TIMESTAMP"
	case "TIMESTAMP WITH TIME ZONE", "TIMESTAMPTZ":
		return "TIMESTAMPTZ"
	case "BLOB", "BYTEA":
		return "BYTEA"
	default:
		return "TEXT"
	}
}

// postgresValue приводит значение DuckDB к типу, который кодирует pgx
func postgresValue(v interface{}, pgType string) interface{} {
	if v == nil {
		return nil
	}
	if pgType == "TEXT" {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}

	switch x := v.(type) {
	case *big.Int:
		return pgtype.Numeric{Int: x, Valid: true}
	case uint64:
		return pgtype.Numeric{Int: new(big.Int).SetUint64(x), Valid: true}
	case duckdb.Decimal:
		return pgtype.Numeric{Int: x.Value, Exp: -int32(x.Scale), Valid: true}
	case time.Time, int8, int16, int32, int64, uint8, uint16, uint32,
		float32, float64, bool, string, []byte:
		return x
	default:
		return fmt.Sprint(x)
	}
}
