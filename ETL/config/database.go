package config

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/mattn/go-sqlite3"
)

// DBConnections содержит подключения к базам данных
type DBConnections struct {
	// Аналитическое хранилище DuckDB
	Warehouse *sql.DB
	// SQLite база журнала запусков ETL
	State *sql.DB
}

// OpenDuckDB открывает файл DuckDB. Пустой путь означает базу в памяти.
func OpenDuckDB(path string, readOnly bool) (*sql.DB, error) {
	dsn := path
	if readOnly && path != "" {
		dsn = path + "?access_mode=READ_ONLY"
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к DuckDB: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось установить соединение с DuckDB %s: %w", path, err)
	}
	return db, nil
}

// OpenSQLite открывает файл SQLite
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к SQLite: %w", err)
	}

	// SQLite не поддерживает параллельную запись
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось установить соединение с SQLite %s: %w", path, err)
	}
	return db, nil
}

// ConnectDatabases устанавливает подключения к DuckDB и к базе журнала запусков
func ConnectDatabases(config ETLConfig, readOnly bool) (*DBConnections, error) {
	var connections DBConnections
	var err error

	// Подключение к DuckDB (хранилище)
	connections.Warehouse, err = OpenDuckDB(config.Warehouse.DuckDBPath, readOnly)
	if err != nil {
		return nil, err
	}

	// Подключение к SQLite (журнал)
	connections.State, err = OpenSQLite(config.State.Path)
	if err != nil {
		// Закрываем первое подключение при ошибке
		connections.Warehouse.Close()
		return nil, err
	}

	return &connections, nil
}

// CloseDatabases закрывает подключения к базам данных
func CloseDatabases(connections *DBConnections) error {
	if connections == nil {
		return nil
	}

	var firstErr error
	if connections.Warehouse != nil {
		if err := connections.Warehouse.Close(); err != nil {
			firstErr = fmt.Errorf("ошибка при закрытии соединения с DuckDB: %w", err)
		}
	}

	if connections.State != nil {
		if err := connections.State.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("ошибка при закрытии соединения с SQLite: %w", err)
		}
	}
	return firstErr
}
