package models

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteETLLogRepository реализация ETLLogRepository для SQLite
type SQLiteETLLogRepository struct {
	db *sql.DB
}

// NewSQLiteETLLogRepository создает новый экземпляр SQLiteETLLogRepository
func NewSQLiteETLLogRepository(db *sql.DB) *SQLiteETLLogRepository {
	return &SQLiteETLLogRepository{
		db: db,
	}
}

const runLogColumns = `
		id, operation, start_time, end_time, status,
		tables_processed, files_uploaded, IFNULL(error_message, ''), IFNULL(execution_time_seconds, 0)`

// CreateETLLogTable создает таблицу журнала запусков, если она не существует
func (r *SQLiteETLLogRepository) CreateETLLogTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS etl_run_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NULL,
		status TEXT NOT NULL DEFAULT 'in_progress'
			CHECK (status IN ('success', 'failed', 'in_progress')),
		tables_processed INTEGER DEFAULT 0,
		files_uploaded INTEGER DEFAULT 0,
		error_message TEXT,
		execution_time_seconds REAL
	);
	`

	_, err := r.db.Exec(query)
	if err != nil {
		return fmt.Errorf("ошибка при создании таблицы etl_run_log: %w", err)
	}

	return nil
}

// CreateLogEntry создает новую запись о запуске операции
func (r *SQLiteETLLogRepository) CreateLogEntry(operation string, startTime time.Time) (int, error) {
	query := `
	INSERT INTO etl_run_log (operation, start_time, status)
	VALUES (?, ?, 'in_progress')
	`

	result, err := r.db.Exec(query, operation, startTime.UTC())
	if err != nil {
		return 0, fmt.Errorf("ошибка при создании записи о запуске ETL: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ошибка при получении ID созданной записи: %w", err)
	}

	return int(id), nil
}

// executionSeconds рассчитывает время выполнения по времени начала записи
func (r *SQLiteETLLogRepository) executionSeconds(id int, endTime time.Time) (float64, error) {
	var startTime time.Time
	err := r.db.QueryRow("SELECT start_time FROM etl_run_log WHERE id = ?", id).Scan(&startTime)
	if err != nil {
		return 0, fmt.Errorf("ошибка при получении времени начала ETL: %w", err)
	}
	return endTime.Sub(startTime).Seconds(), nil
}

// UpdateLogEntrySuccess обновляет запись при успешном завершении
func (r *SQLiteETLLogRepository) UpdateLogEntrySuccess(id int, endTime time.Time, tablesProcessed, filesUploaded int) error {
	executionTime, err := r.executionSeconds(id, endTime)
	if err != nil {
		return err
	}

	query := `
	UPDATE etl_run_log
	SET
		end_time = ?,
		status = 'success',
		tables_processed = ?,
		files_uploaded = ?,
		execution_time_seconds = ?
	WHERE id = ?
	`

	_, err = r.db.Exec(query, endTime.UTC(), tablesProcessed, filesUploaded, executionTime, id)
	if err != nil {
		return fmt.Errorf("ошибка при обновлении записи о запуске ETL: %w", err)
	}

	return nil
}

// UpdateLogEntryFailure обновляет запись при неудачном завершении
func (r *SQLiteETLLogRepository) UpdateLogEntryFailure(id int, endTime time.Time, errorMessage string) error {
	executionTime, err := r.executionSeconds(id, endTime)
	if err != nil {
		return err
	}

	query := `
	UPDATE etl_run_log
	SET
		end_time = ?,
		status = 'failed',
		error_message = ?,
		execution_time_seconds = ?
	WHERE id = ?
	`

	_, err = r.db.Exec(query, endTime.UTC(), errorMessage, executionTime, id)
	if err != nil {
		return fmt.Errorf("ошибка при обновлении записи о запуске ETL: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRunLog(row rowScanner) (*ETLRunLog, error) {
	var log ETLRunLog
	var endTime sql.NullTime
	err := row.Scan(
		&log.ID, &log.Operation, &log.StartTime, &endTime, &log.Status,
		&log.TablesProcessed, &log.FilesUploaded, &log.ErrorMessage, &log.ExecutionTimeSeconds,
	)
	if err != nil {
		return nil, err
	}
	if endTime.Valid {
		log.EndTime = endTime.Time
	}
	return &log, nil
}

// lastRunWithStatus возвращает последнюю запись с указанным статусом или nil
func (r *SQLiteETLLogRepository) lastRunWithStatus(status string) (*ETLRunLog, error) {
	query := `SELECT` + runLogColumns + `
	FROM etl_run_log
	WHERE status = ?
	ORDER BY start_time DESC, id DESC
	LIMIT 1
	`

	log, err := scanRunLog(r.db.QueryRow(query, status))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return log, nil
}

// GetLastSuccessfulRun получает информацию о последнем успешном запуске
func (r *SQLiteETLLogRepository) GetLastSuccessfulRun() (*ETLRunLog, error) {
	log, err := r.lastRunWithStatus(RunStatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении информации о последнем успешном запуске ETL: %w", err)
	}
	return log, nil
}

// GetETLRunStats получает запуски за последние days дней, новые первыми
func (r *SQLiteETLLogRepository) GetETLRunStats(days int) ([]ETLRunLog, error) {
	query := `SELECT` + runLogColumns + `
	FROM etl_run_log
	WHERE start_time >= ?
	ORDER BY start_time DESC, id DESC
	`

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := r.db.Query(query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении статистики запусков ETL: %w", err)
	}
	defer rows.Close()

	var logs []ETLRunLog
	for rows.Next() {
		log, err := scanRunLog(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка при сканировании записи о запуске ETL: %w", err)
		}
		logs = append(logs, *log)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка после итерации по записям о запусках ETL: %w", err)
	}

	return logs, nil
}

// GetETLStateMonitor получает информацию о текущем состоянии ETL процесса
func (r *SQLiteETLLogRepository) GetETLStateMonitor() (*ETLStateMonitor, error) {
	lastSuccessful, err := r.GetLastSuccessfulRun()
	if err != nil {
		return nil, err
	}

	lastFailed, err := r.lastRunWithStatus(RunStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении информации о последнем неудачном запуске ETL: %w", err)
	}

	currentRun, err := r.lastRunWithStatus(RunStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении информации о текущем запуске ETL: %w", err)
	}
	if currentRun != nil {
		currentRun.ExecutionTimeSeconds = time.Since(currentRun.StartTime).Seconds()
	}

	// Общая статистика запусков
	var totalSuccess, totalFailed, totalTables int
	var avgExecutionTime sql.NullFloat64
	err = r.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			AVG(CASE WHEN status = 'success' THEN execution_time_seconds ELSE NULL END),
			COALESCE(SUM(CASE WHEN status = 'success' THEN tables_processed ELSE 0 END), 0)
		FROM etl_run_log
	`).Scan(&totalSuccess, &totalFailed, &avgExecutionTime, &totalTables)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении статистики запусков ETL: %w", err)
	}

	return &ETLStateMonitor{
		LastSuccessfulRun:       lastSuccessful,
		LastFailedRun:           lastFailed,
		CurrentRun:              currentRun,
		TotalSuccessfulRuns:     totalSuccess,
		TotalFailedRuns:         totalFailed,
		AvgExecutionTimeSeconds: avgExecutionTime.Float64,
		TotalTablesProcessed:    totalTables,
	}, nil
}
