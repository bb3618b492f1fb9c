package models

import (
	"time"
)

// Статусы запуска ETL
const (
	RunStatusSuccess    = "success"
	RunStatusFailed     = "failed"
	RunStatusInProgress = "in_progress"
)

// ETLRunLog представляет запись о запуске ETL операции
type ETLRunLog struct {
	ID                   int       `json:"id"`
	Operation            string    `json:"operation"`
	StartTime            time.Time `json:"start_time"`
	EndTime              time.Time `json:"end_time"`
	Status               string    `json:"status"` // "success", "failed", "in_progress"
	TablesProcessed      int       `json:"tables_processed"`
	FilesUploaded        int       `json:"files_uploaded"`
	ErrorMessage         string    `json:"error_message,omitempty"`
	ExecutionTimeSeconds float64   `json:"execution_time_seconds"`
}

// ETLLogRepository представляет репозиторий для работы с журналом запусков
type ETLLogRepository interface {
	// CreateLogEntry создает новую запись о запуске операции
	CreateLogEntry(operation string, startTime time.Time) (int, error)

	// UpdateLogEntrySuccess обновляет запись при успешном завершении
	UpdateLogEntrySuccess(id int, endTime time.Time, tablesProcessed, filesUploaded int) error

	// UpdateLogEntryFailure обновляет запись при неудачном завершении
	UpdateLogEntryFailure(id int, endTime time.Time, errorMessage string) error

	// GetLastSuccessfulRun получает информацию о последнем успешном запуске
	GetLastSuccessfulRun() (*ETLRunLog, error)

	// GetETLRunStats получает запуски за последние days дней
	GetETLRunStats(days int) ([]ETLRunLog, error)

	// GetETLStateMonitor получает сводку о состоянии ETL
	GetETLStateMonitor() (*ETLStateMonitor, error)
}

// ETLStateMonitor предоставляет информацию о текущем состоянии ETL процесса
type ETLStateMonitor struct {
	LastSuccessfulRun       *ETLRunLog `json:"last_successful_run"`
	LastFailedRun           *ETLRunLog `json:"last_failed_run,omitempty"`
	CurrentRun              *ETLRunLog `json:"current_run,omitempty"`
	TotalSuccessfulRuns     int        `json:"total_successful_runs"`
	TotalFailedRuns         int        `json:"total_failed_runs"`
	AvgExecutionTimeSeconds float64    `json:"avg_execution_time_seconds"`
	TotalTablesProcessed    int        `json:"total_tables_processed"`
}
