package models

import "time"

// Типы событий запуска
const (
	EventRunStarted  = "run_started"
	EventRunFinished = "run_finished"
	EventRunFailed   = "run_failed"
	EventRunProgress = "run_progress"
)

// RunEvent описывает событие выполнения операции ETL для подписчиков
type RunEvent struct {
	Type      string    `json:"type"`
	RunID     int       `json:"run_id"`
	Operation string    `json:"operation"`
	Message   string    `json:"message,omitempty"`
	Tables    int       `json:"tables,omitempty"`
	Files     int       `json:"files,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
