// routes/run_handlers.go
package routes

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	etl "github.com/LilVoxy/wdi_pipeline/ETL"
	"github.com/LilVoxy/wdi_pipeline/ETL/models"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
)

const (
	defaultRunDays = 7
	maxRunDays     = 365
)

type handlers struct {
	ctx    context.Context
	runner Runner
	logger *utils.ETLLogger
}

// RunsResponse структура ответа API для списка запусков
type RunsResponse struct {
	Days int                `json:"days"`
	Runs []models.ETLRunLog `json:"runs"`
}

// StartResponse структура ответа API на запуск ETL
type StartResponse struct {
	Status string `json:"status"`
}

// LogLevelRequest тело запроса на смену уровня логирования
type LogLevelRequest struct {
	Level string `json:"level"`
}

// ErrorResponse структура ответа API с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Ошибка при отправке ответа: %v", err)
	}
}

func (h *handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: message})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"running": h.runner.Running(),
	})
}

// listRuns возвращает запуски за последние days дней
func (h *handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	days := defaultRunDays
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed <= 0 || parsed > maxRunDays {
			h.writeError(w, http.StatusBadRequest, "Неверное значение параметра days")
			return
		}
		days = parsed
	}

	runs, err := h.runner.Repository().GetETLRunStats(days)
	if err != nil {
		h.logger.Error("Ошибка при получении журнала запусков: %v", err)
		h.writeError(w, http.StatusInternalServerError, "Ошибка при получении журнала запусков")
		return
	}
	if runs == nil {
		runs = []models.ETLRunLog{}
	}
	h.writeJSON(w, http.StatusOK, RunsResponse{Days: days, Runs: runs})
}

func (h *handlers) lastRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runner.Repository().GetLastSuccessfulRun()
	if err != nil {
		h.logger.Error("%v", err)
		h.writeError(w, http.StatusInternalServerError, "Ошибка при получении последнего запуска")
		return
	}
	if run == nil {
		h.writeError(w, http.StatusNotFound, "Успешных запусков еще не было")
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	monitor, err := h.runner.Repository().GetETLStateMonitor()
	if err != nil {
		h.logger.Error("%v", err)
		h.writeError(w, http.StatusInternalServerError, "Ошибка при получении состояния ETL")
		return
	}
	h.writeJSON(w, http.StatusOK, monitor)
}

// startRun запускает полный цикл ETL в фоне. Runner занимается до ответа,
// поэтому из одновременных запросов 202 получает только один.
func (h *handlers) startRun(w http.ResponseWriter, r *http.Request) {
	done, err := h.runner.StartETL(h.ctx)
	if errors.Is(err, etl.ErrRunInProgress) {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Ошибка запуска ETL через API: %v", err)
		h.writeError(w, http.StatusInternalServerError, "Ошибка запуска ETL")
		return
	}

	go func() {
		if err := <-done; err != nil {
			h.logger.Error("Ошибка ETL, запущенного через API: %v", err)
		}
	}()

	h.writeJSON(w, http.StatusAccepted, StartResponse{Status: "started"})
}

func (h *handlers) getLogLevel(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, LogLevelRequest{Level: h.logger.Level()})
}

// setLogLevel меняет уровень логирования без перезапуска сервера
func (h *handlers) setLogLevel(w http.ResponseWriter, r *http.Request) {
	var req LogLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	if err := h.logger.SetLevel(req.Level); err != nil {
		h.writeError(w, http.StatusBadRequest, "Неизвестный уровень логирования: "+req.Level)
		return
	}
	h.logger.Info("Уровень логирования изменен на %s", h.logger.Level())
	h.writeJSON(w, http.StatusOK, LogLevelRequest{Level: h.logger.Level()})
}
