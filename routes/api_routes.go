// routes/api_routes.go
package routes

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/LilVoxy/wdi_pipeline/ETL/models"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
	"github.com/LilVoxy/wdi_pipeline/websocket"
)

// Runner описывает ETL, которым управляет HTTP API
type Runner interface {
	StartETL(ctx context.Context) (<-chan error, error)
	Running() bool
	Repository() models.ETLLogRepository
}

// SetupRoutes настраивает все маршруты API и WebSocket.
// ctx ограничивает время жизни запусков, начатых через API.
func SetupRoutes(ctx context.Context, router *mux.Router, runner Runner, wsManager *websocket.Manager, logger *utils.ETLLogger) {
	router.Use(CORSMiddleware)

	h := &handlers{ctx: ctx, runner: runner, logger: logger}

	router.HandleFunc("/healthz", h.health).Methods("GET")

	// Журнал запусков
	router.HandleFunc("/api/runs", h.listRuns).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/runs/last", h.lastRun).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/state", h.state).Methods("GET", "OPTIONS")

	// Запуск ETL
	router.HandleFunc("/api/runs", h.startRun).Methods("POST")

	// Уровень логирования
	router.HandleFunc("/api/log-level", h.getLogLevel).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/log-level", h.setLogLevel).Methods("PUT")

	// События запусков
	if wsManager != nil {
		router.HandleFunc("/ws/events", wsManager.ServeWS)
	}
}

// CORSMiddleware разрешает запросы с любого источника
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
