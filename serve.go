// serve.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	etl "github.com/LilVoxy/wdi_pipeline/ETL"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
	"github.com/LilVoxy/wdi_pipeline/routes"
	"github.com/LilVoxy/wdi_pipeline/websocket"
)

const shutdownTimeout = 10 * time.Second

// signalContext отменяется по SIGINT или SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Запускать ETL по расписанию до остановки процесса",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		return withRunner(ctx, true, func(r *etl.ETLRunner, _ *utils.ETLLogger) error {
			return r.StartScheduler(ctx)
		})
	},
}

var serveWithSchedule bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP API статуса и поток событий запусков",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		return withRunner(ctx, true, func(r *etl.ETLRunner, logger *utils.ETLLogger) error {
			wsManager := websocket.NewManager(logger)
			go wsManager.Run(ctx)
			r.SetEventSink(wsManager)

			router := mux.NewRouter()
			routes.SetupRoutes(ctx, router, r, wsManager, logger)

			if serveWithSchedule {
				go func() {
					if err := r.StartScheduler(ctx); err != nil {
						logger.Error("Ошибка планировщика: %v", err)
					}
				}()
			}

			return serveHTTP(ctx, cfg.Server.Addr, router, logger)
		})
	},
}

// serveHTTP обслуживает запросы до отмены контекста
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *utils.ETLLogger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(logger.Zap()),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Сервер запущен на %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Остановка сервера...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithSchedule, "schedule", false, "также запускать ETL по расписанию")
}
