// main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	etl "github.com/LilVoxy/wdi_pipeline/ETL"
	"github.com/LilVoxy/wdi_pipeline/ETL/config"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
)

// Глобальные флаги
var (
	configPath string
	verbose    bool
	duckDBPath string
)

var rootCmd = &cobra.Command{
	Use:   "wdi-etl",
	Short: "ETL конвейер World Development Indicators",
	Long: `Загрузка данных Всемирного банка, выгрузка витрин DuckDB в Parquet,
синхронизация с объектным хранилищем и обновление Cloudflare D1.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "путь к YAML-файлу конфигурации")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "подробный вывод")
	rootCmd.PersistentFlags().StringVar(&duckDBPath, "duckdb", "", "путь к файлу DuckDB (переопределяет конфигурацию)")

	rootCmd.AddCommand(
		downloadWDICmd,
		downloadPopulationCmd,
		populateCmd,
		exportParquetCmd,
		syncParquetCmd,
		updateD1Cmd,
		exportD1Cmd,
		dropMartsCmd,
		cleanDumpCmd,
		restoreDumpCmd,
		runCmd,
		scheduleCmd,
		serveCmd,
		runsCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig читает конфигурацию с учетом глобальных флагов
func loadConfig() (config.ETLConfig, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	if duckDBPath != "" {
		cfg.Warehouse.DuckDBPath = duckDBPath
	}
	if verbose {
		cfg.Logging.Verbose = true
	}
	return cfg, nil
}

func newLogger(cfg config.ETLConfig) (*utils.ETLLogger, error) {
	return utils.NewETLLogger(utils.LoggerOptions{
		Level:   cfg.Logging.Level,
		Verbose: cfg.Logging.Verbose,
		JSON:    cfg.Logging.JSON,
		File:    cfg.Logging.File,
	})
}

// withRunner создает ETLRunner, выполняет fn и освобождает ресурсы.
// DuckDB открывается на запись только командами, которые ее изменяют.
func withRunner(ctx context.Context, readOnly bool, fn func(r *etl.ETLRunner, logger *utils.ETLLogger) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	runner, err := etl.NewETLRunner(ctx, cfg, logger, readOnly)
	if err != nil {
		logger.Error("Ошибка при создании ETL Runner: %v", err)
		return err
	}
	defer runner.Close()

	return fn(runner, logger)
}
