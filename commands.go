// commands.go
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	etl "github.com/LilVoxy/wdi_pipeline/ETL"
	"github.com/LilVoxy/wdi_pipeline/ETL/config"
	"github.com/LilVoxy/wdi_pipeline/ETL/load"
	"github.com/LilVoxy/wdi_pipeline/ETL/models"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
	"github.com/LilVoxy/wdi_pipeline/processor"
)

var downloadWDICmd = &cobra.Command{
	Use:   "download-wdi",
	Short: "Скачать архив WDI, преобразовать CSV в Parquet и выгрузить изменения",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd.Context(), false, func(r *etl.ETLRunner, _ *utils.ETLLogger) error {
			return r.DownloadWDI(cmd.Context())
		})
	},
}

var downloadPopulationCmd = &cobra.Command{
	Use:   "download-population",
	Short: "Получить данные о населении из API Всемирного банка",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd.Context(), false, func(r *etl.ETLRunner, _ *utils.ETLLogger) error {
			return r.DownloadPopulation(cmd.Context())
		})
	},
}

var (
	populateTarget string
	useDuckDB      bool
	usePostgres    bool
)

var populateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Загрузить исходные Parquet-файлы в DuckDB, PostgreSQL или MySQL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := resolvePopulateTarget(populateTarget, useDuckDB, usePostgres)
		if err != nil {
			return err
		}
		readOnly := target != load.TargetDuckDB
		return withRunner(cmd.Context(), readOnly, func(r *etl.ETLRunner, _ *utils.ETLLogger) error {
			return r.Populate(cmd.Context(), target)
		})
	},
}

// resolvePopulateTarget выбирает цель populate; допускается ровно один способ указания
func resolvePopulateTarget(target string, duckdb, postgres bool) (string, error) {
	chosen := 0
	if target != "" {
		chosen++
	}
	if duckdb {
		chosen++
		target = load.TargetDuckDB
	}
	if postgres {
		chosen++
		target = load.TargetPostgres
	}

	if chosen != 1 {
		return "", errors.New("укажите ровно одно из --target, --use-duckdb или --use-postgres")
	}

	switch target {
	case load.TargetDuckDB, load.TargetPostgres, load.TargetMySQL:
		return target, nil
	default:
		return "", fmt.Errorf("неизвестная цель populate: %q", target)
	}
}

var exportParquetCmd = &cobra.Command{
	Use:   "export-parquet <output_dir>",
	Short: "Выгрузить витрины DuckDB в Parquet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd.Context(), true, func(r *etl.ETLRunner, _ *utils.ETLLogger) error {
			files, err := r.ExportParquet(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, files)
		})
	},
}

var noUpdates bool

var syncParquetCmd = &cobra.Command{
	Use:   "sync-parquet <input_json> <output_json>",
	Short: "Найти измененные Parquet-файлы и выгрузить их в удаленное хранилище",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd.Context(), true, func(r *etl.ETLRunner, _ *utils.ETLLogger) error {
			tables, err := r.SyncParquet(cmd.Context(), args[0], args[1], noUpdates)
			if err != nil {
				return err
			}
			return printJSON(cmd, tables)
		})
	},
}

var (
	d1Local  bool
	d1Remote bool
	d1Sample bool
)

// resolveD1Mode требует ровно один из флагов --local и --remote
func resolveD1Mode(local, remote bool) (string, error) {
	switch {
	case local && !remote:
		return config.D1ModeLocal, nil
	case remote && !local:
		return config.D1ModeRemote, nil
	default:
		return "", errors.New("укажите ровно один из флагов --local или --remote")
	}
}

var updateD1Cmd = &cobra.Command{
	Use:   "update-d1 <changed_tables_json>",
	Short: "Обновить в D1 измененные таблицы",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := resolveD1Mode(d1Local, d1Remote)
		if err != nil {
			return err
		}
		return withRunner(cmd.Context(), true, func(r *etl.ETLRunner, _ *utils.ETLLogger) error {
			return r.UpdateD1(cmd.Context(), args[0], mode, d1Sample)
		})
	},
}

var exportMode string

var exportD1Cmd = &cobra.Command{
	Use:   "export-d1",
	Short: "Полная выгрузка витрин в D1 и/или Parquet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd.Context(), true, func(r *etl.ETLRunner, _ *utils.ETLLogger) error {
			return r.ExportD1(cmd.Context(), exportMode)
		})
	},
}

var (
	dropLocal  bool
	dropRemote bool
)

var dropMartsCmd = &cobra.Command{
	Use:   "drop-marts",
	Short: "Удалить таблицы витрин из D1",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := resolveD1Mode(dropLocal, dropRemote)
		if err != nil {
			return err
		}
		return withRunner(cmd.Context(), true, func(r *etl.ETLRunner, _ *utils.ETLLogger) error {
			return r.DropMarts(cmd.Context(), mode)
		})
	},
}

var cleanDumpCmd = &cobra.Command{
	Use:   "clean-dump <input_sql> <output_sql>",
	Short: "Удалить из дампа SQLite конструкции, которые не принимает D1",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("ошибка чтения дампа %s: %w", args[0], err)
		}

		stats, err := load.CleanDumpFile(string(data), args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Обработано строк: %d, удалено: %d\n", stats.TotalLines, stats.SkippedLines)
		return nil
	},
}

var restoreHash string

var restoreDumpCmd = &cobra.Command{
	Use:   "restore-dump <archive_sql_sz> <output_sql>",
	Short: "Распаковать архив дампа и проверить его SHA-256",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		compressed, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("ошибка чтения архива %s: %w", args[0], err)
		}

		dump, err := processor.RestoreDumpArchive(compressed, restoreHash)
		if err != nil {
			return fmt.Errorf("ошибка восстановления дампа %s: %w", args[0], err)
		}
		if err := os.WriteFile(args[1], dump, 0o644); err != nil {
			return fmt.Errorf("ошибка записи дампа %s: %w", args[1], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Восстановлено байт: %d, SHA-256: %s\n", len(dump), processor.HashBytes(dump))
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Выполнить полный цикл ETL один раз",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd.Context(), true, func(r *etl.ETLRunner, _ *utils.ETLLogger) error {
			return r.ExecuteETL(cmd.Context())
		})
	},
}

var runsDays int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Показать журнал запусков ETL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsDays <= 0 {
			return fmt.Errorf("--days должен быть положительным, получено %d", runsDays)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := config.OpenSQLite(cfg.State.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := models.NewSQLiteETLLogRepository(db)
		if err := repo.CreateETLLogTable(); err != nil {
			return err
		}

		runs, err := repo.GetETLRunStats(runsDays)
		if err != nil {
			return err
		}
		if runs == nil {
			runs = []models.ETLRunLog{}
		}
		return printJSON(cmd, runs)
	},
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func init() {
	populateCmd.Flags().StringVar(&populateTarget, "target", "", "цель: duckdb, postgres или mysql")
	populateCmd.Flags().BoolVar(&useDuckDB, "use-duckdb", false, "загрузить в DuckDB")
	populateCmd.Flags().BoolVar(&usePostgres, "use-postgres", false, "загрузить в PostgreSQL")

	syncParquetCmd.Flags().BoolVar(&noUpdates, "no-updates", false, "не выгружать файлы, только найти изменения")

	updateD1Cmd.Flags().BoolVar(&d1Local, "local", false, "локальная база D1")
	updateD1Cmd.Flags().BoolVar(&d1Remote, "remote", false, "удаленная база D1")
	updateD1Cmd.Flags().BoolVar(&d1Sample, "sample", false, "выгрузить случайную выборку строк")

	exportD1Cmd.Flags().StringVar(&exportMode, "mode", etl.ExportModeAll, "режим: d1, parquet или all")

	dropMartsCmd.Flags().BoolVar(&dropLocal, "local", false, "локальная база D1")
	dropMartsCmd.Flags().BoolVar(&dropRemote, "remote", false, "удаленная база D1")

	restoreDumpCmd.Flags().StringVar(&restoreHash, "hash", "", "ожидаемый SHA-256 распакованного дампа (например, содержимое wdi.hash)")

	runsCmd.Flags().IntVar(&runsDays, "days", 7, "глубина журнала в днях")
}
