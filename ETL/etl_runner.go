package etl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/LilVoxy/wdi_pipeline/ETL/changes"
	"github.com/LilVoxy/wdi_pipeline/ETL/config"
	"github.com/LilVoxy/wdi_pipeline/ETL/extractors"
	"github.com/LilVoxy/wdi_pipeline/ETL/load"
	"github.com/LilVoxy/wdi_pipeline/ETL/models"
	"github.com/LilVoxy/wdi_pipeline/ETL/shell"
	"github.com/LilVoxy/wdi_pipeline/ETL/storage"
	"github.com/LilVoxy/wdi_pipeline/ETL/transform"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
	"github.com/LilVoxy/wdi_pipeline/database"
)

// Имена операций в журнале запусков
const (
	OpDownloadWDI        = "download-wdi"
	OpDownloadPopulation = "download-population"
	OpPopulate           = "populate"
	OpExportParquet      = "export-parquet"
	OpSyncParquet        = "sync-parquet"
	OpUpdateD1           = "update-d1"
	OpExportD1           = "export-d1"
	OpDropMarts          = "drop-marts"
	OpETL                = "etl"
)

// Режимы export-d1
const (
	ExportModeD1      = "d1"
	ExportModeParquet = "parquet"
	ExportModeAll     = "all"
)

const (
	populationFile    = "population_data.parquet"
	exportedFilesJSON = "exported_files.json"
)

// ErrRunInProgress возвращается, если другая операция уже выполняется
var ErrRunInProgress = errors.New("операция ETL уже выполняется")

// EventSink получает события выполнения операций
type EventSink interface {
	Publish(event models.RunEvent)
}

// RunStats содержит итог операции для журнала
type RunStats struct {
	Tables int
	Files  int
}

// ETLRunner выполняет операции конвейера WDI
type ETLRunner struct {
	config        config.ETLConfig
	dbConnections *config.DBConnections
	logger        *utils.ETLLogger
	store         storage.Store
	warehouse     *database.Warehouse
	extractor     *extractors.Extractor
	transformer   *transform.Transformer
	detector      *changes.Detector
	loadManager   *load.LoadManager
	etlLogRepo    models.ETLLogRepository
	events        EventSink

	mu      sync.Mutex
	running bool
}

// NewETLRunner подключается к базам данных и удаленному хранилищу
func NewETLRunner(ctx context.Context, cfg config.ETLConfig, logger *utils.ETLLogger, readOnly bool) (*ETLRunner, error) {
	logger.Info("Инициализация ETL Runner")

	connections, err := config.ConnectDatabases(cfg, readOnly)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базам данных: %w", err)
	}

	runner := shell.NewExecRunner(logger)
	store, err := storage.NewStore(ctx, cfg.Remote, runner, logger)
	if err != nil {
		config.CloseDatabases(connections)
		return nil, fmt.Errorf("ошибка подключения к удаленному хранилищу: %w", err)
	}

	r, err := NewETLRunnerWithDeps(cfg, connections, store, runner, logger)
	if err != nil {
		config.CloseDatabases(connections)
		return nil, err
	}
	return r, nil
}

// NewETLRunnerWithDeps собирает ETLRunner из готовых зависимостей
func NewETLRunnerWithDeps(cfg config.ETLConfig, connections *config.DBConnections, store storage.Store, runner shell.Runner, logger *utils.ETLLogger) (*ETLRunner, error) {
	etlLogRepo := models.NewSQLiteETLLogRepository(connections.State)
	if err := etlLogRepo.CreateETLLogTable(); err != nil {
		return nil, fmt.Errorf("ошибка при создании таблицы логов ETL: %w", err)
	}

	warehouse := database.NewWarehouse(connections.Warehouse)
	tolerance := transform.Tolerance{RTol: cfg.Compare.RTol, ATol: cfg.Compare.ATol}

	return &ETLRunner{
		config:        cfg,
		dbConnections: connections,
		logger:        logger,
		store:         store,
		warehouse:     warehouse,
		extractor:     extractors.NewExtractor(cfg.WorldBank, store, logger),
		transformer:   transform.NewTransformer(warehouse, logger, cfg.Warehouse.MartPrefixes),
		detector:      changes.NewDetector(store, warehouse, tolerance, logger),
		loadManager:   load.NewLoadManager(warehouse, store, runner, cfg, logger),
		etlLogRepo:    etlLogRepo,
	}, nil
}

// SetEventSink задает получателя событий
func (r *ETLRunner) SetEventSink(sink EventSink) {
	r.events = sink
}

// Repository возвращает журнал запусков
func (r *ETLRunner) Repository() models.ETLLogRepository {
	return r.etlLogRepo
}

// Running сообщает, выполняется ли сейчас операция
func (r *ETLRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Close закрывает соединения с базами данных
func (r *ETLRunner) Close() {
	r.logger.Info("Завершение работы ETL Runner")
	if closer, ok := r.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			r.logger.Error("Ошибка при закрытии удаленного хранилища: %v", err)
		}
	}
	if err := config.CloseDatabases(r.dbConnections); err != nil {
		r.logger.Error("%v", err)
	}
}

func (r *ETLRunner) publish(eventType string, runID int, operation, message string, stats RunStats) {
	if r.events == nil {
		return
	}
	r.events.Publish(models.RunEvent{
		Type:      eventType,
		RunID:     runID,
		Operation: operation,
		Message:   message,
		Tables:    stats.Tables,
		Files:     stats.Files,
		Timestamp: time.Now(),
	})
}

// reserve занимает runner под одну операцию. Одновременно выполняется только одна операция.
// Вызывающий обязан вызвать release по завершении.
func (r *ETLRunner) reserve() (release func(), err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil, ErrRunInProgress
	}
	r.running = true
	return func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}, nil
}

// track выполняет операцию с записью в журнал и публикацией событий
func (r *ETLRunner) track(operation string, fn func() (RunStats, error)) error {
	release, err := r.reserve()
	if err != nil {
		return err
	}
	defer release()
	return r.record(operation, fn)
}

// record ведет журнал и события операции, которая уже заняла runner
func (r *ETLRunner) record(operation string, fn func() (RunStats, error)) error {
	startTime := time.Now()
	logID, err := r.etlLogRepo.CreateLogEntry(operation, startTime)
	if err != nil {
		r.logger.Error("Ошибка при создании записи в журнале ETL: %v", err)
		return fmt.Errorf("ошибка при создании записи в журнале ETL: %w", err)
	}
	r.publish(models.EventRunStarted, logID, operation, "", RunStats{})

	stats, err := fn()
	if err != nil {
		r.logger.Error("Ошибка операции %s: %v", operation, err)
		if uerr := r.etlLogRepo.UpdateLogEntryFailure(logID, time.Now(), err.Error()); uerr != nil {
			r.logger.Error("Ошибка при обновлении записи в журнале ETL: %v", uerr)
		}
		r.publish(models.EventRunFailed, logID, operation, err.Error(), stats)
		return err
	}

	if uerr := r.etlLogRepo.UpdateLogEntrySuccess(logID, time.Now(), stats.Tables, stats.Files); uerr != nil {
		r.logger.Error("Ошибка при обновлении записи в журнале ETL: %v", uerr)
	}
	r.publish(models.EventRunFinished, logID, operation, "", stats)
	r.logger.Info("Операция %s завершена. Длительность: %v", operation, time.Since(startTime))
	return nil
}

// withTempDir создает временный каталог и всегда удаляет его после fn
func (r *ETLRunner) withTempDir(pattern string, fn func(dir string) error) error {
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		return fmt.Errorf("ошибка создания временного каталога: %w", err)
	}
	r.logger.Info("Временный каталог: %s", dir)

	defer func() {
		r.logger.Info("Очистка временных файлов...")
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn("Не удалось удалить %s: %v", dir, err)
		}
	}()
	return fn(dir)
}

// syncSource выгружает файл в каталог источников, если он изменился
func (r *ETLRunner) syncSource(ctx context.Context, localPath string) (bool, error) {
	name := filepath.Base(localPath)
	r.logger.Info("Проверка, изменился ли %s в удаленном хранилище...", name)

	uploaded, err := storage.SyncFile(ctx, r.store, localPath, storage.Key(r.config.Remote.SourcesPrefix, localPath))
	if err != nil {
		return false, err
	}
	if uploaded {
		r.logger.Info("Обнаружены новые данные в %s, файл выгружен", name)
	} else {
		r.logger.Info("Файл %s не изменился", name)
	}
	return uploaded, nil
}

// DownloadWDI скачивает архив WDI, преобразует CSV в Parquet и выгружает изменившиеся файлы
func (r *ETLRunner) DownloadWDI(ctx context.Context) error {
	return r.track(OpDownloadWDI, func() (RunStats, error) {
		var stats RunStats
		err := r.withTempDir("wdi-download-", func(dir string) error {
			archive, err := r.extractor.ExtractWDIArchive(ctx, dir)
			if err != nil {
				return err
			}

			uploaded, err := r.syncSource(ctx, archive.ZipPath)
			if err != nil {
				return err
			}
			if uploaded {
				stats.Files++
			}

			result := r.transformer.ConvertCSVFiles(ctx, archive.CSVFiles, dir)
			if len(result.Failed) > 0 {
				r.logger.Warn("Не удалось преобразовать файлов: %d", len(result.Failed))
			}
			stats.Tables = len(result.Converted)

			for _, parquetPath := range result.Converted {
				uploaded, err := r.syncSource(ctx, parquetPath)
				if err != nil {
					return err
				}
				if uploaded {
					stats.Files++
				}
			}
			return nil
		})
		return stats, err
	})
}

// DownloadPopulation получает население из API и выгружает population_data.parquet
func (r *ETLRunner) DownloadPopulation(ctx context.Context) error {
	return r.track(OpDownloadPopulation, func() (RunStats, error) {
		var stats RunStats
		err := r.withTempDir("wdi-population-", func(dir string) error {
			records, err := r.extractor.ExtractPopulation(ctx)
			if err != nil {
				return err
			}

			parquetPath := filepath.Join(dir, populationFile)
			if err := r.transformer.WritePopulationParquet(ctx, records, parquetPath); err != nil {
				return err
			}
			stats.Tables = 1

			uploaded, err := r.syncSource(ctx, parquetPath)
			if err != nil {
				return err
			}
			if uploaded {
				stats.Files = 1
			}
			return nil
		})
		return stats, err
	})
}

// Populate загружает исходные Parquet-файлы из удаленного хранилища в выбранную базу
func (r *ETLRunner) Populate(ctx context.Context, target string) error {
	return r.track(OpPopulate, func() (RunStats, error) {
		var stats RunStats
		err := r.withTempDir("wdi-populate-", func(dir string) error {
			files, err := r.extractor.ExtractSources(ctx, r.config.Remote.SourcesPrefix, dir)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				r.logger.Info("В локальной копии нет Parquet-файлов")
				return nil
			}

			loaded, err := r.loadManager.Populate(ctx, target, files)
			stats.Tables = loaded
			return err
		})
		return stats, err
	})
}

// ExportParquet выгружает витрины в outputDir и записывает exported_files.json
func (r *ETLRunner) ExportParquet(ctx context.Context, outputDir string) ([]string, error) {
	var exported []string
	err := r.track(OpExportParquet, func() (RunStats, error) {
		var err error
		exported, err = r.transformer.ExportMartTables(ctx, outputDir)
		if err != nil {
			return RunStats{}, err
		}

		jsonPath := filepath.Join(outputDir, exportedFilesJSON)
		if err := models.WriteExportedFiles(jsonPath, exported); err != nil {
			return RunStats{}, err
		}
		r.logger.Info("Список выгруженных файлов записан в %s", jsonPath)
		return RunStats{Tables: len(exported)}, nil
	})
	return exported, err
}

// syncChanged находит измененные витрины и выгружает их, если не включен noUpdates
func (r *ETLRunner) syncChanged(ctx context.Context, files []string, noUpdates bool, tmpDir string) ([]string, int, error) {
	changed, err := r.detector.ChangedFiles(ctx, files, r.config.Remote.MartsPrefix, tmpDir)
	if err != nil {
		return nil, 0, err
	}
	if len(changed) == 0 {
		r.logger.Info("Изменений в Parquet-файлах не обнаружено")
		return []string{}, 0, nil
	}

	uploaded, err := changes.SyncChanged(ctx, r.store, changed, r.config.Remote.MartsPrefix, noUpdates, r.logger)
	if err != nil {
		return nil, uploaded, err
	}

	tables := changes.TableNames(changed)
	r.logger.Info("Обнаружены измененные таблицы:")
	for _, table := range tables {
		r.logger.Info("%s", table)
	}
	return tables, uploaded, nil
}

// SyncParquet сравнивает выгруженные витрины с удаленными и записывает имена измененных таблиц
func (r *ETLRunner) SyncParquet(ctx context.Context, inputJSON, outputJSON string, noUpdates bool) ([]string, error) {
	var changedTables []string
	err := r.track(OpSyncParquet, func() (RunStats, error) {
		files, err := models.ReadExportedFiles(inputJSON)
		if err != nil {
			return RunStats{}, err
		}

		var stats RunStats
		err = r.withTempDir("wdi-remote-", func(dir string) error {
			var err error
			changedTables, stats.Files, err = r.syncChanged(ctx, files, noUpdates, dir)
			return err
		})
		if err != nil {
			return stats, err
		}
		stats.Tables = len(changedTables)

		if err := models.WriteChangedTables(outputJSON, changedTables); err != nil {
			return stats, err
		}
		r.logger.Info("JSON с измененными таблицами записан в %s", outputJSON)
		return stats, nil
	})
	return changedTables, err
}

// UpdateD1 обновляет в D1 таблицы из JSON-списка измененных таблиц
func (r *ETLRunner) UpdateD1(ctx context.Context, changedJSON, mode string, sample bool) error {
	return r.track(OpUpdateD1, func() (RunStats, error) {
		tables, err := models.ReadChangedTables(changedJSON)
		if err != nil {
			return RunStats{}, err
		}

		var stats RunStats
		err = r.withTempDir("wdi-d1-", func(dir string) error {
			updated, err := r.loadManager.UpdateD1(ctx, tables, mode, sample, dir)
			stats.Tables = updated
			return err
		})
		if err == nil {
			r.logger.Info("Обновление D1 завершено")
		}
		return stats, err
	})
}

// ExportD1 выполняет полную выгрузку витрин: в D1 с проверкой хеша дампа и/или в Parquet
func (r *ETLRunner) ExportD1(ctx context.Context, exportMode string) error {
	switch exportMode {
	case ExportModeD1, ExportModeParquet, ExportModeAll:
	default:
		return fmt.Errorf("неизвестный режим экспорта: %q", exportMode)
	}

	return r.track(OpExportD1, func() (RunStats, error) {
		var stats RunStats
		err := r.withTempDir("wdi-export-", func(dir string) error {
			if exportMode == ExportModeD1 || exportMode == ExportModeAll {
				updated, err := r.loadManager.ExportD1(ctx, r.config.D1.Mode, dir)
				if err != nil {
					return err
				}
				if updated {
					stats.Files++
				}
			}

			if exportMode == ExportModeParquet || exportMode == ExportModeAll {
				r.logger.Info("Запуск экспорта в Parquet...")
				files, err := r.transformer.ExportMartTables(ctx, filepath.Join(dir, "parquet"))
				if err != nil {
					return err
				}
				stats.Tables = len(files)
				for _, f := range files {
					uploaded, err := storage.SyncFile(ctx, r.store, f, storage.Key(r.config.Remote.MartsPrefix, f))
					if err != nil {
						return err
					}
					if uploaded {
						stats.Files++
					}
				}
			}
			return nil
		})
		return stats, err
	})
}

// DropMarts удаляет таблицы витрин из D1
func (r *ETLRunner) DropMarts(ctx context.Context, mode string) error {
	return r.track(OpDropMarts, func() (RunStats, error) {
		dropped, err := r.loadManager.DropMarts(ctx, mode)
		return RunStats{Tables: len(dropped)}, err
	})
}

// ExecuteETL выполняет полный цикл: выгрузка витрин, поиск изменений,
// синхронизация с удаленным хранилищем и обновление D1
func (r *ETLRunner) ExecuteETL(ctx context.Context) error {
	r.logger.Info("Запуск ETL процесса")

	return r.track(OpETL, func() (RunStats, error) {
		return r.runETL(ctx)
	})
}

// StartETL занимает runner сразу и выполняет полный цикл в фоне.
// Если операция уже идет, возвращает ErrRunInProgress. Результат цикла
// приходит в канал после освобождения runner, затем канал закрывается.
func (r *ETLRunner) StartETL(ctx context.Context) (<-chan error, error) {
	release, err := r.reserve()
	if err != nil {
		return nil, err
	}
	r.logger.Info("Запуск ETL процесса в фоне")

	done := make(chan error, 1)
	go func() {
		err := r.record(OpETL, func() (RunStats, error) {
			return r.runETL(ctx)
		})
		release()
		done <- err
		close(done)
	}()
	return done, nil
}

// runETL содержит шаги полного цикла без учета журнала
func (r *ETLRunner) runETL(ctx context.Context) (RunStats, error) {
	var stats RunStats
	err := r.withTempDir("wdi-etl-", func(dir string) error {
		// 1. Выгрузка витрин
		files, err := r.transformer.ExportMartTables(ctx, filepath.Join(dir, "parquet"))
		if err != nil {
			return fmt.Errorf("ошибка выгрузки витрин: %w", err)
		}

		// 2. Поиск изменений и синхронизация
		remoteDir := filepath.Join(dir, "remote")
		if err := os.MkdirAll(remoteDir, 0o755); err != nil {
			return err
		}
		tables, uploaded, err := r.syncChanged(ctx, files, false, remoteDir)
		if err != nil {
			return fmt.Errorf("ошибка синхронизации витрин: %w", err)
		}
		stats.Files = uploaded

		// 3. Обновление D1
		if len(tables) == 0 {
			r.logger.Info("D1 актуальна, обновление не требуется")
			return nil
		}
		updated, err := r.loadManager.UpdateD1(ctx, tables, r.config.D1.Mode, false, filepath.Join(dir, "d1"))
		stats.Tables = updated
		if err != nil {
			return fmt.Errorf("ошибка обновления D1: %w", err)
		}
		return nil
	})
	return stats, err
}

// StartScheduler запускает ETL по расписанию до отмены контекста
func (r *ETLRunner) StartScheduler(ctx context.Context) error {
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	r.logger.Info("Запуск планировщика ETL с интервалом %v", r.config.Schedule.Interval)

	_, err := scheduler.Every(r.config.Schedule.Interval).Do(func() {
		r.logger.Info("Запланированный запуск ETL процесса")
		if err := r.ExecuteETL(ctx); err != nil {
			r.logger.Error("Ошибка при выполнении запланированного ETL: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("ошибка при настройке планировщика: %w", err)
	}

	scheduler.StartAsync()
	<-ctx.Done()
	scheduler.Stop()
	r.logger.Info("Планировщик ETL остановлен")
	return nil
}
