package load

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/LilVoxy/wdi_pipeline/ETL/config"
	"github.com/LilVoxy/wdi_pipeline/ETL/shell"
	"github.com/LilVoxy/wdi_pipeline/ETL/storage"
	"github.com/LilVoxy/wdi_pipeline/ETL/transform"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
	"github.com/LilVoxy/wdi_pipeline/database"
	"github.com/LilVoxy/wdi_pipeline/processor"
)

// Имя файла с хешем полного дампа в удаленном хранилище
const dumpHashFile = "wdi.hash"

// LoadManager отвечает за загрузку данных в D1 и реляционные базы
type LoadManager struct {
	warehouse *database.Warehouse
	store     storage.Store
	exporter  *SQLiteExporter
	d1        *D1Loader
	cfg       config.ETLConfig
	logger    *utils.ETLLogger
}

// NewLoadManager создает новый экземпляр LoadManager
func NewLoadManager(warehouse *database.Warehouse, store storage.Store, runner shell.Runner, cfg config.ETLConfig, logger *utils.ETLLogger) *LoadManager {
	return &LoadManager{
		warehouse: warehouse,
		store:     store,
		exporter:  NewSQLiteExporter(warehouse, cfg.D1.SampleRate, logger),
		d1:        NewD1Loader(cfg.D1, runner, logger),
		cfg:       cfg,
		logger:    logger,
	}
}

// D1 возвращает загрузчик D1
func (m *LoadManager) D1() *D1Loader {
	return m.d1
}

// UpdateD1 выполняет выгрузку измененных таблиц в D1:
// экспорт в SQLite, дамп и очистка каждой таблицы, архивирование дампа,
// удаление таблицы в D1 и применение дампа. Возвращает количество обновленных таблиц.
func (m *LoadManager) UpdateD1(ctx context.Context, tables []string, mode string, sample bool, workDir string) (int, error) {
	startTime := time.Now()
	m.logger.Info("Начало фазы Load (обновление D1, режим %s)", mode)

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return 0, fmt.Errorf("ошибка создания каталога %s: %w", workDir, err)
	}
	sqlitePath := filepath.Join(workDir, "wdi.sqlite3")
	m.logger.Info("Экспорт выбранных таблиц в SQLite в %s ...", workDir)
	exported, err := m.exporter.Export(ctx, sqlitePath, tables, sample)
	if err != nil {
		return 0, err
	}
	if len(exported) == 0 {
		return 0, nil
	}

	sqliteDB, err := config.OpenSQLite(sqlitePath)
	if err != nil {
		return 0, err
	}
	defer sqliteDB.Close()

	updated := 0
	for _, table := range exported {
		m.logger.Info("Обработка таблицы %s для обновления D1...", table)

		dump, err := transform.DumpSQLite(ctx, sqliteDB, []string{table})
		if err != nil {
			return updated, err
		}
		dumpFile := filepath.Join(workDir, table+".sql")
		if err := m.writeCleanDump(dump, dumpFile); err != nil {
			return updated, err
		}
		if err := m.archiveDump(ctx, dumpFile, table+".sql.sz"); err != nil {
			return updated, err
		}

		if err := m.d1.DropTable(ctx, table, mode); err != nil {
			return updated, err
		}
		if err := m.d1.ExecuteFile(ctx, dumpFile, mode); err != nil {
			return updated, err
		}
		updated++
	}

	m.logger.Info("Обновление D1 завершено. Таблиц: %d. Длительность: %v", updated, time.Since(startTime))
	return updated, nil
}

// ExportD1 выгружает все витрины в пересозданную базу D1, если хеш полного дампа
// отличается от сохраненного в удаленном хранилище. Возвращает true, если база обновлена.
func (m *LoadManager) ExportD1(ctx context.Context, mode, workDir string) (bool, error) {
	m.logger.Info("Запуск экспорта в D1...")

	allTables, err := m.warehouse.ShowTables(ctx)
	if err != nil {
		return false, err
	}
	var marts []string
	for _, table := range allTables {
		if database.IsMartTable(table, m.cfg.Warehouse.MartPrefixes) {
			marts = append(marts, table)
		} else {
			m.logger.Info(" - Пропуск таблицы, не являющейся витриной: %s", table)
		}
	}

	sqlitePath := filepath.Join(workDir, "wdi.sqlite3")
	exported, err := m.exporter.Export(ctx, sqlitePath, marts, false)
	if err != nil {
		return false, err
	}
	if len(exported) == 0 {
		m.logger.Info("В DuckDB нет витрин для экспорта")
		return false, nil
	}

	sqliteDB, err := config.OpenSQLite(sqlitePath)
	if err != nil {
		return false, err
	}
	dump, err := transform.DumpSQLite(ctx, sqliteDB, exported)
	sqliteDB.Close()
	if err != nil {
		return false, err
	}

	dumpFile := filepath.Join(workDir, "wdi.sql")
	if err := m.writeCleanDump(dump, dumpFile); err != nil {
		return false, err
	}

	localHash, err := processor.HashFile(dumpFile)
	if err != nil {
		return false, err
	}
	m.logger.Info("Локальный хеш: %s", localHash)

	hashKey := path.Join(m.cfg.Remote.MartsPrefix, dumpHashFile)
	remoteHash, err := m.store.Read(ctx, hashKey)
	switch {
	case errors.Is(err, storage.ErrNotExist):
		m.logger.Info("Файл удаленного хеша не найден")
	case err != nil:
		return false, err
	default:
		m.logger.Info("Удаленный хеш: %s", strings.TrimSpace(string(remoteHash)))
	}

	if strings.TrimSpace(string(remoteHash)) == localHash {
		m.logger.Info("Экспорт в Cloudflare D1 актуален, обновление не требуется")
		return false, nil
	}

	m.logger.Info("Хеши различаются, пересоздание базы D1...")
	if err := m.archiveDump(ctx, dumpFile, "wdi.sql.sz"); err != nil {
		return false, err
	}
	if err := m.d1.Recreate(ctx); err != nil {
		return false, err
	}
	if err := m.d1.ExecuteFile(ctx, dumpFile, mode); err != nil {
		return false, err
	}

	// Хеш сохраняется только после успешного обновления D1
	if err := m.store.Write(ctx, hashKey, []byte(localHash)); err != nil {
		return true, fmt.Errorf("ошибка сохранения хеша дампа: %w", err)
	}
	m.logger.Info("База Cloudflare D1 '%s' обновлена из нового дампа", m.cfg.D1.Database)
	return true, nil
}

// DropMarts удаляет таблицы витрин из D1
func (m *LoadManager) DropMarts(ctx context.Context, mode string) ([]string, error) {
	return m.d1.DropMartTables(ctx, mode, m.cfg.Warehouse.MartPrefixes)
}

// NewPopulator создает загрузчик для цели populate
func (m *LoadManager) NewPopulator(ctx context.Context, target string) (Populator, error) {
	switch target {
	case TargetDuckDB:
		return NewDuckDBPopulator(m.warehouse, m.cfg.Warehouse.Schema, m.logger), nil
	case TargetPostgres:
		if m.cfg.Populate.PostgresDSN == "" {
			return nil, fmt.Errorf("не задана строка подключения PostgreSQL")
		}
		return NewPostgresPopulator(ctx, m.cfg.Populate.PostgresDSN, m.warehouse, m.logger)
	case TargetMySQL:
		if m.cfg.Populate.MySQLDSN == "" {
			return nil, fmt.Errorf("не задана строка подключения MySQL")
		}
		return NewMySQLPopulator(ctx, m.cfg.Populate.MySQLDSN, m.warehouse, m.logger)
	default:
		return nil, fmt.Errorf("неизвестная цель populate: %q", target)
	}
}

// Populate загружает Parquet-файлы в выбранную цель
func (m *LoadManager) Populate(ctx context.Context, target string, files []string) (int, error) {
	populator, err := m.NewPopulator(ctx, target)
	if err != nil {
		return 0, err
	}
	defer populator.Close()

	loaded, err := PopulateAll(ctx, populator, files, m.logger)
	if err != nil {
		return loaded, err
	}
	m.logger.Info("Загрузка в %s завершена, таблиц: %d", target, loaded)
	return loaded, nil
}

// writeCleanDump очищает дамп и записывает его в файл
func (m *LoadManager) writeCleanDump(dump, outFile string) error {
	stats, err := CleanDumpFile(dump, outFile)
	if err != nil {
		return err
	}
	m.logger.Info("Дамп очищен и записан в %s. Обработано строк: %d, пропущено: %d",
		outFile, stats.TotalLines, stats.SkippedLines)
	return nil
}

// archiveDump сжимает дамп и сохраняет его в удаленном хранилище
func (m *LoadManager) archiveDump(ctx context.Context, dumpFile, name string) error {
	data, err := os.ReadFile(dumpFile)
	if err != nil {
		return fmt.Errorf("ошибка чтения дампа %s: %w", dumpFile, err)
	}

	archive := processor.ProcessDumpArchive(data)
	key := path.Join(m.cfg.Remote.DumpsPrefix, name)
	if err := m.store.Write(ctx, key, archive.Compressed); err != nil {
		return fmt.Errorf("ошибка архивирования дампа %s: %w", name, err)
	}
	m.logger.Debug("Дамп %s архивирован: %d -> %d байт, sha256 %s",
		name, archive.OriginalSize, len(archive.Compressed), archive.Hash)
	return nil
}

// CleanDumpFile очищает текст дампа и записывает результат в файл
func CleanDumpFile(dump, outFile string) (transform.DumpStats, error) {
	cleaned, stats := transform.CleanDump(dump)
	if err := os.WriteFile(outFile, []byte(cleaned), 0o644); err != nil {
		return stats, fmt.Errorf("ошибка записи дампа %s: %w", outFile, err)
	}
	return stats, nil
}
