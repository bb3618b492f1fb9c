package changes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/LilVoxy/wdi_pipeline/ETL/models"
	"github.com/LilVoxy/wdi_pipeline/ETL/storage"
	"github.com/LilVoxy/wdi_pipeline/ETL/transform"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
)

// ParquetLoader загружает Parquet-файл, отсортированный по всем колонкам
type ParquetLoader interface {
	ReadParquet(ctx context.Context, path string) (*models.Frame, error)
}

// Detector определяет, какие локальные снимки витрин отличаются от удаленных
type Detector struct {
	store       storage.Store
	loader      ParquetLoader
	tolerance   transform.Tolerance
	logger      *utils.ETLLogger
	concurrency int
}

// NewDetector создает новый экземпляр Detector
func NewDetector(store storage.Store, loader ParquetLoader, tolerance transform.Tolerance, logger *utils.ETLLogger) *Detector {
	return &Detector{
		store:       store,
		loader:      loader,
		tolerance:   tolerance,
		logger:      logger,
		concurrency: 4,
	}
}

// ChangedFiles возвращает локальные файлы, которые отсутствуют в удаленном хранилище
// или отличаются от удаленной копии больше допуска. Порядок входных файлов сохраняется.
func (d *Detector) ChangedFiles(ctx context.Context, localFiles []string, prefix, tmpDir string) ([]string, error) {
	results, err := storage.Check(ctx, d.store, localFiles, prefix)
	if err != nil {
		return nil, fmt.Errorf("ошибка сравнения с удаленным хранилищем: %w", err)
	}

	changed := make([]bool, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for i, result := range results {
		name := filepath.Base(result.LocalPath)
		switch result.Status {
		case models.CheckSame:
			d.logger.Debug("Файл не изменился: %s", name)
		case models.CheckMissing:
			d.logger.Info("Удаленный файл отсутствует: %s", name)
			changed[i] = true
		default:
			i, result := i, result
			g.Go(func() error {
				differs, err := d.contentDiffers(gctx, result, filepath.Join(tmpDir, strconv.Itoa(i)))
				if err != nil {
					return err
				}
				changed[i] = differs
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	files := []string{}
	for i, result := range results {
		if changed[i] {
			files = append(files, result.LocalPath)
		}
	}
	return files, nil
}

// contentDiffers загружает удаленную копию в собственный каталог downloadDir
// и сравнивает содержимое с допуском
func (d *Detector) contentDiffers(ctx context.Context, result storage.CheckResult, downloadDir string) (bool, error) {
	name := filepath.Base(result.LocalPath)
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return false, fmt.Errorf("ошибка создания каталога %s: %w", downloadDir, err)
	}
	remotePath := filepath.Join(downloadDir, name)

	if err := d.store.Download(ctx, result.Key, remotePath); err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			d.logger.Info("Удаленный файл отсутствует: %s", name)
			return true, nil
		}
		return false, fmt.Errorf("ошибка загрузки удаленного файла %s: %w", name, err)
	}

	localFrame, err := d.loader.ReadParquet(ctx, result.LocalPath)
	if err != nil {
		d.logger.Warn("Не удалось загрузить файл %s: %v", name, err)
		return true, nil
	}
	remoteFrame, err := d.loader.ReadParquet(ctx, remotePath)
	if err != nil {
		d.logger.Warn("Не удалось загрузить файл %s: %v", name, err)
		return true, nil
	}

	if err := transform.FramesEqual(localFrame, remoteFrame, d.tolerance); err != nil {
		d.logger.Info("Расхождение данных в файле %s: %v", name, err)
		return true, nil
	}

	d.logger.Info("Контрольная сумма %s отличается, но данные совпадают в пределах допуска", name)
	return false, nil
}

// TableNames возвращает имена таблиц по путям Parquet-файлов
func TableNames(files []string) []string {
	tables := make([]string, 0, len(files))
	for _, f := range files {
		tables = append(tables, strings.TrimSuffix(filepath.Base(f), ".parquet"))
	}
	return tables
}

// SyncChanged выгружает измененные файлы, если не включен режим noUpdates.
// Возвращает количество выгруженных файлов.
func SyncChanged(ctx context.Context, store storage.Store, files []string, prefix string, noUpdates bool, logger *utils.ETLLogger) (int, error) {
	if len(files) == 0 {
		return 0, nil
	}
	if noUpdates {
		logger.Info("Режим без обновлений: выгрузка в удаленное хранилище пропущена")
		return 0, nil
	}

	for _, f := range files {
		logger.Info("Синхронизация %s...", f)
		if err := store.Upload(ctx, f, storage.Key(prefix, f)); err != nil {
			return 0, err
		}
	}
	return len(files), nil
}
