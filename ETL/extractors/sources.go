package extractors

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/LilVoxy/wdi_pipeline/ETL/storage"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
)

// SourceFetcher копирует исходные Parquet-файлы из удаленного хранилища
type SourceFetcher struct {
	store  storage.Store
	logger *utils.ETLLogger
}

// NewSourceFetcher создает новый экземпляр SourceFetcher
func NewSourceFetcher(store storage.Store, logger *utils.ETLLogger) *SourceFetcher {
	return &SourceFetcher{store: store, logger: logger}
}

// FetchSources загружает все *.parquet под prefix в каталог dir
func (f *SourceFetcher) FetchSources(ctx context.Context, prefix, dir string) ([]string, error) {
	objects, err := f.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка источников: %w", err)
	}

	var files []string
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, ".parquet") {
			continue
		}

		localPath := filepath.Join(dir, path.Base(obj.Key))
		f.logger.Debug("Загрузка источника %s", obj.Key)
		if err := f.store.Download(ctx, obj.Key, localPath); err != nil {
			return nil, fmt.Errorf("ошибка загрузки источника %s: %w", obj.Key, err)
		}
		files = append(files, localPath)
	}

	f.logger.Info("Загружено %d исходных файлов из %s", len(files), prefix)
	return files, nil
}
