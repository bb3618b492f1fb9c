package extractors

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/LilVoxy/wdi_pipeline/ETL/config"
	"github.com/LilVoxy/wdi_pipeline/ETL/models"
	"github.com/LilVoxy/wdi_pipeline/ETL/storage"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
)

// Extractor координирует извлечение данных Всемирного банка и исходных файлов
type Extractor struct {
	cfg        config.WorldBankConfig
	logger     *utils.ETLLogger
	worldBank  *WorldBankClient
	downloader *Downloader
	sources    *SourceFetcher
}

// NewExtractor создает новый экземпляр Extractor
func NewExtractor(cfg config.WorldBankConfig, store storage.Store, logger *utils.ETLLogger) *Extractor {
	return &Extractor{
		cfg:        cfg,
		logger:     logger,
		worldBank:  NewWorldBankClient(cfg.APIBaseURL, cfg.HTTPTimeout, logger),
		downloader: NewDownloader(cfg.HTTPTimeout, logger),
		sources:    NewSourceFetcher(store, logger),
	}
}

// WDIArchive содержит скачанный архив WDI и извлеченные из него CSV
type WDIArchive struct {
	ZipPath  string
	CSVFiles []string
}

// ExtractWDIArchive скачивает архив WDI в workDir и распаковывает его
func (e *Extractor) ExtractWDIArchive(ctx context.Context, workDir string) (*WDIArchive, error) {
	startTime := time.Now()
	e.logger.LogPhaseStart("extract-wdi")

	zipPath, err := e.downloader.DownloadFile(ctx, e.cfg.WDIZipURL, workDir)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Распаковка архива...")
	files, err := Unzip(zipPath, workDir)
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки архива WDI: %w", err)
	}

	archive := &WDIArchive{ZipPath: zipPath}
	for _, f := range files {
		e.logger.Info(" - %s", filepath.Base(f))
		if strings.EqualFold(filepath.Ext(f), ".csv") {
			archive.CSVFiles = append(archive.CSVFiles, f)
		}
	}

	e.logger.LogPhaseComplete("extract-wdi", len(archive.CSVFiles), time.Since(startTime))
	return archive, nil
}

// ExtractPopulation получает данные о населении из API
func (e *Extractor) ExtractPopulation(ctx context.Context) ([]models.PopulationRecord, error) {
	startTime := time.Now()
	e.logger.LogPhaseStart("extract-population")

	records, err := e.worldBank.FetchPopulation(ctx, e.cfg.Indicator, e.cfg.Date, e.cfg.PerPage)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения данных о населении: %w", err)
	}

	e.logger.LogPhaseComplete("extract-population", len(records), time.Since(startTime))
	return records, nil
}

// ExtractSources загружает исходные Parquet-файлы из удаленного хранилища
func (e *Extractor) ExtractSources(ctx context.Context, prefix, dir string) ([]string, error) {
	return e.sources.FetchSources(ctx, prefix, dir)
}
