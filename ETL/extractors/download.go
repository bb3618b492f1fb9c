package extractors

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
)

// Downloader скачивает файлы по HTTP
type Downloader struct {
	client *resty.Client
	logger *utils.ETLLogger
}

// NewDownloader создает новый экземпляр Downloader
func NewDownloader(timeout time.Duration, logger *utils.ETLLogger) *Downloader {
	return &Downloader{
		client: resty.New().SetTimeout(timeout).SetLogger(logger.Zap().Sugar()),
		logger: logger,
	}
}

// fileNameFor определяет имя файла по Content-Disposition или по пути URL
func fileNameFor(rawURL, contentDisposition string) string {
	if contentDisposition != "" {
		if _, params, err := mime.ParseMediaType(contentDisposition); err == nil {
			if name := filepath.Base(params["filename"]); name != "." && name != "/" && name != "" {
				return name
			}
		}
	}

	if u, err := url.Parse(rawURL); err == nil {
		if name := path.Base(u.Path); name != "." && name != "/" && name != "" {
			return name
		}
	}
	return "download"
}

// DownloadFile скачивает файл в каталог destDir и возвращает путь к нему
func (d *Downloader) DownloadFile(ctx context.Context, rawURL, destDir string) (string, error) {
	d.logger.Info("Загрузка данных из %s...", rawURL)

	resp, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("ошибка загрузки %s: %w", rawURL, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		return "", fmt.Errorf("сервер вернул статус %d для %s", resp.StatusCode(), rawURL)
	}

	name := fileNameFor(rawURL, resp.Header().Get("Content-Disposition"))
	localPath := filepath.Join(destDir, name)

	file, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("ошибка создания файла %s: %w", localPath, err)
	}

	written, err := io.Copy(file, body)
	if err != nil {
		file.Close()
		return "", fmt.Errorf("ошибка записи %s: %w", localPath, err)
	}
	if err := file.Close(); err != nil {
		return "", err
	}

	d.logger.Info("Загружен файл %s (%d байт)", name, written)
	return localPath, nil
}
