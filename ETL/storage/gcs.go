package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/LilVoxy/wdi_pipeline/ETL/config"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
)

// GCSStore работает с бакетом Google Cloud Storage
type GCSStore struct {
	bucket *gcs.BucketHandle
	client *gcs.Client
	logger *utils.ETLLogger
}

// NewGCSStore создает хранилище GCS с учетными данными по умолчанию
func NewGCSStore(ctx context.Context, cfg config.GCSConfig, logger *utils.ETLLogger) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента GCS: %w", err)
	}

	return &GCSStore{
		bucket: client.Bucket(cfg.Bucket),
		client: client,
		logger: logger,
	}, nil
}

// Close закрывает клиент GCS
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func gcsInfo(attrs *gcs.ObjectAttrs) ObjectInfo {
	return ObjectInfo{
		Key:     attrs.Name,
		Size:    attrs.Size,
		MD5:     hex.EncodeToString(attrs.MD5),
		ModTime: attrs.Updated,
	}
}

// List возвращает объекты под префиксом
func (s *GCSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	it := s.bucket.Objects(ctx, &gcs.Query{Prefix: dirPrefix(prefix)})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ошибка получения списка объектов %s: %w", prefix, err)
		}
		objects = append(objects, gcsInfo(attrs))
	}
	return objects, nil
}

// Stat возвращает информацию об объекте
func (s *GCSStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	attrs, err := s.bucket.Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("ошибка получения информации об объекте %s: %w", key, err)
	}
	info := gcsInfo(attrs)
	return &info, nil
}

// Download копирует объект в локальный файл
func (s *GCSStore) Download(ctx context.Context, key, localPath string) error {
	reader, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return ErrNotExist
		}
		return fmt.Errorf("ошибка загрузки %s: %w", key, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("ошибка создания файла %s: %w", localPath, err)
	}

	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		return fmt.Errorf("ошибка загрузки %s: %w", key, err)
	}
	return file.Close()
}

// Upload копирует локальный файл в бакет
func (s *GCSStore) Upload(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("ошибка открытия файла %s: %w", localPath, err)
	}
	defer file.Close()

	s.logger.Debug("GCS: выгрузка %s -> %s", localPath, key)
	writer := s.bucket.Object(key).NewWriter(ctx)
	if _, err := io.Copy(writer, file); err != nil {
		writer.Close()
		return fmt.Errorf("ошибка выгрузки %s: %w", localPath, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("ошибка завершения выгрузки %s: %w", localPath, err)
	}
	return nil
}

// Read возвращает содержимое объекта
func (s *GCSStore) Read(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("ошибка чтения %s: %w", key, err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// Write записывает содержимое объекта
func (s *GCSStore) Write(ctx context.Context, key string, data []byte) error {
	writer := s.bucket.Object(key).NewWriter(ctx)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return fmt.Errorf("ошибка записи %s: %w", key, err)
	}
	return writer.Close()
}
