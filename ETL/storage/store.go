package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/LilVoxy/wdi_pipeline/ETL/config"
	"github.com/LilVoxy/wdi_pipeline/ETL/shell"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
)

// ErrNotExist возвращается, когда объекта нет в удаленном хранилище
var ErrNotExist = errors.New("объект не найден в удаленном хранилище")

// ObjectInfo описывает объект удаленного хранилища
type ObjectInfo struct {
	Key     string
	Size    int64
	MD5     string
	ModTime time.Time
}

// Store представляет объектное хранилище (R2, S3, GCS или локальный каталог)
type Store interface {
	// List возвращает объекты в каталоге prefix и его подкаталогах
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Stat возвращает информацию об объекте или ErrNotExist
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	// Download копирует объект в локальный файл
	Download(ctx context.Context, key, localPath string) error
	// Upload копирует локальный файл в объект
	Upload(ctx context.Context, localPath, key string) error
	// Read возвращает содержимое объекта или ErrNotExist
	Read(ctx context.Context, key string) ([]byte, error)
	// Write записывает содержимое объекта
	Write(ctx context.Context, key string, data []byte) error
}

// NewStore создает хранилище по конфигурации
func NewStore(ctx context.Context, cfg config.RemoteConfig, runner shell.Runner, logger *utils.ETLLogger) (Store, error) {
	switch cfg.Backend {
	case config.BackendRclone:
		return NewRcloneStore(cfg.RcloneBinary, cfg.RcloneRemote, runner, logger), nil
	case config.BackendS3:
		return NewS3Store(cfg.S3, logger)
	case config.BackendGCS:
		return NewGCSStore(ctx, cfg.GCS, logger)
	case config.BackendLocal:
		return NewLocalStore(cfg.LocalRoot)
	default:
		return nil, fmt.Errorf("неизвестный бэкенд удаленного хранилища: %q", cfg.Backend)
	}
}

// dirPrefix дополняет непустой префикс завершающим "/",
// чтобы "sources" не совпадал с "sources_old/..."
func dirPrefix(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}

// Key строит ключ объекта из префикса и имени файла
func Key(prefix, localPath string) string {
	return path.Join(prefix, path.Base(toSlash(localPath)))
}

// FileMD5 вычисляет MD5 локального файла в hex
func FileMD5(localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("ошибка открытия файла %s: %w", localPath, err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("ошибка чтения файла %s: %w", localPath, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
