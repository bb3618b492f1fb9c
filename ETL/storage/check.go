package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/LilVoxy/wdi_pipeline/ETL/models"
)

// CheckResult содержит результат сравнения одного локального файла
type CheckResult struct {
	LocalPath string
	Key       string
	Status    models.CheckStatus
}

// Checker реализуется хранилищами, которые умеют сравнивать файлы самостоятельно
type Checker interface {
	CheckFiles(ctx context.Context, localPaths []string, prefix string) ([]CheckResult, error)
}

// Check сравнивает локальные файлы с объектами под prefix.
// Результаты возвращаются в порядке localPaths.
func Check(ctx context.Context, store Store, localPaths []string, prefix string) ([]CheckResult, error) {
	if checker, ok := store.(Checker); ok {
		return checker.CheckFiles(ctx, localPaths, prefix)
	}

	results := make([]CheckResult, 0, len(localPaths))
	for _, p := range localPaths {
		status, err := checkFile(ctx, store, p, Key(prefix, p))
		if err != nil {
			return nil, err
		}
		results = append(results, CheckResult{LocalPath: p, Key: Key(prefix, p), Status: status})
	}
	return results, nil
}

// checkFile сравнивает файл с объектом по MD5
func checkFile(ctx context.Context, store Store, localPath, key string) (models.CheckStatus, error) {
	remote, err := store.Stat(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return models.CheckMissing, nil
		}
		return "", fmt.Errorf("ошибка проверки %s: %w", key, err)
	}

	localSum, err := FileMD5(localPath)
	if err != nil {
		return "", err
	}

	// Без MD5 (multipart ETag) считаем файл измененным
	if remote.MD5 == "" || remote.MD5 != localSum {
		return models.CheckDiffers, nil
	}
	return models.CheckSame, nil
}

// SyncFile выгружает файл, только если удаленная копия отсутствует или отличается.
// Возвращает true, если файл был выгружен.
func SyncFile(ctx context.Context, store Store, localPath, key string) (bool, error) {
	status, err := checkFile(ctx, store, localPath, key)
	if err != nil {
		return false, err
	}
	if status == models.CheckSame {
		return false, nil
	}

	if err := store.Upload(ctx, localPath, key); err != nil {
		return false, err
	}
	return true, nil
}
