package models

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// ExportedFiles список путей Parquet-файлов, выгруженных export-parquet
type ExportedFiles []string

// ChangedTables список имен таблиц, изменившихся после sync-parquet
type ChangedTables []string

// WriteStringList записывает список строк в JSON-файл
func WriteStringList(path string, items []string) error {
	if items == nil {
		items = []string{}
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("ошибка сериализации списка: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("ошибка записи %s: %w", path, err)
	}
	return nil
}

// ReadStringList читает JSON-массив строк из файла
func ReadStringList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", path, err)
	}

	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("ошибка разбора %s: %w", path, err)
	}
	return items, nil
}

// WriteExportedFiles сохраняет список выгруженных файлов
func WriteExportedFiles(path string, files ExportedFiles) error {
	return WriteStringList(path, files)
}

// ReadExportedFiles читает список выгруженных файлов
func ReadExportedFiles(path string) (ExportedFiles, error) {
	return ReadStringList(path)
}

// WriteChangedTables сохраняет список измененных таблиц
func WriteChangedTables(path string, tables ChangedTables) error {
	return WriteStringList(path, tables)
}

// ReadChangedTables читает список измененных таблиц
func ReadChangedTables(path string) (ChangedTables, error) {
	return ReadStringList(path)
}
