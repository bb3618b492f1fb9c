package storage

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/LilVoxy/wdi_pipeline/ETL/models"
	"github.com/LilVoxy/wdi_pipeline/ETL/shell"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
)

// Коды завершения rclone
const (
	rcloneExitDifferences  = 1
	rcloneExitDirNotFound  = 3
	rcloneExitFileNotFound = 4
)

// RcloneStore работает с удаленным хранилищем через утилиту rclone
type RcloneStore struct {
	binary string
	remote string
	runner shell.Runner
	logger *utils.ETLLogger
}

// NewRcloneStore создает хранилище поверх rclone remote (например, "r2:wdi")
func NewRcloneStore(binary, remote string, runner shell.Runner, logger *utils.ETLLogger) *RcloneStore {
	if binary == "" {
		binary = "rclone"
	}
	return &RcloneStore{
		binary: binary,
		remote: strings.TrimSuffix(remote, "/"),
		runner: runner,
		logger: logger,
	}
}

// remotePath возвращает полный путь rclone для ключа
func (s *RcloneStore) remotePath(key string) string {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return s.remote
	}
	if strings.HasSuffix(s.remote, ":") {
		return s.remote + key
	}
	return s.remote + "/" + key
}

func (s *RcloneStore) run(ctx context.Context, args ...string) (*shell.Result, error) {
	return s.runner.Run(ctx, shell.Command{Name: s.binary, Args: args})
}

func isNotFound(err error) bool {
	code := shell.ExitCode(err)
	return code == rcloneExitDirNotFound || code == rcloneExitFileNotFound
}

// lsjsonItem описывает элемент вывода rclone lsjson
type lsjsonItem struct {
	Path    string            `json:"Path"`
	Name    string            `json:"Name"`
	Size    int64             `json:"Size"`
	ModTime time.Time         `json:"ModTime"`
	IsDir   bool              `json:"IsDir"`
	Hashes  map[string]string `json:"Hashes"`
}

func (i lsjsonItem) info(key string) ObjectInfo {
	return ObjectInfo{
		Key:     key,
		Size:    i.Size,
		MD5:     i.Hashes["md5"],
		ModTime: i.ModTime,
	}
}

// List возвращает объекты под префиксом
func (s *RcloneStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	result, err := s.run(ctx, "lsjson", "-R", "--files-only", "--hash", s.remotePath(prefix))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения списка объектов %s: %w", s.remotePath(prefix), err)
	}

	var items []lsjsonItem
	if err := json.Unmarshal([]byte(result.Stdout), &items); err != nil {
		return nil, fmt.Errorf("ошибка разбора вывода rclone lsjson: %w", err)
	}

	objects := make([]ObjectInfo, 0, len(items))
	for _, item := range items {
		if item.IsDir {
			continue
		}
		objects = append(objects, item.info(path.Join(prefix, item.Path)))
	}
	return objects, nil
}

// Stat возвращает информацию об объекте
func (s *RcloneStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	result, err := s.run(ctx, "lsjson", "--stat", "--hash", s.remotePath(key))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("ошибка получения информации об объекте %s: %w", key, err)
	}

	var item lsjsonItem
	if err := json.Unmarshal([]byte(result.Stdout), &item); err != nil {
		return nil, fmt.Errorf("ошибка разбора вывода rclone lsjson: %w", err)
	}
	if item.IsDir {
		return nil, ErrNotExist
	}

	info := item.info(key)
	return &info, nil
}

// Download копирует объект в локальный файл
func (s *RcloneStore) Download(ctx context.Context, key, localPath string) error {
	s.logger.Debug("rclone: загрузка %s -> %s", s.remotePath(key), localPath)
	if _, err := s.run(ctx, "copyto", s.remotePath(key), localPath); err != nil {
		if isNotFound(err) {
			return ErrNotExist
		}
		return fmt.Errorf("ошибка загрузки %s: %w", key, err)
	}
	return nil
}

// Upload копирует локальный файл в удаленное хранилище
func (s *RcloneStore) Upload(ctx context.Context, localPath, key string) error {
	s.logger.Debug("rclone: выгрузка %s -> %s", localPath, s.remotePath(key))
	if _, err := s.run(ctx, "copyto", localPath, s.remotePath(key)); err != nil {
		return fmt.Errorf("ошибка выгрузки %s: %w", localPath, err)
	}
	return nil
}

// Read возвращает содержимое объекта (rclone cat)
func (s *RcloneStore) Read(ctx context.Context, key string) ([]byte, error) {
	result, err := s.run(ctx, "cat", s.remotePath(key))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("ошибка чтения %s: %w", key, err)
	}
	return []byte(result.Stdout), nil
}

// Write записывает содержимое объекта (rclone rcat)
func (s *RcloneStore) Write(ctx context.Context, key string, data []byte) error {
	_, err := s.runner.Run(ctx, shell.Command{
		Name:  s.binary,
		Args:  []string{"rcat", s.remotePath(key)},
		Stdin: bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("ошибка записи %s: %w", key, err)
	}
	return nil
}

// CheckFiles сравнивает локальные файлы с удаленными через rclone check --combined
func (s *RcloneStore) CheckFiles(ctx context.Context, localPaths []string, prefix string) ([]CheckResult, error) {
	// rclone check работает с каталогами, поэтому группируем файлы по каталогу
	statusByPath := make(map[string]models.CheckStatus, len(localPaths))
	byDir := make(map[string][]string)
	var dirs []string
	for _, p := range localPaths {
		dir := filepath.Dir(p)
		if _, ok := byDir[dir]; !ok {
			dirs = append(dirs, dir)
		}
		byDir[dir] = append(byDir[dir], filepath.Base(p))
	}

	for _, dir := range dirs {
		report, err := s.checkDir(ctx, dir, byDir[dir], prefix)
		if err != nil {
			return nil, err
		}
		for name, status := range report {
			statusByPath[filepath.Join(dir, name)] = status
		}
	}

	results := make([]CheckResult, 0, len(localPaths))
	for _, p := range localPaths {
		status, ok := statusByPath[filepath.Clean(p)]
		if !ok {
			// Отсутствие в отчете трактуем как изменение
			status = models.CheckDiffers
		}
		results = append(results, CheckResult{
			LocalPath: p,
			Key:       Key(prefix, p),
			Status:    status,
		})
	}
	return results, nil
}

// checkDir запускает rclone check для набора файлов одного каталога
func (s *RcloneStore) checkDir(ctx context.Context, dir string, names []string, prefix string) (map[string]models.CheckStatus, error) {
	tmpDir, err := os.MkdirTemp("", "rclone-check-")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного каталога: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	filesFrom := filepath.Join(tmpDir, "files.txt")
	if err := os.WriteFile(filesFrom, []byte(strings.Join(names, "\n")+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("ошибка записи списка файлов: %w", err)
	}
	combined := filepath.Join(tmpDir, "combined.txt")

	_, err = s.run(ctx, "check", dir, s.remotePath(prefix),
		"--one-way",
		"--files-from", filesFrom,
		"--combined", combined,
	)
	// Код 1 означает найденные различия, это не ошибка
	if err != nil && shell.ExitCode(err) != rcloneExitDifferences && !isNotFound(err) {
		return nil, fmt.Errorf("ошибка выполнения rclone check: %w", err)
	}

	data, readErr := os.ReadFile(combined)
	if readErr != nil {
		if err != nil {
			// Удаленного каталога нет: все файлы отсутствуют
			report := make(map[string]models.CheckStatus, len(names))
			for _, name := range names {
				report[name] = models.CheckMissing
			}
			return report, nil
		}
		return nil, fmt.Errorf("ошибка чтения отчета rclone check: %w", readErr)
	}

	return ParseCombinedReport(data), nil
}

// ParseCombinedReport разбирает отчет rclone check --combined.
// "=" совпадает, "+" отсутствует в удаленном хранилище, "*" и "!" отличаются.
func ParseCombinedReport(data []byte) map[string]models.CheckStatus {
	report := make(map[string]models.CheckStatus)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(line) < 3 || line[1] != ' ' {
			continue
		}
		name := filepath.FromSlash(line[2:])
		switch line[0] {
		case '=':
			report[name] = models.CheckSame
		case '+':
			report[name] = models.CheckMissing
		case '*', '!':
			report[name] = models.CheckDiffers
		}
	}
	return report
}
