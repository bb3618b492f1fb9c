package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore хранит объекты в локальном каталоге
type LocalStore struct {
	root string
}

// NewLocalStore создает хранилище в каталоге root
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога хранилища %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

func toSlash(p string) string {
	return filepath.ToSlash(p)
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// List возвращает объекты с указанным префиксом, отсортированные по ключу
func (s *LocalStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	prefix = dirPrefix(prefix)
	var objects []ObjectInfo
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := toSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := s.Stat(ctx, key)
		if err != nil {
			return err
		}
		objects = append(objects, *info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения каталога хранилища: %w", err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Stat возвращает информацию об объекте
func (s *LocalStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	p := s.path(key)
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotExist
	}

	sum, err := FileMD5(p)
	if err != nil {
		return nil, err
	}

	return &ObjectInfo{
		Key:     key,
		Size:    info.Size(),
		MD5:     sum,
		ModTime: info.ModTime(),
	}, nil
}

// Download копирует объект в локальный файл
func (s *LocalStore) Download(ctx context.Context, key, localPath string) error {
	if _, err := os.Stat(s.path(key)); errors.Is(err, fs.ErrNotExist) {
		return ErrNotExist
	}
	return copyFile(s.path(key), localPath)
}

// Upload копирует локальный файл в хранилище
func (s *LocalStore) Upload(ctx context.Context, localPath, key string) error {
	return copyFile(localPath, s.path(key))
}

// Read возвращает содержимое объекта
func (s *LocalStore) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	return data, nil
}

// Write записывает содержимое объекта
func (s *LocalStore) Write(ctx context.Context, key string, data []byte) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("ошибка открытия %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("ошибка создания каталога для %s: %w", dst, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("ошибка создания %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("ошибка копирования %s в %s: %w", src, dst, err)
	}
	return out.Close()
}
