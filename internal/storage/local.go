package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// LocalStorage はローカルファイルシステムにファイルを保存する Storage 実装。
type LocalStorage struct {
	baseDir string // ディスク上のルートディレクトリ (例: "./data")
	now     func() time.Time
}

// NewLocalStorage は LocalStorage を生成する。
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{baseDir: baseDir, now: time.Now}
}

var _ Storage = (*LocalStorage)(nil)

// Path returns the on-disk path for key.
func (s *LocalStorage) Path(key string) string {
	return filepath.Join(s.baseDir, key)
}

func (s *LocalStorage) Load(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(s.Path(key))
	if err != nil {
		return nil, fmt.Errorf("storage: read: %w", err)
	}
	return b, nil
}

// Save は同じディレクトリに一時ファイルを書いてから rename するので、
// 読み手は常に旧内容か新内容のどちらかを見る。
func (s *LocalStorage) Save(_ context.Context, key string, data io.Reader) error {
	dest := s.Path(key)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp) // no-op after a successful rename

	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		return fmt.Errorf("storage: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("storage: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("storage: close: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

func (s *LocalStorage) Quarantine(_ context.Context, key string) (string, error) {
	moved := fmt.Sprintf("%s.corrupt-%d", key, s.now().UnixNano())
	if err := os.Rename(s.Path(key), s.Path(moved)); err != nil {
		return "", fmt.Errorf("storage: quarantine: %w", err)
	}
	return moved, nil
}
