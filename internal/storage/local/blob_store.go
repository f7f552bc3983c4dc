// Package local implements a local filesystem blob store. Objects are written
// at fixed paths beneath the base directory and fully overwritten on each put.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const probeName = ".writable_test"

// Config names the output directory.
type Config struct {
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore overwrites artifact files beneath one directory.
type BlobStore struct {
	baseDir string
}

// New prepares BaseDir, creating it when missing, and fails fast when the
// directory cannot be written.
func New(cfg Config) (*BlobStore, error) {
	dir := strings.TrimSpace(cfg.BaseDir)
	if dir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := ensureWritableDir(dir); err != nil {
		return nil, err
	}
	return &BlobStore{baseDir: filepath.Clean(dir)}, nil
}

func ensureWritableDir(dir string) error {
	switch info, err := os.Stat(dir); {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create base directory: %w", err)
		}
	case err != nil:
		return fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return fmt.Errorf("base directory %s is not a directory", dir)
	}

	probe := filepath.Join(dir, probeName)
	if err := os.WriteFile(probe, nil, 0o600); err != nil {
		return fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("remove write probe: %w", err)
	}
	return nil
}

// Path returns the filesystem path for an object name.
func (s *BlobStore) Path(name string) string {
	return filepath.Join(s.baseDir, name)
}

func (s *BlobStore) resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("path is required")
	}
	full := filepath.Clean(s.Path(name))
	if !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %s", name)
	}
	return full, nil
}

// PutObject truncates the file at name and streams data into it, returning a
// file:// URI. The write happens in place, so a concurrent reader may observe
// a partially written file.
func (s *BlobStore) PutObject(_ context.Context, name string, _ string, data io.Reader) (uri string, err error) {
	full, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) // #nosec G304 -- resolve keeps full under baseDir.
	if err != nil {
		return "", fmt.Errorf("open %s: %w", name, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", name, cerr)
		}
	}()
	if _, err := io.Copy(f, data); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return "file://" + full, nil
}
