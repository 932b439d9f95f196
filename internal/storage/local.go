package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrS3NotConfigured is returned when S3 operations are attempted
// without proper configuration.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

var _ Storage = (*LocalStorage)(nil)

// LocalStorage implements the Storage interface using local disk.
type LocalStorage struct {
	tempDir   string
	outputDir string
}

// NewLocalStorage creates both directories if needed. Empty values default
// to subdirectories of os.TempDir().
func NewLocalStorage(tempDir, outputDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "smartdub", "work")
	}
	if outputDir == "" {
		outputDir = filepath.Join(os.TempDir(), "smartdub", "final")
	}

	for _, dir := range []string{tempDir, outputDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return &LocalStorage{tempDir: tempDir, outputDir: outputDir}, nil
}

// TempDir returns the temporary directory path.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// OutputDir returns the output directory path.
func (s *LocalStorage) OutputDir() string {
	return s.outputDir
}

func (s *LocalStorage) TempPath(name string) string {
	return filepath.Join(s.tempDir, filepath.Base(name))
}

func (s *LocalStorage) OutputPath(name string) string {
	return filepath.Join(s.outputDir, filepath.Base(name))
}

// SaveTemp saves data to a temporary file and returns the file path.
// The base of name is used as a prefix with a unique suffix.
func (s *LocalStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	f, err := os.CreateTemp(s.tempDir, filepath.Base(name)+"_*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	return f.Name(), finish(f, data)
}

// WriteFile writes data next to path and renames it into place, so a
// partially written file never appears under path.
func (s *LocalStorage) WriteFile(ctx context.Context, path string, data io.Reader) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"_*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if err := finish(f, data); err != nil {
		return err
	}
	if err := os.Rename(f.Name(), path); err != nil {
		_ = os.Remove(f.Name())
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// finish copies data into f and closes it, removing f on failure.
func finish(f *os.File, data io.Reader) error {
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// LoadTemp opens a file and returns a reader.
// The caller is responsible for closing the returned ReadCloser.
func (s *LocalStorage) LoadTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	f, err := os.Open(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// CleanupTemp removes the specified files, returning the first error
// encountered.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("remove file %s: %w", p, err)
		}
	}
	return firstErr
}

// UploadToS3 is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) UploadToS3(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}
