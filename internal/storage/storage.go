// Package storage provides local working storage for dubbing jobs and
// optional S3 publication of finished videos.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for job file storage.
//
// Temp files (uploads and intermediate audio) live under the temp directory
// and are removed once their job reaches a terminal state. Output files live
// under the output directory and are served to clients.
type Storage interface {
	// SaveTemp saves data to a new temporary file and returns its path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// TempPath returns the path of a named file in the temp directory.
	TempPath(name string) string

	// OutputPath returns the path of a named file in the output directory.
	OutputPath(name string) string

	// WriteFile writes data to path, replacing any existing file.
	WriteFile(ctx context.Context, path string, data io.Reader) error

	// LoadTemp opens a file for reading. The caller closes it.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified files. Missing files are ignored.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// UploadToS3 uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}
