package storage

import (
	"context"
	"io"
)

type FileStorage interface {
	// Upload stores a file and returns its storage key
	Upload(ctx context.Context, file io.Reader, path string, contentType string) (string, error)

	// Open retrieves a stored file
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes a file; deleting a missing file is not an error
	Delete(ctx context.Context, path string) error

	// URL returns the public address of a stored file
	URL(path string) string
}
