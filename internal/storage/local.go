package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrS3NotConfigured is returned when an s3:// asset is requested
// without S3 configuration.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// LocalStorage manages the root directory under which render scopes live.
type LocalStorage struct {
	tempDir string
}

// NewLocalStorage creates a new LocalStorage instance.
// If tempDir is empty, a directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(tempDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "audiogram")
	}

	if err := os.MkdirAll(tempDir, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	return &LocalStorage{tempDir: tempDir}, nil
}

// TempDir returns the temporary directory path.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// NewScope creates a private working directory for one render.
func (s *LocalStorage) NewScope(logger *slog.Logger) (*Scope, error) {
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	dir := filepath.Join(s.tempDir, "scope-"+id)
	if err := os.Mkdir(dir, 0700); err != nil {
		return nil, fmt.Errorf("create scope directory: %w", err)
	}

	return &Scope{
		id:      id,
		dir:     dir,
		storage: s,
		logger:  logger.With(slog.String("scope_id", id)),
	}, nil
}

// CleanupTemp removes the specified temporary files.
// It continues cleanup even if some files fail to delete and
// returns every failure joined together.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove temp file %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
