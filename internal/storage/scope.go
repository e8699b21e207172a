package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/maauso/audiogram-api/internal/domain"
)

// Static errors for scope operations.
var (
	// ErrScopeReleased is returned when a released scope is used.
	ErrScopeReleased = errors.New("scope already released")
	// ErrOutsideScope is returned when a path does not belong to the scope.
	ErrOutsideScope = errors.New("path is not owned by this scope")
)

// Scope owns every file created during one render.
// Release removes them all and may be called any number of times.
type Scope struct {
	id      string
	dir     string
	storage *LocalStorage
	logger  *slog.Logger

	mu       sync.Mutex
	paths    []string
	released bool
	once     sync.Once
}

// ID returns the scope identifier.
func (s *Scope) ID() string {
	return s.id
}

// Dir returns the scope's working directory.
func (s *Scope) Dir() string {
	return s.dir
}

// Save writes data to a new file in the scope and registers it.
// ext is an optional file extension (with or without the leading dot).
func (s *Scope) Save(ctx context.Context, kind domain.AssetKind, ext string, data io.Reader) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, fmt.Errorf("context cancelled: %w", err)
	}

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return Asset{}, ErrScopeReleased
	}
	f, err := os.CreateTemp(s.dir, string(kind)+"-*"+normalizeExt(ext))
	if err != nil {
		s.mu.Unlock()
		return Asset{}, fmt.Errorf("create temp file: %w", err)
	}
	// Registered before writing so a failed copy is still cleaned up.
	s.paths = append(s.paths, f.Name())
	s.mu.Unlock()

	n, err := io.Copy(f, data)
	if err != nil {
		_ = f.Close()
		return Asset{}, fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return Asset{}, fmt.Errorf("close temp file: %w", err)
	}

	return Asset{Path: f.Name(), Size: n, Kind: kind}, nil
}

// Reserve registers a path inside the scope for a file that an external
// producer is about to write. The file itself is not created.
func (s *Scope) Reserve(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return "", ErrScopeReleased
	}

	path := filepath.Join(s.dir, filepath.Base(name))
	s.paths = append(s.paths, path)
	return path, nil
}

// Open opens a file owned by the scope for reading.
func (s *Scope) Open(ctx context.Context, path string) (*os.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released {
		return nil, ErrScopeReleased
	}

	if filepath.Dir(filepath.Clean(path)) != s.dir {
		return nil, fmt.Errorf("%w: %s", ErrOutsideScope, path)
	}

	f, err := os.Open(path) // #nosec G304 - path is checked against the scope directory
	if err != nil {
		return nil, fmt.Errorf("open temp file: %w", err)
	}
	return f, nil
}

// Paths returns a copy of the registered paths.
func (s *Scope) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.paths))
	copy(out, s.paths)
	return out
}

// Release removes every registered file and the scope directory.
// Removal failures are logged, never returned, so they cannot mask the
// render's own error. Cancellation of ctx does not stop the cleanup.
func (s *Scope) Release(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	s.once.Do(func() {
		s.mu.Lock()
		s.released = true
		paths := s.paths
		s.paths = nil
		s.mu.Unlock()

		if err := s.storage.CleanupTemp(ctx, paths); err != nil {
			s.logger.Warn("scope cleanup incomplete",
				slog.Int("files", len(paths)),
				slog.String("error", err.Error()),
			)
		}

		// Catches anything written under the directory without registration.
		if err := os.RemoveAll(s.dir); err != nil {
			s.logger.Warn("failed to remove scope directory",
				slog.String("dir", s.dir),
				slog.String("error", err.Error()),
			)
		}

		s.logger.Debug("scope released", slog.Int("files", len(paths)))
	})
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}
