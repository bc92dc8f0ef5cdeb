// Package store owns the per-application directories under
// <root>/LocalWebApp/<appId>. Storage here is advisory: the Try and Remove
// operations log failures instead of returning them.
package store

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/localwebapp/internal/shared/paths"
)

// Store manages application directories
type Store struct {
	layout paths.Layout
	logger *zap.Logger
}

// New creates a store rooted at root; an empty root uses the user config dir
func New(root string, logger *zap.Logger) *Store {
	if root == "" {
		root = paths.DefaultRoot()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{layout: paths.NewLayout(root), logger: logger}
}

// Root returns <root>/LocalWebApp
func (s *Store) Root() string {
	return s.layout.StoreRoot()
}

// Path returns the directory of appID without touching the disk
func (s *Store) Path(appID string) (string, error) {
	if err := paths.ValidateAppID(appID); err != nil {
		return "", err
	}
	return s.layout.App(appID).Dir, nil
}

// App returns the directory layout of appID
func (s *Store) App(appID string) (paths.App, error) {
	if err := paths.ValidateAppID(appID); err != nil {
		return paths.App{}, err
	}
	return s.layout.App(appID), nil
}

// GetOrCreate returns the directory of appID, creating it and its data
// directory when absent. Calling it again is a no-op.
func (s *Store) GetOrCreate(appID string) (string, error) {
	app, err := s.App(appID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(app.DataDir(), 0o755); err != nil {
		return "", fmt.Errorf("create app directory %s: %w", app.Dir, err)
	}
	return app.Dir, nil
}

// TryGetOrCreate is GetOrCreate with failures reduced to ("", false)
func (s *Store) TryGetOrCreate(appID string) (string, bool) {
	dir, err := s.GetOrCreate(appID)
	if err != nil {
		s.logger.Debug("app directory unavailable", logging.AppID(appID), zap.Error(err))
		return "", false
	}
	return dir, true
}

// Remove deletes the directory of appID recursively. Unknown ids and
// failures are logged, never returned.
func (s *Store) Remove(appID string) {
	dir, err := s.Path(appID)
	if err != nil {
		s.logger.Debug("remove skipped", logging.AppID(appID), zap.Error(err))
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn("remove app directory failed", logging.AppID(appID), zap.Error(err))
		return
	}
	s.logger.Debug("app directory removed", logging.AppID(appID))
}

// Exists reports whether the directory of appID exists
func (s *Store) Exists(appID string) bool {
	dir, err := s.Path(appID)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// List returns the ids that have a directory, sorted
func (s *Store) List() []string {
	entries, err := os.ReadDir(s.Root())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("list store failed", zap.Error(err))
		}
		return nil
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && paths.ValidateAppID(e.Name()) == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids
}

// ContentDir returns <app>/content
func (s *Store) ContentDir(appID string) (string, error) {
	app, err := s.App(appID)
	if err != nil {
		return "", err
	}
	return app.ContentDir(), nil
}

// DataDir returns <app>/data
func (s *Store) DataDir(appID string) (string, error) {
	app, err := s.App(appID)
	if err != nil {
		return "", err
	}
	return app.DataDir(), nil
}
