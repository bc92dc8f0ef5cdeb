package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Directory names inside the store root
const (
	// StoreDir is the well-known directory that scopes every application
	StoreDir = "LocalWebApp"

	// ContentDir holds the unpacked package content
	ContentDir = "content"

	// DataDir holds data written by capability handlers
	DataDir = "data"

	// StagingDir holds unpacks that have not been committed yet
	StagingDir = ".staging"
)

// Layout resolves application paths under a fixed root
type Layout struct {
	Root string
}

// NewLayout creates a layout rooted at root
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// DefaultRoot returns the per-user configuration directory,
// falling back to the system temp directory when it is unavailable
func DefaultRoot() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir
	}
	return os.TempDir()
}

// StoreRoot returns <root>/LocalWebApp
func (l Layout) StoreRoot() string {
	return filepath.Join(l.Root, StoreDir)
}

// App returns application-specific paths
func (l Layout) App(appID string) App {
	return App{ID: appID, Dir: filepath.Join(l.StoreRoot(), appID)}
}

// App holds the directories of one application
type App struct {
	ID  string
	Dir string
}

// ContentDir returns the app's unpacked content directory
func (a App) ContentDir() string {
	return filepath.Join(a.Dir, ContentDir)
}

// DataDir returns the app's data directory
func (a App) DataDir() string {
	return filepath.Join(a.Dir, DataDir)
}

// StagingDir returns the app's staging directory
func (a App) StagingDir() string {
	return filepath.Join(a.Dir, StagingDir)
}

// Resolve joins a relative path onto base and rejects escapes from base
func Resolve(base, relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		relativePath = strings.TrimLeft(relativePath, `/\`)
	}
	full := filepath.Join(base, filepath.FromSlash(relativePath))
	rel, err := filepath.Rel(base, full)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", relativePath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %s", relativePath, base)
	}
	return full, nil
}

// ValidateAppID checks if an app ID is valid for path construction
func ValidateAppID(appID string) error {
	if appID == "" {
		return fmt.Errorf("app ID cannot be empty")
	}
	if filepath.IsAbs(appID) {
		return fmt.Errorf("app ID cannot be an absolute path")
	}
	if strings.ContainsAny(appID, `/\`) {
		return fmt.Errorf("app ID cannot contain path separators")
	}
	if appID == "." || appID == ".." || filepath.Clean(appID) != appID {
		return fmt.Errorf("app ID contains invalid path components")
	}
	return nil
}
