// Package hosttest builds and loads small applications for tests of
// packages layered on host.Runtime.
package hosttest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/localwebapp/internal/domain/host"
	"github.com/GriffinCanCode/localwebapp/internal/domain/store"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

// AppID is the id of the application written by Source
const AppID = "com.example.notes"

// Source writes an application source directory and returns its path.
// extra adds or overrides files, keyed by slash-separated relative path.
func Source(t testing.TB, version string, extra map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"webapp.json": `{"package": {"id": "` + AppID + `", "title": "Notes", "publisher": "Example Corp", "version": "` + version + `"}}`,
		"index.html":  `<html><body><script src="app.js"></script></body></html>`,
		"app.js":      "console.log('notes')",
	}
	for name, content := range extra {
		files[name] = content
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

// Runtime creates a runtime backed by a temporary store
func Runtime(t testing.TB, opts ...host.Option) *host.Runtime {
	t.Helper()
	return host.New(store.New(t.TempDir(), nil), opts...)
}

// Load builds Source(version) and loads it with verification
func Load(t testing.TB, rt *host.Runtime, version string) *types.HostHandle {
	t.Helper()
	ctx := context.Background()
	pkg, err := rt.Package(ctx, Source(t, version, nil))
	require.NoError(t, err)
	handle, err := rt.Load(ctx, pkg, host.LoadOptions{Verify: true})
	require.NoError(t, err)
	return handle
}
