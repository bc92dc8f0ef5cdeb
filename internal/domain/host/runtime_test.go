package host

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/localwebapp/internal/domain/store"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/localwebapp/internal/service"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

const appID = "com.example.notes"

func writeSource(t *testing.T, version string, extra map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"webapp.json": `{"package": {"id": "` + appID + `", "title": "Notes", "publisher": "Example Corp",
			"website": "https://example.com", "description": "Take notes", "copyright": "(c) Example",
			"icon": "icon.png", "version": "` + version + `"}}`,
		"index.html": `<html><body><script src="app.js"></script></body></html>`,
		"app.js":     "console.log('notes')",
		"icon.png":   "png",
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

func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	return New(store.New(t.TempDir(), nil), opts...)
}

func buildPackage(t *testing.T, rt *Runtime, version string) *types.Package {
	t.Helper()
	pkg, err := rt.Package(context.Background(), writeSource(t, version, nil))
	require.NoError(t, err)
	return pkg
}

func TestBuildLoadRoundTrip(t *testing.T) {
	metrics := monitoring.NewMetrics()
	rt := newRuntime(t, WithMetrics(metrics))
	pkg := buildPackage(t, rt, "1.0.0")

	handle, err := rt.Load(context.Background(), pkg, LoadOptions{Verify: true})
	require.NoError(t, err)

	assert.True(t, handle.IsVerified)
	assert.Equal(t, appID, handle.Manifest.ID)
	assert.Equal(t, "Notes", handle.Manifest.DisplayName)
	assert.Equal(t, "Example Corp", handle.Manifest.PublisherName)
	assert.Equal(t, "https://example.com", handle.Manifest.Website)
	assert.Equal(t, "Take notes", handle.Manifest.Description)
	assert.Equal(t, "(c) Example", handle.Manifest.Copyright)
	assert.Equal(t, "icon.png", handle.Manifest.Icon)
	assert.Equal(t, "1.0.0", handle.Manifest.Version)

	assert.DirExists(t, handle.AppDataDirectory)
	assert.FileExists(t, filepath.Join(handle.ContentDirectory, "index.html"))
	assert.FileExists(t, filepath.Join(handle.ContentDirectory, "app.js"))
	assert.Equal(t, types.StateLoaded, rt.State(appID))

	got, ok := rt.Handle(appID)
	require.True(t, ok)
	assert.Same(t, handle, got)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LoadsTotal.WithLabelValues("success", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AppsLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BuildsTotal.WithLabelValues("success")))
}

func TestPackageWithoutManifestFails(t *testing.T) {
	rt := newRuntime(t)
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.html"), []byte("<html></html>"), 0o644))

	pkg, err := rt.Package(context.Background(), src)
	assert.Nil(t, pkg)
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.NoDirExists(t, filepath.Join(src, "dist"))
}

func TestLoadRejectsMissingArchive(t *testing.T) {
	rt := newRuntime(t)

	_, err := rt.Load(context.Background(), &types.Package{}, LoadOptions{})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = rt.Load(context.Background(), &types.Package{ArchiveFile: filepath.Join(t.TempDir(), "none.webapp")}, LoadOptions{})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestTamperedPackageLoadsUnverified(t *testing.T) {
	metrics := monitoring.NewMetrics()
	rt := newRuntime(t, WithMetrics(metrics))
	pkg := buildPackage(t, rt, "1.0.0")

	bogus := "0000000000000000000000000000000000000000000000000000000000000000  " + filepath.Base(pkg.ArchiveFile) + "\n"
	require.NoError(t, os.WriteFile(pkg.DigestFiles.SHA256, []byte(bogus), 0o644))

	handle, err := rt.Load(context.Background(), pkg, LoadOptions{Verify: true})
	require.NoError(t, err)
	assert.False(t, handle.IsVerified)
	assert.Equal(t, appID, handle.Manifest.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LoadsTotal.WithLabelValues("success", "false")))
}

func TestMissingSidecarsLoadUnverified(t *testing.T) {
	rt := newRuntime(t)
	pkg := buildPackage(t, rt, "1.0.0")
	require.NoError(t, os.Remove(pkg.DigestFiles.SHA256))
	require.NoError(t, os.Remove(pkg.DigestFiles.SHA512))

	handle, err := rt.Load(context.Background(), pkg, LoadOptions{Verify: true})
	require.NoError(t, err)
	assert.False(t, handle.IsVerified)
}

func TestLoadWithoutVerifyIsUnverified(t *testing.T) {
	rt := newRuntime(t)
	pkg := buildPackage(t, rt, "1.0.0")

	handle, err := rt.Load(context.Background(), pkg, LoadOptions{Verify: false})
	require.NoError(t, err)
	assert.False(t, handle.IsVerified)
}

func TestReloadReplacesContent(t *testing.T) {
	rt := newRuntime(t)

	first, err := rt.Package(context.Background(), writeSource(t, "1.0.0", map[string]string{"old.txt": "v1"}))
	require.NoError(t, err)
	h1, err := rt.Load(context.Background(), first, LoadOptions{Verify: true})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(h1.ContentDirectory, "old.txt"))

	second := buildPackage(t, rt, "1.1.0")
	h2, err := rt.Load(context.Background(), second, LoadOptions{Verify: true})
	require.NoError(t, err)

	assert.NotSame(t, h1, h2)
	assert.Equal(t, "1.1.0", h2.Manifest.Version)
	assert.NoFileExists(t, filepath.Join(h2.ContentDirectory, "old.txt"))

	entries, err := os.ReadDir(filepath.Dir(h2.ContentDirectory))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".old-")
	}
}

func TestSingleFlightLoad(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	rt := newRuntime(t, withBeforeUnpack(func(string) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(entered)
		}
		<-release
	}))
	pkg := buildPackage(t, rt, "1.0.0")

	ctx := context.Background()
	first := rt.LoadAsync(ctx, pkg, LoadOptions{Verify: true})
	<-entered
	assert.Equal(t, types.StateLoading, rt.State(appID))

	second := rt.LoadAsync(ctx, pkg, LoadOptions{Verify: true})
	close(release)

	r1 := <-first
	r2 := <-second
	require.NoError(t, r1.Err)
	require.NoError(t, r2.Err)
	assert.Same(t, r1.Handle, r2.Handle)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestJoinedLoadSurvivesFirstCallerCancel(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	rt := newRuntime(t, withBeforeUnpack(func(string) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(entered)
		}
		<-release
	}))
	pkg := buildPackage(t, rt, "1.0.0")

	ctx, cancel := context.WithCancel(context.Background())
	first := rt.LoadAsync(ctx, pkg, LoadOptions{Verify: true})
	<-entered
	second := rt.LoadAsync(context.Background(), pkg, LoadOptions{Verify: true})

	cancel()
	r1 := <-first
	assert.ErrorIs(t, r1.Err, context.Canceled)

	close(release)
	r2 := <-second
	require.NoError(t, r2.Err)
	require.NotNil(t, r2.Handle)
	assert.True(t, r2.Handle.IsVerified)
	assert.Equal(t, types.StateLoaded, rt.State(appID))
	assert.FileExists(t, filepath.Join(r2.Handle.ContentDirectory, "index.html"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoadsOfDifferentAppsRunConcurrently(t *testing.T) {
	const otherID = "com.example.todo"
	entered := make(chan struct{})
	release := make(chan struct{})
	rt := newRuntime(t, withBeforeUnpack(func(id string) {
		if id == appID {
			close(entered)
			<-release
		}
	}))
	notes := buildPackage(t, rt, "1.0.0")
	todo, err := rt.Package(context.Background(), writeSource(t, "2.0.0", map[string]string{
		"webapp.json": `{"package": {"id": "` + otherID + `", "title": "Todo", "publisher": "Example Corp",
			"website": "https://example.com", "description": "Track tasks", "copyright": "(c) Example",
			"icon": "icon.png", "version": "2.0.0"}}`,
	}))
	require.NoError(t, err)

	held := rt.LoadAsync(context.Background(), notes, LoadOptions{})
	<-entered

	done := rt.LoadAsync(context.Background(), todo, LoadOptions{})
	select {
	case res := <-done:
		require.NoError(t, res.Err)
		assert.Equal(t, otherID, res.Handle.Manifest.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("load of a second app waited on the first")
	}
	assert.Equal(t, types.StateLoading, rt.State(appID))
	assert.Equal(t, types.StateLoaded, rt.State(otherID))

	close(release)
	res := <-held
	require.NoError(t, res.Err)
	assert.Len(t, rt.List(), 2)
}

func TestCancelledLoadLeavesNoContent(t *testing.T) {
	rt := newRuntime(t)
	pkg := buildPackage(t, rt, "1.0.0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rt.Load(ctx, pkg, LoadOptions{Verify: true})
	require.Error(t, err)

	assert.Eventually(t, func() bool {
		return rt.State(appID) == types.StateFailed
	}, time.Second, 10*time.Millisecond)

	_, ok := rt.Handle(appID)
	assert.False(t, ok)

	content, err := rt.Store().ContentDir(appID)
	require.NoError(t, err)
	assert.NoDirExists(t, content)
}

func TestFailedReloadKeepsPreviousHandle(t *testing.T) {
	rt := newRuntime(t)
	pkg := buildPackage(t, rt, "1.0.0")
	h1, err := rt.Load(context.Background(), pkg, LoadOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rt.Load(ctx, buildPackage(t, rt, "2.0.0"), LoadOptions{})
	require.Error(t, err)

	assert.Eventually(t, func() bool {
		return rt.Status(appID).Error != ""
	}, time.Second, 10*time.Millisecond)

	got, ok := rt.Handle(appID)
	require.True(t, ok)
	assert.Same(t, h1, got)
	assert.Equal(t, types.StateLoaded, rt.State(appID))
}

func TestRemove(t *testing.T) {
	rt := newRuntime(t)
	pkg := buildPackage(t, rt, "1.0.0")
	_, err := rt.Load(context.Background(), pkg, LoadOptions{})
	require.NoError(t, err)

	rt.Remove(appID)

	assert.Equal(t, types.StateUnloaded, rt.State(appID))
	_, ok := rt.Registry(appID)
	assert.False(t, ok)
	assert.False(t, rt.Store().Exists(appID))
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	rt := newRuntime(t)
	assert.NotPanics(t, func() {
		rt.Remove("com.example.unknown")
		rt.Remove("")
		rt.Remove("../escape")
	})
}

type stubHandler struct{ name string }

func (s stubHandler) Definition() types.Capability { return types.Capability{Name: s.name} }

func (s stubHandler) Execute(ctx context.Context, cmd string, data interface{}, appCtx *types.AppContext) (interface{}, error) {
	return appCtx.AppID, nil
}

func TestRegistryPopulatedOnLoad(t *testing.T) {
	var seen *types.HostHandle
	rt := newRuntime(t,
		WithTrustPolicy(service.Restricted("hostapp")),
		WithHandlers(func(h *types.HostHandle) []service.Handler {
			seen = h
			return []service.Handler{stubHandler{name: "hostapp"}, stubHandler{name: "files"}}
		}))
	pkg := buildPackage(t, rt, "1.0.0")

	handle, err := rt.Load(context.Background(), pkg, LoadOptions{})
	require.NoError(t, err)
	assert.Same(t, handle, seen)

	registry, ok := rt.Registry(appID)
	require.True(t, ok)
	assert.Len(t, registry.List(), 2)

	appCtx, ok := rt.AppContext(appID)
	require.True(t, ok)
	assert.False(t, appCtx.Verified)

	out, err := registry.Execute(context.Background(), &types.Request{Cmd: "hostapp.info"}, appCtx)
	require.NoError(t, err)
	assert.Equal(t, appID, out)

	_, err = registry.Execute(context.Background(), &types.Request{Cmd: "files.read"}, appCtx)
	assert.ErrorIs(t, err, service.ErrCapabilityDenied)
}

func TestList(t *testing.T) {
	rt := newRuntime(t)
	pkg := buildPackage(t, rt, "1.0.0")
	_, err := rt.Load(context.Background(), pkg, LoadOptions{Verify: true})
	require.NoError(t, err)

	list := rt.List()
	require.Len(t, list, 1)
	assert.Equal(t, appID, list[0].ID)
	assert.Equal(t, types.StateLoaded, list[0].State)
	assert.Equal(t, "1.0.0", list[0].Version)
	assert.True(t, list[0].IsVerified)
	assert.NotNil(t, list[0].LoadedAt)
}
