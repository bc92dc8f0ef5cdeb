package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/localwebapp/internal/domain/archive"
	"github.com/GriffinCanCode/localwebapp/internal/domain/builder"
	"github.com/GriffinCanCode/localwebapp/internal/domain/integrity"
	"github.com/GriffinCanCode/localwebapp/internal/domain/manifest"
	"github.com/GriffinCanCode/localwebapp/internal/domain/store"
	"github.com/GriffinCanCode/localwebapp/internal/domain/version"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/localwebapp/internal/service"
	"github.com/GriffinCanCode/localwebapp/internal/shared/id"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

var (
	// ErrNotLoaded is returned for operations that need a loaded app
	ErrNotLoaded = errors.New("app not loaded")

	// ErrNoUpdateSource is returned by CheckForUpdate when no source is configured
	ErrNoUpdateSource = errors.New("no update source configured")
)

// LoadOptions controls one load
type LoadOptions struct {
	Verify bool
}

// LoadResult is delivered by LoadAsync
type LoadResult struct {
	Handle *types.HostHandle
	Err    error
}

// HandlerFactory builds the capability handlers of a freshly loaded app
type HandlerFactory func(handle *types.HostHandle) []service.Handler

// entry is the per-id state. The previous handle stays visible while a
// reload is in flight.
type entry struct {
	state    types.LoadState
	handle   *types.HostHandle
	registry *service.Registry
	err      error
}

// Runtime builds, loads and serves applications
type Runtime struct {
	mu    sync.RWMutex
	apps  map[string]*entry // Protected by mu
	group singleflight.Group

	flightMu sync.Mutex
	flights  map[string]*flight // Protected by flightMu

	store    *store.Store
	builder  *builder.Builder
	verifier *integrity.Verifier
	updates  UpdateSource
	handlers HandlerFactory
	policy   service.TrustPolicy
	metrics  *monitoring.Metrics
	logger   *zap.Logger

	// called between manifest read and unpack; unset outside tests
	beforeUnpack func(appID string)
}

// Option configures a Runtime
type Option func(*Runtime)

// WithBuilder sets the package builder
func WithBuilder(b *builder.Builder) Option {
	return func(r *Runtime) { r.builder = b }
}

// WithVerifier sets the archive verifier
func WithVerifier(v *integrity.Verifier) Option {
	return func(r *Runtime) { r.verifier = v }
}

// WithUpdateSource sets where CheckForUpdate looks for candidates
func WithUpdateSource(s UpdateSource) Option {
	return func(r *Runtime) { r.updates = s }
}

// WithHandlers sets the factory that populates each app's registry
func WithHandlers(f HandlerFactory) Option {
	return func(r *Runtime) { r.handlers = f }
}

// WithTrustPolicy sets the policy of every app registry
func WithTrustPolicy(p service.TrustPolicy) Option {
	return func(r *Runtime) { r.policy = p }
}

// WithMetrics adds metrics tracking to the runtime
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a runtime over st
func New(st *store.Store, opts ...Option) *Runtime {
	r := &Runtime{
		apps:     make(map[string]*entry),
		flights:  make(map[string]*flight),
		store:    st,
		policy:   service.FullTrust(),
		logger:   zap.NewNop(),
		verifier: integrity.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.builder == nil {
		r.builder = builder.New(builder.WithLogger(r.logger))
	}
	return r
}

// Store returns the package store
func (r *Runtime) Store() *store.Store {
	return r.store
}

// Package builds sourceDirectory into an archive with sidecars
func (r *Runtime) Package(ctx context.Context, sourceDirectory string) (*types.Package, error) {
	pkg, err := r.builder.Build(ctx, sourceDirectory)
	if r.metrics != nil {
		r.metrics.RecordBuild(err)
	}
	if err != nil {
		if errors.Is(err, types.ErrValidation) {
			r.logger.Error("package source is invalid", zap.String("source", sourceDirectory), zap.Error(err))
		}
		return nil, err
	}
	return pkg, nil
}

// Load unpacks pkg, optionally verifies it and makes it the active handle of
// its id. Concurrent loads of one id share a single unpack.
func (r *Runtime) Load(ctx context.Context, pkg *types.Package, opts LoadOptions) (*types.HostHandle, error) {
	res := <-r.LoadAsync(ctx, pkg, opts)
	return res.Handle, res.Err
}

// LoadAsync starts a load and returns at once. The channel receives exactly
// one result. A load joined by several callers keeps running until every one
// of them has cancelled.
func (r *Runtime) LoadAsync(ctx context.Context, pkg *types.Package, opts LoadOptions) <-chan LoadResult {
	out := make(chan LoadResult, 1)

	m, err := ReadManifest(pkg)
	if err != nil {
		r.logger.Error("package manifest unusable", zap.Error(err))
		if r.metrics != nil {
			r.metrics.RecordLoad(err, false)
		}
		out <- LoadResult{Err: err}
		return out
	}

	f := r.join(ctx, m.ID)
	shared := r.group.DoChan(m.ID, func() (interface{}, error) {
		return r.load(f.ctx, pkg, *m, opts)
	})

	go func() {
		defer r.leave(m.ID, f)
		select {
		case res := <-shared:
			if res.Err != nil {
				out <- LoadResult{Err: res.Err}
				return
			}
			out <- LoadResult{Handle: res.Val.(*types.HostHandle)}
		case <-ctx.Done():
			out <- LoadResult{Err: ctx.Err()}
		}
	}()
	return out
}

// flight is the context shared by every caller of one in-flight load. It is
// cancelled only once all of them have stopped waiting.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (r *Runtime) join(ctx context.Context, appID string) *flight {
	r.flightMu.Lock()
	defer r.flightMu.Unlock()

	f := r.flights[appID]
	if f == nil || f.ctx.Err() != nil {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		r.flights[appID] = f
		if ctx.Err() != nil {
			// Nobody is left to want this load
			cancel()
		}
	}
	f.waiters++
	return f
}

func (r *Runtime) leave(appID string, f *flight) {
	r.flightMu.Lock()
	defer r.flightMu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	if r.flights[appID] == f {
		delete(r.flights, appID)
	}
	f.cancel()
}

// ReadManifest returns the validated manifest embedded at the root of a package archive
func ReadManifest(pkg *types.Package) (*types.Manifest, error) {
	if pkg == nil || pkg.ArchiveFile == "" {
		return nil, &types.ValidationError{Reason: "package has no archive file"}
	}

	zr, err := archive.Open(pkg.ArchiveFile)
	if err != nil {
		return nil, &types.ValidationError{Path: pkg.ArchiveFile, Reason: "cannot open archive", Err: err}
	}
	defer zr.Close()

	for _, name := range manifest.FileNames {
		if !zr.Has(name) {
			continue
		}
		data, err := zr.ReadFile(name)
		if err != nil {
			return nil, &types.ValidationError{Path: pkg.ArchiveFile, Reason: "cannot read manifest descriptor", Err: err}
		}
		doc, err := manifest.Parse(name, data)
		if err != nil {
			return nil, err
		}
		if err := manifest.Validate(&doc.Manifest); err != nil {
			return nil, err
		}
		return &doc.Manifest, nil
	}
	return nil, &types.ValidationError{Path: pkg.ArchiveFile, Reason: "archive has no manifest descriptor"}
}

func (r *Runtime) load(ctx context.Context, pkg *types.Package, m types.Manifest, opts LoadOptions) (handle *types.HostHandle, err error) {
	loadID := id.NewLoadID()
	log := r.logger.With(logging.AppID(m.ID), zap.String("load_id", loadID.String()))
	start := time.Now()

	r.setState(m.ID, types.StateLoading, nil)
	defer func() {
		if err != nil {
			r.setState(m.ID, types.StateFailed, err)
			log.Error("load failed", zap.Error(err))
		}
		if r.metrics != nil {
			verified := handle != nil && handle.IsVerified
			r.metrics.RecordLoad(err, verified)
		}
	}()

	app, err := r.store.App(m.ID)
	if err != nil {
		return nil, &types.ValidationError{Reason: "manifest id is not usable", Err: err}
	}
	if _, err := r.store.GetOrCreate(m.ID); err != nil {
		return nil, err
	}

	if r.beforeUnpack != nil {
		r.beforeUnpack(m.ID)
	}

	staging := filepath.Join(app.StagingDir(), loadID.String())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	// One open file serves both verification and unpacking, so the verdict
	// describes the content that is served.
	af, err := os.Open(pkg.ArchiveFile)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer af.Close()
	info, err := af.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	verified := false
	if opts.Verify {
		ok, mismatch, verr := r.verifier.VerifyArchive(pkg.ArchiveFile, io.NewSectionReader(af, 0, info.Size()))
		switch {
		case verr != nil:
			log.Warn("verification could not run, loading unverified", zap.Error(verr))
		case !ok:
			log.Warn("loading unverified package", zap.Error(mismatch))
		default:
			verified = true
		}
	}

	zr, err := archive.NewReader(af, info.Size())
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", pkg.ArchiveFile, err)
	}
	files, err := zr.Extract(ctx, staging)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", pkg.ArchiveFile, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := commit(staging, app.ContentDir(), loadID); err != nil {
		return nil, err
	}

	handle = &types.HostHandle{
		Manifest:         m,
		IsVerified:       verified,
		AppDataDirectory: app.DataDir(),
		ContentDirectory: app.ContentDir(),
		ArchiveFile:      pkg.ArchiveFile,
		LoadedAt:         time.Now(),
	}
	registry := r.newRegistry(handle, log)

	r.mu.Lock()
	r.apps[m.ID] = &entry{state: types.StateLoaded, handle: handle, registry: registry}
	loaded := r.countLoaded()
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetAppsLoaded(loaded)
	}
	log.Info("application loaded",
		zap.String("version", m.Version),
		zap.Bool("verified", verified),
		zap.Int("files", files),
		zap.Duration("duration", time.Since(start)))
	return handle, nil
}

// commit swaps staging into place. The old content directory is moved aside
// first so content never holds a mix of two packages.
func commit(staging, content string, loadID id.LoadID) error {
	old := content + ".old-" + loadID.String()
	if err := os.Rename(content, old); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("retire previous content: %w", err)
	}
	if err := os.Rename(staging, content); err != nil {
		_ = os.Rename(old, content)
		return fmt.Errorf("commit content: %w", err)
	}
	return os.RemoveAll(old)
}

func (r *Runtime) newRegistry(handle *types.HostHandle, log *zap.Logger) *service.Registry {
	registry := service.NewRegistry(service.WithTrustPolicy(r.policy))
	if r.handlers == nil {
		return registry
	}
	for _, h := range r.handlers(handle) {
		if err := registry.Register(h); err != nil {
			log.Warn("handler not registered", zap.Error(err))
		}
	}
	return registry
}

// setState records a transition. A failed reload keeps the previous handle
// serving.
func (r *Runtime) setState(appID string, state types.LoadState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.apps[appID]
	if !ok {
		e = &entry{}
		r.apps[appID] = e
	}
	if state == types.StateFailed && e.handle != nil {
		e.state = types.StateLoaded
		e.err = err
		return
	}
	e.state = state
	e.err = err
}

func (r *Runtime) countLoaded() int {
	n := 0
	for _, e := range r.apps {
		if e.handle != nil {
			n++
		}
	}
	return n
}

// Handle returns the active handle of appID
func (r *Runtime) Handle(appID string) (*types.HostHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.apps[appID]
	if !ok || e.handle == nil {
		return nil, false
	}
	return e.handle, true
}

// Registry returns the handler registry of a loaded app
func (r *Runtime) Registry(appID string) (*service.Registry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.apps[appID]
	if !ok || e.registry == nil {
		return nil, false
	}
	return e.registry, true
}

// AppContext returns the execution context handed to capability handlers
func (r *Runtime) AppContext(appID string) (*types.AppContext, bool) {
	handle, ok := r.Handle(appID)
	if !ok {
		return nil, false
	}
	m := handle.Manifest
	return &types.AppContext{
		AppID:         m.ID,
		DataDirectory: handle.AppDataDirectory,
		Verified:      handle.IsVerified,
		Manifest:      &m,
	}, true
}

// State returns the lifecycle state of appID
func (r *Runtime) State(appID string) types.LoadState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.apps[appID]; ok {
		return e.state
	}
	return types.StateUnloaded
}

// List returns the status of every known app, sorted by id
func (r *Runtime) List() []types.AppStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.AppStatus, 0, len(r.apps))
	for appID, e := range r.apps {
		out = append(out, status(appID, e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Status returns the status of one app
func (r *Runtime) Status(appID string) types.AppStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.apps[appID]; ok {
		return status(appID, e)
	}
	return types.AppStatus{ID: appID, State: types.StateUnloaded}
}

func status(appID string, e *entry) types.AppStatus {
	s := types.AppStatus{ID: appID, State: e.state}
	if e.handle != nil {
		loadedAt := e.handle.LoadedAt
		s.Version = e.handle.Manifest.Version
		s.IsVerified = e.handle.IsVerified
		s.LoadedAt = &loadedAt
	}
	if e.err != nil {
		s.Error = e.err.Error()
	}
	return s
}

// Remove tears down the handle, registry and store directory of appID.
// Unknown ids are a no-op.
func (r *Runtime) Remove(appID string) {
	r.mu.Lock()
	delete(r.apps, appID)
	loaded := r.countLoaded()
	r.mu.Unlock()

	r.group.Forget(appID)
	r.store.Remove(appID)
	if r.metrics != nil {
		r.metrics.SetAppsLoaded(loaded)
	}
	r.logger.Info("application removed", logging.AppID(appID))
}

// CheckForUpdate returns the candidate manifest if it is strictly newer than
// the loaded one, nil otherwise
func (r *Runtime) CheckForUpdate(ctx context.Context, appID string) (*types.Manifest, error) {
	handle, ok := r.Handle(appID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, appID)
	}
	if r.updates == nil {
		return nil, ErrNoUpdateSource
	}

	candidate, err := r.updates.Latest(ctx, appID)
	if err != nil {
		r.recordUpdate(monitoring.UpdateError)
		return nil, fmt.Errorf("check for update of %s: %w", appID, err)
	}
	if candidate == nil {
		r.recordUpdate(monitoring.UpdateCurrent)
		return nil, nil
	}

	newer, err := version.IsNewer(candidate.Version, handle.Manifest.Version)
	if err != nil {
		r.recordUpdate(monitoring.UpdateError)
		return nil, err
	}
	if !newer {
		r.recordUpdate(monitoring.UpdateCurrent)
		return nil, nil
	}

	r.recordUpdate(monitoring.UpdateNewer)
	r.logger.Info("update available",
		logging.AppID(appID),
		zap.String("current", handle.Manifest.Version),
		zap.String("candidate", candidate.Version))
	return candidate, nil
}

func (r *Runtime) recordUpdate(result string) {
	if r.metrics != nil {
		r.metrics.RecordUpdateCheck(result)
	}
}
