package hostapp

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/localwebapp/internal/service"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

// Name is the capability name
const Name = "hostapp"

// DefaultLogCapacity bounds the per-provider log buffer
const DefaultLogCapacity = 500

var levels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// LogEntry is one message recorded by the application
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	AppID     string    `json:"app_id,omitempty"`
}

// ring is a fixed-size buffer of log entries, newest overwriting oldest
type ring struct {
	mu      sync.RWMutex
	entries []*LogEntry
	head    int
	size    int
}

func newRing(capacity int) *ring {
	return &ring{entries: make([]*LogEntry, capacity)}
}

func (r *ring) add(entry *LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.head] = entry
	r.head = (r.head + 1) % len(r.entries)
	if r.size < len(r.entries) {
		r.size++
	}
}

// recent returns up to limit entries, newest first
func (r *ring) recent(limit int, level string) []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]LogEntry, 0, min(limit, r.size))
	for i := 0; i < r.size && len(out) < limit; i++ {
		entry := r.entries[(r.head-1-i+len(r.entries))%len(r.entries)]
		if level == "" || entry.Level == level {
			out = append(out, *entry)
		}
	}
	return out
}

// Provider reports on the hosting process and the calling application
type Provider struct {
	started   time.Time
	sanitizer *bluemonday.Policy
	logs      *ring
	logger    *zap.Logger
}

// New creates the hostapp provider; started is the host start time used for uptime
func New(started time.Time, logger *zap.Logger) *Provider {
	return &Provider{
		started:   started,
		sanitizer: bluemonday.StrictPolicy(),
		logs:      newRing(DefaultLogCapacity),
		logger:    logging.OrNop(logger).Named(Name),
	}
}

// Definition returns capability metadata
func (p *Provider) Definition() types.Capability {
	return types.Capability{
		Name:        Name,
		Description: "Host and application introspection",
		Commands: []types.Command{
			{Name: "info", Description: "Manifest, verification flag and data directory of the calling app", Returns: "object"},
			{Name: "host", Description: "Host runtime information", Returns: "object"},
			{Name: "ping", Description: "Liveness check", Returns: "object"},
			{
				Name:        "log",
				Description: "Record a message in the host log",
				Parameters: []types.Parameter{
					{Name: "message", Type: "string", Description: "Log message", Required: true},
					{Name: "level", Type: "string", Description: "debug, info, warn or error", Required: false},
				},
				Returns: "object",
			},
			{
				Name:        "logs",
				Description: "Recent messages recorded by the app, newest first",
				Parameters: []types.Parameter{
					{Name: "limit", Type: "number", Description: "Maximum entries (default 100)", Required: false},
					{Name: "level", Type: "string", Description: "Filter by level", Required: false},
				},
				Returns: "object",
			},
		},
	}
}

// Execute runs one command
func (p *Provider) Execute(ctx context.Context, cmd string, data interface{}, appCtx *types.AppContext) (interface{}, error) {
	params, err := service.ParamsOf(data)
	if err != nil {
		return nil, err
	}

	switch cmd {
	case "info":
		return p.info(appCtx)
	case "host":
		return p.host(), nil
	case "ping":
		return map[string]interface{}{"pong": true, "timestamp": time.Now().UTC().Format(time.RFC3339Nano)}, nil
	case "log":
		return p.log(params, appCtx)
	case "logs":
		return p.recent(params)
	default:
		return nil, fmt.Errorf("unknown command: %s.%s", Name, cmd)
	}
}

func (p *Provider) info(appCtx *types.AppContext) (interface{}, error) {
	if appCtx == nil || appCtx.Manifest == nil {
		return nil, fmt.Errorf("%s.info requires a loaded application", Name)
	}
	m := appCtx.Manifest

	return map[string]interface{}{
		"id":             m.ID,
		"title":          p.clean(m.DisplayName),
		"publisher":      p.clean(m.PublisherName),
		"description":    p.clean(m.Description),
		"copyright":      p.clean(m.Copyright),
		"website":        p.clean(m.Website),
		"version":        m.Version,
		"entry":          m.EntryDocument(),
		"verified":       appCtx.Verified,
		"data_directory": appCtx.DataDirectory,
	}, nil
}

func (p *Provider) clean(s string) string {
	return strings.TrimSpace(p.sanitizer.Sanitize(s))
}

func (p *Provider) host() map[string]interface{} {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	hostname, _ := os.Hostname()
	return map[string]interface{}{
		"go_version":     runtime.Version(),
		"os":             runtime.GOOS,
		"arch":           runtime.GOARCH,
		"cpus":           runtime.NumCPU(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_alloc":   mem.Alloc / 1024 / 1024,
		"pid":            os.Getpid(),
		"hostname":       hostname,
		"uptime_seconds": time.Since(p.started).Seconds(),
	}
}

func (p *Provider) log(params service.Params, appCtx *types.AppContext) (interface{}, error) {
	message, err := params.String("message")
	if err != nil {
		return nil, err
	}
	level := strings.ToLower(params.OptString("level", "info"))
	if !levels[level] {
		return nil, &service.ParamError{Name: "level", Reason: fmt.Sprintf("unknown level %q", level)}
	}

	entry := &LogEntry{Timestamp: time.Now().UTC(), Level: level, Message: message}
	if appCtx != nil {
		entry.AppID = appCtx.AppID
	}
	p.logs.add(entry)

	fields := []zap.Field{logging.AppID(entry.AppID)}
	switch level {
	case "debug":
		p.logger.Debug(message, fields...)
	case "warn":
		p.logger.Warn(message, fields...)
	case "error":
		p.logger.Error(message, fields...)
	default:
		p.logger.Info(message, fields...)
	}

	return map[string]interface{}{"logged": true}, nil
}

func (p *Provider) recent(params service.Params) (interface{}, error) {
	limit, err := params.Int("limit", 100)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, &service.ParamError{Name: "limit", Reason: "must be positive"}
	}

	logs := p.logs.recent(limit, params.OptString("level", ""))
	return map[string]interface{}{"logs": logs, "count": len(logs)}, nil
}
