package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/localwebapp/internal/service"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
	"github.com/GriffinCanCode/localwebapp/internal/shared/utils"
)

// DefaultMaxConcurrent bounds in-flight handler executions per server
const DefaultMaxConcurrent = 64

// Reply delivers one response back to the requesting side
type Reply func(resp *types.Response)

// Server executes requests against a handler registry on behalf of one app
type Server struct {
	registry *service.Registry
	appCtx   *types.AppContext
	sem      *semaphore.Weighted
	wg       sync.WaitGroup

	tracer  *tracing.Tracer
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// ServerOption configures a Server
type ServerOption func(*serverConfig)

type serverConfig struct {
	maxConcurrent int64
	tracer        *tracing.Tracer
	metrics       *monitoring.Metrics
	logger        *zap.Logger
}

// WithMaxConcurrent bounds concurrent handler executions
func WithMaxConcurrent(n int64) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxConcurrent = n
		}
	}
}

// WithTracer records one span per served command
func WithTracer(t *tracing.Tracer) ServerOption {
	return func(c *serverConfig) { c.tracer = t }
}

// WithServerMetrics adds handler metrics
func WithServerMetrics(m *monitoring.Metrics) ServerOption {
	return func(c *serverConfig) { c.metrics = m }
}

// WithServerLogger sets the logger
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(c *serverConfig) { c.logger = l }
}

// NewServer creates a server for the app described by appCtx
func NewServer(registry *service.Registry, appCtx *types.AppContext, opts ...ServerOption) *Server {
	cfg := serverConfig{maxConcurrent: DefaultMaxConcurrent}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	return &Server{
		registry: registry,
		appCtx:   appCtx,
		sem:      semaphore.NewWeighted(cfg.maxConcurrent),
		tracer:   cfg.tracer,
		metrics:  cfg.metrics,
		logger:   cfg.logger,
	}
}

// Submit runs req on its own goroutine once a slot is free and passes the
// response to reply. It blocks only while every slot is taken.
func (s *Server) Submit(ctx context.Context, req *types.Request, reply Reply) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("server busy: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		reply(s.Serve(ctx, req))
	}()
	return nil
}

// Enqueue is Submit without blocking the caller. The request waits for a
// slot on its own goroutine; once it has one, wanted is asked whether the
// requester still cares, and the request is dropped unserved if not.
func (s *Server) Enqueue(ctx context.Context, req *types.Request, reply Reply, wanted func() bool) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.logger.Debug("queued command dropped", logging.Trace(req.Trace), zap.Error(err))
			return
		}
		defer s.sem.Release(1)

		if wanted != nil && !wanted() {
			s.logger.Debug("queued command abandoned", logging.Trace(req.Trace), zap.String("cmd", req.Cmd))
			return
		}
		reply(s.Serve(ctx, req))
	}()
}

// Wait blocks until every submitted or queued request has finished
func (s *Server) Wait() {
	s.wg.Wait()
}

// Serve executes req and always returns a response. Handler failures and
// unknown capabilities become error:true responses.
func (s *Server) Serve(ctx context.Context, req *types.Request) (resp *types.Response) {
	resp = &types.Response{
		Trace:   req.Trace,
		Cmd:     req.Cmd,
		Context: req.Context,
		Info:    req.Info,
	}
	resp.Timeline.Processing = time.Now()
	if requested, ok := req.Info["requested"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, requested); err == nil {
			resp.Timeline.Requested = t
		}
	} else if t, err := req.Trace.Time(); err == nil {
		// Web clients may omit info; bridge traces still carry their dispatch time
		resp.Timeline.Requested = t
	}

	appID := ""
	if s.appCtx != nil {
		appID = s.appCtx.AppID
	}

	var span *tracing.Span
	if s.tracer != nil {
		span, ctx = s.tracer.StartCommand(ctx, req, appID)
	}

	capability, command := splitCmd(req.Cmd)
	if h, cmd, err := s.registry.Resolve(req); err == nil {
		capability, command = h.Definition().Name, cmd
		resp.Handler = &capability
	}
	timer := monitoring.NewTimer(s.metrics, capability, command)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", zap.String("cmd", req.Cmd), zap.Any("panic", r))
			fail(resp, fmt.Errorf("handler panicked: %v", r))
		}
		resp.Timeline.Processed = time.Now()
		if resp.Error {
			timer.Stop(monitoring.StatusError)
		} else {
			timer.Stop(monitoring.StatusSuccess)
		}
		if span != nil {
			s.tracer.FinishCommand(span, resp)
		}
	}()

	if err := utils.ValidateContext(req.Context); err != nil {
		fail(resp, err)
		resp.Context = nil
		return resp
	}
	if err := utils.ValidateJSONDepth(req.Data, utils.MaxJSONDepth); err != nil {
		fail(resp, err)
		return resp
	}

	data, err := s.registry.Execute(ctx, req, s.appCtx)
	if err != nil {
		s.logger.Debug("command failed", logging.Trace(req.Trace), zap.String("cmd", req.Cmd), zap.Error(err))
		fail(resp, err)
		return resp
	}
	resp.Data = data
	return resp
}

func fail(resp *types.Response, err error) {
	msg := err.Error()
	resp.Error = true
	resp.Message = &msg
	resp.Data = nil
}

func splitCmd(cmd string) (string, string) {
	capability, command, _ := strings.Cut(cmd, ".")
	return capability, command
}
