package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/localwebapp/internal/api/http"
	"github.com/GriffinCanCode/localwebapp/internal/api/middleware"
	"github.com/GriffinCanCode/localwebapp/internal/api/ws"
	"github.com/GriffinCanCode/localwebapp/internal/domain/archive"
	"github.com/GriffinCanCode/localwebapp/internal/domain/builder"
	"github.com/GriffinCanCode/localwebapp/internal/domain/host"
	"github.com/GriffinCanCode/localwebapp/internal/domain/integrity"
	"github.com/GriffinCanCode/localwebapp/internal/domain/store"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/config"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/localwebapp/internal/providers"
	"github.com/GriffinCanCode/localwebapp/internal/service"
)

const shutdownTimeout = 10 * time.Second

// NewRuntime assembles a host runtime from configuration
func NewRuntime(cfg *config.Config, metrics *monitoring.Metrics, logger *zap.Logger) (*host.Runtime, error) {
	logger = logging.OrNop(logger)

	method, err := archive.ParseMethod(cfg.Host.Compression)
	if err != nil {
		return nil, err
	}
	predicate, err := integrity.ParsePredicate(cfg.Host.DigestPolicy)
	if err != nil {
		return nil, err
	}
	policy, err := service.ParseTrustPolicy(cfg.Trust.Policy, cfg.Trust.Allow)
	if err != nil {
		return nil, err
	}

	opts := []host.Option{
		host.WithBuilder(builder.New(
			builder.WithOutputDir(cfg.Host.OutputDir),
			builder.WithCompression(method),
			builder.WithLogger(logger),
		)),
		host.WithVerifier(integrity.New(integrity.WithPredicate(predicate), integrity.WithLogger(logger))),
		host.WithHandlers(providers.Factory(logger)),
		host.WithTrustPolicy(policy),
		host.WithMetrics(metrics),
		host.WithLogger(logger),
	}

	switch {
	case cfg.Update.FeedURL != "":
		opts = append(opts, host.WithUpdateSource(
			host.NewHTTPUpdateSource(cfg.Update.FeedURL, cfg.Update.Timeout, cfg.Update.Retries, logger)))
	case cfg.Update.FeedDir != "":
		opts = append(opts, host.WithUpdateSource(&host.FileUpdateSource{Dir: cfg.Update.FeedDir}))
	}

	return host.New(store.New(cfg.Store.Root, logger), opts...), nil
}

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	runtime *host.Runtime
	tracer  *tracing.Tracer
	metrics *monitoring.Metrics
	logger  *zap.Logger
	config  *config.Config
}

// NewServer creates the HTTP server for runtime
func NewServer(cfg *config.Config, runtime *host.Runtime, metrics *monitoring.Metrics, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger)
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	tracer := tracing.New("webapp", logger)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := apihttp.NewHandlers(runtime, metrics, logger)
	wsHandler := ws.NewHandler(runtime,
		ws.WithMaxConcurrent(cfg.Bridge.MaxConcurrent),
		ws.WithTracer(tracer),
		ws.WithMetrics(metrics),
		ws.WithLogger(logger),
	)

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	api.GET("/apps", handlers.ListApps)
	api.GET("/apps/:id", handlers.GetApp)
	api.POST("/apps/:id/update-check", handlers.CheckUpdate)

	router.GET("/bridge/:id", wsHandler.HandleConnection)
	router.GET("/apps/:id/*path", handlers.ServeContent)

	return &Server{
		router:  router,
		runtime: runtime,
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
		config:  cfg,
	}
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases the tracer and flushes the logger
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")
	s.tracer.Close()
	_ = s.logger.Sync()
	return nil
}
