package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/localwebapp/internal/api/middleware"
	"github.com/GriffinCanCode/localwebapp/internal/bridge"
	"github.com/GriffinCanCode/localwebapp/internal/domain/host"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/localwebapp/internal/shared/id"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
	"github.com/GriffinCanCode/localwebapp/internal/shared/utils"
)

// Connection timing
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Message directions for metrics
const (
	inbound  = "inbound"
	outbound = "outbound"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || middleware.IsLoopbackOrigin(origin)
	},
}

// Handler serves the command bridge of loaded apps over WebSocket
type Handler struct {
	runtime       *host.Runtime
	maxConcurrent int64
	tracer        *tracing.Tracer
	metrics       *monitoring.Metrics
	logger        *zap.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithMaxConcurrent bounds in-flight commands per connection
func WithMaxConcurrent(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxConcurrent = n
		}
	}
}

// WithTracer records a span per served command
func WithTracer(t *tracing.Tracer) Option {
	return func(h *Handler) { h.tracer = t }
}

// WithMetrics records connection, message and handler metrics
func WithMetrics(m *monitoring.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a WebSocket handler
func NewHandler(runtime *host.Runtime, opts ...Option) *Handler {
	h := &Handler{runtime: runtime, maxConcurrent: bridge.DefaultMaxConcurrent}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.OrNop(h.logger)
	return h
}

// conn serializes writes; gorilla allows one concurrent writer
type conn struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	metrics *monitoring.Metrics
}

func (c *conn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		return err
	}
	if messageType == websocket.TextMessage && c.metrics != nil {
		c.metrics.RecordWSMessage(outbound)
	}
	return nil
}

// HandleConnection upgrades the request and serves commands for app :id
// until the peer disconnects
func (h *Handler) HandleConnection(c *gin.Context) {
	appID := c.Param("id")
	registry, ok := h.runtime.Registry(appID)
	appCtx, _ := h.runtime.AppContext(appID)
	if !ok || appCtx == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "app not loaded", "id": appID})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.AppID(appID), zap.Error(err))
		return
	}

	log := h.logger.With(logging.AppID(appID), zap.String("conn_id", id.NewConnectionID().String()))
	log.Debug("websocket connected")
	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	server := bridge.NewServer(registry, appCtx,
		bridge.WithMaxConcurrent(h.maxConcurrent),
		bridge.WithTracer(h.tracer),
		bridge.WithServerMetrics(h.metrics),
		bridge.WithServerLogger(log),
	)
	out := &conn{ws: ws, metrics: h.metrics}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer func() {
		cancel()
		server.Wait()
		ws.Close()
		log.Debug("websocket closed")
	}()

	go h.keepAlive(ctx, out)
	h.readLoop(ctx, ws, server, out, log)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, server *bridge.Server, out *conn, log *zap.Logger) {
	ws.SetReadLimit(utils.MaxFrameSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordWSMessage(inbound)
		}

		var req types.Request
		if err := sonic.Unmarshal(raw, &req); err != nil || req.Trace == "" {
			log.Warn("malformed request frame", zap.Int("bytes", len(raw)), zap.Error(err))
			if h.metrics != nil {
				h.metrics.RecordDiscarded(monitoring.DiscardMalformed)
			}
			continue
		}

		err = server.Submit(ctx, &req, func(resp *types.Response) {
			data, err := sonic.Marshal(resp)
			if err != nil {
				log.Error("encode response failed", logging.Trace(resp.Trace), zap.Error(err))
				return
			}
			if err := out.write(websocket.TextMessage, data); err != nil {
				log.Debug("response not delivered", logging.Trace(resp.Trace), zap.Error(err))
			}
		})
		if err != nil {
			return
		}
	}
}

func (h *Handler) keepAlive(ctx context.Context, out *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := out.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
