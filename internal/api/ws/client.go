package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/localwebapp/internal/bridge"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
	"github.com/GriffinCanCode/localwebapp/internal/shared/utils"
)

// Client is a bridge.Transport over a WebSocket connection to a host
type Client struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	bridge *bridge.Bridge
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// Dial connects to a host bridge endpoint such as ws://127.0.0.1:8000/bridge/<id>
// and returns a client whose Bridge sends commands over it
func Dial(ctx context.Context, url string, logger *zap.Logger, opts ...bridge.Option) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(utils.MaxFrameSize)

	c := &Client{
		conn:   conn,
		done:   make(chan struct{}),
		logger: logging.OrNop(logger),
	}
	c.bridge = bridge.New(c, append([]bridge.Option{bridge.WithLogger(c.logger)}, opts...)...)

	go c.readLoop()
	return c, nil
}

// Bridge returns the requesting side bound to this connection
func (c *Client) Bridge() *bridge.Bridge {
	return c.bridge
}

// Done is closed once the connection has stopped reading
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Send implements bridge.Transport
func (c *Client) Send(ctx context.Context, req *types.Request) error {
	data, err := sonic.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// Close sends a close frame, drops the connection and fails pending commands
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.mu.Unlock()
		err = c.conn.Close()
		c.bridge.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.bridge.Close()

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		if messageType == websocket.TextMessage {
			c.bridge.HandleInbound(raw)
		}
	}
}
