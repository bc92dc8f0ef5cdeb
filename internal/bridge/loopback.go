package bridge

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

// Loopback connects a Bridge to a Server in the same process. Requests and
// responses still pass through the JSON wire codec.
type Loopback struct {
	server *Server
	bridge *Bridge
}

// NewLoopback creates a transport that submits to server
func NewLoopback(server *Server) *Loopback {
	return &Loopback{server: server}
}

// Connect builds a bridge wired to server through a Loopback
func Connect(server *Server, opts ...Option) *Bridge {
	loop := NewLoopback(server)
	b := New(loop, opts...)
	loop.Attach(b)
	return b
}

// Attach sets the bridge that receives responses
func (l *Loopback) Attach(b *Bridge) {
	l.bridge = b
}

// Send implements Transport
func (l *Loopback) Send(ctx context.Context, req *types.Request) error {
	if l.bridge == nil {
		return fmt.Errorf("loopback has no bridge attached")
	}

	raw, err := sonic.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	var wire types.Request
	if err := sonic.Unmarshal(raw, &wire); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	// Dispatch must not wait for a handler slot. The handler runs detached
	// from the dispatching call; Await owns cancellation.
	trace := wire.Trace
	l.server.Enqueue(context.WithoutCancel(ctx), &wire, func(resp *types.Response) {
		out, err := sonic.Marshal(resp)
		if err != nil {
			l.server.logger.Error("encode response failed", zap.Error(err))
			return
		}
		l.bridge.HandleInbound(out)
	}, func() bool { return l.bridge.Waiting(trace) })
	return nil
}
