package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/localwebapp/internal/shared/id"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
	"github.com/GriffinCanCode/localwebapp/internal/shared/utils"
)

// DefaultTimeout bounds Call when no timeout is configured
const DefaultTimeout = 30 * time.Second

var (
	// ErrTimeout is returned by Await when the deadline passes first
	ErrTimeout = errors.New("command timed out")

	// ErrCancelled is returned by Await when its context ends first
	ErrCancelled = errors.New("command cancelled")

	// ErrUnknownTrace is returned by Await for traces that are not pending
	ErrUnknownTrace = errors.New("unknown trace")

	// ErrClosed is returned once the bridge has been closed
	ErrClosed = errors.New("bridge closed")
)

// Transport moves requests toward the handler side. Responses come back
// through Complete or HandleInbound.
type Transport interface {
	Send(ctx context.Context, req *types.Request) error
}

// DefaultResolvedLimit bounds responses kept for traces nobody awaits yet
const DefaultResolvedLimit = 1024

// pending is one outstanding request. ch holds at most one response so
// Complete never blocks the transport.
type pending struct {
	ch         chan *types.Response
	requested  time.Time
	capability string
	awaited    bool
}

// Bridge correlates requests with responses by trace
type Bridge struct {
	mu      sync.Mutex
	pending map[id.TraceID]*pending // Protected by mu
	// resolved holds responses that arrived before Await; ring evicts the
	// oldest once it is full
	resolved map[id.TraceID]*types.Response // Protected by mu
	ring     []id.TraceID
	next     int
	closed   chan struct{}
	once     sync.Once

	transport Transport
	timeout   time.Duration
	metrics   *monitoring.Metrics
	logger    *zap.Logger
}

// Option configures a Bridge
type Option func(*Bridge)

// WithTimeout sets the timeout used by Call
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithMetrics adds metrics tracking to the bridge
func WithMetrics(m *monitoring.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a bridge sending through t
func New(t Transport, opts ...Option) *Bridge {
	b := &Bridge{
		pending:   make(map[id.TraceID]*pending),
		resolved:  make(map[id.TraceID]*types.Response),
		ring:      make([]id.TraceID, DefaultResolvedLimit),
		closed:    make(chan struct{}),
		transport: t,
		timeout:   DefaultTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dispatch sends a command and returns its trace without waiting for the
// response. A failed send leaves nothing pending.
func (b *Bridge) Dispatch(ctx context.Context, cmd string, data interface{}, reqContext map[string]interface{}, handlerID string) (id.TraceID, error) {
	select {
	case <-b.closed:
		return "", ErrClosed
	default:
	}

	if handlerID == "" {
		if err := utils.ValidateCommand(cmd); err != nil {
			return "", err
		}
	}
	if err := utils.ValidateContext(reqContext); err != nil {
		return "", err
	}

	trace := id.NewTraceID()
	capability, _, _ := strings.Cut(cmd, ".")
	p := &pending{ch: make(chan *types.Response, 1), requested: time.Now(), capability: capability}

	b.mu.Lock()
	b.pending[trace] = p
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.RecordDispatch(capability)
	}

	req := &types.Request{
		Trace:     trace,
		Cmd:       cmd,
		HandlerID: handlerID,
		Data:      data,
		Context:   reqContext,
		Info:      map[string]interface{}{"requested": p.requested.UTC().Format(time.RFC3339Nano)},
	}
	if err := b.transport.Send(ctx, req); err != nil {
		b.settle(trace, monitoring.OutcomeFailed)
		return "", fmt.Errorf("send %s: %w", cmd, err)
	}

	b.logger.Debug("command dispatched", logging.Trace(trace), zap.String("cmd", cmd))
	return trace, nil
}

// Complete resolves the pending request matching resp.Trace and removes it
// from the table. Responses for unknown or already answered traces are
// discarded and reported as false.
func (b *Bridge) Complete(resp *types.Response) bool {
	b.mu.Lock()
	p, ok := b.pending[resp.Trace]
	if ok {
		delete(b.pending, resp.Trace)
		resp.Timeline.Requested = p.requested
		if p.awaited {
			p.ch <- resp
		} else {
			b.keep(resp)
		}
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("discarding stale response", logging.Trace(resp.Trace), zap.String("cmd", resp.Cmd))
		if b.metrics != nil {
			b.metrics.RecordDiscarded(monitoring.DiscardStale)
		}
		return false
	}
	b.record(outcomeOf(resp))
	return true
}

// keep stores a response until Await collects it. Must hold mu.
func (b *Bridge) keep(resp *types.Response) {
	if old := b.ring[b.next]; old != "" {
		if _, unclaimed := b.resolved[old]; unclaimed {
			delete(b.resolved, old)
			b.logger.Debug("dropping unclaimed response", logging.Trace(old))
			if b.metrics != nil {
				b.metrics.RecordDiscarded(monitoring.DiscardUnclaimed)
			}
		}
	}
	b.resolved[resp.Trace] = resp
	b.ring[b.next] = resp.Trace
	b.next = (b.next + 1) % len(b.ring)
}

// HandleInbound decodes one response frame and completes it. Malformed
// frames are dropped.
func (b *Bridge) HandleInbound(raw []byte) {
	var resp types.Response
	if err := sonic.Unmarshal(raw, &resp); err != nil || resp.Trace == "" {
		b.logger.Debug("discarding malformed response", zap.Int("bytes", len(raw)), zap.Error(err))
		if b.metrics != nil {
			b.metrics.RecordDiscarded(monitoring.DiscardMalformed)
		}
		return
	}
	b.Complete(&resp)
}

// Await waits for the response to trace. It returns ErrTimeout when timeout
// passes first and ErrCancelled when ctx ends first; both forget the trace
// so a late response is discarded. A response with error:true is returned
// as a response, not an error. Only one caller may await a trace.
func (b *Bridge) Await(ctx context.Context, trace id.TraceID, timeout time.Duration) (*types.Response, error) {
	b.mu.Lock()
	if resp, ok := b.resolved[trace]; ok {
		delete(b.resolved, trace)
		b.mu.Unlock()
		return resp, nil
	}
	p, ok := b.pending[trace]
	if !ok || p.awaited {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownTrace, trace)
	}
	p.awaited = true
	b.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case resp := <-p.ch:
		return resp, nil
	case <-expired:
		return b.abandon(trace, p, monitoring.OutcomeTimeout, ErrTimeout)
	case <-ctx.Done():
		return b.abandon(trace, p, monitoring.OutcomeCancelled, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err()))
	case <-b.closed:
		return b.abandon(trace, p, monitoring.OutcomeCancelled, ErrClosed)
	}
}

// abandon forgets trace. A response that Complete handed over before the
// entry was removed still wins.
func (b *Bridge) abandon(trace id.TraceID, p *pending, outcome string, cause error) (*types.Response, error) {
	b.mu.Lock()
	_, still := b.pending[trace]
	delete(b.pending, trace)
	b.mu.Unlock()

	if !still {
		return <-p.ch, nil
	}

	b.record(outcome)
	b.logger.Debug("abandoned command", logging.Trace(trace), zap.String("outcome", outcome))
	return nil, cause
}

// Call dispatches and awaits with the configured timeout
func (b *Bridge) Call(ctx context.Context, cmd string, data interface{}, reqContext map[string]interface{}, handlerID string) (*types.Response, error) {
	trace, err := b.Dispatch(ctx, cmd, data, reqContext, handlerID)
	if err != nil {
		return nil, err
	}
	return b.Await(ctx, trace, b.timeout)
}

// Pending returns the number of outstanding traces
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Waiting reports whether trace still expects a response
func (b *Bridge) Waiting(trace id.TraceID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[trace]
	return ok
}

// Close releases every waiter with ErrClosed and rejects new dispatches
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.closed) })
}

func (b *Bridge) settle(trace id.TraceID, outcome string) {
	b.mu.Lock()
	delete(b.pending, trace)
	b.mu.Unlock()
	b.record(outcome)
}

func (b *Bridge) record(outcome string) {
	if b.metrics != nil {
		b.metrics.RecordSettled(outcome)
	}
}

func outcomeOf(resp *types.Response) string {
	if resp.Error {
		return monitoring.OutcomeError
	}
	return monitoring.OutcomeOK
}
