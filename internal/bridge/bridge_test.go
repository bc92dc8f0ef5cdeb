package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/localwebapp/internal/shared/id"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

// captureTransport records requests so tests decide when and how to answer
type captureTransport struct {
	mu   sync.Mutex
	reqs []*types.Request
	err  error
}

func (c *captureTransport) Send(ctx context.Context, req *types.Request) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	return nil
}

func (c *captureTransport) last() *types.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reqs[len(c.reqs)-1]
}

func reply(req *types.Request, data interface{}) *types.Response {
	return &types.Response{Trace: req.Trace, Cmd: req.Cmd, Data: data, Context: req.Context}
}

func TestDispatchAllocatesDistinctTraces(t *testing.T) {
	tr := &captureTransport{}
	b := New(tr)

	seen := make(map[id.TraceID]bool)
	for i := 0; i < 200; i++ {
		trace, err := b.Dispatch(context.Background(), "text.encode", nil, nil, "")
		require.NoError(t, err)
		assert.False(t, seen[trace], "duplicate trace %s", trace)
		seen[trace] = true
	}
	assert.Equal(t, 200, b.Pending())
}

func TestDispatchRejectsMalformedCommand(t *testing.T) {
	b := New(&captureTransport{})

	_, err := b.Dispatch(context.Background(), "nodot", nil, nil, "")
	assert.Error(t, err)
	assert.Equal(t, 0, b.Pending())
}

func TestSendFailureLeavesNothingPending(t *testing.T) {
	metrics := monitoring.NewMetrics()
	b := New(&captureTransport{err: errors.New("pipe closed")}, WithMetrics(metrics))

	_, err := b.Dispatch(context.Background(), "files.read", nil, nil, "")
	require.Error(t, err)
	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CommandsCompleted.WithLabelValues(monitoring.OutcomeFailed)))
}

func TestAwaitReturnsResponse(t *testing.T) {
	tr := &captureTransport{}
	b := New(tr)
	ctx := context.Background()

	trace, err := b.Dispatch(ctx, "crypto.hash", map[string]interface{}{"data": "x"}, map[string]interface{}{"tab": 3.0}, "")
	require.NoError(t, err)

	go b.Complete(reply(tr.last(), "digest"))

	resp, err := b.Await(ctx, trace, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "digest", resp.Data)
	assert.Equal(t, map[string]interface{}{"tab": 3.0}, resp.Context)
	assert.False(t, resp.Timeline.Requested.IsZero())
	assert.Equal(t, 0, b.Pending())
}

func TestResponseBeforeAwait(t *testing.T) {
	tr := &captureTransport{}
	b := New(tr)

	trace, err := b.Dispatch(context.Background(), "hostapp.ping", nil, nil, "")
	require.NoError(t, err)
	require.True(t, b.Complete(reply(tr.last(), "pong")))

	resp, err := b.Await(context.Background(), trace, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Data)
}

func TestErrorResponseIsNotAGoError(t *testing.T) {
	tr := &captureTransport{}
	b := New(tr)

	trace, err := b.Dispatch(context.Background(), "files.read", nil, nil, "")
	require.NoError(t, err)

	msg := "no such file"
	resp := reply(tr.last(), nil)
	resp.Error = true
	resp.Message = &msg
	b.Complete(resp)

	got, err := b.Await(context.Background(), trace, time.Second)
	require.NoError(t, err)
	assert.True(t, got.Error)
	assert.Equal(t, "no such file", *got.Message)
}

func TestAwaitTimeout(t *testing.T) {
	metrics := monitoring.NewMetrics()
	tr := &captureTransport{}
	b := New(tr, WithMetrics(metrics))

	trace, err := b.Dispatch(context.Background(), "files.read", nil, nil, "")
	require.NoError(t, err)

	_, err = b.Await(context.Background(), trace, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, b.Pending())

	assert.False(t, b.Complete(reply(tr.last(), "late")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CommandsCompleted.WithLabelValues(monitoring.OutcomeTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CommandsDiscarded.WithLabelValues(monitoring.DiscardStale)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.CommandsPending))
}

func TestCancelThenLateResponseDiscarded(t *testing.T) {
	tr := &captureTransport{}
	b := New(tr)

	trace, err := b.Dispatch(context.Background(), "files.read", nil, nil, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := b.Await(ctx, trace, time.Minute)
		done <- err
	}()
	cancel()

	err = <-done
	assert.ErrorIs(t, err, ErrCancelled)
	assert.NotErrorIs(t, err, ErrTimeout)

	assert.False(t, b.Complete(reply(tr.last(), "late")))
	_, err = b.Await(context.Background(), trace, time.Second)
	assert.ErrorIs(t, err, ErrUnknownTrace)
}

func TestAwaitUnknownTrace(t *testing.T) {
	b := New(&captureTransport{})
	_, err := b.Await(context.Background(), id.NewTraceID(), time.Second)
	assert.ErrorIs(t, err, ErrUnknownTrace)
}

func TestSingleWaiterPerTrace(t *testing.T) {
	tr := &captureTransport{}
	b := New(tr)
	trace, err := b.Dispatch(context.Background(), "files.read", nil, nil, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _, _ = b.Await(ctx, trace, time.Minute) }()

	assert.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.pending[trace].awaited
	}, time.Second, 5*time.Millisecond)

	_, err = b.Await(context.Background(), trace, time.Second)
	assert.ErrorIs(t, err, ErrUnknownTrace)
	assert.Equal(t, 1, b.Pending())
}

func TestDuplicateResponseDiscarded(t *testing.T) {
	tr := &captureTransport{}
	b := New(tr)
	_, err := b.Dispatch(context.Background(), "files.read", nil, nil, "")
	require.NoError(t, err)

	assert.True(t, b.Complete(reply(tr.last(), 1)))
	assert.False(t, b.Complete(reply(tr.last(), 2)))
}

func TestOutOfOrderResponses(t *testing.T) {
	tr := &captureTransport{}
	b := New(tr)
	ctx := context.Background()

	traces := make([]id.TraceID, 5)
	for i := range traces {
		trace, err := b.Dispatch(ctx, "text.encode", float64(i), nil, "")
		require.NoError(t, err)
		traces[i] = trace
	}

	tr.mu.Lock()
	reqs := append([]*types.Request(nil), tr.reqs...)
	tr.mu.Unlock()
	for i := len(reqs) - 1; i >= 0; i-- {
		b.Complete(reply(reqs[i], reqs[i].Data))
	}

	for i, trace := range traces {
		resp, err := b.Await(ctx, trace, time.Second)
		require.NoError(t, err)
		assert.Equal(t, float64(i), resp.Data)
	}
}

func TestHandleInbound(t *testing.T) {
	metrics := monitoring.NewMetrics()
	tr := &captureTransport{}
	b := New(tr, WithMetrics(metrics))

	trace, err := b.Dispatch(context.Background(), "hostapp.ping", nil, nil, "")
	require.NoError(t, err)

	b.HandleInbound([]byte("{not json"))
	b.HandleInbound([]byte(`{"cmd": "hostapp.ping"}`))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CommandsDiscarded.WithLabelValues(monitoring.DiscardMalformed)))

	raw, err := sonic.Marshal(reply(tr.last(), "pong"))
	require.NoError(t, err)
	b.HandleInbound(raw)

	resp, err := b.Await(context.Background(), trace, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Data)
}

func TestCloseReleasesWaiters(t *testing.T) {
	tr := &captureTransport{}
	b := New(tr)
	trace, err := b.Dispatch(context.Background(), "files.read", nil, nil, "")
	require.NoError(t, err)

	go b.Close()
	_, err = b.Await(context.Background(), trace, time.Minute)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = b.Dispatch(context.Background(), "files.read", nil, nil, "")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCompleteWithoutAwaitLeavesNothingPending(t *testing.T) {
	metrics := monitoring.NewMetrics()
	tr := &captureTransport{}
	b := New(tr, WithMetrics(metrics))

	for i := 0; i < 3; i++ {
		_, err := b.Dispatch(context.Background(), "hostapp.ping", nil, nil, "")
		require.NoError(t, err)
		require.True(t, b.Complete(reply(tr.last(), "pong")))
	}

	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.CommandsCompleted.WithLabelValues(monitoring.OutcomeOK)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.CommandsPending))
}

func TestResolvedResponsesAreBounded(t *testing.T) {
	metrics := monitoring.NewMetrics()
	tr := &captureTransport{}
	b := New(tr, WithMetrics(metrics))

	first, err := b.Dispatch(context.Background(), "hostapp.ping", nil, nil, "")
	require.NoError(t, err)
	require.True(t, b.Complete(reply(tr.last(), "first")))

	var last id.TraceID
	for i := 0; i < DefaultResolvedLimit; i++ {
		last, err = b.Dispatch(context.Background(), "hostapp.ping", nil, nil, "")
		require.NoError(t, err)
		require.True(t, b.Complete(reply(tr.last(), "later")))
	}

	_, err = b.Await(context.Background(), first, time.Second)
	assert.ErrorIs(t, err, ErrUnknownTrace)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CommandsDiscarded.WithLabelValues(monitoring.DiscardUnclaimed)))

	resp, err := b.Await(context.Background(), last, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "later", resp.Data)
	assert.Len(t, b.resolved, DefaultResolvedLimit-1)
}
