package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/localwebapp/internal/service"
	"github.com/GriffinCanCode/localwebapp/internal/shared/id"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
	"github.com/GriffinCanCode/localwebapp/internal/shared/utils"
)

type echoHandler struct {
	active  int32
	maxSeen int32
	delay   time.Duration
}

func (e *echoHandler) Definition() types.Capability {
	return types.Capability{
		Name: "echo",
		Commands: []types.Command{
			{Name: "say"}, {Name: "fail"}, {Name: "panic"}, {Name: "app"},
		},
	}
}

func (e *echoHandler) Execute(ctx context.Context, cmd string, data interface{}, appCtx *types.AppContext) (interface{}, error) {
	n := atomic.AddInt32(&e.active, 1)
	defer atomic.AddInt32(&e.active, -1)
	for {
		seen := atomic.LoadInt32(&e.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&e.maxSeen, seen, n) {
			break
		}
	}
	if e.delay > 0 {
		time.Sleep(e.delay)
	}

	switch cmd {
	case "say":
		return data, nil
	case "fail":
		return nil, errors.New("refused")
	case "panic":
		panic("boom")
	case "app":
		return appCtx.AppID, nil
	}
	return nil, fmt.Errorf("unknown command %s", cmd)
}

// gateHandler blocks every call until release is closed
type gateHandler struct {
	release chan struct{}
	calls   int32
}

func (g *gateHandler) Definition() types.Capability {
	return types.Capability{Name: "gate", Commands: []types.Command{{Name: "hold"}}}
}

func (g *gateHandler) Execute(ctx context.Context, cmd string, data interface{}, appCtx *types.AppContext) (interface{}, error) {
	atomic.AddInt32(&g.calls, 1)
	<-g.release
	return "done", nil
}

func newTestServer(t *testing.T, h service.Handler, opts ...ServerOption) *Server {
	t.Helper()
	registry := service.NewRegistry()
	registry.MustRegister(h)
	appCtx := &types.AppContext{AppID: "com.example.notes", Verified: true}
	return NewServer(registry, appCtx, opts...)
}

func TestServeStampsTimelineAndEchoesContext(t *testing.T) {
	s := newTestServer(t, &echoHandler{})
	req := &types.Request{
		Trace:   id.NewTraceID(),
		Cmd:     "echo.say",
		Data:    "hello",
		Context: map[string]interface{}{"view": "main"},
	}

	resp := s.Serve(context.Background(), req)
	assert.False(t, resp.Error)
	assert.Equal(t, req.Trace, resp.Trace)
	assert.Equal(t, "hello", resp.Data)
	assert.Equal(t, req.Context, resp.Context)
	require.NotNil(t, resp.Handler)
	assert.Equal(t, "echo", *resp.Handler)
	assert.False(t, resp.Timeline.Processing.IsZero())
	assert.False(t, resp.Timeline.Processed.Before(resp.Timeline.Processing))
}

func TestServeTurnsFailuresIntoErrorResponses(t *testing.T) {
	s := newTestServer(t, &echoHandler{})

	for _, cmd := range []string{"echo.fail", "echo.panic", "missing.read"} {
		resp := s.Serve(context.Background(), &types.Request{Trace: id.NewTraceID(), Cmd: cmd, Data: "x"})
		assert.True(t, resp.Error, cmd)
		require.NotNil(t, resp.Message, cmd)
		assert.Nil(t, resp.Data, cmd)
	}
}

func TestServeRejectsDeeplyNestedData(t *testing.T) {
	s := newTestServer(t, &echoHandler{})

	var deep interface{} = "leaf"
	for i := 0; i < utils.MaxJSONDepth+2; i++ {
		deep = map[string]interface{}{"n": deep}
	}

	resp := s.Serve(context.Background(), &types.Request{Trace: id.NewTraceID(), Cmd: "echo.say", Data: deep})
	assert.True(t, resp.Error)
	require.NotNil(t, resp.Message)
	assert.Contains(t, *resp.Message, "depth")
}

func TestLoopbackCall(t *testing.T) {
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("test", zap.NewNop())
	defer tracer.Close()

	s := newTestServer(t, &echoHandler{}, WithServerMetrics(metrics), WithTracer(tracer))
	b := Connect(s, WithTimeout(time.Second), WithMetrics(metrics))

	resp, err := b.Call(context.Background(), "echo.say", map[string]interface{}{"n": 1}, map[string]interface{}{"k": "v"}, "")
	require.NoError(t, err)
	assert.False(t, resp.Error)
	assert.Equal(t, map[string]interface{}{"n": float64(1)}, resp.Data)
	assert.Equal(t, map[string]interface{}{"k": "v"}, resp.Context)
	assert.False(t, resp.Timeline.Requested.After(resp.Timeline.Processing))

	resp, err = b.Call(context.Background(), "echo.app", nil, nil, id.StableHandlerID("echo").String())
	require.NoError(t, err)
	assert.Equal(t, "com.example.notes", resp.Data)

	resp, err = b.Call(context.Background(), "echo.fail", nil, nil, "")
	require.NoError(t, err)
	assert.True(t, resp.Error)

	s.Wait()
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CommandsCompleted.WithLabelValues(monitoring.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CommandsCompleted.WithLabelValues(monitoring.OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HandlerCalls.WithLabelValues("echo", "fail", monitoring.StatusError)))
}

func TestServerBoundsConcurrency(t *testing.T) {
	h := &echoHandler{delay: 20 * time.Millisecond}
	s := newTestServer(t, h, WithMaxConcurrent(2))
	b := Connect(s, WithTimeout(5*time.Second))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := b.Call(context.Background(), "echo.say", float64(i), nil, "")
			if assert.NoError(t, err) {
				assert.Equal(t, float64(i), resp.Data)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&h.maxSeen), int32(2))
	assert.Equal(t, 0, b.Pending())
}

func TestConcurrentCallsWithSingleProcessor(t *testing.T) {
	prev := runtime.GOMAXPROCS(1)
	defer runtime.GOMAXPROCS(prev)

	s := newTestServer(t, &echoHandler{})
	b := Connect(s, WithTimeout(5*time.Second))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := b.Call(context.Background(), "echo.say", float64(i), nil, "")
			if assert.NoError(t, err) {
				assert.Equal(t, float64(i), resp.Data)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, b.Pending())
}

func TestLoopbackTimeoutDiscardsLateResponse(t *testing.T) {
	metrics := monitoring.NewMetrics()
	s := newTestServer(t, &echoHandler{delay: 100 * time.Millisecond})
	b := Connect(s, WithTimeout(10*time.Millisecond), WithMetrics(metrics))

	_, err := b.Call(context.Background(), "echo.say", "slow", nil, "")
	assert.ErrorIs(t, err, ErrTimeout)

	s.Wait()
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CommandsDiscarded.WithLabelValues(monitoring.DiscardStale)))
}

func TestDispatchDoesNotWaitForHandlerSlot(t *testing.T) {
	g := &gateHandler{release: make(chan struct{})}
	s := newTestServer(t, g, WithMaxConcurrent(1))
	b := Connect(s, WithTimeout(time.Second))

	first, err := b.Dispatch(context.Background(), "gate.hold", nil, nil, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&g.calls) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	second, err := b.Dispatch(ctx, "gate.hold", nil, nil, "")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 2, b.Pending())

	close(g.release)
	for _, trace := range []id.TraceID{first, second} {
		resp, err := b.Await(context.Background(), trace, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "done", resp.Data)
	}
	s.Wait()
	assert.Equal(t, int32(2), atomic.LoadInt32(&g.calls))
}

func TestAbandonedQueuedCommandIsNotServed(t *testing.T) {
	g := &gateHandler{release: make(chan struct{})}
	s := newTestServer(t, g, WithMaxConcurrent(1))
	b := Connect(s, WithTimeout(time.Second))

	first, err := b.Dispatch(context.Background(), "gate.hold", nil, nil, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&g.calls) == 1 }, time.Second, 5*time.Millisecond)

	queued, err := b.Dispatch(context.Background(), "gate.hold", nil, nil, "")
	require.NoError(t, err)
	_, err = b.Await(context.Background(), queued, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	close(g.release)
	_, err = b.Await(context.Background(), first, time.Second)
	require.NoError(t, err)
	s.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&g.calls))
}
