package tracing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/localwebapp/internal/shared/id"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

// spanBuffer bounds spans waiting for the collector
const spanBuffer = 1000

// Span is one timed operation: an HTTP request or a served command
type Span struct {
	TraceID   id.TraceID
	SpanID    id.SpanID
	ParentID  id.SpanID
	Name      string
	StartTime time.Time
	Duration  time.Duration
	Tags      map[string]string

	// HTTPStatus is set for request spans
	HTTPStatus int
	// Timeline and Failed are set for command spans
	Timeline *types.Timeline
	Failed   bool
	Err      error
}

// SetTag adds a tag to the span
func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// Finish fixes the span duration
func (s *Span) Finish() {
	s.Duration = time.Since(s.StartTime)
}

func (s *Span) failed() bool {
	return s.Failed || s.HTTPStatus >= 500
}

// Tracer hands finished spans to a background collector that logs them
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span

	closeOnce sync.Once
	done      chan struct{}
}

// New starts a tracer whose spans are logged through logger
func New(service string, logger *zap.Logger) *Tracer {
	t := &Tracer{
		service: service,
		logger:  logging.OrNop(logger).Named("trace"),
		spans:   make(chan *Span, spanBuffer),
		done:    make(chan struct{}),
	}
	go t.collect()
	return t
}

// StartSpan opens a span, continuing the trace and parent found in ctx
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	trace := TraceIDFrom(ctx)
	if trace == "" {
		trace = id.NewTraceID()
	}
	span := &Span{
		TraceID:   trace,
		SpanID:    id.NewSpanID(),
		ParentID:  spanIDFrom(ctx),
		Name:      name,
		StartTime: time.Now(),
		Tags:      map[string]string{"service": t.service},
	}
	ctx = WithTraceID(ctx, trace)
	ctx = context.WithValue(ctx, spanIDKey, span.SpanID)
	return span, ctx
}

// StartCommand opens the span for one served command. The span reuses the
// envelope trace so handler logs line up with the wire.
func (t *Tracer) StartCommand(ctx context.Context, req *types.Request, appID string) (*Span, context.Context) {
	if req.Trace != "" {
		ctx = WithTraceID(ctx, req.Trace)
	}
	span, ctx := t.StartSpan(ctx, req.Cmd)
	if req.HandlerID != "" {
		span.SetTag("handler_id", req.HandlerID)
	}
	if appID != "" {
		span.SetTag("app_id", appID)
	}
	return span, ctx
}

// FinishCommand closes a command span with the response it produced
func (t *Tracer) FinishCommand(span *Span, resp *types.Response) {
	span.Finish()
	if resp != nil {
		tl := resp.Timeline
		span.Timeline = &tl
		span.Failed = resp.Error
		if resp.Error && resp.Message != nil {
			span.SetTag("message", *resp.Message)
		}
	}
	t.Submit(span)
}

// Submit queues a finished span. Spans are dropped when the buffer is full
// or the tracer is closed.
func (t *Tracer) Submit(span *Span) {
	select {
	case <-t.done:
		return
	default:
	}
	defer func() {
		// send on a channel closed by a concurrent Close
		_ = recover()
	}()
	select {
	case t.spans <- span:
	default:
		t.logger.Warn("span buffer full, dropping span", logging.Trace(span.TraceID), zap.String("span_id", span.SpanID.String()))
	}
}

// Close drains buffered spans and stops the collector
func (t *Tracer) Close() {
	t.closeOnce.Do(func() { close(t.spans) })
	<-t.done
}

func (t *Tracer) collect() {
	defer close(t.done)
	for span := range t.spans {
		t.log(span)
	}
}

func (t *Tracer) log(span *Span) {
	fields := make([]zap.Field, 0, 8+len(span.Tags))
	fields = append(fields,
		logging.Trace(span.TraceID),
		zap.String("span_id", span.SpanID.String()),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
	)
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", span.ParentID.String()))
	}
	if span.HTTPStatus != 0 {
		fields = append(fields, zap.Int("status", span.HTTPStatus))
	}
	for k, v := range span.Tags {
		fields = append(fields, zap.String(k, v))
	}
	if tl := span.Timeline; tl != nil {
		fields = append(fields,
			zap.Time("requested", tl.Requested),
			zap.Time("processing", tl.Processing),
			zap.Time("processed", tl.Processed),
		)
	}

	switch {
	case span.Err != nil:
		t.logger.Error("span failed", append(fields, zap.Error(span.Err))...)
	case span.failed():
		t.logger.Warn("span failed", fields...)
	default:
		t.logger.Debug("span completed", fields...)
	}
}

type contextKey int

const (
	traceIDKey contextKey = iota
	spanIDKey
)

// WithTraceID returns ctx carrying trace
func WithTraceID(ctx context.Context, trace id.TraceID) context.Context {
	return context.WithValue(ctx, traceIDKey, trace)
}

// TraceIDFrom returns the trace carried by ctx, if any
func TraceIDFrom(ctx context.Context) id.TraceID {
	trace, _ := ctx.Value(traceIDKey).(id.TraceID)
	return trace
}

func spanIDFrom(ctx context.Context) id.SpanID {
	span, _ := ctx.Value(spanIDKey).(id.SpanID)
	return span
}
