package tracing

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/localwebapp/internal/shared/id"
)

// Propagation headers
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

// HTTPMiddleware opens one span per request, continuing a trace named by
// the caller's headers and echoing the ids back
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if trace := c.GetHeader(HeaderTraceID); trace != "" {
			ctx = WithTraceID(ctx, id.TraceID(trace))
		}
		if parent := c.GetHeader(HeaderSpanID); parent != "" {
			ctx = context.WithValue(ctx, spanIDKey, id.SpanID(parent))
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+route)
		span.SetTag("path", c.Request.URL.Path)
		if appID := c.Param("id"); appID != "" {
			span.SetTag("app_id", appID)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderTraceID, span.TraceID.String())
		c.Header(HeaderSpanID, span.SpanID.String())

		c.Next()

		span.HTTPStatus = c.Writer.Status()
		if len(c.Errors) > 0 {
			span.Err = c.Errors.Last()
		}
		span.Finish()
		tracer.Submit(span)
	}
}
