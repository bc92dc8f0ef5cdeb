package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route template keeps label cardinality bounded
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(c.Request.Method, route, status, time.Since(start))
	}
}

// Timer measures handler duration
type Timer struct {
	start      time.Time
	metrics    *Metrics
	capability string
	command    string
}

// NewTimer creates a new timer; a nil metrics makes Stop a no-op
func NewTimer(metrics *Metrics, capability, command string) *Timer {
	return &Timer{
		start:      time.Now(),
		metrics:    metrics,
		capability: capability,
		command:    command,
	}
}

// Stop stops the timer and records the duration
func (t *Timer) Stop(status string) {
	if t.metrics == nil {
		return
	}
	t.metrics.RecordHandlerCall(t.capability, t.command, status, time.Since(t.start))
}
