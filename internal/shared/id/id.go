// Package id generates the identifiers used by the host.
//
// Runtime identifiers are prefixed ULIDs (trc_..., load_..., conn_...,
// spn_...). ULIDs sort by creation time and a monotonic entropy source keeps
// them unique inside one millisecond, so a bridge can hand out traces from
// many goroutines without coordination.
//
// Handler identifiers differ: they are derived from the capability name and
// stay the same across restarts, so hosted content can cache them.
package id

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// TraceID correlates one command request with its response
type TraceID string

// LoadID identifies one load attempt of an application
type LoadID string

// ConnectionID identifies one transport connection
type ConnectionID string

// HandlerID is the stable identifier of a capability handler
type HandlerID string

// SpanID identifies one traced command execution
type SpanID string

const (
	TracePrefix      = "trc"
	LoadPrefix       = "load"
	ConnectionPrefix = "conn"
	HandlerPrefix    = "hdl"
	SpanPrefix       = "spn"
)

// Generator produces monotonic ULIDs. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

var (
	defaultGenerator *Generator
	defaultOnce      sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	defaultOnce.Do(func() { defaultGenerator = NewGenerator() })
	return defaultGenerator
}

// next returns prefix_<ulid>
func (g *Generator) next(prefix string) string {
	g.mu.Lock()
	u := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	g.mu.Unlock()
	return prefix + "_" + u.String()
}

// NewTrace returns a trace from this generator
func (g *Generator) NewTrace() TraceID {
	return TraceID(g.next(TracePrefix))
}

// NewTraceID returns a trace from the default generator
func NewTraceID() TraceID {
	return Default().NewTrace()
}

// NewLoadID returns a load attempt id
func NewLoadID() LoadID {
	return LoadID(Default().next(LoadPrefix))
}

// NewConnectionID returns a connection id
func NewConnectionID() ConnectionID {
	return ConnectionID(Default().next(ConnectionPrefix))
}

// NewSpanID returns a span id
func NewSpanID() SpanID {
	return SpanID(Default().next(SpanPrefix))
}

// StableHandlerID derives a handler id from a capability name
func StableHandlerID(name string) HandlerID {
	sum := sha256.Sum256([]byte("capability:" + name))
	return HandlerID(HandlerPrefix + "_" + hex.EncodeToString(sum[:8]))
}

func (id TraceID) String() string      { return string(id) }
func (id LoadID) String() string       { return string(id) }
func (id ConnectionID) String() string { return string(id) }
func (id HandlerID) String() string    { return string(id) }
func (id SpanID) String() string       { return string(id) }

// Time returns the dispatch time encoded in a trace
func (id TraceID) Time() (time.Time, error) {
	parsed, err := ulid.Parse(strings.TrimPrefix(string(id), TracePrefix+"_"))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse trace %q: %w", id, err)
	}
	return ulid.Time(parsed.Time()), nil
}
