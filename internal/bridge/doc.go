// Package bridge carries commands between hosted web content and native
// capability handlers.
//
// The Bridge is the requesting side. It allocates a trace per command,
// keeps one pending entry per trace and matches responses back by trace.
// Await ends in exactly one of: a response (which may itself carry
// error:true), ErrTimeout, or ErrCancelled. Responses for traces that are no
// longer pending are dropped.
//
// The Server is the handling side. It resolves each request through a
// service.Registry, runs handlers on bounded goroutines, stamps the
// processing timeline and echoes the request context.
//
// Transports:
//   - Loopback: in-process, still JSON encoded
//   - ws.Client and the websocket endpoint in internal/api/ws
//
// Example Usage:
//
//	server := bridge.NewServer(registry, appCtx, bridge.WithMaxConcurrent(64))
//	b := bridge.Connect(server, bridge.WithTimeout(30*time.Second))
//	resp, err := b.Call(ctx, "crypto.hash", map[string]interface{}{"data": "abc"}, nil, "")
package bridge
