// Package ws carries the command bridge over WebSocket.
//
// The Handler serves GET /bridge/:id. Each text frame from the peer is one
// JSON request envelope; each response is written back as one text frame, in
// completion order rather than request order. Malformed frames are dropped.
//
// The Client is the matching bridge.Transport for native callers:
//
//	client, err := ws.Dial(ctx, "ws://127.0.0.1:8000/bridge/com.example.notes", logger)
//	resp, err := client.Bridge().Call(ctx, "hostapp.info", nil, nil, "")
package ws
