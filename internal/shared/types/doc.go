// Package types provides shared data structures for the local web app host.
//
// This package defines the core types used across all host components,
// ensuring every layer agrees on one shape for manifests, packages, loaded
// handles and command envelopes.
//
// Core Types:
//   - Manifest: Identity, version and display metadata of one application
//   - Package: Built archive plus its sidecar digest files
//   - HostHandle: Live, loaded state of one application
//   - LoadState: Per-application lifecycle state
//
// Protocol Types:
//   - Request, Response: Command envelopes exchanged with hosted content
//   - Timeline: Dispatch, handler-start and handler-completion timestamps
//   - Capability, Command: Handler definitions exposed to hosted content
//   - AppContext: Execution context handed to capability handlers
//
// Errors:
//   - ErrValidation: Sentinel for missing or unusable manifests
//   - ValidationError: Detailed validation failure wrapping ErrValidation
//
// Example Usage:
//
//	req := types.Request{
//	    Trace: trace,
//	    Cmd:   "files.read",
//	    Data:  map[string]interface{}{"path": "notes.txt"},
//	}
package types
