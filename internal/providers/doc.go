// Package providers wires the native capability handlers exposed to hosted
// applications over the command bridge.
//
// Available capabilities:
//   - files: read, write, list and inspect files under the app data directory
//   - crypto: digests, HMAC, random bytes, UUIDs and bcrypt passwords
//   - text: charset conversion and detection
//   - hostapp: host and application introspection plus an app log
//
// Each capability implements service.Handler:
//
//	reg := service.NewRegistry()
//	reg.MustRegister(providers.Builtin(time.Now(), logger)...)
//	resp, err := reg.Execute(ctx, req, appCtx)
package providers
