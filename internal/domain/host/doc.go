// Package host runs packaged web applications.
//
// Each application id moves through Unloaded -> Loading -> Loaded and back
// to Unloaded on Remove, or to Failed when a load cannot complete. A failed
// reload keeps the previous handle serving.
//
// Loading:
//   - The manifest is read from the archive root before anything is unpacked
//   - Loads of one id are single-flight; other ids proceed independently
//   - Content is unpacked into a staging directory and renamed into place,
//     so a cancelled load never leaves partial content
//   - Verification failures only clear IsVerified; the app still loads
//
// Updates:
//   - FileUpdateSource reads candidate descriptors from a directory
//   - HTTPUpdateSource polls a feed through resty, retryablehttp and a circuit breaker
//   - CheckForUpdate returns a candidate only when it is strictly newer
package host
