// Package integrity signs archives with SHA-256 and SHA-512 digests and
// verifies them against sidecar files.
//
// Sidecars sit next to the archive (<archive>.sha256, <archive>.sha512) in
// sha256sum format, so they can be checked with standard tools and
// verification never needs to open the archive format.
//
// A failed verification is advisory. Verify reports false and the host loads
// the package flagged as unverified.
package integrity
