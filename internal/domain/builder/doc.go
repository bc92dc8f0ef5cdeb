// Package builder turns a source directory into a .webapp package.
//
// Build reads the manifest descriptor, reconciles its version with a
// companion package.json, walks the directory, and writes
// <out>/<id>-<version>.webapp plus its sidecar digests. The archive always
// carries the descriptor at its root with the effective version filled in.
// The walk is sorted and entries are stamped with a fixed time, so rebuilding
// an unchanged tree produces an identical archive.
package builder
