// Package manifest reads and writes manifest descriptors.
//
// A descriptor is webapp.json, webapp.yaml, webapp.yml or webapp.toml at the
// root of a source directory (and of every built archive). The manifest lives
// under a top-level "package" key, or "manifest":
//
//	{ "package": { "id": "com.example.notes", "title": "Notes", "version": "1.0.0" } }
//
// Fields are decoded one by one rather than through struct tags, so a wrongly
// typed field fails with a ValidationError naming the field. Keys the host does
// not know are kept and written back untouched.
package manifest
