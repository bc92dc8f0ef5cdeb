package types

import (
	"errors"
	"fmt"
	"time"
)

// DefaultEntry is the entry document used when a manifest does not name one
const DefaultEntry = "index.html"

// ErrValidation marks a missing, unparsable or incomplete manifest
var ErrValidation = errors.New("validation failed")

// ValidationError describes why a source directory or archive cannot be built or loaded
type ValidationError struct {
	Path   string
	Reason string
	Err    error
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	msg := e.Reason
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause, if any
func (e *ValidationError) Unwrap() error { return e.Err }

// Is reports ErrValidation so callers can use errors.Is
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Manifest describes one local web application
type Manifest struct {
	ID            string   `json:"id" yaml:"id" toml:"id"`
	DisplayName   string   `json:"title,omitempty" yaml:"title,omitempty" toml:"title,omitempty"`
	PublisherName string   `json:"publisher,omitempty" yaml:"publisher,omitempty" toml:"publisher,omitempty"`
	Website       string   `json:"website,omitempty" yaml:"website,omitempty" toml:"website,omitempty"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Copyright     string   `json:"copyright,omitempty" yaml:"copyright,omitempty" toml:"copyright,omitempty"`
	Icon          string   `json:"icon,omitempty" yaml:"icon,omitempty" toml:"icon,omitempty"`
	Version       string   `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	Entry         string   `json:"entry,omitempty" yaml:"entry,omitempty" toml:"entry,omitempty"`
	Exclude       []string `json:"exclude,omitempty" yaml:"exclude,omitempty" toml:"exclude,omitempty"`
}

// EntryDocument returns the entry document, falling back to DefaultEntry
func (m *Manifest) EntryDocument() string {
	if m.Entry == "" {
		return DefaultEntry
	}
	return m.Entry
}

// Digests holds hex-encoded digests computed over an archive
type Digests struct {
	SHA256 string `json:"sha256"`
	SHA512 string `json:"sha512"`
}

// DigestFiles holds the paths of the sidecar digest files
type DigestFiles struct {
	SHA256 string `json:"sha256"`
	SHA512 string `json:"sha512"`
}

// Package is the build artifact of one source directory
type Package struct {
	SourceDirectory string      `json:"source_directory"`
	ArchiveFile     string      `json:"archive_file"`
	DigestFiles     DigestFiles `json:"digest_files"`
	Digests         Digests     `json:"digests"`
	Manifest        Manifest    `json:"manifest"`
	Warnings        []string    `json:"warnings,omitempty"`
}

// LoadState represents the lifecycle state of one application id
type LoadState string

const (
	StateUnloaded LoadState = "unloaded"
	StateLoading  LoadState = "loading"
	StateLoaded   LoadState = "loaded"
	StateFailed   LoadState = "failed"
)

// HostHandle is the live, loaded state of one application
type HostHandle struct {
	Manifest         Manifest  `json:"manifest"`
	IsVerified       bool      `json:"is_verified"`
	AppDataDirectory string    `json:"app_data_directory"`
	ContentDirectory string    `json:"content_directory"`
	ArchiveFile      string    `json:"archive_file"`
	LoadedAt         time.Time `json:"loaded_at"`
}

// AppStatus summarizes one application for status listings
type AppStatus struct {
	ID         string     `json:"id"`
	State      LoadState  `json:"state"`
	Version    string     `json:"version,omitempty"`
	IsVerified bool       `json:"is_verified"`
	LoadedAt   *time.Time `json:"loaded_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}
