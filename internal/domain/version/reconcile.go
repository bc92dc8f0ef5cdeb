package version

import (
	"fmt"

	"github.com/GriffinCanCode/localwebapp/internal/domain/manifest"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

// Reconcile returns the effective version: the companion descriptor's when it
// declares one, otherwise the manifest's.
func Reconcile(manifestVersion, descriptorVersion string) string {
	if descriptorVersion != "" {
		return descriptorVersion
	}
	return manifestVersion
}

// BuildConfig is the manifest descriptor of a source directory together with
// its companion package.json, if that file describes the same application.
type BuildConfig struct {
	// Manifest carries the effective (reconciled) version
	Manifest   types.Manifest
	Descriptor *manifest.Document
	Companion  *manifest.Companion
}

// CompanionAuthoritative reports whether package.json owns the version
func (c *BuildConfig) CompanionAuthoritative() bool {
	return c.Companion != nil && c.Companion.Version != ""
}

// VersionFile returns the path of the file whose version is authoritative
func (c *BuildConfig) VersionFile() string {
	if c.CompanionAuthoritative() {
		return c.Companion.Path
	}
	return c.Descriptor.Path
}

// LoadBuildConfig locates the descriptor in dir and returns the decoded
// config and the descriptor path.
func LoadBuildConfig(dir string) (*BuildConfig, string, error) {
	doc, err := manifest.Load(dir)
	if err != nil {
		return nil, "", err
	}

	companion, err := manifest.LoadCompanion(dir)
	if err != nil {
		return nil, "", &types.ValidationError{Path: dir, Reason: "unreadable companion descriptor", Err: err}
	}
	if !companion.Describes(doc.Manifest.ID) {
		companion = nil
	}

	cfg := &BuildConfig{Manifest: doc.Manifest, Descriptor: doc, Companion: companion}
	if companion != nil {
		cfg.Manifest.Version = Reconcile(doc.Manifest.Version, companion.Version)
	}
	return cfg, doc.Path, nil
}

// ReconcileFile applies reconciliation to the files in dir: when package.json
// owns the version, the version key is removed from the manifest descriptor.
// It returns the effective version.
func ReconcileFile(dir string) (string, error) {
	cfg, _, err := LoadBuildConfig(dir)
	if err != nil {
		return "", err
	}
	if cfg.CompanionAuthoritative() && cfg.Descriptor.HasVersion() {
		cfg.Descriptor.SetVersion("")
		if err := cfg.Descriptor.Save(); err != nil {
			return "", fmt.Errorf("reconcile %s: %w", cfg.Descriptor.Path, err)
		}
	}
	return cfg.Manifest.Version, nil
}

// Bump increases the effective version of the application in dir and writes
// it into whichever file is authoritative.
func Bump(dir string) (oldVersion, newVersion string, err error) {
	cfg, _, err := LoadBuildConfig(dir)
	if err != nil {
		return "", "", err
	}

	oldVersion = cfg.Manifest.Version
	newVersion, err = Increase(oldVersion)
	if err != nil {
		return "", "", err
	}

	if cfg.CompanionAuthoritative() {
		if err := cfg.Companion.SetVersion(newVersion); err != nil {
			return "", "", err
		}
		if cfg.Descriptor.HasVersion() {
			cfg.Descriptor.SetVersion("")
			if err := cfg.Descriptor.Save(); err != nil {
				return "", "", err
			}
		}
		return oldVersion, newVersion, nil
	}

	cfg.Descriptor.SetVersion(newVersion)
	if err := cfg.Descriptor.Save(); err != nil {
		return "", "", err
	}
	return oldVersion, newVersion, nil
}
