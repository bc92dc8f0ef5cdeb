package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/localwebapp/internal/domain/archive"
	"github.com/GriffinCanCode/localwebapp/internal/domain/integrity"
	"github.com/GriffinCanCode/localwebapp/internal/domain/manifest"
	"github.com/GriffinCanCode/localwebapp/internal/domain/version"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

// DefaultOutputDir is where archives go, relative to the source directory
const DefaultOutputDir = "dist"

// Builder packages source directories
type Builder struct {
	outputDir string
	method    archive.Method
	logger    *zap.Logger
}

// Option configures a Builder
type Option func(*Builder)

// WithOutputDir sets the output directory. Relative paths are resolved
// against the source directory.
func WithOutputDir(dir string) Option {
	return func(b *Builder) {
		if dir != "" {
			b.outputDir = dir
		}
	}
}

// WithCompression sets the entry compression method
func WithCompression(m archive.Method) Option {
	return func(b *Builder) { b.method = m }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a Builder
func New(opts ...Option) *Builder {
	b := &Builder{
		outputDir: DefaultOutputDir,
		method:    archive.Deflate,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ArchiveName returns <id>-<version>.webapp, or <id>.webapp without a version
func ArchiveName(m types.Manifest) string {
	if m.Version == "" {
		return m.ID + archive.Extension
	}
	return fmt.Sprintf("%s-%s%s", m.ID, m.Version, archive.Extension)
}

// Build packages sourceDirectory. A missing, unparsable or id-less descriptor
// fails with a *types.ValidationError and nothing is written.
func (b *Builder) Build(ctx context.Context, sourceDirectory string) (*types.Package, error) {
	start := time.Now()

	src, err := filepath.Abs(sourceDirectory)
	if err != nil {
		return nil, &types.ValidationError{Path: sourceDirectory, Reason: "cannot resolve source directory", Err: err}
	}
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		return nil, &types.ValidationError{Path: src, Reason: "source is not a directory", Err: err}
	}

	cfg, descriptorPath, err := version.LoadBuildConfig(src)
	if err != nil {
		return nil, err
	}
	m := cfg.Manifest

	outDir := b.outputDir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(src, outDir)
	}

	descriptorName := filepath.Base(descriptorPath)
	excludes := []string{}
	if rel, err := filepath.Rel(src, outDir); err == nil && insideRoot(rel) {
		excludes = append(excludes, filepath.ToSlash(rel)+"/**")
	}
	match := newMatcher(DefaultExcludes, m.Exclude, excludes)

	skipRoot := map[string]bool{}
	for _, name := range manifest.FileNames {
		skipRoot[name] = true
	}

	entries, skipped, err := collect(ctx, src, match, skipRoot)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", src, err)
	}
	for _, s := range skipped {
		b.logger.Debug("skipping non-regular file", zap.String("path", s))
	}

	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name] = true
	}

	entry := m.EntryDocument()
	if !names[entry] {
		return nil, &types.ValidationError{Path: src, Reason: fmt.Sprintf("entry document %q not found", entry)}
	}
	warnings, err := checkAssets(filepath.Join(src, filepath.FromSlash(entry)), entry, names)
	if err != nil {
		warnings = append(warnings, err.Error())
	}
	for _, w := range warnings {
		b.logger.Warn("entry document check", logging.AppID(m.ID), zap.String("warning", w))
	}

	// The packaged descriptor carries the effective version
	cfg.Descriptor.SetVersion(m.Version)
	descriptor, err := cfg.Descriptor.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode descriptor: %w", err)
	}
	entries = append([]archive.Entry{{Name: descriptorName, Data: descriptor}}, entries...)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	archivePath := filepath.Join(outDir, ArchiveName(m))
	if err := writeArchive(ctx, archivePath, entries, b.method); err != nil {
		return nil, err
	}

	digests, err := integrity.SignFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("sign archive: %w", err)
	}
	files, err := integrity.WriteSidecars(archivePath, digests)
	if err != nil {
		return nil, err
	}

	b.logger.Info("package built",
		logging.AppID(m.ID),
		zap.String("version", m.Version),
		zap.String("archive", archivePath),
		zap.Int("files", len(entries)),
		zap.Duration("duration", time.Since(start)),
	)

	return &types.Package{
		SourceDirectory: src,
		ArchiveFile:     archivePath,
		DigestFiles:     files,
		Digests:         digests,
		Manifest:        m,
		Warnings:        warnings,
	}, nil
}

// writeArchive writes to a temp file and renames it into place, so a
// cancelled or failed build never leaves a partial archive at path.
func writeArchive(ctx context.Context, path string, entries []archive.Entry, method archive.Method) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = archive.Write(ctx, tmp, entries, method); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}

// insideRoot reports whether a relative path stays below the source root
func insideRoot(rel string) bool {
	return rel != "." && rel != ".." && !filepath.IsAbs(rel) &&
		!strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
