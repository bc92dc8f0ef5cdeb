package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/localwebapp/internal/domain/archive"
	"github.com/GriffinCanCode/localwebapp/internal/domain/integrity"
	"github.com/GriffinCanCode/localwebapp/internal/domain/manifest"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

const indexHTML = `<!doctype html>
<html>
<head>
  <link rel="stylesheet" href="css/missing.css">
  <link rel="icon" href="https://cdn.example.com/icon.png">
</head>
<body>
  <img src="data:image/png;base64,AAAA">
  <a href="#top">top</a>
  <script src="js/app.js?v=1"></script>
</body>
</html>`

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func sourceTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"webapp.json":             `{"package": {"id": "com.example.notes", "title": "Notes", "publisher": "Example", "version": "1.2.3", "exclude": ["drafts/**"]}}`,
		"index.html":              indexHTML,
		"js/app.js":               "console.log('notes')",
		"drafts/todo.txt":         "unfinished",
		".git/config":             "[core]",
		"node_modules/x/index.js": "module.exports = 1",
		"img/.DS_Store":           "junk",
	})
}

func TestBuildWritesArchiveAndSidecars(t *testing.T) {
	src := sourceTree(t)

	pkg, err := New().Build(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(src, DefaultOutputDir, "com.example.notes-1.2.3.webapp"), pkg.ArchiveFile)
	assert.FileExists(t, pkg.DigestFiles.SHA256)
	assert.FileExists(t, pkg.DigestFiles.SHA512)
	assert.Equal(t, "Notes", pkg.Manifest.DisplayName)
	assert.Len(t, pkg.Warnings, 1)
	assert.Contains(t, pkg.Warnings[0], "css/missing.css")

	ok, mismatch, err := integrity.New().VerifyFile(pkg.ArchiveFile)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, mismatch)

	r, err := archive.Open(pkg.ArchiveFile)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"webapp.json", "index.html", "js/app.js"}, r.Names())
}

func TestBuildIsDeterministic(t *testing.T) {
	src := sourceTree(t)
	b := New()

	first, err := b.Build(context.Background(), src)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, first.Digests, second.Digests)
}

func TestBuildWithoutDescriptorFails(t *testing.T) {
	src := writeTree(t, map[string]string{"index.html": "<html></html>"})

	pkg, err := New().Build(context.Background(), src)
	assert.Nil(t, pkg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, statErr := os.Stat(filepath.Join(src, DefaultOutputDir))
	assert.True(t, os.IsNotExist(statErr), "no archive may be produced")
}

func TestBuildWithEmptyIDFails(t *testing.T) {
	src := writeTree(t, map[string]string{
		"webapp.json": `{"package": {"id": "", "title": "x"}}`,
		"index.html":  "<html></html>",
	})

	_, err := New().Build(context.Background(), src)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestBuildWithoutEntryDocumentFails(t *testing.T) {
	src := writeTree(t, map[string]string{
		"webapp.json": `{"package": {"id": "a", "version": "1.0.0", "entry": "main.html"}}`,
		"index.html":  "<html></html>",
	})

	_, err := New().Build(context.Background(), src)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestBuildEmbedsReconciledVersion(t *testing.T) {
	src := writeTree(t, map[string]string{
		"webapp.yaml":  "package:\n  id: notes\n  version: \"1.0.0\"\n",
		"package.json": `{"name": "notes", "version": "3.1.4"}`,
		"index.html":   "<html></html>",
	})

	pkg, err := New(WithCompression(archive.Zstd)).Build(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "3.1.4", pkg.Manifest.Version)
	assert.Equal(t, "notes-3.1.4.webapp", filepath.Base(pkg.ArchiveFile))

	r, err := archive.Open(pkg.ArchiveFile)
	require.NoError(t, err)
	defer r.Close()

	data, err := r.ReadFile("webapp.yaml")
	require.NoError(t, err)
	doc, err := manifest.Parse("webapp.yaml", data)
	require.NoError(t, err)
	assert.Equal(t, "3.1.4", doc.Manifest.Version)

	// The source descriptor is untouched by a build
	source, err := manifest.Load(src)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", source.Manifest.Version)
}

func TestBuildCancelledLeavesNoArchive(t *testing.T) {
	src := sourceTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Build(ctx, src)
	require.Error(t, err)

	matches, _ := filepath.Glob(filepath.Join(src, DefaultOutputDir, "*"))
	assert.Empty(t, matches)
}

func TestBuildCustomOutputDir(t *testing.T) {
	src := sourceTree(t)
	out := t.TempDir()

	pkg, err := New(WithOutputDir(out)).Build(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, out, filepath.Dir(pkg.ArchiveFile))
}

func TestLocalTarget(t *testing.T) {
	tests := []struct {
		base, ref string
		want      string
		ok        bool
	}{
		{".", "js/app.js", "js/app.js", true},
		{".", "/css/site.css", "css/site.css", true},
		{"pages", "../js/app.js", "js/app.js", true},
		{".", "js/app.js?v=2#x", "js/app.js", true},
		{".", "https://cdn.example.com/x.js", "", false},
		{".", "//cdn.example.com/x.js", "", false},
		{".", "data:text/plain,hi", "", false},
		{".", "#anchor", "", false},
		{".", "../outside.js", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, ok := localTarget(tt.base, tt.ref)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
