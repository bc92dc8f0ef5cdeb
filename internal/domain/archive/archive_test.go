package archive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntries(t *testing.T) []Entry {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "app.js")
	require.NoError(t, os.WriteFile(src, []byte("console.log('hi')"), 0o600))

	return []Entry{
		{Name: "webapp.json", Data: []byte(`{"package":{"id":"a"}}`)},
		{Name: "index.html", Data: []byte("<html></html>")},
		{Name: "js/app.js", Source: src},
	}
}

func writeArchive(t *testing.T, entries []Entry, method Method) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(context.Background(), &buf, entries, method))
	path := filepath.Join(t.TempDir(), "a-1.0.0"+Extension)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestWriteIsDeterministic(t *testing.T) {
	entries := sampleEntries(t)

	for _, method := range []Method{Store, Deflate, Zstd} {
		t.Run(method.String(), func(t *testing.T) {
			var a, b bytes.Buffer
			require.NoError(t, Write(context.Background(), &a, entries, method))
			require.NoError(t, Write(context.Background(), &b, entries, method))
			assert.Equal(t, a.Bytes(), b.Bytes())
		})
	}
}

func TestReadAndExtract(t *testing.T) {
	for _, method := range []Method{Deflate, Zstd} {
		t.Run(method.String(), func(t *testing.T) {
			path := writeArchive(t, sampleEntries(t), method)

			r, err := Open(path)
			require.NoError(t, err)
			defer r.Close()

			assert.Equal(t, []string{"webapp.json", "index.html", "js/app.js"}, r.Names())
			assert.True(t, r.Has("index.html"))

			data, err := r.ReadFile("js/app.js")
			require.NoError(t, err)
			assert.Equal(t, "console.log('hi')", string(data))

			_, err = r.ReadFile("missing.txt")
			assert.ErrorIs(t, err, os.ErrNotExist)

			dest := t.TempDir()
			n, err := r.Extract(context.Background(), dest)
			require.NoError(t, err)
			assert.Equal(t, 3, n)
			assert.FileExists(t, filepath.Join(dest, "js", "app.js"))
		})
	}
}

func TestExtractHonoursCancellation(t *testing.T) {
	path := writeArchive(t, sampleEntries(t), Deflate)
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := r.Extract(ctx, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
}

func TestWriteRejectsUnsafeNames(t *testing.T) {
	for _, name := range []string{"../evil", "/abs", `win\path`, ""} {
		err := Write(context.Background(), &bytes.Buffer{}, []Entry{{Name: name, Data: []byte("x")}}, Store)
		assert.ErrorIs(t, err, ErrUnsafePath, name)
	}
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("zstd")
	require.NoError(t, err)
	assert.Equal(t, Zstd, m)

	m, err = ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, Deflate, m)

	_, err = ParseMethod("bzip2")
	assert.Error(t, err)
}
