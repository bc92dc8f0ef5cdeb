// Package archive reads and writes .webapp package archives.
//
// A package is a zip file. Entries are written in the order given, with a
// fixed modification time and mode, so the same input yields the same bytes
// and therefore the same digests. Besides store and deflate, entries may be
// compressed with zstd (zip method 93).
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Extension is the file extension of a package archive
const Extension = ".webapp"

// MaxUncompressedSize bounds what Extract will write for one archive
const MaxUncompressedSize int64 = 1 << 30

// FixedTime is stamped on every entry; it is the zip epoch
var FixedTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// ErrUnsafePath marks an entry whose name would escape the destination
var ErrUnsafePath = errors.New("unsafe archive entry path")

// Method is the compression applied to entries
type Method uint16

const (
	Store   Method = Method(zip.Store)
	Deflate Method = Method(zip.Deflate)
	Zstd    Method = Method(zstd.ZipMethodWinZip)
)

// ParseMethod maps a configuration name to a Method
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(name) {
	case "", "deflate":
		return Deflate, nil
	case "zstd":
		return Zstd, nil
	case "store", "none":
		return Store, nil
	}
	return 0, fmt.Errorf("unknown compression %q", name)
}

// String returns the configuration name of the method
func (m Method) String() string {
	switch m {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	case Zstd:
		return "zstd"
	}
	return fmt.Sprintf("method(%d)", uint16(m))
}

// Entry is one file to write. Data, when set, replaces the content at Source.
type Entry struct {
	Name   string // slash-separated path inside the archive
	Source string // file on disk
	Data   []byte
}

// Write streams entries into a zip archive on w
func Write(ctx context.Context, w io.Writer, entries []Entry, method Method) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(uint16(Zstd), zstd.ZipCompressor(zstd.WithEncoderLevel(zstd.SpeedDefault)))

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return err
		}
		if err := writeEntry(zw, e, method); err != nil {
			zw.Close()
			return fmt.Errorf("add %s: %w", e.Name, err)
		}
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, e Entry, method Method) error {
	if err := checkName(e.Name); err != nil {
		return err
	}

	hdr := &zip.FileHeader{
		Name:     e.Name,
		Method:   uint16(method),
		Modified: FixedTime,
	}
	hdr.SetMode(0o644)

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}

	if e.Data != nil {
		_, err = io.Copy(dst, bytes.NewReader(e.Data))
		return err
	}

	src, err := os.Open(e.Source)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(dst, src)
	return err
}

// Reader is an open package archive
type Reader struct {
	zr     *zip.Reader
	closer io.Closer
}

// Open opens an archive for reading
func Open(archivePath string) (*Reader, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat archive %s: %w", archivePath, err)
	}
	r, err := NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	r.closer = f
	return r, nil
}

// NewReader reads an archive from ra. Close does not close ra.
func NewReader(ra io.ReaderAt, size int64) (*Reader, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, err
	}
	zr.RegisterDecompressor(uint16(Zstd), zstd.ZipDecompressor())
	return &Reader{zr: zr}, nil
}

// Close releases the archive
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Names returns entry names in archive order
func (r *Reader) Names() []string {
	names := make([]string, 0, len(r.zr.File))
	for _, f := range r.zr.File {
		names = append(names, f.Name)
	}
	return names
}

// ReadFile returns the content of one entry
func (r *Reader) ReadFile(name string) ([]byte, error) {
	for _, f := range r.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(io.LimitReader(rc, MaxUncompressedSize))
	}
	return nil, fmt.Errorf("%s: %w", name, os.ErrNotExist)
}

// Has reports whether an entry exists
func (r *Reader) Has(name string) bool {
	for _, f := range r.zr.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Extract writes every entry below dest and returns the number of files.
// It stops at the first error; the caller owns cleanup of dest.
func (r *Reader) Extract(ctx context.Context, dest string) (int, error) {
	var written int64
	count := 0

	for _, f := range r.zr.File {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if err := checkName(f.Name); err != nil {
			return count, err
		}

		target := filepath.Join(dest, filepath.FromSlash(f.Name))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return count, err
		}

		n, err := extractFile(f, target, MaxUncompressedSize-written)
		if err != nil {
			return count, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		written += n
		count++
	}
	return count, nil
}

func extractFile(f *zip.File, target string, budget int64) (int64, error) {
	src, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(dst, io.LimitReader(src, budget+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	if n > budget {
		return n, fmt.Errorf("archive exceeds %d bytes uncompressed", MaxUncompressedSize)
	}
	return n, nil
}

// checkName rejects absolute names and names that climb out of the root
func checkName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") || filepath.IsAbs(filepath.FromSlash(name)) {
		return fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return nil
}
