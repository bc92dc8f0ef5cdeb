package builder

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"

	"github.com/GriffinCanCode/localwebapp/internal/domain/archive"
)

// DefaultExcludes are never packaged
var DefaultExcludes = []string{
	".git/**",
	".hg/**",
	".svn/**",
	"node_modules/**",
	"**/.DS_Store",
	"**/Thumbs.db",
	"**/*" + archive.Extension,
	"**/*" + archive.Extension + ".sha256",
	"**/*" + archive.Extension + ".sha512",
}

type matcher struct {
	patterns []string
}

func newMatcher(patterns ...[]string) *matcher {
	m := &matcher{}
	for _, p := range patterns {
		m.patterns = append(m.patterns, p...)
	}
	return m
}

// excluded reports whether the slash path rel (a directory when dir) is excluded
func (m *matcher) excluded(rel string, dir bool) bool {
	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if dir {
			// "vendor/**" should prune the vendor directory itself
			if ok, _ := doublestar.Match(p, rel+"/"); ok {
				return true
			}
		}
	}
	return false
}

// collect walks root and returns regular files as archive entries sorted by name.
// skipRoot names root-level files the caller writes itself.
func collect(ctx context.Context, root string, m *matcher, skipRoot map[string]bool) ([]archive.Entry, []string, error) {
	var (
		mu      sync.Mutex
		entries []archive.Entry
		skipped []string
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return err
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if m.excluded(rel, true) {
				return fastwalk.SkipDir
			}
			return nil
		}
		if m.excluded(rel, false) || skipRoot[rel] {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			mu.Lock()
			skipped = append(skipped, rel)
			mu.Unlock()
			return nil
		}

		mu.Lock()
		entries = append(entries, archive.Entry{Name: rel, Source: p})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	sort.Strings(skipped)
	return entries, skipped, nil
}
