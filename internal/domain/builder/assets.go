package builder

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var assetSelectors = []struct {
	selector string
	attr     string
}{
	{"script[src]", "src"},
	{"link[href]", "href"},
	{"img[src]", "src"},
	{"source[src]", "src"},
}

// checkAssets parses the entry document and reports local references that
// are not part of the package. External, data and fragment URLs are ignored.
func checkAssets(entrySource, entryName string, names map[string]bool) ([]string, error) {
	data, err := os.ReadFile(entrySource)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", entryName, err)
	}

	base := path.Dir(entryName)
	seen := map[string]bool{}
	var missing []string

	for _, s := range assetSelectors {
		doc.Find(s.selector).Each(func(_ int, sel *goquery.Selection) {
			ref, _ := sel.Attr(s.attr)
			target, ok := localTarget(base, ref)
			if !ok || seen[target] {
				return
			}
			seen[target] = true
			if !names[target] {
				missing = append(missing, fmt.Sprintf("%s references missing asset %q", entryName, ref))
			}
		})
	}
	return missing, nil
}

// localTarget resolves ref against base to a package entry name
func localTarget(base, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}

	var target string
	if strings.HasPrefix(u.Path, "/") {
		target = path.Clean(strings.TrimPrefix(u.Path, "/"))
	} else {
		target = path.Clean(path.Join(base, u.Path))
	}
	if target == "." || strings.HasPrefix(target, "../") {
		return "", false
	}
	return target, true
}
