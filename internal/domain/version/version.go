// Package version parses, compares and increments application versions and
// reconciles the manifest version with a companion package.json.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrVersionFormat marks a version string that cannot be processed
var ErrVersionFormat = errors.New("invalid version format")

// FormatError describes why a version string was rejected
type FormatError struct {
	Version string
	Reason  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Version, e.Reason)
}

// Unwrap returns ErrVersionFormat
func (e *FormatError) Unwrap() error { return ErrVersionFormat }

// Parse splits a version on "." into major, minor and the rest. Segments past
// the third stay in patchWithSuffix, so "1.2.3-rc.1" yields ("1", "2", "3-rc.1").
func Parse(s string) (major, minor, patchWithSuffix string, err error) {
	segments := strings.Split(s, ".")
	if len(segments) < 3 {
		return "", "", "", &FormatError{Version: s, Reason: "expected at least three dot-separated segments"}
	}
	return segments[0], segments[1], strings.Join(segments[2:], "."), nil
}

// Increase increments the numeric patch and keeps any prerelease or build suffix
func Increase(s string) (string, error) {
	major, minor, patch, err := Parse(s)
	if err != nil {
		return "", err
	}

	number, suffix := splitPatch(patch)
	n, err := strconv.Atoi(number)
	if err != nil || n < 0 {
		return "", &FormatError{Version: s, Reason: fmt.Sprintf("patch %q is not a non-negative integer", number)}
	}

	return fmt.Sprintf("%s.%s.%d%s", major, minor, n+1, suffix), nil
}

// splitPatch cuts the patch segment at the first '-' or '+'
func splitPatch(patch string) (number, suffix string) {
	if i := strings.IndexAny(patch, "-+"); i >= 0 {
		return patch[:i], patch[i:]
	}
	return patch, ""
}

// Semver is a parsed major.minor.patch[-prerelease][+build] version
type Semver struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
	Build      string
	Original   string
}

// ParseSemver parses s into numeric components
func ParseSemver(s string) (*Semver, error) {
	major, minor, patch, err := Parse(strings.TrimPrefix(strings.TrimSpace(s), "v"))
	if err != nil {
		return nil, &FormatError{Version: s, Reason: "expected at least three dot-separated segments"}
	}

	v := &Semver{Original: s}
	if v.Major, err = atoi(major); err != nil {
		return nil, &FormatError{Version: s, Reason: "major is not a number"}
	}
	if v.Minor, err = atoi(minor); err != nil {
		return nil, &FormatError{Version: s, Reason: "minor is not a number"}
	}

	number, suffix := splitPatch(patch)
	if v.Patch, err = atoi(number); err != nil {
		return nil, &FormatError{Version: s, Reason: "patch is not a number"}
	}

	if i := strings.IndexByte(suffix, '+'); i >= 0 {
		v.Build = suffix[i+1:]
		suffix = suffix[:i]
	}
	v.Prerelease = strings.TrimPrefix(suffix, "-")
	return v, nil
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative")
	}
	return n, nil
}

// String returns the original version text
func (v *Semver) String() string {
	return v.Original
}

// Compare returns -1, 0 or 1. Core segments compare numerically; on equal
// cores a prerelease sorts before the release; build metadata is ignored.
func (v *Semver) Compare(other *Semver) int {
	if c := cmpInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := cmpInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := cmpInt(v.Patch, other.Patch); c != 0 {
		return c
	}

	switch {
	case v.Prerelease == other.Prerelease:
		return 0
	case v.Prerelease == "":
		return 1
	case other.Prerelease == "":
		return -1
	}
	return comparePrerelease(v.Prerelease, other.Prerelease)
}

// Compare parses and compares two version strings
func Compare(a, b string) (int, error) {
	va, err := ParseSemver(a)
	if err != nil {
		return 0, err
	}
	vb, err := ParseSemver(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// IsNewer reports whether candidate is strictly newer than current
func IsNewer(candidate, current string) (bool, error) {
	c, err := Compare(candidate, current)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// comparePrerelease orders dot-separated identifiers: numeric ones
// numerically and below alphanumeric ones, a shorter list first on a tie.
func comparePrerelease(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aErr := strconv.Atoi(as[i])
		bn, bErr := strconv.Atoi(bs[i])
		switch {
		case aErr == nil && bErr == nil:
			if c := cmpInt(an, bn); c != 0 {
				return c
			}
		case aErr == nil:
			return -1
		case bErr == nil:
			return 1
		default:
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
		}
	}
	return cmpInt(len(as), len(bs))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
