package integrity

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
	"github.com/GriffinCanCode/localwebapp/internal/shared/utils"
)

// ErrIntegrityMismatch marks an archive whose digests disagree with its sidecars
var ErrIntegrityMismatch = errors.New("integrity mismatch")

// Result is the comparison of one digest
type Result struct {
	Algorithm utils.HashAlgorithm
	Expected  string
	Got       string
}

// Match reports whether the digest agrees
func (r Result) Match() bool {
	return strings.EqualFold(r.Expected, r.Got)
}

// Predicate decides verification from the per-digest results. Only digests
// with an expected value are passed in.
type Predicate func(results []Result) bool

// AllMatch requires every configured digest to match
func AllMatch(results []Result) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Match() {
			return false
		}
	}
	return true
}

// AnyMatch accepts the archive when at least one digest matches
func AnyMatch(results []Result) bool {
	for _, r := range results {
		if r.Match() {
			return true
		}
	}
	return false
}

// ParsePredicate maps a policy name ("all", "any") to a Predicate
func ParsePredicate(name string) (Predicate, error) {
	switch strings.ToLower(name) {
	case "", "all":
		return AllMatch, nil
	case "any":
		return AnyMatch, nil
	}
	return nil, fmt.Errorf("unknown digest policy %q", name)
}

// Mismatch describes which digests disagreed
type Mismatch struct {
	Archive string
	Results []Result
	Reason  string
}

func (m *Mismatch) Error() string {
	if m.Reason != "" {
		return fmt.Sprintf("%s: %s", m.Archive, m.Reason)
	}
	var bad []string
	for _, r := range m.Results {
		if !r.Match() {
			bad = append(bad, string(r.Algorithm))
		}
	}
	return fmt.Sprintf("%s: digest mismatch (%s)", m.Archive, strings.Join(bad, ", "))
}

// Unwrap returns ErrIntegrityMismatch
func (m *Mismatch) Unwrap() error { return ErrIntegrityMismatch }

// Verifier computes and checks archive digests
type Verifier struct {
	predicate Predicate
	logger    *zap.Logger
}

// Option configures a Verifier
type Option func(*Verifier)

// WithPredicate replaces the default AllMatch predicate
func WithPredicate(p Predicate) Option {
	return func(v *Verifier) {
		if p != nil {
			v.predicate = p
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// New creates a Verifier
func New(opts ...Option) *Verifier {
	v := &Verifier{predicate: AllMatch, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Sign computes both digests over the whole stream in one pass
func Sign(r io.Reader) (types.Digests, error) {
	sums, err := utils.MultiHash(r, utils.SHA256, utils.SHA512)
	if err != nil {
		return types.Digests{}, err
	}
	return types.Digests{SHA256: sums[utils.SHA256], SHA512: sums[utils.SHA512]}, nil
}

// SignFile computes both digests of the file at path
func SignFile(path string) (types.Digests, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Digests{}, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	return Sign(f)
}

// Verify recomputes digests over r and applies the predicate. A mismatch is
// (false, nil); only read failures return an error.
func (v *Verifier) Verify(r io.Reader, expected types.Digests) (bool, error) {
	ok, _, err := v.check(r, expected)
	return ok, err
}

// VerifyFile checks an archive against its sidecar files. Missing sidecars
// mean no provenance: (false, mismatch, nil).
func (v *Verifier) VerifyFile(archive string) (bool, *Mismatch, error) {
	f, err := os.Open(archive)
	if err != nil {
		return false, nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	return v.VerifyArchive(archive, f)
}

// VerifyArchive checks the bytes read from r against the sidecars of the
// archive at path. Callers that already hold the archive open use it so the
// verdict covers the bytes they go on to read.
func (v *Verifier) VerifyArchive(archive string, r io.Reader) (bool, *Mismatch, error) {
	expected, err := ReadSidecars(archive)
	if err != nil {
		if errors.Is(err, ErrNoSidecars) {
			m := &Mismatch{Archive: archive, Reason: "no sidecar digests"}
			v.logger.Warn("archive has no provenance", zap.String("archive", archive))
			return false, m, nil
		}
		return false, nil, err
	}

	ok, results, err := v.check(r, expected)
	if err != nil {
		return false, nil, err
	}
	if ok {
		return true, nil, nil
	}

	m := &Mismatch{Archive: archive, Results: results}
	v.logger.Warn("archive integrity check failed", zap.Error(m))
	return false, m, nil
}

func (v *Verifier) check(r io.Reader, expected types.Digests) (bool, []Result, error) {
	got, err := Sign(r)
	if err != nil {
		return false, nil, err
	}

	var results []Result
	if expected.SHA256 != "" {
		results = append(results, Result{Algorithm: utils.SHA256, Expected: expected.SHA256, Got: got.SHA256})
	}
	if expected.SHA512 != "" {
		results = append(results, Result{Algorithm: utils.SHA512, Expected: expected.SHA512, Got: got.SHA512})
	}
	return v.predicate(results), results, nil
}

// Verify checks r against expected with the default AllMatch predicate
func Verify(r io.Reader, expected types.Digests) (bool, error) {
	return New().Verify(r, expected)
}
