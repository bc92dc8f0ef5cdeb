package integrity

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
	"github.com/GriffinCanCode/localwebapp/internal/shared/utils"
)

// ErrNoSidecars means neither sidecar file exists next to the archive
var ErrNoSidecars = errors.New("no sidecar digest files")

// SidecarPath returns <archive>.<algorithm>
func SidecarPath(archive string, alg utils.HashAlgorithm) string {
	return archive + "." + string(alg)
}

// SidecarPaths returns both sidecar paths of an archive
func SidecarPaths(archive string) types.DigestFiles {
	return types.DigestFiles{
		SHA256: SidecarPath(archive, utils.SHA256),
		SHA512: SidecarPath(archive, utils.SHA512),
	}
}

// WriteSidecars writes "<hex>  <basename>" lines next to the archive
func WriteSidecars(archive string, digests types.Digests) (types.DigestFiles, error) {
	files := SidecarPaths(archive)
	base := filepath.Base(archive)

	for path, sum := range map[string]string{files.SHA256: digests.SHA256, files.SHA512: digests.SHA512} {
		line := fmt.Sprintf("%s  %s\n", strings.ToLower(sum), base)
		if err := utils.WriteFileAtomic(path, []byte(line), 0o644); err != nil {
			return types.DigestFiles{}, fmt.Errorf("write sidecar: %w", err)
		}
	}
	return files, nil
}

// ReadSidecars reads the digests recorded next to an archive. A single
// missing sidecar leaves that digest empty; both missing is ErrNoSidecars.
func ReadSidecars(archive string) (types.Digests, error) {
	var d types.Digests
	var found int

	for _, entry := range []struct {
		alg utils.HashAlgorithm
		dst *string
	}{
		{utils.SHA256, &d.SHA256},
		{utils.SHA512, &d.SHA512},
	} {
		sum, err := readSidecar(SidecarPath(archive, entry.alg), filepath.Base(archive), entry.alg)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return types.Digests{}, err
		}
		*entry.dst = sum
		found++
	}

	if found == 0 {
		return types.Digests{}, ErrNoSidecars
	}
	return d, nil
}

func readSidecar(path, base string, alg utils.HashAlgorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	want := alg.New().Size() * 2
	var sums []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		sum := strings.ToLower(fields[0])
		if len(sum) != want {
			continue
		}
		if _, err := hex.DecodeString(sum); err != nil {
			continue
		}
		// sha256sum marks binary mode with a leading '*'
		if len(fields) > 1 && strings.TrimPrefix(fields[1], "*") != base {
			sums = append(sums, sum)
			continue
		}
		return sum, nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	// A sidecar that names one file belongs to its archive even after a rename
	if len(sums) == 1 {
		return sums[0], nil
	}
	return "", fmt.Errorf("%s: no %s digest for %s", path, alg, base)
}
