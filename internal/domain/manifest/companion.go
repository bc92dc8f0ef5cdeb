package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/localwebapp/internal/shared/utils"
)

// CompanionFile is the external name/version descriptor next to a manifest
const CompanionFile = "package.json"

// Companion is the subset of package.json the host reads
type Companion struct {
	Path    string
	Name    string
	Version string

	root map[string]interface{}
}

// LoadCompanion reads package.json from dir. A missing file is (nil, nil).
func LoadCompanion(dir string) (*Companion, error) {
	path := filepath.Join(dir, CompanionFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var root map[string]interface{}
	if err := sonic.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	c := &Companion{Path: path, root: root}
	c.Name, _ = root["name"].(string)
	c.Version, _ = root["version"].(string)
	return c, nil
}

// Describes reports whether the companion belongs to the application id
func (c *Companion) Describes(appID string) bool {
	return c != nil && c.Name != "" && c.Name == appID
}

// SetVersion updates the version and writes the file back, preserving other keys
func (c *Companion) SetVersion(version string) error {
	c.Version = version
	c.root["version"] = version
	data, err := sonic.ConfigStd.MarshalIndent(c.root, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.Path, err)
	}
	return utils.WriteFileAtomic(c.Path, append(data, '\n'), 0o644)
}
