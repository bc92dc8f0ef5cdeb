package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
	"github.com/GriffinCanCode/localwebapp/internal/shared/utils"
)

// Format is the encoding of a descriptor file
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FileNames lists descriptor names in lookup order
var FileNames = []string{"webapp.json", "webapp.yaml", "webapp.yml", "webapp.toml"}

// Section keys accepted at the top level, in lookup order
const (
	SectionPackage  = "package"
	SectionManifest = "manifest"
)

// Document is a decoded descriptor that can be written back
type Document struct {
	Path     string
	Format   Format
	Section  string
	Manifest types.Manifest

	root map[string]interface{}
}

// FormatOf returns the format implied by a descriptor file name
func FormatOf(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".toml":
		return FormatTOML, true
	}
	return "", false
}

// IsDescriptor reports whether name (a base name) is a descriptor file
func IsDescriptor(name string) bool {
	for _, n := range FileNames {
		if n == name {
			return true
		}
	}
	return false
}

// Find returns the path of the descriptor in dir
func Find(dir string) (string, error) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err == nil && info.Mode().IsRegular() {
			return p, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", &types.ValidationError{Path: p, Reason: "cannot stat manifest descriptor", Err: err}
		}
	}
	return "", &types.ValidationError{
		Path:   dir,
		Reason: "no manifest descriptor (" + strings.Join(FileNames, ", ") + ")",
	}
}

// Load finds, parses and validates the descriptor in dir
func Load(dir string) (*Document, error) {
	path, err := Find(dir)
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile parses and validates the descriptor at path
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.ValidationError{Path: path, Reason: "cannot read manifest descriptor", Err: err}
	}
	doc, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	if err := Validate(&doc.Manifest); err != nil {
		return nil, withPath(err, path)
	}
	return doc, nil
}

// Parse decodes descriptor bytes; the format comes from the extension of name.
// The manifest is not validated.
func Parse(name string, data []byte) (*Document, error) {
	format, ok := FormatOf(name)
	if !ok {
		return nil, &types.ValidationError{Path: name, Reason: "unsupported descriptor format"}
	}

	root, err := decodeRoot(format, data)
	if err != nil {
		return nil, &types.ValidationError{Path: name, Reason: "unparsable manifest descriptor", Err: err}
	}

	for _, key := range []string{SectionPackage, SectionManifest} {
		raw, ok := root[key]
		if !ok {
			continue
		}
		section, ok := asMap(raw)
		if !ok {
			return nil, &types.ValidationError{Path: name, Reason: fmt.Sprintf("%q must be an object", key)}
		}
		root[key] = section
		m, err := decodeFields(section)
		if err != nil {
			return nil, &types.ValidationError{Path: name, Reason: "invalid manifest field", Err: err}
		}
		return &Document{Path: name, Format: format, Section: key, Manifest: m, root: root}, nil
	}

	return nil, &types.ValidationError{Path: name, Reason: `descriptor has no "package" or "manifest" section`}
}

// New creates a descriptor document for m, to be saved at path
func New(path string, m types.Manifest) (*Document, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, fmt.Errorf("unsupported descriptor format: %s", path)
	}
	return &Document{
		Path:     path,
		Format:   format,
		Section:  SectionPackage,
		Manifest: m,
		root:     map[string]interface{}{SectionPackage: encodeFields(m)},
	}, nil
}

// Validate checks that a manifest can identify an application
func Validate(m *types.Manifest) error {
	if strings.TrimSpace(m.ID) == "" {
		return &types.ValidationError{Reason: "manifest id is empty"}
	}
	if err := utils.ValidateAppID(m.ID); err != nil {
		return &types.ValidationError{Reason: "manifest id is not usable", Err: err}
	}
	if entry := m.EntryDocument(); filepath.IsAbs(entry) || strings.Contains(filepath.ToSlash(entry), "..") {
		return &types.ValidationError{Reason: fmt.Sprintf("entry %q must be a relative path inside the package", entry)}
	}
	return nil
}

// SetVersion sets the version key; an empty version removes it
func (d *Document) SetVersion(version string) {
	d.Manifest.Version = version
	section := d.section()
	if version == "" {
		delete(section, "version")
		return
	}
	section["version"] = version
}

// HasVersion reports whether the descriptor itself declares a version
func (d *Document) HasVersion() bool {
	v, ok := d.section()["version"]
	return ok && v != nil && v != ""
}

// Encode serializes the document in its own format
func (d *Document) Encode() ([]byte, error) {
	switch d.Format {
	case FormatJSON:
		data, err := sonic.ConfigStd.MarshalIndent(d.root, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatYAML:
		return yaml.Marshal(d.root)
	case FormatTOML:
		return toml.Marshal(d.root)
	}
	return nil, fmt.Errorf("unsupported descriptor format %q", d.Format)
}

// Save writes the document back to its path atomically
func (d *Document) Save() error {
	data, err := d.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.Path, err)
	}
	return utils.WriteFileAtomic(d.Path, data, 0o644)
}

func (d *Document) section() map[string]interface{} {
	if d.root == nil {
		d.root = map[string]interface{}{}
	}
	if d.Section == "" {
		d.Section = SectionPackage
	}
	section, ok := asMap(d.root[d.Section])
	if !ok {
		section = map[string]interface{}{}
	}
	d.root[d.Section] = section
	return section
}

func decodeRoot(format Format, data []byte) (map[string]interface{}, error) {
	var root map[string]interface{}
	var err error
	switch format {
	case FormatJSON:
		err = sonic.Unmarshal(data, &root)
	case FormatYAML:
		err = yaml.Unmarshal(data, &root)
	case FormatTOML:
		err = toml.Unmarshal(data, &root)
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, errors.New("descriptor is empty")
	}
	return root, nil
}

func withPath(err error, path string) error {
	var ve *types.ValidationError
	if errors.As(err, &ve) && ve.Path == "" {
		ve.Path = path
	}
	return err
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}
