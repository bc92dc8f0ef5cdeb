package files

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"

	"github.com/GriffinCanCode/localwebapp/internal/service"
	"github.com/GriffinCanCode/localwebapp/internal/shared/paths"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
	"github.com/GriffinCanCode/localwebapp/internal/shared/utils"
)

// Name is the capability name
const Name = "files"

// MaxReadSize bounds a single read
const MaxReadSize = 16 * 1024 * 1024

// ErrNoDataDirectory is returned when the app has no data directory
var ErrNoDataDirectory = errors.New("app has no data directory")

// FileInfo represents file metadata
type FileInfo struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	IsDir    bool      `json:"is_dir"`
	Mode     string    `json:"mode"`
	Modified time.Time `json:"modified"`
	MimeType string    `json:"mime_type,omitempty"`
}

// Provider reads and writes files inside the app data directory
type Provider struct{}

// New creates the files provider
func New() *Provider {
	return &Provider{}
}

// Definition returns capability metadata
func (p *Provider) Definition() types.Capability {
	pathParam := types.Parameter{Name: "path", Type: "string", Description: "Path relative to the app data directory", Required: true}
	encodingParam := types.Parameter{Name: "encoding", Type: "string", Description: "utf8 (default) or base64", Required: false}

	return types.Capability{
		Name:        Name,
		Description: "File access confined to the application's data directory",
		Commands: []types.Command{
			{Name: "read", Description: "Read file contents", Parameters: []types.Parameter{pathParam, encodingParam}, Returns: "object"},
			{
				Name:        "write",
				Description: "Write data to file (overwrites existing)",
				Parameters: []types.Parameter{
					pathParam,
					{Name: "data", Type: "string", Description: "Data to write", Required: true},
					encodingParam,
				},
				Returns: "object",
			},
			{
				Name:        "append",
				Description: "Append data to end of file",
				Parameters: []types.Parameter{
					pathParam,
					{Name: "data", Type: "string", Description: "Data to append", Required: true},
				},
				Returns: "object",
			},
			{
				Name:        "delete",
				Description: "Delete a file or directory",
				Parameters: []types.Parameter{
					pathParam,
					{Name: "recursive", Type: "boolean", Description: "Delete non-empty directories", Required: false},
				},
				Returns: "object",
			},
			{Name: "exists", Description: "Check if a path exists", Parameters: []types.Parameter{pathParam}, Returns: "object"},
			{
				Name:        "list",
				Description: "List entries matching a glob",
				Parameters: []types.Parameter{
					{Name: "path", Type: "string", Description: "Directory to list (default root)", Required: false},
					{Name: "pattern", Type: "string", Description: "doublestar glob (default *)", Required: false},
				},
				Returns: "array",
			},
			{Name: "info", Description: "File metadata with detected MIME type", Parameters: []types.Parameter{pathParam}, Returns: "object"},
			{Name: "mkdir", Description: "Create a directory and its parents", Parameters: []types.Parameter{pathParam}, Returns: "object"},
		},
	}
}

// Execute runs one command
func (p *Provider) Execute(ctx context.Context, cmd string, data interface{}, appCtx *types.AppContext) (interface{}, error) {
	params, err := service.ParamsOf(data)
	if err != nil {
		return nil, err
	}
	if appCtx == nil || appCtx.DataDirectory == "" {
		return nil, ErrNoDataDirectory
	}
	base := appCtx.DataDirectory

	switch cmd {
	case "read":
		return p.read(base, params)
	case "write":
		return p.write(base, params)
	case "append":
		return p.append(base, params)
	case "delete":
		return p.delete(base, params)
	case "exists":
		return p.exists(base, params)
	case "list":
		return p.list(ctx, base, params)
	case "info":
		return p.info(base, params)
	case "mkdir":
		return p.mkdir(base, params)
	default:
		return nil, fmt.Errorf("unknown command: %s.%s", Name, cmd)
	}
}

// resolve confines a user path to base
func resolve(base string, params service.Params, name string) (string, string, error) {
	rel, err := params.String(name)
	if err != nil {
		return "", "", err
	}
	full, err := paths.Resolve(base, rel)
	if err != nil {
		return "", "", &service.ParamError{Name: name, Reason: err.Error()}
	}
	return rel, full, nil
}

func (p *Provider) read(base string, params service.Params) (interface{}, error) {
	rel, full, err := resolve(base, params, "path")
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("read failed: %s is a directory", rel)
	}
	if info.Size() > MaxReadSize {
		return nil, fmt.Errorf("read failed: %s exceeds %d bytes", rel, MaxReadSize)
	}

	raw, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}

	content := string(raw)
	encoding := params.OptString("encoding", "utf8")
	if encoding == "base64" {
		content = base64.StdEncoding.EncodeToString(raw)
	}

	return map[string]interface{}{
		"path":     rel,
		"content":  content,
		"encoding": encoding,
		"size":     len(raw),
	}, nil
}

func decodeData(params service.Params) ([]byte, error) {
	text, err := params.Text("data")
	if err != nil {
		return nil, err
	}
	if params.OptString("encoding", "utf8") == "base64" {
		raw, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, &service.ParamError{Name: "data", Reason: "invalid base64"}
		}
		return raw, nil
	}
	return []byte(text), nil
}

func (p *Provider) write(base string, params service.Params) (interface{}, error) {
	rel, full, err := resolve(base, params, "path")
	if err != nil {
		return nil, err
	}
	raw, err := decodeData(params)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}
	if err := utils.WriteFileAtomic(full, raw, 0o644); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	return map[string]interface{}{"written": true, "path": rel, "size": len(raw)}, nil
}

func (p *Provider) append(base string, params service.Params) (interface{}, error) {
	rel, full, err := resolve(base, params, "path")
	if err != nil {
		return nil, err
	}
	text, err := params.Text("data")
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("append failed: %w", err)
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("append failed: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return nil, fmt.Errorf("append failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("append failed: %w", err)
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("append failed: %w", err)
	}
	return map[string]interface{}{"appended": true, "path": rel, "size": info.Size()}, nil
}

func (p *Provider) delete(base string, params service.Params) (interface{}, error) {
	rel, full, err := resolve(base, params, "path")
	if err != nil {
		return nil, err
	}
	if full == filepath.Clean(base) {
		return nil, &service.ParamError{Name: "path", Reason: "cannot delete the data directory"}
	}

	if params.Bool("recursive", false) {
		if _, err := os.Lstat(full); err != nil {
			return nil, fmt.Errorf("delete failed: %w", err)
		}
		err = os.RemoveAll(full)
	} else {
		err = os.Remove(full)
	}
	if err != nil {
		return nil, fmt.Errorf("delete failed: %w", err)
	}
	return map[string]interface{}{"deleted": true, "path": rel}, nil
}

func (p *Provider) exists(base string, params service.Params) (interface{}, error) {
	rel, full, err := resolve(base, params, "path")
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]interface{}{"exists": false, "path": rel, "is_dir": false}, nil
		}
		return nil, fmt.Errorf("exists failed: %w", err)
	}
	return map[string]interface{}{"exists": true, "path": rel, "is_dir": info.IsDir()}, nil
}

func (p *Provider) list(ctx context.Context, base string, params service.Params) (interface{}, error) {
	dir := base
	rel := params.OptString("path", ".")
	if rel != "." {
		full, err := paths.Resolve(base, rel)
		if err != nil {
			return nil, &service.ParamError{Name: "path", Reason: err.Error()}
		}
		dir = full
	}

	pattern := params.OptString("pattern", "*")
	if !doublestar.ValidatePattern(pattern) {
		return nil, &service.ParamError{Name: "pattern", Reason: "invalid glob"}
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern)
	if err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}
	sort.Strings(matches)

	entries := make([]FileInfo, 0, len(matches))
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(m)))
		if err != nil {
			continue
		}
		entries = append(entries, FileInfo{
			Name:     info.Name(),
			Path:     m,
			Size:     info.Size(),
			IsDir:    info.IsDir(),
			Mode:     info.Mode().String(),
			Modified: info.ModTime(),
		})
	}
	return entries, nil
}

func (p *Provider) info(base string, params service.Params) (interface{}, error) {
	rel, full, err := resolve(base, params, "path")
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("info failed: %w", err)
	}

	out := FileInfo{
		Name:     info.Name(),
		Path:     rel,
		Size:     info.Size(),
		IsDir:    info.IsDir(),
		Mode:     info.Mode().String(),
		Modified: info.ModTime(),
	}
	if !info.IsDir() {
		if mtype, err := mimetype.DetectFile(full); err == nil {
			out.MimeType = mtype.String()
		}
	}
	return out, nil
}

func (p *Provider) mkdir(base string, params service.Params) (interface{}, error) {
	rel, full, err := resolve(base, params, "path")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir failed: %w", err)
	}
	return map[string]interface{}{"created": true, "path": rel}, nil
}
