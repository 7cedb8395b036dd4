package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sandevgo/oppsbot/internal/core"
)

const copyTemplateSchema = `
{
  "type": "object",
  "properties": {
    "source_path": { "type": "string", "description": "Template file or folder to copy from" },
    "dest_path": { "type": "string", "description": "Destination file or folder; created if missing" },
    "file_pattern": { "type": "string", "description": "Glob pattern selecting files when source_path is a folder, e.g. *.docx; defaults to *" }
  },
  "required": ["source_path", "dest_path"]
}
`

// Filesystem exposes template copying to the model. Relative paths
// resolve against the workshare root; existing files are never
// overwritten.
type Filesystem struct {
	BasePath string
}

func NewFilesystem(basePath string) *Filesystem {
	if basePath == "" {
		basePath, _ = os.Getwd()
	}
	return &Filesystem{BasePath: basePath}
}

func (fs *Filesystem) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(fs.BasePath, p)
}

func (fs *Filesystem) CopyTemplate(ctx context.Context, args json.RawMessage) (string, error) {
	var input struct {
		SourcePath  string `json:"source_path"`
		DestPath    string `json:"dest_path"`
		FilePattern string `json:"file_pattern"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if input.SourcePath == "" || input.DestPath == "" {
		return "", fmt.Errorf("source_path and dest_path are required")
	}
	pattern := input.FilePattern
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return "", fmt.Errorf("%w: bad file_pattern %q", core.ErrFileSystem, input.FilePattern)
	}

	src := fs.resolvePath(input.SourcePath)
	dst := fs.resolvePath(input.DestPath)

	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("%w: source %s does not exist", core.ErrFileSystem, input.SourcePath)
	}

	if !info.IsDir() {
		return fs.copyOne(src, dst, input.DestPath)
	}
	return fs.copyDir(src, dst, pattern, input.DestPath)
}

// copyOne copies a single template file. A dest that is an existing
// directory receives the file under its source name; anything else is
// taken as the target file path.
func (fs *Filesystem) copyOne(src, dst, displayDst string) (string, error) {
	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrFileSystem, err)
	}
	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	return fmt.Sprintf("Copied %s to %s", filepath.Base(src), displayDst), nil
}

// copyDir copies the files matching pattern from src into dst. All
// targets are checked for collisions before anything is written so a
// failed call leaves the destination untouched.
func (fs *Filesystem) copyDir(src, dst, pattern, displayDst string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(src, pattern))
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrFileSystem, err)
	}

	var files []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, m)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w: no files match %s in %s", core.ErrFileSystem, pattern, filepath.Base(src))
	}

	if err := os.MkdirAll(dst, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrFileSystem, err)
	}
	for _, f := range files {
		target := filepath.Join(dst, filepath.Base(f))
		if _, err := os.Stat(target); err == nil {
			return "", fmt.Errorf("%w: %s already exists in %s", core.ErrFileSystem, filepath.Base(f), displayDst)
		}
	}

	var copied []string
	for _, f := range files {
		if err := copyFile(f, filepath.Join(dst, filepath.Base(f))); err != nil {
			return "", err
		}
		copied = append(copied, filepath.Base(f))
	}
	return fmt.Sprintf("Copied %s to %s", strings.Join(copied, ", "), displayDst), nil
}

// copyFile creates dst exclusively, so a concurrent or pre-existing
// file is never clobbered.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrFileSystem, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s already exists", core.ErrFileSystem, filepath.Base(dst))
		}
		return fmt.Errorf("%w: %v", core.ErrFileSystem, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("%w: %v", core.ErrFileSystem, err)
	}
	return out.Close()
}

func (fs *Filesystem) GetDefinitions() map[string]Definition {
	return map[string]Definition{
		core.ToolCopyTemplate: {
			Description: "Copy proposal template files into an opportunity folder without overwriting existing files",
			Schema:      copyTemplateSchema,
			Handler:     fs.CopyTemplate,
		},
	}
}
