package cmdtree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the artifact serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrExists is returned by Save when the target exists and force is unset.
var ErrExists = errors.New("cmdtree: output file already exists")

// ParseFormat accepts json, yaml or yml (any case).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("cmdtree: unsupported format %q (allowed: json, yaml)", s)
	}
}

// FormatFromPath infers the format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Encode writes tree to w. JSON output is indented by two spaces and ends in
// a newline, so identical trees encode to identical bytes.
func Encode(w io.Writer, tree *CommandTree, format Format) error {
	if tree == nil {
		return errors.New("cmdtree: nil tree")
	}
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(tree); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON, "":
		data, err := json.MarshalIndent(tree, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		_, err = w.Write(append(data, '\n'))
		return err
	default:
		return fmt.Errorf("cmdtree: unsupported format %q", format)
	}
}

// Marshal is Encode into a byte slice.
func Marshal(tree *CommandTree, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, tree, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a tree from r.
func Decode(r io.Reader, format Format) (*CommandTree, error) {
	var tree CommandTree
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&tree); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatJSON, "":
		if err := json.NewDecoder(r).Decode(&tree); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("cmdtree: unsupported format %q", format)
	}
	return &tree, nil
}

// Load reads the artifact at path, picking the format from its extension.
func Load(path string) (*CommandTree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open command tree: %w", err)
	}
	defer f.Close()
	tree, err := Decode(f, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return tree, nil
}

// Save writes tree to path atomically via a temp file and rename. An existing
// file is only replaced when force is set.
func Save(path string, tree *CommandTree, format Format, force bool) error {
	data, err := Marshal(tree, format)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}
	if st, err := os.Stat(abs); err == nil && !force {
		if st.Mode().IsRegular() {
			return fmt.Errorf("%w: %s", ErrExists, abs)
		}
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(abs), "."+filepath.Base(abs)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", abs, err)
	}
	return nil
}
