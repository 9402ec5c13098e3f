// Package exporter writes documents as indented JSON files under a base directory.
package exporter

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscapesBase is returned for relative paths that resolve outside the base directory.
var ErrPathEscapesBase = errors.New("export path escapes base directory")

// Exporter writes JSON files below BaseDir.
type Exporter struct {
	baseDir string
}

// New creates an Exporter rooted at baseDir.
func New(baseDir string) (*Exporter, error) {
	if baseDir == "" {
		return nil, errors.New("export base directory is required")
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve export directory: %w", err)
	}
	return &Exporter{baseDir: abs}, nil
}

// BaseDir returns the absolute base directory.
func (e *Exporter) BaseDir() string {
	return e.baseDir
}

// Resolve maps a slash-separated relative path to an absolute file path ending in .json.
func (e *Exporter) Resolve(relativePath string) (string, error) {
	rel := strings.TrimPrefix(filepath.FromSlash(relativePath), string(filepath.Separator))
	if rel == "" {
		return "", fmt.Errorf("empty export path")
	}
	if !strings.HasSuffix(rel, ".json") {
		rel += ".json"
	}

	full := filepath.Join(e.baseDir, rel)
	within, err := filepath.Rel(e.baseDir, full)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesBase, relativePath)
	}
	return full, nil
}

// ExportToJSON writes data as indented JSON to relativePath and returns the
// absolute file path. Parent directories are created as needed.
func (e *Exporter) ExportToJSON(data any, relativePath string) (string, error) {
	full, err := e.Resolve(relativePath)
	if err != nil {
		return "", err
	}

	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", relativePath, err)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", relativePath, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize %s: %w", relativePath, err)
	}
	return full, nil
}
