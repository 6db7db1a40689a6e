// Package workspace locates the project root the panel serves and the
// folders inside it that hold a servable site.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoWorkspace is returned when no usable project root can be resolved
var ErrNoWorkspace = errors.New("no workspace folder is open")

// ErrOutsideWorkspace is returned for paths that leave the workspace root
var ErrOutsideWorkspace = errors.New("path is outside the workspace")

// IndexName is the entry page htflow serves for a folder
const IndexName = "index.html"

// maxDepth bounds the folder scan below the root
const maxDepth = 3

// skipDirs contains directory names never scanned or watched
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	".next":        true,
	".turbo":       true,
	".cache":       true,
	"coverage":     true,
	"__pycache__":  true,
	".vscode":      true,
	".idea":        true,
	".htflow":      true,
}

// Skip reports whether a directory name is excluded from scans and watches
func Skip(name string) bool {
	return skipDirs[name] || strings.HasPrefix(name, ".")
}

// Resolve turns dir into an absolute workspace root. An empty dir means the
// current directory. ~/ is expanded.
func Resolve(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrNoWorkspace, err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(expandHome(dir))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoWorkspace, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoWorkspace, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrNoWorkspace, abs)
	}
	return abs, nil
}

// Folders lists folders under root, as slash-separated relative paths, that
// contain an index.html. The root itself comes first as "" when it qualifies.
func Folders(root string) []string {
	var folders []string
	if hasIndex(root) {
		folders = append(folders, "")
	}
	var nested []string
	scanLevel(root, root, &nested, 1)
	sort.Strings(nested)
	return append(folders, nested...)
}

func scanLevel(root, dir string, out *[]string, depth int) {
	if depth > maxDepth {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || Skip(entry.Name()) || strings.HasPrefix(entry.Name(), "_") {
			continue
		}
		child := filepath.Join(dir, entry.Name())
		if hasIndex(child) {
			if rel, err := filepath.Rel(root, child); err == nil {
				*out = append(*out, filepath.ToSlash(rel))
			}
		}
		scanLevel(root, child, out, depth+1)
	}
}

// Within checks that p, absolute or relative to root, stays inside root and
// returns it cleaned. An empty p is returned as is.
func Within(root, p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	if root == "" {
		return "", ErrNoWorkspace
	}
	clean := filepath.Clean(p)
	abs := clean
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, p)
	}
	return clean, nil
}

// IndexFile returns the path of root's index.html, if present
func IndexFile(root string) (string, bool) {
	if root == "" || !hasIndex(root) {
		return "", false
	}
	return filepath.Join(root, IndexName), true
}

func hasIndex(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, IndexName))
	return err == nil && !info.IsDir()
}

// expandHome expands ~ to user home directory
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
