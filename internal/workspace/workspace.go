// Package workspace sandboxes all file access for a build. Every path is
// resolved relative to the workspace root and rejected if it escapes.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forgeguard/forgeguard/pkg/models"
)

// ReadLimit is the truncation point for read_file results, in bytes.
const ReadLimit = 8000

// skipDirs are directory names excluded from listings and searches.
var skipDirs = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	"node_modules": true,
	".venv":        true,
	"Forge":        true,
}

// ErrOutsideRoot is returned when a path escapes the workspace root.
var ErrOutsideRoot = fmt.Errorf("path escapes workspace root")

// Workspace is a sandboxed view of one build's working directory.
type Workspace struct {
	root string
}

// New creates a workspace rooted at dir. The directory must exist.
func New(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve maps a relative path to an absolute path inside the root.
// Absolute paths, traversal, backslashes and symlink escapes are rejected.
func (w *Workspace) Resolve(rel string) (string, error) {
	if !models.SafePath(rel) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	abs := filepath.Join(w.root, rel)
	if abs != w.root && !strings.HasPrefix(abs, w.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}

	// Walk existing ancestors through symlinks; the real path must still
	// land inside the root.
	real, err := resolveExisting(abs)
	if err != nil {
		return "", err
	}
	realRoot, err := filepath.EvalSymlinks(w.root)
	if err != nil {
		realRoot = w.root
	}
	if real != realRoot && !strings.HasPrefix(real, realRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q resolves outside root", ErrOutsideRoot, rel)
	}
	return abs, nil
}

// resolveExisting evaluates symlinks on the longest existing prefix of abs
// and re-joins the non-existent suffix.
func resolveExisting(abs string) (string, error) {
	probe := abs
	var suffix []string
	for {
		real, err := filepath.EvalSymlinks(probe)
		if err == nil {
			for i := len(suffix) - 1; i >= 0; i-- {
				real = filepath.Join(real, suffix[i])
			}
			return real, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return abs, nil
		}
		suffix = append(suffix, filepath.Base(probe))
		probe = parent
	}
}

// ReadResult is the payload of a read operation.
type ReadResult struct {
	Content   string `json:"content"`
	Size      int64  `json:"size"`
	Truncated bool   `json:"truncated"`
}

// ReadFile reads a file, truncating the content at ReadLimit bytes.
func (w *Workspace) ReadFile(rel string) (ReadResult, error) {
	abs, err := w.Resolve(rel)
	if err != nil {
		return ReadResult{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return ReadResult{}, err
	}
	res := ReadResult{Size: int64(len(data))}
	if len(data) > ReadLimit {
		res.Content = string(data[:ReadLimit])
		res.Truncated = true
	} else {
		res.Content = string(data)
	}
	return res, nil
}

// ReadAll reads a file without the ReadLimit truncation. Tool results go
// through ReadFile; cross-file verification needs the full content.
func (w *Workspace) ReadAll(rel string) (string, error) {
	abs, err := w.Resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DirEntry is one listing row.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// ListDirectory lists the entries of a directory, skipping build artefact
// directories. rel may be "." for the root.
func (w *Workspace) ListDirectory(rel string) ([]DirEntry, error) {
	abs := w.root
	if rel != "" && rel != "." {
		var err error
		abs, err = w.Resolve(rel)
		if err != nil {
			return nil, err
		}
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	var out []DirEntry
	for _, e := range entries {
		if e.IsDir() && skipDirs[e.Name()] {
			continue
		}
		row := DirEntry{Name: e.Name(), IsDir: e.IsDir()}
		if !e.IsDir() {
			if info, err := e.Info(); err == nil {
				row.Size = info.Size()
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// WriteFile writes content to a file, creating parent directories and
// overwriting any existing file.
func (w *Workspace) WriteFile(rel, content string) error {
	abs, err := w.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("creating parents for %s: %w", rel, err)
	}
	return os.WriteFile(abs, []byte(content), 0o644)
}

// Patch is one structured edit: OldText must occur exactly once in the file.
type Patch struct {
	OldText string `json:"old_text"`
	NewText string `json:"new_text"`
}

// DeleteFile removes a file. Missing files are not an error so replayed
// delete actions stay idempotent.
func (w *Workspace) DeleteFile(rel string) error {
	abs, err := w.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// EditFile applies structured patches in order. Each patch's OldText must
// match exactly one location; anything else aborts without writing.
func (w *Workspace) EditFile(rel string, patches []Patch) error {
	abs, err := w.Resolve(rel)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return err
	}
	content := string(data)
	for i, p := range patches {
		if p.OldText == "" {
			return fmt.Errorf("patch %d: empty old_text", i)
		}
		switch n := strings.Count(content, p.OldText); n {
		case 0:
			return fmt.Errorf("patch %d: old_text not found in %s", i, rel)
		case 1:
			content = strings.Replace(content, p.OldText, p.NewText, 1)
		default:
			return fmt.Errorf("patch %d: old_text matches %d locations in %s, must be unique", i, n, rel)
		}
	}
	return os.WriteFile(abs, []byte(content), 0o644)
}

// SearchMatch is one search_code hit.
type SearchMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// maxSearchMatches bounds search output so tool results stay readable.
const maxSearchMatches = 100

// SearchCode walks the workspace and returns lines containing the query.
// The match is a plain case-sensitive substring, like grep -F.
func (w *Workspace) SearchCode(query string) ([]SearchMatch, error) {
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}
	var matches []SearchMatch
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] || d.Name() == ".forge" {
				return filepath.SkipDir
			}
			return nil
		}
		if len(matches) >= maxSearchMatches {
			return filepath.SkipAll
		}
		data, err := os.ReadFile(path)
		if err != nil || !strings.Contains(string(data), query) {
			return nil
		}
		rel, _ := filepath.Rel(w.root, path)
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, query) {
				matches = append(matches, SearchMatch{Path: rel, Line: i + 1, Text: strings.TrimRight(line, "\r")})
				if len(matches) >= maxSearchMatches {
					break
				}
			}
		}
		return nil
	})
	return matches, err
}
