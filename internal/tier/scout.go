// Package tier executes one dependency tier: deterministic scout context,
// bounded-concurrency coder pipelines, batch audit, and fixer dispatch.
package tier

import (
	"encoding/json"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/forgeguard/forgeguard/internal/workspace"
	"github.com/forgeguard/forgeguard/pkg/models"
)

// ScoutContext is the zero-token replacement for a per-file scout call: a
// compact summary of what already exists around the tier's files.
type ScoutContext struct {
	// KeyInterfaces maps sibling file paths to their top-level exports.
	KeyInterfaces map[string][]string `json:"key_interfaces"`
	// Directives are conventions inferred from path patterns.
	Directives []string `json:"directives"`
	// ImportsMap maps file paths to the modules they import.
	ImportsMap map[string][]string `json:"imports_map"`
}

// JSON renders the context for inclusion in a coder prompt.
func (s ScoutContext) JSON() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

var (
	pyExportRe = regexp.MustCompile(`(?m)^(?:def|class)\s+([A-Za-z_]\w*)|^([A-Z][A-Z0-9_]*)\s*=`)
	pyImportRe = regexp.MustCompile(`(?m)^\s*(?:import\s+([A-Za-z_][\w.]*)|from\s+([A-Za-z_][\w.]*)\s+import)`)
	jsExportRe = regexp.MustCompile(`(?m)^export\s+(?:default\s+)?(?:async\s+)?(?:function|class|const|let|var)\s+([A-Za-z_$][\w$]*)`)
	goExportRe = regexp.MustCompile(`(?m)^(?:func|type|var|const)\s+\(?[^)]*?\)?\s*([A-Z]\w*)`)
)

// BuildScoutContext scans the directories the tier's files live in and
// summarises sibling exports, imports, and naming conventions. Purely
// deterministic; no model calls.
func BuildScoutContext(ws *workspace.Workspace, tierFiles []string, manifest []models.ManifestEntry) ScoutContext {
	sc := ScoutContext{
		KeyInterfaces: map[string][]string{},
		ImportsMap:    map[string][]string{},
	}

	planned := make(map[string]bool, len(manifest))
	for _, e := range manifest {
		planned[e.Path] = true
	}

	dirs := map[string]bool{}
	for _, f := range tierFiles {
		dirs[path.Dir(f)] = true
	}

	var hasTests, hasInit bool
	for dir := range dirs {
		entries, err := ws.ListDirectory(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir {
				continue
			}
			rel := path.Join(dir, e.Name)
			if dir == "." {
				rel = e.Name
			}
			if strings.HasPrefix(e.Name, "test_") || strings.HasSuffix(e.Name, "_test.go") {
				hasTests = true
			}
			if e.Name == "__init__.py" {
				hasInit = true
			}

			read, err := ws.ReadFile(rel)
			if err != nil {
				continue
			}
			if exports := extractExports(rel, read.Content); len(exports) > 0 {
				sc.KeyInterfaces[rel] = exports
			}
			if imports := extractImports(rel, read.Content); len(imports) > 0 {
				sc.ImportsMap[rel] = imports
			}
		}
	}

	// Planned exports count as interfaces too, so a file early in the tier
	// can reference a sibling that has not been written yet.
	for _, e := range manifest {
		if len(e.Exports) > 0 {
			if _, seen := sc.KeyInterfaces[e.Path]; !seen {
				sc.KeyInterfaces[e.Path] = append([]string(nil), e.Exports...)
			}
		}
	}

	if hasTests {
		sc.Directives = append(sc.Directives, "tests follow the existing test file naming in this project")
	}
	if hasInit {
		sc.Directives = append(sc.Directives, "packages re-export their public surface through __init__.py")
	}
	sort.Strings(sc.Directives)
	return sc
}

func extractExports(filePath, content string) []string {
	var matches [][]string
	switch path.Ext(filePath) {
	case ".py":
		matches = pyExportRe.FindAllStringSubmatch(content, -1)
	case ".js", ".mjs", ".ts", ".tsx", ".jsx":
		matches = jsExportRe.FindAllStringSubmatch(content, -1)
	case ".go":
		matches = goExportRe.FindAllStringSubmatch(content, -1)
	default:
		return nil
	}

	var out []string
	seen := map[string]bool{}
	for _, m := range matches {
		name := m[1]
		if name == "" && len(m) > 2 {
			name = m[2]
		}
		if name == "" || strings.HasPrefix(name, "_") || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func extractImports(filePath, content string) []string {
	if path.Ext(filePath) != ".py" {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, m := range pyImportRe.FindAllStringSubmatch(content, -1) {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		top := strings.SplitN(name, ".", 2)[0]
		if top == "" || seen[top] {
			continue
		}
		seen[top] = true
		out = append(out, top)
	}
	sort.Strings(out)
	return out
}
