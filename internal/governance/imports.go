package governance

import (
	"encoding/json"
	"fmt"
	"go/parser"
	"go/token"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// pythonStdlib is the skip-list for python import checking.
var pythonStdlib = map[string]bool{
	"abc": true, "argparse": true, "asyncio": true, "base64": true,
	"bisect": true, "builtins": true, "collections": true, "contextlib": true,
	"copy": true, "csv": true, "dataclasses": true, "datetime": true,
	"decimal": true, "enum": true, "functools": true, "glob": true,
	"hashlib": true, "heapq": true, "hmac": true, "html": true, "http": true,
	"importlib": true, "inspect": true, "io": true, "itertools": true,
	"json": true, "logging": true, "math": true, "numbers": true,
	"operator": true, "os": true, "pathlib": true, "pickle": true,
	"platform": true, "pprint": true, "queue": true, "random": true,
	"re": true, "secrets": true, "shutil": true, "signal": true,
	"socket": true, "sqlite3": true, "statistics": true, "string": true,
	"struct": true, "subprocess": true, "sys": true, "tempfile": true,
	"textwrap": true, "threading": true, "time": true, "traceback": true,
	"types": true, "typing": true, "unicodedata": true, "unittest": true,
	"urllib": true, "uuid": true, "venv": true, "warnings": true,
	"weakref": true, "xml": true, "zipfile": true, "zlib": true,
}

// nodeBuiltins is the skip-list for javascript/typescript import checking.
var nodeBuiltins = map[string]bool{
	"assert": true, "buffer": true, "child_process": true, "cluster": true,
	"crypto": true, "dns": true, "events": true, "fs": true, "http": true,
	"https": true, "net": true, "os": true, "path": true, "process": true,
	"querystring": true, "readline": true, "stream": true, "timers": true,
	"tls": true, "tty": true, "url": true, "util": true,
	"worker_threads": true, "zlib": true,
}

// pythonAliases maps import names to the package names they are declared
// under in requirements.txt.
var pythonAliases = map[string]string{
	"bs4":      "beautifulsoup4",
	"cv2":      "opencv-python",
	"dateutil": "python-dateutil",
	"dotenv":   "python-dotenv",
	"jwt":      "pyjwt",
	"PIL":      "pillow",
	"psycopg2": "psycopg2-binary",
	"sklearn":  "scikit-learn",
	"yaml":     "pyyaml",
}

var (
	pythonImportRe = regexp.MustCompile(`(?m)^\s*(?:import\s+([A-Za-z_][\w.]*)|from\s+([A-Za-z_][\w.]*)\s+import)`)
	jsImportRe     = regexp.MustCompile(`(?m)(?:import\s+[^;]*?from\s+|import\s+|require\(\s*)['"]([^'"]+)['"]`)
)

// checkDependencies (G3) extracts top-level imports from each touched source
// file and verifies they are declared in the project's dependency file.
func (g *Gate) checkDependencies(touched []string) CheckResult {
	var findings []Finding
	for _, filePath := range touched {
		content, err := g.readAll(filePath)
		if err != nil {
			continue
		}
		switch path.Ext(filePath) {
		case ".py":
			findings = append(findings, g.checkPythonImports(filePath, content)...)
		case ".js", ".mjs", ".cjs", ".ts", ".tsx", ".jsx":
			findings = append(findings, g.checkJSImports(filePath, content)...)
		case ".go":
			findings = append(findings, g.checkGoImports(filePath, content)...)
		}
	}
	sortFindings(findings)
	return CheckResult{Code: "G3", Name: "dependency", Verdict: verdictFor(findings, VerdictFail), Findings: findings}
}

func (g *Gate) checkPythonImports(filePath, content string) []Finding {
	declared := g.requirementsPackages()
	local := g.localPythonModules()

	var findings []Finding
	for _, match := range pythonImportRe.FindAllStringSubmatch(content, -1) {
		name := match[1]
		if name == "" {
			name = match[2]
		}
		top := strings.SplitN(name, ".", 2)[0]
		if pythonStdlib[top] || local[top] {
			continue
		}
		pkg := top
		if alias, ok := pythonAliases[top]; ok {
			pkg = alias
		}
		if !declared[normalizePyPackage(pkg)] {
			findings = append(findings, Finding{
				Path:    filePath,
				Message: fmt.Sprintf("import %q not declared in requirements.txt", top),
			})
		}
	}
	return findings
}

func (g *Gate) checkJSImports(filePath, content string) []Finding {
	declared := g.packageJSONDependencies()

	var findings []Finding
	for _, match := range jsImportRe.FindAllStringSubmatch(content, -1) {
		spec := match[1]
		if strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") {
			continue
		}
		spec = strings.TrimPrefix(spec, "node:")
		// Scoped packages keep two segments, others one.
		parts := strings.Split(spec, "/")
		pkg := parts[0]
		if strings.HasPrefix(pkg, "@") && len(parts) > 1 {
			pkg = parts[0] + "/" + parts[1]
		}
		if nodeBuiltins[pkg] {
			continue
		}
		if !declared[pkg] {
			findings = append(findings, Finding{
				Path:    filePath,
				Message: fmt.Sprintf("import %q not declared in package.json", pkg),
			})
		}
	}
	return findings
}

func (g *Gate) checkGoImports(filePath, content string) []Finding {
	declared := g.goModModules()
	if declared == nil {
		return nil
	}

	file, err := parser.ParseFile(token.NewFileSet(), filePath, content, parser.ImportsOnly)
	if err != nil {
		return nil
	}

	var findings []Finding
	for _, imp := range file.Imports {
		importPath, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		// Stdlib import paths have no dot in the first segment.
		first := strings.SplitN(importPath, "/", 2)[0]
		if !strings.Contains(first, ".") {
			continue
		}
		if declared["module:"+modulePrefixOf(importPath, declared)] {
			continue
		}
		findings = append(findings, Finding{
			Path:    filePath,
			Message: fmt.Sprintf("import %q not declared in go.mod", importPath),
		})
	}
	return findings
}

// requirementsPackages parses requirements.txt into a normalized name set.
// A missing file yields an empty set, so every third-party import flags.
func (g *Gate) requirementsPackages() map[string]bool {
	declared := map[string]bool{}
	content, err := g.readAll("requirements.txt")
	if err != nil {
		return declared
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		for _, sep := range []string{"==", ">=", "<=", "~=", "!=", ">", "<", ";", "["} {
			if idx := strings.Index(line, sep); idx >= 0 {
				line = line[:idx]
			}
		}
		declared[normalizePyPackage(line)] = true
	}
	return declared
}

func normalizePyPackage(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", "-"))
}

// localPythonModules treats top-level .py files and directories as
// importable local modules.
func (g *Gate) localPythonModules() map[string]bool {
	local := map[string]bool{}
	entries, err := g.ws.ListDirectory(".")
	if err != nil {
		return local
	}
	for _, e := range entries {
		name := e.Name
		if e.IsDir {
			local[name] = true
		} else if strings.HasSuffix(name, ".py") {
			local[strings.TrimSuffix(name, ".py")] = true
		}
	}
	return local
}

// packageJSONDependencies merges dependencies and devDependencies.
func (g *Gate) packageJSONDependencies() map[string]bool {
	declared := map[string]bool{}
	content, err := g.readAll("package.json")
	if err != nil {
		return declared
	}
	var doc struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return declared
	}
	for name := range doc.Dependencies {
		declared[name] = true
	}
	for name := range doc.DevDependencies {
		declared[name] = true
	}
	return declared
}

// goModModules returns declared module paths keyed as "module:<path>", plus
// the project's own module path. Returns nil when go.mod is absent, which
// skips the check for Go files.
func (g *Gate) goModModules() map[string]bool {
	content, err := g.readAll("go.mod")
	if err != nil {
		return nil
	}
	declared := map[string]bool{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if mod, ok := strings.CutPrefix(line, "module "); ok {
			declared["module:"+strings.TrimSpace(mod)] = true
			continue
		}
		line = strings.TrimPrefix(line, "require ")
		fields := strings.Fields(line)
		if len(fields) >= 2 && strings.Contains(fields[0], ".") && strings.HasPrefix(fields[1], "v") {
			declared["module:"+fields[0]] = true
		}
	}
	return declared
}

// modulePrefixOf finds the declared module that prefixes the import path.
func modulePrefixOf(importPath string, declared map[string]bool) string {
	p := importPath
	for {
		if declared["module:"+p] {
			return p
		}
		idx := strings.LastIndex(p, "/")
		if idx < 0 {
			return importPath
		}
		p = p[:idx]
	}
}
