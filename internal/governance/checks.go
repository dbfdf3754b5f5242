package governance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/forgeguard/forgeguard/pkg/models"
)

// checkScope (G1) compares the touched file set against the phase manifest.
// Phantom files exist on disk without a manifest entry; missing files have a
// create or modify entry but never landed.
func (g *Gate) checkScope(manifest []models.ManifestEntry, touched []string) CheckResult {
	planned := make(map[string]models.ManifestAction, len(manifest))
	for _, e := range manifest {
		planned[e.Path] = e.Action
	}

	var findings []Finding
	for _, path := range touched {
		if _, ok := planned[path]; !ok {
			findings = append(findings, Finding{Path: path, Message: "phantom: written but not in the phase manifest"})
		}
	}
	for _, e := range manifest {
		if e.Action == models.ActionDelete {
			continue
		}
		if !g.fileExists(e.Path) {
			findings = append(findings, Finding{Path: e.Path, Message: "missing: in the phase manifest but not on disk"})
		}
	}
	sortFindings(findings)
	return CheckResult{Code: "G1", Name: "scope", Verdict: verdictFor(findings, VerdictFail), Findings: findings}
}

// checkBoundaries (G2) matches each layer's forbidden patterns against the
// touched files the layer's glob covers.
func (g *Gate) checkBoundaries(touched []string) CheckResult {
	result := CheckResult{Code: "G2", Name: "boundary", Verdict: VerdictPass}
	if g.boundaries == nil {
		return result
	}

	var findings []Finding
	for _, path := range touched {
		content, err := g.readAll(path)
		if err != nil {
			continue
		}
		for _, layer := range g.boundaries.Layers {
			if !globMatch(layer.Glob, path) {
				continue
			}
			for _, forbidden := range layer.Forbidden {
				if !forbidden.Match(content) {
					continue
				}
				msg := fmt.Sprintf("forbidden pattern %q in layer %q", forbidden.Pattern, layer.Glob)
				if forbidden.Reason != "" {
					msg += ": " + forbidden.Reason
				}
				findings = append(findings, Finding{
					Path:    path,
					Line:    firstMatchLine(content, forbidden.Match),
					Message: msg,
				})
			}
		}
	}
	sortFindings(findings)
	result.Findings = findings
	result.Verdict = verdictFor(findings, VerdictFail)
	return result
}

// secretPatterns flag credential-shaped content.
var secretPatterns = []string{"sk-", "AKIA", "-----BEGIN", "password=", "secret=", "token="}

// checkSecrets (G4) scans touched files for credential-shaped strings. Test
// and example files are exempt.
func (g *Gate) checkSecrets(touched []string) CheckResult {
	var findings []Finding
	for _, path := range touched {
		lower := strings.ToLower(path)
		if strings.Contains(lower, "test") || strings.Contains(lower, "example") {
			continue
		}
		content, err := g.readAll(path)
		if err != nil {
			continue
		}
		for i, line := range strings.Split(content, "\n") {
			for _, pat := range secretPatterns {
				if strings.Contains(line, pat) {
					findings = append(findings, Finding{
						Path:    path,
						Line:    i + 1,
						Message: fmt.Sprintf("possible secret: line contains %q", pat),
					})
					break
				}
			}
		}
	}
	sortFindings(findings)
	return CheckResult{Code: "G4", Name: "secrets", Verdict: verdictFor(findings, VerdictWarn), Findings: findings}
}

// checkRoutes (G5) verifies each physics path has a handler file under the
// router directory. Matching is by path segment against file names.
func (g *Gate) checkRoutes() CheckResult {
	result := CheckResult{Code: "G5", Name: "route coverage", Verdict: VerdictPass}
	if g.physics == nil || len(g.physics.Paths) == 0 {
		return result
	}

	handlers := g.handlerBasenames()
	var findings []Finding
	for _, route := range g.physics.Paths {
		if !g.routeCovered(route, handlers) {
			findings = append(findings, Finding{
				Message: fmt.Sprintf("route %s has no handler file under %s/", route, g.RouterDir),
			})
		}
	}
	result.Findings = findings
	result.Verdict = verdictFor(findings, VerdictWarn)
	return result
}

// handlerBasenames collects extension-stripped file names under the router
// directory.
func (g *Gate) handlerBasenames() map[string]bool {
	names := map[string]bool{}
	root, err := g.ws.Resolve(g.RouterDir)
	if err != nil {
		return names
	}
	filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		base := d.Name()
		base = strings.TrimSuffix(base, filepath.Ext(base))
		names[strings.ToLower(base)] = true
		return nil
	})
	return names
}

// routeCovered checks whether any non-parameter segment of the route names a
// handler file, allowing a plural/singular mismatch.
func (g *Gate) routeCovered(route string, handlers map[string]bool) bool {
	for _, seg := range strings.Split(route, "/") {
		if seg == "" || strings.HasPrefix(seg, "{") || strings.HasPrefix(seg, ":") {
			continue
		}
		seg = strings.ToLower(seg)
		if handlers[seg] || handlers[strings.TrimSuffix(seg, "s")] || handlers[seg+"s"] {
			return true
		}
	}
	return false
}

// checkRenames (G6) looks for rename entries in the staged git diff. A
// workspace without git passes.
func (g *Gate) checkRenames(ctx context.Context) CheckResult {
	result := CheckResult{Code: "G6", Name: "rename detection", Verdict: VerdictPass}
	if g.runner == nil {
		return result
	}
	out, err := g.runner.Run(ctx, g.ws.Root(), "git", "diff", "--cached", "--name-status", "-M")
	if err != nil {
		return result
	}

	var findings []Finding
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.HasPrefix(line, "R") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 3 {
			findings = append(findings, Finding{
				Path:    fields[2],
				Message: fmt.Sprintf("staged rename: %s -> %s", fields[1], fields[2]),
			})
		}
	}
	result.Findings = findings
	result.Verdict = verdictFor(findings, VerdictWarn)
	return result
}

// placeholderPatterns flag unfinished code left behind by a coder.
var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bTODO\b`),
	regexp.MustCompile(`\bNotImplementedError\b`),
	regexp.MustCompile(`pass\s*#\s*placeholder`),
	regexp.MustCompile(`\.\.\.\s*#\s*stub`),
}

// checkPlaceholders (G7) scans touched files for stub markers.
func (g *Gate) checkPlaceholders(touched []string) CheckResult {
	var findings []Finding
	for _, path := range touched {
		content, err := g.readAll(path)
		if err != nil {
			continue
		}
		for i, line := range strings.Split(content, "\n") {
			for _, re := range placeholderPatterns {
				if re.MatchString(line) {
					findings = append(findings, Finding{
						Path:    path,
						Line:    i + 1,
						Message: fmt.Sprintf("placeholder: %s", strings.TrimSpace(line)),
					})
					break
				}
			}
		}
	}
	sortFindings(findings)
	return CheckResult{Code: "G7", Name: "placeholders", Verdict: verdictFor(findings, VerdictWarn), Findings: findings}
}

// readAll returns the full file content without the tool-facing truncation.
func (g *Gate) readAll(rel string) (string, error) {
	abs, err := g.ws.Resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (g *Gate) fileExists(rel string) bool {
	abs, err := g.ws.Resolve(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && !info.IsDir()
}

// firstMatchLine returns the 1-based line of the first line the matcher
// accepts, or 0 when only the whole content matches.
func firstMatchLine(content string, match func(string) bool) int {
	for i, line := range strings.Split(content, "\n") {
		if match(line) {
			return i + 1
		}
	}
	return 0
}

// globMatch matches a path against a glob supporting ** for any depth and *
// within one segment.
func globMatch(glob, path string) bool {
	re, err := regexp.Compile("^" + globToRegexp(glob) + "$")
	if err != nil {
		return false
	}
	return re.MatchString(path)
}

func globToRegexp(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		switch c := glob[i]; c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				b.WriteString(".*")
				i++
				// Swallow a following slash so "a/**/b" matches "a/b".
				if i+1 < len(glob) && glob[i+1] == '/' {
					b.WriteString("/?")
					i++
				}
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}

// sortFindings orders findings by path then line for stable reports.
func sortFindings(findings []Finding) {
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Path != findings[j].Path {
			return findings[i].Path < findings[j].Path
		}
		return findings[i].Line < findings[j].Line
	})
}
