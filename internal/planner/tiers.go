package planner

import (
	"path"
	"sort"

	"github.com/forgeguard/forgeguard/pkg/models"
)

// maxTierSize is the largest tier before the directory-affinity split.
const maxTierSize = 6

// Tiers orders the manifest into dependency tiers by topological depth. A
// file's depth is one more than the deepest of its in-phase dependencies;
// dependency cycles and unknown deps count as depth zero so the build never
// deadlocks on a bad plan. Tiers larger than six files are split into
// sub-tiers grouped by directory.
func Tiers(manifest []models.ManifestEntry) []models.FileTier {
	inManifest := make(map[string]*models.ManifestEntry, len(manifest))
	for i := range manifest {
		inManifest[manifest[i].Path] = &manifest[i]
	}

	depths := make(map[string]int, len(manifest))
	var depthOf func(p string, seen map[string]bool) int
	depthOf = func(p string, seen map[string]bool) int {
		if d, ok := depths[p]; ok {
			return d
		}
		if seen[p] {
			return 0
		}
		seen[p] = true
		entry, ok := inManifest[p]
		if !ok {
			return 0
		}
		depth := 0
		for _, dep := range entry.DependsOn {
			if _, known := inManifest[dep]; !known {
				continue
			}
			if d := depthOf(dep, seen) + 1; d > depth {
				depth = d
			}
		}
		depths[p] = depth
		return depth
	}
	for p := range inManifest {
		depthOf(p, map[string]bool{})
	}

	maxDepth := 0
	for _, d := range depths {
		if d > maxDepth {
			maxDepth = d
		}
	}

	var tiers []models.FileTier
	for depth := 0; depth <= maxDepth; depth++ {
		var files []string
		for _, e := range manifest {
			if depths[e.Path] == depth {
				files = append(files, e.Path)
			}
		}
		if len(files) == 0 {
			continue
		}
		sort.Strings(files)
		for _, group := range splitByDirectory(files) {
			tiers = append(tiers, models.FileTier{Index: len(tiers), Files: group})
		}
	}
	return tiers
}

// splitByDirectory breaks an oversized file list into sub-tiers, keeping
// files from the same directory together.
func splitByDirectory(files []string) [][]string {
	if len(files) <= maxTierSize {
		return [][]string{files}
	}

	byDir := map[string][]string{}
	var dirs []string
	for _, f := range files {
		dir := path.Dir(f)
		if _, ok := byDir[dir]; !ok {
			dirs = append(dirs, dir)
		}
		byDir[dir] = append(byDir[dir], f)
	}
	sort.Strings(dirs)

	var groups [][]string
	var current []string
	for _, dir := range dirs {
		for _, f := range byDir[dir] {
			current = append(current, f)
			if len(current) == maxTierSize {
				groups = append(groups, current)
				current = nil
			}
		}
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}
