package planner

import (
	"fmt"
	"testing"

	"github.com/forgeguard/forgeguard/pkg/models"
)

func entry(path string, deps ...string) models.ManifestEntry {
	return models.ManifestEntry{Path: path, Action: models.ActionCreate, DependsOn: deps}
}

func tierOf(tiers []models.FileTier, file string) int {
	for _, tier := range tiers {
		for _, f := range tier.Files {
			if f == file {
				return tier.Index
			}
		}
	}
	return -1
}

func TestTiers_TopologicalDepth(t *testing.T) {
	manifest := []models.ManifestEntry{
		entry("models.py"),
		entry("db.py"),
		entry("service.py", "models.py", "db.py"),
		entry("api.py", "service.py"),
	}

	tiers := Tiers(manifest)
	if len(tiers) != 3 {
		t.Fatalf("expected 3 tiers, got %d: %+v", len(tiers), tiers)
	}
	if tierOf(tiers, "models.py") != 0 || tierOf(tiers, "db.py") != 0 {
		t.Error("roots must be in tier 0")
	}
	if tierOf(tiers, "service.py") != 1 {
		t.Error("service.py must be in tier 1")
	}
	if tierOf(tiers, "api.py") != 2 {
		t.Error("api.py must follow service.py")
	}
}

func TestTiers_CycleDoesNotDeadlock(t *testing.T) {
	manifest := []models.ManifestEntry{
		entry("a.py", "b.py"),
		entry("b.py", "a.py"),
	}
	tiers := Tiers(manifest)

	var total int
	for _, tier := range tiers {
		total += len(tier.Files)
	}
	if total != 2 {
		t.Fatalf("every file must land in a tier, got %+v", tiers)
	}
}

func TestTiers_UnknownDependencyIgnored(t *testing.T) {
	manifest := []models.ManifestEntry{
		entry("a.py", "outside_phase.py"),
	}
	tiers := Tiers(manifest)
	if len(tiers) != 1 || tierOf(tiers, "a.py") != 0 {
		t.Fatalf("unknown deps must not raise the depth: %+v", tiers)
	}
}

func TestTiers_OversizedTierSplitsByDirectory(t *testing.T) {
	var manifest []models.ManifestEntry
	for i := 0; i < 5; i++ {
		manifest = append(manifest, entry(fmt.Sprintf("api/a%d.py", i)))
	}
	for i := 0; i < 5; i++ {
		manifest = append(manifest, entry(fmt.Sprintf("db/b%d.py", i)))
	}

	tiers := Tiers(manifest)
	if len(tiers) < 2 {
		t.Fatalf("10 root files must split into sub-tiers, got %+v", tiers)
	}
	for _, tier := range tiers {
		if len(tier.Files) > maxTierSize {
			t.Errorf("tier %d has %d files", tier.Index, len(tier.Files))
		}
	}
	// Indexes are sequential.
	for i, tier := range tiers {
		if tier.Index != i {
			t.Errorf("tier %d has index %d", i, tier.Index)
		}
	}
}
