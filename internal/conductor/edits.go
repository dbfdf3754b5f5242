package conductor

import (
	"encoding/json"

	"github.com/forgeguard/forgeguard/pkg/models"
)

// applyManifestEdits merges user-supplied deltas into a plan. Entries match
// by path: existing entries are replaced, new paths are appended to the
// manifest and to the last chunk so the chunk/manifest bijection holds.
func applyManifestEdits(plan *models.PhasePlan, edits []models.ManifestEntry) {
	for _, edit := range edits {
		if !models.SafePath(edit.Path) {
			continue
		}
		replaced := false
		for i := range plan.Manifest {
			if plan.Manifest[i].Path == edit.Path {
				merged := plan.Manifest[i]
				if edit.Action.Valid() {
					merged.Action = edit.Action
				}
				if edit.Purpose != "" {
					merged.Purpose = edit.Purpose
				}
				if len(edit.Exports) > 0 {
					merged.Exports = edit.Exports
				}
				if len(edit.DependsOn) > 0 {
					merged.DependsOn = edit.DependsOn
				}
				if edit.FixInstructions != "" {
					merged.FixInstructions = edit.FixInstructions
				}
				plan.Manifest[i] = merged
				replaced = true
				break
			}
		}
		if replaced {
			continue
		}

		entry := edit
		if !entry.Action.Valid() {
			entry.Action = models.ActionCreate
		}
		entry.Status = models.FilePending
		plan.Manifest = append(plan.Manifest, entry)
		if n := len(plan.Chunks); n > 0 {
			plan.Chunks[n-1].Files = append(plan.Chunks[n-1].Files, entry.Path)
		}
	}
}

// decodeEdits extracts manifest entries from a gate response payload. The
// payload's "edits" value round-trips through JSON so both typed slices and
// generic []any shapes decode.
func decodeEdits(payload map[string]any) []models.ManifestEntry {
	raw, ok := payload["edits"]
	if !ok {
		return nil
	}
	if typed, ok := raw.([]models.ManifestEntry); ok {
		return typed
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var edits []models.ManifestEntry
	if err := json.Unmarshal(data, &edits); err != nil {
		return nil
	}
	return edits
}
