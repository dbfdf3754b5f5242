package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/forgeguard/forgeguard/pkg/models"
)

// ForgeDirName is the per-build metadata directory inside the workspace.
const ForgeDirName = ".forge"

// ContractsDirName is where build contracts are materialised so tools can
// locate them at a fixed path.
const ContractsDirName = "Forge/Contracts"

// forgeMu serialises .forge writers within the process. The directory is
// append-only per build; concurrent pipelines share it.
var forgeMu sync.Mutex

// ForgeDir returns the absolute .forge directory, creating it if needed.
func (w *Workspace) ForgeDir() (string, error) {
	dir := filepath.Join(w.root, ForgeDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", ForgeDirName, err)
	}
	return dir, nil
}

// ManifestCachePath returns the cache file for a phase's validated plan.
func (w *Workspace) ManifestCachePath(phase int) string {
	return filepath.Join(w.root, ForgeDirName, fmt.Sprintf("manifest_phase_%d.json", phase))
}

// SaveManifestCache persists a validated phase plan so resumes skip the
// planning call.
func (w *Workspace) SaveManifestCache(plan models.PhasePlan) error {
	dir, err := w.ForgeDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding phase plan: %w", err)
	}
	forgeMu.Lock()
	defer forgeMu.Unlock()
	return os.WriteFile(filepath.Join(dir, fmt.Sprintf("manifest_phase_%d.json", plan.Phase)), data, 0o644)
}

// LoadManifestCache reads a cached phase plan. A missing cache returns
// (zero, false, nil).
func (w *Workspace) LoadManifestCache(phase int) (models.PhasePlan, bool, error) {
	var plan models.PhasePlan
	data, err := os.ReadFile(w.ManifestCachePath(phase))
	if os.IsNotExist(err) {
		return plan, false, nil
	}
	if err != nil {
		return plan, false, err
	}
	if err := json.Unmarshal(data, &plan); err != nil {
		return plan, false, fmt.Errorf("decoding cached plan for phase %d: %w", phase, err)
	}
	return plan, true, nil
}

// SaveHandoff serialises a handoff under .forge/handoffs.
func (w *Workspace) SaveHandoff(h models.Handoff) error {
	return w.writeForgeJSON(filepath.Join("handoffs", h.ID+".json"), h)
}

// SaveResult serialises a handoff result next to its handoff.
func (w *Workspace) SaveResult(r models.Result) error {
	return w.writeForgeJSON(filepath.Join("handoffs", r.HandoffID+"_result.json"), r)
}

// WriteProgress snapshots free-form per-build progress to .forge/progress.json.
func (w *Workspace) WriteProgress(snapshot any) error {
	return w.writeForgeJSON("progress.json", snapshot)
}

func (w *Workspace) writeForgeJSON(rel string, v any) error {
	dir, err := w.ForgeDir()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rel, err)
	}
	forgeMu.Lock()
	defer forgeMu.Unlock()
	return os.WriteFile(path, data, 0o644)
}

// MaterializeContract writes one contract document under Forge/Contracts so
// sub-agents can read it without going through the store.
func (w *Workspace) MaterializeContract(name, content string) error {
	if !models.SafePath(name) || filepath.Dir(name) != "." {
		return fmt.Errorf("invalid contract file name %q", name)
	}
	dir := filepath.Join(w.root, ContractsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", ContractsDirName, err)
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)
}
