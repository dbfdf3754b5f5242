package models

import (
	"path"
	"strings"
)

// ManifestAction is the planned operation for a manifest entry.
type ManifestAction string

const (
	// ActionCreate writes a new file.
	ActionCreate ManifestAction = "create"
	// ActionModify edits an existing file.
	ActionModify ManifestAction = "modify"
	// ActionDelete removes a file.
	ActionDelete ManifestAction = "delete"
)

// Valid returns true if the action is a known value.
func (a ManifestAction) Valid() bool {
	switch a {
	case ActionCreate, ActionModify, ActionDelete:
		return true
	default:
		return false
	}
}

// FileStatus tracks a manifest entry through the tier pipeline.
type FileStatus string

const (
	// FilePending means the file has not been built yet.
	FilePending FileStatus = "pending"
	// FileGenerated means the coder wrote the file.
	FileGenerated FileStatus = "generated"
	// FileFailed means the file failed audit and could not be fixed.
	FileFailed FileStatus = "failed"
	// FileFixed means a fixer repaired the file after an audit failure.
	FileFixed FileStatus = "fixed"
)

// ManifestEntry describes one planned file in a phase.
type ManifestEntry struct {
	// Path is project-relative with forward slashes, no traversal.
	Path string `json:"path"`
	// Action is what the coder should do with the file.
	Action ManifestAction `json:"action"`
	// Purpose is a one-line description of the file's role.
	Purpose string `json:"purpose"`
	// EstimatedLines is the planner's size estimate.
	EstimatedLines int `json:"estimated_lines,omitempty"`
	// Language is the language tag inferred from the path extension.
	Language string `json:"language,omitempty"`
	// DependsOn lists manifest paths in the same phase this file needs first.
	DependsOn []string `json:"depends_on,omitempty"`
	// Exports lists the public symbols the file is planned to provide.
	Exports []string `json:"exports,omitempty"`
	// FixInstructions carries targeted guidance when the entry is a repair.
	FixInstructions string `json:"fix_instructions,omitempty"`
	// Status tracks pipeline progress.
	Status FileStatus `json:"status,omitempty"`
}

// SafePath reports whether p is a clean, project-relative, forward-slash path
// with no traversal segments.
func SafePath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return false
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return false
	}
	return cleaned == p
}

// WorkOrder is the bounded instruction set attached to a chunk.
type WorkOrder struct {
	// Objective is the chunk's goal.
	Objective string `json:"objective"`
	// Constraints limits the approach (at most 4).
	Constraints []string `json:"constraints,omitempty"`
	// Patterns names conventions to follow (at most 2).
	Patterns []string `json:"patterns,omitempty"`
	// SuccessCriteria states what done looks like (at most 3).
	SuccessCriteria []string `json:"success_criteria,omitempty"`
}

// MaxChunkFiles is the largest number of files one chunk may hold.
const MaxChunkFiles = 6

// Chunk groups manifest files built with shared context.
type Chunk struct {
	// Name identifies the chunk within a phase plan.
	Name string `json:"name"`
	// Files is the ordered list of manifest paths in this chunk.
	Files []string `json:"files"`
	// Order is the chunk's work order.
	Order WorkOrder `json:"work_order"`
}

// PhasePlan is the validated output of one planner session.
type PhasePlan struct {
	// Phase is the phase number this plan covers.
	Phase int `json:"phase"`
	// Manifest lists every file the phase will touch.
	Manifest []ManifestEntry `json:"manifest"`
	// Chunks partitions the manifest.
	Chunks []Chunk `json:"chunks"`
}

// Entry returns the manifest entry for the given path, or nil.
func (p *PhasePlan) Entry(filePath string) *ManifestEntry {
	for i := range p.Manifest {
		if p.Manifest[i].Path == filePath {
			return &p.Manifest[i]
		}
	}
	return nil
}

// FileTier is a dependency-ordered bucket of manifest paths. All files in a
// tier may be built concurrently because their depends_on entries resolve
// only to earlier tiers.
type FileTier struct {
	// Index is the tier's position in build order, starting at 0.
	Index int `json:"index"`
	// Files is the set of manifest paths at this depth.
	Files []string `json:"files"`
}

// Phase is one numbered unit of work parsed from the phases contract.
type Phase struct {
	// Number is the phase's position, starting at 0 or 1 as the contract says.
	Number int `json:"number"`
	// Name is the phase's short title.
	Name string `json:"name"`
	// Objective is what the phase should achieve.
	Objective string `json:"objective"`
	// Deliverables is the ordered list of expected outcomes.
	Deliverables []string `json:"deliverables,omitempty"`
}
