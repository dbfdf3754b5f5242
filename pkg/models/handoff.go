package models

import "time"

// Role identifies which sub-agent kind a handoff targets. Each role carries
// its own tool allow-list, enforced before dispatch.
type Role string

const (
	// RoleScout explores the workspace read-only.
	RoleScout Role = "scout"
	// RoleCoder writes and edits files.
	RoleCoder Role = "coder"
	// RoleAuditor reviews written files read-only.
	RoleAuditor Role = "auditor"
	// RoleFixer repairs audited files with structured edits only.
	RoleFixer Role = "fixer"
	// RolePlanner explores with a minimal surface and terminates by
	// submitting a phase plan.
	RolePlanner Role = "planner"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleScout, RoleCoder, RoleAuditor, RoleFixer, RolePlanner:
		return true
	default:
		return false
	}
}

// Handoff is one invocation of a sub-agent: role, context, and assignment.
type Handoff struct {
	// ID is the unique identifier for this handoff.
	ID string `json:"id"`
	// ParentID links to the handoff that spawned this one, if any.
	ParentID string `json:"parent_id,omitempty"`
	// Role selects the sub-agent kind and its tool allow-list.
	Role Role `json:"role"`
	// BuildID is the build this handoff belongs to.
	BuildID string `json:"build_id"`
	// UserID is the observing user.
	UserID string `json:"user_id"`
	// Assignment is the instruction text for the sub-agent.
	Assignment string `json:"assignment"`
	// TargetFiles lists the files the sub-agent should produce or repair.
	TargetFiles []string `json:"target_files,omitempty"`
	// ContextFiles maps path to slim content included in the first message.
	ContextFiles map[string]string `json:"context_files,omitempty"`
	// ErrorContext carries audit findings or prior failure text.
	ErrorContext string `json:"error_context,omitempty"`
	// Model overrides the role's default model when set.
	Model string `json:"model,omitempty"`
	// MaxTokens bounds the response size per turn.
	MaxTokens int `json:"max_tokens,omitempty"`
	// Timeout bounds the whole handoff. Zero means the runner default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// ResultStatus is the terminal state of a handoff.
type ResultStatus string

const (
	// ResultCompleted means the sub-agent finished its turn loop normally.
	ResultCompleted ResultStatus = "completed"
	// ResultFailed means the handoff errored or timed out.
	ResultFailed ResultStatus = "failed"
)

// Result is the output and metrics of one handoff.
type Result struct {
	// HandoffID references the handoff that produced this result.
	HandoffID string `json:"handoff_id"`
	// Status is the terminal state.
	Status ResultStatus `json:"status"`
	// Output is the sub-agent's final text.
	Output string `json:"output,omitempty"`
	// Structured holds the JSON object parsed from the tail of Output, if any.
	Structured map[string]any `json:"structured,omitempty"`
	// FilesWritten lists workspace-relative paths the sub-agent wrote.
	FilesWritten []string `json:"files_written,omitempty"`
	// FilesRead lists workspace-relative paths the sub-agent read.
	FilesRead []string `json:"files_read,omitempty"`
	// Usage is the aggregated token usage across all turns.
	Usage StreamUsage `json:"usage"`
	// Cost is the handoff's cost in microdollars.
	Cost Cost `json:"cost"`
	// Started is when the turn loop began.
	Started time.Time `json:"started"`
	// Finished is when the turn loop ended.
	Finished time.Time `json:"finished"`
	// Error holds the failure message when Status is failed.
	Error string `json:"error,omitempty"`
}

// Duration returns the wall time of the handoff.
func (r *Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// StreamUsage accumulates token usage for one or more streamed calls.
// Rate-limit accounting counts all four buckets; economic accounting may
// discount cache reads.
type StreamUsage struct {
	// InputTokens is fresh (non-cached) input.
	InputTokens int64 `json:"input_tokens"`
	// OutputTokens is generated output.
	OutputTokens int64 `json:"output_tokens"`
	// CacheReadTokens is input served from the prompt cache.
	CacheReadTokens int64 `json:"cache_read_tokens"`
	// CacheCreationTokens is input written into the prompt cache.
	CacheCreationTokens int64 `json:"cache_creation_tokens"`
	// Model is the model that reported this usage.
	Model string `json:"model,omitempty"`
}

// Add accumulates other into u.
func (u *StreamUsage) Add(other StreamUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheCreationTokens += other.CacheCreationTokens
	if other.Model != "" {
		u.Model = other.Model
	}
}

// TotalInput returns fresh plus cache input tokens, the quantity rate
// limiters meter against.
func (u StreamUsage) TotalInput() int64 {
	return u.InputTokens + u.CacheReadTokens + u.CacheCreationTokens
}
