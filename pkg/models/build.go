package models

import "time"

// BuildStatus represents the current state of a build.
type BuildStatus string

const (
	// BuildStatusPending indicates the build has been created but not started.
	BuildStatusPending BuildStatus = "pending"
	// BuildStatusRunning indicates the build is executing phases.
	BuildStatusRunning BuildStatus = "running"
	// BuildStatusPaused indicates the build is suspended awaiting a resume action.
	BuildStatusPaused BuildStatus = "paused"
	// BuildStatusCompleted indicates all phases finished and governance passed.
	BuildStatusCompleted BuildStatus = "completed"
	// BuildStatusCancelled indicates the user cancelled or aborted the build.
	BuildStatusCancelled BuildStatus = "cancelled"
	// BuildStatusFailed indicates the build hit a terminal error.
	BuildStatusFailed BuildStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s BuildStatus) Valid() bool {
	switch s {
	case BuildStatusPending, BuildStatusRunning, BuildStatusPaused,
		BuildStatusCompleted, BuildStatusCancelled, BuildStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are possible from this status.
func (s BuildStatus) Terminal() bool {
	switch s {
	case BuildStatusCompleted, BuildStatusCancelled, BuildStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the status machine permits moving to next.
// The allowed paths are:
//
//	pending → running
//	running → paused | completed | cancelled | failed
//	paused  → running | cancelled
func (s BuildStatus) CanTransition(next BuildStatus) bool {
	switch s {
	case BuildStatusPending:
		return next == BuildStatusRunning
	case BuildStatusRunning:
		return next == BuildStatusPaused || next == BuildStatusCompleted ||
			next == BuildStatusCancelled || next == BuildStatusFailed
	case BuildStatusPaused:
		return next == BuildStatusRunning || next == BuildStatusCancelled
	default:
		return false
	}
}

// BuildMode selects the execution strategy for a build.
type BuildMode string

const (
	// BuildModePlanExecute plans each phase with the PhasePlanner and then
	// executes tiers. This is the default mode.
	BuildModePlanExecute BuildMode = "plan_execute"
)

// Build represents one execution of the engine producing source for a project.
// A build is created at start and mutated only by its conductor; it is never
// deleted, only transitioned to a terminal status.
type Build struct {
	// ID is the unique identifier for this build.
	ID string `json:"id"`
	// ProjectID references the project the build belongs to.
	ProjectID string `json:"project_id"`
	// UserID is the owner observing this build.
	UserID string `json:"user_id"`
	// Status is the current state of the build.
	Status BuildStatus `json:"status"`
	// CurrentPhase is the label of the phase being executed.
	CurrentPhase string `json:"current_phase,omitempty"`
	// LoopCount counts consecutive recovery loops within the current phase.
	// Non-negative and monotonic within a phase; reset on phase advance.
	LoopCount int `json:"loop_count"`
	// Branch is the git branch the build writes to, if any.
	Branch string `json:"branch,omitempty"`
	// WorkDir is the absolute path of the build workspace.
	WorkDir string `json:"work_dir"`
	// Mode is the execution strategy.
	Mode BuildMode `json:"mode"`
	// ContractBatch optionally names the pinned contract snapshot batch.
	ContractBatch string `json:"contract_batch,omitempty"`
	// StartedAt is when the build transitioned to running.
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when the build reached a terminal status, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// LastError holds the most recent terminal error message.
	LastError string `json:"last_error,omitempty"`
}

// ResumeAction is the user's choice when resuming a paused build.
type ResumeAction string

const (
	// ResumeRetry re-runs the phase that triggered the pause.
	ResumeRetry ResumeAction = "retry"
	// ResumeSkip advances past the paused phase.
	ResumeSkip ResumeAction = "skip"
	// ResumeAbort cancels the build.
	ResumeAbort ResumeAction = "abort"
	// ResumeEdit applies user-supplied manifest deltas and then retries.
	ResumeEdit ResumeAction = "edit"
)

// Valid returns true if the action is a known value.
func (a ResumeAction) Valid() bool {
	switch a {
	case ResumeRetry, ResumeSkip, ResumeAbort, ResumeEdit:
		return true
	default:
		return false
	}
}

// GateKind identifies a user-interactive suspension point.
type GateKind string

const (
	// GateIDEReady awaits the user before planning starts.
	GateIDEReady GateKind = "ide_ready"
	// GatePlanReview awaits approval of a phase plan and cost estimate.
	GatePlanReview GateKind = "plan_review"
	// GatePhaseReview awaits continue/fix after a partial phase.
	GatePhaseReview GateKind = "phase_review"
	// GateClarification awaits an answer to a sub-agent question.
	GateClarification GateKind = "clarification"
)
