package broadcast

import "time"

// EventType identifies one kind of build event.
type EventType string

// Progress events.
const (
	EventBuildLog            EventType = "build_log"
	EventBuildActivityStatus EventType = "build_activity_status"
	EventBuildTurn           EventType = "build_turn"
	EventPhaseStart          EventType = "phase_start"
	EventTierStart           EventType = "tier_start"
	EventTierComplete        EventType = "tier_complete"
)

// LLM events.
const (
	EventLLMThinking       EventType = "llm_thinking"
	EventThinkingBlock     EventType = "thinking_block"
	EventBuildInterjection EventType = "build_interjection"
	EventCostTicker        EventType = "cost_ticker"
	EventCostWarning       EventType = "cost_warning"
	EventCostExceeded      EventType = "cost_exceeded"
)

// File lifecycle events.
const (
	EventFileGenerating EventType = "file_generating"
	EventFileGenerated  EventType = "file_generated"
	EventFileFixing     EventType = "file_fixing"
	EventFileFixed      EventType = "file_fixed"
	EventFileAudited    EventType = "file_audited"
)

// Sub-agent events.
const (
	EventSubagentStart   EventType = "subagent_start"
	EventSubagentDone    EventType = "subagent_done"
	EventSonnetReview    EventType = "sonnet_review"
	EventScratchpadWrite EventType = "scratchpad_write"
	EventToolUse         EventType = "tool_use"
)

// Gate events.
const (
	EventBuildPaused            EventType = "build_paused"
	EventBuildResumed           EventType = "build_resumed"
	EventPlanReview             EventType = "plan_review"
	EventPhaseReview            EventType = "phase_review"
	EventIDEReady               EventType = "ide_ready"
	EventClarificationRequested EventType = "clarification_requested"
)

// Governance events.
const (
	EventGovernanceCheck EventType = "governance_check"
	EventGovernancePass  EventType = "governance_pass"
	EventGovernanceFail  EventType = "governance_fail"
)

// Terminal events.
const (
	EventBuildComplete  EventType = "build_complete"
	EventBuildError     EventType = "build_error"
	EventBuildCancelled EventType = "build_cancelled"
	EventRecoveryPlan   EventType = "recovery_plan"
)

// Event is one typed build event delivered to subscribers.
type Event struct {
	Type      EventType      `json:"type"`
	BuildID   string         `json:"build_id"`
	UserID    string         `json:"user_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
