package models

import "testing"

func TestBuildStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    BuildStatus
		to      BuildStatus
		allowed bool
	}{
		{"pending to running", BuildStatusPending, BuildStatusRunning, true},
		{"pending to completed", BuildStatusPending, BuildStatusCompleted, false},
		{"running to paused", BuildStatusRunning, BuildStatusPaused, true},
		{"running to completed", BuildStatusRunning, BuildStatusCompleted, true},
		{"running to cancelled", BuildStatusRunning, BuildStatusCancelled, true},
		{"running to failed", BuildStatusRunning, BuildStatusFailed, true},
		{"running to pending", BuildStatusRunning, BuildStatusPending, false},
		{"paused to running", BuildStatusPaused, BuildStatusRunning, true},
		{"paused to cancelled", BuildStatusPaused, BuildStatusCancelled, true},
		{"paused to failed", BuildStatusPaused, BuildStatusFailed, false},
		{"completed is terminal", BuildStatusCompleted, BuildStatusRunning, false},
		{"failed is terminal", BuildStatusFailed, BuildStatusRunning, false},
		{"cancelled is terminal", BuildStatusCancelled, BuildStatusRunning, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.CanTransition(tc.to); got != tc.allowed {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
			}
		})
	}
}

func TestBuildStatus_Terminal(t *testing.T) {
	terminal := []BuildStatus{BuildStatusCompleted, BuildStatusCancelled, BuildStatusFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	live := []BuildStatus{BuildStatusPending, BuildStatusRunning, BuildStatusPaused}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("expected %s to not be terminal", s)
		}
	}
}

func TestBuildStatus_Valid(t *testing.T) {
	if !BuildStatusRunning.Valid() {
		t.Error("expected running to be valid")
	}
	if BuildStatus("exploded").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestResumeAction_Valid(t *testing.T) {
	for _, a := range []ResumeAction{ResumeRetry, ResumeSkip, ResumeAbort, ResumeEdit} {
		if !a.Valid() {
			t.Errorf("expected %s to be valid", a)
		}
	}
	if ResumeAction("restart").Valid() {
		t.Error("expected unknown action to be invalid")
	}
}

func TestSafePath(t *testing.T) {
	tests := []struct {
		path string
		ok   bool
	}{
		{"src/main.py", true},
		{"a/b/c.go", true},
		{"main.py", true},
		{"", false},
		{"/etc/passwd", false},
		{"../escape.py", false},
		{"a/../../escape.py", false},
		{"a/./b.py", false},
		{"a\\b.py", false},
		{"..", false},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			if got := SafePath(tc.path); got != tc.ok {
				t.Errorf("SafePath(%q) = %v, want %v", tc.path, got, tc.ok)
			}
		})
	}
}

func TestStreamUsage_Add(t *testing.T) {
	var u StreamUsage
	u.Add(StreamUsage{InputTokens: 100, OutputTokens: 50, Model: "claude-sonnet-4-20250514"})
	u.Add(StreamUsage{InputTokens: 10, CacheReadTokens: 400, CacheCreationTokens: 30, OutputTokens: 5})

	if u.InputTokens != 110 {
		t.Errorf("expected 110 input tokens, got %d", u.InputTokens)
	}
	if u.OutputTokens != 55 {
		t.Errorf("expected 55 output tokens, got %d", u.OutputTokens)
	}
	if u.TotalInput() != 110+400+30 {
		t.Errorf("expected total input %d, got %d", 110+400+30, u.TotalInput())
	}
	if u.Model != "claude-sonnet-4-20250514" {
		t.Errorf("expected model preserved, got %q", u.Model)
	}
}

func TestCost_String(t *testing.T) {
	tests := []struct {
		cost Cost
		want string
	}{
		{0, "$0.0000"},
		{Dollar, "$1.0000"},
		{2*Dollar + 50*Cent, "$2.5000"},
		{123, "$0.0001"},
		{-Dollar, "-$1.0000"},
	}

	for _, tc := range tests {
		if got := tc.cost.String(); got != tc.want {
			t.Errorf("Cost(%d).String() = %q, want %q", tc.cost, got, tc.want)
		}
	}
}

func TestFamilyOf(t *testing.T) {
	tests := []struct {
		model string
		want  ModelFamily
	}{
		{"claude-opus-4-5-20251101", FamilyOpus},
		{"claude-sonnet-4-20250514", FamilySonnet},
		{"claude-3-5-haiku-20241022", FamilyHaiku},
		{"gpt-x", FamilyOther},
	}

	for _, tc := range tests {
		if got := FamilyOf(tc.model); got != tc.want {
			t.Errorf("FamilyOf(%q) = %s, want %s", tc.model, got, tc.want)
		}
	}
}

func TestCostOf(t *testing.T) {
	// 1M fresh input + 1M output on sonnet: $3 + $15.
	u := StreamUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000, Model: "claude-sonnet-4-20250514"}
	if got := CostOf(u); got != 18*Dollar {
		t.Errorf("expected $18, got %s", got)
	}

	// Cache reads bill at the discounted rate.
	u = StreamUsage{CacheReadTokens: 1_000_000, Model: "claude-sonnet-4-20250514"}
	if got := CostOf(u); got != 300_000 {
		t.Errorf("expected $0.30 for 1M cache reads, got %s", got)
	}

	// Cache creation bills at the full input rate.
	u = StreamUsage{CacheCreationTokens: 1_000_000, Model: "claude-sonnet-4-20250514"}
	if got := CostOf(u); got != 3*Dollar {
		t.Errorf("expected $3 for 1M cache creation, got %s", got)
	}
}
