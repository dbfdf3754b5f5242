package subagent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/forgeguard/forgeguard/internal/contracts"
	"github.com/forgeguard/forgeguard/internal/exec"
	"github.com/forgeguard/forgeguard/internal/llm"
	"github.com/forgeguard/forgeguard/internal/tools"
	"github.com/forgeguard/forgeguard/internal/workspace"
	"github.com/forgeguard/forgeguard/pkg/models"
)

// scriptedStream plays back one canned turn per Stream call. The last turn
// repeats if called again.
type scriptedStream struct {
	turns    []func(emit func(llm.StreamEvent) error) error
	calls    int
	requests []llm.Request
}

func (s *scriptedStream) Stream(ctx context.Context, req llm.Request, usage *models.StreamUsage, emit func(llm.StreamEvent) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.requests = append(s.requests, req)
	if usage != nil {
		usage.Add(models.StreamUsage{InputTokens: 100, OutputTokens: 40, Model: "claude-sonnet-4-20250514"})
	}
	i := s.calls
	s.calls++
	if i >= len(s.turns) {
		i = len(s.turns) - 1
	}
	return s.turns[i](emit)
}

func textTurn(text string) func(emit func(llm.StreamEvent) error) error {
	return func(emit func(llm.StreamEvent) error) error {
		return emit(llm.StreamEvent{Text: text})
	}
}

func toolTurn(name, input string) func(emit func(llm.StreamEvent) error) error {
	return func(emit func(llm.StreamEvent) error) error {
		return emit(llm.StreamEvent{ToolCall: &llm.ToolCall{
			ID:    "toolu_01",
			Name:  name,
			Input: json.RawMessage(input),
		}})
	}
}

func newTestRunner(t *testing.T, stream Streamer) (*Runner, *workspace.Workspace) {
	t.Helper()
	w, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := contracts.NewMemStore()
	ctx := context.Background()
	if err := store.Put(ctx, contracts.Contract{ProjectID: "p", Type: contracts.TypeBlueprint, Content: "the blueprint"}); err != nil {
		t.Fatal(err)
	}
	snap, err := contracts.Pin(ctx, store, "p")
	if err != nil {
		t.Fatal(err)
	}
	registry := tools.NewRegistry(tools.Deps{
		Workspace: w,
		Runner:    exec.NewRunner(),
		Store:     store,
		Snapshot:  snap,
		ProjectID: "p",
	})
	return &Runner{streamer: stream, registry: registry, snapshot: snap}, w
}

func TestRun_ZeroToolCallsCompletes(t *testing.T) {
	stream := &scriptedStream{turns: []func(func(llm.StreamEvent) error) error{
		textTurn("Work is done.\n{\"summary\": \"all good\"}"),
	}}
	r, _ := newTestRunner(t, stream)

	res := r.Run(context.Background(), models.Handoff{
		ID: "h1", Role: models.RoleScout, Assignment: "look around",
	}, Hooks{})

	if res.Status != models.ResultCompleted {
		t.Fatalf("status = %s, want completed (err %q)", res.Status, res.Error)
	}
	if res.Structured["summary"] != "all good" {
		t.Errorf("structured = %v", res.Structured)
	}
	if res.Usage.InputTokens != 100 || res.Usage.OutputTokens != 40 {
		t.Errorf("usage not accumulated: %+v", res.Usage)
	}
	if res.Cost <= 0 {
		t.Errorf("expected positive cost, got %d", res.Cost)
	}
	if stream.calls != 1 {
		t.Errorf("expected 1 stream call, got %d", stream.calls)
	}
}

func TestRun_ToolCallRoundTrip(t *testing.T) {
	stream := &scriptedStream{turns: []func(func(llm.StreamEvent) error) error{
		toolTurn(tools.ToolWriteFile, `{"path":"main.py","content":"print(1)\n"}`),
		textTurn("Done.\n{\"summary\": \"wrote main.py\", \"files\": [\"main.py\"]}"),
	}}
	r, w := newTestRunner(t, stream)

	res := r.Run(context.Background(), models.Handoff{
		ID: "h2", Role: models.RoleCoder, Assignment: "write main.py",
		TargetFiles: []string{"main.py"},
	}, Hooks{})

	if res.Status != models.ResultCompleted {
		t.Fatalf("status = %s (err %q)", res.Status, res.Error)
	}
	read, err := w.ReadFile("main.py")
	if err != nil {
		t.Fatalf("file not written: %v", err)
	}
	if read.Content != "print(1)\n" {
		t.Errorf("unexpected content %q", read.Content)
	}
	if len(res.FilesWritten) != 1 || res.FilesWritten[0] != "main.py" {
		t.Errorf("files written = %v", res.FilesWritten)
	}

	// Second request carries the assistant echo and the tool result.
	if len(stream.requests) != 2 {
		t.Fatalf("expected 2 stream calls, got %d", len(stream.requests))
	}
	if got := len(stream.requests[1].Messages); got != 3 {
		t.Errorf("second turn should see 3 messages, got %d", got)
	}
}

func TestRun_DisallowedToolReturnsProtocolError(t *testing.T) {
	stream := &scriptedStream{turns: []func(func(llm.StreamEvent) error) error{
		toolTurn(tools.ToolWriteFile, `{"path":"x.py","content":"y"}`),
		textTurn("Understood, read-only it is. {\"summary\": \"done\"}"),
	}}
	r, w := newTestRunner(t, stream)

	var sawError bool
	var errContent string
	res := r.Run(context.Background(), models.Handoff{
		ID: "h3", Role: models.RoleScout, Assignment: "explore",
	}, Hooks{
		OnToolResult: func(name string, result tools.Result) {
			if result.IsError {
				sawError = true
				errContent = result.Content
			}
		},
	})

	if res.Status != models.ResultCompleted {
		t.Fatalf("status = %s", res.Status)
	}
	if !sawError {
		t.Fatal("expected a protocol error tool result")
	}
	if !strings.Contains(errContent, "protocol error") {
		t.Errorf("unexpected error content %q", errContent)
	}
	if _, err := w.ReadFile("x.py"); err == nil {
		t.Error("scout must not have written the file")
	}
	if len(res.FilesWritten) != 0 {
		t.Errorf("files written = %v", res.FilesWritten)
	}
}

func TestRun_TurnBudgetExhausted(t *testing.T) {
	stream := &scriptedStream{turns: []func(func(llm.StreamEvent) error) error{
		toolTurn(tools.ToolListDirectory, `{}`),
	}}
	r, _ := newTestRunner(t, stream)

	res := r.Run(context.Background(), models.Handoff{
		ID: "h4", Role: models.RoleScout, Assignment: "loop forever",
	}, Hooks{})

	if res.Status != models.ResultFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.Error, "rounds") {
		t.Errorf("unexpected error %q", res.Error)
	}
	if stream.calls != MaxTurns {
		t.Errorf("expected %d stream calls, got %d", MaxTurns, stream.calls)
	}
}

func TestRun_TimeoutFails(t *testing.T) {
	stream := &scriptedStream{turns: []func(func(llm.StreamEvent) error) error{
		func(emit func(llm.StreamEvent) error) error {
			time.Sleep(100 * time.Millisecond)
			return context.DeadlineExceeded
		},
	}}
	r, _ := newTestRunner(t, stream)

	res := r.Run(context.Background(), models.Handoff{
		ID: "h5", Role: models.RoleScout, Assignment: "slow",
		Timeout: 20 * time.Millisecond,
	}, Hooks{})

	if res.Status != models.ResultFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Errorf("unexpected error %q", res.Error)
	}
}

func TestRun_ExtraHandlerIntercepts(t *testing.T) {
	stream := &scriptedStream{turns: []func(func(llm.StreamEvent) error) error{
		toolTurn("write_phase_plan", `{"chunks":[]}`),
		textTurn("{\"summary\": \"planned\"}"),
	}}
	r, _ := newTestRunner(t, stream)

	var intercepted bool
	r.ExtraHandler = func(ctx context.Context, name string, input json.RawMessage) (tools.Result, bool) {
		if name != "write_phase_plan" {
			return tools.Result{}, false
		}
		intercepted = true
		return tools.Result{Content: "plan accepted"}, true
	}

	res := r.Run(context.Background(), models.Handoff{
		ID: "h6", Role: models.RoleScout, Assignment: "plan",
	}, Hooks{})

	if res.Status != models.ResultCompleted {
		t.Fatalf("status = %s (err %q)", res.Status, res.Error)
	}
	if !intercepted {
		t.Error("extra handler was not invoked")
	}
}

func TestRun_InterjectionAppended(t *testing.T) {
	stream := &scriptedStream{turns: []func(func(llm.StreamEvent) error) error{
		toolTurn(tools.ToolListDirectory, `{}`),
		textTurn("{\"summary\": \"done\"}"),
	}}
	r, _ := newTestRunner(t, stream)

	drained := false
	res := r.Run(context.Background(), models.Handoff{
		ID: "h7", Role: models.RoleScout, Assignment: "explore",
	}, Hooks{
		Interject: func() []string {
			if drained {
				return nil
			}
			drained = true
			return []string{"also check the README"}
		},
	})

	if res.Status != models.ResultCompleted {
		t.Fatalf("status = %s", res.Status)
	}
	// First turn: interjection message plus the assignment.
	if got := len(stream.requests[0].Messages); got != 2 {
		t.Errorf("first turn should see 2 messages, got %d", got)
	}
}

func TestRun_FixerSystemIncludesPinnedContracts(t *testing.T) {
	stream := &scriptedStream{turns: []func(func(llm.StreamEvent) error) error{
		textTurn("{\"summary\": \"ok\"}"),
	}}
	r, _ := newTestRunner(t, stream)

	r.Run(context.Background(), models.Handoff{
		ID: "h8", Role: models.RoleFixer, Assignment: "repair",
	}, Hooks{})

	system := stream.requests[0].System
	if len(system) != 2 {
		t.Fatalf("expected 2 system blocks, got %d", len(system))
	}
	if !strings.Contains(system[0].Text, "fixer agent") {
		t.Errorf("first block should be the role prompt, got %q", system[0].Text[:40])
	}
	if !strings.Contains(system[1].Text, "the blueprint") {
		t.Error("second block should carry the pinned contracts")
	}
}

func TestRun_NonFixerSystemOmitsPinnedContracts(t *testing.T) {
	for _, role := range []models.Role{models.RoleScout, models.RoleCoder, models.RoleAuditor} {
		stream := &scriptedStream{turns: []func(func(llm.StreamEvent) error) error{
			textTurn("{\"summary\": \"ok\"}"),
		}}
		r, _ := newTestRunner(t, stream)

		r.Run(context.Background(), models.Handoff{
			ID: "h9", Role: role, Assignment: "work",
		}, Hooks{})

		system := stream.requests[0].System
		if len(system) != 1 {
			t.Errorf("role %s: expected the role prompt only, got %d system blocks", role, len(system))
			continue
		}
		if strings.Contains(system[0].Text, "the blueprint") {
			t.Errorf("role %s must not see the pinned snapshot in its system prompt", role)
		}
	}
}

func TestBuildUserMessage(t *testing.T) {
	msg := buildUserMessage(models.Handoff{
		Assignment:   "implement the parser",
		TargetFiles:  []string{"parser.py", "lexer.py"},
		ContextFiles: map[string]string{"tokens.py": "TOKENS = []"},
		ErrorContext: "audit: parser mishandles EOF",
	})

	for _, want := range []string{
		"# Context files", "tokens.py", "TOKENS = []",
		"# Error context", "mishandles EOF",
		"# Assignment", "implement the parser",
		"# Target files", "- parser.py", "- lexer.py",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("user message missing %q", want)
		}
	}
	if strings.Index(msg, "# Context files") > strings.Index(msg, "# Assignment") {
		t.Error("context files should precede the assignment")
	}
}
