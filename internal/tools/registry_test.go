package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/forgeguard/forgeguard/internal/contracts"
	"github.com/forgeguard/forgeguard/internal/exec"
	"github.com/forgeguard/forgeguard/internal/workspace"
	"github.com/forgeguard/forgeguard/pkg/models"
)

func newTestRegistry(t *testing.T) (*Registry, *workspace.Workspace) {
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

	r := NewRegistry(Deps{
		Workspace: w,
		Runner:    exec.NewRunner(),
		Store:     store,
		Snapshot:  snap,
		ProjectID: "p",
		Phases: []models.Phase{
			{Number: 1, Name: "Scaffold"},
			{Number: 2, Name: "API"},
			{Number: 3, Name: "Tests"},
		},
	})
	return r, w
}

func TestAllowLists(t *testing.T) {
	tests := []struct {
		role    models.Role
		tool    string
		allowed bool
	}{
		{models.RoleScout, ToolReadFile, true},
		{models.RoleScout, ToolWriteFile, false},
		{models.RoleScout, ToolAskClarification, true},
		{models.RoleScout, ToolGetBuildContracts, false},
		{models.RoleCoder, ToolWriteFile, true},
		{models.RoleCoder, ToolRunCommand, true},
		{models.RoleCoder, ToolGetProjectContract, true},
		{models.RoleCoder, ToolGetBuildContracts, false},
		{models.RoleAuditor, ToolReadFile, true},
		{models.RoleAuditor, ToolAskClarification, false},
		{models.RoleAuditor, ToolEditFile, false},
		{models.RoleAuditor, ToolGetBuildContracts, false},
		{models.RoleFixer, ToolEditFile, true},
		{models.RoleFixer, ToolWriteFile, false},
		{models.RoleFixer, ToolGetBuildContracts, true},
		{models.RoleFixer, ToolGetProjectContract, false},
		{models.RoleFixer, ToolAskClarification, false},
		{models.RolePlanner, ToolReadFile, true},
		{models.RolePlanner, ToolListDirectory, true},
		{models.RolePlanner, ToolSearchCode, false},
		{models.RolePlanner, ToolWriteFile, false},
		{models.RolePlanner, ToolAskClarification, false},
	}

	for _, tc := range tests {
		if got := Allowed(tc.role, tc.tool); got != tc.allowed {
			t.Errorf("Allowed(%s, %s) = %v, want %v", tc.role, tc.tool, got, tc.allowed)
		}
	}
}

func TestExecute_DisallowedToolIsProtocolError(t *testing.T) {
	r, _ := newTestRegistry(t)

	res := r.Execute(context.Background(), models.RoleFixer, ToolWriteFile,
		json.RawMessage(`{"path":"x.py","content":"y"}`), nil)
	if !res.IsError {
		t.Fatal("expected protocol error for disallowed tool")
	}
	if !strings.Contains(res.Content, "protocol error") {
		t.Errorf("expected protocol error wording, got %q", res.Content)
	}
}

func TestExecute_BuildContractsAreFixerOnly(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, role := range []models.Role{models.RoleScout, models.RoleCoder, models.RoleAuditor} {
		res := r.Execute(ctx, role, ToolGetBuildContracts, json.RawMessage(`{}`), nil)
		if !res.IsError {
			t.Errorf("role %s reached the pinned snapshot: %q", role, res.Content)
			continue
		}
		if !strings.Contains(res.Content, ToolGetBuildContracts) {
			t.Errorf("role %s: protocol error should name the tool, got %q", role, res.Content)
		}
	}
}

func TestExecute_WriteReadRoundTrip(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	trace := &Trace{}

	res := r.Execute(ctx, models.RoleCoder, ToolWriteFile,
		json.RawMessage(`{"path":"src/main.py","content":"print('hi')\n"}`), trace)
	if res.IsError {
		t.Fatalf("write failed: %s", res.Content)
	}

	res = r.Execute(ctx, models.RoleCoder, ToolReadFile,
		json.RawMessage(`{"path":"src/main.py"}`), trace)
	if res.IsError {
		t.Fatalf("read failed: %s", res.Content)
	}
	var read workspace.ReadResult
	if err := json.Unmarshal([]byte(res.Content), &read); err != nil {
		t.Fatalf("read result is not JSON: %v", err)
	}
	if read.Content != "print('hi')\n" || read.Truncated {
		t.Errorf("unexpected read result: %+v", read)
	}

	if len(trace.FilesWritten) != 1 || trace.FilesWritten[0] != "src/main.py" {
		t.Errorf("unexpected files written: %v", trace.FilesWritten)
	}
	if len(trace.FilesRead) != 1 || trace.FilesRead[0] != "src/main.py" {
		t.Errorf("unexpected files read: %v", trace.FilesRead)
	}
}

func TestExecute_TraversalRejected(t *testing.T) {
	r, _ := newTestRegistry(t)

	res := r.Execute(context.Background(), models.RoleCoder, ToolReadFile,
		json.RawMessage(`{"path":"../../etc/passwd"}`), nil)
	if !res.IsError {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestExecute_EditFile(t *testing.T) {
	r, w := newTestRegistry(t)
	ctx := context.Background()
	if err := w.WriteFile("f.py", "x = 1\n"); err != nil {
		t.Fatal(err)
	}

	input := `{"path":"f.py","edits":[{"old_text":"x = 1","new_text":"x = 2"}]}`
	res := r.Execute(ctx, models.RoleFixer, ToolEditFile, json.RawMessage(input), nil)
	if res.IsError {
		t.Fatalf("edit failed: %s", res.Content)
	}

	read, err := w.ReadFile("f.py")
	if err != nil {
		t.Fatal(err)
	}
	if read.Content != "x = 2\n" {
		t.Errorf("unexpected content after edit: %q", read.Content)
	}
}

func TestExecute_BuildContractsFromSnapshot(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	// Mutate the store after pin; the fixer must still see the pinned text.
	if err := r.deps.Store.Put(ctx, contracts.Contract{ProjectID: "p", Type: contracts.TypeBlueprint, Content: "mutated"}); err != nil {
		t.Fatal(err)
	}

	res := r.Execute(ctx, models.RoleFixer, ToolGetBuildContracts, json.RawMessage(`{}`), nil)
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content)
	}
	if !strings.Contains(res.Content, "the blueprint") {
		t.Errorf("expected pinned content, got %q", res.Content)
	}
	if strings.Contains(res.Content, "mutated") {
		t.Error("fixer must not see post-pin mutations")
	}
}

func TestExecute_PhaseWindow(t *testing.T) {
	r, _ := newTestRegistry(t)

	res := r.Execute(context.Background(), models.RoleScout, ToolGetPhaseWindow,
		json.RawMessage(`{"phase":2}`), nil)
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content)
	}
	var window []models.Phase
	if err := json.Unmarshal([]byte(res.Content), &window); err != nil {
		t.Fatal(err)
	}
	if len(window) != 3 {
		t.Errorf("expected 3 phases in window, got %d", len(window))
	}
}

func TestExecute_Scratchpad(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	// No handler wired: tool reports unavailable.
	res := r.Execute(ctx, models.RoleScout, ToolScratchpad,
		json.RawMessage(`{"op":"write","key":"k","value":"v"}`), nil)
	if !res.IsError {
		t.Error("expected error without a scratchpad handler")
	}

	store := map[string]string{}
	r.deps.Scratchpad = func(ctx context.Context, op, key, value string) (string, error) {
		switch op {
		case "write":
			store[key] = value
			return "ok", nil
		case "append":
			store[key] += value
			return "ok", nil
		default:
			return store[key], nil
		}
	}

	r.Execute(ctx, models.RoleScout, ToolScratchpad, json.RawMessage(`{"op":"write","key":"k","value":"v1"}`), nil)
	r.Execute(ctx, models.RoleScout, ToolScratchpad, json.RawMessage(`{"op":"append","key":"k","value":"+v2"}`), nil)
	res = r.Execute(ctx, models.RoleScout, ToolScratchpad, json.RawMessage(`{"op":"read","key":"k"}`), nil)
	if res.Content != "v1+v2" {
		t.Errorf("unexpected scratchpad read: %q", res.Content)
	}

	res = r.Execute(ctx, models.RoleScout, ToolScratchpad, json.RawMessage(`{"op":"delete","key":"k"}`), nil)
	if !res.IsError {
		t.Error("expected unknown op to error")
	}
}

func TestDefinitions_MatchAllowLists(t *testing.T) {
	for _, role := range []models.Role{models.RoleScout, models.RoleCoder, models.RoleAuditor, models.RoleFixer, models.RolePlanner} {
		defs := Definitions(role)
		if len(defs) != len(AllowedTools(role)) {
			t.Errorf("role %s: %d definitions for %d allowed tools", role, len(defs), len(AllowedTools(role)))
		}
		for _, def := range defs {
			if !Allowed(role, def.OfTool.Name) {
				t.Errorf("role %s: definition for disallowed tool %s", role, def.OfTool.Name)
			}
		}
	}
}
