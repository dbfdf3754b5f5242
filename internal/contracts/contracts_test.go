package contracts

import (
	"context"
	"errors"
	"testing"
)

func TestMemStore_PutAndGet(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "proj-1", TypePhases); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Put(ctx, Contract{ProjectID: "proj-1", Type: TypePhases, Content: "v1"}); err != nil {
		t.Fatal(err)
	}
	c, err := s.Get(ctx, "proj-1", TypePhases)
	if err != nil {
		t.Fatal(err)
	}
	if c.Version != 1 || c.Content != "v1" {
		t.Errorf("expected version 1 content v1, got version %d content %q", c.Version, c.Content)
	}

	// Put bumps the version.
	if err := s.Put(ctx, Contract{ProjectID: "proj-1", Type: TypePhases, Content: "v2"}); err != nil {
		t.Fatal(err)
	}
	c, _ = s.Get(ctx, "proj-1", TypePhases)
	if c.Version != 2 {
		t.Errorf("expected version 2, got %d", c.Version)
	}
}

func TestMemStore_RejectsUnknownType(t *testing.T) {
	s := NewMemStore()
	if err := s.Put(context.Background(), Contract{ProjectID: "p", Type: "grimoire"}); err == nil {
		t.Error("expected unknown type to be rejected")
	}
}

func TestSnapshot_ImmutableAfterPin(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	if err := s.Put(ctx, Contract{ProjectID: "proj-1", Type: TypeBlueprint, Content: "original"}); err != nil {
		t.Fatal(err)
	}

	snap, err := Pin(ctx, s, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Batch() == "" {
		t.Error("expected snapshot batch id")
	}

	// Mutating the store after pinning must not affect the snapshot.
	if err := s.Put(ctx, Contract{ProjectID: "proj-1", Type: TypeBlueprint, Content: "changed"}); err != nil {
		t.Fatal(err)
	}
	c, ok := snap.Get(TypeBlueprint)
	if !ok || c.Content != "original" {
		t.Errorf("expected pinned content preserved, got %q", c.Content)
	}
}

func TestSnapshot_AllCanonicalOrder(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	for _, typ := range []Type{TypeUI, TypeBlueprint, TypePhases} {
		if err := s.Put(ctx, Contract{ProjectID: "p", Type: typ, Content: string(typ)}); err != nil {
			t.Fatal(err)
		}
	}
	snap, err := Pin(ctx, s, "p")
	if err != nil {
		t.Fatal(err)
	}
	all := snap.All()
	want := []Type{TypeBlueprint, TypePhases, TypeUI}
	if len(all) != len(want) {
		t.Fatalf("expected %d contracts, got %d", len(want), len(all))
	}
	for i, typ := range want {
		if all[i].Type != typ {
			t.Errorf("position %d: expected %s, got %s", i, typ, all[i].Type)
		}
	}
}

const phasesDoc = `# Build Phases

## Phase 1: Scaffold
Objective: Set up the project skeleton.
Deliverables:
- pyproject.toml
- src/__init__.py

## Phase 2: API
Objective: Implement the HTTP surface.
Deliverables:
- src/api.py

## Phase 3: Tests
Objective: Cover the API.
`

func TestParsePhases(t *testing.T) {
	phases, err := ParsePhases(phasesDoc)
	if err != nil {
		t.Fatal(err)
	}
	if len(phases) != 3 {
		t.Fatalf("expected 3 phases, got %d", len(phases))
	}
	if phases[0].Number != 1 || phases[0].Name != "Scaffold" {
		t.Errorf("unexpected first phase: %+v", phases[0])
	}
	if phases[0].Objective != "Set up the project skeleton." {
		t.Errorf("unexpected objective: %q", phases[0].Objective)
	}
	if len(phases[0].Deliverables) != 2 || phases[0].Deliverables[0] != "pyproject.toml" {
		t.Errorf("unexpected deliverables: %v", phases[0].Deliverables)
	}
	if len(phases[2].Deliverables) != 0 {
		t.Errorf("expected no deliverables for phase 3, got %v", phases[2].Deliverables)
	}

	terminal, ok := TerminalPhase(phases)
	if !ok || terminal.Number != 3 {
		t.Errorf("expected terminal phase 3, got %+v", terminal)
	}
}

func TestParsePhases_Errors(t *testing.T) {
	if _, err := ParsePhases("no phases here"); err == nil {
		t.Error("expected error for contract without headings")
	}
	dup := "## Phase 1: A\n## Phase 1: B\n"
	if _, err := ParsePhases(dup); err == nil {
		t.Error("expected error for duplicate phase numbers")
	}
}

func TestPhaseWindow(t *testing.T) {
	phases, err := ParsePhases(phasesDoc)
	if err != nil {
		t.Fatal(err)
	}

	window := PhaseWindow(phases, 2)
	if len(window) != 3 {
		t.Fatalf("expected 3 phases in window, got %d", len(window))
	}
	window = PhaseWindow(phases, 1)
	if len(window) != 2 {
		t.Errorf("expected 2 phases in edge window, got %d", len(window))
	}
	if len(PhaseWindow(phases, 10)) != 0 {
		t.Error("expected empty window outside range")
	}
}

func TestParseBoundaries(t *testing.T) {
	doc := `
layers:
  - name: api
    glob: "src/api/**"
    forbidden:
      - pattern: "import\\s+sqlalchemy"
        reason: api layer must not touch the ORM
`
	b, err := ParseBoundaries(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Layers) != 1 || b.Layers[0].Glob != "src/api/**" {
		t.Fatalf("unexpected layers: %+v", b.Layers)
	}
	f := &b.Layers[0].Forbidden[0]
	if !f.Match("import sqlalchemy\n") {
		t.Error("expected forbidden pattern to match")
	}
	if f.Match("import os\n") {
		t.Error("expected clean content to not match")
	}
}

func TestParseBoundaries_BadRegex(t *testing.T) {
	doc := `
layers:
  - glob: "src/**"
    forbidden:
      - pattern: "(["
`
	if _, err := ParseBoundaries(doc); err == nil {
		t.Error("expected invalid regex to fail the parse")
	}
}

func TestParsePhysics(t *testing.T) {
	list := `
paths:
  - /api/users
  - /api/health
`
	p, err := ParsePhysics(list)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Paths) != 2 || p.Paths[0] != "/api/health" {
		t.Errorf("unexpected paths: %v", p.Paths)
	}

	mapping := `
paths:
  /api/users:
    get: {}
  /api/orders:
    post: {}
`
	p, err = ParsePhysics(mapping)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Paths) != 2 || p.Paths[0] != "/api/orders" {
		t.Errorf("unexpected mapping paths: %v", p.Paths)
	}

	p, err = ParsePhysics("name: nothing-here")
	if err != nil || len(p.Paths) != 0 {
		t.Errorf("expected empty surface, got %v err %v", p.Paths, err)
	}
}
