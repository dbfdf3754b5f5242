package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forgeguard/forgeguard/pkg/models"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	w, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func TestResolve_RejectsEscapes(t *testing.T) {
	w := newTestWorkspace(t)

	bad := []string{
		"",
		"/etc/passwd",
		"../outside.txt",
		"a/../../outside.txt",
		"a\\b.txt",
	}
	for _, p := range bad {
		if _, err := w.Resolve(p); err == nil {
			t.Errorf("expected Resolve(%q) to fail", p)
		}
	}

	if _, err := w.Resolve("src/main.py"); err != nil {
		t.Errorf("expected safe relative path to resolve: %v", err)
	}
}

func TestResolve_RejectsSymlinkEscape(t *testing.T) {
	w := newTestWorkspace(t)
	outside := t.TempDir()

	link := filepath.Join(w.Root(), "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := w.Resolve("escape/secret.txt"); err == nil {
		t.Error("expected symlink escape to be rejected")
	}
}

func TestReadFile_Truncation(t *testing.T) {
	w := newTestWorkspace(t)
	big := strings.Repeat("x", ReadLimit+500)
	if err := w.WriteFile("big.txt", big); err != nil {
		t.Fatal(err)
	}

	res, err := w.ReadFile("big.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Truncated {
		t.Error("expected truncation flag")
	}
	if len(res.Content) != ReadLimit {
		t.Errorf("expected %d chars, got %d", ReadLimit, len(res.Content))
	}
	if res.Size != int64(len(big)) {
		t.Errorf("expected size %d, got %d", len(big), res.Size)
	}
}

func TestReadAll_NoTruncation(t *testing.T) {
	w := newTestWorkspace(t)
	big := strings.Repeat("x", ReadLimit+500)
	if err := w.WriteFile("big.txt", big); err != nil {
		t.Fatal(err)
	}

	content, err := w.ReadAll("big.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(content) != len(big) {
		t.Errorf("expected %d chars, got %d", len(big), len(content))
	}

	if _, err := w.ReadAll("../outside.txt"); err == nil {
		t.Error("expected escape to be rejected")
	}
	if _, err := w.ReadAll("missing.txt"); err == nil {
		t.Error("expected missing file to error")
	}
}

func TestWriteFile_CreatesParents(t *testing.T) {
	w := newTestWorkspace(t)
	if err := w.WriteFile("a/b/c.txt", "hello"); err != nil {
		t.Fatal(err)
	}
	res, err := w.ReadFile("a/b/c.txt")
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "hello" {
		t.Errorf("expected written content back, got %q", res.Content)
	}

	// Overwrite.
	if err := w.WriteFile("a/b/c.txt", "goodbye"); err != nil {
		t.Fatal(err)
	}
	res, _ = w.ReadFile("a/b/c.txt")
	if res.Content != "goodbye" {
		t.Errorf("expected overwrite, got %q", res.Content)
	}
}

func TestListDirectory_SkipsArtefacts(t *testing.T) {
	w := newTestWorkspace(t)
	for _, d := range []string{".git", "node_modules", "__pycache__", ".venv", "Forge", "src"} {
		if err := os.MkdirAll(filepath.Join(w.Root(), d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.WriteFile("main.py", "print()"); err != nil {
		t.Fatal(err)
	}

	entries, err := w.ListDirectory(".")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	want := []string{"main.py", "src"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}

func TestEditFile(t *testing.T) {
	w := newTestWorkspace(t)
	if err := w.WriteFile("f.py", "def a():\n    pass\n\ndef b():\n    pass\n"); err != nil {
		t.Fatal(err)
	}

	// Ambiguous old_text aborts without writing.
	err := w.EditFile("f.py", []Patch{{OldText: "    pass", NewText: "    return 1"}})
	if err == nil {
		t.Fatal("expected ambiguous patch to fail")
	}
	res, _ := w.ReadFile("f.py")
	if strings.Contains(res.Content, "return 1") {
		t.Error("failed patch must not modify the file")
	}

	// Unique old_text applies.
	err = w.EditFile("f.py", []Patch{{OldText: "def a():\n    pass", NewText: "def a():\n    return 1"}})
	if err != nil {
		t.Fatal(err)
	}
	res, _ = w.ReadFile("f.py")
	if !strings.Contains(res.Content, "return 1") {
		t.Error("expected patch applied")
	}

	// Missing old_text fails.
	if err := w.EditFile("f.py", []Patch{{OldText: "def zz()", NewText: "x"}}); err == nil {
		t.Error("expected missing old_text to fail")
	}
}

func TestSearchCode(t *testing.T) {
	w := newTestWorkspace(t)
	if err := w.WriteFile("a.py", "import os\nimport requests\n"); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFile("sub/b.py", "import requests\n"); err != nil {
		t.Fatal(err)
	}

	matches, err := w.SearchCode("import requests")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Line == 0 {
		t.Error("expected 1-based line numbers")
	}
}

func TestManifestCache_RoundTrip(t *testing.T) {
	w := newTestWorkspace(t)

	if _, ok, err := w.LoadManifestCache(2); err != nil || ok {
		t.Fatalf("expected missing cache to report (false, nil), got ok=%v err=%v", ok, err)
	}

	plan := models.PhasePlan{
		Phase: 2,
		Manifest: []models.ManifestEntry{
			{Path: "src/api.py", Action: models.ActionCreate, Purpose: "routes", Status: models.FilePending},
		},
		Chunks: []models.Chunk{{Name: "core", Files: []string{"src/api.py"}}},
	}
	if err := w.SaveManifestCache(plan); err != nil {
		t.Fatal(err)
	}

	got, ok, err := w.LoadManifestCache(2)
	if err != nil || !ok {
		t.Fatalf("expected cache hit, got ok=%v err=%v", ok, err)
	}
	if len(got.Manifest) != 1 || got.Manifest[0].Path != "src/api.py" {
		t.Errorf("unexpected cached manifest: %+v", got.Manifest)
	}
	if len(got.Chunks) != 1 || got.Chunks[0].Name != "core" {
		t.Errorf("unexpected cached chunks: %+v", got.Chunks)
	}
}

func TestSaveHandoffAndResult(t *testing.T) {
	w := newTestWorkspace(t)
	h := models.Handoff{ID: "h-1", Role: models.RoleCoder, BuildID: "b-1", Assignment: "write api"}
	if err := w.SaveHandoff(h); err != nil {
		t.Fatal(err)
	}
	r := models.Result{HandoffID: "h-1", Status: models.ResultCompleted, Output: "done"}
	if err := w.SaveResult(r); err != nil {
		t.Fatal(err)
	}

	for _, f := range []string{"handoffs/h-1.json", "handoffs/h-1_result.json"} {
		if _, err := os.Stat(filepath.Join(w.Root(), ForgeDirName, f)); err != nil {
			t.Errorf("expected %s to exist: %v", f, err)
		}
	}
}

func TestMaterializeContract(t *testing.T) {
	w := newTestWorkspace(t)
	if err := w.MaterializeContract("boundaries.yaml", "zones: []\n"); err != nil {
		t.Fatal(err)
	}
	if err := w.MaterializeContract("../escape.yaml", "x"); err == nil {
		t.Error("expected traversal in contract name to fail")
	}
	if err := w.MaterializeContract("sub/dir.yaml", "x"); err == nil {
		t.Error("expected nested contract name to fail")
	}
	if _, err := os.Stat(filepath.Join(w.Root(), ContractsDirName, "boundaries.yaml")); err != nil {
		t.Errorf("expected materialised contract: %v", err)
	}
}
