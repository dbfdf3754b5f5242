package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSourceFiles_SkipsMetadataDirectories(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "app/main.py")
	writeTestFile(t, root, "api/routes.py")
	writeTestFile(t, root, ".git/HEAD")
	writeTestFile(t, root, ".forge/progress.json")
	writeTestFile(t, root, "Forge/Contracts/phases.md")
	writeTestFile(t, root, "node_modules/pkg/index.js")

	files, err := sourceFiles(root)
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{"app/main.py": true, "api/routes.py": true}
	if len(files) != len(want) {
		t.Fatalf("files = %v", files)
	}
	for _, f := range files {
		if !want[f] {
			t.Errorf("unexpected file %q", f)
		}
	}
}

func TestAuditWorkspace_NoContracts(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "app/main.py")

	// Without boundaries or physics contracts the battery still runs;
	// G2 and G5 simply have nothing to check.
	report, err := auditWorkspace(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Checks) == 0 {
		t.Fatal("no checks ran")
	}
	if report.Failed() {
		t.Errorf("clean tree failed audit:\n%s", report)
	}
}
