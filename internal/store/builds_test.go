package store

import (
	"errors"
	"testing"
	"time"

	"github.com/forgeguard/forgeguard/pkg/models"
)

func testBuild(id string) models.Build {
	return models.Build{
		ID:        id,
		ProjectID: "proj-1",
		UserID:    "user-1",
		Status:    models.BuildStatusPending,
		WorkDir:   "/tmp/work",
		Mode:      models.BuildModePlanExecute,
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestCreateAndGetBuild(t *testing.T) {
	db := setupTestDB(t)

	want := testBuild("b1")
	want.Branch = "forge/phase-0"
	want.ContractBatch = "batch-7"
	if err := db.CreateBuild(want); err != nil {
		t.Fatalf("CreateBuild failed: %v", err)
	}

	got, err := db.GetBuild("b1")
	if err != nil {
		t.Fatalf("GetBuild failed: %v", err)
	}
	if got.ID != want.ID || got.ProjectID != want.ProjectID || got.UserID != want.UserID {
		t.Errorf("identity mismatch: %+v", got)
	}
	if got.Status != models.BuildStatusPending || got.Mode != models.BuildModePlanExecute {
		t.Errorf("status/mode mismatch: %+v", got)
	}
	if got.Branch != "forge/phase-0" || got.ContractBatch != "batch-7" {
		t.Errorf("optional fields mismatch: %+v", got)
	}
	if !got.StartedAt.Equal(want.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, want.StartedAt)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil", got.CompletedAt)
	}
}

func TestGetBuild_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetBuild("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListBuilds_StatusFilter(t *testing.T) {
	db := setupTestDB(t)

	for _, id := range []string{"b1", "b2", "b3"} {
		if err := db.CreateBuild(testBuild(id)); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.UpdateStatus("b2", models.BuildStatusRunning, ""); err != nil {
		t.Fatal(err)
	}

	running, err := db.ListBuilds(models.BuildStatusRunning)
	if err != nil {
		t.Fatalf("ListBuilds failed: %v", err)
	}
	if len(running) != 1 || running[0].ID != "b2" {
		t.Errorf("running = %+v, want [b2]", running)
	}

	all, err := db.ListBuilds("")
	if err != nil {
		t.Fatalf("ListBuilds failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}
}

func TestUpdateStatus_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []models.BuildStatus
		wantErr bool
	}{
		{"start and complete", []models.BuildStatus{models.BuildStatusRunning, models.BuildStatusCompleted}, false},
		{"pause resume cancel", []models.BuildStatus{models.BuildStatusRunning, models.BuildStatusPaused, models.BuildStatusRunning, models.BuildStatusCancelled}, false},
		{"pending cannot complete", []models.BuildStatus{models.BuildStatusCompleted}, true},
		{"completed is terminal", []models.BuildStatus{models.BuildStatusRunning, models.BuildStatusCompleted, models.BuildStatusRunning}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			if err := db.CreateBuild(testBuild("b1")); err != nil {
				t.Fatal(err)
			}

			var err error
			for _, next := range tt.path {
				if err = db.UpdateStatus("b1", next, ""); err != nil {
					break
				}
			}
			if tt.wantErr {
				if !errors.Is(err, ErrBadTransition) {
					t.Errorf("err = %v, want ErrBadTransition", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("transition path failed: %v", err)
			}

			got, err := db.GetBuild("b1")
			if err != nil {
				t.Fatal(err)
			}
			if got.Status != tt.path[len(tt.path)-1] {
				t.Errorf("status = %s, want %s", got.Status, tt.path[len(tt.path)-1])
			}
			if got.Status.Terminal() && got.CompletedAt == nil {
				t.Error("terminal build missing CompletedAt")
			}
		})
	}
}

func TestUpdateStatus_RecordsLastError(t *testing.T) {
	db := setupTestDB(t)
	if err := db.CreateBuild(testBuild("b1")); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateStatus("b1", models.BuildStatusRunning, ""); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateStatus("b1", models.BuildStatusFailed, "watchdog stall"); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetBuild("b1")
	if err != nil {
		t.Fatal(err)
	}
	if got.LastError != "watchdog stall" {
		t.Errorf("LastError = %q, want %q", got.LastError, "watchdog stall")
	}
}

func TestSetPhase_ResetsLoopCount(t *testing.T) {
	db := setupTestDB(t)
	if err := db.CreateBuild(testBuild("b1")); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 2; i++ {
		count, err := db.IncrementLoopCount("b1")
		if err != nil {
			t.Fatal(err)
		}
		if count != i {
			t.Errorf("loop count = %d, want %d", count, i)
		}
	}

	if err := db.SetPhase("b1", "Phase 1: Core"); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetBuild("b1")
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentPhase != "Phase 1: Core" {
		t.Errorf("CurrentPhase = %q", got.CurrentPhase)
	}
	if got.LoopCount != 0 {
		t.Errorf("LoopCount = %d, want 0 after phase advance", got.LoopCount)
	}
}

func TestRecordPhaseCost_Accumulates(t *testing.T) {
	db := setupTestDB(t)

	usage := models.StreamUsage{Model: "claude-sonnet-4", InputTokens: 1_000_000, OutputTokens: 0}
	for i := 0; i < 2; i++ {
		if err := db.RecordPhaseCost("b1", 0, usage); err != nil {
			t.Fatalf("RecordPhaseCost failed: %v", err)
		}
	}
	opus := models.StreamUsage{Model: "claude-opus-4", InputTokens: 1_000_000}
	if err := db.RecordPhaseCost("b1", 1, opus); err != nil {
		t.Fatal(err)
	}

	costs, err := db.PhaseCosts("b1")
	if err != nil {
		t.Fatalf("PhaseCosts failed: %v", err)
	}
	if len(costs) != 2 {
		t.Fatalf("len(costs) = %d, want 2", len(costs))
	}
	// 1M sonnet input tokens is $3; two records accumulate to $6.
	if costs[0].Family != models.FamilySonnet || costs[0].Cost != 6*models.Dollar {
		t.Errorf("sonnet row = %+v", costs[0])
	}
	if costs[1].Family != models.FamilyOpus || costs[1].Cost != 15*models.Dollar {
		t.Errorf("opus row = %+v", costs[1])
	}

	total, err := db.TotalCost("b1")
	if err != nil {
		t.Fatal(err)
	}
	if total != 21*models.Dollar {
		t.Errorf("total = %s, want $21", total)
	}
}

func TestFileLogs_InsertionOrder(t *testing.T) {
	db := setupTestDB(t)

	entries := []struct {
		path   string
		status models.FileStatus
	}{
		{"app/a.py", models.FileGenerated},
		{"app/b.py", models.FileFailed},
		{"app/b.py", models.FileFixed},
	}
	for _, e := range entries {
		if err := db.LogFile("b1", 0, e.path, models.ActionCreate, e.status, ""); err != nil {
			t.Fatalf("LogFile failed: %v", err)
		}
	}

	logs, err := db.FileLogs("b1")
	if err != nil {
		t.Fatalf("FileLogs failed: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("len(logs) = %d, want 3", len(logs))
	}
	for i, e := range entries {
		if logs[i].Path != e.path || logs[i].Status != e.status {
			t.Errorf("logs[%d] = %+v, want %v %v", i, logs[i], e.path, e.status)
		}
	}
}

func TestActivityLog(t *testing.T) {
	db := setupTestDB(t)

	for i := 0; i < 5; i++ {
		msg := string(rune('a' + i))
		if err := db.AppendActivity("b1", "build_log", msg); err != nil {
			t.Fatalf("AppendActivity failed: %v", err)
		}
	}
	if err := db.AppendActivity("other", "build_log", "x"); err != nil {
		t.Fatal(err)
	}

	recent, err := db.RecentActivity("b1", 3)
	if err != nil {
		t.Fatalf("RecentActivity failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("len(recent) = %d, want 3", len(recent))
	}
	// Newest three, oldest first.
	want := []string{"c", "d", "e"}
	for i, w := range want {
		if recent[i].Message != w {
			t.Errorf("recent[%d] = %q, want %q", i, recent[i].Message, w)
		}
	}
}

func TestScratchpad(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.ScratchpadRead("b1", "notes"); !errors.Is(err, ErrNotFound) {
		t.Errorf("read of missing key: err = %v, want ErrNotFound", err)
	}

	if err := db.ScratchpadWrite("b1", "notes", "first"); err != nil {
		t.Fatalf("ScratchpadWrite failed: %v", err)
	}
	if err := db.ScratchpadAppend("b1", "notes", "second"); err != nil {
		t.Fatalf("ScratchpadAppend failed: %v", err)
	}

	got, err := db.ScratchpadRead("b1", "notes")
	if err != nil {
		t.Fatalf("ScratchpadRead failed: %v", err)
	}
	if got != "first\nsecond" {
		t.Errorf("content = %q, want %q", got, "first\nsecond")
	}

	if err := db.ScratchpadWrite("b1", "notes", "replaced"); err != nil {
		t.Fatal(err)
	}
	got, err = db.ScratchpadRead("b1", "notes")
	if err != nil {
		t.Fatal(err)
	}
	if got != "replaced" {
		t.Errorf("content = %q, want %q after overwrite", got, "replaced")
	}

	// Keys are scoped per build.
	if _, err := db.ScratchpadRead("b2", "notes"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-build read: err = %v, want ErrNotFound", err)
	}
}
