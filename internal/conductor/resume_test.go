package conductor

import (
	"errors"
	"testing"
)

type fakeRepo struct {
	subjects []string
	err      error
}

func (r *fakeRepo) Add(paths ...string) error       { return nil }
func (r *fakeRepo) Commit(message string) error     { return nil }
func (r *fakeRepo) Log(limit int) ([]string, error) { return r.subjects, r.err }

func TestResumePhase(t *testing.T) {
	tests := []struct {
		name     string
		subjects []string
		want     int
	}{
		{"no commits", nil, 0},
		{"no markers", []string{"initial commit", "wip"}, 0},
		{
			"single marker",
			[]string{"fix tests", "forge: Phase 0 complete", "initial"},
			1,
		},
		{
			"highest marker wins regardless of order",
			[]string{"forge: Phase 1 complete", "forge: Phase 3 complete", "forge: Phase 2 complete"},
			4,
		},
		{
			"near-miss subjects ignored",
			[]string{"forge: Phase x complete", "forge: Phase 1 completed", "re: forge: Phase 1 complete"},
			0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResumePhase(&fakeRepo{subjects: tt.subjects})
			if got != tt.want {
				t.Errorf("ResumePhase = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResumePhase_NilRepoAndErrors(t *testing.T) {
	if got := ResumePhase(nil); got != 0 {
		t.Errorf("nil repo = %d, want 0", got)
	}
	repo := &fakeRepo{err: errors.New("not a git repository")}
	if got := ResumePhase(repo); got != 0 {
		t.Errorf("log error = %d, want 0", got)
	}
}

func TestPhaseCommitMessage_RoundTrip(t *testing.T) {
	repo := &fakeRepo{subjects: []string{PhaseCommitMessage(7)}}
	if got := ResumePhase(repo); got != 8 {
		t.Errorf("round trip = %d, want 8", got)
	}
}
