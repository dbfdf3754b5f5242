// Package governance runs the deterministic post-phase checks. Every check
// is pure file and process I/O; no model calls.
package governance

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgeguard/forgeguard/internal/contracts"
	"github.com/forgeguard/forgeguard/internal/exec"
	"github.com/forgeguard/forgeguard/internal/workspace"
	"github.com/forgeguard/forgeguard/pkg/models"
)

// Verdict is the outcome of one check.
type Verdict string

const (
	// VerdictPass means the check found nothing.
	VerdictPass Verdict = "PASS"
	// VerdictWarn means findings were reported but the phase proceeds.
	VerdictWarn Verdict = "WARN"
	// VerdictFail means findings block the phase.
	VerdictFail Verdict = "FAIL"
)

// Finding is one flagged location.
type Finding struct {
	// Path is the workspace-relative file, when the finding is file-scoped.
	Path string `json:"path,omitempty"`
	// Line is the 1-based line number, when known.
	Line int `json:"line,omitempty"`
	// Message describes the violation.
	Message string `json:"message"`
}

// CheckResult is the outcome of one governance check.
type CheckResult struct {
	// Code is the check's identifier, G1 through G7.
	Code string `json:"code"`
	// Name is the check's short name.
	Name string `json:"name"`
	// Verdict is PASS, WARN or FAIL.
	Verdict Verdict `json:"verdict"`
	// Findings lists what was flagged. Empty on PASS.
	Findings []Finding `json:"findings,omitempty"`
}

// Report is the full battery outcome.
type Report struct {
	Checks []CheckResult `json:"checks"`
}

// Failed reports whether any check returned FAIL.
func (r Report) Failed() bool {
	for _, c := range r.Checks {
		if c.Verdict == VerdictFail {
			return true
		}
	}
	return false
}

// Warned reports whether any check returned WARN.
func (r Report) Warned() bool {
	for _, c := range r.Checks {
		if c.Verdict == VerdictWarn {
			return true
		}
	}
	return false
}

// Failures returns the FAIL results only.
func (r Report) Failures() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if c.Verdict == VerdictFail {
			out = append(out, c)
		}
	}
	return out
}

// String renders a one-line-per-check summary.
func (r Report) String() string {
	var b strings.Builder
	for _, c := range r.Checks {
		fmt.Fprintf(&b, "%s %s: %s", c.Code, c.Name, c.Verdict)
		if len(c.Findings) > 0 {
			fmt.Fprintf(&b, " (%d findings)", len(c.Findings))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// DefaultRouterDir is where route handler files are expected when the
// physics contract declares an API surface.
const DefaultRouterDir = "api"

// Gate holds the parsed contracts and runs the check battery.
type Gate struct {
	ws     *workspace.Workspace
	runner exec.CommandRunner

	boundaries *contracts.Boundaries
	physics    *contracts.Physics

	// RouterDir overrides where G5 looks for handler files.
	RouterDir string
}

// NewGate builds a gate from the pinned contract snapshot. Boundaries and
// physics contracts are parsed up front; a snapshot without them simply
// skips G2 and G5.
func NewGate(ws *workspace.Workspace, runner exec.CommandRunner, snapshot *contracts.Snapshot) (*Gate, error) {
	g := &Gate{ws: ws, runner: runner, RouterDir: DefaultRouterDir}
	if snapshot == nil {
		return g, nil
	}
	if doc, ok := snapshot.Get(contracts.TypeBoundaries); ok {
		b, err := contracts.ParseBoundaries(doc.Content)
		if err != nil {
			return nil, err
		}
		g.boundaries = b
	}
	if doc, ok := snapshot.Get(contracts.TypePhysics); ok {
		p, err := contracts.ParsePhysics(doc.Content)
		if err != nil {
			return nil, err
		}
		g.physics = p
	}
	return g, nil
}

// Run executes G1 through G7 over the touched file set. The manifest feeds
// the scope check; all other checks operate on the touched files and the
// workspace.
func (g *Gate) Run(ctx context.Context, manifest []models.ManifestEntry, touched []string) Report {
	return Report{Checks: []CheckResult{
		g.checkScope(manifest, touched),
		g.checkBoundaries(touched),
		g.checkDependencies(touched),
		g.checkSecrets(touched),
		g.checkRoutes(),
		g.checkRenames(ctx),
		g.checkPlaceholders(touched),
	}}
}

// verdictFor maps a finding list to the check's configured severity.
func verdictFor(findings []Finding, severity Verdict) Verdict {
	if len(findings) == 0 {
		return VerdictPass
	}
	return severity
}
