// Package planner runs one agentic planning session per phase and turns the
// resulting manifest into dependency-ordered tiers.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/forgeguard/forgeguard/internal/subagent"
	"github.com/forgeguard/forgeguard/internal/tools"
	"github.com/forgeguard/forgeguard/internal/workspace"
	"github.com/forgeguard/forgeguard/pkg/models"
)

// PlanToolName is the terminating tool of a planning session.
const PlanToolName = "write_phase_plan"

// MaxTurns bounds the planning session.
const MaxTurns = 20

// ErrNoPlan means the session ended without a valid write_phase_plan call.
var ErrNoPlan = errors.New("planner: session ended without a valid plan")

// Planner drives the planning session for one phase.
type Planner struct {
	runner *subagent.Runner
	ws     *workspace.Workspace
}

// New creates a planner over a sub-agent runner and the build workspace.
func New(runner *subagent.Runner, ws *workspace.Workspace) *Planner {
	return &Planner{runner: runner, ws: ws}
}

// Plan produces a validated, enriched plan for the phase. A cached plan from
// a previous run of the same phase short-circuits the session. priorManifest
// carries entries from earlier phases for exports/depends_on backfill.
func (p *Planner) Plan(ctx context.Context, phase models.Phase, priorManifest []models.ManifestEntry, hooks subagent.Hooks) (models.PhasePlan, error) {
	if cached, ok, err := p.ws.LoadManifestCache(phase.Number); err != nil {
		return models.PhasePlan{}, err
	} else if ok {
		return cached, nil
	}

	var accepted *models.PhasePlan

	// The planning session gets its own runner so write_phase_plan and the
	// tighter turn budget never leak into later coder or fixer handoffs.
	session := *p.runner
	session.Turns = MaxTurns
	session.ExtraTools = []anthropic.ToolUnionParam{planToolDefinition()}
	session.ExtraHandler = func(ctx context.Context, name string, input json.RawMessage) (tools.Result, bool) {
		if name != PlanToolName {
			return tools.Result{}, false
		}
		plan, violations := decodePlan(phase.Number, input)
		if len(violations) > 0 {
			return tools.Result{
				Content: "plan rejected:\n- " + strings.Join(violations, "\n- "),
				IsError: true,
			}, true
		}
		accepted = &plan
		return tools.Result{Content: "plan accepted"}, true
	}

	res := session.Run(ctx, models.Handoff{
		ID:         fmt.Sprintf("plan-phase-%d", phase.Number),
		Role:       models.RolePlanner,
		Assignment: planAssignment(phase),
	}, hooks)

	if accepted == nil {
		if res.Status == models.ResultFailed {
			return models.PhasePlan{}, fmt.Errorf("%w: %s", ErrNoPlan, res.Error)
		}
		return models.PhasePlan{}, ErrNoPlan
	}

	Enrich(accepted, priorManifest)
	if err := p.ws.SaveManifestCache(*accepted); err != nil {
		return models.PhasePlan{}, err
	}
	return *accepted, nil
}

func planAssignment(phase models.Phase) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan phase %d: %s\n", phase.Number, phase.Name)
	if phase.Objective != "" {
		fmt.Fprintf(&b, "Objective: %s\n", phase.Objective)
	}
	if len(phase.Deliverables) > 0 {
		b.WriteString("Deliverables:\n")
		for _, d := range phase.Deliverables {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}
	b.WriteString("\nExplore the workspace with read_file and list_directory, then call " +
		"write_phase_plan exactly once with the file manifest and chunk groups. " +
		"Group related files into chunks of at most 6; put test files in a final " +
		"chunk of their own. Give every file a purpose, an action, an estimated " +
		"line count, and its in-phase dependencies.")
	return b.String()
}

// decodePlan parses and validates a write_phase_plan payload. Violations are
// returned as human-readable strings for the model to correct.
func decodePlan(phase int, input json.RawMessage) (models.PhasePlan, []string) {
	var payload struct {
		Manifest []models.ManifestEntry `json:"manifest"`
		Chunks   []models.Chunk         `json:"chunks"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return models.PhasePlan{}, []string{fmt.Sprintf("input is not valid plan JSON: %v", err)}
	}

	plan := models.PhasePlan{Phase: phase, Manifest: payload.Manifest, Chunks: payload.Chunks}
	return plan, Validate(plan)
}

// Validate checks the manifest/chunk invariants: known actions, safe paths,
// chunk size, and an exact bijection between chunk files and manifest paths.
func Validate(plan models.PhasePlan) []string {
	var violations []string

	if len(plan.Manifest) == 0 {
		violations = append(violations, "manifest is empty")
	}

	manifestSet := make(map[string]int, len(plan.Manifest))
	for _, e := range plan.Manifest {
		if !models.SafePath(e.Path) {
			violations = append(violations, fmt.Sprintf("manifest path %q is not a safe project-relative path", e.Path))
		}
		if !e.Action.Valid() {
			violations = append(violations, fmt.Sprintf("manifest entry %q has unknown action %q", e.Path, e.Action))
		}
		manifestSet[e.Path] = 0
	}
	if len(manifestSet) != len(plan.Manifest) {
		violations = append(violations, "manifest contains duplicate paths")
	}

	for _, c := range plan.Chunks {
		if len(c.Files) > models.MaxChunkFiles {
			violations = append(violations, fmt.Sprintf("chunk %q has %d files, maximum is %d", c.Name, len(c.Files), models.MaxChunkFiles))
		}
		for _, f := range c.Files {
			count, ok := manifestSet[f]
			if !ok {
				violations = append(violations, fmt.Sprintf("chunk %q lists %q which is not in the manifest", c.Name, f))
				continue
			}
			manifestSet[f] = count + 1
		}
	}
	for file, count := range manifestSet {
		switch {
		case count == 0:
			violations = append(violations, fmt.Sprintf("manifest file %q is in no chunk", file))
		case count > 1:
			violations = append(violations, fmt.Sprintf("manifest file %q appears in %d chunks", file, count))
		}
	}

	sort.Strings(violations)
	return violations
}

// Enrich fills language tags, pending status, and backfills exports and
// depends_on from prior-phase entries for the same path. Planner-supplied
// values are never overwritten.
func Enrich(plan *models.PhasePlan, priorManifest []models.ManifestEntry) {
	prior := make(map[string]models.ManifestEntry, len(priorManifest))
	for _, e := range priorManifest {
		prior[e.Path] = e
	}

	for i := range plan.Manifest {
		e := &plan.Manifest[i]
		if e.Language == "" {
			e.Language = languageOf(e.Path)
		}
		if e.Status == "" {
			e.Status = models.FilePending
		}
		if old, ok := prior[e.Path]; ok {
			if len(e.Exports) == 0 {
				e.Exports = old.Exports
			}
			if len(e.DependsOn) == 0 {
				e.DependsOn = inPhase(old.DependsOn, plan)
			}
		}
	}
}

// inPhase filters depends_on to paths present in this phase's manifest.
func inPhase(deps []string, plan *models.PhasePlan) []string {
	var out []string
	for _, d := range deps {
		if plan.Entry(d) != nil {
			out = append(out, d)
		}
	}
	return out
}

func languageOf(p string) string {
	switch path.Ext(p) {
	case ".py":
		return "python"
	case ".js", ".mjs", ".cjs", ".jsx":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".go":
		return "go"
	case ".html":
		return "html"
	case ".css":
		return "css"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".md":
		return "markdown"
	case ".sql":
		return "sql"
	default:
		return ""
	}
}

func planToolDefinition() anthropic.ToolUnionParam {
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        PlanToolName,
			Description: anthropic.String("Submit the phase plan: the full file manifest and the chunk groups. Invalid plans are rejected with a violation list; correct and resubmit."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]interface{}{
					"manifest": map[string]interface{}{
						"type":        "array",
						"description": "Every file this phase touches",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"path":            map[string]interface{}{"type": "string"},
								"action":          map[string]interface{}{"type": "string", "enum": []string{"create", "modify", "delete"}},
								"purpose":         map[string]interface{}{"type": "string"},
								"estimated_lines": map[string]interface{}{"type": "integer"},
								"depends_on":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
								"exports":         map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
							},
							"required": []string{"path", "action", "purpose"},
						},
					},
					"chunks": map[string]interface{}{
						"type":        "array",
						"description": "Partition of the manifest into groups of at most 6 files",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"name":  map[string]interface{}{"type": "string"},
								"files": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
								"work_order": map[string]interface{}{
									"type": "object",
									"properties": map[string]interface{}{
										"objective":        map[string]interface{}{"type": "string"},
										"constraints":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
										"patterns":         map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
										"success_criteria": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
									},
								},
							},
							"required": []string{"name", "files"},
						},
					},
				},
				Required: []string{"manifest", "chunks"},
			},
		},
	}
}
