package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/forgeguard/forgeguard/internal/contracts"
	"github.com/forgeguard/forgeguard/internal/workspace"
)

// runCommandTimeout is the default bound for run_command.
const runCommandTimeout = 120 * time.Second

// maxCommandOutput truncates run_command output echoed to the model.
const maxCommandOutput = 30000

func invalidParams(err error) Result {
	return Result{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}
}

func toolError(err error) Result {
	return Result{Content: err.Error(), IsError: true}
}

func jsonResult(v any) Result {
	data, err := json.Marshal(v)
	if err != nil {
		return toolError(err)
	}
	return Result{Content: string(data)}
}

func (r *Registry) execReadFile(input json.RawMessage, trace *Trace) Result {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return invalidParams(err)
	}
	res, err := r.deps.Workspace.ReadFile(params.Path)
	if err != nil {
		return toolError(err)
	}
	trace.read(params.Path)
	return jsonResult(res)
}

func (r *Registry) execListDirectory(input json.RawMessage) Result {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return invalidParams(err)
	}
	if params.Path == "" {
		params.Path = "."
	}
	entries, err := r.deps.Workspace.ListDirectory(params.Path)
	if err != nil {
		return toolError(err)
	}

	var b strings.Builder
	for _, e := range entries {
		if e.IsDir {
			fmt.Fprintf(&b, "d %s/\n", e.Name)
		} else {
			fmt.Fprintf(&b, "- %s (%d bytes)\n", e.Name, e.Size)
		}
	}
	return Result{Content: b.String()}
}

func (r *Registry) execWriteFile(input json.RawMessage, trace *Trace) Result {
	var params struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return invalidParams(err)
	}
	if err := r.deps.Workspace.WriteFile(params.Path, params.Content); err != nil {
		return toolError(err)
	}
	trace.wrote(params.Path)
	return Result{Content: fmt.Sprintf("wrote %d bytes to %s", len(params.Content), params.Path)}
}

func (r *Registry) execEditFile(input json.RawMessage, trace *Trace) Result {
	var params struct {
		Path  string `json:"path"`
		Edits []struct {
			OldText string `json:"old_text"`
			NewText string `json:"new_text"`
		} `json:"edits"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return invalidParams(err)
	}
	if len(params.Edits) == 0 {
		return Result{Content: "edit_file requires at least one edit", IsError: true}
	}

	patches := make([]workspace.Patch, len(params.Edits))
	for i, e := range params.Edits {
		patches[i] = workspace.Patch{OldText: e.OldText, NewText: e.NewText}
	}
	if err := r.deps.Workspace.EditFile(params.Path, patches); err != nil {
		return toolError(err)
	}
	trace.wrote(params.Path)
	return Result{Content: fmt.Sprintf("applied %d edits to %s", len(patches), params.Path)}
}

func (r *Registry) execCheckSyntax(ctx context.Context, input json.RawMessage) Result {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return invalidParams(err)
	}
	res, err := r.deps.Workspace.CheckSyntax(ctx, r.deps.Runner, params.Path)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (r *Registry) execSearchCode(input json.RawMessage) Result {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return invalidParams(err)
	}
	matches, err := r.deps.Workspace.SearchCode(params.Query)
	if err != nil {
		return toolError(err)
	}
	if len(matches) == 0 {
		return Result{Content: "no matches found"}
	}

	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "%s:%d: %s\n", m.Path, m.Line, m.Text)
	}
	return Result{Content: b.String()}
}

func (r *Registry) execRunCommand(ctx context.Context, input json.RawMessage) Result {
	var params struct {
		Command   string `json:"command"`
		TimeoutMS int    `json:"timeout_ms"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return invalidParams(err)
	}
	if params.Command == "" {
		return Result{Content: "run_command requires a command", IsError: true}
	}

	timeout := runCommandTimeout
	if params.TimeoutMS > 0 {
		timeout = time.Duration(params.TimeoutMS) * time.Millisecond
	}

	res, err := r.deps.Runner.Shell(ctx, r.deps.Workspace.Root(), params.Command, timeout)
	if err != nil {
		return toolError(err)
	}
	if len(res.Stdout) > maxCommandOutput {
		res.Stdout = res.Stdout[:maxCommandOutput] + "\n... (output truncated)"
	}
	if len(res.Stderr) > maxCommandOutput {
		res.Stderr = res.Stderr[:maxCommandOutput] + "\n... (output truncated)"
	}
	return jsonResult(res)
}

func (r *Registry) execGetProjectContract(ctx context.Context, input json.RawMessage) Result {
	var params struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return invalidParams(err)
	}
	c, err := r.deps.Store.Get(ctx, r.deps.ProjectID, contracts.Type(params.Type))
	if err != nil {
		return toolError(err)
	}
	return Result{Content: c.Content}
}

func (r *Registry) execListProjectContracts(ctx context.Context) Result {
	list, err := r.deps.Store.List(ctx, r.deps.ProjectID)
	if err != nil {
		return toolError(err)
	}
	var b strings.Builder
	for _, c := range list {
		fmt.Fprintf(&b, "%s (version %d)\n", c.Type, c.Version)
	}
	if b.Len() == 0 {
		return Result{Content: "no contracts defined"}
	}
	return Result{Content: b.String()}
}

// execGetBuildContracts returns the pinned snapshot captured when the build
// started, immutable thereafter.
func (r *Registry) execGetBuildContracts() Result {
	if r.deps.Snapshot == nil {
		return Result{Content: "no contract snapshot pinned for this build", IsError: true}
	}
	var b strings.Builder
	for _, c := range r.deps.Snapshot.All() {
		fmt.Fprintf(&b, "=== %s (version %d) ===\n%s\n\n", c.Type, c.Version, c.Content)
	}
	if b.Len() == 0 {
		return Result{Content: "contract snapshot is empty"}
	}
	return Result{Content: b.String()}
}

func (r *Registry) execGetPhaseWindow(input json.RawMessage) Result {
	var params struct {
		Phase int `json:"phase"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return invalidParams(err)
	}
	window := contracts.PhaseWindow(r.deps.Phases, params.Phase)
	if len(window) == 0 {
		return Result{Content: fmt.Sprintf("no phases near %d", params.Phase), IsError: true}
	}
	return jsonResult(window)
}

func (r *Registry) execScratchpad(ctx context.Context, input json.RawMessage) Result {
	var params struct {
		Op    string `json:"op"`
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return invalidParams(err)
	}
	if r.deps.Scratchpad == nil {
		return Result{Content: "scratchpad is not available", IsError: true}
	}
	switch params.Op {
	case "write", "append", "read":
	default:
		return Result{Content: fmt.Sprintf("scratchpad op must be write, append or read; got %q", params.Op), IsError: true}
	}
	out, err := r.deps.Scratchpad(ctx, params.Op, params.Key, params.Value)
	if err != nil {
		return toolError(err)
	}
	return Result{Content: out}
}

// execAskClarification blocks until the user answers, the per-build question
// limit is hit, or the question times out with the sentinel answer.
func (r *Registry) execAskClarification(ctx context.Context, input json.RawMessage) Result {
	var params struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return invalidParams(err)
	}
	if params.Question == "" {
		return Result{Content: "forge_ask_clarification requires a question", IsError: true}
	}
	if r.deps.Clarify == nil {
		return Result{Content: "clarification is not available in this context", IsError: true}
	}
	answer, err := r.deps.Clarify(ctx, params.Question)
	if err != nil {
		return toolError(err)
	}
	return Result{Content: answer}
}
