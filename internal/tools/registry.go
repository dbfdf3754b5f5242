// Package tools defines the sandboxed tool surface sub-agents call, with
// per-role allow-lists enforced before dispatch.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/forgeguard/forgeguard/internal/contracts"
	"github.com/forgeguard/forgeguard/internal/exec"
	"github.com/forgeguard/forgeguard/internal/workspace"
	"github.com/forgeguard/forgeguard/pkg/models"
)

// Tool names.
const (
	ToolReadFile             = "read_file"
	ToolListDirectory        = "list_directory"
	ToolWriteFile            = "write_file"
	ToolEditFile             = "edit_file"
	ToolCheckSyntax          = "check_syntax"
	ToolSearchCode           = "search_code"
	ToolRunCommand           = "run_command"
	ToolGetProjectContract   = "forge_get_project_contract"
	ToolListProjectContracts = "forge_list_project_contracts"
	ToolGetBuildContracts    = "forge_get_build_contracts"
	ToolGetPhaseWindow       = "forge_get_phase_window"
	ToolScratchpad           = "forge_scratchpad"
	ToolAskClarification     = "forge_ask_clarification"
)

// allowLists maps each role to the tools it may call. forge_get_build_contracts
// serves the pinned snapshot and belongs to the fixer alone; every other role
// reads live contracts through the project-contract tools.
var allowLists = map[models.Role]map[string]bool{
	models.RoleScout: {
		ToolReadFile: true, ToolListDirectory: true, ToolSearchCode: true,
		ToolGetProjectContract: true, ToolListProjectContracts: true,
		ToolGetPhaseWindow: true,
		ToolScratchpad:     true, ToolAskClarification: true,
	},
	models.RoleCoder: {
		ToolReadFile: true, ToolListDirectory: true, ToolSearchCode: true,
		ToolWriteFile: true, ToolEditFile: true, ToolCheckSyntax: true,
		ToolRunCommand:         true,
		ToolGetProjectContract: true, ToolListProjectContracts: true,
		ToolGetPhaseWindow: true,
		ToolScratchpad:     true, ToolAskClarification: true,
	},
	models.RoleAuditor: {
		ToolReadFile: true, ToolListDirectory: true, ToolSearchCode: true,
		ToolGetProjectContract: true, ToolListProjectContracts: true,
		ToolGetPhaseWindow: true,
		ToolScratchpad:     true,
	},
	// The fixer gets edit_file but never write_file, and reads only the
	// pinned contract snapshot.
	models.RoleFixer: {
		ToolReadFile: true, ToolListDirectory: true, ToolSearchCode: true,
		ToolEditFile: true, ToolCheckSyntax: true,
		ToolGetBuildContracts: true, ToolScratchpad: true,
	},
	// The planner only explores; its terminating write_phase_plan tool is
	// injected by the planning session, not the registry.
	models.RolePlanner: {
		ToolReadFile: true, ToolListDirectory: true,
	},
}

// Allowed reports whether the role may call the named tool.
func Allowed(role models.Role, name string) bool {
	return allowLists[role][name]
}

// AllowedTools returns the sorted tool names for a role.
func AllowedTools(role models.Role) []string {
	var names []string
	for name := range allowLists[role] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScratchpadFunc handles forge_scratchpad operations for one build.
type ScratchpadFunc func(ctx context.Context, op, key, value string) (string, error)

// ClarifyFunc blocks on a user answer for forge_ask_clarification.
type ClarifyFunc func(ctx context.Context, question string) (string, error)

// Deps wires a registry to its build's resources.
type Deps struct {
	// Workspace is the build's sandboxed working directory.
	Workspace *workspace.Workspace
	// Runner executes run_command and interpreter-backed syntax checks.
	Runner exec.CommandRunner
	// Store serves mutable project contracts.
	Store contracts.Store
	// Snapshot is the build's pinned contract snapshot.
	Snapshot *contracts.Snapshot
	// ProjectID scopes contract lookups.
	ProjectID string
	// Phases is the parsed phases contract for forge_get_phase_window.
	Phases []models.Phase
	// Scratchpad handles the per-build key-value log.
	Scratchpad ScratchpadFunc
	// Clarify opens a clarification gate and blocks for the answer.
	Clarify ClarifyFunc
}

// Result is the outcome of one tool execution, echoed back to the model.
type Result struct {
	Content string
	IsError bool
}

// Trace accumulates the file access of one handoff.
type Trace struct {
	FilesRead    []string
	FilesWritten []string
}

func (t *Trace) read(path string) {
	if t != nil {
		t.FilesRead = appendUnique(t.FilesRead, path)
	}
}

func (t *Trace) wrote(path string) {
	if t != nil {
		t.FilesWritten = appendUnique(t.FilesWritten, path)
	}
}

func appendUnique(list []string, s string) []string {
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}

// Registry dispatches tool calls for one build.
type Registry struct {
	deps Deps
}

// NewRegistry creates a registry over the build's dependencies.
func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps}
}

// Execute runs one tool call for a role. Disallowed tools return a protocol
// error result so the model can recover by choosing an allowed tool.
func (r *Registry) Execute(ctx context.Context, role models.Role, name string, input json.RawMessage, trace *Trace) Result {
	if !Allowed(role, name) {
		return Result{
			Content: fmt.Sprintf("protocol error: tool %q is not available to role %q; allowed tools: %v", name, role, AllowedTools(role)),
			IsError: true,
		}
	}

	switch name {
	case ToolReadFile:
		return r.execReadFile(input, trace)
	case ToolListDirectory:
		return r.execListDirectory(input)
	case ToolWriteFile:
		return r.execWriteFile(input, trace)
	case ToolEditFile:
		return r.execEditFile(input, trace)
	case ToolCheckSyntax:
		return r.execCheckSyntax(ctx, input)
	case ToolSearchCode:
		return r.execSearchCode(input)
	case ToolRunCommand:
		return r.execRunCommand(ctx, input)
	case ToolGetProjectContract:
		return r.execGetProjectContract(ctx, input)
	case ToolListProjectContracts:
		return r.execListProjectContracts(ctx)
	case ToolGetBuildContracts:
		return r.execGetBuildContracts()
	case ToolGetPhaseWindow:
		return r.execGetPhaseWindow(input)
	case ToolScratchpad:
		return r.execScratchpad(ctx, input)
	case ToolAskClarification:
		return r.execAskClarification(ctx, input)
	default:
		return Result{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}
	}
}
