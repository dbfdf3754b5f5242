package tools

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/forgeguard/forgeguard/pkg/models"
)

// Definitions returns the tool schemas available to a role, in the order
// the role's allow-list sorts them.
func Definitions(role models.Role) []anthropic.ToolUnionParam {
	all := allDefinitions()
	var out []anthropic.ToolUnionParam
	for _, name := range AllowedTools(role) {
		if def, ok := all[name]; ok {
			out = append(out, def)
		}
	}
	return out
}

func allDefinitions() map[string]anthropic.ToolUnionParam {
	return map[string]anthropic.ToolUnionParam{
		ToolReadFile: {
			OfTool: &anthropic.ToolParam{
				Name:        ToolReadFile,
				Description: anthropic.String("Read a file from the workspace. Returns {content, size, truncated}; content is truncated at 8000 characters."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Workspace-relative path to read",
						},
					},
					Required: []string{"path"},
				},
			},
		},
		ToolListDirectory: {
			OfTool: &anthropic.ToolParam{
				Name:        ToolListDirectory,
				Description: anthropic.String("List a workspace directory. Build artefact directories (.git, node_modules, __pycache__, .venv, Forge) are skipped."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Workspace-relative directory, defaults to the root",
						},
					},
				},
			},
		},
		ToolWriteFile: {
			OfTool: &anthropic.ToolParam{
				Name:        ToolWriteFile,
				Description: anthropic.String("Write content to a workspace file, creating parent directories and overwriting any existing file."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Workspace-relative path to write",
						},
						"content": map[string]interface{}{
							"type":        "string",
							"description": "Full file content",
						},
					},
					Required: []string{"path", "content"},
				},
			},
		},
		ToolEditFile: {
			OfTool: &anthropic.ToolParam{
				Name:        ToolEditFile,
				Description: anthropic.String("Apply structured patches to a file. Each old_text must match exactly one location; a failed patch leaves the file untouched."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Workspace-relative path to edit",
						},
						"edits": map[string]interface{}{
							"type":        "array",
							"description": "Ordered list of {old_text, new_text} patches",
							"items": map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"old_text": map[string]interface{}{"type": "string"},
									"new_text": map[string]interface{}{"type": "string"},
								},
								"required": []string{"old_text", "new_text"},
							},
						},
					},
					Required: []string{"path", "edits"},
				},
			},
		},
		ToolCheckSyntax: {
			OfTool: &anthropic.ToolParam{
				Name:        ToolCheckSyntax,
				Description: anthropic.String("Parse a file with the parser for its language and report {ok, message}."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Workspace-relative path to check",
						},
					},
					Required: []string{"path"},
				},
			},
		},
		ToolSearchCode: {
			OfTool: &anthropic.ToolParam{
				Name:        ToolSearchCode,
				Description: anthropic.String("Search workspace files for a literal string. Returns path:line: text matches."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"query": map[string]interface{}{
							"type":        "string",
							"description": "Literal text to search for",
						},
					},
					Required: []string{"query"},
				},
			},
		},
		ToolRunCommand: {
			OfTool: &anthropic.ToolParam{
				Name:        ToolRunCommand,
				Description: anthropic.String("Run a shell command in the workspace root. Returns {stdout, stderr, exit_code, timed_out}."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"command": map[string]interface{}{
							"type":        "string",
							"description": "Shell command to run",
						},
						"timeout_ms": map[string]interface{}{
							"type":        "integer",
							"description": "Timeout in milliseconds (default 120000)",
						},
					},
					Required: []string{"command"},
				},
			},
		},
		ToolGetProjectContract: {
			OfTool: &anthropic.ToolParam{
				Name:        ToolGetProjectContract,
				Description: anthropic.String("Fetch the current version of one project contract (blueprint, manifesto, stack, schema, physics, boundaries, phases, ui)."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"type": map[string]interface{}{
							"type":        "string",
							"description": "Contract type to fetch",
						},
					},
					Required: []string{"type"},
				},
			},
		},
		ToolListProjectContracts: {
			OfTool: &anthropic.ToolParam{
				Name:        ToolListProjectContracts,
				Description: anthropic.String("List the project's contract types and versions."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{},
				},
			},
		},
		ToolGetBuildContracts: {
			OfTool: &anthropic.ToolParam{
				Name:        ToolGetBuildContracts,
				Description: anthropic.String("Return the contract snapshot pinned when this build started. The snapshot never changes mid-build."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{},
				},
			},
		},
		ToolGetPhaseWindow: {
			OfTool: &anthropic.ToolParam{
				Name:        ToolGetPhaseWindow,
				Description: anthropic.String("Return the phases adjacent to the given phase number (previous, current, next)."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"phase": map[string]interface{}{
							"type":        "integer",
							"description": "Phase number at the centre of the window",
						},
					},
					Required: []string{"phase"},
				},
			},
		},
		ToolScratchpad: {
			OfTool: &anthropic.ToolParam{
				Name:        ToolScratchpad,
				Description: anthropic.String("Write, append or read a key in the per-build scratchpad log."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"op": map[string]interface{}{
							"type":        "string",
							"description": "One of write, append, read",
						},
						"key": map[string]interface{}{
							"type":        "string",
							"description": "Scratchpad key",
						},
						"value": map[string]interface{}{
							"type":        "string",
							"description": "Value for write and append",
						},
					},
					Required: []string{"op", "key"},
				},
			},
		},
		ToolAskClarification: {
			OfTool: &anthropic.ToolParam{
				Name:        ToolAskClarification,
				Description: anthropic.String("Ask the user a clarifying question and block for the answer. Questions are limited per build; unanswered questions time out with 'proceed with best judgement'."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"question": map[string]interface{}{
							"type":        "string",
							"description": "The question to ask",
						},
					},
					Required: []string{"question"},
				},
			},
		},
	}
}
