// Package subagent runs one handoff as an agentic tool-use loop against the
// streaming API.
package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/forgeguard/forgeguard/internal/contracts"
	"github.com/forgeguard/forgeguard/internal/llm"
	"github.com/forgeguard/forgeguard/internal/tools"
	"github.com/forgeguard/forgeguard/pkg/models"
)

// MaxTurns is the tool-use round budget per handoff.
const MaxTurns = 25

// DefaultTimeout bounds a handoff when the handoff itself sets none.
const DefaultTimeout = 10 * time.Minute

// defaultMaxTokens bounds one response turn.
const defaultMaxTokens = 8192

// Hooks surface runner progress to the caller. All hooks are optional.
type Hooks struct {
	// OnTurn fires at the start of each tool-use round.
	OnTurn func(turn int)
	// OnText fires for each streamed text chunk.
	OnText func(chunk string)
	// OnThinking fires for each completed thinking block.
	OnThinking func(text string)
	// OnToolUse fires before a tool executes.
	OnToolUse func(name string, input json.RawMessage)
	// OnToolResult fires after a tool executes.
	OnToolResult func(name string, result tools.Result)
	// Interject returns queued user messages to prepend to the next user
	// message. Drained between rounds.
	Interject func() []string
}

// Streamer is the slice of llm.Streamer the runner needs. Narrowed to an
// interface so turn loops are testable without a live API.
type Streamer interface {
	Stream(ctx context.Context, req llm.Request, usage *models.StreamUsage, emit func(llm.StreamEvent) error) error
}

// Runner executes handoffs with role-scoped tools.
type Runner struct {
	streamer Streamer
	registry *tools.Registry
	snapshot *contracts.Snapshot

	// Turns overrides MaxTurns when positive.
	Turns int
	// ExtraTools are offered in addition to the role's registry tools.
	// Used by the planner for write_phase_plan.
	ExtraTools []anthropic.ToolUnionParam
	// ExtraHandler intercepts tools the registry does not know. It returns
	// ok=false to fall through to the registry.
	ExtraHandler func(ctx context.Context, name string, input json.RawMessage) (tools.Result, bool)
}

// NewRunner creates a runner over the streamer, registry and pinned snapshot.
func NewRunner(streamer Streamer, registry *tools.Registry, snapshot *contracts.Snapshot) *Runner {
	return &Runner{streamer: streamer, registry: registry, snapshot: snapshot}
}

// Run executes the handoff's tool-use loop and returns its result. The loop
// ends when a round produces zero tool calls, the round budget is spent, or
// the handoff times out.
func (r *Runner) Run(ctx context.Context, h models.Handoff, hooks Hooks) models.Result {
	result := models.Result{
		HandoffID: h.ID,
		Started:   time.Now(),
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	system := llm.SystemBlocks(r.systemBlocks(h)...)
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(buildUserMessage(h))),
	}

	maxTokens := int64(h.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	maxTurns := r.Turns
	if maxTurns <= 0 {
		maxTurns = MaxTurns
	}

	trace := &tools.Trace{}
	var finalText strings.Builder

	for turn := 1; turn <= maxTurns; turn++ {
		select {
		case <-ctx.Done():
			return r.fail(result, trace, ctx.Err().Error())
		default:
		}

		if hooks.OnTurn != nil {
			hooks.OnTurn(turn)
		}

		// Drain interjections into the pending user message.
		if hooks.Interject != nil {
			if interjections := hooks.Interject(); len(interjections) > 0 {
				prefix := "The user interjected:\n" + strings.Join(interjections, "\n")
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(prefix)))
			}
		}

		var turnText strings.Builder
		var calls []llm.ToolCall

		err := r.streamer.Stream(ctx, llm.Request{
			Model:     anthropic.Model(h.Model),
			System:    system,
			Messages:  messages,
			MaxTokens: maxTokens,
			Tools:     r.toolDefinitions(h.Role),
		}, &result.Usage, func(ev llm.StreamEvent) error {
			switch {
			case ev.Text != "":
				turnText.WriteString(ev.Text)
				if hooks.OnText != nil {
					hooks.OnText(ev.Text)
				}
			case ev.Thinking != "":
				if hooks.OnThinking != nil {
					hooks.OnThinking(ev.Thinking)
				}
			case ev.ToolCall != nil:
				calls = append(calls, *ev.ToolCall)
			}
			return nil
		})
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return r.fail(result, trace, fmt.Sprintf("handoff timed out after %v", timeout))
			}
			return r.fail(result, trace, fmt.Sprintf("stream error: %v", err))
		}

		finalText.Reset()
		finalText.WriteString(turnText.String())

		// Zero tool calls ends the loop.
		if len(calls) == 0 {
			return r.complete(result, trace, finalText.String())
		}

		// Echo the assistant turn, then execute tools and answer with
		// tool_result blocks.
		var assistantBlocks []anthropic.ContentBlockParamUnion
		if turnText.Len() > 0 {
			assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(turnText.String()))
		}
		var resultBlocks []anthropic.ContentBlockParamUnion

		for _, call := range calls {
			assistantBlocks = append(assistantBlocks, anthropic.NewToolUseBlock(call.ID, call.Input, call.Name))

			if hooks.OnToolUse != nil {
				hooks.OnToolUse(call.Name, call.Input)
			}
			res := r.execute(ctx, h.Role, call)
			if hooks.OnToolResult != nil {
				hooks.OnToolResult(call.Name, res)
			}
			r.recordTrace(trace, call, res)

			resultBlocks = append(resultBlocks, anthropic.NewToolResultBlock(call.ID, res.Content, res.IsError))
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		messages = append(messages, anthropic.NewUserMessage(resultBlocks...))
	}

	return r.fail(result, trace, fmt.Sprintf("handoff exceeded %d tool-use rounds", maxTurns))
}

// execute routes a call through the extra handler first, then the registry.
func (r *Runner) execute(ctx context.Context, role models.Role, call llm.ToolCall) tools.Result {
	if r.ExtraHandler != nil {
		if res, ok := r.ExtraHandler(ctx, call.Name, call.Input); ok {
			return res
		}
	}
	return r.registry.Execute(ctx, role, call.Name, call.Input, nil)
}

// recordTrace mirrors the registry's file accounting onto the handoff trace.
// Registry-side tracing is bypassed because the extra handler may answer.
func (r *Runner) recordTrace(trace *tools.Trace, call llm.ToolCall, res tools.Result) {
	if res.IsError {
		return
	}
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(call.Input, &params); err != nil || params.Path == "" {
		return
	}
	switch call.Name {
	case tools.ToolReadFile:
		trace.FilesRead = appendUnique(trace.FilesRead, params.Path)
	case tools.ToolWriteFile, tools.ToolEditFile:
		trace.FilesWritten = appendUnique(trace.FilesWritten, params.Path)
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

func (r *Runner) toolDefinitions(role models.Role) []anthropic.ToolUnionParam {
	defs := tools.Definitions(role)
	return append(defs, r.ExtraTools...)
}

// systemBlocks builds the system prompt: role prompt first, pinned contracts
// last so the cache-control marker covers the stable suffix. Only the fixer
// sees the pinned snapshot; other roles read live contracts via forge tools.
func (r *Runner) systemBlocks(h models.Handoff) []string {
	blocks := []string{RolePrompt(h.Role)}
	if h.Role == models.RoleFixer && r.snapshot != nil && r.snapshot.Len() > 0 {
		var b strings.Builder
		b.WriteString("Project contracts (pinned at build start):\n\n")
		for _, c := range r.snapshot.All() {
			fmt.Fprintf(&b, "## %s\n%s\n\n", c.Type, c.Content)
		}
		blocks = append(blocks, b.String())
	}
	return blocks
}

// buildUserMessage bundles context files, error context, assignment and
// target files into the first user message.
func buildUserMessage(h models.Handoff) string {
	var b strings.Builder

	if len(h.ContextFiles) > 0 {
		b.WriteString("# Context files\n\n")
		paths := make([]string, 0, len(h.ContextFiles))
		for p := range h.ContextFiles {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Fprintf(&b, "## %s\n```\n%s\n```\n\n", p, h.ContextFiles[p])
		}
	}

	if h.ErrorContext != "" {
		fmt.Fprintf(&b, "# Error context\n%s\n\n", h.ErrorContext)
	}

	fmt.Fprintf(&b, "# Assignment\n%s\n", h.Assignment)

	if len(h.TargetFiles) > 0 {
		b.WriteString("\n# Target files\n")
		for _, f := range h.TargetFiles {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}

func (r *Runner) complete(result models.Result, trace *tools.Trace, output string) models.Result {
	result.Status = models.ResultCompleted
	result.Output = output
	result.Structured = ParseTrailingJSON(output)
	result.FilesWritten = trace.FilesWritten
	result.FilesRead = trace.FilesRead
	result.Cost = models.CostOf(result.Usage)
	result.Finished = time.Now()
	return result
}

func (r *Runner) fail(result models.Result, trace *tools.Trace, msg string) models.Result {
	result.Status = models.ResultFailed
	result.Error = msg
	result.FilesWritten = trace.FilesWritten
	result.FilesRead = trace.FilesRead
	result.Cost = models.CostOf(result.Usage)
	result.Finished = time.Now()
	return result
}
