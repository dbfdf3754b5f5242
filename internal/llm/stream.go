package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/forgeguard/forgeguard/internal/ratelimit"
	"github.com/forgeguard/forgeguard/pkg/models"
)

// maxRetries is the retry budget for transient API failures.
const maxRetries = 6

// backoffCap bounds exponential back-off between retries.
const backoffCap = 90 * time.Second

// retryAfterCap bounds how long a server-provided Retry-After is honoured.
const retryAfterCap = 120 * time.Second

// ToolCall is one assembled tool invocation from the stream.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// StreamEvent is one decoded unit from the stream: exactly one of Text,
// Thinking, or ToolCall is set.
type StreamEvent struct {
	// Text is an incremental text chunk, emitted as it arrives.
	Text string
	// Thinking is a whole extended-thinking block, emitted on block stop.
	Thinking string
	// ToolCall is an assembled tool call, emitted on block stop.
	ToolCall *ToolCall
}

// Request describes one streaming Messages call.
type Request struct {
	// Model is the model id. Empty uses the client default.
	Model anthropic.Model
	// System holds the system prompt blocks. Use SystemBlocks to build them
	// with a cache-control marker on the final block.
	System []anthropic.TextBlockParam
	// Messages is the conversation history.
	Messages []anthropic.MessageParam
	// MaxTokens bounds the response.
	MaxTokens int64
	// Tools are the tool definitions offered to the model.
	Tools []anthropic.ToolUnionParam
	// ThinkingBudget enables extended thinking when positive.
	ThinkingBudget int64
}

// SystemBlocks builds system prompt blocks with a cache-control marker on
// the final block so the stable prefix is cached across turns.
func SystemBlocks(blocks ...string) []anthropic.TextBlockParam {
	out := make([]anthropic.TextBlockParam, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, anthropic.TextBlockParam{Text: b})
	}
	if len(out) > 0 {
		out[len(out)-1].CacheControl = anthropic.NewCacheControlEphemeralParam()
	}
	return out
}

// EstimateTokens approximates the input tokens of a request as total prompt
// bytes divided by four. Used only for proactive budget pacing; real usage
// comes back on the stream.
func EstimateTokens(req Request) int64 {
	var size int
	for _, b := range req.System {
		size += len(b.Text)
	}
	if data, err := json.Marshal(req.Messages); err == nil {
		size += len(data)
	}
	return int64(size / 4)
}

// Streamer issues streaming calls through the rate-limit pool.
type Streamer struct {
	client *Client
	pool   *ratelimit.Pool

	// OnWait fires before each budget-pacing sleep.
	OnWait func(time.Duration)
	// OnRetry fires before each retry sleep.
	OnRetry func(attempt int, wait time.Duration, cause error)
}

// NewStreamer creates a streamer over the given client and key pool.
func NewStreamer(client *Client, pool *ratelimit.Pool) *Streamer {
	return &Streamer{client: client, pool: pool}
}

// Stream makes one streaming call, emitting decoded events through emit.
// Usage is accumulated into usage and recorded on the chosen rate limiter.
// Transient failures (429/5xx/timeouts) are retried with back-off.
func (s *Streamer) Stream(ctx context.Context, req Request, usage *models.StreamUsage, emit func(StreamEvent) error) error {
	if req.Model == "" {
		req.Model = s.client.Model()
	}

	limiter, err := s.pool.Acquire(ctx, EstimateTokens(req), s.OnWait)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		callUsage, err := s.streamOnce(ctx, req, emit)
		if err == nil {
			usage.Add(callUsage)
			limiter.Record(callUsage.TotalInput(), callUsage.OutputTokens)
			return nil
		}
		lastErr = err

		if !retryable(err) || attempt == maxRetries {
			return err
		}

		wait := retryDelay(attempt, err)
		if s.OnRetry != nil {
			s.OnRetry(attempt+1, wait, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

// streamOnce runs a single streaming call and decodes its SSE events.
func (s *Streamer) streamOnce(ctx context.Context, req Request, emit func(StreamEvent) error) (models.StreamUsage, error) {
	params := anthropic.MessageNewParams{
		Model:     s.client.TranslateModel(req.Model),
		MaxTokens: req.MaxTokens,
		System:    req.System,
		Messages:  req.Messages,
		Tools:     req.Tools,
	}
	if req.ThinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(req.ThinkingBudget)
	}

	var usage models.StreamUsage
	acc := newBlockAccumulator()

	stream := s.client.sdk().Messages.NewStreaming(ctx, params)
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage.InputTokens = ev.Message.Usage.InputTokens
			usage.CacheReadTokens = ev.Message.Usage.CacheReadInputTokens
			usage.CacheCreationTokens = ev.Message.Usage.CacheCreationInputTokens
			usage.Model = string(ev.Message.Model)

		case anthropic.MessageDeltaEvent:
			usage.OutputTokens = ev.Usage.OutputTokens

		case anthropic.ContentBlockStartEvent:
			switch ev.ContentBlock.Type {
			case "tool_use":
				acc.openTool(ev.ContentBlock.ID, ev.ContentBlock.Name)
			case "thinking":
				acc.openThinking()
			}

		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if err := emit(StreamEvent{Text: delta.Text}); err != nil {
					return usage, err
				}
			case anthropic.InputJSONDelta:
				acc.appendJSON(delta.PartialJSON)
			case anthropic.ThinkingDelta:
				acc.appendThinking(delta.Thinking)
			}

		case anthropic.ContentBlockStopEvent:
			if out, ok := acc.close(); ok {
				if err := emit(out); err != nil {
					return usage, err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return usage, err
	}
	return usage, nil
}

// retryable reports whether the error is a transient API failure.
// Retryable: 429, 500, 502, 503, 529, and network timeouts.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 429, 500, 502, 503, 529:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// retryDelay computes the sleep before the next retry: a server-provided
// Retry-After capped at 120s when present, otherwise 2^(attempt+1) seconds
// capped at 90s.
func retryDelay(attempt int, err error) time.Duration {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) && apierr.Response != nil {
		if ra := apierr.Response.Header.Get("Retry-After"); ra != "" {
			if secs, perr := strconv.Atoi(ra); perr == nil && secs > 0 {
				d := time.Duration(secs) * time.Second
				if d > retryAfterCap {
					d = retryAfterCap
				}
				return d
			}
		}
	}
	return backoffDelay(attempt)
}

// backoffDelay returns 2^(attempt+1) seconds capped at backoffCap.
func backoffDelay(attempt int) time.Duration {
	if attempt > 6 {
		attempt = 6
	}
	d := time.Duration(1<<uint(attempt+1)) * time.Second
	if d > backoffCap {
		d = backoffCap
	}
	return d
}

// blockAccumulator assembles tool-use and thinking blocks across deltas.
// Content blocks arrive sequentially, so at most one is open at a time.
type blockAccumulator struct {
	kind     string // "", "tool", "thinking"
	toolID   string
	toolName string
	json     []byte
	thinking []byte
}

func newBlockAccumulator() *blockAccumulator {
	return &blockAccumulator{}
}

func (a *blockAccumulator) openTool(id, name string) {
	a.kind = "tool"
	a.toolID = id
	a.toolName = name
	a.json = a.json[:0]
}

func (a *blockAccumulator) openThinking() {
	a.kind = "thinking"
	a.thinking = a.thinking[:0]
}

func (a *blockAccumulator) appendJSON(partial string) {
	if a.kind == "tool" {
		a.json = append(a.json, partial...)
	}
}

func (a *blockAccumulator) appendThinking(chunk string) {
	if a.kind == "thinking" {
		a.thinking = append(a.thinking, chunk...)
	}
}

// close finishes the open block, returning the assembled event if any.
func (a *blockAccumulator) close() (StreamEvent, bool) {
	defer func() { a.kind = "" }()

	switch a.kind {
	case "tool":
		input := a.json
		if len(input) == 0 {
			input = []byte("{}")
		}
		call := &ToolCall{ID: a.toolID, Name: a.toolName, Input: append(json.RawMessage(nil), input...)}
		return StreamEvent{ToolCall: call}, true
	case "thinking":
		return StreamEvent{Thinking: string(a.thinking)}, true
	default:
		return StreamEvent{}, false
	}
}
