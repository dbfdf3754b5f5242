package conductor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forgeguard/forgeguard/internal/broadcast"
	"github.com/forgeguard/forgeguard/internal/store"
	"github.com/forgeguard/forgeguard/pkg/models"
)

// Clarify opens a clarification gate for a sub-agent question and blocks for
// the user's answer. Over-limit questions and timeouts return the sentinel
// answer so the agent keeps moving.
func (c *Conductor) Clarify(ctx context.Context, question string) (string, error) {
	count := c.clarifications.Add(1)
	if int(count) > c.deps.ClarificationLimit {
		return fmt.Sprintf("%s (clarification limit of %d reached)", SentinelAnswer, c.deps.ClarificationLimit), nil
	}

	ch, err := c.gates.Open(models.GateClarification)
	if err != nil {
		// A question is already pending; do not stack gates.
		return SentinelAnswer, nil
	}
	c.emit(broadcast.EventClarificationRequested, map[string]any{
		"question": question,
		"number":   count,
		"limit":    c.deps.ClarificationLimit,
	})

	timer := time.NewTimer(c.deps.ClarificationTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.gates.Close(models.GateClarification)
		return "", ctx.Err()
	case <-timer.C:
		c.gates.Close(models.GateClarification)
		return SentinelAnswer, nil
	case resp := <-ch:
		c.touch()
		if resp.Action == "" {
			return SentinelAnswer, nil
		}
		return resp.Action, nil
	}
}

// Scratchpad serves the forge_scratchpad tool against the build store.
// Supported ops: write, append, read.
func (c *Conductor) Scratchpad(ctx context.Context, op, key, value string) (string, error) {
	switch op {
	case "write":
		if err := c.deps.Store.ScratchpadWrite(c.build.ID, key, value); err != nil {
			return "", err
		}
		c.emit(broadcast.EventScratchpadWrite, map[string]any{"key": key, "op": op})
		return "written", nil
	case "append":
		if err := c.deps.Store.ScratchpadAppend(c.build.ID, key, value); err != nil {
			return "", err
		}
		c.emit(broadcast.EventScratchpadWrite, map[string]any{"key": key, "op": op})
		return "appended", nil
	case "read":
		content, err := c.deps.Store.ScratchpadRead(c.build.ID, key)
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return content, err
	default:
		return "", fmt.Errorf("unknown scratchpad op %q (want write, append or read)", op)
	}
}
