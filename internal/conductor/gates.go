package conductor

import (
	"fmt"
	"sync"

	"github.com/forgeguard/forgeguard/pkg/models"
)

// GateResponse is the user's answer to an open gate.
type GateResponse struct {
	// Action is the gate-specific choice: commence|cancel, approve|reject|edit,
	// continue|fix, or the free-text clarification answer.
	Action string
	// Payload carries edit deltas or other structured input.
	Payload map[string]any
}

// ResumeCommand is the user's answer to a paused build.
type ResumeCommand struct {
	Action models.ResumeAction
	// Edits replaces matching manifest entries before the retry.
	Edits []models.ManifestEntry
}

// Gates holds one slot per gate kind for a build. Kinds are mutually
// exclusive: re-opening a kind while it is pending is an error.
type Gates struct {
	mu    sync.Mutex
	open  map[models.GateKind]chan GateResponse
	pause chan ResumeCommand
}

// NewGates creates an empty gate table.
func NewGates() *Gates {
	return &Gates{open: make(map[models.GateKind]chan GateResponse)}
}

// Open registers a gate of the given kind and returns the channel its
// response will arrive on.
func (g *Gates) Open(kind models.GateKind) (<-chan GateResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.open[kind]; exists {
		return nil, fmt.Errorf("gate %s is already open", kind)
	}
	ch := make(chan GateResponse, 1)
	g.open[kind] = ch
	return ch, nil
}

// Resolve delivers the response for an open gate and closes the slot.
func (g *Gates) Resolve(kind models.GateKind, resp GateResponse) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, exists := g.open[kind]
	if !exists {
		return fmt.Errorf("gate %s is not open", kind)
	}
	delete(g.open, kind)
	ch <- resp
	return nil
}

// Close discards an open gate without a response. Used when the waiter gave
// up (timeout, cancellation) so the kind can be re-opened later.
func (g *Gates) Close(kind models.GateKind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.open, kind)
}

// IsOpen reports whether a gate of the kind is pending.
func (g *Gates) IsOpen(kind models.GateKind) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, exists := g.open[kind]
	return exists
}

// OpenPause registers the pause slot and returns its resume channel.
func (g *Gates) OpenPause() (<-chan ResumeCommand, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pause != nil {
		return nil, fmt.Errorf("build is already paused")
	}
	g.pause = make(chan ResumeCommand, 1)
	return g.pause, nil
}

// ResolvePause delivers the resume command for a paused build.
func (g *Gates) ResolvePause(cmd ResumeCommand) error {
	if !cmd.Action.Valid() {
		return fmt.Errorf("unknown resume action %q", cmd.Action)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pause == nil {
		return fmt.Errorf("build is not paused")
	}
	ch := g.pause
	g.pause = nil
	ch <- cmd
	return nil
}

// ClosePause discards the pause slot without a resume command.
func (g *Gates) ClosePause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pause = nil
}

// Paused reports whether the pause slot is open.
func (g *Gates) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pause != nil
}

// Interjections is the FIFO of user messages drained between LLM turns.
type Interjections struct {
	mu    sync.Mutex
	queue []string
}

// Push appends a user message to the queue.
func (q *Interjections) Push(msg string) {
	if msg == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, msg)
}

// Drain returns and clears the queued messages in arrival order.
func (q *Interjections) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.queue
	q.queue = nil
	return out
}

// Len returns the number of queued messages.
func (q *Interjections) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}
