package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoKeys indicates the pool was constructed without any API keys.
var ErrNoKeys = errors.New("rate limit pool has no keys")

// KeyBudget configures one API key's per-minute token budgets.
type KeyBudget struct {
	// Key is the API key.
	Key string
	// InputTPM is the input tokens-per-minute budget.
	InputTPM int64
	// OutputTPM is the output tokens-per-minute budget.
	OutputTPM int64
}

// Pool holds one limiter per API key and assigns the least-loaded key to
// each request. The pool is shared by every build in the process.
type Pool struct {
	mu       sync.Mutex
	limiters []*Limiter
}

// NewPool creates a pool from the given key budgets.
func NewPool(budgets []KeyBudget) *Pool {
	p := &Pool{}
	for _, b := range budgets {
		p.limiters = append(p.limiters, NewLimiter(b.Key, b.InputTPM, b.OutputTPM))
	}
	return p
}

// Size returns the number of keys in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.limiters)
}

// Pick returns the limiter with the most input headroom in its window.
func (p *Pool) Pick() (*Limiter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.limiters) == 0 {
		return nil, ErrNoKeys
	}

	best := p.limiters[0]
	bestRoom := best.InputHeadroom()
	for _, l := range p.limiters[1:] {
		if room := l.InputHeadroom(); room > bestRoom {
			best, bestRoom = l, room
		}
	}
	return best, nil
}

// Acquire picks the least-loaded limiter and blocks until the estimated
// usage fits its budget. There is no fast-fail: saturated keys make callers
// wait. onWait fires before every throttle sleep so the caller can surface
// pacing to the user.
func (p *Pool) Acquire(ctx context.Context, estimate int64, onWait func(time.Duration)) (*Limiter, error) {
	limiter, err := p.Pick()
	if err != nil {
		return nil, err
	}
	if err := limiter.Wait(ctx, estimate, onWait); err != nil {
		return nil, err
	}
	return limiter, nil
}
