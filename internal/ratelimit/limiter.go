// Package ratelimit provides keyed sliding-window token limiters for pacing
// LLM calls against per-key TPM budgets.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is the sliding-window length for TPM accounting.
const Window = 60 * time.Second

// headroom is the fraction of the TPM budget the limiter will fill before
// blocking. Staying under the full budget absorbs estimation error.
const headroom = 0.9

// maxSleep caps a single throttle sleep so cancellation stays responsive.
const maxSleep = 15 * time.Second

// usageRecord is one recorded call in a limiter's history.
type usageRecord struct {
	at     time.Time
	input  int64
	output int64
}

// Limiter is a sliding-window token limiter for one API key.
type Limiter struct {
	key       string
	inputTPM  int64
	outputTPM int64

	mu      sync.Mutex
	history []usageRecord

	// now is replaceable for tests.
	now func() time.Time
}

// NewLimiter creates a limiter for the given key and per-minute budgets.
func NewLimiter(key string, inputTPM, outputTPM int64) *Limiter {
	return &Limiter{
		key:       key,
		inputTPM:  inputTPM,
		outputTPM: outputTPM,
		now:       time.Now,
	}
}

// Key returns the API key this limiter guards.
func (l *Limiter) Key() string {
	return l.key
}

// Record adds a usage entry after a successful call.
func (l *Limiter) Record(input, output int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, usageRecord{at: l.now(), input: input, output: output})
}

// usedLocked purges entries older than the window and returns the remaining
// totals. Caller must hold l.mu.
func (l *Limiter) usedLocked() (input, output int64) {
	cutoff := l.now().Add(-Window)
	keep := l.history[:0]
	for _, rec := range l.history {
		if rec.at.After(cutoff) {
			keep = append(keep, rec)
			input += rec.input
			output += rec.output
		}
	}
	l.history = keep
	return input, output
}

// Used returns the input and output tokens recorded inside the window.
func (l *Limiter) Used() (input, output int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usedLocked()
}

// InputHeadroom returns the input tokens still available in the window.
// Used by the pool to pick the least-loaded key.
func (l *Limiter) InputHeadroom() int64 {
	used, _ := l.Used()
	return l.inputTPM - used
}

// admit reports whether a call with the given input estimate fits within
// headroom, and if not, how long to sleep before re-checking. The bootstrap
// rule: a limiter with no history never blocks on the estimate alone.
func (l *Limiter) admit(estimate int64) (ok bool, sleep time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	usedIn, usedOut := l.usedLocked()
	if len(l.history) == 0 {
		return true, 0
	}

	inputBudget := int64(float64(l.inputTPM) * headroom)
	outputBudget := int64(float64(l.outputTPM) * headroom)
	if usedIn+estimate < inputBudget && usedOut < outputBudget {
		return true, 0
	}

	// Sleep until the oldest entry ages out, capped so cancellation and
	// re-checks stay responsive.
	oldest := l.history[0].at
	sleep = oldest.Add(Window).Sub(l.now())
	if sleep <= 0 {
		sleep = 100 * time.Millisecond
	}
	if sleep > maxSleep {
		sleep = maxSleep
	}
	return false, sleep
}

// Wait blocks until a call with the given input-token estimate fits the
// window budget, or the context is cancelled. onWait, when set, is invoked
// with the sleep duration before each throttle sleep.
func (l *Limiter) Wait(ctx context.Context, estimate int64, onWait func(time.Duration)) error {
	for {
		ok, sleep := l.admit(estimate)
		if ok {
			return nil
		}
		if onWait != nil {
			onWait(sleep)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}
