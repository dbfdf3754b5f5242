package conductor

import (
	"context"
	"sync/atomic"
	"time"
)

// Watchdog timing defaults.
const (
	// HeartbeatInterval is how often the watchdog reports build health.
	HeartbeatInterval = 45 * time.Second
	// WarnAfter is the silent period before a stall warning.
	WarnAfter = 5 * time.Minute
	// FailAfter is the silent period before the build is force-failed.
	FailAfter = 15 * time.Minute
)

// Watchdog supervises one build. It observes a monotonic progress timestamp
// and never manipulates build state itself; stalls are reported through
// callbacks.
type Watchdog struct {
	heartbeat time.Duration
	warnAfter time.Duration
	failAfter time.Duration

	// lastProgress is the unix-nano timestamp of the latest observed progress.
	lastProgress atomic.Int64

	// Exempt reports whether the build is legitimately idle (a user-facing
	// gate is open). Stall timers do not run while exempt.
	Exempt func() bool
	// OnBeat fires every heartbeat with the current silent duration.
	OnBeat func(idle time.Duration)
	// OnWarn fires once per stall when the warn threshold is crossed.
	OnWarn func(idle time.Duration)
	// OnStall fires when the fail threshold is crossed; the supervisor loop
	// exits afterwards.
	OnStall func(idle time.Duration)
}

// NewWatchdog creates a watchdog with the default thresholds.
func NewWatchdog() *Watchdog {
	w := &Watchdog{
		heartbeat: HeartbeatInterval,
		warnAfter: WarnAfter,
		failAfter: FailAfter,
	}
	w.Touch()
	return w
}

// Touch records progress now, resetting the stall clock.
func (w *Watchdog) Touch() {
	w.lastProgress.Store(time.Now().UnixNano())
}

// Idle returns how long the build has been silent.
func (w *Watchdog) Idle() time.Duration {
	return time.Since(time.Unix(0, w.lastProgress.Load()))
}

// Run supervises until the context ends or a stall force-fails the build.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.heartbeat)
	defer ticker.Stop()

	warned := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if w.Exempt != nil && w.Exempt() {
			// User think-time is not a stall.
			w.Touch()
			warned = false
			continue
		}

		idle := w.Idle()
		if w.OnBeat != nil {
			w.OnBeat(idle)
		}

		switch {
		case idle > w.failAfter:
			if w.OnStall != nil {
				w.OnStall(idle)
			}
			return
		case idle > w.warnAfter:
			if !warned {
				warned = true
				if w.OnWarn != nil {
					w.OnWarn(idle)
				}
			}
		default:
			warned = false
		}
	}
}
