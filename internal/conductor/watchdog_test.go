package conductor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func testWatchdog(heartbeat, warn, fail time.Duration) *Watchdog {
	w := &Watchdog{heartbeat: heartbeat, warnAfter: warn, failAfter: fail}
	w.Touch()
	return w
}

func TestWatchdog_StallForceFails(t *testing.T) {
	w := testWatchdog(5*time.Millisecond, 20*time.Millisecond, 60*time.Millisecond)

	var warned, stalled atomic.Int32
	w.OnWarn = func(time.Duration) { warned.Add(1) }
	w.OnStall = func(time.Duration) { stalled.Add(1) }

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog never stalled")
	}
	if warned.Load() != 1 {
		t.Errorf("warnings = %d, want exactly 1", warned.Load())
	}
	if stalled.Load() != 1 {
		t.Errorf("stalls = %d, want 1", stalled.Load())
	}
}

func TestWatchdog_ProgressResetsClock(t *testing.T) {
	w := testWatchdog(5*time.Millisecond, 40*time.Millisecond, 80*time.Millisecond)

	var stalled atomic.Int32
	w.OnStall = func(time.Duration) { stalled.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	// Keep touching past the fail threshold; the clock must keep resetting.
	for i := 0; i < 20; i++ {
		time.Sleep(10 * time.Millisecond)
		w.Touch()
	}
	cancel()
	<-done

	if stalled.Load() != 0 {
		t.Errorf("stalls = %d, want 0 while progressing", stalled.Load())
	}
}

func TestWatchdog_GateExemption(t *testing.T) {
	w := testWatchdog(5*time.Millisecond, 15*time.Millisecond, 30*time.Millisecond)

	var stalled atomic.Int32
	w.OnStall = func(time.Duration) { stalled.Add(1) }
	w.Exempt = func() bool { return true }

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if stalled.Load() != 0 {
		t.Errorf("stalls = %d, want 0 while a user gate is open", stalled.Load())
	}
}

func TestWatchdog_BeatReportsIdle(t *testing.T) {
	w := testWatchdog(5*time.Millisecond, time.Minute, time.Hour)

	var beats atomic.Int32
	w.OnBeat = func(idle time.Duration) {
		if idle < 0 {
			t.Errorf("negative idle %v", idle)
		}
		beats.Add(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if beats.Load() == 0 {
		t.Error("no heartbeat fired")
	}
}
