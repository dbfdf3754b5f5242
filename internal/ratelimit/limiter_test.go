package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_BootstrapNeverBlocks(t *testing.T) {
	l := NewLimiter("key-a", 1000, 1000)

	// No history: even an estimate far above the budget proceeds immediately.
	ok, _ := l.admit(1_000_000)
	if !ok {
		t.Fatal("expected empty-history limiter to admit any estimate")
	}
}

func TestLimiter_BlocksNearBudget(t *testing.T) {
	l := NewLimiter("key-a", 1000, 1000)
	l.Record(950, 0) // 95% of input budget

	ok, sleep := l.admit(100)
	if ok {
		t.Fatal("expected limiter at 95% to throttle")
	}
	if sleep <= 0 || sleep > maxSleep {
		t.Errorf("expected sleep in (0, %v], got %v", maxSleep, sleep)
	}
}

func TestLimiter_AdmitsUnderHeadroom(t *testing.T) {
	l := NewLimiter("key-a", 1000, 1000)
	l.Record(100, 100)

	ok, _ := l.admit(200) // 300 < 900 headroom
	if !ok {
		t.Fatal("expected limiter well under budget to admit")
	}
}

func TestLimiter_OutputBudgetThrottles(t *testing.T) {
	l := NewLimiter("key-a", 100_000, 1000)
	l.Record(10, 950) // output at 95%

	ok, _ := l.admit(10)
	if ok {
		t.Fatal("expected saturated output budget to throttle")
	}
}

func TestLimiter_WindowPurge(t *testing.T) {
	l := NewLimiter("key-a", 1000, 1000)

	// Anchor a fake clock so we can age entries out deterministically.
	base := time.Now()
	current := base
	l.now = func() time.Time { return current }

	l.Record(900, 0)
	current = base.Add(61 * time.Second)

	in, out := l.Used()
	if in != 0 || out != 0 {
		t.Errorf("expected aged-out usage purged, got in=%d out=%d", in, out)
	}

	ok, _ := l.admit(500)
	if !ok {
		t.Fatal("expected admit after window purge")
	}
}

func TestLimiter_WaitHonoursCancellation(t *testing.T) {
	l := NewLimiter("key-a", 1000, 1000)
	l.Record(950, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Wait(ctx, 500, nil); err == nil {
		t.Fatal("expected context error from cancelled Wait")
	}
}

func TestLimiter_WaitFiresPacingCallback(t *testing.T) {
	l := NewLimiter("key-a", 1000, 1000)
	base := time.Now()
	current := base
	l.now = func() time.Time { return current }
	l.Record(950, 0)

	var waits int
	onWait := func(d time.Duration) {
		waits++
		// Age the history out so the next admit succeeds.
		current = base.Add(61 * time.Second)
	}

	// Shrink the sleep by making the history nearly aged out already.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	current = base.Add(59 * time.Second)
	if err := l.Wait(ctx, 500, onWait); err != nil {
		t.Fatalf("unexpected Wait error: %v", err)
	}
	if waits == 0 {
		t.Error("expected pacing callback to fire at least once")
	}
}

func TestPool_PickLeastLoaded(t *testing.T) {
	p := NewPool([]KeyBudget{
		{Key: "key-a", InputTPM: 1000, OutputTPM: 1000},
		{Key: "key-b", InputTPM: 1000, OutputTPM: 1000},
	})

	// Load key-a; pick should return key-b.
	first, err := p.Pick()
	if err != nil {
		t.Fatal(err)
	}
	loaded := first
	loaded.Record(800, 0)

	picked, err := p.Pick()
	if err != nil {
		t.Fatal(err)
	}
	if picked.Key() == loaded.Key() {
		t.Errorf("expected pick to avoid loaded key %s", loaded.Key())
	}
}

func TestPool_EmptyPool(t *testing.T) {
	p := NewPool(nil)
	if _, err := p.Pick(); err != ErrNoKeys {
		t.Errorf("expected ErrNoKeys, got %v", err)
	}
}

func TestPool_AcquireRecordsNothing(t *testing.T) {
	// The limiter only records usage when the caller reports it after a
	// successful call; Acquire itself must not mutate history.
	p := NewPool([]KeyBudget{{Key: "key-a", InputTPM: 1000, OutputTPM: 1000}})

	l, err := p.Acquire(context.Background(), 500, nil)
	if err != nil {
		t.Fatal(err)
	}
	in, out := l.Used()
	if in != 0 || out != 0 {
		t.Errorf("expected no usage recorded by Acquire, got in=%d out=%d", in, out)
	}
}
