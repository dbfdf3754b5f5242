// Package ledger tracks build spend in fixed-point microdollars against a
// configured cap.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/forgeguard/forgeguard/internal/broadcast"
	"github.com/forgeguard/forgeguard/pkg/models"
)

// ErrCostCapExceeded unwinds callers when the running total reaches the cap.
var ErrCostCapExceeded = errors.New("ledger: cost cap exceeded")

// DefaultWarnFraction is the cap fraction at which the one-shot warning fires.
const DefaultWarnFraction = 0.8

// Summary is a point-in-time view of the ledger.
type Summary struct {
	// Total is the running spend.
	Total models.Cost `json:"total"`
	// Cap is the configured spend cap; zero means uncapped.
	Cap models.Cost `json:"cap"`
	// Remaining is Cap - Total, floored at zero. Zero when uncapped.
	Remaining models.Cost `json:"remaining"`
	// Families breaks the total down per model family.
	Families map[models.ModelFamily]models.Cost `json:"families"`
	// Usage is the aggregate token usage across all recorded results.
	Usage models.StreamUsage `json:"usage"`
}

// Ledger accumulates spend for one build. Safe for concurrent use; file
// pipelines in a tier record results in parallel.
type Ledger struct {
	mu           sync.Mutex
	cap          models.Cost
	warnFraction float64
	total        models.Cost
	families     map[models.ModelFamily]models.Cost
	usage        models.StreamUsage
	warned       bool
	exceeded     bool

	buildID string
	userID  string
	emitter *broadcast.Broadcaster
}

// New creates a ledger with the given cap in microdollars. A zero or negative
// cap disables enforcement. The broadcaster may be nil.
func New(cap models.Cost, warnFraction float64, emitter *broadcast.Broadcaster, buildID, userID string) *Ledger {
	if warnFraction <= 0 || warnFraction >= 1 {
		warnFraction = DefaultWarnFraction
	}
	return &Ledger{
		cap:          cap,
		warnFraction: warnFraction,
		families:     make(map[models.ModelFamily]models.Cost),
		buildID:      buildID,
		userID:       userID,
		emitter:      emitter,
	}
}

// Record adds a result's usage to the running totals. Returns
// ErrCostCapExceeded once the total reaches the cap; the warning event fires
// once when the total crosses the warn fraction.
func (l *Ledger) Record(usage models.StreamUsage) error {
	cost := models.CostOf(usage)

	l.mu.Lock()
	l.total += cost
	l.families[models.FamilyOf(usage.Model)] += cost
	l.usage.Add(usage)

	var warn, exceed bool
	if l.cap > 0 {
		if !l.warned && float64(l.total) >= l.warnFraction*float64(l.cap) {
			l.warned = true
			warn = true
		}
		if !l.exceeded && l.total >= l.cap {
			l.exceeded = true
			exceed = true
		}
	}
	total, cap := l.total, l.cap
	l.mu.Unlock()

	if warn && !exceed {
		l.emit(broadcast.EventCostWarning, map[string]any{
			"total": total.String(),
			"cap":   cap.String(),
		})
	}
	if exceed {
		l.emit(broadcast.EventCostExceeded, map[string]any{
			"total": total.String(),
			"cap":   cap.String(),
		})
	}
	if l.cap > 0 && total >= l.cap {
		return ErrCostCapExceeded
	}
	return nil
}

// Total returns the running spend.
func (l *Ledger) Total() models.Cost {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Summary returns a copy of the ledger state.
func (l *Ledger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	families := make(map[models.ModelFamily]models.Cost, len(l.families))
	for fam, c := range l.families {
		families[fam] = c
	}
	s := Summary{
		Total:    l.total,
		Cap:      l.cap,
		Families: families,
		Usage:    l.usage,
	}
	if l.cap > 0 && l.cap > l.total {
		s.Remaining = l.cap - l.total
	}
	return s
}

// RunTicker emits cost_ticker events at the given interval until the context
// ends. Intended to run in its own goroutine.
func (l *Ledger) RunTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := l.Summary()
			l.emit(broadcast.EventCostTicker, map[string]any{
				"total":     s.Total.String(),
				"cap":       s.Cap.String(),
				"remaining": s.Remaining.String(),
			})
		}
	}
}

func (l *Ledger) emit(typ broadcast.EventType, payload map[string]any) {
	if l.emitter == nil {
		return
	}
	l.emitter.Emit(broadcast.Event{
		Type:    typ,
		BuildID: l.buildID,
		UserID:  l.userID,
		Payload: payload,
	})
}
