// Package broadcast fans build events out to per-user subscribers.
package broadcast

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the per-subscriber channel buffer.
const DefaultBufferSize = 256

// sendTimeout bounds the retry when a subscriber channel is full.
const sendTimeout = 100 * time.Millisecond

// Subscription is one live subscriber stream.
type Subscription struct {
	userID string
	events chan Event
	b      *Broadcaster
	closed atomic.Bool
}

// Events returns the read-only event stream for this subscription.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close detaches the subscription from the broadcaster.
func (s *Subscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.b.unsubscribe(s)
	}
}

// Broadcaster delivers events to all subscribers of a user. Events for one
// build arrive at each subscriber in emission order because Emit delivers
// synchronously from the emitting goroutine.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[string][]*Subscription
	bufSize int

	droppedCount atomic.Uint64
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer.
// A non-positive size uses DefaultBufferSize.
func NewBroadcaster(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Broadcaster{
		subs:    make(map[string][]*Subscription),
		bufSize: bufferSize,
	}
}

// Subscribe registers a new subscriber for the given user's events.
func (b *Broadcaster) Subscribe(userID string) *Subscription {
	sub := &Subscription{
		userID: userID,
		events: make(chan Event, b.bufSize),
		b:      b,
	}
	b.mu.Lock()
	b.subs[userID] = append(b.subs[userID], sub)
	b.mu.Unlock()
	return sub
}

func (b *Broadcaster) unsubscribe(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[target.userID]
	for i, s := range subs {
		if s == target {
			b.subs[target.userID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[target.userID]) == 0 {
		delete(b.subs, target.userID)
	}
	close(target.events)
}

// Emit delivers the event to every subscriber of its user. A full subscriber
// channel gets one retry with a short timeout before the event is dropped
// for that subscriber; drops never block the build.
func (b *Broadcaster) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := make([]*Subscription, len(b.subs[event.UserID]))
	copy(subs, b.subs[event.UserID])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.send(sub, event)
	}
}

func (b *Broadcaster) send(sub *Subscription, event Event) {
	if sub.closed.Load() {
		return
	}
	select {
	case sub.events <- event:
		return
	default:
	}

	// Channel full, give the receiver a moment to drain.
	select {
	case sub.events <- event:
	case <-time.After(sendTimeout):
		count := b.droppedCount.Add(1)
		if count%10 == 1 { // log every 10th drop to avoid spam
			log.Printf("[broadcast] WARNING: subscriber channel full, dropped event (total dropped: %d): type=%s build=%s", count, event.Type, event.BuildID)
		}
	}
}

// DroppedCount returns how many events have been dropped across subscribers.
func (b *Broadcaster) DroppedCount() uint64 {
	return b.droppedCount.Load()
}

// SubscriberCount returns the number of live subscriptions for a user.
func (b *Broadcaster) SubscriberCount(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}
