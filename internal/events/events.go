// Package events is the fire-and-forget signal bus between the engines and
// any attached frontend. Publishing never blocks: subscribers with a full
// buffer miss the event.
package events

import "sync"

// Kind identifies a signal.
type Kind string

const (
	WatcherStarted Kind = "watcher:started"
	WatcherStopped Kind = "watcher:stopped"
	WatcherPaused  Kind = "watcher:paused"
	WatcherResumed Kind = "watcher:resumed"
	ItemProcessed  Kind = "item:processed"
	Notification   Kind = "notification"
	QueueChanged   Kind = "queue:changed"
	FSChanged      Kind = "fs:changed"
	ToolStarted    Kind = "tool:started"
	ToolFinished   Kind = "tool:finished"
	StreamChunk    Kind = "stream:chunk"
)

// Event is one signal with an optional payload.
type Event struct {
	Kind    Kind
	Source  string // watcher id, component name
	Payload any
}

// Bus fans events out to subscribers.
type Bus struct {
	mu   sync.Mutex
	subs []chan Event
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a buffered channel of events. The caller owns draining it.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers the event to every subscriber that has buffer room.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Subscriber is behind; drop rather than block an engine.
		}
	}
}
