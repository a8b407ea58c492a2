package events

import (
	"sync"

	"vaultrisk/core/types"
)

// Event represents a structured state change emitted by the risk engine.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder keeps every emitted event in order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType filters recorded events by type.
func (r *Recorder) OfType(kind string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.EventType() == kind {
			out = append(out, e)
		}
	}
	return out
}

// Buffer holds events until Flush forwards them, so a failed request emits
// nothing.
type Buffer struct {
	pending []Event
}

func (b *Buffer) Emit(e Event) { b.pending = append(b.pending, e) }

// Flush forwards buffered events to target and empties the buffer.
func (b *Buffer) Flush(target Emitter) {
	if target != nil {
		for _, e := range b.pending {
			target.Emit(e)
		}
	}
	b.pending = nil
}

// Pending returns a copy of the buffered events.
func (b *Buffer) Pending() []Event {
	out := make([]Event, len(b.pending))
	copy(out, b.pending)
	return out
}

// Reset drops buffered events.
func (b *Buffer) Reset() { b.pending = nil }
