package types

import "github.com/google/uuid"

// Event represents a typed event emitted during state transitions.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// NewEvent allocates an event with a fresh identifier.
func NewEvent(kind string) *Event {
	return &Event{ID: uuid.NewString(), Type: kind, Attributes: map[string]string{}}
}
