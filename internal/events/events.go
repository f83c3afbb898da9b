package events

import (
	"context"
	"strings"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/google/uuid"
)

// Type is the wire name of an event.
type Type string

// Task lifecycle event types.
const (
	TypeCreated Type = "task:created"
	TypeUpdated Type = "task:updated"
	TypeDeleted Type = "task:deleted"
)

// Audience scopes who receives an event.
type Audience string

// AudienceAll reaches every subscriber.
const AudienceAll Audience = "all"

const fleetAudiencePrefix = "fleet:"

// FleetAudience scopes an event to members of one fleet.
func FleetAudience(fleetID string) Audience {
	return Audience(fleetAudiencePrefix + fleetID)
}

// Valid reports whether a is all or a non-empty fleet audience.
func (a Audience) Valid() bool {
	if a == AudienceAll {
		return true
	}
	id, ok := strings.CutPrefix(string(a), fleetAudiencePrefix)
	return ok && id != ""
}

// Event is one committed change to the task set.
type Event struct {
	Type       Type         `json:"type"`
	TaskID     uuid.UUID    `json:"id"`
	Task       *domain.Task `json:"task,omitzero"`
	Audience   Audience     `json:"audience"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// TaskCreated builds the event for a newly stored task.
func TaskCreated(t *domain.Task, at time.Time) Event {
	return Event{Type: TypeCreated, TaskID: t.ID, Task: t.Clone(), Audience: AudienceAll, OccurredAt: at.UTC()}
}

// TaskUpdated builds the event for a task whose row changed.
func TaskUpdated(t *domain.Task, at time.Time) Event {
	return Event{Type: TypeUpdated, TaskID: t.ID, Task: t.Clone(), Audience: AudienceAll, OccurredAt: at.UTC()}
}

// TaskDeleted builds the event for a task row that no longer exists.
func TaskDeleted(id uuid.UUID, at time.Time) Event {
	return Event{Type: TypeDeleted, TaskID: id, Audience: AudienceAll, OccurredAt: at.UTC()}
}

// Publisher accepts committed events for delivery.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Discard is a Publisher that drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) error { return nil })
