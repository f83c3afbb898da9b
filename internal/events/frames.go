package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
)

// Socket-only frame types. Event frames reuse the event Type values.
const (
	// FrameSnapshot carries the full active list. The server sends one on
	// connect and one per resync request.
	FrameSnapshot Type = "snapshot"

	// FrameResync is sent by the client to ask for a fresh snapshot.
	FrameResync Type = "resync"
)

// CloseResync is the socket close code telling a client it missed events.
// The client reconnects and starts again from a new snapshot.
const CloseResync = 4000

// ErrMalformedFrame is returned when a socket frame cannot be decoded.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one message on the subscription socket.
type Frame struct {
	Type       Type           `json:"type"`
	TaskID     uuid.UUID      `json:"id,omitzero"`
	Task       *domain.Task   `json:"task,omitzero"`
	Tasks      []*domain.Task `json:"tasks,omitzero"`
	Audience   Audience       `json:"audience,omitzero"`
	OccurredAt time.Time      `json:"occurred_at,omitzero"`
}

// SnapshotFrame wraps the active list taken at at.
func SnapshotFrame(tasks []*domain.Task, at time.Time) Frame {
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	return Frame{Type: FrameSnapshot, Tasks: tasks, OccurredAt: at.UTC()}
}

// EventFrame wraps a bus event for the socket.
func EventFrame(e Event) Frame {
	return Frame{Type: e.Type, TaskID: e.TaskID, Task: e.Task, Audience: e.Audience, OccurredAt: e.OccurredAt}
}

// Event converts an event frame back to an Event.
func (f Frame) Event() (Event, error) {
	e := Event{Type: f.Type, TaskID: f.TaskID, Task: f.Task, Audience: f.Audience, OccurredAt: f.OccurredAt}
	switch f.Type {
	case TypeCreated, TypeUpdated:
		if f.Task == nil {
			return Event{}, fmt.Errorf("%w: %s without task", ErrMalformedFrame, f.Type)
		}
		if e.TaskID == uuid.Nil {
			e.TaskID = f.Task.ID
		}
	case TypeDeleted:
		if f.TaskID == uuid.Nil {
			return Event{}, fmt.Errorf("%w: %s without id", ErrMalformedFrame, f.Type)
		}
	default:
		return Event{}, fmt.Errorf("%w: %q is not an event", ErrMalformedFrame, f.Type)
	}
	return e, nil
}

// EncodeFrame serializes f for the socket.
func EncodeFrame(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return data, nil
}

// DecodeFrame parses a socket frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return f, nil
}
