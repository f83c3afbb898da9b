package events

import (
	"errors"
	"fmt"

	"github.com/go-json-experiment/json"
)

// ErrMalformedEvent is returned when a payload cannot be decoded into a
// usable event.
var ErrMalformedEvent = errors.New("malformed event")

// Encode serializes e for the backplane and for socket frames.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	return data, nil
}

// Decode parses a payload produced by Encode.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	switch e.Type {
	case TypeCreated, TypeUpdated:
		if e.Task == nil {
			return Event{}, fmt.Errorf("%w: %s without task", ErrMalformedEvent, e.Type)
		}
	case TypeDeleted:
	default:
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, e.Type)
	}
	if !e.Audience.Valid() {
		return Event{}, fmt.Errorf("%w: audience %q", ErrMalformedEvent, e.Audience)
	}
	return e, nil
}
