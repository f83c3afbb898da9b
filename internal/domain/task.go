package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// State is the lifecycle state of a task.
type State string

// Lifecycle states.
const (
	StateRequested  State = "requested"
	StateInProgress State = "in_progress"
	StatePaused     State = "paused"
	StateCompleted  State = "completed"
	StateRejected   State = "rejected"
)

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StateRequested, StateInProgress, StatePaused, StateCompleted, StateRejected:
		return true
	default:
		return false
	}
}

// Urgency is a qualitative deadline bucket.
type Urgency string

// Urgency buckets.
const (
	UrgencyNow   Urgency = "now"
	Urgency15Min Urgency = "15min"
	Urgency1Hour Urgency = "1hour"
	UrgencyToday Urgency = "today"
)

var urgencyDurations = map[Urgency]time.Duration{
	UrgencyNow:   0,
	Urgency15Min: 15 * time.Minute,
	Urgency1Hour: time.Hour,
	UrgencyToday: 24 * time.Hour,
}

// Duration returns the offset added to the creation time to get the deadline.
func (u Urgency) Duration() (time.Duration, bool) {
	d, ok := urgencyDurations[u]
	return d, ok
}

// Category classifies what a task is about.
type Category string

// Task categories.
const (
	CategoryProduct  Category = "product"
	CategoryPallets  Category = "pallets"
	CategoryCarton   Category = "carton"
	CategoryMaterial Category = "material"
	CategoryLabel    Category = "label"
	CategoryTask     Category = "task"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryProduct, CategoryPallets, CategoryCarton, CategoryMaterial, CategoryLabel, CategoryTask:
		return true
	default:
		return false
	}
}

// Limits and retention windows.
const (
	MaxDescriptionLength = 500
	MaxReasonLength      = 150

	RejectionTTL     = time.Hour
	HistoryRetention = 180 * 24 * time.Hour
	StaleAfter       = 2 * time.Hour
)

// Task is an active work order.
type Task struct {
	ID               uuid.UUID  `json:"id"`
	CreatedBy        string     `json:"created_by"`
	Signature        string     `json:"signature"`
	Category         Category   `json:"category"`
	Description      string     `json:"description"`
	Urgency          Urgency    `json:"urgency"`
	AssignedTo       *string    `json:"assigned_to"`
	State            State      `json:"state"`
	StateChangedAt   time.Time  `json:"state_changed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	Deadline         time.Time  `json:"deadline"`
	RejectionReason  *string    `json:"rejection_reason"`
	RejectionExpires *time.Time `json:"rejection_expires"`

	// Version starts at 1 and increases by one with every committed update
	// of the row. Receivers use it to order events for the same task.
	Version int64 `json:"version"`
}

// NewTaskParams holds the caller-supplied fields of a new task.
type NewTaskParams struct {
	CreatedBy   string
	Signature   string
	Description string
	Urgency     Urgency
	Category    Category
	AssignedTo  *string
}

// NewTask validates params and builds a requested task created at now.
// The signature is normalized to X.Y and the deadline fixed from the urgency.
func NewTask(p NewTaskParams, now time.Time) (*Task, error) {
	if strings.TrimSpace(p.CreatedBy) == "" {
		return nil, NewValidationError("created_by", "is required", ErrValidation)
	}

	sig, err := FormatSignature(p.Signature)
	if err != nil {
		return nil, err
	}

	offset, ok := p.Urgency.Duration()
	if !ok {
		return nil, ErrInvalidUrgency
	}

	if !p.Category.Valid() {
		return nil, ErrInvalidCategory
	}

	desc := strings.TrimSpace(p.Description)
	if desc == "" {
		return nil, ErrEmptyDescription
	}
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return nil, ErrDescriptionTooLong
	}

	var assigned *string
	if p.AssignedTo != nil && strings.TrimSpace(*p.AssignedTo) != "" {
		a := strings.TrimSpace(*p.AssignedTo)
		assigned = &a
	}

	now = now.UTC()
	return &Task{
		ID:             uuid.New(),
		CreatedBy:      p.CreatedBy,
		Signature:      sig,
		Category:       p.Category,
		Description:    desc,
		Urgency:        p.Urgency,
		AssignedTo:     assigned,
		State:          StateRequested,
		StateChangedAt: now,
		CreatedAt:      now,
		Deadline:       now.Add(offset),
		Version:        1,
	}, nil
}

// Validate checks the structural invariants of a stored task.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrInvalidID
	}
	if !t.State.Valid() {
		return NewValidationError("state", "is not a lifecycle state", ErrValidation)
	}
	if _, ok := t.Urgency.Duration(); !ok {
		return ErrInvalidUrgency
	}
	if !t.Category.Valid() {
		return ErrInvalidCategory
	}
	rejected := t.State == StateRejected
	if rejected != (t.RejectionReason != nil) || rejected != (t.RejectionExpires != nil) {
		return NewValidationError("rejection", "fields must be set only while rejected", ErrValidation)
	}
	return nil
}

// Active reports whether the task belongs in an active listing at now.
// Completed rows and rejections past their expiry are hidden.
func (t *Task) Active(now time.Time) bool {
	switch t.State {
	case StateCompleted:
		return false
	case StateRejected:
		return t.RejectionExpires == nil || !t.RejectionExpires.Before(now)
	default:
		return true
	}
}

// Stale reports whether the task has been in progress longer than StaleAfter.
func (t *Task) Stale(now time.Time) bool {
	return t.State == StateInProgress && now.Sub(t.StateChangedAt) > StaleAfter
}

// Overdue reports whether a non-terminal task has passed its deadline.
func (t *Task) Overdue(now time.Time) bool {
	if t.State == StateCompleted || t.State == StateRejected {
		return false
	}
	return now.After(t.Deadline)
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	if t.AssignedTo != nil {
		v := *t.AssignedTo
		c.AssignedTo = &v
	}
	if t.RejectionReason != nil {
		v := *t.RejectionReason
		c.RejectionReason = &v
	}
	if t.RejectionExpires != nil {
		v := *t.RejectionExpires
		c.RejectionExpires = &v
	}
	return &c
}
