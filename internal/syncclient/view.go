package syncclient

import (
	"slices"
	"sync"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/events"
	"github.com/google/uuid"
)

// tombstoneTTL is how long a deleted id keeps rejecting late upserts. Task
// ids are never reused, so this only bounds memory.
const tombstoneTTL = 5 * time.Minute

// View is a client-side replica of the active task list. Snapshots replace
// it wholesale; events are applied as upserts and deletes, so applying the
// same event twice leaves the view unchanged. Events for one task may be
// delivered out of commit order: an upsert carrying an older task version
// than the held copy is ignored, and so is an upsert for a deleted task.
type View struct {
	mu       sync.RWMutex
	tasks    map[uuid.UUID]*domain.Task
	deleted  map[uuid.UUID]time.Time
	fleets   []string
	synced   bool
	syncedAt time.Time
	version  uint64
}

// NewView creates an empty, unsynced view. fleets sets the board buckets.
func NewView(fleets []string) *View {
	return &View{
		tasks:   make(map[uuid.UUID]*domain.Task),
		deleted: make(map[uuid.UUID]time.Time),
		fleets:  slices.Clone(fleets),
	}
}

// ApplySnapshot replaces the view with tasks taken at at.
func (v *View) ApplySnapshot(tasks []*domain.Task, at time.Time) {
	next := make(map[uuid.UUID]*domain.Task, len(tasks))
	for _, t := range tasks {
		if t == nil {
			continue
		}
		next[t.ID] = t.Clone()
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for id, deletedAt := range v.deleted {
		if _, ok := next[id]; ok || deletedAt.Before(at.Add(-tombstoneTTL)) {
			delete(v.deleted, id)
		}
	}
	v.tasks = next
	v.synced = true
	v.syncedAt = at
	v.version++
}

// ApplyEvent applies e. It reports false when e was ignored: a delete of
// an unknown task, a stale upsert, or an event without the fields its type
// needs.
func (v *View) ApplyEvent(e events.Event) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch e.Type {
	case events.TypeCreated, events.TypeUpdated:
		if e.Task == nil {
			return false
		}
		if _, gone := v.deleted[e.Task.ID]; gone {
			return false
		}
		if held, ok := v.tasks[e.Task.ID]; ok && e.Task.Version < held.Version {
			return false
		}
		v.tasks[e.Task.ID] = e.Task.Clone()
	case events.TypeDeleted:
		v.deleted[e.TaskID] = e.OccurredAt
		if _, ok := v.tasks[e.TaskID]; !ok {
			return false
		}
		delete(v.tasks, e.TaskID)
	default:
		return false
	}
	v.version++
	return true
}

// Apply routes a socket frame to ApplySnapshot or ApplyEvent.
func (v *View) Apply(f events.Frame) error {
	if f.Type == events.FrameSnapshot {
		v.ApplySnapshot(f.Tasks, f.OccurredAt)
		return nil
	}
	e, err := f.Event()
	if err != nil {
		return err
	}
	v.ApplyEvent(e)
	return nil
}

// Invalidate marks the view as out of date. The contents are kept for
// display until the next snapshot replaces them.
func (v *View) Invalidate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.synced = false
}

// Synced reports whether a snapshot has been applied since the last
// Invalidate.
func (v *View) Synced() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.synced
}

// SyncedAt returns the time of the last applied snapshot.
func (v *View) SyncedAt() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.syncedAt
}

// Version increases every time the contents change.
func (v *View) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Get returns a copy of one task.
func (v *View) Get(id uuid.UUID) (*domain.Task, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	t, ok := v.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Tasks returns copies of the tasks active at now in canonical order.
func (v *View) Tasks(now time.Time) []*domain.Task {
	v.mu.RLock()
	out := make([]*domain.Task, 0, len(v.tasks))
	for _, t := range v.tasks {
		if t.Active(now) {
			out = append(out, t.Clone())
		}
	}
	v.mu.RUnlock()

	domain.SortTasks(out)
	return out
}

// Board returns Tasks(now) partitioned by fleet.
func (v *View) Board(now time.Time) domain.Board {
	return domain.Partition(v.Tasks(now), v.fleets)
}
