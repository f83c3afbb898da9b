package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/events"
	"github.com/cpcomms/dispatch/internal/platform/memory"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

var (
	office    = domain.Actor{ID: "office", Role: domain.RoleOffice}
	triage    = domain.Actor{ID: "store", Role: domain.RoleStoreOffice}
	factory   = domain.Actor{ID: "factory", Role: domain.RoleFactory}
	crown     = domain.Actor{ID: "crown", Role: domain.RoleDriverCrown, Fleet: "crown"}
	electric  = domain.Actor{ID: "electric", Role: domain.RoleDriverElectric, Fleet: "electric"}
	stranger  = domain.Actor{ID: "visitor", Role: "visitor"}
	allFleets = []string{"crown", "electric"}
)

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder captures published events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) Types() []events.Type {
	var types []events.Type
	for _, e := range r.Events() {
		types = append(types, e.Type)
	}
	return types
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fixture struct {
	svc     *TaskService
	tasks   *memory.TaskStore
	history *memory.HistoryStore
	purger  *memory.MessagePurger
	events  *recorder
	clock   *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tasks:   memory.NewTaskStore(),
		history: memory.NewHistoryStore(),
		purger:  &memory.MessagePurger{},
		events:  &recorder{},
		clock:   &testClock{now: t0},
	}
	svc, err := NewTaskService(Config{
		Tasks:    f.tasks,
		History:  f.history,
		Messages: f.purger,
		Events:   f.events,
		Fleets:   allFleets,
		Clock:    f.clock.Now,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) create(t *testing.T, urgency domain.Urgency) *domain.Task {
	t.Helper()
	task, err := f.svc.Create(context.Background(), office, CreateTaskInput{
		Signature:   "j.d",
		Description: "Bring pallets to bay 3",
		Urgency:     urgency,
		Category:    domain.CategoryPallets,
	})
	require.NoError(t, err)
	return task
}

func statePtr(s domain.State) *domain.State { return &s }
func intPtr(v int) *int                   { return &v }
