package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/store"
	"github.com/google/uuid"
)

// TaskStore is a mutex-guarded map of tasks. Every read and write copies,
// so callers never share a *domain.Task with the store.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task
}

// NewTaskStore returns an empty store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

var _ store.TaskStore = (*TaskStore)(nil)

// Create implements store.TaskStore.Create.
func (s *TaskStore) Create(_ context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "create", err.Error(), store.ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; ok {
		return store.ErrDuplicate
	}
	s.tasks[task.ID] = task.Clone()
	return nil
}

// GetByID implements store.TaskStore.GetByID.
func (s *TaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return t.Clone(), nil
}

// ListActive implements store.TaskStore.ListActive.
func (s *TaskStore) ListActive(_ context.Context, now time.Time) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.Active(now) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// ListByState implements store.TaskStore.ListByState.
func (s *TaskStore) ListByState(_ context.Context, state domain.State) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*domain.Task{}
	for _, t := range s.tasks {
		if t.State == state {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// ApplyTransition implements store.TaskStore.ApplyTransition. The check of
// u.From and the write happen under one lock.
func (s *TaskStore) ApplyTransition(_ context.Context, id uuid.UUID, u store.TransitionUpdate) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	if t.State != u.From {
		return nil, store.ErrStateConflict
	}

	next := t.Clone()
	next.State = u.To
	next.StateChangedAt = u.At.UTC()
	next.Version++
	if next.AssignedTo == nil && u.ClaimFor != nil {
		v := *u.ClaimFor
		next.AssignedTo = &v
	}
	next.RejectionReason = nil
	next.RejectionExpires = nil
	if u.RejectionReason != nil {
		v := *u.RejectionReason
		next.RejectionReason = &v
	}
	if u.RejectionExpires != nil {
		v := u.RejectionExpires.UTC()
		next.RejectionExpires = &v
	}
	if err := next.Validate(); err != nil {
		return nil, store.NewStoreError("task", "transition", err.Error(), store.ErrInvalidEntity)
	}

	s.tasks[id] = next
	return next.Clone(), nil
}

// Assign implements store.TaskStore.Assign.
func (s *TaskStore) Assign(_ context.Context, id uuid.UUID, assignee string, at time.Time) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	next := t.Clone()
	next.AssignedTo = &assignee
	next.StateChangedAt = at.UTC()
	next.Version++
	s.tasks[id] = next
	return next.Clone(), nil
}

// DeleteCompleted implements store.TaskStore.DeleteCompleted.
func (s *TaskStore) DeleteCompleted(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.State != domain.StateCompleted {
		return false, nil
	}
	delete(s.tasks, id)
	return true, nil
}

// DeleteExpiredRejections implements store.TaskStore.DeleteExpiredRejections.
func (s *TaskStore) DeleteExpiredRejections(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := []uuid.UUID{}
	for id, t := range s.tasks {
		if t.State == domain.StateRejected && t.RejectionExpires != nil && t.RejectionExpires.Before(now) {
			ids = append(ids, id)
			delete(s.tasks, id)
		}
	}
	return ids, nil
}
