package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/store"
	"github.com/google/uuid"
)

// HistoryStore keeps history records keyed by original task id, which is
// what makes Upsert idempotent.
type HistoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*domain.HistoryRecord
}

// NewHistoryStore returns an empty store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{records: make(map[uuid.UUID]*domain.HistoryRecord)}
}

var _ store.HistoryStore = (*HistoryStore)(nil)

func cloneRecord(r *domain.HistoryRecord) *domain.HistoryRecord {
	c := *r
	c.TaskSnapshot = *r.TaskSnapshot.Clone()
	return &c
}

// Upsert implements store.HistoryStore.Upsert.
func (s *HistoryStore) Upsert(_ context.Context, rec *domain.HistoryRecord) (*domain.HistoryRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.OriginalTaskID]; ok {
		return cloneRecord(existing), false, nil
	}
	s.records[rec.OriginalTaskID] = cloneRecord(rec)
	return cloneRecord(rec), true, nil
}

// GetByTaskID implements store.HistoryStore.GetByTaskID.
func (s *HistoryStore) GetByTaskID(_ context.Context, taskID uuid.UUID) (*domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[taskID]
	if !ok {
		return nil, store.ErrHistoryNotFound
	}
	return cloneRecord(rec), nil
}

// List implements store.HistoryStore.List.
func (s *HistoryStore) List(_ context.Context, period *domain.HistoryPeriod) ([]*domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var start, end time.Time
	if period != nil {
		start, end = period.Bounds()
	}

	out := []*domain.HistoryRecord{}
	for _, rec := range s.records {
		if period != nil && (rec.CompletedAt.Before(start) || !rec.CompletedAt.Before(end)) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	slices.SortFunc(out, func(a, b *domain.HistoryRecord) int {
		if c := b.CompletedAt.Compare(a.CompletedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

// DeleteExpired implements store.HistoryStore.DeleteExpired.
func (s *HistoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.records {
		if rec.DeleteAfter.Before(now) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// MessagePurger records purge cutoffs. Without a database there are no
// stored messages, so it always reports zero rows.
type MessagePurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

var _ store.MessagePurger = (*MessagePurger)(nil)

// PurgeBefore implements store.MessagePurger.PurgeBefore.
func (p *MessagePurger) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return 0, nil
}

// Cutoffs returns the cutoffs seen so far.
func (p *MessagePurger) Cutoffs() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.cutoffs)
}
