package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Backplane errors.
var (
	ErrClosed         = errors.New("backplane closed")
	ErrInvalidSubject = errors.New("invalid subject")
)

// Message is one payload received from a backplane.
type Message struct {
	Subject string
	Data    []byte
}

// Backplane moves encoded events between service instances.
type Backplane interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(subject string) (BackplaneSubscription, error)
	Close() error
}

// BackplaneSubscription delivers messages for one subject.
type BackplaneSubscription interface {
	// Messages is closed when the subscription ends.
	Messages() <-chan *Message

	// Dropped counts messages discarded because the buffer was full.
	Dropped() uint64

	// Gaps receives a value whenever messages may have been lost, through a
	// full buffer or an interrupted connection. Signals coalesce and the
	// channel is never closed.
	Gaps() <-chan struct{}

	Unsubscribe() error
}

// ValidateSubject checks if a subject is usable.
func ValidateSubject(subject string) error {
	if subject == "" {
		return ErrInvalidSubject
	}
	return nil
}

// signalGap records a gap on ch without blocking.
func signalGap(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// MemoryBackplane delivers within one process.
type MemoryBackplane struct {
	bufferSize int

	mu     sync.RWMutex
	subs   map[string][]*memorySub
	closed atomic.Bool
}

type memorySub struct {
	subject string
	ch      chan *Message
	gaps    chan struct{}
	dropped atomic.Uint64
	closed  atomic.Bool
	bp      *MemoryBackplane
}

// NewMemoryBackplane creates an in-process backplane.
func NewMemoryBackplane(bufferSize int) *MemoryBackplane {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &MemoryBackplane{
		bufferSize: bufferSize,
		subs:       make(map[string][]*memorySub),
	}
}

var _ Backplane = (*MemoryBackplane)(nil)

// Publish delivers data to every subscriber of subject.
func (b *MemoryBackplane) Publish(_ context.Context, subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrClosed
	}

	msg := &Message{Subject: subject, Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[subject] {
		if sub.closed.Load() {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			sub.dropped.Add(1)
			signalGap(sub.gaps)
		}
	}
	return nil
}

// Subscribe creates a subscription to subject.
func (b *MemoryBackplane) Subscribe(subject string) (BackplaneSubscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub := &memorySub{
		subject: subject,
		ch:      make(chan *Message, b.bufferSize),
		gaps:    make(chan struct{}, 1),
		bp:      b,
	}

	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], sub)
	b.mu.Unlock()

	return sub, nil
}

// Close ends every subscription.
func (b *MemoryBackplane) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subs {
		for _, sub := range subs {
			if !sub.closed.Swap(true) {
				close(sub.ch)
			}
		}
	}
	b.subs = nil
	return nil
}

func (s *memorySub) Messages() <-chan *Message { return s.ch }

func (s *memorySub) Dropped() uint64 { return s.dropped.Load() }

func (s *memorySub) Gaps() <-chan struct{} { return s.gaps }

func (s *memorySub) Unsubscribe() error {
	s.bp.mu.Lock()
	defer s.bp.mu.Unlock()

	if s.closed.Swap(true) {
		return nil
	}
	subs := s.bp.subs[s.subject]
	for i, sub := range subs {
		if sub == s {
			s.bp.subs[s.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	close(s.ch)
	return nil
}
