package statestore

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is a single-process Store. Publish never blocks: a subscriber whose
// buffer is full misses the message.
type MemoryStore struct {
	clock clockwork.Clock

	mu          sync.Mutex
	entries     map[string]memoryEntry
	subscribers map[string]map[*memorySubscription]struct{}
}

func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		clock:       clock,
		entries:     make(map[string]memoryEntry),
		subscribers: make(map[string]map[*memorySubscription]struct{}),
	}
}

// lookup must be called with mu held.
func (s *MemoryStore) lookup(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !s.clock.Now().Before(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) entry(value string, ttl time.Duration) memoryEntry {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.clock.Now().Add(ttl)
	}
	return e
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	s.entries[key] = s.entry(value, ttl)
	return true, nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	if !ok || e.value != value {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func (s *MemoryStore) Publish(_ context.Context, channel string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subscribers[channel] {
		msg := Message{Channel: channel, Payload: append([]byte(nil), payload...)}
		select {
		case sub.out <- msg:
		default:
		}
	}
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	sub := &memorySubscription{store: s, channel: channel, out: make(chan Message, 64)}

	s.mu.Lock()
	if s.subscribers[channel] == nil {
		s.subscribers[channel] = make(map[*memorySubscription]struct{})
	}
	s.subscribers[channel][sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()
	return sub, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	subs := make([]*memorySubscription, 0)
	for _, set := range s.subscribers {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

type memorySubscription struct {
	store     *MemoryStore
	channel   string
	out       chan Message
	closeOnce sync.Once
}

func (s *memorySubscription) Messages() <-chan Message {
	return s.out
}

func (s *memorySubscription) Close() error {
	s.closeOnce.Do(func() {
		s.store.mu.Lock()
		delete(s.store.subscribers[s.channel], s)
		if len(s.store.subscribers[s.channel]) == 0 {
			delete(s.store.subscribers, s.channel)
		}
		close(s.out)
		s.store.mu.Unlock()
	})
	return nil
}
