package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with in-memory storage.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]*AnalysisEvent
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*AnalysisEvent)}
}

// prepare fills the id and timestamp the way every backend does.
func prepare(event *AnalysisEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.CreatedAt = event.CreatedAt.UTC()
}

func clone(e *AnalysisEvent) *AnalysisEvent {
	c := *e
	c.Conditions = slices.Clone(e.Conditions)
	return &c
}

// CreateAnalysisEvent stores an analysis event.
func (m *MemoryStore) CreateAnalysisEvent(ctx context.Context, event *AnalysisEvent) error {
	prepare(event)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ID] = clone(event)
	return nil
}

// GetAnalysisEvent retrieves an event by id.
func (m *MemoryStore) GetAnalysisEvent(ctx context.Context, id string) (*AnalysisEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e), nil
}

// ListAnalysisEvents lists events since a given time, newest first.
func (m *MemoryStore) ListAnalysisEvents(ctx context.Context, since time.Time, pageSize int32, pageToken string) ([]*AnalysisEvent, string, error) {
	after, err := DecodePageToken(pageToken)
	if err != nil {
		return nil, "", err
	}

	m.mu.RLock()
	var events []*AnalysisEvent
	for _, e := range m.events {
		if e.CreatedAt.Before(since) {
			continue
		}
		if !after.IsZero() && !after.Precedes(e) {
			continue
		}
		events = append(events, clone(e))
	}
	m.mu.RUnlock()

	slices.SortFunc(events, func(a, b *AnalysisEvent) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})

	limit := clampPageSize(pageSize)
	if len(events) <= limit {
		return events, "", nil
	}
	events = events[:limit]
	return events, EncodePageToken(events[limit-1]), nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
