package sessions

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Store used when no database is configured.
// Nothing survives a restart; all operations succeed so the rest of the
// system behaves identically to a durable deployment.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	events   map[string][]*Event
	eventSeq int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		sessions: make(map[string]*Session),
		events:   make(map[string][]*Event),
	}
}

func (m *MemStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemStore) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemStore) ListSessions(_ context.Context, limit int) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].StartTime.After(list[j].StartTime)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MemStore) UpdateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.events, id)
	return nil
}

func (m *MemStore) UnendedSessions(_ context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []*Session
	for _, s := range m.sessions {
		if s.EndTime == nil {
			cp := *s
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (m *MemStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventSeq++
	cp := *e
	cp.ID = m.eventSeq
	m.events[e.SessionID] = append(m.events[e.SessionID], &cp)
	e.ID = cp.ID
	return nil
}

func (m *MemStore) Events(_ context.Context, sessionID string, types ...EventType) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []*Event
	for _, e := range m.events[sessionID] {
		if len(types) > 0 && !containsType(types, e.Type) {
			continue
		}
		cp := *e
		list = append(list, &cp)
	}
	// Stable: entries are appended in insertion order, which breaks ties.
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp.Before(list[j].Timestamp)
	})
	return list, nil
}

func (m *MemStore) CountEvents(_ context.Context, sessionID string, typ EventType) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.events[sessionID] {
		if e.Type == typ {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) Close() error {
	return nil
}

func containsType(types []EventType, t EventType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

var _ Store = (*MemStore)(nil)
