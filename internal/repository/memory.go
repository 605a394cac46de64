package repository

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/flybeeper/routecast/internal/metrics"
	"github.com/flybeeper/routecast/internal/models"
)

type sessionEntry struct {
	id      string
	session *models.RouteSession
	expires time.Time
}

// MemorySessionStore сессии в памяти процесса, когда Redis не настроен.
// Самые старые по использованию сессии вытесняются при переполнении.
type MemorySessionStore struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List
	now      func() time.Time
}

// NewMemorySessionStore создает хранилище на capacity сессий
func NewMemorySessionStore(capacity int, ttl time.Duration) *MemorySessionStore {
	if capacity <= 0 {
		capacity = 256
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemorySessionStore{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// SaveSession сохраняет или заменяет сессию
func (s *MemorySessionStore) SaveSession(_ context.Context, session *models.RouteSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &sessionEntry{id: session.ID, session: session, expires: s.now().Add(s.ttl)}
	if elem, ok := s.items[session.ID]; ok {
		elem.Value = entry
		s.order.MoveToFront(elem)
	} else {
		s.items[session.ID] = s.order.PushFront(entry)
	}

	for s.order.Len() > s.capacity {
		s.remove(s.order.Back())
	}
	metrics.ActiveSessions.Set(float64(len(s.items)))
	return nil
}

// LoadSession возвращает сессию или ErrNotFound
func (s *MemorySessionStore) LoadSession(_ context.Context, id string) (*models.RouteSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	entry := elem.Value.(*sessionEntry)
	if s.now().After(entry.expires) {
		s.remove(elem)
		metrics.ActiveSessions.Set(float64(len(s.items)))
		return nil, ErrNotFound
	}
	s.order.MoveToFront(elem)
	return entry.session, nil
}

// DeleteSession удаляет сессию
func (s *MemorySessionStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[id]; ok {
		s.remove(elem)
	}
	metrics.ActiveSessions.Set(float64(len(s.items)))
	return nil
}

// Len количество сессий
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *MemorySessionStore) remove(elem *list.Element) {
	entry := elem.Value.(*sessionEntry)
	delete(s.items, entry.id)
	s.order.Remove(elem)
}
