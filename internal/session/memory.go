package session

import (
	"context"
	"sync"
	"time"

	"github.com/linesage/linesage/internal/models"
)

// MemoryStore keeps sessions in a process-local map. Mutations are
// serialized per session; a deep copy crosses the API boundary so callers
// never alias the stored document.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*models.Session
	maxHistory int
}

func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]*models.Session),
		maxHistory: maxHistory,
	}
}

func (m *MemoryStore) Create(ctx context.Context, ownerID, issueCode string) (*models.Session, error) {
	s := newSession(ownerID, issueCode)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return copySession(s), nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(s), nil
}

func (m *MemoryStore) AppendTurn(ctx context.Context, id string, turn models.Turn, expectedCount int) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.ConversationCount != expectedCount {
		return nil, ErrConcurrentTurn
	}
	applyTurn(s, turn, m.maxHistory)
	return copySession(s), nil
}

func (m *MemoryStore) End(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = models.SessionEnded
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) SweepExpired(ctx context.Context, now time.Time, idleTimeout time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ended := 0
	for _, s := range m.sessions {
		if s.Status == models.SessionActive && now.Sub(s.UpdatedAt) > idleTimeout {
			s.Status = models.SessionEnded
			s.UpdatedAt = now
			ended++
		}
	}
	return ended, nil
}

func (m *MemoryStore) ActiveCount(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.sessions {
		if s.Status == models.SessionActive {
			n++
		}
	}
	return n, nil
}

func copySession(s *models.Session) *models.Session {
	out := *s
	out.History = append([]models.Turn(nil), s.History...)
	out.ExpertsUsed = append([]string(nil), s.ExpertsUsed...)
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
