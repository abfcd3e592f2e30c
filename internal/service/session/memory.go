package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/axelfernandes/axel/backend/internal/model/chat"
)

// MemoryStore is a mutex-guarded in-memory Store, used by tests and as the
// fallback when the SQLite database cannot be opened.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]chat.Session)}
}

func (s *MemoryStore) Create(_ context.Context, session *chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *session
	stored.Messages = make([]chat.Message, len(session.Messages))
	copy(stored.Messages, session.Messages)
	s.sessions[stored.ID] = stored
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	copied := stored
	copied.Messages = make([]chat.Message, len(stored.Messages))
	copy(copied.Messages, stored.Messages)
	return &copied, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, id string, message chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}

	stored.Messages = append(stored.Messages, message)
	stored.UpdatedAt = time.Now().UTC()
	s.sessions[id] = stored
	return nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, owner, repo string, limit int) ([]chat.SessionSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]chat.SessionSummary, 0, len(s.sessions))
	for _, stored := range s.sessions {
		if stored.Owner != owner {
			continue
		}
		if repo != "" && stored.Repo != repo {
			continue
		}

		summary := chat.SessionSummary{
			ID:        stored.ID,
			Repo:      stored.Repo,
			CreatedAt: stored.CreatedAt,
			UpdatedAt: stored.UpdatedAt,
		}
		if len(stored.Messages) > 0 {
			summary.Preview = preview(stored.Messages[0].Content)
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}
