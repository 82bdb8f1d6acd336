package match

import (
	"context"
	"sort"
	"sync"

	"github.com/artxchange/skillswap/internal/pairing"
)

// MemoryStore is an in-process Store. A single mutex covers the uniqueness
// check and the insert so concurrent Create calls observe each other.
type MemoryStore struct {
	mu      sync.RWMutex
	matches map[string]*Match
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{matches: make(map[string]*Match)}
}

func (s *MemoryStore) Create(_ context.Context, m *Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Status.Active() {
		if s.findActiveLocked(m.Pair(), m.Skill) != nil {
			return ErrDuplicateActive
		}
	}
	cp := *m
	s.matches[m.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) FindActive(_ context.Context, pair pairing.Pair, skill string) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.findActiveLocked(pair, skill)
	if m == nil {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) findActiveLocked(pair pairing.Pair, skill string) *Match {
	for _, m := range s.matches {
		if m.Pair() == pair && m.Skill == skill && m.Status.Active() {
			return m
		}
	}
	return nil
}

func (s *MemoryStore) Latest(_ context.Context, pair pairing.Pair) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Match
	for _, m := range s.matches {
		if m.Pair() != pair {
			continue
		}
		if latest == nil || newer(m, latest) {
			latest = m
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) ListFor(_ context.Context, userID string) ([]Match, error) {
	s.mu.RLock()
	out := make([]Match, 0)
	for _, m := range s.matches {
		if m.HasParticipant(userID) {
			out = append(out, *m)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return newer(&out[i], &out[j])
	})
	return out, nil
}

// newer orders by UpdatedAt, then CreatedAt, then ID, all descending. It
// matches the ORDER BY of the postgres store.
func newer(a, b *Match) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (s *MemoryStore) Update(_ context.Context, m *Match, expect Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.matches[m.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expect {
		return ErrStaleStatus
	}
	cur.Status = m.Status
	cur.ScheduledFor = m.ScheduledFor
	cur.DurationMinutes = m.DurationMinutes
	cur.VideoRoomToken = m.VideoRoomToken
	cur.UpdatedAt = m.UpdatedAt
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.matches[id]; !ok {
		return ErrNotFound
	}
	delete(s.matches, id)
	return nil
}
