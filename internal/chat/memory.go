package chat

import (
	"context"
	"sync"

	"github.com/artxchange/skillswap/internal/pairing"
)

// MemoryStore keeps messages per room in insertion order.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string][]Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string][]Message)}
}

func (s *MemoryStore) Append(_ context.Context, m *Message) error {
	s.mu.Lock()
	s.rooms[m.Room] = append(s.rooms[m.Room], *m)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) MarkSeen(_ context.Context, from, to string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.rooms[pairing.RoomID(from, to)]
	var n int64
	for i := range msgs {
		if msgs[i].From == from && msgs[i].To == to && !msgs[i].Seen {
			msgs[i].Seen = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) History(_ context.Context, room string, page Page) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.rooms[room]
	end := len(msgs) - page.Skip
	if end < 0 {
		end = 0
	}
	start := 0
	if page.Limit > 0 && end-page.Limit > start {
		start = end - page.Limit
	}

	out := make([]Message, end-start)
	copy(out, msgs[start:end])
	return out, nil
}
