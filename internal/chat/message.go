// Package chat implements direct messaging between two users: the Message
// record, its append-only stores and the Service that persists a message
// before handing it to the realtime fan-out.
package chat

import (
	"time"

	"github.com/artxchange/skillswap/internal/pairing"
)

// Message is one chat line between two users. It is immutable once stored
// except for Seen, which flips from false to true exactly once.
type Message struct {
	ID           string    `json:"_id"`
	Room         string    `json:"room"`
	Participants [2]string `json:"participants"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Text         string    `json:"text"`
	Seen         bool      `json:"seen"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Pair returns the message's participants as a canonical pair.
func (m *Message) Pair() pairing.Pair {
	return pairing.Pair{Lo: m.Participants[0], Hi: m.Participants[1]}
}

// Page selects a window of a conversation counted from the newest message.
// Skip drops that many of the newest messages; Limit keeps at most that many
// of the remainder. A zero Limit keeps everything.
type Page struct {
	Skip  int
	Limit int
}
