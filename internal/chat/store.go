package chat

import "context"

// Store persists messages. Messages are never deleted.
type Store interface {
	// Append stores m. m.Room and m.Participants must already be canonical.
	Append(ctx context.Context, m *Message) error

	// MarkSeen flips every unseen message sent by from to to, returning how
	// many changed.
	MarkSeen(ctx context.Context, from, to string) (int64, error)

	// History returns the page of room's messages, oldest first.
	History(ctx context.Context, room string, page Page) ([]Message, error)
}
