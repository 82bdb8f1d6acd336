package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/artxchange/skillswap/internal/chat"
	"github.com/artxchange/skillswap/internal/protocol"
)

// Publisher publishes to per-user inbox subjects.
type Publisher interface {
	PublishInbox(userID string, data []byte) error
}

// Fanout implements chat.Fanout over the message bus. Every node holding a
// socket for a target user is subscribed to that user's inbox, so one publish
// per user reaches all of the user's devices.
type Fanout struct {
	pub Publisher
}

// NewFanout creates a Fanout publishing through pub.
func NewFanout(pub Publisher) *Fanout {
	return &Fanout{pub: pub}
}

var _ chat.Fanout = (*Fanout)(nil)

// Fanout publishes msg as a chat:new event to each distinct user in userIDs.
// It tries every user and returns the joined publish errors.
func (f *Fanout) Fanout(_ context.Context, userIDs []string, msg *chat.Message) error {
	data, err := protocol.NewServerMessage(protocol.TypeChatNew, msg)
	if err != nil {
		return fmt.Errorf("gateway: encode chat:new: %w", err)
	}

	var errs []error
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if err := f.pub.PublishInbox(id, data); err != nil {
			errs = append(errs, fmt.Errorf("gateway: publish inbox %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
