package chat

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/artxchange/skillswap/internal/apperr"
	"github.com/artxchange/skillswap/internal/metrics"
	"github.com/artxchange/skillswap/internal/pairing"
)

// Fanout delivers a stored message to every live channel of the given users.
type Fanout interface {
	Fanout(ctx context.Context, userIDs []string, msg *Message) error
}

// Service persists chat messages and then hands them to the Fanout. A message
// that failed to persist is never delivered.
type Service struct {
	store  Store
	fanout Fanout
	lanes  *Lanes
	now    func() time.Time
}

// ServiceConfig holds tunable parameters for the chat Service.
type ServiceConfig struct {
	Lanes     int // number of ordered persistence lanes
	LaneDepth int // queued events per lane before SendAsync blocks
}

// DefaultServiceConfig returns a ServiceConfig with sensible production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Lanes:     32,
		LaneDepth: 256,
	}
}

// NewService creates a Service and starts its lanes. Call Close to drain them.
func NewService(store Store, fanout Fanout, config ServiceConfig) *Service {
	return &Service{
		store:  store,
		fanout: fanout,
		lanes:  NewLanes(config.Lanes, config.LaneDepth),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Send validates and stores a message from one user to another, then fans it
// out to both users. A fan-out failure is logged and does not undo the send.
func (s *Service) Send(ctx context.Context, from, to, text string) (*Message, error) {
	start := time.Now()

	to = strings.TrimSpace(to)
	if to == "" {
		return nil, apperr.Validation("recipient required")
	}
	if to == from {
		return nil, apperr.Validation("Cannot message yourself")
	}
	text, err := NormalizeText(text)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	pair := pairing.Canonical(from, to)
	m := &Message{
		ID:           uuid.NewString(),
		Room:         pair.Room(),
		Participants: [2]string{pair.Lo, pair.Hi},
		From:         from,
		To:           to,
		Text:         text,
		Seen:         false,
		CreatedAt:    s.now(),
	}

	if err := s.store.Append(ctx, m); err != nil {
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		return nil, apperr.Internal(err, "Failed to save message")
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()

	if s.fanout != nil {
		if err := s.fanout.Fanout(ctx, []string{to, from}, m); err != nil {
			log.Printf("[chat] fanout failed id=%s room=%s: %v", m.ID, m.Room, err)
		}
	}

	metrics.MessageLatency.Observe(time.Since(start).Seconds())
	return m, nil
}

// MarkSeen marks everything partner sent to caller as seen. It is idempotent
// and returns the number of messages that changed.
func (s *Service) MarkSeen(ctx context.Context, caller, partner string) (int64, error) {
	partner = strings.TrimSpace(partner)
	if partner == "" {
		return 0, apperr.Validation("partnerId required")
	}
	n, err := s.store.MarkSeen(ctx, partner, caller)
	if err != nil {
		return 0, apperr.Internal(err, "Failed to mark messages seen")
	}
	return n, nil
}

// History returns the conversation between caller and partner, oldest first.
func (s *Service) History(ctx context.Context, caller, partner string, page Page) ([]Message, error) {
	partner = strings.TrimSpace(partner)
	if partner == "" {
		return nil, apperr.Validation("partnerId required")
	}
	if page.Skip < 0 || page.Limit < 0 {
		return nil, apperr.Validation("skip and limit must not be negative")
	}

	out, err := s.store.History(ctx, pairing.RoomID(caller, partner), page)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to load messages")
	}
	return out, nil
}

// SendAsync runs Send on the sender's lane so that one sender's messages are
// stored and delivered in the order they were submitted. done, if non-nil,
// receives the result on the lane goroutine. It reports false if the Service
// is closed.
func (s *Service) SendAsync(from, to, text string, done func(*Message, error)) bool {
	return s.lanes.Submit(from, func() {
		m, err := s.Send(context.Background(), from, to, text)
		if done != nil {
			done(m, err)
		}
	})
}

// MarkSeenAsync runs MarkSeen on the caller's lane, after any of the caller's
// earlier submissions.
func (s *Service) MarkSeenAsync(caller, partner string, done func(int64, error)) bool {
	return s.lanes.Submit(caller, func() {
		n, err := s.MarkSeen(context.Background(), caller, partner)
		if done != nil {
			done(n, err)
		}
	})
}

// Close drains queued async work and stops the lanes.
func (s *Service) Close() {
	s.lanes.Close()
}
