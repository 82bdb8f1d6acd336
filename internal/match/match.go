// Package match implements skill-exchange negotiations between two users:
// the Match record, its status state machine, the stores that enforce the
// one-active-negotiation-per-pair-and-skill invariant, and the Service that
// applies caller-authorized transitions.
package match

import (
	"time"

	"github.com/artxchange/skillswap/internal/pairing"
)

// DefaultDurationMinutes is used when a schedule request omits the duration.
const DefaultDurationMinutes = 60

// MaxDurationMinutes caps a single scheduled session.
const MaxDurationMinutes = 8 * 60

// Match is one negotiation between exactly two users over one skill.
// Participants are always stored in canonical order.
type Match struct {
	ID              string     `json:"_id"`
	Participants    [2]string  `json:"participants"`
	Initiator       string     `json:"initiator"`
	Skill           string     `json:"skill"`
	Status          Status     `json:"status"`
	ScheduledFor    *time.Time `json:"scheduledFor"`
	DurationMinutes int        `json:"durationMinutes"`
	VideoRoomToken  string     `json:"videoRoomToken"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Pair returns the participants as a canonical pair.
func (m *Match) Pair() pairing.Pair {
	return pairing.Pair{Lo: m.Participants[0], Hi: m.Participants[1]}
}

// HasParticipant reports whether userID is one of the two participants.
func (m *Match) HasParticipant(userID string) bool {
	return m.Pair().Has(userID)
}
