package match

import (
	"fmt"

	"github.com/artxchange/skillswap/internal/apperr"
)

// Status is the negotiation state of a Match. The zero value is invalid; only
// the five named states exist.
type Status uint8

const (
	StatusPending Status = iota + 1
	StatusAccepted
	StatusRejected
	StatusCompleted
	StatusExpired
)

var statusNames = [...]string{
	StatusPending:   "pending",
	StatusAccepted:  "accepted",
	StatusRejected:  "rejected",
	StatusCompleted: "completed",
	StatusExpired:   "expired",
}

func (s Status) String() string {
	if s.Valid() {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Valid reports whether s is one of the five named states.
func (s Status) Valid() bool {
	return s >= StatusPending && s <= StatusExpired
}

// Active reports whether s counts toward the one-active-match-per-pair-and-skill
// invariant.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusAccepted
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted || s == StatusExpired
}

// ParseStatus parses the wire name of a status.
func ParseStatus(v string) (Status, error) {
	for i, name := range statusNames {
		if i != 0 && name == v {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("match: unknown status %q", v)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("match: cannot marshal invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Action is the answer a participant gives to a pending request.
type Action uint8

const (
	ActionAccept Action = iota + 1
	ActionReject
)

// ParseAction accepts "accept" or "reject".
func ParseAction(v string) (Action, error) {
	switch v {
	case "accept":
		return ActionAccept, nil
	case "reject":
		return ActionReject, nil
	}
	return 0, apperr.Validation("Invalid action")
}

func (a Action) String() string {
	switch a {
	case ActionAccept:
		return "accept"
	case ActionReject:
		return "reject"
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// Respond returns the state reached by answering a request with a.
func (s Status) Respond(a Action) (Status, error) {
	if s != StatusPending {
		return s, apperr.State("Match is %s, not pending", s)
	}
	switch a {
	case ActionAccept:
		return StatusAccepted, nil
	case ActionReject:
		return StatusRejected, nil
	}
	return s, apperr.Validation("Invalid action")
}

// Schedule checks that scheduling is allowed from s. Scheduling annotates an
// accepted match and leaves its status unchanged.
func (s Status) Schedule() (Status, error) {
	if s != StatusAccepted {
		return s, apperr.State("Match not accepted yet")
	}
	return s, nil
}

// Complete returns the state reached when an external collaborator reports
// the exchange as done.
func (s Status) Complete() (Status, error) {
	if s != StatusAccepted {
		return s, apperr.State("Match is %s, only accepted matches can complete", s)
	}
	return StatusCompleted, nil
}

// Expire returns the state reached when an active match lapses. Nothing in
// this service triggers it on its own.
func (s Status) Expire() (Status, error) {
	if !s.Active() {
		return s, apperr.State("Match is %s, only active matches can expire", s)
	}
	return StatusExpired, nil
}
