package match

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/artxchange/skillswap/internal/apperr"
	"github.com/artxchange/skillswap/internal/metrics"
	"github.com/artxchange/skillswap/internal/pairing"
	"github.com/artxchange/skillswap/internal/profile"
)

// Policy holds the authorization knobs that differ between deployments.
type Policy struct {
	// AdminOverride lets administrators respond to and schedule matches they
	// are not part of. Deletion is always open to administrators.
	AdminOverride bool

	// SuggestLimit caps each suggestion list.
	SuggestLimit int
}

// DefaultPolicy returns participant-only authorization and ten suggestions
// per list.
func DefaultPolicy() Policy {
	return Policy{AdminOverride: false, SuggestLimit: 10}
}

// Suggestions is the result of Suggest: people the caller can teach and
// people the caller can learn from.
type Suggestions struct {
	TeachMatches []profile.Profile `json:"teachMatches"`
	LearnMatches []profile.Profile `json:"learnMatches"`
}

// Service is the negotiation engine. It validates callers and inputs, applies
// Status transitions and relies on the Store for the uniqueness invariant.
type Service struct {
	store  Store
	dir    profile.Directory
	policy Policy
	now    func() time.Time
	token  func() string
}

// NewService creates a Service.
func NewService(store Store, dir profile.Directory, policy Policy) *Service {
	if policy.SuggestLimit <= 0 {
		policy.SuggestLimit = DefaultPolicy().SuggestLimit
	}
	return &Service{
		store:  store,
		dir:    dir,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
		token:  newRoomToken,
	}
}

// newRoomToken returns an opaque video room identifier.
func newRoomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Request opens a pending negotiation between caller and target over skill.
// If an active one already exists the returned error is a Conflict carrying
// the existing match's id and status.
func (s *Service) Request(ctx context.Context, caller, target, skill string) (*Match, error) {
	target = strings.TrimSpace(target)
	skill = strings.TrimSpace(skill)
	if target == "" || skill == "" {
		return nil, apperr.Validation("targetId & skill required")
	}
	if caller == target {
		return nil, apperr.Validation("Cannot match with yourself")
	}

	pair := pairing.Canonical(caller, target)

	// Advisory only; the store's uniqueness check decides under races.
	if existing, err := s.store.FindActive(ctx, pair, skill); err == nil {
		return nil, conflictWith(existing)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, apperr.Internal(err, "Failed to create match")
	}

	now := s.now()
	m := &Match{
		ID:              uuid.NewString(),
		Participants:    [2]string{pair.Lo, pair.Hi},
		Initiator:       caller,
		Skill:           skill,
		Status:          StatusPending,
		DurationMinutes: DefaultDurationMinutes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.store.Create(ctx, m)
	if errors.Is(err, ErrDuplicateActive) {
		existing, ferr := s.store.FindActive(ctx, pair, skill)
		if ferr != nil {
			// The winner was deleted between our insert and this read.
			return nil, apperr.Conflict("Duplicate active match")
		}
		return nil, conflictWith(existing)
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to create match")
	}

	metrics.MatchTransitions.WithLabelValues(StatusPending.String()).Inc()
	log.Printf("[match] requested id=%s initiator=%s pair=%s skill=%q", m.ID, caller, pair.Room(), skill)
	return m, nil
}

func conflictWith(existing *Match) *apperr.Error {
	return apperr.Conflict("An active match already exists").
		With("currentStatus", existing.Status.String()).
		With("matchId", existing.ID)
}

// Respond accepts or rejects a pending match. Only participants may respond
// (administrators too under AdminOverride), and the initiator may only
// withdraw by rejecting.
func (s *Service) Respond(ctx context.Context, caller, matchID, action string) (*Match, error) {
	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParticipant(ctx, caller, m, s.policy.AdminOverride); err != nil {
		return nil, err
	}

	act, err := ParseAction(action)
	if err != nil {
		return nil, err
	}
	if act == ActionAccept && caller == m.Initiator {
		return nil, apperr.Authorization("Initiator cannot accept their own request")
	}

	next, err := m.Status.Respond(act)
	if err != nil {
		return nil, err
	}

	prev := m.Status
	m.Status = next
	m.UpdatedAt = s.now()
	if err := s.save(ctx, m, prev); err != nil {
		return nil, err
	}

	metrics.MatchTransitions.WithLabelValues(next.String()).Inc()
	log.Printf("[match] %s id=%s by=%s with=%s", next, m.ID, caller, m.Pair().Other(caller))
	return m, nil
}

// Schedule sets or replaces the session time of an accepted match and issues
// a fresh video room token. A zero duration means DefaultDurationMinutes.
func (s *Service) Schedule(ctx context.Context, caller, matchID, whenISO string, durationMinutes int) (*Match, error) {
	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParticipant(ctx, caller, m, s.policy.AdminOverride); err != nil {
		return nil, err
	}
	if _, err := m.Status.Schedule(); err != nil {
		return nil, err
	}

	when, err := time.Parse(time.RFC3339, strings.TrimSpace(whenISO))
	if err != nil {
		return nil, apperr.Validation("whenISO must be an RFC 3339 timestamp")
	}
	if durationMinutes == 0 {
		durationMinutes = DefaultDurationMinutes
	}
	if durationMinutes < 0 || durationMinutes > MaxDurationMinutes {
		return nil, apperr.Validation("durationMin must be between 1 and %d", MaxDurationMinutes)
	}

	when = when.UTC()
	m.ScheduledFor = &when
	m.DurationMinutes = durationMinutes
	m.VideoRoomToken = s.token()
	m.UpdatedAt = s.now()
	if err := s.save(ctx, m, StatusAccepted); err != nil {
		return nil, err
	}

	log.Printf("[match] scheduled id=%s for=%s duration=%dm by=%s", m.ID, when.Format(time.RFC3339), durationMinutes, caller)
	return m, nil
}

// Complete marks an accepted match as completed. It is the hook for the
// external collaborator that knows when a session took place; it performs no
// caller authorization.
func (s *Service) Complete(ctx context.Context, matchID string) (*Match, error) {
	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	next, err := m.Status.Complete()
	if err != nil {
		return nil, err
	}

	prev := m.Status
	m.Status = next
	m.UpdatedAt = s.now()
	if err := s.save(ctx, m, prev); err != nil {
		return nil, err
	}

	metrics.MatchTransitions.WithLabelValues(next.String()).Inc()
	return m, nil
}

// List returns the caller's matches, most recently updated first.
func (s *Service) List(ctx context.Context, caller string) ([]Match, error) {
	out, err := s.store.ListFor(ctx, caller)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to load matches")
	}
	return out, nil
}

// WithUser returns the most recent match between caller and other. The
// boolean is false when the two have never negotiated.
func (s *Service) WithUser(ctx context.Context, caller, other string) (*Match, bool, error) {
	if strings.TrimSpace(other) == "" {
		return nil, false, apperr.Validation("user id required")
	}
	m, err := s.store.Latest(ctx, pairing.Canonical(caller, other))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Internal(err, "Failed to fetch match")
	}
	return m, true, nil
}

// Delete removes a match in any status. Participants and administrators may
// delete.
func (s *Service) Delete(ctx context.Context, caller, matchID string) error {
	m, err := s.load(ctx, matchID)
	if err != nil {
		return err
	}
	if err := s.authorizeParticipant(ctx, caller, m, true); err != nil {
		if apperr.Is(err, apperr.KindAuthorization) {
			return apperr.Authorization("Not authorized")
		}
		return err
	}

	err = s.store.Delete(ctx, m.ID)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("Match not found")
	}
	if err != nil {
		return apperr.Internal(err, "Failed to delete match")
	}

	log.Printf("[match] deleted id=%s by=%s", m.ID, caller)
	return nil
}

// Suggest finds users whose skills complement the caller's.
func (s *Service) Suggest(ctx context.Context, caller string) (*Suggestions, error) {
	me, err := s.dir.Get(ctx, caller)
	if errors.Is(err, profile.ErrNotFound) {
		return &Suggestions{TeachMatches: []profile.Profile{}, LearnMatches: []profile.Profile{}}, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "Server error")
	}

	teach, learn, err := s.dir.Suggest(ctx, me, s.policy.SuggestLimit)
	if err != nil {
		return nil, apperr.Internal(err, "Server error")
	}
	return &Suggestions{TeachMatches: teach, LearnMatches: learn}, nil
}

func (s *Service) load(ctx context.Context, matchID string) (*Match, error) {
	if _, err := uuid.Parse(matchID); err != nil {
		return nil, apperr.NotFound("Match not found")
	}
	m, err := s.store.Get(ctx, matchID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("Match not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to load match")
	}
	return m, nil
}

// save persists m if its stored status is still expect, translating store
// errors into the caller-facing taxonomy.
func (s *Service) save(ctx context.Context, m *Match, expect Status) error {
	err := s.store.Update(ctx, m, expect)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("Match not found")
	case errors.Is(err, ErrStaleStatus):
		return apperr.State("Match changed while updating, reload and retry")
	case errors.Is(err, ErrDuplicateActive):
		return apperr.Conflict("Duplicate active match")
	default:
		return apperr.Internal(err, "Failed to update match")
	}
}

func (s *Service) authorizeParticipant(ctx context.Context, caller string, m *Match, allowAdmin bool) error {
	if m.HasParticipant(caller) {
		return nil
	}
	if allowAdmin {
		admin, err := profile.IsAdmin(ctx, s.dir, caller)
		if err != nil {
			return apperr.Internal(err, "Failed to check permissions")
		}
		if admin {
			return nil
		}
	}
	return apperr.Authorization("Not a participant")
}
