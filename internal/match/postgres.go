package match

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/artxchange/skillswap/internal/pairing"
)

// activeIndex is the partial unique index on (participant_lo, participant_hi,
// skill) WHERE status IN ('pending','accepted'). See
// internal/database/migrations.
const activeIndex = "matches_active_pair_skill"

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const matchColumns = `id, participant_lo, participant_hi, initiator, skill, status,
	scheduled_for, duration_minutes, video_room_token, created_at, updated_at`

// PostgresStore keeps matches in the matches table. The partial unique index
// is the source of truth for the active-match invariant.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, m *Match) error {
	const query = `
		INSERT INTO matches (` + matchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.ExecContext(ctx, query,
		m.ID,
		m.Participants[0],
		m.Participants[1],
		m.Initiator,
		m.Skill,
		m.Status.String(),
		m.ScheduledFor,
		m.DurationMinutes,
		m.VideoRoomToken,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if isActiveViolation(err) {
		return ErrDuplicateActive
	}
	if err != nil {
		return fmt.Errorf("match: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Match, error) {
	const query = `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	return s.queryOne(ctx, "get", query, id)
}

func (s *PostgresStore) FindActive(ctx context.Context, pair pairing.Pair, skill string) (*Match, error) {
	const query = `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE participant_lo = $1 AND participant_hi = $2 AND skill = $3
		  AND status IN ('pending', 'accepted')`
	return s.queryOne(ctx, "find active", query, pair.Lo, pair.Hi, skill)
}

func (s *PostgresStore) Latest(ctx context.Context, pair pairing.Pair) (*Match, error) {
	const query = `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE participant_lo = $1 AND participant_hi = $2
		ORDER BY updated_at DESC, created_at DESC, id DESC
		LIMIT 1`
	return s.queryOne(ctx, "latest", query, pair.Lo, pair.Hi)
}

func (s *PostgresStore) ListFor(ctx context.Context, userID string) ([]Match, error) {
	const query = `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE participant_lo = $1 OR participant_hi = $1
		ORDER BY updated_at DESC, created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("match: list: %w", err)
	}
	defer rows.Close()

	out := make([]Match, 0)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("match: list scan: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("match: list rows: %w", err)
	}
	return out, nil
}

// Update is a conditional write: the row only changes if its status is still
// expect. A miss is disambiguated into ErrNotFound or ErrStaleStatus.
func (s *PostgresStore) Update(ctx context.Context, m *Match, expect Status) error {
	const query = `
		UPDATE matches
		SET status = $3, scheduled_for = $4, duration_minutes = $5,
		    video_room_token = $6, updated_at = $7
		WHERE id = $1 AND status = $2`

	res, err := s.db.ExecContext(ctx, query,
		m.ID,
		expect.String(),
		m.Status.String(),
		m.ScheduledFor,
		m.DurationMinutes,
		m.VideoRoomToken,
		m.UpdatedAt,
	)
	if isActiveViolation(err) {
		return ErrDuplicateActive
	}
	if err != nil {
		return fmt.Errorf("match: update: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("match: update rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := s.Get(ctx, m.ID); err != nil {
		return err
	}
	return ErrStaleStatus
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("match: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("match: delete rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) queryOne(ctx context.Context, op, query string, args ...any) (*Match, error) {
	m, err := scanMatch(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("match: %s: %w", op, err)
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*Match, error) {
	var (
		m         Match
		status    string
		scheduled sql.NullTime
	)
	err := row.Scan(
		&m.ID,
		&m.Participants[0],
		&m.Participants[1],
		&m.Initiator,
		&m.Skill,
		&status,
		&scheduled,
		&m.DurationMinutes,
		&m.VideoRoomToken,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if m.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	if scheduled.Valid {
		t := scheduled.Time
		m.ScheduledFor = &t
	}
	return &m, nil
}

func isActiveViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) &&
		pqErr.Code == uniqueViolation &&
		pqErr.Constraint == activeIndex
}
