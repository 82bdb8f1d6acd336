package chat

import (
	"context"
	"database/sql"
	"fmt"
)

const messageColumns = `id, room, participant_lo, participant_hi, from_user, to_user, text, seen, created_at`

// PostgresStore keeps messages in the messages table. The seq column gives a
// total order within a room that survives equal created_at values.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, m *Message) error {
	const query = `
		INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.ExecContext(ctx, query,
		m.ID,
		m.Room,
		m.Participants[0],
		m.Participants[1],
		m.From,
		m.To,
		m.Text,
		m.Seen,
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("chat: append: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkSeen(ctx context.Context, from, to string) (int64, error) {
	const query = `
		UPDATE messages SET seen = TRUE
		WHERE from_user = $1 AND to_user = $2 AND NOT seen`

	res, err := s.db.ExecContext(ctx, query, from, to)
	if err != nil {
		return 0, fmt.Errorf("chat: mark seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("chat: mark seen rows: %w", err)
	}
	return n, nil
}

// History selects the newest messages first so OFFSET and LIMIT count from the
// end of the conversation, then flips the window back to oldest first. A NULL
// limit is LIMIT ALL.
func (s *PostgresStore) History(ctx context.Context, room string, page Page) ([]Message, error) {
	const query = `
		SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + `, seq
			FROM messages
			WHERE room = $1
			ORDER BY seq DESC
			OFFSET $2
			LIMIT $3
		) window_rows
		ORDER BY seq ASC`

	limit := sql.NullInt64{Int64: int64(page.Limit), Valid: page.Limit > 0}
	rows, err := s.db.QueryContext(ctx, query, room, page.Skip, limit)
	if err != nil {
		return nil, fmt.Errorf("chat: history: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID,
			&m.Room,
			&m.Participants[0],
			&m.Participants[1],
			&m.From,
			&m.To,
			&m.Text,
			&m.Seen,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("chat: history scan: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: history rows: %w", err)
	}
	return out, nil
}
