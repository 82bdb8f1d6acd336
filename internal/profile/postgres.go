package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresDirectory reads the users table written by the profile service.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgresDirectory creates a directory backed by the given database handle.
func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

const profileColumns = `id, name, email, avatar, skills_offered, skills_needed, is_admin`

func (d *PostgresDirectory) Get(ctx context.Context, id string) (*Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM users WHERE id = $1`

	p, err := scanProfile(d.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile: get: %w", err)
	}
	return p, nil
}

// Suggest ranks counterparts by how many skills overlap, using array overlap
// (&&) so the skills columns' GIN indexes apply.
func (d *PostgresDirectory) Suggest(ctx context.Context, me *Profile, limit int) ([]Profile, []Profile, error) {
	const teachQuery = `
		SELECT ` + profileColumns + `
		FROM users
		WHERE id <> $1 AND skills_needed && $2::text[]
		ORDER BY cardinality(ARRAY(
			SELECT unnest(skills_needed) INTERSECT SELECT unnest($2::text[])
		)) DESC, name
		LIMIT $3`

	const learnQuery = `
		SELECT ` + profileColumns + `
		FROM users
		WHERE id <> $1 AND skills_offered && $2::text[]
		ORDER BY cardinality(ARRAY(
			SELECT unnest(skills_offered) INTERSECT SELECT unnest($2::text[])
		)) DESC, name
		LIMIT $3`

	teach, err := d.list(ctx, teachQuery, me.ID, pq.Array(me.SkillsOffered), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("profile: suggest teach: %w", err)
	}
	learn, err := d.list(ctx, learnQuery, me.ID, pq.Array(me.SkillsNeeded), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("profile: suggest learn: %w", err)
	}
	return teach, learn, nil
}

func (d *PostgresDirectory) list(ctx context.Context, query string, args ...any) ([]Profile, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Avatar,
		pq.Array(&p.SkillsOffered),
		pq.Array(&p.SkillsNeeded),
		&p.IsAdmin,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
