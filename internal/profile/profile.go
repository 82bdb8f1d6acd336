// Package profile is the read-only view of user profiles owned by the external
// profile store. The match engine consults it for two things only: whether a
// user is an administrator, and which users' skills complement the caller's.
package profile

import (
	"context"
	"errors"
	"sort"
)

// ErrNotFound is returned when no profile exists for the identifier.
var ErrNotFound = errors.New("profile: not found")

// Profile is the subset of the user record this service reads.
type Profile struct {
	ID            string   `json:"_id"`
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	Avatar        string   `json:"avatar"`
	SkillsOffered []string `json:"skillsOffered"`
	SkillsNeeded  []string `json:"skillsNeeded"`
	IsAdmin       bool     `json:"-"`
}

// Directory looks up profiles.
type Directory interface {
	Get(ctx context.Context, id string) (*Profile, error)

	// Suggest returns users who need what me offers (teach) and users who
	// offer what me needs (learn), excluding me, at most limit of each.
	Suggest(ctx context.Context, me *Profile, limit int) (teach, learn []Profile, err error)
}

// IsAdmin reports whether id belongs to an administrator. Unknown users are
// not administrators.
func IsAdmin(ctx context.Context, dir Directory, id string) (bool, error) {
	p, err := dir.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.IsAdmin, nil
}

// overlap counts the elements of a that also appear in b.
func overlap(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	n := 0
	for _, s := range a {
		if _, ok := set[s]; ok {
			n++
			delete(set, s)
		}
	}
	return n
}

// rank keeps candidates whose field overlaps want, ordered by overlap count
// (descending) then name, capped at limit.
func rank(candidates []Profile, excludeID string, want []string, field func(*Profile) []string, limit int) []Profile {
	type scored struct {
		p     Profile
		count int
	}
	ranked := make([]scored, 0)
	for i := range candidates {
		c := &candidates[i]
		if c.ID == excludeID {
			continue
		}
		if n := overlap(field(c), want); n > 0 {
			ranked = append(ranked, scored{*c, n})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].p.Name < ranked[j].p.Name
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Profile, len(ranked))
	for i, r := range ranked {
		out[i] = r.p
	}
	return out
}
