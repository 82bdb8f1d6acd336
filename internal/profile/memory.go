package profile

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-process Directory used in tests and local runs.
type MemoryDirectory struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewMemoryDirectory creates a directory seeded with profiles.
func NewMemoryDirectory(profiles ...Profile) *MemoryDirectory {
	d := &MemoryDirectory{profiles: make(map[string]Profile)}
	for _, p := range profiles {
		d.profiles[p.ID] = p
	}
	return d
}

// Put adds or replaces a profile.
func (d *MemoryDirectory) Put(p Profile) {
	d.mu.Lock()
	d.profiles[p.ID] = p
	d.mu.Unlock()
}

func (d *MemoryDirectory) Get(_ context.Context, id string) (*Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (d *MemoryDirectory) Suggest(_ context.Context, me *Profile, limit int) ([]Profile, []Profile, error) {
	d.mu.RLock()
	all := make([]Profile, 0, len(d.profiles))
	for _, p := range d.profiles {
		all = append(all, p)
	}
	d.mu.RUnlock()

	teach := rank(all, me.ID, me.SkillsOffered, func(p *Profile) []string { return p.SkillsNeeded }, limit)
	learn := rank(all, me.ID, me.SkillsNeeded, func(p *Profile) []string { return p.SkillsOffered }, limit)
	return teach, learn, nil
}
