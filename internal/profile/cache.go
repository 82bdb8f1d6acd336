package profile

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// CachePrefix is the Redis key prefix for cached profile hashes.
	CachePrefix = "profile:"

	// CacheTTL bounds how stale an admin flag or skill list may be.
	CacheTTL = 5 * time.Minute
)

// cachedProfile is the Redis hash layout of a Profile. Skill lists are JSON
// arrays so that skills may contain any character.
type cachedProfile struct {
	ID            string `redis:"id"`
	Name          string `redis:"name"`
	Email         string `redis:"email"`
	Avatar        string `redis:"avatar"`
	SkillsOffered string `redis:"skills_offered"`
	SkillsNeeded  string `redis:"skills_needed"`
	IsAdmin       bool   `redis:"is_admin"`
}

// CachedDirectory serves Get from Redis and falls back to the wrapped
// Directory on a miss. Suggest always goes to the wrapped Directory. Redis
// errors fail open to the wrapped Directory.
type CachedDirectory struct {
	next   Directory
	client *redis.Client
	ttl    time.Duration
}

// NewCachedDirectory wraps next with a Redis read-through cache.
func NewCachedDirectory(next Directory, client *redis.Client) *CachedDirectory {
	return &CachedDirectory{next: next, client: client, ttl: CacheTTL}
}

func (c *CachedDirectory) Get(ctx context.Context, id string) (*Profile, error) {
	key := CachePrefix + id

	var cp cachedProfile
	err := c.client.HGetAll(ctx, key).Scan(&cp)
	if err == nil && cp.ID != "" {
		p, derr := cp.profile()
		if derr == nil {
			return p, nil
		}
		log.Printf("[profile] cache decode %s: %v (falling back)", key, derr)
	}
	if err != nil {
		log.Printf("[profile] cache read %s: %v (falling back)", key, err)
	}

	p, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fields, err := cacheFields(p)
	if err != nil {
		log.Printf("[profile] cache encode %s: %v", key, err)
		return p, nil
	}
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[profile] cache write %s: %v", key, err)
	}
	return p, nil
}

func (c *CachedDirectory) Suggest(ctx context.Context, me *Profile, limit int) ([]Profile, []Profile, error) {
	return c.next.Suggest(ctx, me, limit)
}

// Invalidate drops the cached copy of id. The profile service announces
// edits on messaging.ProfileUpdatedSubject and the server calls this.
func (c *CachedDirectory) Invalidate(ctx context.Context, id string) error {
	return c.client.Del(ctx, CachePrefix+id).Err()
}

func cacheFields(p *Profile) (map[string]interface{}, error) {
	offered, err := json.Marshal(nonNil(p.SkillsOffered))
	if err != nil {
		return nil, err
	}
	needed, err := json.Marshal(nonNil(p.SkillsNeeded))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":             p.ID,
		"name":           p.Name,
		"email":          p.Email,
		"avatar":         p.Avatar,
		"skills_offered": string(offered),
		"skills_needed":  string(needed),
		"is_admin":       p.IsAdmin,
	}, nil
}

func (cp *cachedProfile) profile() (*Profile, error) {
	p := &Profile{
		ID:      cp.ID,
		Name:    cp.Name,
		Email:   cp.Email,
		Avatar:  cp.Avatar,
		IsAdmin: cp.IsAdmin,
	}
	if err := decodeList(cp.SkillsOffered, &p.SkillsOffered); err != nil {
		return nil, err
	}
	if err := decodeList(cp.SkillsNeeded, &p.SkillsNeeded); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeList(v string, dst *[]string) error {
	if v == "" {
		*dst = nil
		return nil
	}
	return json.Unmarshal([]byte(v), dst)
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
