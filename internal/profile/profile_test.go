package profile

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

func seededDirectory() *MemoryDirectory {
	return NewMemoryDirectory(
		Profile{ID: "alice", Name: "Alice", SkillsOffered: []string{"painting", "sketching"}, SkillsNeeded: []string{"guitar"}},
		Profile{ID: "bob", Name: "Bob", SkillsOffered: []string{"guitar"}, SkillsNeeded: []string{"painting"}},
		Profile{ID: "carol", Name: "Carol", SkillsOffered: []string{"guitar", "piano"}, SkillsNeeded: []string{"painting", "sketching"}},
		Profile{ID: "dave", Name: "Dave", SkillsOffered: []string{"cooking"}, SkillsNeeded: []string{"cooking"}},
		Profile{ID: "root", Name: "Root", IsAdmin: true},
	)
}

func TestMemorySuggest_RanksByOverlapAndExcludesSelf(t *testing.T) {
	dir := seededDirectory()
	me, _ := dir.Get(context.Background(), "alice")

	teach, learn, err := dir.Suggest(context.Background(), me, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(teach) != 2 {
		t.Fatalf("expected 2 teach matches, got %d: %+v", len(teach), teach)
	}
	// carol needs both painting and sketching, bob only painting.
	if teach[0].ID != "carol" || teach[1].ID != "bob" {
		t.Errorf("unexpected teach order: %s, %s", teach[0].ID, teach[1].ID)
	}

	if len(learn) != 2 {
		t.Fatalf("expected 2 learn matches, got %d", len(learn))
	}
	for _, p := range append(teach, learn...) {
		if p.ID == "alice" {
			t.Error("suggestions must not include the caller")
		}
		if p.ID == "dave" {
			t.Error("dave shares no skills with alice")
		}
	}
}

func TestMemorySuggest_Limit(t *testing.T) {
	dir := seededDirectory()
	me, _ := dir.Get(context.Background(), "alice")

	teach, learn, err := dir.Suggest(context.Background(), me, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(teach) != 1 || len(learn) != 1 {
		t.Fatalf("expected 1 of each, got teach=%d learn=%d", len(teach), len(learn))
	}
}

func TestIsAdmin(t *testing.T) {
	dir := seededDirectory()
	ctx := context.Background()

	tests := []struct {
		id   string
		want bool
	}{
		{"root", true},
		{"alice", false},
		{"nobody", false},
	}
	for _, tt := range tests {
		got, err := IsAdmin(ctx, dir, tt.id)
		if err != nil {
			t.Fatalf("IsAdmin(%q) error: %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("IsAdmin(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestOverlap(t *testing.T) {
	cases := []struct {
		a, b []string
		want int
	}{
		{nil, []string{"x"}, 0},
		{[]string{"x", "y"}, []string{"y", "z"}, 1},
		{[]string{"x", "x"}, []string{"x"}, 1},
		{[]string{"a", "b"}, []string{"b", "a"}, 2},
	}
	for _, c := range cases {
		if got := overlap(c.a, c.b); got != c.want {
			t.Errorf("overlap(%v,%v) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Redis-backed cache (requires Redis on localhost:6379)
// ---------------------------------------------------------------------------

func TestCachedDirectory_ReadThrough(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		client.Del(ctx, CachePrefix+"root", CachePrefix+"carol")
		client.Close()
	})

	backing := seededDirectory()
	cached := NewCachedDirectory(backing, client)
	_ = cached.Invalidate(ctx, "root")
	_ = cached.Invalidate(ctx, "carol")

	p, err := cached.Get(ctx, "carol")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if len(p.SkillsOffered) != 2 {
		t.Errorf("expected 2 offered skills, got %v", p.SkillsOffered)
	}

	// Change the backing record; the cached copy is still served.
	backing.Put(Profile{ID: "root", Name: "Root", IsAdmin: true})
	if admin, _ := IsAdmin(ctx, cached, "root"); !admin {
		t.Fatal("expected root to be admin")
	}
	backing.Put(Profile{ID: "root", Name: "Root", IsAdmin: false})
	if admin, _ := IsAdmin(ctx, cached, "root"); !admin {
		t.Error("expected cached admin flag to be served")
	}

	if _, err := cached.Get(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCachedProfile_SkillsWithCommas(t *testing.T) {
	in := &Profile{
		ID:            "erin",
		Name:          "Erin",
		SkillsOffered: []string{"oil painting, acrylic", "guitar"},
		SkillsNeeded:  []string{`say "hi", in French`},
	}
	fields, err := cacheFields(in)
	if err != nil {
		t.Fatalf("cacheFields() error: %v", err)
	}
	cp := cachedProfile{
		ID:            fields["id"].(string),
		Name:          fields["name"].(string),
		SkillsOffered: fields["skills_offered"].(string),
		SkillsNeeded:  fields["skills_needed"].(string),
	}
	out, err := cp.profile()
	if err != nil {
		t.Fatalf("profile() error: %v", err)
	}
	if len(out.SkillsOffered) != 2 || out.SkillsOffered[0] != "oil painting, acrylic" || out.SkillsOffered[1] != "guitar" {
		t.Errorf("offered skills corrupted: %q", out.SkillsOffered)
	}
	if len(out.SkillsNeeded) != 1 || out.SkillsNeeded[0] != `say "hi", in French` {
		t.Errorf("needed skills corrupted: %q", out.SkillsNeeded)
	}
}

func TestCachedDirectory_SkillsWithCommasThroughRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		client.Del(ctx, CachePrefix+"erin")
		client.Close()
	})

	backing := seededDirectory()
	backing.Put(Profile{ID: "erin", Name: "Erin", SkillsOffered: []string{"oil painting, acrylic"}})
	cached := NewCachedDirectory(backing, client)
	_ = cached.Invalidate(ctx, "erin")

	if _, err := cached.Get(ctx, "erin"); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	// Second read is served from Redis.
	p, err := cached.Get(ctx, "erin")
	if err != nil {
		t.Fatalf("cached Get() error: %v", err)
	}
	if len(p.SkillsOffered) != 1 || p.SkillsOffered[0] != "oil painting, acrylic" {
		t.Errorf("expected skill to survive the cache, got %q", p.SkillsOffered)
	}

	// Invalidate makes the next read see the backing change.
	backing.Put(Profile{ID: "erin", Name: "Erin", SkillsOffered: []string{"ceramics"}})
	if err := cached.Invalidate(ctx, "erin"); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	p, _ = cached.Get(ctx, "erin")
	if len(p.SkillsOffered) != 1 || p.SkillsOffered[0] != "ceramics" {
		t.Errorf("expected fresh skills after Invalidate, got %q", p.SkillsOffered)
	}
}
