package session

import (
	"errors"
	"testing"

	"github.com/louisbranch/roundtable/internal/services/game/domain/identity"
	"github.com/louisbranch/roundtable/internal/services/game/domain/random"
)

func newTestManager(opts ...Option) (*Manager, *identity.Resolver) {
	resolver := identity.NewResolver(identity.NewAllocator(100))
	return NewManager(resolver, opts...), resolver
}

func TestStartBindsStableIDAndSeeds(t *testing.T) {
	m, resolver := newTestManager()
	s, err := m.Start("battle-007", 1, "combat", 3)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Status != StatusActive {
		t.Fatalf("status = %v, want %v", s.Status, StatusActive)
	}
	handle, ok := resolver.Resolve("battle-007")
	if !ok || handle != s.Handle {
		t.Fatalf("resolve = %v, %v, want %v", handle, ok, s.Handle)
	}
	if got, want := s.Rng.Seed(), random.SessionSeed("battle-007", 1); got != want {
		t.Fatalf("seed = %d, want %d", got, want)
	}
	if s.StartedTick != 3 || s.Kind != "combat" {
		t.Fatalf("session = %+v, want started at 3 with kind combat", s)
	}
}

func TestStartRejectsDuplicateAndBlank(t *testing.T) {
	m, _ := newTestManager()
	if _, err := m.Start("battle-007", 1, "combat", 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := m.Start("battle-007", 2, "combat", 0); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("start duplicate = %v, want %v", err, ErrSessionExists)
	}
	if _, err := m.Start("  ", 1, "combat", 0); !errors.Is(err, ErrSessionIDRequired) {
		t.Fatalf("start blank = %v, want %v", err, ErrSessionIDRequired)
	}
	if _, err := NewManager(nil).Start("x", 1, "combat", 0); !errors.Is(err, ErrResolverRequired) {
		t.Fatalf("start without resolver = %v, want %v", err, ErrResolverRequired)
	}
}

func TestSessionsOwnIndependentStreams(t *testing.T) {
	m, _ := newTestManager()
	a, err := m.Start("org-A", 3, "settlement", 0)
	if err != nil {
		t.Fatalf("start org-A: %v", err)
	}
	b, err := m.Start("org-B", 3, "settlement", 0)
	if err != nil {
		t.Fatalf("start org-B: %v", err)
	}
	if a.Rng.Seed() == b.Rng.Seed() {
		t.Fatal("expected distinct seeds for org-A and org-B")
	}

	alone := random.New(random.SessionSeed("org-A", 3))
	for i := 0; i < 50; i++ {
		b.Rng.Range(0, 1000)
		if got, want := a.Rng.Range(0, 1000), alone.Range(0, 1000); got != want {
			t.Fatalf("draw %d = %d, want %d", i, got, want)
		}
	}
}

func TestSeedCollisionReseedsDeterministically(t *testing.T) {
	constant := func(string, uint64) uint64 { return 42 }
	run := func() (uint64, uint64) {
		m, _ := newTestManager(WithSeedFunc(constant))
		first, err := m.Start("org-A", 3, "settlement", 0)
		if err != nil {
			t.Fatalf("start org-A: %v", err)
		}
		second, err := m.Start("org-B", 3, "settlement", 0)
		if err != nil {
			t.Fatalf("start org-B: %v", err)
		}
		if first.Rng.Seed() == second.Rng.Seed() {
			t.Fatal("expected reseed on collision")
		}
		if second.ReseedAttempts != 1 {
			t.Fatalf("reseed attempts = %d, want 1", second.ReseedAttempts)
		}
		return first.Rng.Seed(), second.Rng.Seed()
	}
	a1, b1 := run()
	a2, b2 := run()
	if a1 != a2 || b1 != b2 {
		t.Fatalf("seeds differ between runs: (%d,%d) vs (%d,%d)", a1, b1, a2, b2)
	}
}

func TestSeedExhaustionRejectsStart(t *testing.T) {
	constant := func(string, uint64) uint64 { return 42 }
	m, resolver := newTestManager(WithSeedFunc(constant))
	m.resalt = func(seed, attempt uint64) uint64 { return seed }
	if _, err := m.Start("org-A", 3, "settlement", 0); err != nil {
		t.Fatalf("start org-A: %v", err)
	}
	_, err := m.Start("org-B", 3, "settlement", 0)
	if !errors.Is(err, ErrSeedExhausted) {
		t.Fatalf("start org-B = %v, want %v", err, ErrSeedExhausted)
	}
	if m.Alive("org-B") {
		t.Fatal("expected org-B not to be live")
	}
	if _, ok := resolver.Resolve("org-B"); ok {
		t.Fatal("expected org-B handle released")
	}
	if m.Len() != 1 {
		t.Fatalf("live sessions = %d, want 1", m.Len())
	}
}

func TestSeedReleasedOnEnd(t *testing.T) {
	constant := func(string, uint64) uint64 { return 7 }
	m, _ := newTestManager(WithSeedFunc(constant))
	if _, err := m.Start("org-A", 1, "settlement", 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.End("org-A", 1)
	s, err := m.Start("org-B", 1, "settlement", 2)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.ReseedAttempts != 0 || s.Rng.Seed() != 7 {
		t.Fatalf("seed = %d after %d attempts, want 7 with no reseed", s.Rng.Seed(), s.ReseedAttempts)
	}
}

func TestCompleteThenSweepAfterGraceTick(t *testing.T) {
	m, resolver := newTestManager()
	if _, err := m.Start("org-A", 3, "settlement", 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Complete("org-A", 5); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if removed := m.Sweep(5); len(removed) != 0 {
		t.Fatalf("sweep at completion tick removed %v", removed)
	}
	if !m.Alive("org-A") {
		t.Fatal("expected session alive during grace tick")
	}
	removed := m.Sweep(6)
	if len(removed) != 1 || removed[0].ID != "org-A" || removed[0].Status != StatusCompleted {
		t.Fatalf("removed = %+v, want org-A completed", removed)
	}
	if _, ok := resolver.Resolve("org-A"); ok {
		t.Fatal("expected session handle released")
	}
	if archive := m.Archive(); len(archive) != 1 || archive[0].EndedTick != 6 {
		t.Fatalf("archive = %+v, want one entry ended at 6", archive)
	}
}

func TestCompleteUnknownSession(t *testing.T) {
	m, _ := newTestManager()
	if err := m.Complete("ghost", 1); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("complete = %v, want %v", err, ErrSessionNotFound)
	}
	if _, ok := m.End("ghost", 1); ok {
		t.Fatal("expected end of unknown session to report false")
	}
}

func TestActiveSortedByID(t *testing.T) {
	m, _ := newTestManager()
	for _, id := range []string{"org-B", "battle-007", "org-A"} {
		if _, err := m.Start(id, 1, "x", 0); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
	}
	active := m.Active()
	want := []string{"battle-007", "org-A", "org-B"}
	for i, s := range active {
		if s.ID != want[i] {
			t.Fatalf("active[%d] = %s, want %s", i, s.ID, want[i])
		}
	}
}
