package random

import (
	"errors"
	"fmt"
	"testing"
)

func TestSessionSeedIsStable(t *testing.T) {
	first := SessionSeed("battle-007", 1)
	second := SessionSeed("battle-007", 1)
	if first != second {
		t.Fatalf("seed = %d, want %d", second, first)
	}
}

func TestSessionSeedDiffersAcrossSessions(t *testing.T) {
	orgA := SessionSeed("org-A", 3)
	orgB := SessionSeed("org-B", 3)
	if orgA == orgB {
		t.Fatalf("org-A and org-B share seed %d", orgA)
	}
	if SessionSeed("org-A", 3) == SessionSeed("org-A", 4) {
		t.Fatal("expected sequence number to change the seed")
	}
}

func TestSessionSeedLengthPrefixAvoidsConcatenationClash(t *testing.T) {
	if SessionSeed("ab", 1) == SessionSeed("a", 1) {
		t.Fatal("expected distinct seeds for distinct ids")
	}
	if SessionSeed("", 0) == SessionSeed("", 1) {
		t.Fatal("expected distinct seeds for distinct sequences")
	}
}

func TestSessionSeedUniquenessProperty(t *testing.T) {
	gen := New(42)
	seen := make(map[uint64]string, 20000)
	pairs := make(map[string]struct{}, 20000)
	for i := 0; i < 20000; i++ {
		id := fmt.Sprintf("session-%d-%d", gen.Range(0, 5000), gen.Range(0, 1<<20))
		seq := uint64(gen.Range(0, 64))
		key := fmt.Sprintf("%s#%d", id, seq)
		if _, dup := pairs[key]; dup {
			continue
		}
		pairs[key] = struct{}{}
		seed := SessionSeed(id, seq)
		if other, ok := seen[seed]; ok {
			t.Fatalf("seed collision between %s and %s", other, key)
		}
		seen[seed] = key
	}
}

func TestRngSameSeedSameSequence(t *testing.T) {
	a := New(SessionSeed("battle-007", 1))
	b := New(SessionSeed("battle-007", 1))
	for i := 0; i < 100; i++ {
		va := a.Range(1, 20)
		vb := b.Range(1, 20)
		if va != vb {
			t.Fatalf("draw %d = %d, want %d", i, vb, va)
		}
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("fingerprint = %d, want %d", b.Fingerprint(), a.Fingerprint())
	}
	if a.Draws() != b.Draws() {
		t.Fatalf("draws = %d, want %d", b.Draws(), a.Draws())
	}
}

func TestRngSessionsDoNotCrossInfluence(t *testing.T) {
	solo := New(SessionSeed("org-A", 3))
	want := make([]int, 10)
	for i := range want {
		want[i] = solo.Range(0, 1000)
	}

	orgA := New(SessionSeed("org-A", 3))
	orgB := New(SessionSeed("org-B", 3))
	for i := range want {
		_ = orgB.Range(0, 1000)
		_ = orgB.Range(0, 1000)
		if got := orgA.Range(0, 1000); got != want[i] {
			t.Fatalf("org-A draw %d = %d, want %d", i, got, want[i])
		}
	}
}

func TestRngRangeBounds(t *testing.T) {
	rng := New(7)
	for i := 0; i < 5000; i++ {
		v := rng.Range(-3, 3)
		if v < -3 || v > 3 {
			t.Fatalf("value %d outside [-3, 3]", v)
		}
	}
	if got := rng.Range(5, 5); got != 5 {
		t.Fatalf("degenerate range = %d, want 5", got)
	}
	for i := 0; i < 1000; i++ {
		f := rng.Float(1.5, 2.5)
		if f < 1.5 || f >= 2.5 {
			t.Fatalf("float %f outside [1.5, 2.5)", f)
		}
	}
}

func TestRngRangeCoversInterval(t *testing.T) {
	rng := New(99)
	seen := make(map[int]bool)
	for i := 0; i < 600; i++ {
		seen[rng.Die(6)] = true
	}
	for face := 1; face <= 6; face++ {
		if !seen[face] {
			t.Fatalf("face %d never rolled", face)
		}
	}
}

func TestRngInvalidRangePanics(t *testing.T) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			t.Fatal("expected panic")
		}
		err, ok := recovered.(error)
		if !ok {
			t.Fatalf("panic value type = %T, want error", recovered)
		}
		if !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("panic = %v, want %v", err, ErrInvalidRange)
		}
		var rangeErr *RangeError
		if !errors.As(err, &rangeErr) || rangeErr.Lo != 4 || rangeErr.Hi != 2 {
			t.Fatalf("range error = %+v, want lo=4 hi=2", rangeErr)
		}
	}()
	New(1).Range(4, 2)
}

func TestRngShuffleIsDeterministic(t *testing.T) {
	shuffle := func(seed uint64) []int {
		values := []int{1, 2, 3, 4, 5, 6, 7, 8}
		New(seed).Shuffle(len(values), func(i, j int) { values[i], values[j] = values[j], values[i] })
		return values
	}
	a := shuffle(11)
	b := shuffle(11)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("shuffle[%d] = %d, want %d", i, b[i], a[i])
		}
	}
}

func TestResaltChangesSeed(t *testing.T) {
	seed := SessionSeed("battle-007", 1)
	if Resalt(seed, 1) == seed {
		t.Fatal("expected resalted seed to differ")
	}
	if Resalt(seed, 1) != Resalt(seed, 1) {
		t.Fatal("expected resalt to be deterministic")
	}
	if Resalt(seed, 1) == Resalt(seed, 2) {
		t.Fatal("expected attempts to yield different seeds")
	}
}
