package phase

import (
	"errors"
	"testing"

	"github.com/louisbranch/roundtable/internal/services/game/domain/random"
	"github.com/louisbranch/roundtable/internal/services/game/domain/visual"
)

type fixedLocks int

func (f fixedLocks) ActiveCount() int { return int(f) }

func TestControllerDefaultsToPlayerInput(t *testing.T) {
	c := NewController(nil)
	if c.Current() != PlayerInput {
		t.Fatalf("phase = %v, want %v", c.Current(), PlayerInput)
	}
	if _, ok := c.Reservation(); ok {
		t.Fatal("expected no reservation")
	}
}

func TestAdvanceIsNoopOutsideVisuals(t *testing.T) {
	for _, p := range []Phase{PlayerInput, Processing, ExternalTurn} {
		c := NewController(fixedLocks(0))
		c.Set(p)
		c.ReserveNext(Visuals)
		if _, changed := c.Advance(); changed {
			t.Fatalf("advance changed phase from %v", p)
		}
		if c.Current() != p {
			t.Fatalf("phase = %v, want %v", c.Current(), p)
		}
		if reserved, ok := c.Reservation(); !ok || reserved != Visuals {
			t.Fatalf("reservation = %v, %v, want visuals kept", reserved, ok)
		}
	}
}

func TestAdvanceVisualsPassThroughWithReservation(t *testing.T) {
	pool := visual.NewPool()
	c := NewController(pool)
	c.Set(Processing)
	c.ReserveNext(ExternalTurn)
	c.Set(Visuals)

	transition, changed := c.Advance()
	if !changed {
		t.Fatal("expected transition")
	}
	if transition.From != Visuals || transition.To != ExternalTurn || !transition.Reserved {
		t.Fatalf("transition = %+v, want visuals -> external_turn (reserved)", transition)
	}
	if c.Current() != ExternalTurn {
		t.Fatalf("phase = %v, want %v", c.Current(), ExternalTurn)
	}
}

func TestAdvanceDefaultsToPlayerInputWithoutReservation(t *testing.T) {
	c := NewController(fixedLocks(0))
	c.Set(Visuals)
	transition, changed := c.Advance()
	if !changed || transition.To != PlayerInput || transition.Reserved {
		t.Fatalf("transition = %+v, %v, want unreserved move to player_input", transition, changed)
	}
}

func TestAdvanceBlockedByLocks(t *testing.T) {
	pool := visual.NewPool()
	c := NewController(pool)
	c.ReserveNext(ExternalTurn)
	c.Set(Visuals)
	pool.Spawn(0.5, "hit flash")

	if _, changed := c.Advance(); changed {
		t.Fatal("expected advance to be blocked")
	}
	pool.Tick(0.5)
	if pool.ActiveCount() != 0 {
		t.Fatalf("active = %d, want 0", pool.ActiveCount())
	}
	transition, changed := c.Advance()
	if !changed || transition.To != ExternalTurn {
		t.Fatalf("transition = %+v, %v, want external_turn", transition, changed)
	}
}

func TestReservationConsumedOnce(t *testing.T) {
	c := NewController(fixedLocks(0))
	c.ReserveNext(ExternalTurn)
	c.Set(Visuals)
	if _, changed := c.Advance(); !changed {
		t.Fatal("expected first advance to transition")
	}
	if _, ok := c.Reservation(); ok {
		t.Fatal("expected reservation to be cleared")
	}
	if _, changed := c.Advance(); changed {
		t.Fatal("expected second advance to be a no-op")
	}

	c.Set(Visuals)
	transition, changed := c.Advance()
	if !changed || transition.To != PlayerInput {
		t.Fatalf("transition = %+v, want player_input after reservation consumed", transition)
	}
}

func TestReserveNextLastWriterWins(t *testing.T) {
	c := NewController(fixedLocks(0))
	c.ReserveNext(ExternalTurn)
	c.ReserveNext(Processing)
	c.Set(Visuals)
	transition, _ := c.Advance()
	if transition.To != Processing {
		t.Fatalf("transition to = %v, want %v", transition.To, Processing)
	}
}

func TestAdvanceNeverLeavesVisualsWhileLocked(t *testing.T) {
	rng := random.New(2024)
	for run := 0; run < 200; run++ {
		pool := visual.NewPool()
		c := NewController(pool)
		c.Set(Visuals)
		for step := 0; step < 30 && c.Current() == Visuals; step++ {
			switch rng.Range(0, 2) {
			case 0:
				pool.Spawn(rng.Float(-0.2, 1.0), "fx")
			case 1:
				pool.Tick(rng.Float(0, 0.4))
			}
			locked := pool.ActiveCount() > 0
			if _, changed := c.Advance(); changed && locked {
				t.Fatalf("run %d step %d: left visuals with %d locks", run, step, pool.ActiveCount())
			}
		}
	}
}

func TestObserversSeeTransitionsInOrder(t *testing.T) {
	c := NewController(fixedLocks(0))
	var seen []string
	c.OnTransition(func(tr Transition) { seen = append(seen, "a:"+tr.To.String()) })
	c.OnTransition(func(tr Transition) { seen = append(seen, "b:"+tr.To.String()) })
	c.Set(Processing)
	c.Set(Processing)
	want := []string{"a:processing", "b:processing"}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}
}

func TestInvalidPhasePanics(t *testing.T) {
	for name, call := range map[string]func(*Controller){
		"reserve": func(c *Controller) { c.ReserveNext(Phase(42)) },
		"set":     func(c *Controller) { c.Set(Phase(42)) },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				recovered := recover()
				err, ok := recovered.(error)
				if !ok || !errors.Is(err, ErrInvalidPhase) {
					t.Fatalf("panic = %v, want %v", recovered, ErrInvalidPhase)
				}
			}()
			call(NewController(nil))
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, p := range []Phase{PlayerInput, Processing, Visuals, ExternalTurn} {
		parsed, err := Parse(p.String())
		if err != nil {
			t.Fatalf("parse %q: %v", p, err)
		}
		if parsed != p {
			t.Fatalf("parse %q = %v, want %v", p, parsed, p)
		}
	}
	if _, err := Parse("lobby"); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("parse lobby = %v, want %v", err, ErrInvalidPhase)
	}
}
