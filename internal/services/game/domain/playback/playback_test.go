package playback

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/louisbranch/roundtable/internal/services/game/domain/command"
	"github.com/louisbranch/roundtable/internal/services/game/domain/identity"
	"github.com/louisbranch/roundtable/internal/services/game/domain/replay"
)

type recordingSink struct {
	pushed []command.Command
}

func (s *recordingSink) Push(cmd command.Command) {
	s.pushed = append(s.pushed, cmd)
}

func damageEntry(tick uint64, target string) replay.Entry {
	return replay.Entry{
		Tick:      tick,
		SessionID: "battle-007",
		Command: replay.Command{
			Type: "combat.damage",
			Participants: []replay.Ref{
				{Role: "attacker", ID: "hero"},
				{Role: "target", ID: target},
			},
			Payload: json.RawMessage(`{"dice":2,"sides":6}`),
		},
	}
}

func newTestDriver(t *testing.T) (*Driver, *identity.Resolver, *recordingSink) {
	t.Helper()
	resolver := identity.NewResolver(identity.NewAllocator(7000))
	for _, id := range []string{"battle-007", "hero", "goblin"} {
		if _, _, err := resolver.Spawn(id); err != nil {
			t.Fatalf("spawn %s: %v", id, err)
		}
	}
	sink := &recordingSink{}
	return New(resolver, sink), resolver, sink
}

func TestStepEmitsEntriesAtMatchingTick(t *testing.T) {
	driver, resolver, sink := newTestDriver(t)
	driver.Load([]replay.Entry{damageEntry(12, "goblin"), damageEntry(10, "goblin")})
	if driver.State() != StateLoaded {
		t.Fatalf("state = %v, want loaded", driver.State())
	}

	for tick := uint64(0); tick < 10; tick++ {
		if n := driver.Step(tick); n != 0 {
			t.Fatalf("tick %d emitted %d", tick, n)
		}
	}
	if driver.State() != StatePlaying {
		t.Fatalf("state = %v, want playing", driver.State())
	}
	if n := driver.Step(10); n != 1 {
		t.Fatalf("tick 10 emitted %d, want 1", n)
	}
	driver.Step(11)
	if n := driver.Step(12); n != 1 {
		t.Fatalf("tick 12 emitted %d, want 1", n)
	}
	if driver.State() != StatePlaying {
		t.Fatalf("state = %v at last tick, want playing", driver.State())
	}
	driver.Step(13)
	if driver.State() != StateFinished {
		t.Fatalf("state = %v, want finished", driver.State())
	}

	if len(sink.pushed) != 2 {
		t.Fatalf("pushed = %d, want 2", len(sink.pushed))
	}
	hero, _ := resolver.Resolve("hero")
	cmd := sink.pushed[0]
	if cmd.Origin != command.OriginReplayed {
		t.Fatalf("origin = %v, want replayed", cmd.Origin)
	}
	attacker, _ := cmd.Participant("attacker")
	if attacker.Handle != hero || attacker.StableID != "hero" {
		t.Fatalf("attacker = %+v, want live hero handle %v", attacker, hero)
	}
	if !cmd.Session.Handle.Valid() || cmd.Session.StableID != "battle-007" {
		t.Fatalf("session ref = %+v, want resolved battle-007", cmd.Session)
	}
}

func TestStepSkipsUnresolvedEntryAndContinues(t *testing.T) {
	driver, _, sink := newTestDriver(t)
	driver.Load([]replay.Entry{damageEntry(3, "troll"), damageEntry(3, "goblin")})
	if n := driver.Step(3); n != 1 {
		t.Fatalf("emitted = %d, want 1", n)
	}
	target, _ := sink.pushed[0].Participant("target")
	if target.StableID != "goblin" {
		t.Fatalf("target = %+v, want goblin", target)
	}
	stats := driver.Stats()
	if stats.Emitted != 1 || stats.Skipped != 1 {
		t.Fatalf("stats = %+v, want 1 emitted, 1 skipped", stats)
	}
	if fidelity := stats.Fidelity(); fidelity != 0.5 {
		t.Fatalf("fidelity = %v, want 0.5", fidelity)
	}
}

func TestStepCountsMissedTicks(t *testing.T) {
	driver, _, sink := newTestDriver(t)
	driver.Load([]replay.Entry{damageEntry(2, "goblin"), damageEntry(5, "goblin")})
	driver.Step(4)
	if len(sink.pushed) != 0 {
		t.Fatalf("pushed = %d, want 0", len(sink.pushed))
	}
	if stats := driver.Stats(); stats.Missed != 1 {
		t.Fatalf("stats = %+v, want 1 missed", stats)
	}
	driver.Step(5)
	if len(sink.pushed) != 1 || driver.Remaining() != 0 {
		t.Fatalf("pushed = %d remaining = %d, want 1 and 0", len(sink.pushed), driver.Remaining())
	}
}

func TestStepDefersSameTickSpawns(t *testing.T) {
	resolver := identity.NewResolver(identity.NewAllocator(1))
	sink := &recordingSink{}
	driver := New(resolver, sink)
	driver.Load([]replay.Entry{
		{Tick: 1, SessionID: "battle-009", Command: replay.Command{Type: "combat.start", OpensSession: true}},
		{Tick: 1, SessionID: "battle-009", Command: replay.Command{
			Type:         "combat.spawn",
			Participants: []replay.Ref{{Role: "unit", ID: "orc", Spawn: true}},
		}},
		{Tick: 1, SessionID: "battle-009", Command: replay.Command{
			Type:         "combat.damage",
			Participants: []replay.Ref{{Role: "attacker", ID: "orc"}, {Role: "target", ID: "orc"}},
		}},
	})
	if n := driver.Step(1); n != 3 {
		t.Fatalf("emitted = %d, want 3 (stats %+v)", n, driver.Stats())
	}
	if !sink.pushed[0].Session.Spawn {
		t.Fatalf("session ref = %+v, want spawn", sink.pushed[0].Session)
	}
	unit, _ := sink.pushed[1].Participant("unit")
	if !unit.Spawn || unit.StableID != "orc" {
		t.Fatalf("unit = %+v, want spawning orc", unit)
	}
	attacker, _ := sink.pushed[2].Participant("attacker")
	if attacker.Handle.Valid() || attacker.StableID != "orc" {
		t.Fatalf("attacker = %+v, want deferred orc reference", attacker)
	}
}

func TestEmptyLogFinishesOnFirstStep(t *testing.T) {
	driver, _, _ := newTestDriver(t)
	if n := driver.Step(1); n != 0 || driver.State() != StateEmpty {
		t.Fatalf("unloaded driver stepped: n=%d state=%v", n, driver.State())
	}
	driver.Load(nil)
	driver.Step(0)
	if driver.State() != StateFinished {
		t.Fatalf("state = %v, want finished", driver.State())
	}
}

func TestLoadCopiesEntries(t *testing.T) {
	driver, _, sink := newTestDriver(t)
	entries := []replay.Entry{damageEntry(1, "goblin")}
	driver.Load(entries)
	entries[0].Command.Participants[1].ID = "troll"
	driver.Step(1)
	if len(sink.pushed) != 1 {
		t.Fatalf("pushed = %d, want loaded copy to be unaffected", len(sink.pushed))
	}
}
