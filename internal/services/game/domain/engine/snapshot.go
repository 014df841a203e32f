package engine

import (
	"github.com/louisbranch/roundtable/internal/services/game/domain/command"
	"github.com/louisbranch/roundtable/internal/services/game/domain/event"
	"github.com/louisbranch/roundtable/internal/services/game/domain/identity"
	"github.com/louisbranch/roundtable/internal/services/game/domain/phase"
	"github.com/louisbranch/roundtable/internal/services/game/domain/playback"
	"github.com/louisbranch/roundtable/internal/services/game/domain/recorder"
	"github.com/louisbranch/roundtable/internal/services/game/domain/replay"
	"github.com/louisbranch/roundtable/internal/services/game/domain/session"
	"github.com/louisbranch/roundtable/internal/services/game/domain/visual"
)

// Cloner is implemented by system session state that holds reference types,
// so snapshots do not alias live state.
type Cloner interface {
	Clone() any
}

// SessionSnapshot is the observable state of one session. It carries no
// handles, so snapshots from different runs compare equal.
type SessionSnapshot struct {
	ID          string
	Sequence    uint64
	Kind        string
	Status      string
	Seed        uint64
	Draws       uint64
	Fingerprint uint64
	State       any
}

// Snapshot is the observable state of a world.
type Snapshot struct {
	Tick        uint64
	Phase       string
	Reservation string
	Sessions    []SessionSnapshot
	Archived    []SessionSnapshot
	Objects     []string
	ActiveLocks int
	// ExpiredLocks counts locks expired since the world was created.
	ExpiredLocks uint64
}

// Snapshot captures the world's observable state.
func (w *World) Snapshot() Snapshot {
	snap := Snapshot{
		Tick:         w.tick,
		Phase:        w.phase.Current().String(),
		Objects:      w.resolver.IDs(),
		ActiveLocks:  w.locks.ActiveCount(),
		ExpiredLocks: w.locks.ExpiredTotal(),
	}
	if reserved, ok := w.phase.Reservation(); ok {
		snap.Reservation = reserved.String()
	}
	for _, s := range w.sessions.Active() {
		snap.Sessions = append(snap.Sessions, snapshotSummary(s.Summarize(w.tick)))
	}
	for _, summary := range w.sessions.Archive() {
		snap.Archived = append(snap.Archived, snapshotSummary(summary))
	}
	return snap
}

func snapshotSummary(summary session.Summary) SessionSnapshot {
	state := summary.State
	if cloner, ok := state.(Cloner); ok {
		state = cloner.Clone()
	}
	return SessionSnapshot{
		ID:          summary.ID,
		Sequence:    summary.Sequence,
		Kind:        summary.Kind,
		Status:      summary.Status.String(),
		Seed:        summary.Seed,
		Draws:       summary.Draws,
		Fingerprint: summary.Fingerprint,
		State:       state,
	}
}

// Tick returns the number of the last stepped tick.
func (w *World) Tick() uint64 { return w.tick }

// Phase returns the turn-phase controller.
func (w *World) Phase() *phase.Controller { return w.phase }

// Locks returns the visual lock pool.
func (w *World) Locks() *visual.Pool { return w.locks }

// Bus returns the notification bus.
func (w *World) Bus() *event.Bus { return w.bus }

// Resolver returns the identity resolver.
func (w *World) Resolver() *identity.Resolver { return w.resolver }

// Sessions returns the session manager.
func (w *World) Sessions() *session.Manager { return w.sessions }

// Recorder returns the session recorder.
func (w *World) Recorder() *recorder.Recorder { return w.recorder }

// Commands returns the command registry.
func (w *World) Commands() *command.Registry { return w.commands }

// Player returns the attached playback driver, if any.
func (w *World) Player() *playback.Driver { return w.player }

// Recorded returns every entry recorded so far.
func (w *World) Recorded() []replay.Entry { return w.recorder.Entries() }

// Modules returns installed module names in install order.
func (w *World) Modules() []string { return append([]string(nil), w.modules...) }

// OrphanedLocks returns outstanding locks whose owning session is gone. They
// still tick and expire normally.
func (w *World) OrphanedLocks() []visual.Lock {
	return w.locks.Orphaned(w.sessions.Alive)
}
