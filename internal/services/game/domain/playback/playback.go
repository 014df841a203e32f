// Package playback re-injects recorded requests into the live request channel.
//
// The driver holds a loaded log and, once per tick, pushes every entry stamped
// with that tick into the same queue external callers use. Stable ids are
// resolved back to run-local handles at that moment; an entry that cannot be
// resolved is skipped with a warning and playback continues.
package playback

import (
	"strings"

	"github.com/louisbranch/roundtable/internal/platform/telemetry/metrics"
	"github.com/louisbranch/roundtable/internal/services/game/domain/command"
	"github.com/louisbranch/roundtable/internal/services/game/domain/identity"
	"github.com/louisbranch/roundtable/internal/services/game/domain/replay"
	"github.com/rs/zerolog"
)

// SessionRole is the role used for the session reference of replayed commands.
const SessionRole = "session"

// State is the driver lifecycle state.
type State uint8

const (
	StateEmpty State = iota
	StateLoaded
	StatePlaying
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StateFinished:
		return "finished"
	default:
		return "empty"
	}
}

// Sink receives replayed commands. *command.Queue satisfies it.
type Sink interface {
	Push(command.Command)
}

// Stats counts playback outcomes. Skipped entries had an unresolvable
// reference; missed entries were stamped with a tick the driver was never
// stepped on.
type Stats struct {
	Emitted int
	Skipped int
	Missed  int
}

// Fidelity returns the share of processed entries that were emitted. A run
// with nothing processed has fidelity 1.
func (s Stats) Fidelity() float64 {
	total := s.Emitted + s.Skipped + s.Missed
	if total == 0 {
		return 1
	}
	return float64(s.Emitted) / float64(total)
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// Driver replays a recorded log.
type Driver struct {
	resolver *identity.Resolver
	sink     Sink
	entries  []replay.Entry
	cursor   int
	lastTick uint64
	state    State
	stats    Stats
	logger   zerolog.Logger
}

// New creates a driver resolving through resolver and pushing into sink.
func New(resolver *identity.Resolver, sink Sink, opts ...Option) *Driver {
	d := &Driver{
		resolver: resolver,
		sink:     sink,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Load replaces the driver's log. Entries are ordered by tick, keeping
// insertion order for equal ticks.
func (d *Driver) Load(entries []replay.Entry) {
	d.entries = make([]replay.Entry, len(entries))
	for i, e := range entries {
		d.entries[i] = e.Clone()
	}
	replay.Sort(d.entries)
	d.lastTick, _ = replay.LastTick(d.entries)
	d.cursor = 0
	d.stats = Stats{}
	d.state = StateLoaded
}

// Step emits every entry stamped with currentTick. It returns the number of
// commands pushed to the sink.
func (d *Driver) Step(currentTick uint64) int {
	if d.state == StateEmpty || d.state == StateFinished {
		return 0
	}
	d.state = StatePlaying

	for d.cursor < len(d.entries) && d.entries[d.cursor].Tick < currentTick {
		e := d.entries[d.cursor]
		d.cursor++
		d.stats.Missed++
		metrics.RecordPlaybackEntry(metrics.OutcomeMissed)
		d.logger.Warn().
			Str("session_id", e.SessionID).
			Uint64("tick", e.Tick).
			Uint64("current_tick", currentTick).
			Str("command_type", e.Command.Type).
			Msg("recorded entry tick already passed, skipping")
	}

	// Objects spawned earlier in this batch are not bound until their
	// command is processed; later entries may reference them by stable id.
	spawning := make(map[string]bool)
	emitted := 0
	for d.cursor < len(d.entries) && d.entries[d.cursor].Tick == currentTick {
		e := d.entries[d.cursor]
		d.cursor++
		cmd, ok := d.materialize(e, spawning)
		if !ok {
			d.stats.Skipped++
			metrics.RecordPlaybackEntry(metrics.OutcomeSkipped)
			continue
		}
		d.sink.Push(cmd)
		d.stats.Emitted++
		emitted++
		metrics.RecordPlaybackEntry(metrics.OutcomeEmitted)
	}

	if len(d.entries) == 0 || currentTick > d.lastTick {
		d.state = StateFinished
	}
	return emitted
}

func (d *Driver) materialize(e replay.Entry, spawning map[string]bool) (command.Command, bool) {
	cmd := command.Command{
		Type:        command.Type(e.Command.Type),
		PayloadJSON: append([]byte(nil), e.Command.Payload...),
		Origin:      command.OriginReplayed,
	}

	if e.Command.OpensSession {
		cmd.Session = command.Spawning(SessionRole, e.SessionID)
	} else {
		ref, ok := d.resolveRef(SessionRole, e.SessionID, spawning)
		if !ok {
			d.warnUnresolved(e, SessionRole, e.SessionID)
			return command.Command{}, false
		}
		cmd.Session = ref
	}

	if len(e.Command.Participants) > 0 {
		cmd.Participants = make([]command.Ref, 0, len(e.Command.Participants))
	}
	for _, recorded := range e.Command.Participants {
		if recorded.Spawn {
			cmd.Participants = append(cmd.Participants, command.Spawning(recorded.Role, recorded.ID))
			continue
		}
		ref, ok := d.resolveRef(recorded.Role, recorded.ID, spawning)
		if !ok {
			d.warnUnresolved(e, recorded.Role, recorded.ID)
			return command.Command{}, false
		}
		cmd.Participants = append(cmd.Participants, ref)
	}

	if e.Command.OpensSession {
		spawning[strings.TrimSpace(e.SessionID)] = true
	}
	for _, recorded := range e.Command.Participants {
		if recorded.Spawn {
			spawning[strings.TrimSpace(recorded.ID)] = true
		}
	}
	return cmd, true
}

func (d *Driver) resolveRef(role, stableID string, spawning map[string]bool) (command.Ref, bool) {
	stableID = strings.TrimSpace(stableID)
	if d.resolver != nil {
		if h, ok := d.resolver.Resolve(stableID); ok {
			return command.Ref{Role: role, Handle: h, StableID: stableID}, true
		}
	}
	if spawning[stableID] {
		return command.ByID(role, stableID), true
	}
	return command.Ref{}, false
}

func (d *Driver) warnUnresolved(e replay.Entry, role, stableID string) {
	d.logger.Warn().
		Str("session_id", e.SessionID).
		Uint64("tick", e.Tick).
		Str("command_type", e.Command.Type).
		Str("role", role).
		Str("stable_id", stableID).
		Err(identity.ErrUnresolvedIdentity).
		Msg("skipping recorded entry")
}

// State returns the driver state.
func (d *Driver) State() State { return d.state }

// Stats returns playback counters.
func (d *Driver) Stats() Stats { return d.stats }

// Remaining returns how many entries have not been processed yet.
func (d *Driver) Remaining() int { return len(d.entries) - d.cursor }

// LastTick returns the highest tick in the loaded log.
func (d *Driver) LastTick() uint64 { return d.lastTick }
