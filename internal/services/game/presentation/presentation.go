// Package presentation turns notifications into visual locks.
//
// It stands in for the rendering layer: every notification with a configured
// cue spawns a lock lasting the cue's duration, attributed to the
// notification's session. It is the only code that spawns locks.
package presentation

import (
	"sort"

	"github.com/louisbranch/roundtable/internal/services/game/domain/engine"
	"github.com/louisbranch/roundtable/internal/services/game/domain/event"
	"github.com/louisbranch/roundtable/internal/services/game/domain/visual"
	"github.com/rs/zerolog"
)

// DefaultCues maps notification types to animation durations in seconds.
func DefaultCues() map[event.Type]float64 {
	return map[event.Type]float64{
		"combat.damage_applied":   0.5,
		"combat.unit_defeated":    1.0,
		"combat.finished":         1.5,
		"settlement.finalized":    0.25,
		"settlement.account_paid": 0.1,
	}
}

// Cue records one lock spawned for a notification.
type Cue struct {
	Lock         visual.LockID
	Notification event.Type
	SessionID    string
	Tick         uint64
	Duration     float64
}

// Option configures a Module.
type Option func(*Module)

// WithCues replaces DefaultCues.
func WithCues(cues map[event.Type]float64) Option {
	return func(m *Module) {
		m.cues = make(map[event.Type]float64, len(cues))
		for typ, duration := range cues {
			m.cues[typ] = duration
		}
	}
}

// WithLogger sets the module logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Module) {
		m.logger = logger
	}
}

// Module subscribes to notifications and spawns locks.
type Module struct {
	cues   map[event.Type]float64
	locks  *visual.Pool
	played []Cue
	logger zerolog.Logger
}

// New creates a presentation module.
func New(opts ...Option) *Module {
	m := &Module{cues: DefaultCues(), logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Name returns the module name.
func (m *Module) Name() string { return "presentation" }

// Register subscribes to the world's notifications.
func (m *Module) Register(r *engine.Registrar) error {
	m.locks = r.World().Locks()
	r.Subscribe(m.react)
	return nil
}

func (m *Module) react(n event.Notification) {
	duration, ok := m.cues[n.Type]
	if !ok || m.locks == nil {
		return
	}
	id := m.locks.SpawnFor(n.SessionID, duration, string(n.Type))
	m.played = append(m.played, Cue{
		Lock:         id,
		Notification: n.Type,
		SessionID:    n.SessionID,
		Tick:         n.Tick,
		Duration:     duration,
	})
	m.logger.Debug().Str("session_id", n.SessionID).Str("notification", string(n.Type)).Float64("duration", duration).Msg("cue played")
}

// Played returns every cue played so far.
func (m *Module) Played() []Cue {
	return append([]Cue(nil), m.played...)
}

// CueTypes returns the configured notification types, sorted.
func (m *Module) CueTypes() []event.Type {
	types := make([]event.Type, 0, len(m.cues))
	for typ := range m.cues {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
