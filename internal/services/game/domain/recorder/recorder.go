// Package recorder captures request-class commands for replay.
//
// Each session has its own recording state. A session is armed when its start
// request is processed and disarmed by its end request or an explicit Stop.
// Before an entry is stored, every participant handle is translated to its
// stable id; an entry with any unresolvable participant is dropped whole.
package recorder

import (
	"strings"

	"github.com/louisbranch/roundtable/internal/platform/telemetry/metrics"
	"github.com/louisbranch/roundtable/internal/services/game/domain/command"
	"github.com/louisbranch/roundtable/internal/services/game/domain/identity"
	"github.com/louisbranch/roundtable/internal/services/game/domain/replay"
	"github.com/rs/zerolog"
)

// State is the per-session recording state.
type State uint8

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	if s == StateRecording {
		return "recording"
	}
	return "idle"
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the recorder logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithEnabled sets whether Arm has any effect. Recording is enabled by default.
func WithEnabled(enabled bool) Option {
	return func(r *Recorder) {
		r.enabled = enabled
	}
}

// Stats counts recorder decisions.
type Stats struct {
	Recorded int
	Dropped  int
	// Ignored counts commands offered while idle or of a non-recordable origin.
	Ignored int
}

// Recorder stores recorded entries for armed sessions.
type Recorder struct {
	resolver *identity.Resolver
	enabled  bool
	states   map[string]State
	entries  []replay.Entry
	stats    Stats
	logger   zerolog.Logger
}

// New creates a recorder translating handles through resolver.
func New(resolver *identity.Resolver, opts ...Option) *Recorder {
	r := &Recorder{
		resolver: resolver,
		enabled:  true,
		states:   make(map[string]State),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Enabled reports whether recording is enabled.
func (r *Recorder) Enabled() bool { return r.enabled }

// SetEnabled toggles recording for sessions armed from now on.
func (r *Recorder) SetEnabled(enabled bool) { r.enabled = enabled }

// Arm moves sessionID to Recording. It reports false when recording is
// disabled.
func (r *Recorder) Arm(sessionID string) bool {
	if !r.enabled {
		return false
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false
	}
	r.states[sessionID] = StateRecording
	return true
}

// Disarm moves sessionID back to Idle.
func (r *Recorder) Disarm(sessionID string) {
	delete(r.states, strings.TrimSpace(sessionID))
}

// Stop is an explicit disarm requested by a caller outside the session
// lifecycle.
func (r *Recorder) Stop(sessionID string) {
	if r.State(sessionID) == StateRecording {
		r.logger.Info().Str("session_id", sessionID).Msg("recording stopped")
	}
	r.Disarm(sessionID)
}

// State returns the recording state of sessionID.
func (r *Recorder) State(sessionID string) State {
	return r.states[strings.TrimSpace(sessionID)]
}

// Record appends an entry for cmd if sessionID is armed and cmd is
// request-class. It reports whether an entry was stored.
func (r *Recorder) Record(sessionID string, tick uint64, cmd command.Command) bool {
	sessionID = strings.TrimSpace(sessionID)
	if r.states[sessionID] != StateRecording || !cmd.Origin.Recordable() {
		r.stats.Ignored++
		return false
	}

	participants := make([]replay.Ref, 0, len(cmd.Participants))
	for _, ref := range cmd.Participants {
		stableID, ok := r.translate(ref)
		if !ok {
			r.stats.Dropped++
			metrics.RecordRecorderEntry(metrics.OutcomeDropped)
			r.logger.Warn().
				Str("session_id", sessionID).
				Uint64("tick", tick).
				Str("command_type", string(cmd.Type)).
				Str("role", ref.Role).
				Msg("participant has no stable id, dropping recorded entry")
			return false
		}
		participants = append(participants, replay.Ref{Role: ref.Role, ID: stableID, Spawn: ref.Spawn})
	}
	if len(participants) == 0 {
		participants = nil
	}

	payload := append([]byte(nil), cmd.PayloadJSON...)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	r.entries = append(r.entries, replay.Entry{
		Tick:      tick,
		SessionID: sessionID,
		Command: replay.Command{
			Type:         string(cmd.Type),
			OpensSession: cmd.Session.Spawn,
			Participants: participants,
			Payload:      payload,
		},
	})
	r.stats.Recorded++
	metrics.RecordRecorderEntry(metrics.OutcomeRecorded)
	return true
}

func (r *Recorder) translate(ref command.Ref) (string, bool) {
	if ref.Handle.Valid() {
		if r.resolver == nil {
			return "", false
		}
		return r.resolver.StableID(ref.Handle)
	}
	stableID := strings.TrimSpace(ref.StableID)
	return stableID, stableID != ""
}

// Entries returns every recorded entry in record order.
func (r *Recorder) Entries() []replay.Entry {
	out := make([]replay.Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Clone()
	}
	return out
}

// SessionEntries returns the entries recorded for sessionID.
func (r *Recorder) SessionEntries(sessionID string) []replay.Entry {
	return replay.ForSession(r.Entries(), sessionID)
}

// Stats returns recorder counters.
func (r *Recorder) Stats() Stats { return r.stats }

// Reset discards recorded entries and counters. Armed sessions stay armed.
func (r *Recorder) Reset() {
	r.entries = nil
	r.stats = Stats{}
}
