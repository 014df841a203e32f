package session

import (
	"github.com/louisbranch/roundtable/internal/services/game/domain/identity"
	"github.com/louisbranch/roundtable/internal/services/game/domain/random"
)

// Status identifies the session lifecycle label.
type Status uint8

const (
	StatusActive Status = iota
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Session is a live session.
type Session struct {
	// ID is the stable identifier, e.g. "battle-007".
	ID       string
	Sequence uint64
	// Kind names the system that owns the session, e.g. "combat".
	Kind   string
	Status Status
	// Handle is the run-local object handle bound to ID.
	Handle identity.Handle
	// Rng is owned by this session alone.
	Rng *random.Rng
	// ReseedAttempts counts salted rehashes applied after a seed collision.
	ReseedAttempts uint64
	StartedTick    uint64
	CompletedTick  uint64
	// State holds system-owned session state.
	State any
}

// Summary is the archived record of a session that is gone.
type Summary struct {
	ID          string
	Sequence    uint64
	Kind        string
	Status      Status
	Seed        uint64
	Draws       uint64
	Fingerprint uint64
	StartedTick uint64
	EndedTick   uint64
	State       any
}

// Summarize captures s at tick.
func (s *Session) Summarize(tick uint64) Summary {
	summary := Summary{
		ID:          s.ID,
		Sequence:    s.Sequence,
		Kind:        s.Kind,
		Status:      s.Status,
		StartedTick: s.StartedTick,
		EndedTick:   tick,
		State:       s.State,
	}
	if s.Rng != nil {
		summary.Seed = s.Rng.Seed()
		summary.Draws = s.Rng.Draws()
		summary.Fingerprint = s.Rng.Fingerprint()
	}
	return summary
}
