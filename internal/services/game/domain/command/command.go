package command

import (
	"strings"

	"github.com/louisbranch/roundtable/internal/services/game/domain/identity"
)

// Type identifies the command type string, e.g. "combat.damage".
type Type string

// Origin describes how a command entered the request queue.
type Origin uint8

const (
	// OriginExternal marks commands submitted by callers during live play.
	OriginExternal Origin = iota
	// OriginReplayed marks commands re-injected by the playback driver.
	OriginReplayed
	// OriginDerived marks commands raised by domain handlers. They are
	// reproduced by replay and never recorded.
	OriginDerived
)

func (o Origin) String() string {
	switch o {
	case OriginExternal:
		return "external"
	case OriginReplayed:
		return "replayed"
	case OriginDerived:
		return "derived"
	default:
		return "unknown"
	}
}

// Recordable reports whether commands with this origin may be recorded.
func (o Origin) Recordable() bool {
	return o == OriginExternal || o == OriginReplayed
}

// Ref references a simulation object.
//
// Live callers usually hold a Handle. Recorded and replayed commands carry
// only StableID. Spawn marks an object the command itself creates, which is
// addressed by StableID alone because no handle exists yet.
type Ref struct {
	Role     string
	Handle   identity.Handle
	StableID string
	Spawn    bool
}

// ByHandle references an existing object by its run-local handle.
func ByHandle(role string, h identity.Handle) Ref {
	return Ref{Role: role, Handle: h}
}

// ByID references an existing object by its stable id.
func ByID(role, stableID string) Ref {
	return Ref{Role: role, StableID: stableID}
}

// Spawning references an object created by the command.
func Spawning(role, stableID string) Ref {
	return Ref{Role: role, StableID: stableID, Spawn: true}
}

// Empty reports whether the reference points at nothing.
func (r Ref) Empty() bool {
	return !r.Handle.Valid() && strings.TrimSpace(r.StableID) == ""
}

// Command is a request-class value.
type Command struct {
	Type Type
	// Session is the session the command targets.
	Session      Ref
	Participants []Ref
	PayloadJSON  []byte
	Origin       Origin
}

// Participant returns the first participant reference with role.
func (c Command) Participant(role string) (Ref, bool) {
	for _, ref := range c.Participants {
		if ref.Role == role {
			return ref, true
		}
	}
	return Ref{}, false
}

// Clone returns a deep copy safe to mutate.
func (c Command) Clone() Command {
	cloned := c
	if c.Participants != nil {
		cloned.Participants = append([]Ref(nil), c.Participants...)
	}
	if c.PayloadJSON != nil {
		cloned.PayloadJSON = append([]byte(nil), c.PayloadJSON...)
	}
	return cloned
}
