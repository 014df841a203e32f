package replay

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

var (
	// ErrSessionIDRequired indicates an entry with no session id.
	ErrSessionIDRequired = errors.New("entry session id is required")
	// ErrCommandTypeRequired indicates an entry with no command type.
	ErrCommandTypeRequired = errors.New("entry command type is required")
	// ErrParticipantIDRequired indicates a participant without a stable id.
	ErrParticipantIDRequired = errors.New("entry participant id is required")
)

// Ref is a participant reference by stable id.
type Ref struct {
	Role string `json:"role" yaml:"role"`
	ID   string `json:"id" yaml:"id"`
	// Spawn marks an object created by the command.
	Spawn bool `json:"spawn,omitempty" yaml:"spawn,omitempty"`
}

// Command is the request-class payload of an entry.
type Command struct {
	Type string `json:"type" yaml:"type"`
	// OpensSession marks the request that creates the entry's session.
	OpensSession bool            `json:"opens_session,omitempty" yaml:"opens_session,omitempty"`
	Participants []Ref           `json:"participants,omitempty" yaml:"participants,omitempty"`
	Payload      json.RawMessage `json:"payload" yaml:"-"`
}

// Entry is one recorded request.
type Entry struct {
	Tick      uint64  `json:"tick" yaml:"tick"`
	SessionID string  `json:"session_id" yaml:"session_id"`
	Command   Command `json:"command" yaml:"command"`
}

// Validate checks the entry shape.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.SessionID) == "" {
		return ErrSessionIDRequired
	}
	if strings.TrimSpace(e.Command.Type) == "" {
		return ErrCommandTypeRequired
	}
	for _, ref := range e.Command.Participants {
		if strings.TrimSpace(ref.ID) == "" {
			return fmt.Errorf("%w: role %q", ErrParticipantIDRequired, ref.Role)
		}
	}
	return nil
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	cloned := e
	if e.Command.Participants != nil {
		cloned.Command.Participants = append([]Ref(nil), e.Command.Participants...)
	}
	if e.Command.Payload != nil {
		cloned.Command.Payload = append(json.RawMessage(nil), e.Command.Payload...)
	}
	return cloned
}

// Sort orders entries by tick, keeping insertion order for equal ticks.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Tick < entries[j].Tick
	})
}

// Sorted reports whether entries are in tick order.
func Sorted(entries []Entry) bool {
	return sort.SliceIsSorted(entries, func(i, j int) bool {
		return entries[i].Tick < entries[j].Tick
	})
}

// LastTick returns the highest tick in entries.
func LastTick(entries []Entry) (uint64, bool) {
	if len(entries) == 0 {
		return 0, false
	}
	last := entries[0].Tick
	for _, e := range entries[1:] {
		if e.Tick > last {
			last = e.Tick
		}
	}
	return last, true
}

// ForSession returns the entries recorded for sessionID, in order.
func ForSession(entries []Entry, sessionID string) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out
}
