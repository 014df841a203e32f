package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/roundtable/internal/services/game/domain/command"
	"github.com/louisbranch/roundtable/internal/services/game/domain/event"
	"github.com/louisbranch/roundtable/internal/services/game/domain/identity"
	"github.com/louisbranch/roundtable/internal/services/game/domain/phase"
	"github.com/louisbranch/roundtable/internal/services/game/domain/random"
	"github.com/louisbranch/roundtable/internal/services/game/domain/session"
	"github.com/rs/zerolog"
)

// Context is what a handler may touch while processing one command. All
// randomness goes through the session stream returned by Rng.
type Context struct {
	context.Context
	world   *World
	session *session.Session
	tick    uint64
	logger  zerolog.Logger
}

// Tick returns the tick being processed.
func (c *Context) Tick() uint64 { return c.tick }

// Session returns the session the command targets.
func (c *Context) Session() *session.Session { return c.session }

// SessionID returns the stable id of the session.
func (c *Context) SessionID() string { return c.session.ID }

// Rng returns the session's random stream.
func (c *Context) Rng() *random.Rng { return c.session.Rng }

// Logger returns a logger annotated with the session and tick.
func (c *Context) Logger() *zerolog.Logger { return &c.logger }

// State returns the system-owned session state.
func (c *Context) State() any { return c.session.State }

// SetState replaces the system-owned session state.
func (c *Context) SetState(state any) { c.session.State = state }

// Phase returns the current turn phase.
func (c *Context) Phase() phase.Phase { return c.world.phase.Current() }

// SetPhase moves the turn phase directly.
func (c *Context) SetPhase(p phase.Phase) { c.world.phase.Set(p) }

// ReserveNext reserves the phase entered once Visuals drains.
func (c *Context) ReserveNext(p phase.Phase) { c.world.phase.ReserveNext(p) }

// Emit raises a notification for this session. It is delivered to immediate
// subscribers at the end of the handler pass.
func (c *Context) Emit(typ event.Type, subjects []string, payload any) error {
	raw, err := command.EncodePayload(payload)
	if err != nil {
		return fmt.Errorf("emit %s: %w", typ, err)
	}
	c.world.bus.Emit(event.Notification{
		Type:        typ,
		SessionID:   c.session.ID,
		Tick:        c.tick,
		Subjects:    subjects,
		PayloadJSON: raw,
	})
	return nil
}

// Raise queues a derived request for the next tick. A command without a
// session targets this handler's session.
func (c *Context) Raise(cmd command.Command) {
	cmd = cmd.Clone()
	cmd.Origin = command.OriginDerived
	if cmd.Session.Empty() {
		cmd.Session = command.ByID(sessionRole, c.session.ID)
	}
	c.world.queue.Push(cmd)
}

// Resolve returns the live handle and stable id behind ref. It reports false
// when the object is not live.
func (c *Context) Resolve(ref command.Ref) (identity.Handle, string, bool) {
	return c.world.resolveRef(ref)
}

// Participant resolves the participant with role. A missing or dead
// participant yields ErrMissingParticipant.
func (c *Context) Participant(cmd command.Command, role string) (identity.Handle, string, error) {
	ref, ok := cmd.Participant(role)
	if !ok {
		return identity.NoHandle, "", fmt.Errorf("%w: role %s", ErrMissingParticipant, role)
	}
	h, stableID, ok := c.world.resolveRef(ref)
	if !ok {
		return identity.NoHandle, "", fmt.Errorf("%w: %s %s", ErrMissingParticipant, role, describeRef(ref))
	}
	return h, stableID, nil
}

// Despawn releases an object owned by this session. It reports whether the
// object was live.
func (c *Context) Despawn(h identity.Handle) bool {
	return c.world.despawn(c.session.ID, h)
}

// Complete marks the session completed; it is archived after its grace tick.
func (c *Context) Complete() {
	if err := c.world.sessions.Complete(c.session.ID, c.tick); err != nil {
		c.logger.Warn().Err(err).Msg("complete session")
	}
}

func describeRef(ref command.Ref) string {
	if id := strings.TrimSpace(ref.StableID); id != "" {
		return id
	}
	return ref.Handle.String()
}
