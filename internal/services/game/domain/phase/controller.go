// Package phase implements the global turn-phase state machine.
//
// The cycle is PlayerInput -> Processing -> Visuals -> ExternalTurn ->
// PlayerInput. Domain logic drives every transition except the one out of
// Visuals, which Advance performs once no visual lock is outstanding.
package phase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrInvalidPhase indicates a value outside the defined phases. Passing one to
// Set or ReserveNext is a programmer error and panics.
var ErrInvalidPhase = errors.New("invalid turn phase")

// Phase is a global turn phase.
type Phase uint8

const (
	// PlayerInput waits for player requests. It is the default phase.
	PlayerInput Phase = iota
	// Processing runs domain logic for submitted requests.
	Processing
	// Visuals waits for presentation locks to expire.
	Visuals
	// ExternalTurn runs the opposing side or an external settlement step.
	ExternalTurn
)

var names = [...]string{
	PlayerInput:  "player_input",
	Processing:   "processing",
	Visuals:      "visuals",
	ExternalTurn: "external_turn",
}

// Valid reports whether p is one of the defined phases.
func (p Phase) Valid() bool { return int(p) < len(names) }

func (p Phase) String() string {
	if !p.Valid() {
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
	return names[p]
}

// Parse converts a phase name back to a Phase.
func Parse(value string) (Phase, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for i, name := range names {
		if name == value {
			return Phase(i), nil
		}
	}
	return PlayerInput, fmt.Errorf("%w: %q", ErrInvalidPhase, value)
}

// LockCounter reports outstanding visual locks.
type LockCounter interface {
	ActiveCount() int
}

// Transition describes a phase change.
type Transition struct {
	From Phase
	To   Phase
	// Reserved is true when To came from a reservation consumed by Advance.
	Reserved bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// Controller owns the current phase and the next-phase reservation.
type Controller struct {
	current        Phase
	reserved       Phase
	hasReservation bool
	locks          LockCounter
	observers      []func(Transition)
	logger         zerolog.Logger
}

// NewController creates a controller in PlayerInput that consults locks
// before leaving Visuals. A nil counter behaves as zero locks.
func NewController(locks LockCounter, opts ...Option) *Controller {
	c := &Controller{
		current: PlayerInput,
		locks:   locks,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Current returns the active phase.
func (c *Controller) Current() Phase { return c.current }

// OnTransition registers an observer called synchronously, in registration
// order, after every phase change.
func (c *Controller) OnTransition(fn func(Transition)) {
	if fn != nil {
		c.observers = append(c.observers, fn)
	}
}

// Set moves directly to p. This is the primitive domain logic uses for every
// transition other than leaving Visuals. Setting the current phase is a no-op.
func (c *Controller) Set(p Phase) {
	mustValid(p)
	if p == c.current {
		return
	}
	c.transition(p, false)
}

// ReserveNext stores p as the phase to enter once Visuals drains. A later
// call overwrites an unconsumed reservation. Legality is the caller's concern.
func (c *Controller) ReserveNext(p Phase) {
	mustValid(p)
	if c.hasReservation && c.reserved != p {
		c.logger.Debug().
			Stringer("previous", c.reserved).
			Stringer("next", p).
			Msg("phase reservation overwritten")
	}
	c.reserved = p
	c.hasReservation = true
}

// Reservation returns the pending reservation, if any.
func (c *Controller) Reservation() (Phase, bool) {
	return c.reserved, c.hasReservation
}

// Advance runs once per tick. Outside Visuals it does nothing. In Visuals with
// no outstanding locks it applies and clears the reservation, or falls back to
// PlayerInput when none was made.
func (c *Controller) Advance() (Transition, bool) {
	if c.current != Visuals {
		return Transition{}, false
	}
	if c.locks != nil && c.locks.ActiveCount() > 0 {
		return Transition{}, false
	}
	next := PlayerInput
	reserved := c.hasReservation
	if reserved {
		next = c.reserved
		c.reserved = PlayerInput
		c.hasReservation = false
	}
	return c.transition(next, reserved), true
}

func (c *Controller) transition(next Phase, reserved bool) Transition {
	t := Transition{From: c.current, To: next, Reserved: reserved}
	c.current = next
	c.logger.Debug().
		Stringer("from", t.From).
		Stringer("to", t.To).
		Bool("reserved", reserved).
		Msg("phase transition")
	for _, fn := range c.observers {
		fn(t)
	}
	return t
}

func mustValid(p Phase) {
	if !p.Valid() {
		panic(fmt.Errorf("%w: %d", ErrInvalidPhase, uint8(p)))
	}
}
