package engine

import (
	"fmt"

	"github.com/louisbranch/roundtable/internal/services/game/domain/command"
	"github.com/louisbranch/roundtable/internal/services/game/domain/event"
)

// Handler processes one command for its session.
type Handler func(ctx *Context, cmd command.Command) command.Decision

// Module is a domain collaborator: it registers command types with handlers
// and may subscribe to notifications.
type Module interface {
	Name() string
	Register(r *Registrar) error
}

// Registrar is handed to modules during Install.
type Registrar struct {
	world  *World
	module string
}

// Handle registers def with the world's command registry and routes it to h.
// The definition owner defaults to the module name.
func (r *Registrar) Handle(def command.Definition, h Handler) error {
	if h == nil {
		return fmt.Errorf("%w: %s", ErrHandlerRequired, def.Type)
	}
	if def.Owner == "" {
		def.Owner = r.module
	}
	if err := r.world.commands.Register(def); err != nil {
		return err
	}
	def, _ = r.world.commands.Definition(def.Type)
	r.world.handlers[def.Type] = h
	return nil
}

// Subscribe registers an immediate notification subscriber.
func (r *Registrar) Subscribe(fn event.Subscriber) {
	r.world.bus.Subscribe(fn)
}

// World returns the world being configured.
func (r *Registrar) World() *World {
	return r.world
}
