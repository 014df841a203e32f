// Package hook provides ordered extension callbacks.
//
// A Point is a fixed synchronous place in the turn cycle, such as "after
// income calculated, before finalized". Collaborators register named
// callbacks; registration order is execution order.
package hook

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNameRequired indicates a callback registered without a name.
	ErrNameRequired = errors.New("hook name is required")
	// ErrFuncRequired indicates a nil callback.
	ErrFuncRequired = errors.New("hook func is required")
	// ErrAlreadyRegistered indicates a duplicate callback name on one point.
	ErrAlreadyRegistered = errors.New("hook already registered")
)

// Func receives the value flowing through a point and may modify it.
type Func[T any] func(*T)

type entry[T any] struct {
	name string
	fn   Func[T]
}

// Point is an ordered list of callbacks for values of type T.
type Point[T any] struct {
	label   string
	entries []entry[T]
}

// NewPoint creates an empty point labelled for diagnostics.
func NewPoint[T any](label string) *Point[T] {
	return &Point[T]{label: label}
}

// Label returns the point label.
func (p *Point[T]) Label() string {
	return p.label
}

// Register appends fn to the point.
func (p *Point[T]) Register(name string, fn Func[T]) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if fn == nil {
		return ErrFuncRequired
	}
	for _, e := range p.entries {
		if e.name == name {
			return fmt.Errorf("%w: %s on %s", ErrAlreadyRegistered, name, p.label)
		}
	}
	p.entries = append(p.entries, entry[T]{name: name, fn: fn})
	return nil
}

// Run invokes every callback with value, in registration order.
func (p *Point[T]) Run(value *T) {
	if p == nil || value == nil {
		return
	}
	for _, e := range p.entries {
		e.fn(value)
	}
}

// Names returns the registered callback names in execution order.
func (p *Point[T]) Names() []string {
	if p == nil {
		return nil
	}
	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of registered callbacks.
func (p *Point[T]) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}
