// Package identity maps stable identifiers to run-local object handles.
//
// Handles are volatile: the allocator starts from a random base every run, so
// a handle value is meaningless outside the process that issued it. Stable
// identifiers are the only references allowed to cross the recording boundary.
package identity

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/louisbranch/roundtable/internal/platform/id"
	"github.com/louisbranch/roundtable/internal/random"
	"github.com/rs/zerolog"
)

var (
	// ErrUnresolvedIdentity indicates a stable id with no live object behind it.
	ErrUnresolvedIdentity = errors.New("stable id does not resolve to a live object")
	// ErrStableIDRequired indicates an empty stable id.
	ErrStableIDRequired = errors.New("stable id is required")
	// ErrHandleRequired indicates the zero handle was passed.
	ErrHandleRequired = errors.New("object handle is required")
	// ErrStableIDTaken indicates the stable id is bound to another live handle.
	ErrStableIDTaken = errors.New("stable id is already bound")
	// ErrHandleBound indicates the handle already carries a different stable id.
	ErrHandleBound = errors.New("handle already has a stable id")
)

// Handle is an opaque, run-local object reference. The zero value is never issued.
type Handle uint64

// NoHandle is the zero handle.
const NoHandle Handle = 0

// Valid reports whether h could have been issued by an allocator.
func (h Handle) Valid() bool { return h != NoHandle }

func (h Handle) String() string {
	return "h#" + strconv.FormatUint(uint64(h), 16)
}

// Allocator issues handles. It stands in for the object-allocation facility of
// the host application.
type Allocator struct {
	next uint64
}

// NewAllocator returns an allocator whose first handle is base+1.
func NewAllocator(base uint64) *Allocator {
	return &Allocator{next: base}
}

// NewRandomAllocator returns an allocator with a fresh random base, so handle
// values differ between runs the same way real object ids would.
func NewRandomAllocator() (*Allocator, error) {
	base, err := random.HandleBase()
	if err != nil {
		return nil, fmt.Errorf("handle base: %w", err)
	}
	return NewAllocator(base), nil
}

// Allocate returns the next handle.
func (a *Allocator) Allocate() Handle {
	a.next++
	if a.next == 0 {
		a.next++
	}
	return Handle(a.next)
}

// Generator produces stable ids for objects that were not given one.
type Generator func() string

// Sequential returns a generator yielding prefix-1, prefix-2, ...
// It is deterministic as long as calls happen in a deterministic order.
func Sequential(prefix string) Generator {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "obj"
	}
	var n uint64
	return func() string {
		n++
		return prefix + "-" + strconv.FormatUint(n, 10)
	}
}

// Random returns a generator backed by random UUIDs. Ids produced this way do
// not survive replay unless they are captured by a recorded request.
func Random(prefix string) Generator {
	fallback := Sequential(prefix)
	return func() string {
		value, err := id.Prefixed(prefix)
		if err != nil {
			return fallback()
		}
		return value
	}
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGenerator sets the stable id generator used by Assign and Spawn.
func WithGenerator(gen Generator) Option {
	return func(r *Resolver) {
		if gen != nil {
			r.generate = gen
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// Resolver is the bidirectional stable id <-> handle table. It is the only
// state shared between sessions and is mutated by one tick pass at a time;
// it is not safe for concurrent use.
type Resolver struct {
	alloc    *Allocator
	byID     map[string]Handle
	byHandle map[Handle]string
	generate Generator
	logger   zerolog.Logger
}

// NewResolver creates a resolver allocating from alloc. A nil allocator gets a
// random base.
func NewResolver(alloc *Allocator, opts ...Option) *Resolver {
	if alloc == nil {
		var err error
		alloc, err = NewRandomAllocator()
		if err != nil {
			alloc = NewAllocator(1 << 32)
		}
	}
	r := &Resolver{
		alloc:    alloc,
		byID:     make(map[string]Handle),
		byHandle: make(map[Handle]string),
		generate: Random("obj"),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Spawn allocates a handle and binds it to stableID, generating one when
// stableID is empty.
func (r *Resolver) Spawn(stableID string) (Handle, string, error) {
	h := r.alloc.Allocate()
	stableID = strings.TrimSpace(stableID)
	if stableID == "" {
		assigned, err := r.Assign(h)
		return h, assigned, err
	}
	if err := r.Bind(h, stableID); err != nil {
		return NoHandle, "", err
	}
	return h, stableID, nil
}

// Assign gives h a freshly generated stable id. A handle that already has one
// keeps it: stable ids are immutable for the object's lifetime.
func (r *Resolver) Assign(h Handle) (string, error) {
	if !h.Valid() {
		return "", ErrHandleRequired
	}
	if existing, ok := r.byHandle[h]; ok {
		return existing, nil
	}
	for {
		candidate := r.generate()
		if _, taken := r.byID[candidate]; taken {
			r.logger.Warn().Str("stable_id", candidate).Msg("generated stable id already bound, retrying")
			continue
		}
		r.bind(h, candidate)
		return candidate, nil
	}
}

// Bind attaches a caller-supplied stable id to h.
func (r *Resolver) Bind(h Handle, stableID string) error {
	if !h.Valid() {
		return ErrHandleRequired
	}
	stableID = strings.TrimSpace(stableID)
	if stableID == "" {
		return ErrStableIDRequired
	}
	if existing, ok := r.byHandle[h]; ok {
		if existing == stableID {
			return nil
		}
		return fmt.Errorf("%w: %s has %q, refusing %q", ErrHandleBound, h, existing, stableID)
	}
	if other, ok := r.byID[stableID]; ok && other != h {
		return fmt.Errorf("%w: %q", ErrStableIDTaken, stableID)
	}
	r.bind(h, stableID)
	return nil
}

func (r *Resolver) bind(h Handle, stableID string) {
	r.byID[stableID] = h
	r.byHandle[h] = stableID
}

// Resolve returns the live handle for stableID. It reports false, never
// panics, when nothing is bound yet or the object is gone.
func (r *Resolver) Resolve(stableID string) (Handle, bool) {
	h, ok := r.byID[strings.TrimSpace(stableID)]
	return h, ok
}

// StableID returns the stable id bound to h.
func (r *Resolver) StableID(h Handle) (string, bool) {
	stableID, ok := r.byHandle[h]
	return stableID, ok
}

// Release unbinds h. It reports whether h was bound.
func (r *Resolver) Release(h Handle) bool {
	stableID, ok := r.byHandle[h]
	if !ok {
		return false
	}
	delete(r.byHandle, h)
	delete(r.byID, stableID)
	return true
}

// ReleaseID unbinds whatever handle stableID resolves to.
func (r *Resolver) ReleaseID(stableID string) bool {
	h, ok := r.Resolve(stableID)
	if !ok {
		return false
	}
	return r.Release(h)
}

// Len returns the number of live bindings.
func (r *Resolver) Len() int { return len(r.byID) }

// IDs returns the bound stable ids in lexical order.
func (r *Resolver) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for stableID := range r.byID {
		ids = append(ids, stableID)
	}
	sort.Strings(ids)
	return ids
}
