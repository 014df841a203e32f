package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/louisbranch/roundtable/internal/services/game/domain/identity"
	"github.com/louisbranch/roundtable/internal/services/game/domain/random"
	"github.com/rs/zerolog"
)

var (
	// ErrSessionIDRequired indicates a missing session stable id.
	ErrSessionIDRequired = errors.New("session id is required")
	// ErrSessionExists indicates a start for a session that is still live.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound indicates no live session with the given id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrResolverRequired indicates a manager built without a resolver.
	ErrResolverRequired = errors.New("identity resolver is required")
	// ErrSeedExhausted indicates every reseed attempt collided with a live
	// session. It means the seed derivation is broken.
	ErrSeedExhausted = errors.New("session seed collides after every reseed")
)

// DefaultGraceTicks is how long a completed session stays live.
const DefaultGraceTicks = 1

// maxReseedAttempts bounds collision handling.
const maxReseedAttempts = 16

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithGraceTicks overrides DefaultGraceTicks.
func WithGraceTicks(ticks uint64) Option {
	return func(m *Manager) {
		m.grace = ticks
	}
}

// WithSeedFunc replaces random.SessionSeed as the seed derivation.
func WithSeedFunc(fn func(id string, sequence uint64) uint64) Option {
	return func(m *Manager) {
		if fn != nil {
			m.seedFor = fn
		}
	}
}

// Manager tracks live sessions and their archive.
type Manager struct {
	resolver *identity.Resolver
	seedFor  func(string, uint64) uint64
	resalt   func(seed, attempt uint64) uint64
	sessions map[string]*Session
	seeds    map[uint64]string
	archive  []Summary
	grace    uint64
	logger   zerolog.Logger
}

// NewManager creates a manager binding session objects through resolver.
func NewManager(resolver *identity.Resolver, opts ...Option) *Manager {
	m := &Manager{
		resolver: resolver,
		sessions: make(map[string]*Session),
		seeds:    make(map[uint64]string),
		seedFor:  random.SessionSeed,
		resalt:   random.Resalt,
		grace:    DefaultGraceTicks,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Start creates a session, binds its stable id to a fresh handle, and seeds
// its stream from (id, sequence).
//
// A seed equal to another live session's seed is deterministically reseeded
// with random.Resalt so two sessions never share a stream.
func (m *Manager) Start(id string, sequence uint64, kind string, tick uint64) (*Session, error) {
	if m.resolver == nil {
		return nil, ErrResolverRequired
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrSessionIDRequired
	}
	if _, exists := m.sessions[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	handle, _, err := m.resolver.Spawn(id)
	if err != nil {
		return nil, fmt.Errorf("bind session %s: %w", id, err)
	}

	base := m.seedFor(id, sequence)
	seed := base
	var attempts uint64
	for {
		owner, taken := m.seeds[seed]
		if !taken {
			break
		}
		if attempts == maxReseedAttempts {
			m.resolver.Release(handle)
			m.logger.Error().
				Str("session_id", id).
				Str("colliding_session_id", owner).
				Uint64("attempts", attempts).
				Msg("session seed still collides, start rejected")
			return nil, fmt.Errorf("%w: %s", ErrSeedExhausted, id)
		}
		attempts++
		m.logger.Warn().
			Str("session_id", id).
			Str("colliding_session_id", owner).
			Uint64("attempt", attempts).
			Msg("session seed collision, reseeding")
		seed = m.resalt(base, attempts)
	}

	s := &Session{
		ID:             id,
		Sequence:       sequence,
		Kind:           strings.TrimSpace(kind),
		Status:         StatusActive,
		Handle:         handle,
		Rng:            random.New(seed),
		ReseedAttempts: attempts,
		StartedTick:    tick,
	}
	m.sessions[id] = s
	m.seeds[seed] = id
	m.logger.Debug().Str("session_id", id).Uint64("sequence", sequence).Uint64("tick", tick).Msg("session started")
	return s, nil
}

// Complete marks a live session completed. It stays live for the grace
// period so notifications raised on completion still reach consumers.
func (m *Manager) Complete(id string, tick uint64) error {
	s, ok := m.sessions[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if s.Status == StatusCompleted {
		return nil
	}
	s.Status = StatusCompleted
	s.CompletedTick = tick
	return nil
}

// End archives and removes a session immediately.
func (m *Manager) End(id string, tick uint64) (Summary, bool) {
	s, ok := m.sessions[strings.TrimSpace(id)]
	if !ok {
		return Summary{}, false
	}
	return m.remove(s, tick), true
}

// Sweep removes completed sessions whose grace period has elapsed and returns
// their summaries in id order.
func (m *Manager) Sweep(tick uint64) []Summary {
	var due []*Session
	for _, s := range m.sessions {
		if s.Status == StatusCompleted && tick >= s.CompletedTick+m.grace {
			due = append(due, s)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	removed := make([]Summary, 0, len(due))
	for _, s := range due {
		removed = append(removed, m.remove(s, tick))
	}
	return removed
}

func (m *Manager) remove(s *Session, tick uint64) Summary {
	summary := s.Summarize(tick)
	delete(m.sessions, s.ID)
	if s.Rng != nil && m.seeds[s.Rng.Seed()] == s.ID {
		delete(m.seeds, s.Rng.Seed())
	}
	m.resolver.Release(s.Handle)
	m.archive = append(m.archive, summary)
	m.logger.Debug().Str("session_id", s.ID).Uint64("tick", tick).Msg("session archived")
	return summary
}

// Get returns the live session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	s, ok := m.sessions[strings.TrimSpace(id)]
	return s, ok
}

// Alive reports whether a session with id is live.
func (m *Manager) Alive(id string) bool {
	_, ok := m.sessions[id]
	return ok
}

// Active returns live sessions in id order.
func (m *Manager) Active() []*Session {
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Archive returns summaries of removed sessions in removal order.
func (m *Manager) Archive() []Summary {
	return append([]Summary(nil), m.archive...)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int { return len(m.sessions) }
