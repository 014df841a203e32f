// Package visual implements timer-driven presentation locks.
//
// A lock is a self-expiring token: membership in the pool is the lock state,
// and the only way out of the pool is for the lock's remaining duration to
// reach zero during Tick. There is no release call.
package visual

import (
	"math"

	"github.com/rs/zerolog"
)

// expiryEpsilon absorbs float drift from summing many small deltas.
const expiryEpsilon = 1e-9

// LockID identifies a lock within its pool.
type LockID uint64

// Lock is an outstanding presentation lock.
type Lock struct {
	ID          LockID
	Remaining   float64
	Description string
	// Owner is the stable id of the session whose notification created the
	// lock. It is informational: orphaned locks still block and still expire.
	Owner string
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// Pool holds outstanding locks in spawn order.
type Pool struct {
	nextID  LockID
	locks   []Lock
	expired uint64
	logger  zerolog.Logger
}

// NewPool creates an empty pool.
func NewPool(opts ...Option) *Pool {
	p := &Pool{logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Spawn adds a lock with no owning session.
func (p *Pool) Spawn(duration float64, description string) LockID {
	return p.SpawnFor("", duration, description)
}

// SpawnFor adds a lock attributed to owner. A duration of zero or less does
// not expire immediately: the lock stays observable until the next Tick.
func (p *Pool) SpawnFor(owner string, duration float64, description string) LockID {
	if math.IsNaN(duration) {
		duration = 0
	}
	p.nextID++
	p.locks = append(p.locks, Lock{
		ID:          p.nextID,
		Remaining:   duration,
		Description: description,
		Owner:       owner,
	})
	p.logger.Debug().
		Uint64("lock_id", uint64(p.nextID)).
		Float64("duration", duration).
		Str("owner", owner).
		Str("description", description).
		Msg("visual lock spawned")
	return p.nextID
}

// Tick advances every lock by dt and removes those whose remaining duration
// reached zero. The expired locks are returned in spawn order.
func (p *Pool) Tick(dt float64) []Lock {
	if dt < 0 || math.IsNaN(dt) {
		dt = 0
	}
	if len(p.locks) == 0 {
		return nil
	}
	var expired []Lock
	kept := p.locks[:0]
	for _, lock := range p.locks {
		lock.Remaining -= dt
		if lock.Remaining <= expiryEpsilon {
			lock.Remaining = 0
			expired = append(expired, lock)
			continue
		}
		kept = append(kept, lock)
	}
	for i := len(kept); i < len(p.locks); i++ {
		p.locks[i] = Lock{}
	}
	p.locks = kept
	p.expired += uint64(len(expired))
	for _, lock := range expired {
		p.logger.Debug().
			Uint64("lock_id", uint64(lock.ID)).
			Str("description", lock.Description).
			Msg("visual lock expired")
	}
	return expired
}

// ActiveCount returns the number of outstanding locks.
func (p *Pool) ActiveCount() int { return len(p.locks) }

// ExpiredTotal returns how many locks have expired since the pool was created.
func (p *Pool) ExpiredTotal() uint64 { return p.expired }

// Outstanding returns a copy of the outstanding locks in spawn order.
func (p *Pool) Outstanding() []Lock {
	out := make([]Lock, len(p.locks))
	copy(out, p.locks)
	return out
}

// Orphaned returns outstanding locks whose owner is set and no longer alive.
func (p *Pool) Orphaned(alive func(owner string) bool) []Lock {
	var out []Lock
	for _, lock := range p.locks {
		if lock.Owner == "" {
			continue
		}
		if alive != nil && alive(lock.Owner) {
			continue
		}
		out = append(out, lock)
	}
	return out
}
