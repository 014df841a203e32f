// Package random provides the session-scoped deterministic random stream.
//
// There is no package-level generator. Every draw made on behalf of a session
// goes through the *Rng owned by that session, so the sequence of values is a
// pure function of the session seed and the order of calls.
package random

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

// ErrInvalidRange indicates a range draw with lo greater than hi.
var ErrInvalidRange = errors.New("invalid range: lo must not exceed hi")

// RangeError is the panic value raised for an invalid range draw.
type RangeError struct {
	Lo int
	Hi int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%v (lo=%d, hi=%d)", ErrInvalidRange, e.Lo, e.Hi)
}

// Unwrap exposes ErrInvalidRange to errors.Is.
func (e *RangeError) Unwrap() error { return ErrInvalidRange }

// SessionSeed derives the seed for a session from its stable identifier and
// sequence number. The hash is length-prefixed so ("ab", 1) and ("a", ...)
// can never share an encoding, and it does not depend on machine word size,
// byte order, or process state.
func SessionSeed(stableID string, sequence uint64) uint64 {
	var buf [8]byte
	d := xxhash.New()
	binary.LittleEndian.PutUint64(buf[:], uint64(len(stableID)))
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(stableID)
	binary.LittleEndian.PutUint64(buf[:], sequence)
	_, _ = d.Write(buf[:])
	return splitmix(d.Sum64())
}

// Resalt derives a replacement seed when a collision is detected. The result
// depends only on the inputs, so a replayed run reseeds identically.
func Resalt(seed uint64, attempt uint64) uint64 {
	return splitmix(seed ^ splitmix(attempt+0x9e3779b97f4a7c15))
}

// Rng is a seeded pseudorandom stream. It is not safe for concurrent use;
// sessions are advanced by a single tick pass at a time.
type Rng struct {
	seed        uint64
	src         *rand.PCG
	draws       uint64
	fingerprint uint64
}

// New creates a stream for seed.
func New(seed uint64) *Rng {
	return &Rng{
		seed: seed,
		src:  rand.NewPCG(seed, splitmix(seed)),
	}
}

// Seed returns the seed the stream was created with.
func (r *Rng) Seed() uint64 { return r.seed }

// Draws returns how many raw values have been consumed.
func (r *Rng) Draws() uint64 { return r.draws }

// Fingerprint folds every value drawn so far into a single hash. Two streams
// with equal fingerprints and draw counts produced the same sequence.
func (r *Rng) Fingerprint() uint64 { return r.fingerprint }

// Range returns a value in the inclusive interval [lo, hi].
// It panics with *RangeError when lo > hi.
func (r *Rng) Range(lo, hi int) int {
	if lo > hi {
		panic(&RangeError{Lo: lo, Hi: hi})
	}
	span := uint64(int64(hi)-int64(lo)) + 1
	if span == 0 {
		return int(r.next())
	}
	return lo + int(r.uint64n(span))
}

// Die rolls a single die with the given number of sides.
func (r *Rng) Die(sides int) int {
	return r.Range(1, sides)
}

// Float returns a value in the half-open interval [lo, hi).
// It panics with *RangeError when lo > hi.
func (r *Rng) Float(lo, hi float64) float64 {
	if lo > hi || math.IsNaN(lo) || math.IsNaN(hi) {
		panic(&RangeError{Lo: int(lo), Hi: int(hi)})
	}
	unit := float64(r.next()>>11) / (1 << 53)
	return lo + unit*(hi-lo)
}

// Chance reports true with probability p.
func (r *Rng) Chance(p float64) bool {
	return r.Float(0, 1) < p
}

// Shuffle permutes n elements in place using swap.
func (r *Rng) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := r.Range(0, i)
		swap(i, j)
	}
}

// uint64n draws uniformly from [0, n) without modulo bias.
func (r *Rng) uint64n(n uint64) uint64 {
	if n&(n-1) == 0 {
		return r.next() & (n - 1)
	}
	threshold := -n % n
	for {
		v := r.next()
		if v >= threshold {
			return v % n
		}
	}
}

func (r *Rng) next() uint64 {
	v := r.src.Uint64()
	r.draws++
	r.fingerprint = splitmix(r.fingerprint ^ v)
	return v
}

func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
