// Package session owns the lifecycle of turn-structured sessions.
//
// A session is one bounded unit of work, such as a combat encounter or a
// settlement period. It is created when its start request is processed, owns
// exactly one deterministic random stream, and is archived either by its end
// request or one grace tick after it completes.
//
// Sessions coexist and are advanced in the same tick, but never in parallel:
// isolation is a matter of ownership, not locking.
package session
