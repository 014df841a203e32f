// Package replay defines the recorded log format.
//
// A log is an ordered sequence of entries, each a (tick, session id, request)
// triple. Entries carry stable identifiers only; the types in this package
// have no field able to hold a run-local handle. Logs are ordered by tick
// ascending and then by insertion order, and serialise one entry per line so
// two recordings diff line by line.
package replay
