// Package storage defines persistence for recorded logs.
//
// A recording is an ordered list of replay entries saved under a stable id,
// together with its digest so a loaded log can be checked against the run
// that produced it. Implementations live in subpackages.
//
// Common error types:
//   - ErrNotFound: requested recording is missing
//   - ErrRecordingExists: a recording with the same id was already saved
package storage
