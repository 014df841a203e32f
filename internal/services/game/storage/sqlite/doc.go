// Package sqlite persists recorded logs in SQLite.
//
// Each recording is one row in recordings plus one row per entry in
// recording_entries, keyed by position so load order matches save order.
// The command part of an entry is stored as JSON in the same encoding the
// JSONL log uses.
package sqlite
