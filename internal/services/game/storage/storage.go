package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/louisbranch/roundtable/internal/services/game/domain/replay"
)

// ErrNotFound indicates a requested recording is missing.
var ErrNotFound = errors.New("recording not found")

// ErrRecordingExists indicates a save under an id that is already taken.
// Recordings are immutable once saved.
var ErrRecordingExists = errors.New("recording already exists")

// ErrRecordingIDRequired indicates a missing recording id.
var ErrRecordingIDRequired = errors.New("recording id is required")

// RecordingRecord describes a saved recording without its entries.
type RecordingRecord struct {
	ID       string
	Entries  int
	Sessions int
	LastTick uint64
	// Digest is replay.Digest of the saved entries.
	Digest    string
	CreatedAt time.Time
}

// LogStore persists recorded logs.
type LogStore interface {
	SaveRecording(ctx context.Context, id string, entries []replay.Entry) (RecordingRecord, error)
	LoadRecording(ctx context.Context, id string) (RecordingRecord, []replay.Entry, error)
	ListRecordings(ctx context.Context) ([]RecordingRecord, error)
}

// Describe validates entries and builds the record a store saves alongside
// them. Entries are sorted by tick before the digest is taken.
func Describe(id string, entries []replay.Entry, now time.Time) (RecordingRecord, []replay.Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return RecordingRecord{}, nil, ErrRecordingIDRequired
	}
	sorted := make([]replay.Entry, 0, len(entries))
	sessions := make(map[string]struct{})
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return RecordingRecord{}, nil, err
		}
		sorted = append(sorted, e.Clone())
		sessions[e.SessionID] = struct{}{}
	}
	replay.Sort(sorted)
	digest, err := replay.Digest(sorted)
	if err != nil {
		return RecordingRecord{}, nil, err
	}
	lastTick, _ := replay.LastTick(sorted)
	return RecordingRecord{
		ID:        id,
		Entries:   len(sorted),
		Sessions:  len(sessions),
		LastTick:  lastTick,
		Digest:    digest,
		CreatedAt: now.UTC(),
	}, sorted, nil
}
