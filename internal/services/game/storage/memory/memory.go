// Package memory provides an in-memory recording store for tests and
// single-process runs.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/roundtable/internal/services/game/domain/replay"
	"github.com/louisbranch/roundtable/internal/services/game/storage"
)

// Store keeps recordings in memory.
type Store struct {
	mu         sync.Mutex
	records    map[string]storage.RecordingRecord
	recordings map[string][]replay.Entry
	now        func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records:    make(map[string]storage.RecordingRecord),
		recordings: make(map[string][]replay.Entry),
		now:        time.Now,
	}
}

// SaveRecording stores a copy of entries under id.
func (s *Store) SaveRecording(ctx context.Context, id string, entries []replay.Entry) (storage.RecordingRecord, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return storage.RecordingRecord{}, err
		}
	}
	if s == nil {
		return storage.RecordingRecord{}, errors.New("recording store is required")
	}
	record, sorted, err := storage.Describe(id, entries, s.now())
	if err != nil {
		return storage.RecordingRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return storage.RecordingRecord{}, storage.ErrRecordingExists
	}
	s.records[record.ID] = record
	s.recordings[record.ID] = sorted
	return record, nil
}

// LoadRecording returns a copy of the entries saved under id.
func (s *Store) LoadRecording(ctx context.Context, id string) (storage.RecordingRecord, []replay.Entry, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return storage.RecordingRecord{}, nil, err
		}
	}
	if s == nil {
		return storage.RecordingRecord{}, nil, errors.New("recording store is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.RecordingRecord{}, nil, storage.ErrRecordingIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return storage.RecordingRecord{}, nil, storage.ErrNotFound
	}
	saved := s.recordings[id]
	entries := make([]replay.Entry, len(saved))
	for i, e := range saved {
		entries[i] = e.Clone()
	}
	return record, entries, nil
}

// ListRecordings returns every record ordered by id.
func (s *Store) ListRecordings(ctx context.Context) ([]storage.RecordingRecord, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if s == nil {
		return nil, errors.New("recording store is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]storage.RecordingRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

var _ storage.LogStore = (*Store)(nil)
