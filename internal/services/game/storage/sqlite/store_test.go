package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/louisbranch/roundtable/internal/services/game/domain/replay"
	"github.com/louisbranch/roundtable/internal/services/game/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recordings.db")
	store, err := Open(context.Background(), path, WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func battleEntries() []replay.Entry {
	return []replay.Entry{
		{Tick: 1, SessionID: "battle-007", Command: replay.Command{Type: "combat.start", OpensSession: true, Payload: []byte(`{"sequence":1}`)}},
		{Tick: 1, SessionID: "battle-007", Command: replay.Command{
			Type:         "combat.spawn",
			Participants: []replay.Ref{{Role: "unit", ID: "goblin", Spawn: true}},
			Payload:      []byte(`{"hp":7,"side":"enemy"}`),
		}},
		{Tick: 10, SessionID: "battle-007", Command: replay.Command{
			Type:         "combat.damage",
			Participants: []replay.Ref{{Role: "attacker", ID: "hero"}, {Role: "target", ID: "goblin"}},
			Payload:      []byte(`{"dice":2,"sides":6}`),
		}},
		{Tick: 12, SessionID: "org-A", Command: replay.Command{Type: "settlement.settle"}},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	saved, err := store.SaveRecording(context.Background(), "run-1", battleEntries())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Entries != 4 || saved.Sessions != 2 || saved.LastTick != 12 {
		t.Fatalf("record = %+v", saved)
	}

	loaded, entries, err := store.LoadRecording(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(saved, loaded); diff != "" {
		t.Fatalf("record mismatch (-saved +loaded):\n%s", diff)
	}
	want := battleEntries()
	want[3].Command.Payload = []byte("{}")
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveRecordingRejectsDuplicateID(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.SaveRecording(context.Background(), "run-1", battleEntries()); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, err := store.SaveRecording(context.Background(), "run-1", battleEntries()[:1])
	if !errors.Is(err, storage.ErrRecordingExists) {
		t.Fatalf("save = %v, want %v", err, storage.ErrRecordingExists)
	}
	_, entries, err := store.LoadRecording(context.Background(), "run-1")
	if err != nil || len(entries) != 4 {
		t.Fatalf("load = %d entries, %v; want original recording intact", len(entries), err)
	}
}

func TestLoadRecordingNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, _, err := store.LoadRecording(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("load = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestLoadRecordingDetectsTampering(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.SaveRecording(context.Background(), "run-1", battleEntries()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.sqlDB.Exec(`UPDATE recording_entries SET tick = 11 WHERE position = 2`); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, _, err := store.LoadRecording(context.Background(), "run-1"); err == nil {
		t.Fatal("expected digest mismatch")
	}
}

func TestListRecordings(t *testing.T) {
	store := openTestStore(t)
	for _, id := range []string{"run-b", "run-a"} {
		if _, err := store.SaveRecording(context.Background(), id, battleEntries()); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	records, err := store.ListRecordings(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[0].ID != "run-a" || records[1].ID != "run-b" {
		t.Fatalf("records = %+v, want sorted by id", records)
	}
	if records[0].Digest != records[1].Digest {
		t.Fatal("expected equal logs to share a digest")
	}
}

func TestOpenReappliesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recordings.db")
	first, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := first.SaveRecording(context.Background(), "run-1", battleEntries()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	second, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if _, _, err := second.LoadRecording(context.Background(), "run-1"); err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("expected path error")
	}
}

func TestOpenInMemory(t *testing.T) {
	store, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if _, err := store.SaveRecording(context.Background(), "run-1", battleEntries()); err != nil {
		t.Fatalf("save: %v", err)
	}
}
