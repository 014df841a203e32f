package migrations

import (
	"io/fs"
	"testing"
)

func TestRecordingsFSContainsSchema(t *testing.T) {
	entries, err := fs.ReadDir(RecordingsFS, "recordings")
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one recordings migration")
	}
}
