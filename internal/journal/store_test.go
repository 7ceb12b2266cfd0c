package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/imapnotify/internal/bridge"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "journal_test.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func summaryAt(t *testing.T, started time.Time, notified int) bridge.Summary {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatal(err)
	}
	return bridge.Summary{
		RunID:    id,
		Started:  started,
		Finished: started.Add(1500 * time.Millisecond),
		Unseen:   notified + 2,
		Notified: notified,
		Skipped:  1,
		Reverted: 1,
	}
}

func TestLast_Empty(t *testing.T) {
	s := testStore(t)

	got, err := s.Last()
	if err != nil {
		t.Fatalf("Last() error: %v", err)
	}
	if got != nil {
		t.Errorf("Last() = %+v, want nil for empty journal", got)
	}
}

func TestRecordAndLast(t *testing.T) {
	s := testStore(t)
	base := time.Date(2024, 3, 1, 8, 0, 0, 123456789, time.UTC)

	first := summaryAt(t, base, 1)
	second := summaryAt(t, base.Add(5*time.Minute), 4)

	for _, sum := range []bridge.Summary{first, second} {
		if err := s.Record(sum); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}

	got, err := s.Last()
	if err != nil {
		t.Fatalf("Last() error: %v", err)
	}
	if got == nil {
		t.Fatal("Last() = nil, want second run")
	}
	if got.RunID != second.RunID {
		t.Errorf("RunID = %s, want %s", got.RunID, second.RunID)
	}
	if !got.Started.Equal(second.Started) || !got.Finished.Equal(second.Finished) {
		t.Errorf("times = %v..%v, want %v..%v", got.Started, got.Finished, second.Started, second.Finished)
	}
	if got.Notified != 4 || got.Unseen != 6 || got.Skipped != 1 || got.Reverted != 1 || got.Failed != 0 {
		t.Errorf("counts = %+v", got)
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestRecord_DuplicateRunID(t *testing.T) {
	s := testStore(t)
	sum := summaryAt(t, time.Now(), 1)

	if err := s.Record(sum); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := s.Record(sum); err == nil {
		t.Error("Record() with duplicate run_id should fail")
	}
}

func TestNewStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	s1, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	sum := summaryAt(t, time.Now(), 2)
	if err := s1.Record(sum); err != nil {
		t.Fatalf("Record: %v", err)
	}
	s1.Close()

	s2, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.Last()
	if err != nil || got == nil {
		t.Fatalf("Last() after reopen = %v, %v", got, err)
	}
	if got.RunID != sum.RunID {
		t.Errorf("RunID = %s, want %s", got.RunID, sum.RunID)
	}
}
