package snapshot

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/storewatch/storewatch/pkg/diff"
)

func testRecords(ids ...string) []diff.Record {
	out := make([]diff.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, diff.Record{"store_id": id})
	}
	return out
}

func TestLoadPreviousFirstRun(t *testing.T) {
	fs := NewFileStore(t.TempDir(), 5)
	records, err := fs.LoadPrevious("acme")
	if err != nil {
		t.Fatal(err)
	}
	if records != nil {
		t.Errorf("expected nil records on first run, got %v", records)
	}
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	fs := NewFileStore(t.TempDir(), 5)
	want := testRecords("1001", "1002")
	if err := fs.SaveCurrent("acme", want); err != nil {
		t.Fatal(err)
	}
	got, err := fs.LoadPrevious("acme")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("roundtrip mismatch: got %v, want %v", got, want)
	}
}

func TestSaveRotatesCurrentToPrevious(t *testing.T) {
	root := t.TempDir()
	fs := NewFileStore(root, 5)
	if err := fs.SaveCurrent("acme", testRecords("old")); err != nil {
		t.Fatal(err)
	}
	if err := fs.SaveCurrent("acme", testRecords("new")); err != nil {
		t.Fatal(err)
	}

	cur, err := LoadFile(filepath.Join(root, "acme", "current.json"))
	if err != nil {
		t.Fatal(err)
	}
	prev, err := LoadFile(filepath.Join(root, "acme", "previous.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cur[0]["store_id"] != "new" || prev[0]["store_id"] != "old" {
		t.Errorf("rotation wrong: current=%v previous=%v", cur, prev)
	}
}

func TestLoadCorruptSnapshotIsAnError(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "acme")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "current.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(root, 5).LoadPrevious("acme"); err == nil {
		t.Error("corrupt snapshot must not be treated as a first run")
	}
}

func TestLoadMalformedElementReportsIndex(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "acme")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "current.json"), []byte(`[{"store_id":"1"}, 42]`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewFileStore(root, 5).LoadPrevious("acme")
	var mErr *diff.MalformedRecordError
	if !errors.As(err, &mErr) {
		t.Fatalf("expected MalformedRecordError, got %v", err)
	}
	if mErr.Index != 1 {
		t.Errorf("expected index 1, got %d", mErr.Index)
	}
}

func TestAppendHistoryAndPrune(t *testing.T) {
	root := t.TempDir()
	fs := NewFileStore(root, 2)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		rep := &diff.Report{
			New:         []diff.Record{},
			Closed:      []diff.Record{},
			Modified:    []diff.Modification{},
			NewCount:    i,
			GeneratedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := fs.AppendHistory("acme", rep); err != nil {
			t.Fatal(err)
		}
	}

	reports, err := fs.History("acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 {
		t.Fatalf("retention kept %d reports, want 2", len(reports))
	}
	// Newest first.
	if reports[0].NewCount != 3 || reports[1].NewCount != 2 {
		t.Errorf("unexpected retained reports: %d, %d", reports[0].NewCount, reports[1].NewCount)
	}
}

func TestHistoryFileShape(t *testing.T) {
	root := t.TempDir()
	fs := NewFileStore(root, 0)
	rep := &diff.Report{
		New:         []diff.Record{{"store_id": "1"}},
		Closed:      []diff.Record{},
		Modified:    []diff.Modification{},
		NewCount:    1,
		GeneratedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	if err := fs.AppendHistory("acme", rep); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, "acme", "history", "changes-20260314-093000.json")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["new_count"] != float64(1) {
		t.Errorf("new_count = %v", decoded["new_count"])
	}
	if decoded["generated_at"] != "2026-03-14T09:30:00Z" {
		t.Errorf("generated_at = %v", decoded["generated_at"])
	}
}

func TestSaveCurrentLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	fs := NewFileStore(root, 5)
	if err := fs.SaveCurrent("acme", testRecords("1")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "acme"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "current.json" {
			t.Errorf("unexpected file after save: %s", e.Name())
		}
	}
}
