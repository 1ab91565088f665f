package diff

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func fixedDetector() *Detector {
	d := NewDetector(DefaultSchema())
	d.Now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	return d
}

func TestDetectFirstRun(t *testing.T) {
	current := []Record{
		{"store_id": "2002", "name": "B", "street_address": "2 Oak", "city": "Y", "state": "NV"},
	}
	rep, err := fixedDetector().Detect(nil, current)
	if err != nil {
		t.Fatal(err)
	}
	if rep.NewCount != 1 || rep.ClosedCount != 0 || rep.ModifiedCount != 0 {
		t.Fatalf("first run counts = %d/%d/%d, want 1/0/0", rep.NewCount, rep.ClosedCount, rep.ModifiedCount)
	}
	if !reflect.DeepEqual(rep.New[0], current[0]) {
		t.Error("first run did not return the current record as new")
	}
	if rep.NewKeys[0] != "id:2002" {
		t.Errorf("NewKeys[0] = %q, want id:2002", rep.NewKeys[0])
	}
}

func TestDetectEmptyPreviousSnapshot(t *testing.T) {
	// An empty (but existing) previous snapshot behaves like a first run.
	rep, err := fixedDetector().Detect([]Record{}, []Record{{"store_id": "2002"}})
	if err != nil {
		t.Fatal(err)
	}
	if rep.NewCount != 1 || rep.ClosedCount != 0 || rep.ModifiedCount != 0 {
		t.Fatalf("counts = %d/%d/%d, want 1/0/0", rep.NewCount, rep.ClosedCount, rep.ModifiedCount)
	}
}

func TestDetectZeroDiff(t *testing.T) {
	snapshot := []Record{
		{"store_id": "1001", "name": "A"},
		{"street_address": "2 Oak Ave", "city": "Y", "state": "NV", "postal_code": "89001"},
	}
	rep, err := fixedDetector().Detect(snapshot, snapshot)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Empty() {
		t.Fatalf("identical snapshots produced changes: %d/%d/%d", rep.NewCount, rep.ClosedCount, rep.ModifiedCount)
	}
}

func TestDetectModifiedFieldDelta(t *testing.T) {
	previous := []Record{
		{"store_id": "1001", "name": "A", "street_address": "1 Main", "city": "X", "state": "CA"},
	}
	current := []Record{
		{"store_id": "1001", "name": "A2", "street_address": "1 Main", "city": "X", "state": "CA"},
	}
	rep, err := fixedDetector().Detect(previous, current)
	if err != nil {
		t.Fatal(err)
	}
	if rep.NewCount != 0 || rep.ClosedCount != 0 {
		t.Fatalf("rename leaked into new/closed: %d/%d", rep.NewCount, rep.ClosedCount)
	}
	want := []Modification{{
		Key:          "id:1001",
		FieldChanges: map[string]FieldDelta{"name": {Old: "A", New: "A2"}},
	}}
	if !reflect.DeepEqual(rep.Modified, want) {
		t.Errorf("Modified = %+v, want %+v", rep.Modified, want)
	}
}

func TestDetectKeyStableAcrossComparisonChanges(t *testing.T) {
	previous := []Record{
		{"street_address": "1 Main", "city": "X", "state": "CA", "postal_code": "90210", "phone": "555-0101"},
	}
	current := []Record{
		{"street_address": "1 Main", "city": "X", "state": "CA", "postal_code": "90210", "phone": "555-0199"},
	}
	rep, err := fixedDetector().Detect(previous, current)
	if err != nil {
		t.Fatal(err)
	}
	if rep.NewCount != 0 || rep.ClosedCount != 0 {
		t.Fatal("comparison-only change reported as new and/or closed")
	}
	if rep.ModifiedCount != 1 {
		t.Fatalf("ModifiedCount = %d, want 1", rep.ModifiedCount)
	}
	if _, ok := rep.Modified[0].FieldChanges["phone"]; !ok {
		t.Errorf("field_changes missing phone: %+v", rep.Modified[0].FieldChanges)
	}
}

// A second record appearing at an existing address changes that address's
// identity: the old un-suffixed key closes and two collision-suffixed keys
// open. Accepted tradeoff; see the BuildIndex doc comment.
func TestDetectCollisionAppearing(t *testing.T) {
	previous := []Record{
		{"street_address": "123 Main St", "city": "Springfield", "state": "IL", "postal_code": "62701", "name": "Kiosk A"},
	}
	current := []Record{
		{"street_address": "123 Main St", "city": "Springfield", "state": "IL", "postal_code": "62701", "name": "Kiosk A"},
		{"street_address": "123 Main St", "city": "Springfield", "state": "IL", "postal_code": "62701", "name": "Kiosk B"},
	}
	rep, err := fixedDetector().Detect(previous, current)
	if err != nil {
		t.Fatal(err)
	}
	if rep.NewCount != 2 || rep.ClosedCount != 1 || rep.ModifiedCount != 0 {
		t.Fatalf("counts = %d/%d/%d, want 2/1/0", rep.NewCount, rep.ClosedCount, rep.ModifiedCount)
	}
	for _, k := range rep.NewKeys {
		if !strings.Contains(k, "::col:") {
			t.Errorf("new key %q lacks collision suffix", k)
		}
	}
	if strings.Contains(rep.ClosedKeys[0], "::col:") {
		t.Errorf("closed key %q should be the original un-suffixed key", rep.ClosedKeys[0])
	}
	if rep.CurrentCollisions != 2 {
		t.Errorf("CurrentCollisions = %d, want 2", rep.CurrentCollisions)
	}
}

func TestDetectDeterministicReportBytes(t *testing.T) {
	previous := []Record{
		{"store_id": "1", "name": "A"},
		{"store_id": "2", "name": "B"},
		{"store_id": "3", "name": "C"},
	}
	current := []Record{
		{"store_id": "2", "name": "B2"},
		{"store_id": "3", "name": "C"},
		{"store_id": "4", "name": "D"},
	}
	d := fixedDetector()
	a, err := d.Detect(previous, current)
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.Detect(previous, current)
	if err != nil {
		t.Fatal(err)
	}
	ab, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	bb, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(ab) != string(bb) {
		t.Error("re-running Detect over the same snapshots did not produce byte-identical reports")
	}
}

func TestDetectReportJSONShape(t *testing.T) {
	rep, err := fixedDetector().Detect(
		[]Record{{"store_id": "1", "name": "A"}},
		[]Record{{"store_id": "1", "name": "A2"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(rep)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"new", "closed", "modified", "new_count", "closed_count", "modified_count", "generated_at"} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("report JSON missing %q", field)
		}
	}
	if decoded["generated_at"] != "2026-03-14T09:30:00Z" {
		t.Errorf("generated_at = %v", decoded["generated_at"])
	}
	mods := decoded["modified"].([]any)
	mod := mods[0].(map[string]any)
	fc := mod["field_changes"].(map[string]any)
	name := fc["name"].(map[string]any)
	if name["old"] != "A" || name["new"] != "A2" {
		t.Errorf("field_changes.name = %v", name)
	}
	// NewKeys and collision counters are internal, not part of the format.
	for _, hidden := range []string{"NewKeys", "ClosedKeys", "PreviousCollisions", "CurrentCollisions"} {
		if _, ok := decoded[hidden]; ok {
			t.Errorf("internal field %q leaked into report JSON", hidden)
		}
	}
}

func TestDetectMalformedPropagates(t *testing.T) {
	_, err := fixedDetector().Detect(
		[]Record{{"store_id": "1"}},
		[]Record{nil},
	)
	if err == nil {
		t.Fatal("malformed current record did not fail the call")
	}
}
