package diff

import (
	"bytes"
	"sort"
	"time"
)

// FieldDelta is one changed field on a modified store.
type FieldDelta struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Modification pairs a store key with the fields that changed on it.
type Modification struct {
	Key          string                `json:"key"`
	FieldChanges map[string]FieldDelta `json:"field_changes"`
}

// Report is the structured diff between two snapshots. Immutable once
// produced; the JSON shape is the history-file format.
type Report struct {
	New      []Record       `json:"new"`
	Closed   []Record       `json:"closed"`
	Modified []Modification `json:"modified"`

	NewCount      int       `json:"new_count"`
	ClosedCount   int       `json:"closed_count"`
	ModifiedCount int       `json:"modified_count"`
	GeneratedAt   time.Time `json:"generated_at"`

	// Keys parallel to New/Closed, in the same (sorted) order. Not part of
	// the report format; callers use them for printing and the change log.
	NewKeys    []string `json:"-"`
	ClosedKeys []string `json:"-"`

	// Collision counts from the underlying index builds, for the caller's
	// aggregate warning.
	PreviousCollisions int `json:"-"`
	CurrentCollisions  int `json:"-"`
}

// Empty reports whether the diff found no changes at all.
func (r *Report) Empty() bool {
	return r.NewCount == 0 && r.ClosedCount == 0 && r.ModifiedCount == 0
}

// Detector computes snapshot diffs for one retailer. Now is injectable so
// callers that need reproducible reports can pin the clock; it defaults to
// time.Now.
type Detector struct {
	Schema Schema
	Now    func() time.Time
}

// NewDetector returns a Detector over the given schema.
func NewDetector(s Schema) *Detector {
	return &Detector{Schema: s, Now: time.Now}
}

// Detect computes the three-way diff between the previous and current
// snapshots.
//
// A nil previous slice means no previous snapshot exists (first run): every
// current record is new, nothing is closed or modified. An empty non-nil
// previous is a legitimate empty snapshot and diffs normally, which yields
// the same all-new result.
//
// Output ordering is sorted by store key throughout, so identical inputs
// always produce an identical report (apart from GeneratedAt, which callers
// pin via Now when they need byte-identical output).
func (d *Detector) Detect(previous, current []Record) (*Report, error) {
	rep := &Report{
		New:      []Record{},
		Closed:   []Record{},
		Modified: []Modification{},
	}

	cur, err := BuildIndex(current, d.Schema)
	if err != nil {
		return nil, err
	}
	rep.CurrentCollisions = cur.Collisions

	var prev *Index
	if previous != nil {
		prev, err = BuildIndex(previous, d.Schema)
		if err != nil {
			return nil, err
		}
		rep.PreviousCollisions = prev.Collisions
	}

	for _, key := range sortedKeys(cur.Records) {
		if prev == nil {
			rep.New = append(rep.New, cur.Records[key])
			rep.NewKeys = append(rep.NewKeys, key)
			continue
		}
		old, existed := prev.Records[key]
		if !existed {
			rep.New = append(rep.New, cur.Records[key])
			rep.NewKeys = append(rep.NewKeys, key)
			continue
		}
		if prev.Fingerprints[key] == cur.Fingerprints[key] {
			continue
		}
		changes, err := d.fieldChanges(old, cur.Records[key])
		if err != nil {
			return nil, err
		}
		rep.Modified = append(rep.Modified, Modification{Key: key, FieldChanges: changes})
	}

	if prev != nil {
		for _, key := range sortedKeys(prev.Records) {
			if _, stillThere := cur.Records[key]; !stillThere {
				rep.Closed = append(rep.Closed, prev.Records[key])
				rep.ClosedKeys = append(rep.ClosedKeys, key)
			}
		}
	}

	rep.NewCount = len(rep.New)
	rep.ClosedCount = len(rep.Closed)
	rep.ModifiedCount = len(rep.Modified)
	now := d.Now
	if now == nil {
		now = time.Now
	}
	rep.GeneratedAt = now().UTC()
	return rep, nil
}

// fieldChanges compares every tracked field between two records and keeps
// only the ones that differ. Equality uses the same canonical serialization
// as the fingerprint, so a fingerprint mismatch always produces at least
// one delta here.
func (d *Detector) fieldChanges(old, cur Record) (map[string]FieldDelta, error) {
	out := make(map[string]FieldDelta)
	for _, f := range d.Schema.trackedFields() {
		ob, ov, err := canonicalFieldBytes(old, d.Schema, f)
		if err != nil {
			return nil, err
		}
		cb, cv, err := canonicalFieldBytes(cur, d.Schema, f)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(ob, cb) {
			out[f] = FieldDelta{Old: ov, New: cv}
		}
	}
	return out, nil
}

func sortedKeys(m map[string]Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
