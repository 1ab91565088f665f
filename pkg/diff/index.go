package diff

import (
	"errors"
	"fmt"
)

// Index maps assigned store keys to records and fingerprints for one
// snapshot. Collisions counts the records that needed a collision suffix;
// it is returned rather than logged so the caller can attach retailer
// context to the single aggregate warning.
type Index struct {
	Records      map[string]Record
	Fingerprints map[string]string
	Collisions   int
}

// Get returns the record for a key.
func (ix *Index) Get(key string) (Record, bool) {
	r, ok := ix.Records[key]
	return r, ok
}

// Len returns the number of indexed records.
func (ix *Index) Len() int {
	return len(ix.Records)
}

// BuildIndex assigns a unique key and a fingerprint to every record.
//
// The build is two-pass on purpose. Pass 1 only groups records by base key,
// making no irreversible decisions, so pass 2 can disambiguate colliding
// records by their full content hash instead of their input position. That
// keeps key assignment independent of record order: reordering a snapshot
// never reshuffles suffixes and never fakes a closure plus an addition.
// Only true duplicates (every field equal) fall back to a positional
// suffix, which is not stable under reordering; that limitation is accepted
// since no content-based key can tell identical records apart.
//
// The input list is not mutated. Malformed records (nil entries,
// unserializable field values) fail the whole build with a
// MalformedRecordError; dropping one would silently mark it closed.
func BuildIndex(records []Record, s Schema) (*Index, error) {
	type entry struct {
		pos int
		fp  string
	}
	groups := make(map[string][]entry, len(records))
	order := make([]string, 0, len(records))

	for i, r := range records {
		if r == nil {
			return nil, &MalformedRecordError{Index: i, Reason: "record is nil"}
		}
		idh, err := IdentityHash(r, s)
		if err != nil {
			return nil, at(err, i)
		}
		fp, err := Fingerprint(r, s)
		if err != nil {
			return nil, at(err, i)
		}
		base := StoreKey(r, s, idh)
		if _, seen := groups[base]; !seen {
			order = append(order, base)
		}
		groups[base] = append(groups[base], entry{pos: i, fp: fp})
	}

	ix := &Index{
		Records:      make(map[string]Record, len(records)),
		Fingerprints: make(map[string]string, len(records)),
	}
	for _, base := range order {
		group := groups[base]
		if len(group) == 1 {
			ix.Records[base] = records[group[0].pos]
			ix.Fingerprints[base] = group[0].fp
			continue
		}
		// Collision: disambiguate every record in the group by content.
		ix.Collisions += len(group)
		taken := make(map[string]bool, len(group))
		for j, e := range group {
			fh, err := FullHash(records[e.pos])
			if err != nil {
				return nil, at(err, e.pos)
			}
			key := base + "::col:" + fh
			if taken[key] {
				// True duplicate: every field equal. Positional suffix
				// is the last resort; see the doc comment above.
				key = fmt.Sprintf("%s::%d", key, j)
			}
			taken[key] = true
			ix.Records[key] = records[e.pos]
			ix.Fingerprints[key] = e.fp
		}
	}
	return ix, nil
}

// at stamps a record index onto a MalformedRecordError bubbling up from the
// hashing layer.
func at(err error, index int) error {
	var mErr *MalformedRecordError
	if errors.As(err, &mErr) {
		mErr.Index = index
		return mErr
	}
	return err
}
