// Package diff implements the change-detection core: stable identity keys
// for scraped store records and structural diffs (new / closed / modified)
// between two snapshots of the same retailer.
package diff

import (
	"encoding/json"
	"fmt"
)

// Record is one scraped store location. Records carry no fixed schema; the
// Schema decides which fields matter for identity and change detection, and
// any field absent from a record reads as the empty string.
type Record map[string]any

// Schema names the two field sets the algorithm recognizes.
//
// Identity fields must never contain mutable attributes (phone, hours, ...):
// a corrected phone number must show up as a modification, not as one store
// closing and another opening.
type Schema struct {
	// IDField is the retailer's native store identifier, preferred for keys.
	IDField string
	// URLField is the store's canonical page URL, the second key choice.
	URLField string
	// IdentityFields are the address-like fields hashed into a store's
	// stable identity. Must include PostalField.
	IdentityFields []string
	// ComparisonFields are the mutable attributes tracked for modification
	// detection, on top of the identity fields.
	ComparisonFields []string
	// PostalField is the canonical postal-code field name; PostalAlias is
	// the alternate name some sources use. Both resolve to PostalField
	// before hashing.
	PostalField string
	PostalAlias string
}

// DefaultSchema returns the conventional store-locator schema.
func DefaultSchema() Schema {
	return Schema{
		IDField:        "store_id",
		URLField:       "url",
		IdentityFields: []string{"street_address", "city", "state", "postal_code"},
		ComparisonFields: []string{
			"name", "phone", "hours", "store_type", "latitude", "longitude",
		},
		PostalField: "postal_code",
		PostalAlias: "zip",
	}
}

// trackedFields returns identity ∪ comparison fields, deduplicated, in a
// stable order (identity first).
func (s Schema) trackedFields() []string {
	seen := make(map[string]bool, len(s.IdentityFields)+len(s.ComparisonFields))
	out := make([]string, 0, len(s.IdentityFields)+len(s.ComparisonFields))
	for _, f := range s.IdentityFields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, f := range s.ComparisonFields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// fieldValue reads one schema field from a record, resolving the postal
// alias and defaulting absent or null fields to the empty string.
func (s Schema) fieldValue(r Record, field string) any {
	v, ok := r[field]
	if (!ok || v == nil) && field == s.PostalField && s.PostalAlias != "" {
		v, ok = r[s.PostalAlias]
	}
	if !ok || v == nil {
		return ""
	}
	return v
}

// MalformedRecordError reports a record that cannot participate in hashing
// or diffing: a snapshot entry that is not a JSON object, a nil record, or a
// field value that cannot be serialized. It is fatal for the whole call;
// silently skipping the record would corrupt the diff.
type MalformedRecordError struct {
	Index  int    // position in the input list
	Field  string // offending field, if the problem is a single value
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("malformed record at index %d: field %q: %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed record at index %d: %s", e.Index, e.Reason)
}

// DecodeRecords parses a snapshot payload: a UTF-8 JSON array of record
// objects, no wrapper. An array element that is not an object is a
// MalformedRecordError carrying the element's index.
func DecodeRecords(data []byte) ([]Record, error) {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("snapshot is not a JSON array: %w", err)
	}
	out := make([]Record, 0, len(raw))
	for i, el := range raw {
		m, ok := el.(map[string]any)
		if !ok {
			return nil, &MalformedRecordError{Index: i, Reason: fmt.Sprintf("expected object, got %T", el)}
		}
		out = append(out, Record(m))
	}
	return out, nil
}
