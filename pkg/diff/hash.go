package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// canonicalValue returns a value safe for deterministic JSON serialization.
// JSON-native values pass through untouched; anything else falls back to its
// string form (fmt.Stringer, error) or fails as unserializable.
func canonicalValue(v any) (any, error) {
	switch v.(type) {
	case nil:
		return "", nil
	case string, bool, float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		json.Number:
		return v, nil
	}
	if _, err := json.Marshal(v); err == nil {
		return v, nil
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), nil
	}
	if e, ok := v.(error); ok {
		return e.Error(), nil
	}
	return nil, fmt.Errorf("unserializable value of type %T", v)
}

// hashFields serializes the given subset of a record as sorted-key JSON and
// returns the SHA-256 hex digest. Absent fields are included as "".
func hashFields(r Record, s Schema, fields []string) (string, error) {
	subset := make(map[string]any, len(fields))
	for _, f := range fields {
		v, err := canonicalValue(s.fieldValue(r, f))
		if err != nil {
			return "", &MalformedRecordError{Field: f, Reason: err.Error()}
		}
		subset[f] = v
	}
	return hashMap(subset)
}

// hashMap hashes an already-canonical map. encoding/json sorts map keys, so
// the serialization is deterministic regardless of insertion order.
func hashMap(m map[string]any) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// IdentityHash hashes only the identity fields of a record. Two snapshots of
// the same physical store hash identically as long as its address does not
// change, no matter which mutable attributes moved around it.
func IdentityHash(r Record, s Schema) (string, error) {
	return hashFields(r, s, s.IdentityFields)
}

// Fingerprint hashes identity plus comparison fields. It changes exactly
// when a tracked field's value changes, so the detector can skip field-level
// diffing for untouched records.
func Fingerprint(r Record, s Schema) (string, error) {
	return hashFields(r, s, s.trackedFields())
}

// FullHash hashes every field present in the record. Used only to
// disambiguate key collisions, never for identity.
func FullHash(r Record) (string, error) {
	m := make(map[string]any, len(r))
	for k, v := range r {
		cv, err := canonicalValue(v)
		if err != nil {
			return "", &MalformedRecordError{Field: k, Reason: err.Error()}
		}
		m[k] = cv
	}
	return hashMap(m)
}

// canonicalFieldBytes serializes one tracked field for equality comparison.
// Field deltas use the same canonical form as the fingerprint, so a
// fingerprint mismatch always yields at least one differing field.
func canonicalFieldBytes(r Record, s Schema, field string) ([]byte, any, error) {
	v, err := canonicalValue(s.fieldValue(r, field))
	if err != nil {
		return nil, nil, &MalformedRecordError{Field: field, Reason: err.Error()}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return b, v, nil
}
