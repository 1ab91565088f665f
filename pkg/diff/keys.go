package diff

import (
	"fmt"
	"strings"
	"unicode"
)

// NormalizeAddress applies minimal canonicalization suitable for key
// construction: lower-case, with every run of non-alphanumeric characters
// collapsed to a single "-". "123 Main St." and "123  main st" normalize
// identically; abbreviation expansion ("St." vs "Street") is deliberately
// not attempted.
func NormalizeAddress(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	sep := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if sep && b.Len() > 0 {
				b.WriteByte('-')
			}
			sep = false
			b.WriteRune(r)
		} else {
			sep = true
		}
	}
	return b.String()
}

// stringField reads a record field as a trimmed string, coercing non-string
// scalars. Unserializable values read as empty so key assignment never
// fails; they surface later through hashing.
func stringField(r Record, field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	cv, err := canonicalValue(v)
	if err != nil {
		return ""
	}
	if s, ok := cv.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(cv))
}

// StoreKey builds the base key used to match a store across snapshots.
// Priority: native id, then canonical URL, then normalized address text plus
// the first 8 hex characters of the identity hash. A record with no address
// at all still gets a valid (degenerate) key.
func StoreKey(r Record, s Schema, identityHash string) string {
	if id := stringField(r, s.IDField); id != "" {
		return "id:" + id
	}
	if u := stringField(r, s.URLField); u != "" {
		return "url:" + u
	}
	parts := make([]string, 0, len(s.IdentityFields))
	for _, f := range s.IdentityFields {
		if v := stringField(r, f); v == "" && f == s.PostalField && s.PostalAlias != "" {
			parts = append(parts, stringField(r, s.PostalAlias))
		} else {
			parts = append(parts, v)
		}
	}
	addr := NormalizeAddress(strings.Join(parts, " "))
	h := identityHash
	if len(h) > 8 {
		h = h[:8]
	}
	return "addr:" + addr + "::" + h
}
