// Package report renders change reports for the terminal.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/storewatch/storewatch/pkg/diff"
)

// Print writes one line per change. Field deltas print inline; multi-line
// values (opening-hours blobs) get a unified diff instead.
func Print(w io.Writer, retailer string, rep *diff.Report) {
	for i, key := range rep.NewKeys {
		fmt.Fprintf(w, "🆕  %s  %s  %s\n", retailer, key, summary(rep.New[i]))
	}
	for i, key := range rep.ClosedKeys {
		fmt.Fprintf(w, "❌  %s  %s  %s\n", retailer, key, summary(rep.Closed[i]))
	}
	for _, m := range rep.Modified {
		fmt.Fprintf(w, "🔄  %s  %s\n", retailer, m.Key)
		for _, field := range sortedFields(m.FieldChanges) {
			fmt.Fprint(w, renderDelta(field, m.FieldChanges[field]))
		}
	}
}

// Summary renders the one-line counts trailer.
func Summary(rep *diff.Report) string {
	return fmt.Sprintf("%d new, %d closed, %d modified", rep.NewCount, rep.ClosedCount, rep.ModifiedCount)
}

// summary picks the most human-readable identifying fields off a record.
func summary(r diff.Record) string {
	var parts []string
	for _, f := range []string{"name", "street_address", "city", "state"} {
		if v, ok := r[f].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return "(no printable fields)"
	}
	return strings.Join(parts, ", ")
}

func renderDelta(field string, d diff.FieldDelta) string {
	oldS := valueString(d.Old)
	newS := valueString(d.New)
	if strings.Contains(oldS, "\n") || strings.Contains(newS, "\n") {
		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(oldS),
			B:        difflib.SplitLines(newS),
			FromFile: field + " (old)",
			ToFile:   field + " (new)",
			Context:  1,
		})
		if err == nil && text != "" {
			return indent(text)
		}
	}
	return fmt.Sprintf("      %s: %q -> %q\n", field, oldS, newS)
}

func valueString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func indent(text string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(strings.TrimRight(text, "\n"), "\n") {
		b.WriteString("      ")
		b.WriteString(line)
	}
	b.WriteString("\n")
	return b.String()
}

func sortedFields(m map[string]diff.FieldDelta) []string {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
