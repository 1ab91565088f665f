package retailers

import (
	"context"
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/storewatch/storewatch/pkg/diff"
)

// fileSource reads a local snapshot file: a JSON array of record objects,
// the same format the snapshot store persists.
type fileSource struct {
	name string
	path string
}

func (s *fileSource) Name() string { return s.name }

func (s *fileSource) Fetch(_ context.Context) ([]diff.Record, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("retailer %s: %w", s.name, err)
	}
	records, err := diff.DecodeRecords(b)
	if err != nil {
		return nil, fmt.Errorf("retailer %s: %w", s.name, err)
	}
	return records, nil
}

// jsonSource fetches a store-locator JSON endpoint and extracts records via
// a configurable gjson path, optionally remapping fields.
type jsonSource struct {
	name string
	cfg  Config
}

func (s *jsonSource) Name() string { return s.name }

func (s *jsonSource) Fetch(ctx context.Context) ([]diff.Record, error) {
	body, err := fetchBody(ctx, newClient(), s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("retailer %s: %w", s.name, err)
	}
	return s.extract(body)
}

func (s *jsonSource) extract(body []byte) ([]diff.Record, error) {
	root := gjson.ParseBytes(body)
	if s.cfg.RecordsPath != "" {
		root = root.Get(s.cfg.RecordsPath)
	}
	if !root.IsArray() {
		return nil, fmt.Errorf("retailer %s: records path %q did not yield an array", s.name, s.cfg.RecordsPath)
	}

	items := root.Array()
	records := make([]diff.Record, 0, len(items))
	for i, item := range items {
		if len(s.cfg.Fields) == 0 {
			m, ok := item.Value().(map[string]any)
			if !ok {
				return nil, &diff.MalformedRecordError{Index: i, Reason: fmt.Sprintf("expected object, got %s", item.Type)}
			}
			records = append(records, diff.Record(m))
			continue
		}
		rec := make(diff.Record, len(s.cfg.Fields))
		for field, path := range s.cfg.Fields {
			if v := item.Get(path); v.Exists() {
				rec[field] = v.Value()
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
