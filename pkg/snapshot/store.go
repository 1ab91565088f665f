// Package snapshot persists per-retailer snapshot files and rotating
// change-report history.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/storewatch/storewatch/pkg/diff"
)

const (
	currentFile   = "current.json"
	previousFile  = "previous.json"
	historyDir    = "history"
	historyPrefix = "changes-"
)

// Store is the persistence collaborator the poll flow injects into the
// change-detection run. LoadPrevious returns (nil, nil) when no snapshot
// exists yet, which the detector treats as a first run.
type Store interface {
	LoadPrevious(retailer string) ([]diff.Record, error)
	SaveCurrent(retailer string, records []diff.Record) error
	AppendHistory(retailer string, report *diff.Report) error
}

// FileStore keeps snapshots under <Root>/<retailer>/: the latest snapshot
// in current.json, the one before it in previous.json, and one dated JSON
// report per run under history/, pruned to the Keep newest (Keep <= 0
// disables pruning).
type FileStore struct {
	Root string
	Keep int
}

// NewFileStore returns a FileStore rooted at root.
func NewFileStore(root string, keep int) *FileStore {
	return &FileStore{Root: root, Keep: keep}
}

func (fs *FileStore) dir(retailer string) string {
	return filepath.Join(fs.Root, retailer)
}

// LoadPrevious reads the last run's snapshot, i.e. current.json as left by
// the previous SaveCurrent. Absent file means first run and returns
// (nil, nil); a present but unreadable or corrupt file is an error, so the
// caller never mistakes corruption for a fresh start.
func (fs *FileStore) LoadPrevious(retailer string) ([]diff.Record, error) {
	return LoadFile(filepath.Join(fs.dir(retailer), currentFile))
}

// LoadFile reads one snapshot file: a JSON array of record objects.
// A missing file returns (nil, nil).
func LoadFile(path string) ([]diff.Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	records, err := diff.DecodeRecords(b)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return records, nil
}

// SaveCurrent writes the new snapshot and rolls the old current.json to
// previous.json. The new content lands in a temp file first and is renamed
// into place last, so a crash at any point leaves the last-known-good
// snapshot readable for the next run.
func (fs *FileStore) SaveCurrent(retailer string, records []diff.Record) error {
	if records == nil {
		records = []diff.Record{}
	}
	dir := fs.dir(retailer)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := writeTemp(dir, b)
	if err != nil {
		return err
	}
	cur := filepath.Join(dir, currentFile)
	if _, err := os.Stat(cur); err == nil {
		if err := os.Rename(cur, filepath.Join(dir, previousFile)); err != nil {
			_ = os.Remove(tmp)
			return err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, cur)
}

// AppendHistory writes the report to a dated file under history/ and prunes
// old entries beyond Keep.
func (fs *FileStore) AppendHistory(retailer string, report *diff.Report) error {
	dir := filepath.Join(fs.dir(retailer), historyDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := writeTemp(dir, b)
	if err != nil {
		return err
	}
	name := historyPrefix + report.GeneratedAt.UTC().Format("20060102-150405") + ".json"
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		return err
	}
	return fs.prune(dir)
}

// History lists a retailer's persisted reports, newest first.
func (fs *FileStore) History(retailer string) ([]*diff.Report, error) {
	dir := filepath.Join(fs.dir(retailer), historyDir)
	names, err := historyNames(dir)
	if err != nil {
		return nil, err
	}
	reports := make([]*diff.Report, 0, len(names))
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var rep diff.Report
		if err := json.Unmarshal(b, &rep); err != nil {
			return nil, fmt.Errorf("decode history %s: %w", name, err)
		}
		reports = append(reports, &rep)
	}
	return reports, nil
}

func (fs *FileStore) prune(dir string) error {
	if fs.Keep <= 0 {
		return nil
	}
	names, err := historyNames(dir)
	if err != nil {
		return err
	}
	for _, name := range names[min(fs.Keep, len(names)):] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// historyNames returns history file names sorted newest first. The dated
// name format sorts lexicographically, so no parsing is needed.
func historyNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), historyPrefix) && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func writeTemp(dir string, b []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
