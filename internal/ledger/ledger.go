// Package ledger implements the durable dedup store for transferred files.
//
// A ledger maps filename to a small metadata record. Presence of a key means
// "this file has been successfully processed"; absence means pending or never
// seen. Keys are never removed by the sync engine itself — re-processing a
// file requires an external edit (the `ledger forget` CLI command).
//
// The syncer runs two independent instances: one deduplicating FlashAir
// downloads, one deduplicating archive uploads.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shayo/flysto-sync/internal/logging"
)

// Entry records what was known about a file when it was processed.
type Entry struct {
	Size     int64     `json:"size"`
	Modified int64     `json:"modified"`
	SyncedAt time.Time `json:"synced_at"`
}

// Ledger is a filename-keyed dedup store persisted as a single JSON file.
// Every mutation rewrites the whole file; there are no partial writes.
type Ledger struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
}

// Open loads the ledger at path. A missing file starts the ledger empty.
// A corrupt file also starts it empty: the damage is logged and swallowed,
// at the cost of re-processing files recorded in the lost entries.
func Open(path string) (*Ledger, error) {
	l := &Ledger{
		path:    path,
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	if err := json.Unmarshal(data, &l.entries); err != nil {
		logging.Warn("ledger file corrupt, starting empty",
			zap.String("path", path), zap.Error(err))
		l.entries = make(map[string]Entry)
	}
	return l, nil
}

// IsRecorded reports whether name has already been processed.
func (l *Ledger) IsRecorded(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[name]
	return ok
}

// MarkDone records name as processed and persists the ledger immediately.
func (l *Ledger) MarkDone(name string, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.SyncedAt.IsZero() {
		e.SyncedAt = time.Now().UTC()
	}
	l.entries[name] = e
	return l.persistLocked()
}

// Forget removes name from the ledger so it will be processed again. This is
// the external-edit path; nothing in the sync engine calls it.
func (l *Ledger) Forget(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[name]; !ok {
		return fmt.Errorf("%q not recorded", name)
	}
	delete(l.entries, name)
	return l.persistLocked()
}

// Names returns all recorded filenames, sorted.
func (l *Ledger) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the entry for name, if recorded.
func (l *Ledger) Get(name string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[name]
	return e, ok
}

// Len returns the number of recorded files.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Ledger) persistLocked() error {
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}
