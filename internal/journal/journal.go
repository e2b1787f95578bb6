// Package journal keeps the timestamped results of a capture session in
// memory and writes them to JSON files once enough have accumulated.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/andresmejia3/aist/internal/utils"
)

// KeyLayout is fixed width so that keys sort chronologically as strings.
const KeyLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultFlushEvery matches the recognizer default of 500 entries per file.
const DefaultFlushEvery = 500

// Journal maps timestamps to results. A Journal with an empty dir never
// writes on its own; Save still works.
type Journal struct {
	mu         sync.Mutex
	dir        string
	flushEvery int
	entries    map[string]any
	files      []string
	now        func() time.Time
}

// New returns a journal that flushes to dir every flushEvery entries.
func New(dir string, flushEvery int) *Journal {
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}
	return &Journal{
		dir:        dir,
		flushEvery: flushEvery,
		entries:    make(map[string]any),
		now:        time.Now,
	}
}

// Open creates a session directory named after start under root and returns
// a journal writing into it.
func Open(root string, flushEvery int, start time.Time) (*Journal, error) {
	dir := filepath.Join(root, utils.SessionName(start))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return New(dir, flushEvery), nil
}

// Dir returns the session directory ("" when auto flushing is off).
func (j *Journal) Dir() string { return j.dir }

// Record stores entry under the timestamp at, flushing when the threshold is reached.
func (j *Journal) Record(at time.Time, entry any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	key := at.Format(KeyLayout)
	for {
		if _, taken := j.entries[key]; !taken {
			break
		}
		at = at.Add(time.Nanosecond)
		key = at.Format(KeyLayout)
	}
	j.entries[key] = entry

	if j.dir != "" && len(j.entries) >= j.flushEvery {
		return j.flushLocked()
	}
	return nil
}

// Len returns the number of entries held in memory.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Snapshot returns a copy of the in-memory entries.
func (j *Journal) Snapshot() map[string]any {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string]any, len(j.entries))
	for k, v := range j.entries {
		out[k] = v
	}
	return out
}

// Files returns the paths written by automatic flushes.
func (j *Journal) Files() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.files...)
}

// Save writes all entries to path, optionally clearing them afterwards.
func (j *Journal) Save(path string, clear bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := writeJSON(path, j.entries); err != nil {
		return err
	}
	if clear {
		j.entries = make(map[string]any)
	}
	return nil
}

// Flush writes pending entries to a new file in the session directory.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.dir == "" || len(j.entries) == 0 {
		return nil
	}
	return j.flushLocked()
}

// Close flushes whatever is left.
func (j *Journal) Close() error {
	return j.Flush()
}

func (j *Journal) flushLocked() error {
	base := utils.SessionName(j.now())
	path := filepath.Join(j.dir, base+".json")
	for i := 1; fileExists(path); i++ {
		path = filepath.Join(j.dir, fmt.Sprintf("%s-%d.json", base, i))
	}
	if err := writeJSON(path, j.entries); err != nil {
		return err
	}
	j.files = append(j.files, path)
	j.entries = make(map[string]any)
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode log: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write log %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Load reads a log file written by Save or Flush.
func Load(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode log %s: %w", path, err)
	}
	return out, nil
}
