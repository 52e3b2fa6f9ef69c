// Package cache provides the process-wide, content-addressed disk cache
// shared by every pipeline stage. Entries are namespaced by component
// name so a single component's results can be invalidated without
// disturbing the rest of the cache (spec.md §3, §5).
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is the self-describing envelope stored on disk for every cached
// result: {component, timestamp, result}. ID is a debugging aid only —
// it has no bearing on the cache key, which stays a pure function of
// (component, input) so the same lookup always finds the same file
// regardless of which run wrote it.
type Entry struct {
	ID        string          `json:"id"`
	Component string          `json:"component"`
	Timestamp time.Time       `json:"timestamp"`
	Result    json.RawMessage `json:"result"`
}

// Cache is a content-addressed, component-namespaced disk cache. It is
// safe for concurrent use; writes are atomic via write-to-temp-then-
// rename, matching the teacher's pkg/fetch.DiskCache.
type Cache struct {
	dir string
}

// New creates (or opens) a disk cache rooted at dir.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", dir, err)
	}
	return &Cache{dir: dir}, nil
}

// Key computes the cache key for (component, input): the first 16 hex
// characters of SHA-256(canonical_json(component + input)), following
// spec.md §3/§6.
func Key(component string, input any) (string, error) {
	canonical, err := canonicalJSON(input)
	if err != nil {
		return "", fmt.Errorf("canonicalizing cache input: %w", err)
	}
	sum := sha256.Sum256(append([]byte(component+":"), canonical...))
	return hex.EncodeToString(sum[:])[:16], nil
}

// canonicalJSON marshals v with map keys sorted, matching Go's default
// encoding/json behavior for map[string]T but making the intent explicit
// for composite structs via a round-trip through a generic map when
// possible.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		// Defensive only: json.Marshal output always re-parses; use the raw marshal.
		return raw, nil
	}
	return json.Marshal(generic)
}

func (c *Cache) pathFor(component, key string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s.bin", component, key))
}

// Get retrieves a cached result for (component, input) and unmarshals it
// into dest. Returns false on a miss, including when the on-disk entry
// is missing or corrupt — a corrupt entry is deleted so subsequent reads
// don't keep failing (spec.md §5).
func (c *Cache) Get(component string, input any, dest any) (bool, error) {
	key, err := Key(component, input)
	if err != nil {
		return false, err
	}
	path := c.pathFor(component, key)

	data, err := os.ReadFile(path)
	if err != nil {
		return false, nil
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = os.Remove(path)
		return false, nil
	}
	if dest != nil {
		if err := json.Unmarshal(entry.Result, dest); err != nil {
			_ = os.Remove(path)
			return false, nil
		}
	}
	return true, nil
}

// Set stores result under the key derived from (component, input).
// Writes are atomic: the entry is written to a temp file in the same
// directory then renamed into place.
func (c *Cache) Set(component string, input any, result any) error {
	key, err := Key(component, input)
	if err != nil {
		return err
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling cache result: %w", err)
	}
	entry := Entry{ID: uuid.NewString(), Component: component, Timestamp: time.Now(), Result: resultJSON}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}

	path := c.pathFor(component, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cache temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming cache temp file: %w", err)
	}
	return nil
}

// Invalidate removes cached entries. When component is empty, every
// entry is removed; otherwise only entries for that component are.
// Returns the number of entries removed.
func (c *Cache) Invalidate(component string) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("reading cache directory: %w", err)
	}
	prefix := ""
	if component != "" {
		prefix = component + "_"
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".bin") {
			continue
		}
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, name)); err == nil {
			removed++
		}
	}
	return removed, nil
}
