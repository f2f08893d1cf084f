// Package cache stores backend output on disk, keyed by source text and
// the configuration that produced it.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Bump when Entry changes shape.
const schemaVersion uint16 = 1

// Key fingerprints one compilation unit.
func Key(source []byte, fingerprint string) uint64 {
	d := xxhash.New()
	d.Write(source)
	d.WriteString("\x00")
	d.WriteString(fingerprint)
	return d.Sum64()
}

// Entry is the cached result of compiling one unit.
type Entry struct {
	Schema  uint16
	Unit    string
	Backend string
	IR      bool // Output is textual IR rather than final backend output
	Output  []byte
}

// Cache is a directory of msgpack-encoded entries. A nil *Cache caches nothing.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Open creates dir if needed. An empty dir selects $XDG_CACHE_HOME/bas.
func Open(dir string) (*Cache, error) {
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("locating cache directory: %w", err)
		}
		dir = filepath.Join(base, "bas")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) Dir() string { return c.dir }

func (c *Cache) pathFor(key uint64) string {
	return filepath.Join(c.dir, "units", fmt.Sprintf("%016x.mp", key))
}

// Put writes e under key, replacing any older entry atomically.
func (c *Cache) Put(key uint64, e *Entry) error {
	if c == nil { return nil }
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	e.Schema = schemaVersion
	if err := msgpack.NewEncoder(f).Encode(e); err != nil {
		f.Close()
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads the entry stored under key. Entries of another schema are misses.
func (c *Cache) Get(key uint64) (*Entry, bool, error) {
	if c == nil { return nil, false, nil }
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var e Entry
	if err := msgpack.NewDecoder(f).Decode(&e); err != nil {
		return nil, false, fmt.Errorf("decoding cache entry: %w", err)
	}
	if e.Schema != schemaVersion { return nil, false, nil }
	return &e, true, nil
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	if c == nil { return nil }
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(filepath.Join(c.dir, "units"))
}
