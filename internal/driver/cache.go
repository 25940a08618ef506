package driver

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"modpatch/internal/meta"
	"modpatch/internal/modfile"
	"modpatch/internal/rewrite"
)

// Current schema version - increment when cachePayload format changes
const cacheSchemaVersion uint16 = 1

// Key addresses one cached pass: the input module, the rule table and the
// options that influence the result.
type Key [sha256.Size]byte

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// CacheKey derives the cache key for mod under rulesKey.
func CacheKey(mod *meta.Module, rulesKey string, platformVariant bool, maxIterations int) (Key, error) {
	sum, err := modfile.Sum(mod)
	if err != nil {
		return Key{}, err
	}
	h := sha256.New()
	h.Write(sum[:])
	fmt.Fprintf(h, "\x00%s\x00%t\x00%d", rulesKey, platformVariant, maxIterations)
	var k Key
	copy(k[:], h.Sum(nil))
	return k, nil
}

// Cache stores finished passes on disk so unchanged mods are not rewritten
// again. Defects are never cached. Safe for concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

type cachePayload struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	Result *rewrite.ModuleResult

	// Module is the rewritten module in modfile encoding; empty when the
	// pass left the module unchanged.
	Module []byte
}

// Entry is a cache hit.
type Entry struct {
	Result *rewrite.ModuleResult
	// Module is nil when the pass did not change the input.
	Module *meta.Module
}

// DefaultCacheDir returns $XDG_CACHE_HOME/modpatch or ~/.cache/modpatch.
func DefaultCacheDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "modpatch"), nil
}

// OpenCache opens or creates a cache rooted at dir.
func OpenCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *Cache) pathFor(key Key) string {
	return filepath.Join(c.dir, "passes", key.String()+".mp")
}

// Put records a finished pass. mod is the rewritten module, or nil when
// the pass changed nothing.
func (c *Cache) Put(key Key, res *rewrite.ModuleResult, mod *meta.Module) (err error) {
	if c == nil {
		return nil
	}
	payload := &cachePayload{Schema: cacheSchemaVersion, Result: res}
	if mod != nil {
		var buf bytes.Buffer
		if err := modfile.Write(&buf, mod); err != nil {
			return err
		}
		payload.Module = buf.Bytes()
	}

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
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	if err = msgpack.NewEncoder(f).Encode(payload); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	// atomic replace
	return os.Rename(f.Name(), p)
}

// Get looks a pass up. Entries from another schema are misses.
func (c *Cache) Get(key Key) (*Entry, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var payload cachePayload
	if err := msgpack.Unmarshal(data, &payload); err != nil {
		return nil, false, fmt.Errorf("cache entry %s: %w", key, err)
	}
	if payload.Schema != cacheSchemaVersion || payload.Result == nil {
		return nil, false, nil
	}
	entry := &Entry{Result: payload.Result}
	if len(payload.Module) > 0 {
		if entry.Module, err = modfile.Read(bytes.NewReader(payload.Module)); err != nil {
			return nil, false, fmt.Errorf("cache entry %s: %w", key, err)
		}
	}
	return entry, true, nil
}

// DropAll invalidates the cache.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}
