// core/cache.go
package core

// The artifact cache is a content-addressed on-disk store: writes land in
// a temp file in the same directory and are renamed atomically into
// place, so a concurrent reader either sees nothing or a complete,
// already-verified file. The store is append-only — no eviction — so
// there is no index of access times to maintain, just an in-memory set of
// known entries guarding against redundant writes.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// cacheSidecarSuffix names the small per-entry metadata file written next
// to the content-addressed bytes.
const cacheSidecarSuffix = ".meta.yaml"

// Cache is a content-addressed, append-only on-disk artifact store.
type Cache struct {
	dir string

	mu    sync.RWMutex
	known map[CID]struct{}
}

// NewCache opens (creating if necessary) a cache rooted at dir.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("core: cache: mkdir %s: %w", dir, err)
	}
	c := &Cache{dir: dir, known: make(map[CID]struct{})}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("core: cache: list %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), cacheSidecarSuffix) {
			continue
		}
		c.known[CID(e.Name())] = struct{}{}
	}
	return c, nil
}

func (c *Cache) pathFor(cid CID) string {
	return filepath.Join(c.dir, string(cid))
}

// Get returns the path of a cached entry for cid, if present. A present
// entry is considered pre-verified: it was only ever written by Put, which
// verifies before rename.
func (c *Cache) Get(cid CID) (string, bool) {
	c.mu.RLock()
	_, ok := c.known[cid]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	return c.pathFor(cid), true
}

// Put verifies that data's byte-CID equals cid, then writes it to a
// temporary file in the cache directory and renames it into its final,
// content-addressed path. If an entry already exists for cid, Put is a
// no-op (append-only: never overwrite).
func (c *Cache) Put(cid CID, data []byte) (string, error) {
	if err := VerifyCID(data, cid); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	final := c.pathFor(cid)
	if _, ok := c.known[cid]; ok {
		return final, nil
	}

	tmp, err := os.CreateTemp(c.dir, "tmp-*")
	if err != nil {
		return "", fmt.Errorf("core: cache: tempfile: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("core: cache: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("core: cache: close: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("core: cache: rename: %w", err)
	}
	c.known[cid] = struct{}{}
	return final, nil
}

// PutWithRecord stores bytes like Put plus a sidecar carrying the
// originating manifest record, so a later process can serve the entry
// (over the peer protocol, say) without re-deriving its metadata. The
// sidecar follows the same temp-file + rename discipline as the entry.
func (c *Cache) PutWithRecord(cid CID, data []byte, record ArtifactRecord) (string, error) {
	path, err := c.Put(cid, data)
	if err != nil {
		return "", err
	}
	meta, err := yaml.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("core: cache: sidecar encode: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, "tmp-meta-*")
	if err != nil {
		return "", fmt.Errorf("core: cache: sidecar tempfile: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(meta); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("core: cache: sidecar write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("core: cache: sidecar close: %w", err)
	}
	if err := os.Rename(tmpPath, path+cacheSidecarSuffix); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("core: cache: sidecar rename: %w", err)
	}
	return path, nil
}

// Record loads the metadata sidecar for cid, if one was stored.
func (c *Cache) Record(cid CID) (ArtifactRecord, bool) {
	data, err := os.ReadFile(c.pathFor(cid) + cacheSidecarSuffix)
	if err != nil {
		return ArtifactRecord{}, false
	}
	var rec ArtifactRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return ArtifactRecord{}, false
	}
	return rec, true
}

// Read loads the bytes stored at path, as returned by Get or Put.
func (c *Cache) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return data, nil
}
