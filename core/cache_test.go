package core

import (
	"errors"
	"testing"
)

func TestCachePutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("artifact bytes")
	cid, err := ComputeCID(data)
	if err != nil {
		t.Fatal(err)
	}
	path, err := c.Put(cid, data)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := c.Get(cid)
	if !ok || got != path {
		t.Fatalf("expected get to return %s, got %s ok=%v", path, got, ok)
	}
	read, err := c.Read(got)
	if err != nil {
		t.Fatal(err)
	}
	if string(read) != string(data) {
		t.Fatalf("expected round-tripped bytes to match")
	}
}

func TestCachePutRejectsCIDMismatch(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	wrongCID, _ := ComputeCID([]byte("something else"))
	if _, err := c.Put(wrongCID, []byte("actual bytes")); !errors.Is(err, ErrCIDMismatch) {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
}

func TestCacheGetMissing(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("nonexistent"); ok {
		t.Fatal("expected miss for unknown cid")
	}
}

func TestCacheSidecarRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("bytes with metadata")
	cid, _ := ComputeCID(data)
	rec := ArtifactRecord{
		Name: "f", Lang: "codeforge", CID: cid, SHA256: sha256Hex(data),
		Size: int64(len(data)), ManifestPath: "m", Entry: "f",
	}
	if _, err := c.PutWithRecord(cid, data, rec); err != nil {
		t.Fatal(err)
	}
	got, ok := c.Record(cid)
	if !ok || got.Name != "f" || got.CID != cid {
		t.Fatalf("expected sidecar record back, got %+v ok=%v", got, ok)
	}

	// Reopening must not mistake the sidecar for a cache entry.
	c2, err := NewCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(c2.known) != 1 {
		t.Fatalf("expected exactly one entry after reopen, got %d", len(c2.known))
	}
}

func TestCacheReopenSeesExistingEntries(t *testing.T) {
	dir := t.TempDir()
	c1, err := NewCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("persisted")
	cid, _ := ComputeCID(data)
	if _, err := c1.Put(cid, data); err != nil {
		t.Fatal(err)
	}

	c2, err := NewCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c2.Get(cid); !ok {
		t.Fatal("expected reopened cache to see entry written by previous instance")
	}
}
