package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	logrus "github.com/sirupsen/logrus"
)

func newTestResolver(t *testing.T) (*Resolver, *Cache, *ManifestIndex) {
	t.Helper()
	dir := t.TempDir()
	cache, err := NewCache(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	idx := NewManifestIndex()
	r := &Resolver{
		Cache:  cache,
		Index:  idx,
		Logger: logrus.New(),
	}
	return r, cache, idx
}

func TestResolverHitsCacheFirst(t *testing.T) {
	r, cache, _ := newTestResolver(t)
	data := []byte("cached bytes")
	cid, _ := ComputeCID(data)
	if _, err := cache.Put(cid, data); err != nil {
		t.Fatal(err)
	}

	res, err := r.Resolve(context.Background(), ResolveTarget{CID: cid}, ModeFull)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceCache || !res.Verified {
		t.Fatalf("expected cache hit, got %+v", res)
	}
}

func TestResolverFallsBackToLocalFileHint(t *testing.T) {
	r, _, idx := newTestResolver(t)
	dir := t.TempDir()
	data := []byte("local file bytes")
	cid, _ := ComputeCID(data)
	localPath := filepath.Join(dir, "artifact.bin")
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		t.Fatal(err)
	}
	rec := ArtifactRecord{
		Name: "f", Lang: "codeforge", CID: cid, SHA256: sha256Hex(data),
		Size: int64(len(data)), ManifestPath: localPath, Entry: "f",
	}
	if err := idx.Insert(rec); err != nil {
		t.Fatal(err)
	}

	res, err := r.Resolve(context.Background(), ResolveTarget{CID: cid}, ModeFull)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceLocal || !res.Verified {
		t.Fatalf("expected local hit, got %+v", res)
	}

	// Second call should now be served from cache, promoted by the first.
	res2, err := r.Resolve(context.Background(), ResolveTarget{CID: cid}, ModeFull)
	if err != nil {
		t.Fatal(err)
	}
	if res2.Source != SourceCache {
		t.Fatalf("expected promotion to cache, got source %s", res2.Source)
	}
}

func TestResolverNotFound(t *testing.T) {
	r, _, _ := newTestResolver(t)
	cid, _ := ComputeCID([]byte("never stored"))
	_, err := r.Resolve(context.Background(), ResolveTarget{CID: cid}, ModeFull)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolverStructuralOnlyRequiresIndexMatch(t *testing.T) {
	r, _, idx := newTestResolver(t)
	rec := ArtifactRecord{
		Name: "f", Lang: "codeforge", CID: "bafy-x", SHA256: "s",
		Size: 1, ManifestPath: "m", Entry: "f", ASTHash: "phash:v1:sha256:zzz",
	}
	if err := idx.Insert(rec); err != nil {
		t.Fatal(err)
	}

	res, err := r.Resolve(context.Background(), ResolveTarget{Structural: "phash:v1:sha256:zzz"}, ModeFull)
	if err != nil {
		t.Fatal(err)
	}
	if res.Verified {
		t.Fatal("structural-only resolution must never report verified=true")
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 structural match, got %d", len(res.Records))
	}

	if _, err := r.Resolve(context.Background(), ResolveTarget{Structural: "phash:v1:sha256:missing"}, ModeFull); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown structural hash, got %v", err)
	}
}

func TestResolverRejectsTamperedLocalFile(t *testing.T) {
	r, _, idx := newTestResolver(t)
	dir := t.TempDir()
	data := []byte("genuine bytes")
	cid, _ := ComputeCID(data)
	localPath := filepath.Join(dir, "artifact.bin")
	// The on-disk file does not match the recorded CID.
	if err := os.WriteFile(localPath, []byte("tampered bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := ArtifactRecord{
		Name: "f", Lang: "codeforge", CID: cid, SHA256: sha256Hex(data),
		Size: int64(len(data)), ManifestPath: localPath, Entry: "f",
	}
	if err := idx.Insert(rec); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Resolve(context.Background(), ResolveTarget{CID: cid}, ModeFull); !errors.Is(err, ErrNotFound) {
		t.Fatalf("tampered local file must be skipped, got %v", err)
	}
}

func TestResolverRejectsMismatchedMirrorBytes(t *testing.T) {
	r, cache, idx := newTestResolver(t)
	data := []byte("the real artifact")
	cid, _ := ComputeCID(data)
	rec := ArtifactRecord{
		Name: "f", Lang: "codeforge", CID: cid, SHA256: sha256Hex(data),
		Size: int64(len(data)), ManifestPath: "/nonexistent", Entry: "f",
	}
	if err := idx.Insert(rec); err != nil {
		t.Fatal(err)
	}

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("digest of something else entirely"))
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write(data)
	}))
	defer good.Close()

	r.HTTP = NewHTTPMirrorResolver([]Mirror{
		{URL: bad.URL, Priority: 0},
		{URL: good.URL, Priority: 1},
	}, time.Second, logrus.New())

	res, err := r.Resolve(context.Background(), ResolveTarget{CID: cid}, ModeFull)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceHTTP || !res.Verified {
		t.Fatalf("expected verified http resolution past the bad mirror, got %+v", res)
	}
	if _, ok := cache.Get(cid); !ok {
		t.Fatal("verified mirror bytes must be promoted into the cache")
	}
}

func TestResolverDryRunSkipsNetwork(t *testing.T) {
	r, _, _ := newTestResolver(t)
	r.HTTP = NewHTTPMirrorResolver(nil, 0, logrus.New())
	cid, _ := ComputeCID([]byte("not cached, not local"))

	res, err := r.Resolve(context.Background(), ResolveTarget{CID: cid}, ModeDryRun)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourcePlan {
		t.Fatalf("expected plan result, got %+v", res)
	}
}
