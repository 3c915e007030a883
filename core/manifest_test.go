package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestManifestLoadAndLookup(t *testing.T) {
	dir := t.TempDir()
	p := writeManifest(t, dir, "m1.yaml", `
- name: add
  lang: codeforge
  cid: "bafy-fake-cid-1"
  sha256: "deadbeef"
  size: 42
  astHash: "phash:v1:sha256:abc"
  labels: ["math"]
  manifestPath: m1.yaml
  entry: add
`)
	idx := NewManifestIndex()
	if err := idx.Load(p); err != nil {
		t.Fatalf("load: %v", err)
	}
	rec, ok := idx.FindByCID("bafy-fake-cid-1")
	if !ok || rec.Name != "add" {
		t.Fatalf("expected to find record by cid, got %+v ok=%v", rec, ok)
	}
	matches := idx.FindByStructural("phash:v1:sha256:abc")
	if len(matches) != 1 {
		t.Fatalf("expected 1 structural match, got %d", len(matches))
	}
}

func TestManifestRejectsMissingFields(t *testing.T) {
	dir := t.TempDir()
	p := writeManifest(t, dir, "bad.yaml", `
- name: add
  lang: codeforge
`)
	idx := NewManifestIndex()
	err := idx.Load(p)
	if !errors.Is(err, ErrManifestParseError) {
		t.Fatalf("expected ErrManifestParseError, got %v", err)
	}
}

func TestManifestDetectsConflict(t *testing.T) {
	dir := t.TempDir()
	p := writeManifest(t, dir, "conflict.yaml", `
- name: add
  lang: codeforge
  cid: "bafy-dup"
  sha256: "aaa"
  size: 10
  labels: []
  manifestPath: conflict.yaml
  entry: add
- name: add2
  lang: codeforge
  cid: "bafy-dup"
  sha256: "bbb"
  size: 99
  labels: []
  manifestPath: conflict.yaml
  entry: add2
`)
	idx := NewManifestIndex()
	err := idx.Load(p)
	if !errors.Is(err, ErrManifestConflict) {
		t.Fatalf("expected ErrManifestConflict, got %v", err)
	}
}

func TestManifestInsertIsAtomicToReaders(t *testing.T) {
	idx := NewManifestIndex()
	rec := ArtifactRecord{
		Name: "f", Lang: "codeforge", CID: "bafy-1", SHA256: "x",
		Size: 1, ManifestPath: "mem", Entry: "f",
	}
	if err := idx.Insert(rec); err != nil {
		t.Fatal(err)
	}
	if _, ok := idx.FindByCID("bafy-1"); !ok {
		t.Fatal("expected inserted record to be visible")
	}
}
