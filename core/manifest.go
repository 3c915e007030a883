// core/manifest.go
package core

// The manifest index aggregates per-build manifest files — YAML arrays of
// artifact records — into two in-memory maps keyed by byte-CID and by
// structural hash. Loads are copy-on-write: a new snapshot is built in
// full before being published atomically, so concurrent readers never see
// a partially loaded index.

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// PhiVector is the optional structural-hash sidecar carried by a manifest
// record: the quantized eigenvalue vector and the parameters used to
// derive it.
type PhiVector struct {
	Op     string    `yaml:"op"`
	K      int       `yaml:"k"`
	Quant  int       `yaml:"quant"`
	Values []float64 `yaml:"values"`
}

// ParamSignature names one declared parameter's type, by keyword
// ("i32", "i64", "f64", "bool") as sourcelang.Type.String() renders it.
type ParamSignature struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Signature carries the source function's declared scalar types through
// to the executor, since the WASM export itself only exposes i32/i64/f64
// and cannot distinguish a bool parameter from a raw i32 one. Without
// it, execute-time input marshalling could not check inputs against the
// declared source types.
type Signature struct {
	Params []ParamSignature `yaml:"params"`
	Return string           `yaml:"return"`
}

// ArtifactRecord is one row of a build manifest, as described in the
// external manifest file format.
type ArtifactRecord struct {
	Name         string      `yaml:"name"`
	Lang         string      `yaml:"lang"`
	CID          CID         `yaml:"cid"`
	SHA256       string      `yaml:"sha256"`
	Size         int64       `yaml:"size"`
	Phi          *PhiVector  `yaml:"phi,omitempty"`
	ASTHash      ProteinHash `yaml:"astHash,omitempty"`
	Labels       []string    `yaml:"labels"`
	ManifestPath string      `yaml:"manifestPath"`
	Entry        string      `yaml:"entry"`
	Signature    *Signature  `yaml:"signature,omitempty"`
}

func (r ArtifactRecord) validate() error {
	switch {
	case r.Name == "":
		return fmt.Errorf("%w: missing name", ErrManifestParseError)
	case r.Lang == "":
		return fmt.Errorf("%w: missing lang", ErrManifestParseError)
	case r.CID == "":
		return fmt.Errorf("%w: missing cid", ErrManifestParseError)
	case r.SHA256 == "":
		return fmt.Errorf("%w: missing sha256", ErrManifestParseError)
	case r.Size <= 0:
		return fmt.Errorf("%w: missing or non-positive size", ErrManifestParseError)
	case r.ManifestPath == "":
		return fmt.Errorf("%w: missing manifestPath", ErrManifestParseError)
	case r.Entry == "":
		return fmt.Errorf("%w: missing entry", ErrManifestParseError)
	}
	return nil
}

// conflictsWith reports whether r and other disagree on size, sha256, or
// entry while sharing the same CID — the conflict test load() enforces.
func (r ArtifactRecord) conflictsWith(other ArtifactRecord) bool {
	return r.Size != other.Size || r.SHA256 != other.SHA256 || r.Entry != other.Entry
}

type manifestSnapshot struct {
	byCID        map[CID]ArtifactRecord
	byStructural map[ProteinHash][]ArtifactRecord
}

func emptySnapshot() *manifestSnapshot {
	return &manifestSnapshot{
		byCID:        make(map[CID]ArtifactRecord),
		byStructural: make(map[ProteinHash][]ArtifactRecord),
	}
}

// ManifestIndex is the read-mostly, copy-on-write index over all known
// artifact records.
type ManifestIndex struct {
	snapshot atomic.Pointer[manifestSnapshot]
}

// NewManifestIndex returns an empty index.
func NewManifestIndex() *ManifestIndex {
	idx := &ManifestIndex{}
	idx.snapshot.Store(emptySnapshot())
	return idx
}

// Load ingests one or more manifest files (each a YAML array of artifact
// records) and atomically replaces the index's snapshot. A conflict on any
// CID across files, or a malformed record, aborts the whole load — the
// previous snapshot remains visible to readers.
func (idx *ManifestIndex) Load(paths ...string) error {
	next := emptySnapshot()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrManifestParseError, p, err)
		}
		var records []ArtifactRecord
		if err := yaml.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrManifestParseError, p, err)
		}
		for _, r := range records {
			if err := r.validate(); err != nil {
				return err
			}
			if err := insertInto(next, r); err != nil {
				return err
			}
		}
	}
	idx.snapshot.Store(next)
	return nil
}

// Insert adds a single record to the index's current snapshot, publishing
// a new snapshot atomically. It is used by the artifact builder to publish
// freshly built records without a full reload.
func (idx *ManifestIndex) Insert(r ArtifactRecord) error {
	if err := r.validate(); err != nil {
		return err
	}
	cur := idx.snapshot.Load()
	next := &manifestSnapshot{
		byCID:        cloneByCID(cur.byCID),
		byStructural: cloneByStructural(cur.byStructural),
	}
	if err := insertInto(next, r); err != nil {
		return err
	}
	idx.snapshot.Store(next)
	return nil
}

func insertInto(s *manifestSnapshot, r ArtifactRecord) error {
	if existing, ok := s.byCID[r.CID]; ok && existing.conflictsWith(r) {
		return fmt.Errorf("%w: cid %s claimed by conflicting records", ErrManifestConflict, r.CID)
	}
	s.byCID[r.CID] = r
	if r.ASTHash != "" {
		s.byStructural[r.ASTHash] = append(s.byStructural[r.ASTHash], r)
	}
	return nil
}

func cloneByCID(m map[CID]ArtifactRecord) map[CID]ArtifactRecord {
	out := make(map[CID]ArtifactRecord, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneByStructural(m map[ProteinHash][]ArtifactRecord) map[ProteinHash][]ArtifactRecord {
	out := make(map[ProteinHash][]ArtifactRecord, len(m))
	for k, v := range m {
		out[k] = append([]ArtifactRecord{}, v...)
	}
	return out
}

// FindByCID returns the record for an exact byte-CID match.
func (idx *ManifestIndex) FindByCID(cid CID) (ArtifactRecord, bool) {
	s := idx.snapshot.Load()
	r, ok := s.byCID[cid]
	return r, ok
}

// FindByStructural returns every record sharing the given structural hash.
func (idx *ManifestIndex) FindByStructural(ph ProteinHash) []ArtifactRecord {
	s := idx.snapshot.Load()
	return append([]ArtifactRecord{}, s.byStructural[ph]...)
}
