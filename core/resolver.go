// core/resolver.go
package core

// The resolver turns a target identifier into verified bytes by walking a
// fixed chain of sources, stopping at the first success: in-process cache,
// a local file named by a manifest hint, the peer network, then HTTP
// mirrors in priority order. Every source past the cache is double
// verified — byte-CID recomputed and compared — before its bytes are
// trusted or promoted into the cache.

import (
	"context"
	"fmt"
	"os"

	"github.com/libp2p/go-libp2p/core/peer"
	logrus "github.com/sirupsen/logrus"
)

// ResolveMode selects how much of the resolution chain actually runs.
type ResolveMode int

const (
	// ModeFull walks the entire chain, including network steps.
	ModeFull ResolveMode = iota
	// ModeDryRun stops after the local (cache, file) steps and reports
	// which remote sources would have been tried, without contacting them.
	ModeDryRun
)

// ResolveTarget names what the caller is looking for: a byte-CID, a
// structural hash, or both.
type ResolveTarget struct {
	CID        CID
	Structural ProteinHash
}

// ResolutionSource names which layer satisfied a resolution.
type ResolutionSource string

const (
	SourceCache ResolutionSource = "cache"
	SourceLocal ResolutionSource = "local"
	SourcePeer  ResolutionSource = "peer"
	SourceHTTP  ResolutionSource = "http"
	SourcePlan  ResolutionSource = "plan"
)

// ResolutionResult is the outcome of a successful resolve call.
type ResolutionResult struct {
	Data           []byte
	Source         ResolutionSource
	Record         ArtifactRecord
	Records        []ArtifactRecord // populated for structural-only lookups with multiple matches
	Verified       bool
	PlannedSources []ResolutionSource // populated only for ModeDryRun
}

// Resolver implements the multi-layer lookup chain over C1/C4/C6 plus the
// network sources.
type Resolver struct {
	Cache   *Cache
	Index   *ManifestIndex
	Peer    *PeerResolver
	PeerIDs []peer.ID
	HTTP    *HTTPMirrorResolver
	Logger  *logrus.Logger
}

// Resolve locates verified bytes for target, walking cache → local file →
// peer network → HTTP mirrors.
func (r *Resolver) Resolve(ctx context.Context, target ResolveTarget, mode ResolveMode) (*ResolutionResult, error) {
	if target.CID == "" {
		return r.resolveStructuralOnly(target.Structural)
	}

	record, haveRecord := r.Index.FindByCID(target.CID)

	if path, ok := r.Cache.Get(target.CID); ok {
		data, err := r.Cache.Read(path)
		if err == nil {
			return &ResolutionResult{Data: data, Source: SourceCache, Record: record, Verified: true}, nil
		}
	}

	if haveRecord && record.ManifestPath != "" {
		if data, err := os.ReadFile(record.ManifestPath); err == nil {
			if verifyErr := r.verifyAndPromote(target.CID, record, data); verifyErr == nil {
				return &ResolutionResult{Data: data, Source: SourceLocal, Record: record, Verified: true}, nil
			}
			r.Logger.Warnf("resolver: local file hint for %s failed verification", target.CID)
		}
	}

	if mode == ModeDryRun {
		planned := []ResolutionSource{}
		if r.Peer != nil {
			planned = append(planned, SourcePeer)
		}
		if r.HTTP != nil {
			planned = append(planned, SourceHTTP)
		}
		return &ResolutionResult{Source: SourcePlan, Record: record, PlannedSources: planned}, nil
	}

	if r.Peer != nil {
		for _, pid := range r.PeerIDs {
			data, err := r.Peer.Fetch(ctx, pid, target.CID)
			if err != nil {
				continue
			}
			if verifyErr := r.verifyAndPromote(target.CID, record, data); verifyErr != nil {
				r.Logger.Warnf("resolver: peer %s returned unverifiable bytes for %s: %v", pid, target.CID, verifyErr)
				continue
			}
			return &ResolutionResult{Data: data, Source: SourcePeer, Record: record, Verified: true}, nil
		}
	}

	if r.HTTP != nil {
		verify := func(data []byte) error { return r.verifyAgainst(target.CID, record, data) }
		data, err := r.HTTP.Fetch(ctx, target.CID, verify)
		if err == nil {
			if promoteErr := r.promote(target.CID, record, data); promoteErr == nil {
				return &ResolutionResult{Data: data, Source: SourceHTTP, Record: record, Verified: true}, nil
			}
		}
	}

	return nil, ErrNotFound
}

// verifyAndPromote runs the double-verification step and, on success,
// writes the bytes into the cache.
func (r *Resolver) verifyAndPromote(cid CID, record ArtifactRecord, data []byte) error {
	if err := r.verifyAgainst(cid, record, data); err != nil {
		return err
	}
	return r.promote(cid, record, data)
}

// verifyAgainst is the double-verification step every non-cache source
// must pass: the byte-CID is recomputed and, when a manifest record is
// known, the byte-SHA-256 and size are compared against it too.
func (r *Resolver) verifyAgainst(cid CID, record ArtifactRecord, data []byte) error {
	if err := VerifyCID(data, cid); err != nil {
		return err
	}
	if record.CID != "" {
		if int64(len(data)) != record.Size {
			return fmt.Errorf("%w: size mismatch: want %d got %d", ErrHashMismatch, record.Size, len(data))
		}
		if record.SHA256 != "" && sha256Hex(data) != record.SHA256 {
			return fmt.Errorf("%w: sha256 mismatch against manifest record", ErrHashMismatch)
		}
	}
	return nil
}

func (r *Resolver) promote(cid CID, record ArtifactRecord, data []byte) error {
	if record.CID != "" {
		_, err := r.Cache.PutWithRecord(cid, data, record)
		return err
	}
	_, err := r.Cache.Put(cid, data)
	return err
}

// resolveStructuralOnly implements the "structural-only resolution" path:
// only the manifest index is consulted, and the result is never trusted
// for execution without an accompanying verified byte-CID.
func (r *Resolver) resolveStructuralOnly(ph ProteinHash) (*ResolutionResult, error) {
	matches := r.Index.FindByStructural(ph)
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	return &ResolutionResult{Source: SourceLocal, Record: matches[0], Records: matches, Verified: false}, nil
}
