// core/control_plane.go
package core

// The control plane is the process-wide, read-mostly state the gateway
// consults first on every admission: enabled/frozen flags, canary
// fraction, and effective limit defaults. pkg/config resolves the
// on-disk/env layer; ControlPlane wraps that with the admin-only
// mutable fields (enabled, frozen, canary fraction) and takes an atomically-swapped
// snapshot so every request sees one consistent view throughout its
// lifetime.

import (
	"crypto/sha256"
	"encoding/binary"
	"sync/atomic"

	"codeforge/pkg/config"
)

// ControlState is the immutable snapshot a single request observes.
// Readers never see a torn mix of old and new fields because the whole
// struct is swapped atomically.
type ControlState struct {
	Enabled        bool
	Frozen         bool
	CanaryFraction float64

	DefaultMemoryBytes uint64
	DefaultGas         uint64
	DefaultTimeoutMS   int

	TrustedSignatures   []string
	RequiredResonanceHz int
	CacheRoot           string
	ManifestPaths       []string
	Mirrors             []Mirror
}

// HealthStatus is the coarse status the health endpoint reports.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDisabled HealthStatus = "disabled"
	HealthFrozen   HealthStatus = "frozen"
)

// ControlPlane owns the current ControlState and serializes updates to
// it. Reads (Snapshot) never block; every Update fully replaces the
// snapshot so there is no partial-update window.
type ControlPlane struct {
	state atomic.Pointer[ControlState]
}

// NewControlPlane builds a ControlPlane from a loaded *config.Config,
// applying the precedence pkg/config already resolved (environment →
// file → compiled defaults).
func NewControlPlane(cfg *config.Config) *ControlPlane {
	cp := &ControlPlane{}
	cp.state.Store(stateFromConfig(cfg))
	return cp
}

func stateFromConfig(cfg *config.Config) *ControlState {
	mirrors := make([]Mirror, 0, len(cfg.Mirrors))
	for _, m := range cfg.Mirrors {
		mirrors = append(mirrors, Mirror{URL: m.URL, Priority: m.Priority})
	}
	return &ControlState{
		Enabled:             cfg.Runtime.Enabled,
		Frozen:              cfg.Runtime.Frozen,
		CanaryFraction:      cfg.Runtime.CanaryFraction,
		DefaultMemoryBytes:  cfg.Limits.DefaultMemoryBytes,
		DefaultGas:          cfg.Limits.DefaultGas,
		DefaultTimeoutMS:    cfg.Limits.DefaultTimeoutMS,
		TrustedSignatures:   append([]string{}, cfg.Policy.TrustedSignatures...),
		RequiredResonanceHz: cfg.Policy.RequiredResonanceHz,
		CacheRoot:           cfg.Cache.Root,
		ManifestPaths:       append([]string{}, cfg.Manifests.Paths...),
		Mirrors:             mirrors,
	}
}

// Snapshot returns the current ControlState. Callers take exactly one
// snapshot at the start of a request and use it consistently throughout.
func (cp *ControlPlane) Snapshot() ControlState {
	return *cp.state.Load()
}

// ControlPatch names the admin-only mutable subset of ControlState.
// Fields left nil are left unchanged.
type ControlPatch struct {
	Enabled        *bool
	Frozen         *bool
	CanaryFraction *float64
}

// Update applies patch to the current state and publishes a new
// snapshot atomically. It is the single admin-only mutation path; there
// is no other way to change Enabled/Frozen/CanaryFraction at runtime.
func (cp *ControlPlane) Update(patch ControlPatch) ControlState {
	for {
		cur := cp.state.Load()
		next := *cur
		if patch.Enabled != nil {
			next.Enabled = *patch.Enabled
		}
		if patch.Frozen != nil {
			next.Frozen = *patch.Frozen
		}
		if patch.CanaryFraction != nil {
			next.CanaryFraction = *patch.CanaryFraction
		}
		// Publish only if no other Update landed since cur was read;
		// otherwise re-apply the patch on top of the newer snapshot.
		if cp.state.CompareAndSwap(cur, &next) {
			return next
		}
	}
}

// Status reports the coarse health classification for the health
// endpoint: frozen takes priority over disabled, which takes priority
// over healthy.
func (s ControlState) Status() HealthStatus {
	switch {
	case s.Frozen:
		return HealthFrozen
	case !s.Enabled:
		return HealthDisabled
	default:
		return HealthHealthy
	}
}

// InCanary reports whether caller falls within the canary fraction,
// using a deterministic per-caller hash rather than a random coin flip:
// the same caller gets the same in/out decision for a given fraction
// until the fraction itself changes.
func (s ControlState) InCanary(caller string) bool {
	if s.CanaryFraction >= 1 {
		return true
	}
	if s.CanaryFraction <= 0 {
		return false
	}
	sum := sha256.Sum256([]byte(caller))
	bucket := binary.BigEndian.Uint32(sum[:4])
	threshold := uint32(s.CanaryFraction * float64(^uint32(0)))
	return bucket < threshold
}
