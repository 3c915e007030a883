// core/health.go
package core

// The health and admin surface: a chi router exposing the control
// plane's sanitized effective snapshot plus a coarse status, the
// prometheus metrics registry, and the serialized admin path for
// control-plane patches. This is the only HTTP surface the core owns;
// request submission stays on the Gateway's Go API.

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logrus "github.com/sirupsen/logrus"
)

// healthSnapshot is the sanitized view of a ControlState: secrets
// (trusted signature material) are reduced to a count, and mirrors are
// reduced to a count as well; no mirror URL is carried.
type healthSnapshot struct {
	Status         HealthStatus `json:"status"`
	Enabled        bool         `json:"enabled"`
	Frozen         bool         `json:"frozen"`
	CanaryFraction float64      `json:"canary_fraction"`

	DefaultMemoryBytes uint64 `json:"default_memory_bytes"`
	DefaultGas         uint64 `json:"default_gas"`
	DefaultTimeoutMS   int    `json:"default_timeout_ms"`

	TrustedSignatureCount int      `json:"trusted_signature_count"`
	MirrorCount           int      `json:"mirror_count"`
	ManifestPaths         []string `json:"manifest_paths"`
	CacheRoot             string   `json:"cache_root"`
}

func sanitize(s ControlState) healthSnapshot {
	return healthSnapshot{
		Status:                s.Status(),
		Enabled:               s.Enabled,
		Frozen:                s.Frozen,
		CanaryFraction:        s.CanaryFraction,
		DefaultMemoryBytes:    s.DefaultMemoryBytes,
		DefaultGas:            s.DefaultGas,
		DefaultTimeoutMS:      s.DefaultTimeoutMS,
		TrustedSignatureCount: len(s.TrustedSignatures),
		MirrorCount:           len(s.Mirrors),
		ManifestPaths:         s.ManifestPaths,
		CacheRoot:             s.CacheRoot,
	}
}

// NewAdminRouter builds the health/admin router:
//
//	GET  /healthz        sanitized effective snapshot + coarse status
//	GET  /metrics        prometheus exposition of the process registry
//	POST /admin/control  apply a ControlPatch, returning the new snapshot
func NewAdminRouter(cp *ControlPlane, metrics *Metrics, lg *logrus.Logger) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		snap := cp.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		if snap.Status() != HealthHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(sanitize(snap))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Post("/admin/control", func(w http.ResponseWriter, req *http.Request) {
		var patch struct {
			Enabled        *bool    `json:"enabled"`
			Frozen         *bool    `json:"frozen"`
			CanaryFraction *float64 `json:"canary_fraction"`
		}
		if err := json.NewDecoder(req.Body).Decode(&patch); err != nil {
			http.Error(w, "malformed patch: "+err.Error(), http.StatusBadRequest)
			return
		}
		if patch.CanaryFraction != nil && (*patch.CanaryFraction < 0 || *patch.CanaryFraction > 1) {
			http.Error(w, "canary_fraction must be in [0,1]", http.StatusBadRequest)
			return
		}
		next := cp.Update(ControlPatch{
			Enabled:        patch.Enabled,
			Frozen:         patch.Frozen,
			CanaryFraction: patch.CanaryFraction,
		})
		lg.WithFields(logrus.Fields{
			"enabled": next.Enabled, "frozen": next.Frozen, "canary_fraction": next.CanaryFraction,
		}).Warn("control plane updated")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sanitize(next))
	})

	return r
}
