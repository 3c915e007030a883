package cli

// cmd/cli/common.go — shared wiring for every CLI command group.
// ----------------------------------------------------------------------------
// Layout
//   1. Globals (logger, loaded config, runtime singletons).
//   2. Middleware — env-driven construction of the core stack, invoked by
//      each group's PersistentPreRun so commands stay thin.
//   3. Small shared helpers (bail, scalar parsing).
// ----------------------------------------------------------------------------

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	logrus "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"codeforge/core"
	"codeforge/pkg/config"
)

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

var (
	cliLG  = logrus.New()
	cliCfg *config.Config

	cliControl  *core.ControlPlane
	cliMetrics  *core.Metrics
	cliCache    *core.Cache
	cliIndex    *core.ManifestIndex
	cliResolver *core.Resolver
	cliGateway  *core.Gateway
)

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// initRuntime loads .env + config and builds the core stack once. Safe to
// call from multiple PersistentPreRun hooks; later calls are no-ops.
func initRuntime(cmd *cobra.Command, args []string) {
	if cliGateway != nil {
		return
	}
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cliCfg = cfg
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		cliLG.SetLevel(lvl)
	}

	cliControl = core.NewControlPlane(cfg)
	cliMetrics = core.NewMetrics()
	snap := cliControl.Snapshot()

	cliCache, err = core.NewCache(snap.CacheRoot)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}

	cliIndex = core.NewManifestIndex()
	if len(snap.ManifestPaths) > 0 {
		if err := cliIndex.Load(expandManifestPaths(snap.ManifestPaths)...); err != nil {
			cliLG.WithError(err).Warn("manifest load failed, continuing with empty index")
		}
	}

	cliResolver = &core.Resolver{
		Cache:  cliCache,
		Index:  cliIndex,
		HTTP:   core.NewHTTPMirrorResolver(snap.Mirrors, 30*time.Second, cliLG),
		Logger: cliLG,
	}

	cliGateway = &core.Gateway{
		Control:     cliControl,
		Engine:      core.NewPolicyEngine(),
		Rules:       rulesFromConfig(cfg),
		Resolver:    cliResolver,
		Sandbox:     core.NewSandbox(),
		Limiter:     core.NewRateLimiter(rateLimitFromConfig(cfg)),
		Idempotency: core.NewIdempotencyStore(time.Duration(cfg.Idempotency.TTLSeconds) * time.Second),
		Metrics:     cliMetrics,
		Logger:      cliLG,
		Node:        "cli",
	}
}

// expandManifestPaths resolves each configured path: a directory becomes
// every *.yaml file inside it, a file is taken as-is.
func expandManifestPaths(paths []string) []string {
	var out []string
	for _, p := range paths {
		matches := manifestFilesIn(p)
		if len(matches) == 0 {
			continue
		}
		out = append(out, matches...)
	}
	return out
}

func manifestFilesIn(p string) []string {
	info, err := os.Stat(p)
	if err != nil {
		return nil
	}
	if !info.IsDir() {
		return []string{p}
	}
	matches, _ := filepath.Glob(filepath.Join(p, "*.yaml"))
	return matches
}

// rulesFromConfig derives the CLI's rule set: a resonance-gated allow when
// the config demands one, a plain allow otherwise. There is no rule-file
// loader: the CLI's rule set is always one of these two rules.
func rulesFromConfig(cfg *config.Config) core.RuleSet {
	if cfg.Policy.RequiredResonanceHz != 0 {
		hz := cfg.Policy.RequiredResonanceHz
		return core.RuleSet{Rules: []core.Rule{{
			Name:               "resonance-gate",
			Decision:           core.DecisionAllow,
			RequireResonanceHz: &hz,
		}}}
	}
	return core.RuleSet{Rules: []core.Rule{{Name: "default-allow", Decision: core.DecisionAllow}}}
}

func rateLimitFromConfig(cfg *config.Config) core.RateLimitConfig {
	rl := core.DefaultRateLimitConfig()
	if cfg.RateLimit.RequestsPerWindow > 0 {
		rl.Limit = cfg.RateLimit.RequestsPerWindow
	}
	if cfg.RateLimit.WindowSeconds > 0 {
		rl.Window = time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	}
	if cfg.RateLimit.Burst > 0 {
		rl.Burst = cfg.RateLimit.Burst
	}
	return rl
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func bail(err error) {
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
}

// parseScalar turns a CLI argument into the loosest matching scalar: int,
// then float, then bool. The sandbox narrows it to the declared type.
func parseScalar(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
