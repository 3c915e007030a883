package config

// Package config provides a reusable loader for CodeForge configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"codeforge/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified, file+env-backed configuration for a CodeForge
// node. It mirrors the structure of the YAML files under cmd/config and
// is the on-disk layer of the control plane (core.ControlPlane wraps it
// with the runtime-mutable enabled/frozen/canary knobs and takes an
// atomic snapshot of it per request).
type Config struct {
	Runtime struct {
		Enabled         bool    `mapstructure:"enabled" json:"enabled"`
		Frozen          bool    `mapstructure:"frozen" json:"frozen"`
		CanaryFraction  float64 `mapstructure:"canary_fraction" json:"canary_fraction"`
	} `mapstructure:"runtime" json:"runtime"`

	Limits struct {
		DefaultMemoryBytes uint64 `mapstructure:"default_memory_bytes" json:"default_memory_bytes"`
		DefaultGas         uint64 `mapstructure:"default_gas" json:"default_gas"`
		DefaultTimeoutMS   int    `mapstructure:"default_timeout_ms" json:"default_timeout_ms"`
	} `mapstructure:"limits" json:"limits"`

	RateLimit struct {
		RequestsPerWindow int `mapstructure:"requests_per_window" json:"requests_per_window"`
		WindowSeconds     int `mapstructure:"window_seconds" json:"window_seconds"`
		Burst             int `mapstructure:"burst" json:"burst"`
	} `mapstructure:"rate_limit" json:"rate_limit"`

	Idempotency struct {
		TTLSeconds int `mapstructure:"ttl_seconds" json:"ttl_seconds"`
	} `mapstructure:"idempotency" json:"idempotency"`

	Cache struct {
		Root string `mapstructure:"root" json:"root"`
	} `mapstructure:"cache" json:"cache"`

	Manifests struct {
		Paths []string `mapstructure:"paths" json:"paths"`
	} `mapstructure:"manifests" json:"manifests"`

	Mirrors []struct {
		URL      string `mapstructure:"url" json:"url"`
		Priority int    `mapstructure:"priority" json:"priority"`
	} `mapstructure:"mirrors" json:"mirrors"`

	Peer struct {
		Enabled  bool   `mapstructure:"enabled" json:"enabled"`
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"peer" json:"peer"`

	Policy struct {
		TrustedSignatures []string `mapstructure:"trusted_signatures" json:"trusted_signatures"`
		RequiredResonanceHz int    `mapstructure:"required_resonance_hz" json:"required_resonance_hz"`
	} `mapstructure:"policy" json:"policy"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// Precedence, high to low: environment variables (viper.AutomaticEnv) →
// the env-specific file merged on top → the "default" config file →
// whatever zero values/defaults viper.SetDefault establishes below.
func Load(env string) (*Config, error) {
	setDefaults()

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
			}
		}
	}

	viper.SetEnvPrefix("CODEFORGE")
	viper.AutomaticEnv() // picks up CODEFORGE_* and .env via godotenv at CLI startup

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the CODEFORGE_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("CODEFORGE_ENV", ""))
}

func setDefaults() {
	viper.SetDefault("runtime.enabled", true)
	viper.SetDefault("runtime.frozen", false)
	viper.SetDefault("runtime.canary_fraction", 1.0)

	viper.SetDefault("limits.default_memory_bytes", 1<<20) // 1 MiB
	viper.SetDefault("limits.default_gas", 1_000_000)
	viper.SetDefault("limits.default_timeout_ms", 5_000)

	viper.SetDefault("rate_limit.requests_per_window", 10)
	viper.SetDefault("rate_limit.window_seconds", 60)
	viper.SetDefault("rate_limit.burst", 10)

	viper.SetDefault("idempotency.ttl_seconds", 300)

	viper.SetDefault("cache.root", "./data/cache")
	viper.SetDefault("manifests.paths", []string{"./data/manifests"})

	viper.SetDefault("logging.level", "info")
}
