// Package config loads broker configuration from an optional YAML file
// with environment-variable overrides applied on top.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimit configures the per-identity token bucket in the admission
// controller.
type RateLimit struct {
	Points        int `yaml:"points"`
	WindowSeconds int `yaml:"window_seconds"`
	BlockSeconds  int `yaml:"block_seconds"`
}

// CircuitBreaker configures a single named breaker's transition thresholds.
type CircuitBreaker struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
	RecoverSuccesses int           `yaml:"recover_successes"`
}

// MetadataStore configures the three-tier session store.
type MetadataStore struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Password         string        `yaml:"password"`
	DB               int           `yaml:"db"`
	KeyPrefix        string        `yaml:"key_prefix"`
	NearCacheTTL     time.Duration `yaml:"near_cache_ttl"`
	NearCacheMaxSize int           `yaml:"near_cache_max_size"`
	DurableTTL       time.Duration `yaml:"durable_ttl"`
	PoolMinConns     int           `yaml:"pool_min_conns"`
	PoolMaxConns     int           `yaml:"pool_max_conns"`
	AcquireTimeout   time.Duration `yaml:"acquire_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
}

// WebIDE configures the helper program bound to web-IDE session ports.
type WebIDE struct {
	Host          string `yaml:"host"`
	HelperBinary  string `yaml:"helper_binary"`
	PortRangeLow  int    `yaml:"port_range_low"`
	PortRangeHigh int    `yaml:"port_range_high"`
}

// ExecDefaults configures the execution engine's resource and timeout caps.
type ExecDefaults struct {
	MaxTimeoutMs     int   `yaml:"max_timeout_ms"`
	DefaultTimeoutMs int   `yaml:"default_timeout_ms"`
	OutputCapBytes   int   `yaml:"output_cap_bytes"`
	MaxConcurrency   int   `yaml:"max_concurrency"`
	GraceSeconds     int   `yaml:"grace_seconds"`
	MemLimitMB       int64 `yaml:"mem_limit_mb"`
	PidsLimit        int64 `yaml:"pids_limit"`
}

// Config is the root configuration object for the broker daemon.
type Config struct {
	DataDir              string        `yaml:"data_dir"`
	APIKey               string        `yaml:"api_key"`
	SessionTimeoutHours  int           `yaml:"session_timeout_hours"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval"`
	MaxSessionsPerClient int           `yaml:"max_sessions_per_client"`
	RateLimit            RateLimit     `yaml:"rate_limit"`
	Breaker              CircuitBreaker `yaml:"breaker"`
	Store                MetadataStore `yaml:"store"`
	WebIDE               WebIDE        `yaml:"web_ide"`
	Defaults             ExecDefaults  `yaml:"defaults"`
	BaseWorkspaceConcurrency int       `yaml:"base_workspace_concurrency"`
	StaleWorkspaceMaxAge time.Duration `yaml:"stale_workspace_max_age"`
}

// Load returns defaults, applies yamlPath if non-empty and present, then
// applies environment-variable overrides. A missing yamlPath is not an
// error — the broker runs on defaults plus env vars alone.
func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		DataDir:              "./data",
		SessionTimeoutHours:  24,
		CleanupInterval:      60 * time.Minute,
		MaxSessionsPerClient: 10,
		RateLimit: RateLimit{
			Points:        100,
			WindowSeconds: 60,
			BlockSeconds:  300,
		},
		Breaker: CircuitBreaker{
			FailureThreshold: 5,
			ResetTimeout:     60 * time.Second,
			RecoverSuccesses: 3,
		},
		Store: MetadataStore{
			Host:             "",
			Port:             5432,
			DB:               0,
			KeyPrefix:        "broker:",
			NearCacheTTL:     10 * time.Minute,
			NearCacheMaxSize: 5000,
			DurableTTL:       24 * time.Hour,
			PoolMinConns:     1,
			PoolMaxConns:     8,
			AcquireTimeout:   5 * time.Second,
			IdleTimeout:      5 * time.Minute,
		},
		WebIDE: WebIDE{
			Host:          "0.0.0.0",
			HelperBinary:  "code-server",
			PortRangeLow:  8080,
			PortRangeHigh: 9999,
		},
		Defaults: ExecDefaults{
			MaxTimeoutMs:     300000,
			DefaultTimeoutMs: 30000,
			OutputCapBytes:   10 * 1024 * 1024,
			MaxConcurrency:   10,
			GraceSeconds:     5,
			MemLimitMB:       1024,
			PidsLimit:        128,
		},
		BaseWorkspaceConcurrency: 3,
		StaleWorkspaceMaxAge:     24 * time.Hour,
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BROKER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("BROKER_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("MAX_CONCURRENT_EXECUTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Defaults.MaxConcurrency = n
		}
	}
	if v := os.Getenv("BROKER_RATE_LIMIT_POINTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Points = n
		}
	}
	if v := os.Getenv("BROKER_RATE_LIMIT_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.WindowSeconds = n
		}
	}
	if v := os.Getenv("BROKER_RATE_LIMIT_BLOCK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.BlockSeconds = n
		}
	}
	if v := os.Getenv("BROKER_METADATA_STORE_HOST"); v != "" {
		cfg.Store.Host = v
	}
	if v := os.Getenv("BROKER_METADATA_STORE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.Port = n
		}
	}
	if v := os.Getenv("BROKER_METADATA_STORE_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := os.Getenv("BROKER_METADATA_STORE_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.DB = n
		}
	}
	if v := os.Getenv("BROKER_SESSION_TIMEOUT_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SessionTimeoutHours = n
		}
	}
	if v := os.Getenv("BROKER_CLEANUP_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CleanupInterval = time.Duration(n) * time.Minute
		}
	}
	if v := os.Getenv("BROKER_MAX_SESSIONS_PER_CLIENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSessionsPerClient = n
		}
	}
	if v := os.Getenv("BROKER_WEBIDE_HOST"); v != "" {
		cfg.WebIDE.Host = v
	}
	if v := os.Getenv("BROKER_WEBIDE_PORT_LOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WebIDE.PortRangeLow = n
		}
	}
	if v := os.Getenv("BROKER_WEBIDE_PORT_HIGH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WebIDE.PortRangeHigh = n
		}
	}
}
