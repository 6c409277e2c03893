// Package config loads and validates the runtime configuration from YAML,
// with environment overrides for deployment-sensitive values.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// Config is the whole runtime configuration.
type Config struct {
	Kernel    KernelConfig    `yaml:"kernel"`
	State     StateConfig     `yaml:"state"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Hooks     HooksConfig     `yaml:"hooks"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Tenants   []TenantConfig  `yaml:"tenants"`
	Vector    VectorConfig    `yaml:"vector"`
	Memory    MemoryConfig    `yaml:"memory"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// KernelConfig configures the protocol front-end.
type KernelConfig struct {
	IP             string `yaml:"ip"`
	ShellPort      int    `yaml:"shell_port"`
	Key            string `yaml:"key"`
	ConnectionFile string `yaml:"connection_file"`
	MaxClients     int    `yaml:"max_clients"`
}

// StateConfig selects and tunes the storage backend.
type StateConfig struct {
	Backend       string `yaml:"backend"` // memory, bolt, sqlite, postgres, redis
	Path          string `yaml:"path"`
	DSN           string `yaml:"dsn"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Compression   bool   `yaml:"compression"`
	CacheCapacity int    `yaml:"cache_capacity"`
}

// SessionsConfig tunes session persistence and cleanup.
type SessionsConfig struct {
	Backend         string        `yaml:"backend"` // memory or the state backend
	Path            string        `yaml:"path"`
	MaxIdle         time.Duration `yaml:"max_idle"`
	CleanupSchedule string        `yaml:"cleanup_schedule"`
}

// TimeoutConfig feeds the executor's timeout manager.
type TimeoutConfig struct {
	Default       time.Duration `yaml:"default"`
	Max           time.Duration `yaml:"max"`
	WarnThreshold time.Duration `yaml:"warn_threshold"`
}

// HooksConfig tunes the circuit breakers around hooks.
type HooksConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SlowThreshold    int           `yaml:"slow_threshold"`
	SlowDuration     time.Duration `yaml:"slow_duration"`
	OpenDuration     time.Duration `yaml:"open_duration"`
	SuccessThreshold int           `yaml:"success_threshold"`
}

// SandboxConfig is the default sandbox for tool execution.
type SandboxConfig struct {
	AllowedPaths   []string      `yaml:"allowed_paths"`
	AllowedDomains []string      `yaml:"allowed_domains"`
	AllowedEnv     []string      `yaml:"allowed_env"`
	WorkDir        string        `yaml:"work_dir"`
	MaxMemoryBytes int64         `yaml:"max_memory_bytes"`
	MaxExecution   time.Duration `yaml:"max_execution"`
	MaxGoroutines  int           `yaml:"max_goroutines"`
	MaxDiskBytes   int64         `yaml:"max_disk_bytes"`
}

// TenantConfig declares one tenant and its quotas.
type TenantConfig struct {
	ID                  string  `yaml:"id"`
	MaxVectors          int     `yaml:"max_vectors"`
	MaxDimensions       int     `yaml:"max_dimensions"`
	MaxStorageBytes     int64   `yaml:"max_storage_bytes"`
	MaxQueriesPerSecond float64 `yaml:"max_queries_per_second"`
}

// VectorConfig tunes vector storage.
type VectorConfig struct {
	Dimensions int `yaml:"dimensions"`
}

// MemoryConfig tunes the semantic memory manager.
type MemoryConfig struct {
	MaxMemories         int     `yaml:"max_memories"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// TelemetryConfig switches metrics and tracing.
type TelemetryConfig struct {
	Metrics     bool   `yaml:"metrics"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Kernel.IP == "" {
		c.Kernel.IP = "127.0.0.1"
	}
	if c.Kernel.ShellPort == 0 {
		c.Kernel.ShellPort = 5555
	}
	if c.Kernel.MaxClients == 0 {
		c.Kernel.MaxClients = 16
	}
	if c.State.Backend == "" {
		c.State.Backend = "memory"
	}
	if c.Sessions.Backend == "" {
		c.Sessions.Backend = c.State.Backend
	}
	if c.Sessions.Path == "" {
		c.Sessions.Path = "./sessions"
	}
	if c.Sessions.MaxIdle == 0 {
		c.Sessions.MaxIdle = time.Hour
	}
	if c.Sessions.CleanupSchedule == "" {
		c.Sessions.CleanupSchedule = "@every 10m"
	}
	if c.Timeouts.Default == 0 {
		c.Timeouts.Default = 30 * time.Second
	}
	if c.Timeouts.Max == 0 {
		c.Timeouts.Max = 10 * time.Minute
	}
	if c.Vector.Dimensions == 0 {
		c.Vector.Dimensions = 384
	}
	if c.Telemetry.MetricsAddr == "" {
		c.Telemetry.MetricsAddr = ":9090"
	}
}

// applyEnv lets deployment-sensitive values come from the environment,
// overriding the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("LLMSPELL_KERNEL_KEY"); v != "" {
		c.Kernel.Key = v
	}
	if v := os.Getenv("LLMSPELL_STATE_BACKEND"); v != "" {
		c.State.Backend = v
	}
	if v := os.Getenv("LLMSPELL_STATE_PATH"); v != "" {
		c.State.Path = v
	}
	if v := os.Getenv("LLMSPELL_DATABASE_URL"); v != "" {
		c.State.DSN = v
	}
	if v := os.Getenv("LLMSPELL_REDIS_ADDR"); v != "" {
		c.State.RedisAddr = v
	}
	if v := os.Getenv("LLMSPELL_REDIS_PASSWORD"); v != "" {
		c.State.RedisPassword = v
	}
	if v := os.Getenv("LLMSPELL_SHELL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Kernel.ShellPort = port
		}
	}
}

// Validate rejects configurations the runtime cannot start from.
func (c *Config) Validate() error {
	switch c.State.Backend {
	case "memory":
	case "bolt", "sqlite":
		if c.State.Path == "" {
			return lserror.Validation("state.path", c.State.Backend+" backend needs a path")
		}
	case "postgres":
		if c.State.DSN == "" {
			return lserror.Validation("state.dsn", "postgres backend needs a dsn")
		}
	case "redis":
		if c.State.RedisAddr == "" {
			return lserror.Validation("state.redis_addr", "redis backend needs an address")
		}
	default:
		return lserror.Validation("state.backend", "unknown state backend: "+c.State.Backend)
	}

	if c.Kernel.ShellPort < 0 || c.Kernel.ShellPort > 65535 {
		return lserror.Validation("kernel.shell_port", "port out of range")
	}
	if c.Timeouts.Max > 0 && c.Timeouts.Default > c.Timeouts.Max {
		return lserror.Validation("timeouts.default", "default timeout exceeds maximum")
	}

	seen := map[string]bool{}
	for _, t := range c.Tenants {
		if t.ID == "" {
			return lserror.Validation("tenants.id", "tenant id must not be empty")
		}
		if seen[t.ID] {
			return lserror.Validation("tenants.id", "duplicate tenant id: "+t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}
