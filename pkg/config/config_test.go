package config

import (
	"strings"
	"testing"
	"time"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

type mapReader map[string][]byte

func (r mapReader) ReadFile(path string) ([]byte, error) {
	data, ok := r[path]
	if !ok {
		return nil, &notFoundError{path}
	}
	return data, nil
}

type notFoundError struct{ path string }

func (e *notFoundError) Error() string { return e.path + ": no such file" }

func TestLoadAppliesDefaults(t *testing.T) {
	reader := mapReader{"llmspell.yaml": []byte("kernel:\n  key: secret\n")}
	cfg, err := NewLoader(reader).Load("llmspell.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Kernel.Key != "secret" {
		t.Errorf("kernel.key = %q", cfg.Kernel.Key)
	}
	if cfg.Kernel.IP != "127.0.0.1" || cfg.Kernel.ShellPort != 5555 {
		t.Errorf("kernel defaults = %+v", cfg.Kernel)
	}
	if cfg.State.Backend != "memory" {
		t.Errorf("state.backend = %q", cfg.State.Backend)
	}
	if cfg.Sessions.Path != "./sessions" || cfg.Sessions.MaxIdle != time.Hour {
		t.Errorf("sessions defaults = %+v", cfg.Sessions)
	}
	if cfg.Timeouts.Default != 30*time.Second || cfg.Timeouts.Max != 10*time.Minute {
		t.Errorf("timeout defaults = %+v", cfg.Timeouts)
	}
	if cfg.Vector.Dimensions != 384 {
		t.Errorf("vector.dimensions = %d", cfg.Vector.Dimensions)
	}
}

func TestLoadFullConfig(t *testing.T) {
	doc := `
kernel:
  ip: 0.0.0.0
  shell_port: 6000
  max_clients: 4
state:
  backend: bolt
  path: /var/lib/llmspell/state.db
  compression: true
sessions:
  max_idle: 30m
  cleanup_schedule: "@every 5m"
timeouts:
  default: 10s
  max: 1m
hooks:
  failure_threshold: 5
memory:
  max_memories: 250
  similarity_threshold: 0.8
tenants:
  - id: acme
    max_vectors: 1000
    max_dimensions: 384
  - id: globex
    max_queries_per_second: 10
`
	cfg, err := NewLoader(mapReader{"c.yaml": []byte(doc)}).Load("c.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Kernel.ShellPort != 6000 || cfg.Kernel.MaxClients != 4 {
		t.Errorf("kernel = %+v", cfg.Kernel)
	}
	if cfg.State.Backend != "bolt" || !cfg.State.Compression {
		t.Errorf("state = %+v", cfg.State)
	}
	if cfg.Sessions.MaxIdle != 30*time.Minute {
		t.Errorf("sessions.max_idle = %v", cfg.Sessions.MaxIdle)
	}
	if cfg.Hooks.FailureThreshold != 5 {
		t.Errorf("hooks = %+v", cfg.Hooks)
	}
	if cfg.Memory.MaxMemories != 250 || cfg.Memory.SimilarityThreshold != 0.8 {
		t.Errorf("memory = %+v", cfg.Memory)
	}
	if len(cfg.Tenants) != 2 || cfg.Tenants[0].ID != "acme" || cfg.Tenants[1].MaxQueriesPerSecond != 10 {
		t.Errorf("tenants = %+v", cfg.Tenants)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown backend", "state:\n  backend: papyrus\n"},
		{"bolt without path", "state:\n  backend: bolt\n"},
		{"postgres without dsn", "state:\n  backend: postgres\n"},
		{"redis without addr", "state:\n  backend: redis\n"},
		{"port out of range", "kernel:\n  shell_port: 70000\n"},
		{"default timeout above max", "timeouts:\n  default: 2m\n  max: 1m\n"},
		{"duplicate tenant", "tenants:\n  - id: a\n  - id: a\n"},
		{"empty tenant id", "tenants:\n  - max_vectors: 5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(mapReader{"c.yaml": []byte(tt.doc)}).Load("c.yaml")
			if lserror.KindOf(err) != lserror.KindValidation {
				t.Fatalf("got %v, want validation error", err)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LLMSPELL_STATE_BACKEND", "redis")
	t.Setenv("LLMSPELL_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("LLMSPELL_KERNEL_KEY", "env-key")

	cfg, err := NewLoader(mapReader{"c.yaml": []byte("kernel:\n  key: file-key\n")}).Load("c.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.State.Backend != "redis" || cfg.State.RedisAddr != "redis.internal:6379" {
		t.Errorf("state = %+v", cfg.State)
	}
	if cfg.Kernel.Key != "env-key" {
		t.Errorf("kernel.key = %q, want the environment to win", cfg.Kernel.Key)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader(mapReader{}).Load("absent.yaml")
	if lserror.KindOf(err) != lserror.KindBackend {
		t.Fatalf("got %v, want backend error", err)
	}
}

func TestSafeYAMLLimits(t *testing.T) {
	limits := YAMLLimits{MaxFileSize: 1024, MaxDepth: 3, MaxNodes: 50, MaxKeyLength: 10}

	tests := []struct {
		name string
		doc  string
	}{
		{"too deep", "a:\n  b:\n    c:\n      d:\n        e: 1\n"},
		{"key too long", "a_key_that_is_far_too_long: 1\n"},
		{"too large", strings.Repeat("# padding\n", 200)},
		{"not yaml", "a: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out map[string]any
			err := NewSafeYAMLParser(limits).Unmarshal([]byte(tt.doc), &out)
			if lserror.KindOf(err) != lserror.KindValidation {
				t.Fatalf("got %v, want validation error", err)
			}
		})
	}

	var cfg Config
	if err := NewSafeYAMLParser(DefaultYAMLLimits()).Unmarshal([]byte("kernel:\n  ip: 127.0.0.1\n"), &cfg); err != nil {
		t.Errorf("well-formed doc rejected: %v", err)
	}
}
