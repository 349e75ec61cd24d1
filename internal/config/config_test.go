package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
backend: wgpu
log_level: debug
timed_wait_any:
  max_count: 8
  timeout: 500ms
demo:
  iterations: 10
metrics:
  enabled: true
  output: metrics.txt
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Backend != "wgpu" {
		t.Errorf("Backend = %q, want wgpu", cfg.Backend)
	}
	if cfg.TimedWaitAny.MaxCount != 8 || cfg.TimedWaitAny.Timeout != 500*time.Millisecond {
		t.Errorf("TimedWaitAny = %+v", cfg.TimedWaitAny)
	}
	// Keys absent from the file keep their defaults.
	if !cfg.TimedWaitAny.Enabled {
		t.Error("TimedWaitAny.Enabled = false, want default true")
	}
	if cfg.Demo.BufferSize != Default().Demo.BufferSize || cfg.Demo.Iterations != 10 {
		t.Errorf("Demo = %+v", cfg.Demo)
	}
	if l, _ := cfg.Level(); l != slog.LevelDebug {
		t.Errorf("Level() = %v, want DEBUG", l)
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("Parse(nil) = %+v, want defaults", cfg)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("backnd: null\n")); err == nil {
		t.Error("Parse() with a misspelled key should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"defaults", func(*Config) {}, nil},
		{"no backend", func(c *Config) { c.Backend = "" }, ErrNoBackend},
		{"negative workers", func(c *Config) { c.CompileWorkers = -1 }, ErrCompileWorkers},
		{"negative max count", func(c *Config) { c.TimedWaitAny.MaxCount = -1 }, ErrMaxCount},
		{"negative timeout", func(c *Config) { c.TimedWaitAny.Timeout = -time.Second }, ErrTimeout},
		{"zero buffer", func(c *Config) { c.Demo.BufferSize = 0 }, ErrBufferSize},
		{"unaligned buffer", func(c *Config) { c.Demo.BufferSize = 6 }, ErrBufferSize},
		{"huge buffer", func(c *Config) { c.Demo.BufferSize = 2 << 30 }, ErrBufferSize},
		{"no iterations", func(c *Config) { c.Demo.Iterations = 0 }, ErrIterations},
		{"metrics without output", func(c *Config) { c.Metrics = Metrics{Enabled: true} }, ErrMetricsOutput},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, ErrUnknownLogLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wgdemo.yaml")
	if err := os.WriteFile(path, []byte("demo:\n  buffer_size: 1024\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Demo.BufferSize != 1024 {
		t.Errorf("BufferSize = %d, want 1024", cfg.Demo.BufferSize)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() of a missing file error = %v, want ErrNotExist", err)
	}
}
