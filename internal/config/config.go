// Package config loads the YAML configuration of the wgdemo command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Sentinel errors returned by Validate.
var (
	ErrNoBackend       = errors.New("config: backend is required")
	ErrMaxCount        = errors.New("config: timed_wait_any.max_count must not be negative")
	ErrTimeout         = errors.New("config: timed_wait_any.timeout must not be negative")
	ErrCompileWorkers  = errors.New("config: compile_workers must not be negative")
	ErrBufferSize      = errors.New("config: demo.buffer_size must be a positive multiple of 4 up to 1 GiB")
	ErrIterations      = errors.New("config: demo.iterations must be positive")
	ErrMetricsOutput   = errors.New("config: metrics.output is required when metrics are enabled")
	ErrUnknownLogLevel = errors.New("config: unknown log_level")
)

// maxBufferSize mirrors wgcore.MaxBufferSize.
const maxBufferSize = 1 << 30

// Config is the root of the configuration file.
type Config struct {
	// Backend names the registered backend, e.g. "null" or "wgpu".
	Backend        string       `yaml:"backend"`
	CompileWorkers int          `yaml:"compile_workers"`
	LogLevel       string       `yaml:"log_level"`
	TimedWaitAny   TimedWaitAny `yaml:"timed_wait_any"`
	Demo           Demo         `yaml:"demo"`
	Metrics        Metrics      `yaml:"metrics"`
}

type TimedWaitAny struct {
	Enabled  bool          `yaml:"enabled"`
	MaxCount int           `yaml:"max_count"` // 0 selects the instance default
	Timeout  time.Duration `yaml:"timeout"`   // e.g. "2s"
}

type Demo struct {
	BufferSize uint64 `yaml:"buffer_size"` // bytes
	Iterations int    `yaml:"iterations"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Output  string `yaml:"output"` // "-" writes to stdout
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend:  "null",
		LogLevel: "info",
		TimedWaitAny: TimedWaitAny{
			Enabled: true,
			Timeout: 2 * time.Second,
		},
		Demo: Demo{
			BufferSize: 256,
			Iterations: 4,
		},
		Metrics: Metrics{Output: "-"},
	}
}

// Load reads and validates the file at path. Keys missing from the file
// keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates YAML. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and returns the first problem found.
func (c *Config) Validate() error {
	switch {
	case c.Backend == "":
		return ErrNoBackend
	case c.CompileWorkers < 0:
		return ErrCompileWorkers
	case c.TimedWaitAny.MaxCount < 0:
		return ErrMaxCount
	case c.TimedWaitAny.Timeout < 0:
		return ErrTimeout
	case c.Demo.BufferSize == 0 || c.Demo.BufferSize%4 != 0 || c.Demo.BufferSize > maxBufferSize:
		return fmt.Errorf("%w: %d", ErrBufferSize, c.Demo.BufferSize)
	case c.Demo.Iterations <= 0:
		return ErrIterations
	case c.Metrics.Enabled && c.Metrics.Output == "":
		return ErrMetricsOutput
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLogLevel, c.LogLevel)
	}
	return l, nil
}
