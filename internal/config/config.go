// Package config holds the engine configuration shared by the backends and
// the command-line tool.
package config

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/localattn/internal/parallel"
)

// Backend names accepted in Config.Backend.
const (
	BackendCPU    = "cpu"
	BackendWebGPU = "webgpu"
)

// Config configures the local attention engine.
type Config struct {
	Backend      string `yaml:"backend"`        // "cpu" or "webgpu".
	Workers      int    `yaml:"workers"`        // Goroutines per launch; 0 means one per CPU.
	MinChunkSize int    `yaml:"min_chunk_size"` // Minimum elements per goroutine in flat loops.
	QueryBlock   int    `yaml:"query_block"`    // Query rows per sliding dot-product iteration.
	Sequential   bool   `yaml:"sequential"`     // Run every launch on the calling goroutine.
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Backend:      BackendCPU,
		Workers:      runtime.NumCPU(),
		MinChunkSize: 64,
		QueryBlock:   64,
	}
}

// Load reads a YAML configuration file. Fields missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %q", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %q", path)
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendCPU, BackendWebGPU:
	default:
		return errors.Errorf("config: unknown backend %q (want %q or %q)", c.Backend, BackendCPU, BackendWebGPU)
	}
	if c.Workers < 0 {
		return errors.Errorf("config: workers must be >= 0, got %d", c.Workers)
	}
	if c.MinChunkSize < 1 {
		return errors.Errorf("config: min_chunk_size must be >= 1, got %d", c.MinChunkSize)
	}
	if c.QueryBlock < 1 {
		return errors.Errorf("config: query_block must be >= 1, got %d", c.QueryBlock)
	}
	return nil
}

// Parallel maps the configuration onto the execution settings of the
// parallel package.
func (c Config) Parallel() parallel.Config {
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	minChunk := max(c.MinChunkSize, 1)
	return parallel.Config{
		Enabled:      !c.Sequential && workers > 1,
		NumWorkers:   workers,
		MinChunkSize: minChunk,
	}
}
