// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package attention

import (
	"github.com/pkg/errors"

	"github.com/born-ml/localattn/internal/backend/cpu"
	"github.com/born-ml/localattn/internal/backend/webgpu"
	"github.com/born-ml/localattn/internal/config"
)

// Config selects the backend and its execution settings. It is usually
// loaded from YAML:
//
//	backend: cpu
//	workers: 8
//	query_block: 64
type Config = config.Config

// Backend names accepted in Config.Backend.
const (
	BackendCPU    = config.BackendCPU
	BackendWebGPU = config.BackendWebGPU
)

// DefaultConfig returns the CPU configuration with one worker per CPU.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads a YAML configuration file. Fields missing from the file
// keep their default values.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// Open constructs the backend named by cfg. The returned release function
// frees device resources and must be called once the backend is no longer
// used.
func Open(cfg Config) (Backend, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	switch cfg.Backend {
	case config.BackendCPU:
		return cpu.NewWithConfig(cfg), func() {}, nil
	case config.BackendWebGPU:
		gpu, err := webgpu.New()
		if err != nil {
			return nil, nil, errors.Wrap(err, "open webgpu backend")
		}
		return gpu, gpu.Release, nil
	default:
		return nil, nil, errors.Errorf("unknown backend %q", cfg.Backend)
	}
}
