// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"github.com/born-ml/localattn/attention"
	internalcpu "github.com/born-ml/localattn/internal/backend/cpu"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements attention.Backend.
var _ attention.Backend = (*Backend)(nil)

// New creates a CPU backend with one worker per CPU.
//
// Example:
//
//	backend := cpu.New()
//	scores, err := attention.LocalDotProduct(backend, q, k, mask, lengths, 16)
func New() *Backend {
	return internalcpu.New()
}

// NewWithConfig creates a CPU backend with the worker count, chunking and
// query block of cfg.
func NewWithConfig(cfg attention.Config) *Backend {
	return internalcpu.NewWithConfig(cfg)
}
