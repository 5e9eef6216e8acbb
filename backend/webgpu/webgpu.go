// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend for banded attention.
//
// The kernels are WGSL compute shaders run through go-webgpu, a zero-CGO
// binding to wgpu-native. The GPU build is available on windows; on other
// platforms New returns an error and IsAvailable reports false.
//
// Example:
//
//	gpu, err := webgpu.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gpu.Release()
//
//	scores, err := attention.LocalDotProduct(gpu, q, k, mask, lengths, 16)
package webgpu

import (
	"github.com/born-ml/localattn/attention"
	internalwebgpu "github.com/born-ml/localattn/internal/backend/webgpu"
)

// Backend represents the WebGPU backend implementation.
type Backend = internalwebgpu.Backend

// Compile-time check that Backend implements attention.Backend.
var _ attention.Backend = (*Backend)(nil)

// New creates a new WebGPU backend.
// Returns an error if WebGPU is not available or initialization fails.
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
