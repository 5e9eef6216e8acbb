// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/localattn/internal/tensor"

// Backend is the minimal surface every compute backend implements.
//
// Implementations:
//   - backend/cpu: goroutine-parallel tiled kernels in pure Go
//   - backend/webgpu: WGSL compute shaders via WebGPU (windows builds)
//
// Decorator backends for additional functionality:
//   - autodiff: gradient tape over any attention backend
//
// The banded attention operations themselves are declared by
// attention.Backend, which embeds this interface.
type Backend = tensor.Backend
