// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for banded attention.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - Blocked sliding dot products on gonum's float32 BLAS
//   - Shared-tile weighted averages and transpose-scatters
//   - Goroutine-parallel launches over (N*H, L) tiles
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/localattn/attention"
//	    "github.com/born-ml/localattn/backend/cpu"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    scores, err := attention.LocalDotProduct(backend, q, k, mask, lengths, 16)
//	}
//
// # Configuration
//
// NewWithConfig takes an attention.Config, usually loaded from YAML:
//
//	workers: 4          # goroutines per launch, 0 = one per CPU
//	query_block: 64     # query rows per sliding dot-product iteration
//	sequential: false   # run every launch on the calling goroutine
//
// # Memory
//
// The sliding dot product allocates one dense scratch block of
// (N*H, B, B+C) float32 values per call, where B is the query block.
// ScratchBytes reports its size.
package cpu
