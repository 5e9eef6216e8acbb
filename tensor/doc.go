// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor exposes the tensor storage consumed by the banded attention
// operations.
//
// # Overview
//
// A RawTensor is a flat, reference-counted byte buffer with a Shape, a
// DataType and the Device that produced it. The attention operations take
// rank-4 float32 tensors laid out as (N, H, L, E) for sequences and
// (N, H, L, C) for banded scores, plus an int64 tensor of key lengths.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/localattn/attention"
//	    "github.com/born-ml/localattn/backend/cpu"
//	    "github.com/born-ml/localattn/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    q, _ := tensor.FromFloat32(qData, tensor.Shape{1, 4, 128, 64}, tensor.CPU)
//	    k, _ := tensor.FromFloat32(kData, tensor.Shape{1, 4, 128, 64}, tensor.CPU)
//	    mask, _ := tensor.NewRaw(tensor.Shape{128, 128}, tensor.Float32, tensor.CPU)
//	    lengths, _ := tensor.FromInt64([]int64{128}, tensor.Shape{1}, tensor.CPU)
//
//	    scores, err := attention.LocalDotProduct(backend, q, k, mask, lengths, 16)
//	}
//
// # Data Types
//
// Attention inputs are float32. Key lengths are int64. Float64 and int32
// buffers can be created but every attention operation rejects them with
// ErrTypeMismatch.
//
// # Memory Management
//
// Clone shares the underlying buffer and Release drops a reference. Backends
// reuse a uniquely owned buffer in place for element-wise accumulation, so
// a tensor that must keep its value should be cloned or copied first.
package tensor
