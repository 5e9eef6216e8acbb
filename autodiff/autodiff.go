// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides automatic differentiation of the banded
// attention operations.
//
// This package implements reverse-mode automatic differentiation using a
// gradient tape. It wraps any attention backend to add autodiff capabilities.
//
// Example:
//
//	import (
//	    "github.com/born-ml/localattn/autodiff"
//	    "github.com/born-ml/localattn/backend/cpu"
//	)
//
//	func main() {
//	    backend := autodiff.New(cpu.New())
//	    backend.Tape().StartRecording()
//
//	    out := backend.LocalWeightedAverage(attn, v)
//	    scores := backend.LocalDotProduct(out, k, mask, lengths, 8)
//
//	    grads := autodiff.BackwardWith(scores, upstream, backend)
//	    gradAttn, gradV, gradK := grads[attn], grads[v], grads[k]
//	}
package autodiff

import (
	"github.com/born-ml/localattn/internal/autodiff"
	"github.com/born-ml/localattn/internal/autodiff/ops"
	"github.com/born-ml/localattn/tensor"
)

// LocalBackend is a backend the tape can differentiate through.
type LocalBackend = ops.LocalBackend

// Backend is the autodiff-enabled backend.
type Backend[B LocalBackend] = autodiff.AutodiffBackend[B]

// New creates a new autodiff backend wrapping the given backend.
func New[B LocalBackend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// BackwardCapable interface for backends that support backpropagation.
type BackwardCapable = autodiff.BackwardCapable

// Backward computes gradients of every recorded input, seeding output with
// ones.
func Backward(output *tensor.RawTensor, backend BackwardCapable) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(output, backend)
}

// BackwardWith computes gradients of every recorded input, seeding output
// with outputGrad.
func BackwardWith(output, outputGrad *tensor.RawTensor, backend BackwardCapable) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.BackwardWith(output, outputGrad, backend)
}
