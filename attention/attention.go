// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package attention provides banded (sliding-window) attention.
//
// Each query position l attends to the C keys l-C/2 .. l+C/2-1. Scores and
// attention weights are stored banded with shape (N, H, L, C), so memory is
// linear in the sequence length. The four operations cover the forward and
// backward passes of scores = q.k + mask and out = attn.v:
//
//	backend := cpu.New()
//	scores, err := attention.LocalDotProduct(backend, q, k, mask, lengths, 16)
//	// softmax over the last axis of scores gives attn
//	out, err := attention.LocalWeightedAverage(backend, attn, v)
//
// Inputs are validated before any kernel is launched; contract violations
// wrap ErrInvalidWindow, tensor.ErrShapeMismatch or tensor.ErrTypeMismatch.
package attention

import (
	"github.com/born-ml/localattn/internal/attention"
	"github.com/born-ml/localattn/tensor"
)

// Backend runs the four banded attention kernels.
//
// Implementations:
//   - backend/cpu
//   - backend/webgpu
//   - autodiff.Backend wrapping either of them
type Backend = attention.Backend

// ErrInvalidWindow reports a window that is odd, non-positive or longer
// than the sequence.
var ErrInvalidWindow = attention.ErrInvalidWindow

// LocalDotProduct returns the banded scores
//
//	scores[n, h, l, k] = q[n, h, l] . k[n, h, l-C/2+k] + mask[l, l-C/2+k]
//
// of shape (N, H, L, C), with -Inf where the key lies outside [0, L).
// keyLengths is an int64 tensor of shape (N) or (N, H).
func LocalDotProduct(b Backend, q, k, mask, keyLengths *tensor.RawTensor, window int) (*tensor.RawTensor, error) {
	return attention.LocalDotProduct(b, q, k, mask, keyLengths, window)
}

// LocalDotBackward returns the gradients of LocalDotProduct with respect to
// q and k, given the gradient of the scores.
func LocalDotBackward(b Backend, q, k, keyLengths, gradScores *tensor.RawTensor, window int) (gradQ, gradK *tensor.RawTensor, err error) {
	return attention.LocalDotBackward(b, q, k, keyLengths, gradScores, window)
}

// LocalWeightedAverage returns
//
//	out[n, h, l] = sum_k attn[n, h, l, k] * v[n, h, l-C/2+k]
//
// where keys outside [0, L) contribute nothing. The window is the last
// dimension of attn.
func LocalWeightedAverage(b Backend, attn, v *tensor.RawTensor) (*tensor.RawTensor, error) {
	return attention.LocalWeightedAverage(b, attn, v)
}

// LocalWeightedAverageBackward returns the gradients of LocalWeightedAverage
// with respect to attn and v, given the gradient of its output.
func LocalWeightedAverageBackward(b Backend, attn, v, gradOut *tensor.RawTensor) (gradAttn, gradV *tensor.RawTensor, err error) {
	return attention.LocalWeightedAverageBackward(b, attn, v, gradOut)
}
