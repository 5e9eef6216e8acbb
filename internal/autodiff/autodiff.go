// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any backend that runs the banded attention kernels
// (CPU, WebGPU) and adds gradient tracking through a GradientTape.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any ops.LocalBackend
//   - GradientTape: Records operations during forward pass
//   - Operation interface: Each op implements its backward pass by calling
//     the wrapped backend's gradient kernels
//   - Reverse-mode AD: Computes gradients using the chain rule
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	scores := backend.LocalDotProduct(q, k, mask, keyLengths, 8)
//	grads := autodiff.BackwardWith(scores, upstream, backend)
//	gradQ, gradK := grads[q], grads[k]
package autodiff

import (
	"github.com/born-ml/localattn/internal/autodiff/ops"
	"github.com/born-ml/localattn/internal/tensor"
)

// AutodiffBackend wraps a backend and records differentiable operations in
// a GradientTape.
//
// Type parameter B must satisfy the ops.LocalBackend interface.
type AutodiffBackend[B ops.LocalBackend] struct {
	inner B             // Wrapped backend (CPU, GPU, etc.)
	tape  *GradientTape // Records operations for backpropagation
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B ops.LocalBackend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	// A recorded input must never be overwritten by the inplace fast path.
	defer a.ForceNonUnique()()
	defer c.ForceNonUnique()()

	result := b.inner.Add(a, c)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewAddOp(a, c, result))
	}

	return result
}

// LocalDotProduct computes banded scores and records the operation.
func (b *AutodiffBackend[B]) LocalDotProduct(q, k, mask, keyLengths *tensor.RawTensor, window int) *tensor.RawTensor {
	result := b.inner.LocalDotProduct(q, k, mask, keyLengths, window)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewLocalDotProductOp(q, k, mask, keyLengths, result, window))
	}

	return result
}

// LocalWeightedAverage computes the banded weighted sum and records the operation.
func (b *AutodiffBackend[B]) LocalWeightedAverage(attn, v *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.LocalWeightedAverage(attn, v)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewLocalWeightedAverageOp(attn, v, result))
	}

	return result
}

// LocalDotBackward delegates to the wrapped backend. Gradient kernels are
// never recorded.
func (b *AutodiffBackend[B]) LocalDotBackward(q, k, keyLengths, gradScores *tensor.RawTensor, window int) (gradQ, gradK *tensor.RawTensor) {
	return b.inner.LocalDotBackward(q, k, keyLengths, gradScores, window)
}

// LocalWeightedAverageBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) LocalWeightedAverageBackward(attn, v, gradOut *tensor.RawTensor) (gradAttn, gradV *tensor.RawTensor) {
	return b.inner.LocalWeightedAverageBackward(attn, v, gradOut)
}
