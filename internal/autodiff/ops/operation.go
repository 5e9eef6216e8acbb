// Package ops defines operation interfaces and implementations for automatic differentiation.
//
// Each operation implements the Operation interface, which provides:
//   - Forward pass: computed by the backend
//   - Backward pass: computes gradients for inputs given output gradient
//
// Supported operations:
//   - AddOp: element-wise addition (d(a+b)/da = 1, d(a+b)/db = 1)
//   - LocalDotProductOp: banded attention scores (gradients for q and k)
//   - LocalWeightedAverageOp: banded weighted sum of values (gradients for attn and v)
package ops

import "github.com/born-ml/localattn/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input tensor;
	// a nil entry means the input receives no gradient.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}

// LocalBackend is a backend able to run the banded attention kernels in
// both directions.
type LocalBackend interface {
	tensor.Backend

	LocalDotProduct(q, k, mask, keyLengths *tensor.RawTensor, window int) *tensor.RawTensor
	LocalDotBackward(q, k, keyLengths, gradScores *tensor.RawTensor, window int) (gradQ, gradK *tensor.RawTensor)
	LocalWeightedAverage(attn, v *tensor.RawTensor) *tensor.RawTensor
	LocalWeightedAverageBackward(attn, v, gradOut *tensor.RawTensor) (gradAttn, gradV *tensor.RawTensor)
}

// localBackend asserts that backend can run the backward kernels.
func localBackend(op string, backend tensor.Backend) LocalBackend {
	lb, ok := backend.(LocalBackend)
	if !ok {
		panic(op + ": backend " + backend.Name() + " does not support local attention")
	}
	return lb
}
