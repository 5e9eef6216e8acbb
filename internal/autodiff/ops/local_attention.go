package ops

import "github.com/born-ml/localattn/internal/tensor"

// LocalDotProductOp records scores = LocalDotProduct(q, k, mask, keyLengths, C).
//
// Backward pass:
//   - grad_q = sum_k gradScores[l, k] * k[l-C/2+k]
//   - grad_k = sum_l gradScores[l, s-l+C/2] * q[l]
//   - mask and keyLengths receive no gradient
type LocalDotProductOp struct {
	inputs []*tensor.RawTensor // [q, k, mask, keyLengths]
	output *tensor.RawTensor   // (N, H, L, C) scores
	window int
}

// NewLocalDotProductOp creates a new LocalDotProductOp.
func NewLocalDotProductOp(q, k, mask, keyLengths, output *tensor.RawTensor, window int) *LocalDotProductOp {
	return &LocalDotProductOp{
		inputs: []*tensor.RawTensor{q, k, mask, keyLengths},
		output: output,
		window: window,
	}
}

// Backward returns [grad_q, grad_k, nil, nil].
func (op *LocalDotProductOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	lb := localBackend("LocalDotProductOp", backend)
	q, k, keyLengths := op.inputs[0], op.inputs[1], op.inputs[3]

	gradQ, gradK := lb.LocalDotBackward(q, k, keyLengths, outputGrad, op.window)
	return []*tensor.RawTensor{gradQ, gradK, nil, nil}
}

// Inputs returns [q, k, mask, keyLengths].
func (op *LocalDotProductOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the banded scores.
func (op *LocalDotProductOp) Output() *tensor.RawTensor {
	return op.output
}

// Window returns the band width C.
func (op *LocalDotProductOp) Window() int {
	return op.window
}

// LocalWeightedAverageOp records out = LocalWeightedAverage(attn, v).
//
// Backward pass:
//   - grad_attn[l, k] = gradOut[l] . v[l-C/2+k], zero where the key is absent
//   - grad_v[s] = sum_l attn[l, s-l+C/2] * gradOut[l]
type LocalWeightedAverageOp struct {
	inputs []*tensor.RawTensor // [attn, v]
	output *tensor.RawTensor
}

// NewLocalWeightedAverageOp creates a new LocalWeightedAverageOp.
func NewLocalWeightedAverageOp(attn, v, output *tensor.RawTensor) *LocalWeightedAverageOp {
	return &LocalWeightedAverageOp{
		inputs: []*tensor.RawTensor{attn, v},
		output: output,
	}
}

// Backward returns [grad_attn, grad_v].
func (op *LocalWeightedAverageOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	lb := localBackend("LocalWeightedAverageOp", backend)

	gradAttn, gradV := lb.LocalWeightedAverageBackward(op.inputs[0], op.inputs[1], outputGrad)
	return []*tensor.RawTensor{gradAttn, gradV}
}

// Inputs returns [attn, v].
func (op *LocalWeightedAverageOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the weighted average.
func (op *LocalWeightedAverageOp) Output() *tensor.RawTensor {
	return op.output
}
