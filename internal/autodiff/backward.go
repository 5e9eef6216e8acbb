package autodiff

import (
	"fmt"

	"github.com/born-ml/localattn/internal/tensor"
)

// BackwardCapable is an interface for backends that support backward pass.
// AutodiffBackend implements this interface.
type BackwardCapable interface {
	tensor.Backend
	// GetTape returns the gradient tape for backward computation.
	GetTape() *GradientTape
}

// GetTape returns the gradient tape (implements BackwardCapable interface).
func (b *AutodiffBackend[B]) GetTape() *GradientTape {
	return b.tape
}

// Backward computes gradients of sum(output) using the backend's tape.
//
// Returns a map from RawTensor to its gradient.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	scores := backend.LocalDotProduct(q, k, mask, keyLengths, 4)
//	out := backend.LocalWeightedAverage(attn, v)
//	gradients := autodiff.Backward(out, backend)
//	gradV := gradients[v]
func Backward(output *tensor.RawTensor, backend BackwardCapable) map[*tensor.RawTensor]*tensor.RawTensor {
	if output.DType() != tensor.Float32 {
		panic(fmt.Sprintf("backward: unsupported dtype %s (only float32 supported)", output.DType()))
	}
	ones, err := tensor.NewRaw(output.Shape(), tensor.Float32, backend.Device())
	if err != nil {
		panic(fmt.Sprintf("backward: failed to create output gradient: %v", err))
	}
	ones.FillFloat32(1)
	return BackwardWith(output, ones, backend)
}

// BackwardWith computes gradients of output seeded with an explicit output
// gradient. output may be any recorded operation's result.
func BackwardWith(output, outputGrad *tensor.RawTensor, backend BackwardCapable) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.GetTape()

	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}
	if !output.Shape().Equal(outputGrad.Shape()) {
		panic(fmt.Sprintf("backward: gradient shape %v does not match output %v", outputGrad.Shape(), output.Shape()))
	}

	return tape.backwardFrom(output, outputGrad, backend)
}
