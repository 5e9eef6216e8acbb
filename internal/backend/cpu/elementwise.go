package cpu

import (
	"fmt"

	"github.com/born-ml/localattn/internal/parallel"
	"github.com/born-ml/localattn/internal/tensor"
)

// Add performs element-wise addition of two same-shaped tensors.
// When a holds the only reference to its buffer the sum is written in place.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("add: shape mismatch %v vs %v", a.Shape(), b.Shape()))
	}
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("add: dtype mismatch %s vs %s", a.DType(), b.DType()))
	}

	result := a
	if !a.IsUnique() {
		var err error
		result, err = tensor.NewRaw(a.Shape(), a.DType(), cpu.device)
		if err != nil {
			panic(fmt.Sprintf("add: failed to create result tensor: %v", err))
		}
	}

	switch a.DType() {
	case tensor.Float32:
		addFloat32(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), cpu.par)
	case tensor.Float64:
		addFloat64(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), cpu.par)
	default:
		panic(fmt.Sprintf("add: unsupported dtype %s", a.DType()))
	}
	return result
}

func addFloat32(dst, a, b []float32, cfg parallel.Config) {
	parallel.For(len(dst), func(i int) {
		dst[i] = a[i] + b[i]
	}, cfg)
}

func addFloat64(dst, a, b []float64, cfg parallel.Config) {
	parallel.For(len(dst), func(i int) {
		dst[i] = a[i] + b[i]
	}, cfg)
}
