//go:build !windows

// Package webgpu implements the banded attention kernels as WGSL compute
// shaders. The GPU code is only built on windows; elsewhere New reports the
// backend unavailable.
package webgpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/localattn/internal/tensor"
)

// ErrUnavailable is returned by New on platforms without the GPU build.
var ErrUnavailable = errors.New("webgpu: backend is not built for this platform")

// Backend is a placeholder so callers compile on every platform.
// It cannot be constructed.
type Backend struct{}

// New always fails with ErrUnavailable.
func New() (*Backend, error) {
	return nil, ErrUnavailable
}

// IsAvailable reports false.
func IsAvailable() bool {
	return false
}

// Release is a no-op.
func (b *Backend) Release() {}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "WebGPU (unavailable)"
}

// Device returns the compute device.
func (b *Backend) Device() tensor.Device {
	return tensor.WebGPU
}

func unavailable() {
	panic(ErrUnavailable.Error())
}

// Add panics: the backend cannot be constructed on this platform.
func (b *Backend) Add(_, _ *tensor.RawTensor) *tensor.RawTensor {
	unavailable()
	return nil
}

// LocalDotProduct panics.
func (b *Backend) LocalDotProduct(_, _, _, _ *tensor.RawTensor, _ int) *tensor.RawTensor {
	unavailable()
	return nil
}

// LocalDotBackward panics.
func (b *Backend) LocalDotBackward(_, _, _, _ *tensor.RawTensor, _ int) (gradQ, gradK *tensor.RawTensor) {
	unavailable()
	return nil, nil
}

// LocalWeightedAverage panics.
func (b *Backend) LocalWeightedAverage(_, _ *tensor.RawTensor) *tensor.RawTensor {
	unavailable()
	return nil
}

// LocalWeightedAverageBackward panics.
func (b *Backend) LocalWeightedAverageBackward(_, _, _ *tensor.RawTensor) (gradAttn, gradV *tensor.RawTensor) {
	unavailable()
	return nil, nil
}
