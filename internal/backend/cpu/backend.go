// Package cpu implements the local attention kernels on the CPU. Kernels are
// written as block grids: independent blocks run on goroutines, threads of a
// block run as phase loops over tiles the block owns.
package cpu

import (
	"fmt"

	"github.com/born-ml/localattn/internal/config"
	"github.com/born-ml/localattn/internal/parallel"
	"github.com/born-ml/localattn/internal/tensor"
)

// CPUBackend implements the local attention operations on CPU.
type CPUBackend struct {
	device     tensor.Device
	par        parallel.Config
	queryBlock int
}

// New creates a CPU backend with the default configuration.
func New() *CPUBackend {
	return NewWithConfig(config.Default())
}

// NewWithConfig creates a CPU backend from an engine configuration.
// The configuration is assumed to be validated.
func NewWithConfig(cfg config.Config) *CPUBackend {
	queryBlock := cfg.QueryBlock
	if queryBlock <= 0 {
		queryBlock = defaultQueryBlock
	}
	return &CPUBackend{
		device:     tensor.CPU,
		par:        cfg.Parallel(),
		queryBlock: queryBlock,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// QueryBlock returns the number of query rows processed per outer iteration
// of the sliding dot-product engine.
func (cpu *CPUBackend) QueryBlock() int {
	return cpu.queryBlock
}

// ScratchBytes returns the size of the scratch block buffer a sliding
// dot-product over batchHeads sequences with the given window allocates.
func (cpu *CPUBackend) ScratchBytes(batchHeads, window int) int {
	return batchHeads * cpu.queryBlock * (cpu.queryBlock + window) * tensor.Float32.Size()
}

// zeros allocates a zero-filled float32 result tensor.
func (cpu *CPUBackend) zeros(op string, shape tensor.Shape) *tensor.RawTensor {
	result, err := tensor.NewRaw(shape, tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return result
}

// filled allocates a float32 result tensor with every element set to v.
func (cpu *CPUBackend) filled(op string, shape tensor.Shape, v float32) *tensor.RawTensor {
	result := cpu.zeros(op, shape)
	if v != 0 {
		result.FillFloat32(v)
	}
	return result
}
