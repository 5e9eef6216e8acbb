package tensor

// Backend is the minimal surface every compute backend offers. The gradient
// tape only needs Add to accumulate gradients of tensors used more than once.
//
// Implementations:
//   - CPU: goroutine-parallel tiled kernels
//   - WebGPU: WGSL compute shaders (windows builds)
type Backend interface {
	// Add returns a + b element-wise; both operands have the same shape.
	Add(a, b *RawTensor) *RawTensor

	// Name returns the backend name.
	Name() string

	// Device returns the compute device.
	Device() Device
}
