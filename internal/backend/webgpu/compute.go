//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
)

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached in the Backend's shaders map.
func (b *Backend) compileShader(name, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	if shader, exists := b.shaders[name]; exists {
		b.mu.RUnlock()
		return shader
	}
	b.mu.RUnlock()

	shader := b.device.CreateShaderModuleWGSL(code)

	b.mu.Lock()
	defer b.mu.Unlock()
	if cached, exists := b.shaders[name]; exists {
		shader.Release()
		return cached
	}
	b.shaders[name] = shader
	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates a new one.
func (b *Backend) getOrCreatePipeline(name, code string) *wgpu.ComputePipeline {
	b.mu.RLock()
	if pipeline, exists := b.pipelines[name]; exists {
		b.mu.RUnlock()
		return pipeline
	}
	b.mu.RUnlock()

	// Auto layout (nil layout) from the shader's bindings.
	pipeline := b.device.CreateComputePipelineSimple(nil, b.compileShader(name, code), "main")

	b.mu.Lock()
	defer b.mu.Unlock()
	if cached, exists := b.pipelines[name]; exists {
		pipeline.Release()
		return cached
	}
	b.pipelines[name] = pipeline
	return pipeline
}

// gpuBuffer is a device buffer with its byte size.
type gpuBuffer struct {
	buffer *wgpu.Buffer
	size   uint64
}

// createBuffer creates a storage buffer holding data.
func (b *Backend) createBuffer(data []byte) gpuBuffer {
	size := uint64(len(data))

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return gpuBuffer{buffer: buffer, size: size}
}

// createScratch creates an uninitialised storage buffer of size bytes.
func (b *Backend) createScratch(size uint64) gpuBuffer {
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage,
		Size:  size,
	})
	return gpuBuffer{buffer: buffer, size: size}
}

// createUniformBuffer creates a uniform buffer with proper alignment.
// Uniform buffers require 16-byte alignment for struct fields.
func (b *Backend) createUniformBuffer(data []byte) gpuBuffer {
	size := uint64(len(data))
	alignedSize := (size + 15) &^ 15

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             alignedSize,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, alignedSize)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), alignedSize)
	copy(mappedSlice, data)
	buffer.Unmap()

	return gpuBuffer{buffer: buffer, size: alignedSize}
}

// readBuffer reads data back from a GPU buffer to CPU memory.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (b *Backend) readBuffer(src gpuBuffer) ([]byte, error) {
	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  src.size,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src.buffer, 0, staging, 0, src.size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, src.size); err != nil {
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}

	mappedPtr := staging.GetMappedRange(0, src.size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), src.size)
	result := make([]byte, src.size)
	copy(result, mappedSlice)
	staging.Unmap()

	return result, nil
}

// shaderParams is the uniform block shared by every band shader.
//
//	struct Params {
//	    batch, length, features, window: u32,
//	    query_start, key_start, rows, cols: u32,
//	    pitch, size, batch_start, _pad0: u32,
//	}
type shaderParams struct {
	batch, length, features, window uint32
	queryStart, keyStart, rows, cols uint32
	pitch, size, batchStart          uint32
}

func (p shaderParams) bytes() []byte {
	buf := make([]byte, 48)
	for i, v := range []uint32{
		p.batch, p.length, p.features, p.window,
		p.queryStart, p.keyStart, p.rows, p.cols,
		p.pitch, p.size, p.batchStart,
	} {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	return buf
}

// commandBatch records every dispatch of one operation into a single
// command encoder and compute pass. Each dispatch is its own
// synchronisation scope, so a dispatch sees the writes of all dispatches
// recorded before it.
type commandBatch struct {
	backend *Backend
	encoder *wgpu.CommandEncoder
	pass    *wgpu.ComputePassEncoder

	// Released once the batch has been submitted and read back.
	buffers    []gpuBuffer
	bindGroups []*wgpu.BindGroup
}

// newBatch opens a command encoder with one compute pass.
func (b *Backend) newBatch() *commandBatch {
	encoder := b.device.CreateCommandEncoder(nil)
	return &commandBatch{
		backend: b,
		encoder: encoder,
		pass:    encoder.BeginComputePass(nil),
	}
}

// upload creates a storage buffer owned by the batch.
func (batch *commandBatch) upload(data []byte) gpuBuffer {
	buf := batch.backend.createBuffer(data)
	batch.buffers = append(batch.buffers, buf)
	return buf
}

// scratch creates an uninitialised storage buffer owned by the batch.
func (batch *commandBatch) scratch(size uint64) gpuBuffer {
	buf := batch.backend.createScratch(size)
	batch.buffers = append(batch.buffers, buf)
	return buf
}

// dispatch records one shader dispatch. Storage buffers bind to 0..n-1 in
// order, except that params always binds to paramsBinding.
func (batch *commandBatch) dispatch(name, code string, params shaderParams, paramsBinding uint32, storage []gpuBuffer, groups [3]uint32) {
	b := batch.backend
	pipeline := b.getOrCreatePipeline(name, code)

	uniform := b.createUniformBuffer(params.bytes())
	batch.buffers = append(batch.buffers, uniform)

	entries := make([]wgpu.BindGroupEntry, 0, len(storage)+1)
	binding := uint32(0)
	for _, buf := range storage {
		if binding == paramsBinding {
			binding++
		}
		entries = append(entries, wgpu.BufferBindingEntry(binding, buf.buffer, 0, buf.size))
		binding++
	}
	entries = append(entries, wgpu.BufferBindingEntry(paramsBinding, uniform.buffer, 0, uniform.size))

	bindGroup := b.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)
	batch.bindGroups = append(batch.bindGroups, bindGroup)

	batch.pass.SetPipeline(pipeline)
	batch.pass.SetBindGroup(0, bindGroup, nil)
	batch.pass.DispatchWorkgroups(groups[0], groups[1], groups[2])
}

// dispatchBatched records a dispatch whose z axis runs over the batch,
// split into chunks of at most maxGroupsPerDim workgroups. Each chunk
// passes its first batch index as batch_start.
func (batch *commandBatch) dispatchBatched(name, code string, params shaderParams, paramsBinding uint32, storage []gpuBuffer, groups [3]uint32, total int) {
	for _, c := range batchChunks(total) {
		p := params
		//nolint:gosec // G115: bounded by total and maxGroupsPerDim
		p.batchStart, groups[2] = uint32(c.start), uint32(c.count)
		batch.dispatch(name, code, p, paramsBinding, storage, groups)
	}
}

// submit ends the compute pass and submits the encoder to the queue.
func (batch *commandBatch) submit() {
	batch.pass.End()
	batch.backend.queue.Submit(batch.encoder.Finish(nil))
}

// release frees every buffer and bind group the batch created.
func (batch *commandBatch) release() {
	for _, bg := range batch.bindGroups {
		bg.Release()
	}
	for _, buf := range batch.buffers {
		buf.buffer.Release()
	}
	batch.bindGroups, batch.buffers = nil, nil
}

// flatGroups spreads n invocations of a one-dimensional shader over x and y
// so neither axis exceeds the limit. pitch is the number of invocations per
// row of workgroups.
func flatGroups(n int) (groups [3]uint32, pitch uint32) {
	total := (n + workgroupSize - 1) / workgroupSize
	x := max(1, min(total, maxGroupsPerDim))
	y := (total + x - 1) / x
	//nolint:gosec // G115: bounded by maxGroupsPerDim
	return [3]uint32{uint32(x), uint32(y), 1}, uint32(x * workgroupSize)
}
