//go:build windows

package webgpu

import (
	"fmt"
	"math"
	"unsafe"

	"k8s.io/klog/v2"

	"github.com/born-ml/localattn/internal/tensor"
)

// queryBlock is the number of query rows per sliding dot-product iteration.
const queryBlock = 64

// geometry is one banded call with (N, H) folded into batch.
type geometry struct {
	batch, length, features, window int
}

func geometryOf(x *tensor.RawTensor, window int) geometry {
	flat := x.Shape().Flatten3D()
	if window <= 0 || window%2 != 0 || window > flat[1] {
		panic(fmt.Sprintf("webgpu: window %d must be even and in (0, %d]", window, flat[1]))
	}
	return geometry{batch: flat[0], length: flat[1], features: flat[2], window: window}
}

//nolint:gosec // G115: dimensions of validated tensors fit in u32
func (g geometry) params() shaderParams {
	return shaderParams{
		batch:    uint32(g.batch),
		length:   uint32(g.length),
		features: uint32(g.features),
		window:   uint32(g.window),
	}
}

// tiledGroups is the (feature tile, length tile) grid of the
// weighted-average and transpose-scatter shaders; dispatchBatched fills in
// the batch axis.
//
//nolint:gosec // G115: tile counts fit in u32
func (g geometry) tiledGroups() [3]uint32 {
	return [3]uint32{
		uint32((g.features + tile - 1) / tile),
		uint32((g.length + tile - 1) / tile),
		1,
	}
}

func bandShape(shape tensor.Shape, window int) tensor.Shape {
	out := shape.Clone()
	out[len(out)-1] = window
	return out
}

// filledBytes returns the bytes of n float32 values equal to v.
func filledBytes(n int, v float32) []byte {
	data := make([]float32, n)
	if v != 0 {
		for i := range data {
			data[i] = v
		}
	}
	//nolint:gosec // unsafe.Slice for zero-copy view of the float32 slice
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), 4*n)
}

// recordSlidingDot records, per chunk of query rows, a block matmul into the
// shared scratch buffer followed by the band selection into out. The
// scratch buffer is overwritten every iteration; dispatch order on the
// queue guarantees the selection has consumed it first.
func (batch *commandBatch) recordSlidingDot(a, b, out, mask gpuBuffer, masked bool, g geometry) {
	half := g.window / 2
	//nolint:gosec // G115: scratch size is positive
	scratch := batch.scratch(uint64(4 * g.batch * queryBlock * (queryBlock + g.window)))

	selectName, selectCode := "select_plain", plainSelectShader
	selectBuffers := []gpuBuffer{scratch, out}
	if masked {
		selectName, selectCode = "select_masked", maskedSelectShader
		selectBuffers = append(selectBuffers, mask)
	}

	for l := 0; l < g.length; l += queryBlock {
		rows := min(queryBlock, g.length-l)
		keyStart := max(0, l-half)
		keyEnd := min(g.length, l-half+g.window+queryBlock)
		cols := keyEnd - keyStart

		p := g.params()
		//nolint:gosec // G115: bounded by the sequence length
		p.queryStart, p.keyStart, p.rows, p.cols = uint32(l), uint32(keyStart), uint32(rows), uint32(cols)

		//nolint:gosec // G115: tile counts fit in u32
		matmulGroups := [3]uint32{uint32((cols + tile - 1) / tile), uint32((rows + tile - 1) / tile), 1}
		batch.dispatchBatched("block_matmul", blockMatMulShader, p, 3, []gpuBuffer{a, b, scratch}, matmulGroups, g.batch)

		selectGroups, pitch := flatGroups(g.batch * rows * cols)
		p.pitch = pitch
		batch.dispatch(selectName, selectCode, p, 2, selectBuffers, selectGroups)
	}
	klog.V(5).Infof("webgpu: sliding dot recorded %d chunks", (g.length+queryBlock-1)/queryBlock)
}

// finish submits the batch, reads every output back into a new tensor and
// releases the batch's resources.
func (batch *commandBatch) finish(op string, outputs []gpuBuffer, shapes []tensor.Shape) []*tensor.RawTensor {
	defer batch.release()
	batch.submit()

	results := make([]*tensor.RawTensor, len(outputs))
	for i, buf := range outputs {
		data, err := batch.backend.readBuffer(buf)
		if err != nil {
			panic(fmt.Sprintf("webgpu: %s: %v", op, err))
		}
		result, err := tensor.NewRaw(shapes[i], tensor.Float32, tensor.WebGPU)
		if err != nil {
			panic(fmt.Sprintf("webgpu: %s: failed to create result tensor: %v", op, err))
		}
		copy(result.Data(), data)
		results[i] = result
	}
	return results
}

// LocalDotProduct computes banded attention scores of shape (N, H, L, C),
// -Inf where the key lies outside the sequence.
func (b *Backend) LocalDotProduct(q, k, mask, _ *tensor.RawTensor, window int) *tensor.RawTensor {
	g := geometryOf(q, window)
	klog.V(4).Infof("webgpu: local dot product batch=%d L=%d E=%d C=%d", g.batch, g.length, g.features, g.window)

	shape := bandShape(q.Shape(), window)
	batch := b.newBatch()
	scores := batch.upload(filledBytes(shape.NumElements(), float32(math.Inf(-1))))
	batch.recordSlidingDot(batch.upload(q.Data()), batch.upload(k.Data()), scores, batch.upload(mask.Data()), true, g)

	return batch.finish("LocalDotProduct", []gpuBuffer{scores}, []tensor.Shape{shape})[0]
}

// LocalDotBackward returns the gradients of LocalDotProduct with respect to
// q (weighted average of k) and k (increasing transpose-scatter of q).
func (b *Backend) LocalDotBackward(q, k, _, gradScores *tensor.RawTensor, window int) (gradQ, gradK *tensor.RawTensor) {
	g := geometryOf(q, window)
	klog.V(4).Infof("webgpu: local dot backward batch=%d L=%d E=%d C=%d", g.batch, g.length, g.features, g.window)

	batch := b.newBatch()
	grad := batch.upload(gradScores.Data())
	outQ := batch.upload(filledBytes(q.NumElements(), 0))
	outK := batch.upload(filledBytes(k.NumElements(), 0))

	batch.dispatchBatched("weighted_average", weightedAverageShader, g.params(), 3,
		[]gpuBuffer{grad, batch.upload(k.Data()), outQ}, g.tiledGroups(), g.batch)
	batch.dispatchBatched("scatter_increasing", increasingScatterShader, g.params(), 3,
		[]gpuBuffer{grad, batch.upload(q.Data()), outK}, g.tiledGroups(), g.batch)

	grads := batch.finish("LocalDotBackward", []gpuBuffer{outQ, outK}, []tensor.Shape{q.Shape(), k.Shape()})
	return grads[0], grads[1]
}

// LocalWeightedAverage computes out[l] = sum_k attn[l, k] * v[l-C/2+k].
func (b *Backend) LocalWeightedAverage(attn, v *tensor.RawTensor) *tensor.RawTensor {
	window := attn.Shape()[attn.Shape().Rank()-1]
	g := geometryOf(v, window)
	klog.V(4).Infof("webgpu: local weighted average batch=%d L=%d E=%d C=%d", g.batch, g.length, g.features, g.window)

	batch := b.newBatch()
	out := batch.upload(filledBytes(v.NumElements(), 0))
	batch.dispatchBatched("weighted_average", weightedAverageShader, g.params(), 3,
		[]gpuBuffer{batch.upload(attn.Data()), batch.upload(v.Data()), out}, g.tiledGroups(), g.batch)

	return batch.finish("LocalWeightedAverage", []gpuBuffer{out}, []tensor.Shape{v.Shape()})[0]
}

// LocalWeightedAverageBackward returns the gradients of LocalWeightedAverage
// with respect to attn (plain sliding dot of gradOut against v, zero fill)
// and v (reverse transpose-scatter of gradOut).
func (b *Backend) LocalWeightedAverageBackward(attn, v, gradOut *tensor.RawTensor) (gradAttn, gradV *tensor.RawTensor) {
	window := attn.Shape()[attn.Shape().Rank()-1]
	g := geometryOf(v, window)
	klog.V(4).Infof("webgpu: local weighted average backward batch=%d L=%d E=%d C=%d", g.batch, g.length, g.features, g.window)

	batch := b.newBatch()
	grad := batch.upload(gradOut.Data())
	values := batch.upload(v.Data())
	outAttn := batch.upload(filledBytes(attn.NumElements(), 0))
	outV := batch.upload(filledBytes(v.NumElements(), 0))

	batch.dispatchBatched("scatter_reverse", reverseScatterShader, g.params(), 3,
		[]gpuBuffer{batch.upload(attn.Data()), grad, outV}, g.tiledGroups(), g.batch)
	batch.recordSlidingDot(grad, values, outAttn, gpuBuffer{}, false, g)

	grads := batch.finish("LocalWeightedAverageBackward", []gpuBuffer{outAttn, outV}, []tensor.Shape{attn.Shape(), v.Shape()})
	return grads[0], grads[1]
}

// Add performs element-wise addition of two same-shaped float32 tensors.
func (b *Backend) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	if !a.Shape().Equal(c.Shape()) {
		panic(fmt.Sprintf("webgpu: add: shape mismatch %v vs %v", a.Shape(), c.Shape()))
	}
	if a.DType() != tensor.Float32 || c.DType() != tensor.Float32 {
		panic(fmt.Sprintf("webgpu: add: only float32 is supported, got %s and %s", a.DType(), c.DType()))
	}

	batch := b.newBatch()
	result := batch.upload(filledBytes(a.NumElements(), 0))
	groups, pitch := flatGroups(a.NumElements())
	//nolint:gosec // G115: element count fits in u32
	p := shaderParams{pitch: pitch, size: uint32(a.NumElements())}
	batch.dispatch("add", addShader, p, 3, []gpuBuffer{batch.upload(a.Data()), batch.upload(c.Data()), result}, groups)

	return batch.finish("Add", []gpuBuffer{result}, []tensor.Shape{a.Shape()})[0]
}
