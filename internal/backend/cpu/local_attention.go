package cpu

import (
	"math"

	"k8s.io/klog/v2"

	"github.com/born-ml/localattn/internal/parallel"
	"github.com/born-ml/localattn/internal/tensor"
)

// negInf fills band cells of raw scores whose key lies outside the sequence,
// so a downstream softmax gives them zero probability.
var negInf = float32(math.Inf(-1))

// LocalDotProduct computes banded attention scores.
//
//	scores[n, h, l, k] = q[n, h, l] . k[n, h, s] + mask[l, s],  s = l - C/2 + k
//
// Cells whose key s falls outside [0, L) are -Inf.
//
// Parameters:
//   - q, k: float32 (N, H, L, E)
//   - mask: float32 (L, L) additive mask in unbanded index space
//   - keyLengths: int64 (N) or (N, H); padding is expressed through mask and
//     the lengths are not read by the banding arithmetic
//   - window: even band width C with C <= L
//
// Returns float32 scores of shape (N, H, L, C).
func (cpu *CPUBackend) LocalDotProduct(q, k, mask, keyLengths *tensor.RawTensor, window int) *tensor.RawTensor {
	g := geometryOf(q, window)
	klog.V(4).Infof("cpu: local dot product batch=%d L=%d E=%d C=%d", g.batch, g.length, g.features, g.window)

	scores := cpu.filled("LocalDotProduct", bandShape(q.Shape(), window), negInf)

	stream := parallel.NewStream(cpu.par)
	defer stream.Close()

	policy := maskedCopy{mask: mask.AsFloat32(), length: g.length}
	slidingDot(stream, q.AsFloat32(), k.AsFloat32(), scores.AsFloat32(), g, policy, cpu.queryBlock)
	return scores
}

// LocalDotBackward returns the gradients of LocalDotProduct with respect to
// q and k given gradScores of shape (N, H, L, C).
//
//	gradQ[l] = sum_k gradScores[l, k] * k[l-C/2+k]        (tiled weighted average)
//	gradK[s] = sum_l gradScores[l, s-l+C/2] * q[l]        (transpose-scatter, increasing)
func (cpu *CPUBackend) LocalDotBackward(q, k, keyLengths, gradScores *tensor.RawTensor, window int) (gradQ, gradK *tensor.RawTensor) {
	g := geometryOf(q, window)
	klog.V(4).Infof("cpu: local dot backward batch=%d L=%d E=%d C=%d", g.batch, g.length, g.features, g.window)

	gradQ = cpu.zeros("LocalDotBackward", q.Shape())
	gradK = cpu.zeros("LocalDotBackward", k.Shape())

	stream := parallel.NewStream(cpu.par)
	defer stream.Close()

	grad := gradScores.AsFloat32()
	weightedAverage(stream, grad, k.AsFloat32(), gradQ.AsFloat32(), g)
	transposeScatter(stream, grad, q.AsFloat32(), gradK.AsFloat32(), g, increasingIndex{})
	stream.Synchronize()
	return gradQ, gradK
}

// LocalWeightedAverage computes, for every position, the window-weighted sum
// of values.
//
//	out[n, h, l, e] = sum_k attn[n, h, l, k] * v[n, h, l-C/2+k, e]
//
// The window C is the last dimension of attn; keys outside the sequence
// contribute nothing.
func (cpu *CPUBackend) LocalWeightedAverage(attn, v *tensor.RawTensor) *tensor.RawTensor {
	window := attn.Shape()[attn.Shape().Rank()-1]
	g := geometryOf(v, window)
	klog.V(4).Infof("cpu: local weighted average batch=%d L=%d E=%d C=%d", g.batch, g.length, g.features, g.window)

	out := cpu.zeros("LocalWeightedAverage", v.Shape())

	stream := parallel.NewStream(cpu.par)
	defer stream.Close()

	weightedAverage(stream, attn.AsFloat32(), v.AsFloat32(), out.AsFloat32(), g)
	stream.Synchronize()
	return out
}

// LocalWeightedAverageBackward returns the gradients of LocalWeightedAverage
// with respect to attn and v given gradOut of shape (N, H, L, E).
//
//	gradAttn[l, k] = gradOut[l] . v[l-C/2+k]       (sliding dot, plain copy, 0 fill)
//	gradV[s]       = sum_l attn[l, s-l+C/2] * gradOut[l]  (transpose-scatter, reverse)
func (cpu *CPUBackend) LocalWeightedAverageBackward(attn, v, gradOut *tensor.RawTensor) (gradAttn, gradV *tensor.RawTensor) {
	window := attn.Shape()[attn.Shape().Rank()-1]
	g := geometryOf(v, window)
	klog.V(4).Infof("cpu: local weighted average backward batch=%d L=%d E=%d C=%d", g.batch, g.length, g.features, g.window)

	gradAttn = cpu.zeros("LocalWeightedAverageBackward", attn.Shape())
	gradV = cpu.zeros("LocalWeightedAverageBackward", v.Shape())

	stream := parallel.NewStream(cpu.par)
	defer stream.Close()

	grad := gradOut.AsFloat32()
	transposeScatter(stream, attn.AsFloat32(), grad, gradV.AsFloat32(), g, reverseIndex{})
	slidingDot(stream, grad, v.AsFloat32(), gradAttn.AsFloat32(), g, plainCopy{}, cpu.queryBlock)
	return gradAttn, gradV
}
