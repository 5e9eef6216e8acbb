// Package reference computes the local attention operations the slow way: it
// expands banded tensors into dense (L, L) matrices and uses gonum dense
// products. It exists to check the blocked kernels, not to be fast.
package reference

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/localattn/internal/tensor"
)

// Dims describes a (batch*heads, length, features) problem with window C.
type Dims struct {
	Batch    int
	Length   int
	Features int
	Window   int
}

// DimsOf reads the dimensions of a (N, H, L, E) tensor.
func DimsOf(x *tensor.RawTensor, window int) Dims {
	flat := x.Shape().Flatten3D()
	return Dims{Batch: flat[0], Length: flat[1], Features: flat[2], Window: window}
}

// KeyOf returns the key position of band cell (l, k) and whether it lies
// inside the sequence.
func (d Dims) KeyOf(l, k int) (int, bool) {
	s := l - d.Window/2 + k
	return s, s >= 0 && s < d.Length
}

// sequence returns the dense (L, E) matrix of sequence n.
func (d Dims) sequence(x []float32, n int) *mat.Dense {
	m := mat.NewDense(d.Length, d.Features, nil)
	off := n * d.Length * d.Features
	for l := 0; l < d.Length; l++ {
		for e := 0; e < d.Features; e++ {
			m.Set(l, e, float64(x[off+l*d.Features+e]))
		}
	}
	return m
}

// unband expands the banded (L, C) slice of sequence n into a dense (L, L)
// matrix; cells outside the band or the sequence are zero.
func (d Dims) unband(band []float32, n int) *mat.Dense {
	m := mat.NewDense(d.Length, d.Length, nil)
	off := n * d.Length * d.Window
	for l := 0; l < d.Length; l++ {
		for k := 0; k < d.Window; k++ {
			if s, ok := d.KeyOf(l, k); ok {
				m.Set(l, s, float64(band[off+l*d.Window+k]))
			}
		}
	}
	return m
}

// store writes the dense (L, E) matrix m into sequence n of out.
func (d Dims) store(out []float32, n int, m *mat.Dense) {
	off := n * d.Length * d.Features
	for l := 0; l < d.Length; l++ {
		for e := 0; e < d.Features; e++ {
			out[off+l*d.Features+e] = float32(m.At(l, e))
		}
	}
}

// band writes the banded cells of the dense (L, L) matrix m into sequence n
// of out; cells whose key is outside the sequence get fill.
func (d Dims) band(out []float32, n int, m *mat.Dense, fill float32) {
	off := n * d.Length * d.Window
	for l := 0; l < d.Length; l++ {
		for k := 0; k < d.Window; k++ {
			v := fill
			if s, ok := d.KeyOf(l, k); ok {
				v = float32(m.At(l, s))
			}
			out[off+l*d.Window+k] = v
		}
	}
}

func newLike(shape tensor.Shape) *tensor.RawTensor {
	out, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		panic(fmt.Sprintf("reference: %v", err))
	}
	return out
}

func bandShape(shape tensor.Shape, window int) tensor.Shape {
	out := shape.Clone()
	out[len(out)-1] = window
	return out
}

// DenseScores returns the full (L, L) score matrix q[n] k[n]^T + mask of
// sequence n.
func DenseScores(q, k, mask *tensor.RawTensor, window, n int) *mat.Dense {
	d := DimsOf(q, window)
	var scores mat.Dense
	scores.Mul(d.sequence(q.AsFloat32(), n), d.sequence(k.AsFloat32(), n).T())
	if mask != nil {
		m := mask.AsFloat32()
		for l := 0; l < d.Length; l++ {
			for s := 0; s < d.Length; s++ {
				scores.Set(l, s, scores.At(l, s)+float64(m[l*d.Length+s]))
			}
		}
	}
	return &scores
}

// LocalDotProduct extracts the band of the dense scores; cells whose key is
// outside the sequence are -Inf.
func LocalDotProduct(q, k, mask *tensor.RawTensor, window int) *tensor.RawTensor {
	d := DimsOf(q, window)
	out := newLike(bandShape(q.Shape(), window))
	for n := 0; n < d.Batch; n++ {
		d.band(out.AsFloat32(), n, DenseScores(q, k, mask, window, n), float32(math.Inf(-1)))
	}
	return out
}

// LocalDotBackward returns gradQ = G K and gradK = G^T Q with G the
// unbanded gradScores.
func LocalDotBackward(q, k, gradScores *tensor.RawTensor, window int) (gradQ, gradK *tensor.RawTensor) {
	d := DimsOf(q, window)
	gradQ, gradK = newLike(q.Shape()), newLike(k.Shape())
	for n := 0; n < d.Batch; n++ {
		g := d.unband(gradScores.AsFloat32(), n)
		var gq, gk mat.Dense
		gq.Mul(g, d.sequence(k.AsFloat32(), n))
		gk.Mul(g.T(), d.sequence(q.AsFloat32(), n))
		d.store(gradQ.AsFloat32(), n, &gq)
		d.store(gradK.AsFloat32(), n, &gk)
	}
	return gradQ, gradK
}

// LocalWeightedAverage returns A V with A the unbanded attn.
func LocalWeightedAverage(attn, v *tensor.RawTensor) *tensor.RawTensor {
	window := attn.Shape()[attn.Shape().Rank()-1]
	d := DimsOf(v, window)
	out := newLike(v.Shape())
	for n := 0; n < d.Batch; n++ {
		var o mat.Dense
		o.Mul(d.unband(attn.AsFloat32(), n), d.sequence(v.AsFloat32(), n))
		d.store(out.AsFloat32(), n, &o)
	}
	return out
}

// LocalWeightedAverageBackward returns gradAttn = band(G V^T) with zero fill
// and gradV = A^T G.
func LocalWeightedAverageBackward(attn, v, gradOut *tensor.RawTensor) (gradAttn, gradV *tensor.RawTensor) {
	window := attn.Shape()[attn.Shape().Rank()-1]
	d := DimsOf(v, window)
	gradAttn, gradV = newLike(attn.Shape()), newLike(v.Shape())
	for n := 0; n < d.Batch; n++ {
		g := d.sequence(gradOut.AsFloat32(), n)
		var ga, gv mat.Dense
		ga.Mul(g, d.sequence(v.AsFloat32(), n).T())
		gv.Mul(d.unband(attn.AsFloat32(), n).T(), g)
		d.band(gradAttn.AsFloat32(), n, &ga, 0)
		d.store(gradV.AsFloat32(), n, &gv)
	}
	return gradAttn, gradV
}
