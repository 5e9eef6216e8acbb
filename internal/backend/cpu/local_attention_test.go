package cpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/localattn/internal/config"
	"github.com/born-ml/localattn/internal/reference"
	"github.com/born-ml/localattn/internal/tensor"
)

type problem struct {
	name                        string
	batch, heads, length, feats int
	window                      int
}

// problems covers a single tile, remainders in every tiled dimension, more
// than one query block and more than one window chunk.
var problems = []problem{
	{"tiny", 1, 1, 16, 4, 4},
	{"boundary", 1, 1, 5, 3, 2},
	{"window equals length", 1, 2, 8, 5, 8},
	{"feature remainder", 2, 1, 40, 37, 6},
	{"multi block", 1, 2, 150, 8, 20},
	{"multi chunk", 1, 1, 97, 33, 70},
}

func (p problem) shape() tensor.Shape {
	return tensor.Shape{p.batch, p.heads, p.length, p.feats}
}

func (p problem) bandShape() tensor.Shape {
	return tensor.Shape{p.batch, p.heads, p.length, p.window}
}

func backends() map[string]*CPUBackend {
	seq := config.Default()
	seq.Sequential = true
	seq.QueryBlock = 7
	return map[string]*CPUBackend{
		"default":           New(),
		"sequential block7": NewWithConfig(seq),
	}
}

func TestLocalDotProduct_MatchesDense(t *testing.T) {
	for name, b := range backends() {
		for _, p := range problems {
			t.Run(name+"/"+p.name, func(t *testing.T) {
				q := reference.Random(p.shape(), 1)
				k := reference.Random(p.shape(), 2)
				mask := reference.Random(tensor.Shape{p.length, p.length}, 3)

				got := b.LocalDotProduct(q, k, mask, reference.KeyLengths(p.batch, p.length), p.window)
				want := reference.LocalDotProduct(q, k, mask, p.window)

				require.Equal(t, p.bandShape(), got.Shape())
				assert.Less(t, reference.MaxRelError(got.AsFloat32(), want.AsFloat32()), 1e-4)
			})
		}
	}
}

func TestLocalDotBackward_MatchesDense(t *testing.T) {
	b := New()
	for _, p := range problems {
		t.Run(p.name, func(t *testing.T) {
			q := reference.Random(p.shape(), 4)
			k := reference.Random(p.shape(), 5)
			grad := reference.Random(p.bandShape(), 6)

			gotQ, gotK := b.LocalDotBackward(q, k, reference.KeyLengths(p.batch, p.length), grad, p.window)
			wantQ, wantK := reference.LocalDotBackward(q, k, grad, p.window)

			assert.Less(t, reference.MaxRelError(gotQ.AsFloat32(), wantQ.AsFloat32()), 1e-4)
			assert.Less(t, reference.MaxRelError(gotK.AsFloat32(), wantK.AsFloat32()), 1e-4)
		})
	}
}

func TestLocalWeightedAverage_MatchesDense(t *testing.T) {
	for name, b := range backends() {
		for _, p := range problems {
			t.Run(name+"/"+p.name, func(t *testing.T) {
				attn := reference.Random(p.bandShape(), 7)
				v := reference.Random(p.shape(), 8)

				got := b.LocalWeightedAverage(attn, v)
				want := reference.LocalWeightedAverage(attn, v)

				require.Equal(t, p.shape(), got.Shape())
				assert.Less(t, reference.MaxRelError(got.AsFloat32(), want.AsFloat32()), 1e-4)
			})
		}
	}
}

func TestLocalWeightedAverageBackward_MatchesDense(t *testing.T) {
	b := New()
	for _, p := range problems {
		t.Run(p.name, func(t *testing.T) {
			attn := reference.Random(p.bandShape(), 9)
			v := reference.Random(p.shape(), 10)
			gradOut := reference.Random(p.shape(), 11)

			gotA, gotV := b.LocalWeightedAverageBackward(attn, v, gradOut)
			wantA, wantV := reference.LocalWeightedAverageBackward(attn, v, gradOut)

			assert.Less(t, reference.MaxRelError(gotA.AsFloat32(), wantA.AsFloat32()), 1e-4)
			assert.Less(t, reference.MaxRelError(gotV.AsFloat32(), wantV.AsFloat32()), 1e-4)
		})
	}
}

func TestLocalDotProduct_Boundary(t *testing.T) {
	// L=5, C=2: query 0 sees key -1 (absent) and key 0.
	b := New()
	q, err := tensor.FromFloat32([]float32{1, 2, 3, 4, 5}, tensor.Shape{1, 1, 5, 1}, tensor.CPU)
	require.NoError(t, err)
	k, err := tensor.FromFloat32([]float32{10, 20, 30, 40, 50}, tensor.Shape{1, 1, 5, 1}, tensor.CPU)
	require.NoError(t, err)
	mask, err := tensor.NewRaw(tensor.Shape{5, 5}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	mask.AsFloat32()[0] = 0.5 // mask[0, 0]

	scores := b.LocalDotProduct(q, k, mask, reference.KeyLengths(1, 5), 2).AsFloat32()

	assert.True(t, math.IsInf(float64(scores[0]), -1), "key -1 is -Inf")
	assert.Equal(t, float32(1*10+0.5), scores[1])
	assert.Equal(t, float32(2*10), scores[2]) // query 1, key 0
	assert.Equal(t, float32(2*20), scores[3]) // query 1, key 1
	assert.Equal(t, float32(5*40), scores[8]) // query 4, key 3

	attn, err := tensor.FromFloat32([]float32{7, 1, 0, 0, 0, 0, 0, 0, 0, 0}, tensor.Shape{1, 1, 5, 2}, tensor.CPU)
	require.NoError(t, err)
	avg := b.LocalWeightedAverage(attn, k).AsFloat32()
	assert.Equal(t, float32(10), avg[0], "weight on key -1 is dropped")
}

func TestLocalDotProduct_Deterministic(t *testing.T) {
	b := New()
	p := problems[4]
	q := reference.Random(p.shape(), 12)
	k := reference.Random(p.shape(), 13)
	mask := reference.Random(tensor.Shape{p.length, p.length}, 14)
	lengths := reference.KeyLengths(p.batch, p.length)

	first := b.LocalDotProduct(q, k, mask, lengths, p.window).AsFloat32()
	second := b.LocalDotProduct(q, k, mask, lengths, p.window).AsFloat32()
	assert.Equal(t, first, second)

	gq1, gk1 := b.LocalDotBackward(q, k, lengths, reference.Random(p.bandShape(), 15), p.window)
	gq2, gk2 := b.LocalDotBackward(q, k, lengths, reference.Random(p.bandShape(), 15), p.window)
	assert.Equal(t, gq1.AsFloat32(), gq2.AsFloat32())
	assert.Equal(t, gk1.AsFloat32(), gk2.AsFloat32())
}

func TestLocalWeightedAverage_Deterministic(t *testing.T) {
	b := New()
	for _, p := range []problem{problems[4], problems[5]} {
		attn := reference.Random(p.bandShape(), 30)
		v := reference.Random(p.shape(), 31)
		gradOut := reference.Random(p.shape(), 32)

		first := b.LocalWeightedAverage(attn, v).AsFloat32()
		second := b.LocalWeightedAverage(attn, v).AsFloat32()
		assert.Equal(t, first, second, p.name)

		ga1, gv1 := b.LocalWeightedAverageBackward(attn, v, gradOut)
		ga2, gv2 := b.LocalWeightedAverageBackward(attn, v, gradOut)
		assert.Equal(t, ga1.AsFloat32(), ga2.AsFloat32(), p.name)
		assert.Equal(t, gv1.AsFloat32(), gv2.AsFloat32(), p.name)
	}
}

func TestLocalDotBackward_FiniteDifference(t *testing.T) {
	b := New()
	p := problem{"fd", 1, 2, 10, 3, 4}
	q := reference.Random(p.shape(), 16)
	k := reference.Random(p.shape(), 17)
	mask := reference.Random(tensor.Shape{p.length, p.length}, 18)
	grad := reference.Random(p.bandShape(), 19)
	lengths := reference.KeyLengths(p.batch, p.length)

	loss := func() float64 {
		return reference.Dot(b.LocalDotProduct(q, k, mask, lengths, p.window).AsFloat32(), grad.AsFloat32())
	}
	gotQ, gotK := b.LocalDotBackward(q, k, lengths, grad, p.window)

	numQ := reference.NumericalGradient(loss, q.AsFloat32(), 0.5)
	numK := reference.NumericalGradient(loss, k.AsFloat32(), 0.5)
	assert.Less(t, reference.MaxRelError64(gotQ.AsFloat32(), numQ), 1e-3)
	assert.Less(t, reference.MaxRelError64(gotK.AsFloat32(), numK), 1e-3)
}

func TestLocalWeightedAverageBackward_FiniteDifference(t *testing.T) {
	b := New()
	p := problem{"fd", 1, 2, 9, 3, 4}
	attn := reference.Random(p.bandShape(), 20)
	v := reference.Random(p.shape(), 21)
	grad := reference.Random(p.shape(), 22)

	loss := func() float64 {
		return reference.Dot(b.LocalWeightedAverage(attn, v).AsFloat32(), grad.AsFloat32())
	}
	gotA, gotV := b.LocalWeightedAverageBackward(attn, v, grad)

	numA := reference.NumericalGradient(loss, attn.AsFloat32(), 0.5)
	numV := reference.NumericalGradient(loss, v.AsFloat32(), 0.5)
	assert.Less(t, reference.MaxRelError64(gotA.AsFloat32(), numA), 1e-3)
	assert.Less(t, reference.MaxRelError64(gotV.AsFloat32(), numV), 1e-3)
}

func TestLocalWeightedAverageBackward_UnitGradient(t *testing.T) {
	b := New()
	p := problem{"unit", 1, 1, 5, 3, 2}
	attn := reference.Random(p.bandShape(), 23)
	v := reference.Random(p.shape(), 24)
	ones, err := tensor.NewRaw(p.shape(), tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	ones.FillFloat32(1)

	_ = b.LocalWeightedAverage(attn, v)
	gradAttn, _ := b.LocalWeightedAverageBackward(attn, v, ones)

	d := reference.DimsOf(v, p.window)
	vd, ga := v.AsFloat32(), gradAttn.AsFloat32()
	for l := 0; l < p.length; l++ {
		for c := 0; c < p.window; c++ {
			got := ga[l*p.window+c]
			s, ok := d.KeyOf(l, c)
			if !ok {
				assert.Zero(t, got, "l=%d k=%d", l, c)
				continue
			}
			var want float32
			for e := 0; e < p.feats; e++ {
				want += vd[s*p.feats+e]
			}
			assert.InDelta(t, want, got, 1e-5, "l=%d k=%d", l, c)
		}
	}
}

func TestAdd(t *testing.T) {
	b := New()
	a, err := tensor.FromFloat32([]float32{1, 2, 3}, tensor.Shape{3}, tensor.CPU)
	require.NoError(t, err)
	c, err := tensor.FromFloat32([]float32{10, 20, 30}, tensor.Shape{3}, tensor.CPU)
	require.NoError(t, err)

	shared := a.Clone()
	sum := b.Add(a, c)
	assert.Equal(t, []float32{11, 22, 33}, sum.AsFloat32())
	assert.Equal(t, []float32{1, 2, 3}, shared.AsFloat32(), "shared buffer untouched")

	shared.Release()
	inplace := b.Add(a, c)
	assert.Same(t, a, inplace)
	assert.Equal(t, []float32{11, 22, 33}, a.AsFloat32())

	assert.Panics(t, func() { b.Add(a, sum.View(tensor.Shape{1, 3})) })
}
