package reference

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/localattn/internal/tensor"
)

func TestLocalDotProduct_BandCells(t *testing.T) {
	q := Random(tensor.Shape{1, 2, 6, 3}, 1)
	k := Random(tensor.Shape{1, 2, 6, 3}, 2)
	mask := Random(tensor.Shape{6, 6}, 3)
	const window = 4

	scores := LocalDotProduct(q, k, mask, window)
	require.Equal(t, tensor.Shape{1, 2, 6, window}, scores.Shape())

	d := DimsOf(q, window)
	qd, kd, md, sd := q.AsFloat32(), k.AsFloat32(), mask.AsFloat32(), scores.AsFloat32()
	for n := 0; n < d.Batch; n++ {
		for l := 0; l < d.Length; l++ {
			for c := 0; c < window; c++ {
				got := sd[(n*d.Length+l)*window+c]
				s, ok := d.KeyOf(l, c)
				if !ok {
					assert.True(t, math.IsInf(float64(got), -1))
					continue
				}
				var want float64
				for e := 0; e < d.Features; e++ {
					want += float64(qd[(n*d.Length+l)*d.Features+e]) * float64(kd[(n*d.Length+s)*d.Features+e])
				}
				want += float64(md[l*d.Length+s])
				assert.InDelta(t, want, got, 1e-5)
			}
		}
	}
}

func TestNumericalGradient_Linear(t *testing.T) {
	x := []float32{1, 2, 3}
	w := []float32{0.5, -1, 2}
	grad := NumericalGradient(func() float64 { return Dot(x, w) }, x, 0.25)

	for i := range w {
		assert.InDelta(t, float64(w[i]), grad[i], 1e-6)
	}
	assert.Equal(t, []float32{1, 2, 3}, x, "inputs restored")
}

func TestMaxRelError(t *testing.T) {
	inf := float32(math.Inf(-1))
	assert.Zero(t, MaxRelError([]float32{1, inf}, []float32{1, inf}))
	assert.True(t, math.IsInf(MaxRelError([]float32{1, 0}, []float32{1, inf}), 1))
	assert.InDelta(t, 0.5, MaxRelError([]float32{3}, []float32{2}), 1e-9)
	assert.InDelta(t, 0.25, MaxRelError([]float32{0.25}, []float32{0}), 1e-9)
	assert.True(t, math.IsInf(MaxRelError([]float32{1}, []float32{1, 2}), 1))
}

func TestDot_SkipsInfinities(t *testing.T) {
	a := []float32{1, float32(math.Inf(-1)), 2}
	w := []float32{1, 0, 3}
	assert.InDelta(t, 7.0, Dot(a, w), 1e-9)
}
