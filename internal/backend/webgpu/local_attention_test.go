//go:build windows

package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/localattn/internal/reference"
	"github.com/born-ml/localattn/internal/tensor"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}
	b, err := New()
	require.NoError(t, err)
	t.Cleanup(b.Release)
	return b
}

var gpuProblems = []struct {
	name                             string
	batch, heads, length, feats, win int
}{
	{"tiny", 1, 1, 16, 4, 4},
	{"boundary", 1, 1, 5, 3, 2},
	{"tile remainders", 2, 1, 40, 19, 6},
	{"multi block", 1, 2, 150, 8, 20},
	{"wide window", 1, 1, 97, 17, 36},
}

func TestLocalDotProduct_MatchesDense(t *testing.T) {
	b := newBackend(t)
	for _, p := range gpuProblems {
		t.Run(p.name, func(t *testing.T) {
			shape := tensor.Shape{p.batch, p.heads, p.length, p.feats}
			q, k := reference.Random(shape, 1), reference.Random(shape, 2)
			mask := reference.Random(tensor.Shape{p.length, p.length}, 3)

			got := b.LocalDotProduct(q, k, mask, reference.KeyLengths(p.batch, p.length), p.win)
			want := reference.LocalDotProduct(q, k, mask, p.win)
			assert.Less(t, reference.MaxRelError(got.AsFloat32(), want.AsFloat32()), 1e-4)
		})
	}
}

func TestLocalDotBackward_MatchesDense(t *testing.T) {
	b := newBackend(t)
	for _, p := range gpuProblems {
		t.Run(p.name, func(t *testing.T) {
			shape := tensor.Shape{p.batch, p.heads, p.length, p.feats}
			q, k := reference.Random(shape, 4), reference.Random(shape, 5)
			grad := reference.Random(bandShape(shape, p.win), 6)

			gotQ, gotK := b.LocalDotBackward(q, k, reference.KeyLengths(p.batch, p.length), grad, p.win)
			wantQ, wantK := reference.LocalDotBackward(q, k, grad, p.win)
			assert.Less(t, reference.MaxRelError(gotQ.AsFloat32(), wantQ.AsFloat32()), 1e-4)
			assert.Less(t, reference.MaxRelError(gotK.AsFloat32(), wantK.AsFloat32()), 1e-4)
		})
	}
}

func TestLocalWeightedAverage_MatchesDense(t *testing.T) {
	b := newBackend(t)
	for _, p := range gpuProblems {
		t.Run(p.name, func(t *testing.T) {
			shape := tensor.Shape{p.batch, p.heads, p.length, p.feats}
			attn, v := reference.Random(bandShape(shape, p.win), 7), reference.Random(shape, 8)
			gradOut := reference.Random(shape, 9)

			got := b.LocalWeightedAverage(attn, v)
			want := reference.LocalWeightedAverage(attn, v)
			assert.Less(t, reference.MaxRelError(got.AsFloat32(), want.AsFloat32()), 1e-4)

			gotA, gotV := b.LocalWeightedAverageBackward(attn, v, gradOut)
			wantA, wantV := reference.LocalWeightedAverageBackward(attn, v, gradOut)
			assert.Less(t, reference.MaxRelError(gotA.AsFloat32(), wantA.AsFloat32()), 1e-4)
			assert.Less(t, reference.MaxRelError(gotV.AsFloat32(), wantV.AsFloat32()), 1e-4)
		})
	}
}

func TestAdd(t *testing.T) {
	b := newBackend(t)
	a, err := tensor.FromFloat32([]float32{1, 2, 3}, tensor.Shape{3}, tensor.CPU)
	require.NoError(t, err)
	c, err := tensor.FromFloat32([]float32{4, 5, 6}, tensor.Shape{3}, tensor.CPU)
	require.NoError(t, err)

	sum := b.Add(a, c)
	assert.Equal(t, []float32{5, 7, 9}, sum.AsFloat32())
	assert.Equal(t, tensor.WebGPU, sum.Device())
}
