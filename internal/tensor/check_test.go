package tensor

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDims(t *testing.T) {
	tests := []struct {
		name    string
		shape   Shape
		dims    []int
		wantErr bool
	}{
		{"exact", Shape{2, 3, 4}, []int{2, 3, 4}, false},
		{"wildcard", Shape{2, 3, 4}, []int{-1, 3, -1}, false},
		{"rank", Shape{2, 3}, []int{2, 3, 1}, true},
		{"axis", Shape{2, 3, 4}, []int{2, 5, 4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.shape.CheckDims(tt.dims...)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrShapeMismatch))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRawTensorCheck(t *testing.T) {
	f32, err := NewRaw(Shape{2, 4}, Float32, CPU)
	require.NoError(t, err)
	i64, err := NewRaw(Shape{2}, Int64, CPU)
	require.NoError(t, err)

	assert.NoError(t, f32.Check(Float32, 2, 4))
	assert.NoError(t, i64.Check(Int64, -1))
	assert.True(t, errors.Is(f32.Check(Int64, 2, 4), ErrTypeMismatch))
	assert.True(t, errors.Is(f32.Check(Float32, 4, 2), ErrShapeMismatch))

	var missing *RawTensor
	assert.True(t, errors.Is(missing.Check(Float32, 1), ErrShapeMismatch))
}

func TestFlatten3D(t *testing.T) {
	assert.Equal(t, Shape{6, 5, 4}, Shape{2, 3, 5, 4}.Flatten3D())
	assert.Equal(t, Shape{1, 5, 4}, Shape{5, 4}.Flatten3D())
	assert.Panics(t, func() { Shape{4}.Flatten3D() })
}
