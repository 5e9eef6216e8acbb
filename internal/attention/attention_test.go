package attention_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/localattn/internal/attention"
	"github.com/born-ml/localattn/internal/backend/cpu"
	"github.com/born-ml/localattn/internal/reference"
	"github.com/born-ml/localattn/internal/tensor"
)

var _ attention.Backend = (*cpu.CPUBackend)(nil)

func seq(seed int64) *tensor.RawTensor {
	return reference.Random(tensor.Shape{2, 3, 10, 4}, seed)
}

func TestLocalDotProduct_Valid(t *testing.T) {
	b := cpu.New()
	q, k := seq(1), seq(2)
	mask := reference.Random(tensor.Shape{10, 10}, 3)

	perHead, err := tensor.FromInt64([]int64{10, 10, 10, 9, 9, 9}, tensor.Shape{2, 3}, tensor.CPU)
	require.NoError(t, err)

	for name, lengths := range map[string]*tensor.RawTensor{
		"per sequence": reference.KeyLengths(2, 10),
		"per head":     perHead,
	} {
		t.Run(name, func(t *testing.T) {
			scores, err := attention.LocalDotProduct(b, q, k, mask, lengths, 4)
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{2, 3, 10, 4}, scores.Shape())

			want := reference.LocalDotProduct(q, k, mask, 4)
			assert.Less(t, reference.MaxRelError(scores.AsFloat32(), want.AsFloat32()), 1e-5)
		})
	}
}

func TestLocalDotProduct_Contract(t *testing.T) {
	b := cpu.New()
	q, k := seq(1), seq(2)
	mask := reference.Random(tensor.Shape{10, 10}, 3)
	lengths := reference.KeyLengths(2, 10)
	int32Lengths, err := tensor.NewRaw(tensor.Shape{2}, tensor.Int32, tensor.CPU)
	require.NoError(t, err)
	int64Q, err := tensor.NewRaw(tensor.Shape{2, 3, 10, 4}, tensor.Int64, tensor.CPU)
	require.NoError(t, err)

	tests := []struct {
		name       string
		q, k, mask *tensor.RawTensor
		lengths    *tensor.RawTensor
		window     int
		want       error
	}{
		{"odd window", q, k, mask, lengths, 3, attention.ErrInvalidWindow},
		{"zero window", q, k, mask, lengths, 0, attention.ErrInvalidWindow},
		{"window longer than sequence", q, k, mask, lengths, 12, attention.ErrInvalidWindow},
		{"rank 3 q", reference.Random(tensor.Shape{6, 10, 4}, 4), k, mask, lengths, 4, tensor.ErrShapeMismatch},
		{"k features differ", q, reference.Random(tensor.Shape{2, 3, 10, 5}, 5), mask, lengths, 4, tensor.ErrShapeMismatch},
		{"mask not L x L", q, k, reference.Random(tensor.Shape{10, 9}, 6), lengths, 4, tensor.ErrShapeMismatch},
		{"lengths wrong batch", q, k, mask, reference.KeyLengths(3, 10), 4, tensor.ErrShapeMismatch},
		{"lengths nil", q, k, mask, nil, 4, tensor.ErrShapeMismatch},
		{"lengths int32", q, k, mask, int32Lengths, 4, tensor.ErrTypeMismatch},
		{"q int64", int64Q, k, mask, lengths, 4, tensor.ErrTypeMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			scores, err := attention.LocalDotProduct(b, tc.q, tc.k, tc.mask, tc.lengths, tc.window)
			require.Error(t, err)
			assert.Nil(t, scores)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestLocalDotBackward_Contract(t *testing.T) {
	b := cpu.New()
	q, k := seq(1), seq(2)
	lengths := reference.KeyLengths(2, 10)

	grad := reference.Random(tensor.Shape{2, 3, 10, 4}, 7)
	gq, gk, err := attention.LocalDotBackward(b, q, k, lengths, grad, 4)
	require.NoError(t, err)
	assert.Equal(t, q.Shape(), gq.Shape())
	assert.Equal(t, k.Shape(), gk.Shape())

	_, _, err = attention.LocalDotBackward(b, q, k, lengths, grad, 6)
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch), "gradScores window differs: %v", err)
}

func TestLocalWeightedAverage_Contract(t *testing.T) {
	b := cpu.New()
	v := seq(8)

	out, err := attention.LocalWeightedAverage(b, reference.Random(tensor.Shape{2, 3, 10, 6}, 9), v)
	require.NoError(t, err)
	assert.Equal(t, v.Shape(), out.Shape())

	_, err = attention.LocalWeightedAverage(b, reference.Random(tensor.Shape{2, 3, 10, 5}, 9), v)
	assert.True(t, errors.Is(err, attention.ErrInvalidWindow), "odd window: %v", err)

	_, err = attention.LocalWeightedAverage(b, reference.Random(tensor.Shape{2, 3, 9, 6}, 9), v)
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch), "length differs: %v", err)

	attn := reference.Random(tensor.Shape{2, 3, 10, 6}, 10)
	_, _, err = attention.LocalWeightedAverageBackward(b, attn, v, reference.Random(tensor.Shape{2, 3, 10, 3}, 11))
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch), "gradOut features differ: %v", err)

	gradAttn, gradV, err := attention.LocalWeightedAverageBackward(b, attn, v, seq(12))
	require.NoError(t, err)
	assert.Equal(t, attn.Shape(), gradAttn.Shape())
	assert.Equal(t, v.Shape(), gradV.Shape())
}
