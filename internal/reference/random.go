package reference

import (
	"math/rand"

	"github.com/born-ml/localattn/internal/tensor"
)

// Random returns a float32 tensor filled with uniform values in [-1, 1)
// drawn from a deterministic source.
func Random(shape tensor.Shape, seed int64) *tensor.RawTensor {
	out := newLike(shape)
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // test data
	data := out.AsFloat32()
	for i := range data {
		data[i] = rng.Float32()*2 - 1
	}
	return out
}

// KeyLengths returns an int64 (N) tensor with every length set to length.
func KeyLengths(batch, length int) *tensor.RawTensor {
	out, err := tensor.NewRaw(tensor.Shape{batch}, tensor.Int64, tensor.CPU)
	if err != nil {
		panic(err)
	}
	for i := range out.AsInt64() {
		out.AsInt64()[i] = int64(length)
	}
	return out
}
