package cpu

import (
	"fmt"

	"github.com/born-ml/localattn/internal/tensor"
)

const (
	// defaultQueryBlock is the number of query rows per sliding dot-product
	// iteration (the dense sub-block height).
	defaultQueryBlock = 64

	// Tile sides of the weighted-average and transpose-scatter grids.
	// A thread (i, j) of a block loads the window-chunk column j of the
	// factors tile, so tileK must equal tileE and must not exceed tileL.
	tileL = 32
	tileE = 32
	tileK = 32

	// selectThreads is the block size of the flat band-selection launch.
	selectThreads = 256
)

// bandGeometry describes one banded call once (N, H) is folded into a single
// batch dimension.
type bandGeometry struct {
	batch    int // N*H
	length   int // L
	features int // E
	window   int // C
}

// geometryOf derives the geometry from a (N, H, L, E) tensor and the window.
func geometryOf(x *tensor.RawTensor, window int) bandGeometry {
	flat := x.Shape().Flatten3D()
	if window <= 0 || window%2 != 0 || window > flat[1] {
		panic(fmt.Sprintf("local attention: window %d must be even and in (0, %d]", window, flat[1]))
	}
	return bandGeometry{
		batch:    flat[0],
		length:   flat[1],
		features: flat[2],
		window:   window,
	}
}

func (g bandGeometry) half() int {
	return g.window / 2
}

// bandShape returns (N, H, L, C) for a (N, H, L, E) shape.
func bandShape(shape tensor.Shape, window int) tensor.Shape {
	out := shape.Clone()
	out[len(out)-1] = window
	return out
}

// valueAt reads x[n, row, e] of a (batch, L, E) tensor, returning 0 outside
// the sequence or the feature range.
func (g bandGeometry) valueAt(x []float32, n, row, e int) float32 {
	if row < 0 || row >= g.length || e >= g.features {
		return 0
	}
	return x[(n*g.length+row)*g.features+e]
}

// factorAt reads f[n, row, k] of a (batch, L, C) banded tensor, returning 0
// outside the sequence or the window.
func (g bandGeometry) factorAt(f []float32, n, row, k int) float32 {
	if row < 0 || row >= g.length || k < 0 || k >= g.window {
		return 0
	}
	return f[(n*g.length+row)*g.window+k]
}

// tileStrides decomposes a flat block index of a tiled launch into
// (batch, length-tile, feature-tile) coordinates.
type tileStrides struct {
	lengthTiles  int
	featureTiles int
}

func newTileStrides(g bandGeometry) tileStrides {
	return tileStrides{
		lengthTiles:  (g.length + tileL - 1) / tileL,
		featureTiles: (g.features + tileE - 1) / tileE,
	}
}

// blocks returns the grid size for batch sequences.
func (ts tileStrides) blocks(batch int) int {
	return batch * ts.lengthTiles * ts.featureTiles
}

// decompose maps a flat block index to its coordinates.
func (ts tileStrides) decompose(block int) (n, lengthTile, featureTile int) {
	perBatch := ts.lengthTiles * ts.featureTiles
	n = block / perBatch
	rem := block % perBatch
	return n, rem / ts.featureTiles, rem % ts.featureTiles
}
