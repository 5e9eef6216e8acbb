package cpu

import (
	"github.com/born-ml/localattn/internal/parallel"
)

// averageTiles is the block-shared scratch of the weighted-average kernel.
// values holds two adjacent tiles of value rows because the keys of one
// window chunk extend up to tileL rows past the block's length tile.
type averageTiles struct {
	factors [tileL][tileK]float32
	values  [2 * tileL][tileE]float32
	acc     [tileL][tileE]float32
}

// weightedAverage accumulates
//
//	out[n, l, e] += sum_k factors[n, l, k] * values[n, l-C/2+k, e]
//
// with one block per (n, length tile, feature tile) and one thread per
// (local l, local e). The window is reduced in chunks of tileK; each chunk is
// a load phase filling the shared tiles (zero-padded outside the sequence,
// the window and the features) followed by a compute phase reading only the
// shared tiles. The end of each phase loop is the block barrier.
func weightedAverage(stream *parallel.Stream, factors, values, out []float32, g bandGeometry) {
	ts := newTileStrides(g)
	half := g.half()

	stream.Launch(ts.blocks(g.batch), func(block int) {
		n, lt, et := ts.decompose(block)
		l0, e0 := lt*tileL, et*tileE
		sh := new(averageTiles)

		for k0 := 0; k0 < g.window; k0 += tileK {
			base := l0 - half + k0

			for i := 0; i < tileL; i++ {
				for j := 0; j < tileE; j++ {
					sh.factors[i][j] = g.factorAt(factors, n, l0+i, k0+j)
					sh.values[i][j] = g.valueAt(values, n, base+i, e0+j)
					sh.values[tileL+i][j] = g.valueAt(values, n, base+tileL+i, e0+j)
				}
			}

			for i := 0; i < tileL; i++ {
				for j := 0; j < tileE; j++ {
					acc := sh.acc[i][j]
					for kk := 0; kk < tileK; kk++ {
						acc += sh.factors[i][kk] * sh.values[i+kk][j]
					}
					sh.acc[i][j] = acc
				}
			}
		}

		for i := 0; i < tileL && l0+i < g.length; i++ {
			row := (n*g.length + l0 + i) * g.features
			for j := 0; j < tileE && e0+j < g.features; j++ {
				out[row+e0+j] += sh.acc[i][j]
			}
		}
	})
}
