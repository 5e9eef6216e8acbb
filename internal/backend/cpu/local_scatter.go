package cpu

import (
	"github.com/born-ml/localattn/internal/parallel"
)

// indexLookup selects how the transpose-scatter kernel walks a window chunk.
// For key s the kernel sums over chunk offsets kk; windowIndex gives the
// relative index k read from factors, which fixes the query l = s + C/2 - k.
// rowBase and row place that query inside the staged double tile.
type indexLookup interface {
	windowIndex(k0, kk, window int) int
	rowBase(s0, k0, half, window int) int
	row(i, kk int) int
}

// increasingIndex reads the window in increasing order, k = k0 + kk.
type increasingIndex struct{}

func (increasingIndex) windowIndex(k0, kk, _ int) int {
	return k0 + kk
}

func (increasingIndex) rowBase(s0, k0, half, _ int) int {
	return s0 + half - k0 - (tileK - 1)
}

func (increasingIndex) row(i, kk int) int {
	return i - kk + tileK - 1
}

// reverseIndex reads the window in reverse order, k = C - k0 - kk - 1.
type reverseIndex struct{}

func (reverseIndex) windowIndex(k0, kk, window int) int {
	return window - k0 - kk - 1
}

func (reverseIndex) rowBase(s0, k0, half, window int) int {
	return s0 + half - window + 1 + k0
}

func (reverseIndex) row(i, kk int) int {
	return i + kk
}

// scatterTiles is the block-shared scratch of the transpose-scatter kernel.
// Both staged operands span two adjacent row tiles.
type scatterTiles struct {
	factors [2 * tileL][tileK]float32
	values  [2 * tileL][tileE]float32
	acc     [tileL][tileE]float32
}

// transposeScatter accumulates the adjoint of weightedAverage:
//
//	out[n, s, e] += sum_l values[n, l, e] * factors[n, l, s-l+C/2]
//
// over the queries l whose window contains key s. Blocks own a (key tile,
// feature tile) of out, so every output cell has a single writer.
func transposeScatter[P indexLookup](stream *parallel.Stream, factors, values, out []float32, g bandGeometry, lookup P) {
	ts := newTileStrides(g)
	half := g.half()

	stream.Launch(ts.blocks(g.batch), func(block int) {
		n, st, et := ts.decompose(block)
		s0, e0 := st*tileL, et*tileE
		sh := new(scatterTiles)

		for k0 := 0; k0 < g.window; k0 += tileK {
			base := lookup.rowBase(s0, k0, half, g.window)

			for i := 0; i < tileL; i++ {
				for j := 0; j < tileE; j++ {
					k := -1
					if k0+j < g.window {
						k = lookup.windowIndex(k0, j, g.window)
					}
					for _, r := range [2]int{i, tileL + i} {
						sh.factors[r][j] = g.factorAt(factors, n, base+r, k)
						sh.values[r][j] = g.valueAt(values, n, base+r, e0+j)
					}
				}
			}

			for i := 0; i < tileL; i++ {
				for j := 0; j < tileE; j++ {
					acc := sh.acc[i][j]
					for kk := 0; kk < tileK; kk++ {
						r := lookup.row(i, kk)
						acc += sh.factors[r][kk] * sh.values[r][j]
					}
					sh.acc[i][j] = acc
				}
			}
		}

		for i := 0; i < tileL && s0+i < g.length; i++ {
			row := (n*g.length + s0 + i) * g.features
			for j := 0; j < tileE && e0+j < g.features; j++ {
				out[row+e0+j] += sh.acc[i][j]
			}
		}
	})
}
