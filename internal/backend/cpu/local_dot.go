package cpu

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"k8s.io/klog/v2"

	"github.com/born-ml/localattn/internal/parallel"
)

// slidingDot computes out[n, l, k] = policy(a[n, l] . b[n, l-C/2+k], l, s)
// for every in-range key, leaving all other cells of out untouched (the
// caller pre-fills them).
//
// Query rows are processed in chunks of queryBlock. For each chunk a single
// dense product against the only key range any of its queries can reach is
// written into the scratch buffer, then a band-selection launch copies the
// banded entries out. The scratch buffer is resliced and overwritten every
// iteration; both launches of an iteration are enqueued on the stream before
// the next iteration's product, so each block is consumed before reuse.
func slidingDot[P copyPolicy](stream *parallel.Stream, a, b, out []float32, g bandGeometry, policy P, queryBlock int) {
	half := g.half()
	scratch := make([]float32, g.batch*queryBlock*(queryBlock+g.window))

	for l := 0; l < g.length; l += queryBlock {
		rows := min(queryBlock, g.length-l)
		keyStart := max(0, l-half)
		keyEnd := min(g.length, l-half+g.window+queryBlock)
		cols := keyEnd - keyStart

		block := scratch[:g.batch*rows*cols]
		sel := bandSelection{
			rows:       rows,
			cols:       cols,
			queryStart: l,
			keyStart:   keyStart,
			length:     g.length,
			window:     g.window,
		}
		klog.V(5).Infof("cpu: sliding dot chunk queries=[%d,%d) keys=[%d,%d)", l, l+rows, keyStart, keyEnd)

		stream.Launch(g.batch, func(n int) {
			blockMatMul(block, a, b, n, sel, g.features)
		})
		stream.LaunchFlat(len(block), selectThreads, func(first, last int) {
			selectBand(out, block, first, last, sel, policy)
		})
	}
	stream.Synchronize()
}

// blockMatMul writes the dense product of the query chunk of sequence n
// against its key range (transposed) into the n-th slice of block.
func blockMatMul(block, a, b []float32, n int, sel bandSelection, features int) {
	queries := blas32.General{
		Rows:   sel.rows,
		Cols:   features,
		Stride: features,
		Data:   a[(n*sel.length+sel.queryStart)*features : (n*sel.length+sel.queryStart+sel.rows)*features],
	}
	keys := blas32.General{
		Rows:   sel.cols,
		Cols:   features,
		Stride: features,
		Data:   b[(n*sel.length+sel.keyStart)*features : (n*sel.length+sel.keyStart+sel.cols)*features],
	}
	dst := blas32.General{
		Rows:   sel.rows,
		Cols:   sel.cols,
		Stride: sel.cols,
		Data:   block[n*sel.rows*sel.cols : (n+1)*sel.rows*sel.cols],
	}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, queries, keys, 0, dst)
}
