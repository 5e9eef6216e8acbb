package cpu

// copyPolicy decides what the band-selection kernel writes for the dense
// block value v computed for query l and key s. Policies are type parameters
// of selectBand so the per-element call is resolved at compile time.
type copyPolicy interface {
	apply(v float32, l, s int) float32
}

// maskedCopy adds the (L, L) additive mask in unbanded index space.
type maskedCopy struct {
	mask   []float32
	length int
}

func (m maskedCopy) apply(v float32, l, s int) float32 {
	return v + m.mask[l*m.length+s]
}

// plainCopy copies the dense value unchanged.
type plainCopy struct{}

func (plainCopy) apply(v float32, _, _ int) float32 {
	return v
}

// bandSelection locates one dense sub-block inside the banded output.
type bandSelection struct {
	rows       int // query rows in the block
	cols       int // key columns in the block
	queryStart int
	keyStart   int
	length     int
	window     int
}

// selectBand runs the flat threads [first, last) of the band-selection
// kernel over a (batch, rows, cols) dense block. Thread idx decomposes into
// (n, query offset, key offset); it writes out[n, l, k] only when the key
// falls inside query l's window, every other thread is a no-op.
func selectBand[P copyPolicy](out, block []float32, first, last int, sel bandSelection, policy P) {
	perBatch := sel.rows * sel.cols
	half := sel.window / 2
	for idx := first; idx < last; idx++ {
		n := idx / perBatch
		rem := idx - n*perBatch
		l := sel.queryStart + rem/sel.cols
		s := sel.keyStart + rem%sel.cols

		k := s - l + half
		if k < 0 || k >= sel.window || l >= sel.length || s < 0 || s >= sel.length {
			continue
		}
		out[(n*sel.length+l)*sel.window+k] = policy.apply(block[idx], l, s)
	}
}
