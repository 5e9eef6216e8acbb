package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestFor_Sequential(t *testing.T) {
	var order []int
	For(5, func(i int) {
		order = append(order, i)
	}, Sequential())

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFor_SmallChunk(t *testing.T) {
	// Small work units fall back to sequential.
	cfg := DefaultConfig()

	var counter int64
	n := cfg.MinChunkSize - 1

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestLaunch_EveryBlockOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}
	hits := make([]int32, 97)

	Launch(len(hits), func(block int) {
		atomic.AddInt32(&hits[block], 1)
	}, cfg)

	for b, h := range hits {
		require.Equalf(t, int32(1), h, "block %d", b)
	}
}

func TestLaunch_BoundedWorkers(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 3, MinChunkSize: 1}
	var inFlight, peak int32

	Launch(64, func(_ int) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		atomic.AddInt32(&inFlight, -1)
	}, cfg)

	assert.LessOrEqual(t, peak, int32(3))
}

func TestLaunchFlat_CoversRange(t *testing.T) {
	tests := []struct {
		name            string
		n               int
		threadsPerBlock int
	}{
		{"exact", 256, 64},
		{"remainder", 1000, 256},
		{"single block", 7, 256},
		{"unbounded block", 33, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make([]int32, tt.n)
			LaunchFlat(tt.n, tt.threadsPerBlock, func(first, last int) {
				for i := first; i < last; i++ {
					atomic.AddInt32(&seen[i], 1)
				}
			}, DefaultConfig())

			for i, s := range seen {
				require.Equalf(t, int32(1), s, "element %d", i)
			}
		})
	}
}

func TestStream_IssueOrder(t *testing.T) {
	s := NewStream(Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1})
	defer s.Close()

	// Each launch reads the previous launch's writes from a single reused
	// buffer, which only works if launches retire in enqueue order.
	buf := make([]int, 128)
	sums := make([]int, 10)
	for iter := 0; iter < len(sums); iter++ {
		s.Launch(len(buf), func(block int) {
			buf[block] = iter
		})
		s.Enqueue(func() {
			total := 0
			for _, v := range buf {
				total += v
			}
			sums[iter] = total
		})
	}
	s.Synchronize()

	for iter, total := range sums {
		assert.Equalf(t, iter*len(buf), total, "iteration %d", iter)
	}
}

func TestStream_CloseIdempotent(t *testing.T) {
	s := NewStream(Sequential())
	var ran atomic.Bool
	s.Enqueue(func() { ran.Store(true) })
	s.Close()
	s.Close()
	assert.True(t, ran.Load())
}

func BenchmarkLaunch(b *testing.B) {
	cfg := DefaultConfig()

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			Launch(256, func(block int) {
				atomic.AddInt64(&sum, int64(block))
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			Launch(256, func(block int) {
				atomic.AddInt64(&sum, int64(block))
			}, Sequential())
		}
	})
}
