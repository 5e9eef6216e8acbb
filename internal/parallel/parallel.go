// Package parallel provides the data-parallel execution primitives the
// attention kernels run on: flat loops, block grids and in-order streams.
package parallel

import (
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64, // Typical cache line aware chunk.
	}
}

// Sequential returns a configuration that runs everything on the caller's goroutine.
func Sequential() Config {
	return Config{Enabled: false, NumWorkers: 1, MinChunkSize: 1}
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinChunkSize || cfg.NumWorkers <= 1 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// Launch runs kernel(block) for every block in [0, blocks). Blocks are
// independent: they may run in any order and concurrently, with at most
// cfg.NumWorkers in flight. Launch returns once every block has finished.
func Launch(blocks int, kernel func(block int), cfg Config) {
	if blocks <= 0 {
		return
	}
	if !cfg.Enabled || cfg.NumWorkers <= 1 || blocks == 1 {
		for b := 0; b < blocks; b++ {
			kernel(b)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(cfg.NumWorkers)
	for b := 0; b < blocks; b++ {
		g.Go(func() error {
			kernel(b)
			return nil
		})
	}
	_ = g.Wait() // kernels never return errors
}

// LaunchFlat runs a one-thread-per-element kernel over n elements grouped
// into blocks of threadsPerBlock. kernel receives the half-open range of
// flat thread indices owned by one block.
func LaunchFlat(n, threadsPerBlock int, kernel func(first, last int), cfg Config) {
	if n <= 0 {
		return
	}
	if threadsPerBlock <= 0 {
		threadsPerBlock = n
	}
	blocks := (n + threadsPerBlock - 1) / threadsPerBlock
	Launch(blocks, func(block int) {
		first := block * threadsPerBlock
		kernel(first, min(first+threadsPerBlock, n))
	}, cfg)
}
