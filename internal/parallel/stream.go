package parallel

import "sync"

// Stream is a single in-order execution queue. Launches enqueued on the same
// stream run one after another in enqueue order, each fanning out over the
// stream's Config, so a launch always observes every write of the launches
// enqueued before it. The host may run ahead of the queue; Synchronize waits
// for it to drain.
type Stream struct {
	cfg     Config
	queue   chan func()
	pending sync.WaitGroup
	once    sync.Once
}

// streamDepth bounds how far the host may run ahead of execution.
const streamDepth = 16

// NewStream starts a stream executing launches with cfg.
func NewStream(cfg Config) *Stream {
	s := &Stream{
		cfg:   cfg,
		queue: make(chan func(), streamDepth),
	}
	go s.run()
	return s
}

func (s *Stream) run() {
	for task := range s.queue {
		task()
		s.pending.Done()
	}
}

// Enqueue appends an arbitrary host task to the stream.
func (s *Stream) Enqueue(task func()) {
	s.pending.Add(1)
	s.queue <- task
}

// Launch enqueues a block grid (see Launch).
func (s *Stream) Launch(blocks int, kernel func(block int)) {
	s.Enqueue(func() { Launch(blocks, kernel, s.cfg) })
}

// LaunchFlat enqueues a flat element grid (see LaunchFlat).
func (s *Stream) LaunchFlat(n, threadsPerBlock int, kernel func(first, last int)) {
	s.Enqueue(func() { LaunchFlat(n, threadsPerBlock, kernel, s.cfg) })
}

// Synchronize blocks until every enqueued launch has completed.
func (s *Stream) Synchronize() {
	s.pending.Wait()
}

// Close synchronizes and stops the stream's worker. The stream must not be
// used afterwards.
func (s *Stream) Close() {
	s.once.Do(func() {
		s.Synchronize()
		close(s.queue)
	})
}
