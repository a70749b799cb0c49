package buffer

import "sync/atomic"

// Statistics tracks ring counters. All updates are atomic; reads may be
// slightly stale relative to each other, which is fine for observability.
type Statistics struct {
	pushes    atomic.Int64
	pops      atomic.Int64
	overflows atomic.Int64
	size      atomic.Int64
	maxSize   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of ring counters.
type StatsSnapshot struct {
	Pushes    int64
	Pops      int64
	Overflows int64
	Size      int64
	MaxSize   int64
}

func (s *Statistics) push(size int64) {
	s.pushes.Add(1)
	s.updateSize(size)
}

func (s *Statistics) pop(size int64) {
	s.pops.Add(1)
	s.updateSize(size)
}

func (s *Statistics) overflow() {
	s.overflows.Add(1)
}

func (s *Statistics) updateSize(size int64) {
	s.size.Store(size)
	for {
		max := s.maxSize.Load()
		if size <= max || s.maxSize.CompareAndSwap(max, size) {
			return
		}
	}
}

func (s *Statistics) snapshot() StatsSnapshot {
	return StatsSnapshot{
		Pushes:    s.pushes.Load(),
		Pops:      s.pops.Load(),
		Overflows: s.overflows.Load(),
		Size:      s.size.Load(),
		MaxSize:   s.maxSize.Load(),
	}
}
