package console

import (
	"sync"
	"time"
)

// DefaultBatchInterval is the fixed window between batch emissions.
const DefaultBatchInterval = 200 * time.Millisecond

// Batcher drains a Buffer on a fixed interval and hands each non-empty batch
// to emit, bounding emission frequency independent of log volume. Close runs
// one final unconditional drain (even when empty) so trailing lines are
// flushed before the channel is torn down.
type Batcher struct {
	interval time.Duration
	buf      *Buffer
	emit     func(lines []string)

	stopC chan struct{}
	doneC chan struct{}
	once  sync.Once
}

func NewBatcher(interval time.Duration, buf *Buffer, emit func(lines []string)) *Batcher {
	if interval <= 0 {
		interval = DefaultBatchInterval
	}
	return &Batcher{
		interval: interval,
		buf:      buf,
		emit:     emit,
		stopC:    make(chan struct{}),
		doneC:    make(chan struct{}),
	}
}

// Run loops until Close. Call in its own goroutine.
func (b *Batcher) Run() {
	defer close(b.doneC)
	t := time.NewTicker(b.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if lines := b.buf.Drain(); len(lines) > 0 {
				b.emit(lines)
			}
		case <-b.stopC:
			return
		}
	}
}

// Close stops the periodic loop and performs the final flush exactly once.
// Safe to call multiple times.
func (b *Batcher) Close() {
	b.once.Do(func() {
		close(b.stopC)
		<-b.doneC
		b.emit(b.buf.Drain())
	})
}
