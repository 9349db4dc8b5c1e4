package console

import "sync"

// DefaultBufferLines bounds how many lines accumulate between batch emissions.
const DefaultBufferLines = 2048

// Buffer collects cleaned console lines between batch emissions. It is
// bounded: when full, the oldest lines are discarded so a stalled emitter
// cannot grow memory without limit. The durable record is the log file, so
// dropped lines here only affect the live view.
type Buffer struct {
	mu      sync.Mutex
	lines   []string
	max     int
	dropped uint64
}

func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = DefaultBufferLines
	}
	return &Buffer{max: max}
}

func (b *Buffer) Append(line string) {
	b.mu.Lock()
	if len(b.lines) >= b.max {
		over := len(b.lines) - b.max + 1
		b.lines = b.lines[over:]
		b.dropped += uint64(over)
	}
	b.lines = append(b.lines, line)
	b.mu.Unlock()
}

// Drain atomically takes all buffered lines, leaving the buffer empty.
func (b *Buffer) Drain() []string {
	b.mu.Lock()
	out := b.lines
	b.lines = nil
	b.mu.Unlock()
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Dropped reports how many lines were discarded due to the bound.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
