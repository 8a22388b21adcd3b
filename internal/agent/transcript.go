package agent

import (
	"sync"
)

// transcriptBuffer keeps the tail of the accumulated log text for one
// turn. Solution detection only ever needs the end of the stream, and
// a fixed-size ring bounds memory against turns that log unboundedly.
type transcriptBuffer struct {
	mu   sync.RWMutex
	buf  []byte
	head int
	n    int // bytes stored, <= len(buf)
}

// defaultTranscriptSize captures the tail of even verbose turns; the
// solution block sits at the end of the stream.
const defaultTranscriptSize = 256 * 1024

func newTranscriptBuffer(size int) *transcriptBuffer {
	if size <= 0 {
		size = defaultTranscriptSize
	}
	return &transcriptBuffer{buf: make([]byte, size)}
}

// WriteString appends text, overwriting the oldest bytes once full.
func (b *transcriptBuffer) WriteString(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := []byte(s)
	if len(p) >= len(b.buf) {
		// Larger than the whole ring: only the tail survives.
		copy(b.buf, p[len(p)-len(b.buf):])
		b.head = 0
		b.n = len(b.buf)
		return
	}

	end := (b.head + b.n) % len(b.buf)
	wrote := copy(b.buf[end:], p)
	copy(b.buf, p[wrote:])

	b.n += len(p)
	if b.n > len(b.buf) {
		b.head = (b.head + b.n - len(b.buf)) % len(b.buf)
		b.n = len(b.buf)
	}
}

// String returns the buffered text in write order.
func (b *transcriptBuffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.n == 0 {
		return ""
	}
	end := b.head + b.n
	if end <= len(b.buf) {
		return string(b.buf[b.head:end])
	}
	return string(b.buf[b.head:]) + string(b.buf[:end-len(b.buf)])
}

// Len returns the number of buffered bytes.
func (b *transcriptBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.n
}

// Reset clears the buffer for the next turn.
func (b *transcriptBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.n = 0
}
