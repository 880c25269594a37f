package hostaudio

import "sync/atomic"

// ring is a single-producer single-consumer byte ring with a power-of-two
// capacity. One side runs in the switch-engine context and the other on the
// application thread of the blocking interface; neither side ever blocks or
// locks against the other. Indices grow monotonically and are wrapped with
// the mask on access.
type ring struct {
	buf  []byte
	mask int

	readIdx  atomic.Int64
	writeIdx atomic.Int64
}

// newRing returns a ring whose capacity is capacity rounded up to a power of
// two.
func newRing(capacity int) *ring {
	capacity = nextPowerOfTwo(capacity)

	return &ring{buf: make([]byte, capacity), mask: capacity - 1}
}

// readAvailable returns the number of bytes ready to read.
func (r *ring) readAvailable() int {
	return int(r.writeIdx.Load() - r.readIdx.Load())
}

// writeAvailable returns the remaining free space in bytes.
func (r *ring) writeAvailable() int {
	return len(r.buf) - r.readAvailable()
}

// write copies p into the ring, up to the free space, and returns the number
// of bytes consumed.
func (r *ring) write(p []byte) int {
	n := len(p)
	if avail := r.writeAvailable(); n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}

	w := int(r.writeIdx.Load()) & r.mask
	if w+n <= len(r.buf) {
		copy(r.buf[w:], p[:n])
	} else {
		k := len(r.buf) - w
		copy(r.buf[w:], p[:k])
		copy(r.buf, p[k:n])
	}

	r.writeIdx.Add(int64(n))

	return n
}

// read copies up to len(p) bytes out of the ring and returns the number of
// bytes produced.
func (r *ring) read(p []byte) int {
	n := len(p)
	if avail := r.readAvailable(); n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}

	i := int(r.readIdx.Load()) & r.mask
	if i+n <= len(r.buf) {
		copy(p[:n], r.buf[i:])
	} else {
		k := len(r.buf) - i
		copy(p[:k], r.buf[i:])
		copy(p[k:n], r.buf)
	}

	r.readIdx.Add(int64(n))

	return n
}

// flush discards all buffered data. Only valid while the producer side is
// quiescent.
func (r *ring) flush() {
	r.readIdx.Store(r.writeIdx.Load())
}
