package hostaudio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingCapacityRounding(t *testing.T) {
	r := newRing(100)
	assert.Equal(t, 128, len(r.buf))
	assert.Equal(t, 128, r.writeAvailable())
	assert.Zero(t, r.readAvailable())
}

func TestRingReadWrite(t *testing.T) {
	r := newRing(16)

	n := r.write([]byte{1, 2, 3, 4})
	require.Equal(t, 4, n)
	assert.Equal(t, 4, r.readAvailable())
	assert.Equal(t, 12, r.writeAvailable())

	out := make([]byte, 4)
	n = r.read(out)
	require.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, out)
	assert.Zero(t, r.readAvailable())
}

func TestRingWraparound(t *testing.T) {
	r := newRing(8)

	// Advance the indices close to the end, then write across the boundary.
	require.Equal(t, 6, r.write(make([]byte, 6)))
	require.Equal(t, 6, r.read(make([]byte, 6)))

	data := []byte{1, 2, 3, 4, 5}
	require.Equal(t, 5, r.write(data))

	out := make([]byte, 5)
	require.Equal(t, 5, r.read(out))
	assert.Equal(t, data, out)
}

func TestRingShortWriteWhenFull(t *testing.T) {
	r := newRing(8)

	require.Equal(t, 8, r.write(make([]byte, 8)))
	assert.Zero(t, r.write([]byte{1}))

	require.Equal(t, 3, r.read(make([]byte, 3)))
	assert.Equal(t, 3, r.write([]byte{1, 2, 3, 4}))
}

func TestRingShortReadWhenEmpty(t *testing.T) {
	r := newRing(8)

	assert.Zero(t, r.read(make([]byte, 4)))

	r.write([]byte{9, 8})
	out := make([]byte, 4)
	assert.Equal(t, 2, r.read(out))
	assert.Equal(t, []byte{9, 8}, out[:2])
}

func TestRingFlush(t *testing.T) {
	r := newRing(8)

	r.write([]byte{1, 2, 3})
	r.flush()

	assert.Zero(t, r.readAvailable())
	assert.Equal(t, 8, r.writeAvailable())
}
