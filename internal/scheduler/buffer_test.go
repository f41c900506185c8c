package scheduler

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPool_Rotates(t *testing.T) {
	p := newBufferPool(2, 8, 64, 1.5)

	a := p.fill([]byte("first"))
	b := p.fill([]byte("second"))
	assert.Equal(t, "first", string(a))
	assert.Equal(t, "second", string(b))

	// The third fill reuses the first buffer.
	c := p.fill([]byte("third"))
	assert.Equal(t, "third", string(c))
	assert.Equal(t, "third", string(a[:5]))
	assert.Equal(t, "second", string(b))
}

func TestBufferPool_GrowsByFactor(t *testing.T) {
	p := newBufferPool(2, 10, 100, 1.5)

	out := p.fill(bytes.Repeat([]byte("x"), 12))
	require.Len(t, out, 12)
	assert.Equal(t, 15, cap(out))

	out = p.fill(bytes.Repeat([]byte("y"), 40))
	assert.Equal(t, 40, cap(out))
}

func TestBufferPool_CapsGrowth(t *testing.T) {
	p := newBufferPool(1, 60, 80, 1.5)

	out := p.fill(bytes.Repeat([]byte("x"), 70))
	assert.Equal(t, 80, cap(out))
	assert.Equal(t, 80, p.capacity())
}

func TestBufferPool_OversizeIsOneOff(t *testing.T) {
	p := newBufferPool(2, 8, 16, 1.5)

	big := bytes.Repeat([]byte("z"), 32)
	out := p.fill(big)
	assert.Equal(t, big, out)
	assert.Equal(t, 16, p.capacity())

	next := p.fill([]byte("ok"))
	assert.Equal(t, "ok", string(next))
}
