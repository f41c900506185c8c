package scheduler

// bufferPool rotates a fixed set of output buffers. A buffer handed out by
// next is reused after len(buffers) further calls.
type bufferPool struct {
	buffers [][]byte
	current int
	max     int
	growth  float64
}

func newBufferPool(count, initial, max int, growth float64) *bufferPool {
	if count < 1 {
		count = 1
	}
	p := &bufferPool{
		buffers: make([][]byte, count),
		max:     max,
		growth:  growth,
	}
	for i := range p.buffers {
		p.buffers[i] = make([]byte, 0, initial)
	}
	return p
}

// fill copies data into the current buffer, growing it if needed, and
// rotates to the next buffer. Data larger than the cap gets a one-off
// buffer so the pooled ones stay bounded.
func (p *bufferPool) fill(data []byte) []byte {
	if len(data) > p.max {
		return append([]byte(nil), data...)
	}

	buf := p.buffers[p.current]
	if cap(buf) < len(data) {
		size := max(len(data), int(float64(cap(buf))*p.growth))
		buf = make([]byte, 0, min(size, p.max))
	}
	buf = append(buf[:0], data...)
	p.buffers[p.current] = buf
	p.current = (p.current + 1) % len(p.buffers)
	return buf
}

// capacity returns the total bytes held by the pool.
func (p *bufferPool) capacity() int {
	total := 0
	for _, b := range p.buffers {
		total += cap(b)
	}
	return total
}
