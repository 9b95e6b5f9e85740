package webcpp

// bufferPoolMaxCap is the largest buffer kept for reuse.
const bufferPoolMaxCap = 64 * 1024

// bufferPool provides allocated but unused session buffers.
type bufferPool chan []byte

func newBufferPool(size int) bufferPool {
	if size < 0 {
		size = 0
	}
	return make(bufferPool, size)
}

// alloc returns an empty buffer.
func (p bufferPool) alloc() []byte {
	select {
	case buf := <-p:
		return buf[:0]
	default:
		return make([]byte, 0, DefaultReadBufferSize)
	}
}

// free releases a buffer. Buffers grown past bufferPoolMaxCap are dropped.
func (p bufferPool) free(buf []byte) {
	if buf != nil && cap(buf) <= bufferPoolMaxCap {
		select {
		case p <- buf[:0]:
		default:
		}
	}
}
