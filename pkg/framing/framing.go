package framing

// Buffer accumulates raw child-process output between reads. Bytes that do
// not yet form a complete record stay in the buffer, byte-exact, until a
// later chunk completes them.
type Buffer struct {
	data []byte
}

func (b *Buffer) Len() int {
	return len(b.data)
}

// Pending returns the bytes retained for the next read
func (b *Buffer) Pending() []byte {
	return b.data
}

func (b *Buffer) Reset() {
	b.data = b.data[:0]
}

// Framer extracts complete records from a byte stream. Feed appends chunk
// to buf and returns every record completed by it, in stream order. Records
// are copies; the buffer may be rewritten between calls.
//
// Framing is a pure function of the accumulated bytes: splitting the same
// stream into different chunk sequences yields the same records.
type Framer interface {
	Feed(buf *Buffer, chunk []byte) [][]byte
}
