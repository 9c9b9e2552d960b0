package framing

import "bytes"

// lineFramer frames newline-terminated records. Blank lines are skipped,
// an unterminated final line is retained for the next read.
type lineFramer struct{}

// NewLineFramer creates a framer for line-oriented tool output
// (`log stream --style json`, iostat, the vm_stat fallback script).
func NewLineFramer() Framer {
	return &lineFramer{}
}

func (f *lineFramer) Feed(buf *Buffer, chunk []byte) [][]byte {
	buf.data = append(buf.data, chunk...)

	var records [][]byte
	rest := buf.data
	for {
		idx := bytes.IndexByte(rest, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSpace(rest[:idx])
		if len(line) > 0 {
			records = append(records, append([]byte(nil), line...))
		}
		rest = rest[idx+1:]
	}

	// keep only the unterminated tail
	if len(rest) == len(buf.data) {
		return records
	}
	tail := append([]byte(nil), rest...)
	buf.data = tail
	return records
}
