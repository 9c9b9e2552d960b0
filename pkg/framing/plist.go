package framing

import "bytes"

// PlistMarker is the XML declaration powermetrics emits at the start of
// every property list document. It doubles as the boundary when several
// documents are concatenated in one stream.
const PlistMarker = `<?xml version="1.0" encoding="UTF-8"?>`

const plistClose = "</plist>"

// plistFramer frames concatenated XML property list documents. A document
// runs from one marker to the next, or to its close tag when it is the last
// one in the buffer. The trailing fragment of a document still streaming in
// is retained, marker included, until later chunks complete it.
type plistFramer struct{}

// NewPlistFramer creates a framer for `powermetrics --format plist` output.
func NewPlistFramer() Framer {
	return &plistFramer{}
}

func (f *plistFramer) Feed(buf *Buffer, chunk []byte) [][]byte {
	buf.data = append(buf.data, chunk...)

	marker := []byte(PlistMarker)
	closeTag := []byte(plistClose)

	var records [][]byte
	rest := buf.data
	for {
		m := bytes.Index(rest, marker)
		if m < 0 {
			// no document boundary yet; the remainder may still grow
			// into one (it can also be the tail of a partial marker)
			break
		}
		if m > 0 {
			// bytes before a marker can never become a document; emit
			// them unless they are just separator whitespace
			head := bytes.TrimSpace(rest[:m])
			if len(head) > 0 {
				records = append(records, append([]byte(nil), head...))
			}
			rest = rest[m:]
		}

		// rest starts with a marker; the document ends at its close tag
		// or at the next marker, whichever comes first
		next := bytes.Index(rest[len(marker):], marker)
		if next >= 0 {
			next += len(marker)
		}
		closeAt := bytes.Index(rest, closeTag)

		if next >= 0 && (closeAt < 0 || closeAt > next) {
			// bounded by the next document's marker: complete even if it
			// never closed properly, the translator will reject it
			doc := bytes.TrimSpace(rest[:next])
			records = append(records, append([]byte(nil), doc...))
			rest = rest[next:]
		} else if closeAt >= 0 {
			end := closeAt + len(closeTag)
			records = append(records, append([]byte(nil), rest[:end]...))
			rest = rest[end:]
		} else {
			// incomplete document tail, retain byte-exact
			break
		}
	}

	if len(rest) == len(buf.data) {
		return records
	}
	buf.data = append([]byte(nil), rest...)
	return records
}
