package framing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(f Framer, buf *Buffer, chunks ...string) []string {
	var records []string
	for _, chunk := range chunks {
		for _, record := range f.Feed(buf, []byte(chunk)) {
			records = append(records, string(record))
		}
	}
	return records
}

func TestLineFramerBasic(t *testing.T) {
	tests := []struct {
		name        string
		chunks      []string
		expected    []string
		tail        string
		description string
	}{
		{
			name:        "complete lines in one chunk",
			chunks:      []string{"one\ntwo\n"},
			expected:    []string{"one", "two"},
			tail:        "",
			description: "each terminated line is a record",
		},
		{
			name:        "unterminated tail retained",
			chunks:      []string{"one\ntw"},
			expected:    []string{"one"},
			tail:        "tw",
			description: "a line without newline stays buffered",
		},
		{
			name:        "tail completed by next chunk",
			chunks:      []string{`{"a":1}` + "\n" + `{"a":`, `2}` + "\n"},
			expected:    []string{`{"a":1}`, `{"a":2}`},
			tail:        "",
			description: "records split across reads are reassembled",
		},
		{
			name:        "empty lines skipped",
			chunks:      []string{"one\n\n\ntwo\n"},
			expected:    []string{"one", "two"},
			tail:        "",
			description: "blank lines never become records",
		},
		{
			name:        "whitespace only lines skipped",
			chunks:      []string{"  \t \nreal\n"},
			expected:    []string{"real"},
			tail:        "",
			description: "whitespace lines never become records",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &Buffer{}
			records := feedAll(NewLineFramer(), buf, tt.chunks...)
			assert.Equal(t, tt.expected, records, tt.description)
			assert.Equal(t, tt.tail, string(buf.Pending()), "retained tail")
		})
	}
}

const testPlistBody = "\n<plist version=\"1.0\">\n<dict>\n\t<key>seq</key><integer>%d</integer>\n</dict>\n</plist>"

func testPlistDoc(seq int) string {
	return PlistMarker + fmt.Sprintf(testPlistBody, seq)
}

func TestPlistFramerSingleDocument(t *testing.T) {
	buf := &Buffer{}
	records := feedAll(NewPlistFramer(), buf, testPlistDoc(1)+"\n")

	require.Len(t, records, 1)
	assert.Equal(t, testPlistDoc(1), records[0])
	assert.Equal(t, "\n", string(buf.Pending()), "separator newline stays buffered")
}

func TestPlistFramerConcatenatedDocuments(t *testing.T) {
	buf := &Buffer{}
	stream := testPlistDoc(1) + "\n" + testPlistDoc(2) + "\n"
	records := feedAll(NewPlistFramer(), buf, stream)

	require.Len(t, records, 2)
	assert.Equal(t, testPlistDoc(1), records[0])
	assert.Equal(t, testPlistDoc(2), records[1], "second document keeps its marker")
}

func TestPlistFramerIncompleteTailRetained(t *testing.T) {
	framer := NewPlistFramer()
	buf := &Buffer{}

	doc := testPlistDoc(7)
	cut := len(doc) - 12 // inside the close tag

	records := framer.Feed(buf, []byte(doc[:cut]))
	assert.Empty(t, records, "no record until the close tag arrives")
	assert.Equal(t, doc[:cut], string(buf.Pending()), "tail retained byte-exact")

	records = framer.Feed(buf, []byte(doc[cut:]))
	require.Len(t, records, 1)
	assert.Equal(t, doc, string(records[0]))
}

func TestPlistFramerPartialMarkerRetained(t *testing.T) {
	framer := NewPlistFramer()
	buf := &Buffer{}

	// first document complete, next one has sent only half its marker
	records := framer.Feed(buf, []byte(testPlistDoc(1)+"\n<?xml ver"))
	require.Len(t, records, 1)
	assert.Equal(t, "\n<?xml ver", string(buf.Pending()))

	records = framer.Feed(buf, []byte(PlistMarker[len("<?xml ver"):]+fmt.Sprintf(testPlistBody, 2)))
	require.Len(t, records, 1)
	assert.Equal(t, testPlistDoc(2), string(records[0]))
}

func TestPlistFramerUnclosedMiddleDocumentEmitted(t *testing.T) {
	buf := &Buffer{}
	truncated := PlistMarker + "\n<plist version=\"1.0\">\n<dict>"
	records := feedAll(NewPlistFramer(), buf, truncated+"\n"+testPlistDoc(2)+"\n")

	require.Len(t, records, 2, "a document bounded by the next marker is complete")
	assert.Equal(t, truncated, records[0], "even without a close tag")
	assert.Equal(t, testPlistDoc(2), records[1])
}

func TestPlistFramerLeadingGarbage(t *testing.T) {
	buf := &Buffer{}
	records := feedAll(NewPlistFramer(), buf, "sudo: a password is required\n"+testPlistDoc(3)+"\n")

	require.Len(t, records, 2)
	assert.Equal(t, "sudo: a password is required", records[0])
	assert.Equal(t, testPlistDoc(3), records[1])
}

func TestPlistFramerNoMarkerAccumulates(t *testing.T) {
	framer := NewPlistFramer()
	buf := &Buffer{}

	assert.Empty(t, framer.Feed(buf, []byte("<plist without ")))
	assert.Empty(t, framer.Feed(buf, []byte("a declaration")))
	assert.Equal(t, "<plist without a declaration", string(buf.Pending()))
}

// Framing must not depend on how the stream is sliced into reads: feeding
// the same bytes one chunk at a time, in pairs, or all at once yields the
// same records.
func TestFramingChunkSizeInvariance(t *testing.T) {
	streams := []struct {
		name   string
		framer func() Framer
		data   string
	}{
		{
			name:   "line stream",
			framer: NewLineFramer,
			data:   `{"a":1}` + "\n" + `{"a":2}` + "\n\n" + `{"a":3}` + "\n",
		},
		{
			name:   "plist stream",
			framer: NewPlistFramer,
			data:   testPlistDoc(1) + "\n" + testPlistDoc(2) + "\n" + testPlistDoc(3) + "\n",
		},
	}

	for _, st := range streams {
		t.Run(st.name, func(t *testing.T) {
			reference := feedAll(st.framer(), &Buffer{}, st.data)
			require.NotEmpty(t, reference)

			for size := 1; size <= len(st.data); size += 7 {
				framer := st.framer()
				buf := &Buffer{}
				var records []string
				for start := 0; start < len(st.data); start += size {
					end := start + size
					if end > len(st.data) {
						end = len(st.data)
					}
					for _, record := range framer.Feed(buf, []byte(st.data[start:end])) {
						records = append(records, string(record))
					}
				}
				assert.Equal(t, reference, records, "chunk size %d must not change framing", size)
			}
		})
	}
}
