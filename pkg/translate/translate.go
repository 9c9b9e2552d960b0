package translate

import (
	"github.com/core-tools/macos-observer/pkg/events"
)

// Translator turns one framed record into a system event. A nil event with
// nil error means the record carries no data (tool headers, separators) and
// is skipped silently; a parse error means the record was malformed and is
// dropped with a diagnostic. Neither outcome stops the stream.
type Translator interface {
	Translate(record []byte) (events.Event, error)
}
