package translate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/events"
)

// logTimestampLayout matches the unified log timestamp,
// e.g. "2025-08-25 14:03:22.123456-0700"
const logTimestampLayout = "2006-01-02 15:04:05.999999-0700"

// rawLogEntry mirrors the field names of `log stream --style json` output
type rawLogEntry struct {
	Timestamp   string `json:"timestamp"`
	MessageType string `json:"messageType"`
	Subsystem   string `json:"subsystem"`
	Category    string `json:"category"`
	Process     string `json:"process"`
	ProcessID   uint32 `json:"processID"`
	Message     string `json:"message"`
}

type logTranslator struct{}

// NewLogTranslator creates the translator for unified log records.
func NewLogTranslator() Translator {
	return &logTranslator{}
}

func (t *logTranslator) Translate(record []byte) (events.Event, error) {
	// --style json wraps entries in a JSON array; strip the element
	// separator so records parse the same either way
	line := bytes.TrimSpace(bytes.TrimSuffix(bytes.TrimSpace(record), []byte(",")))
	if len(line) == 0 {
		return nil, nil
	}

	var raw rawLogEntry
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, errors.NewParseError("malformed log record", err)
	}

	timestamp, err := time.Parse(logTimestampLayout, raw.Timestamp)
	if err != nil {
		return nil, errors.NewParseError(fmt.Sprintf("unparseable log timestamp '%s'", raw.Timestamp), err)
	}

	messageType, err := events.ParseMessageType(raw.MessageType)
	if err != nil {
		return nil, errors.NewParseError("unknown log message type", err)
	}

	return &events.LogEvent{
		Timestamp:   timestamp.UTC(),
		MessageType: messageType,
		Subsystem:   raw.Subsystem,
		Category:    raw.Category,
		Process:     raw.Process,
		ProcessID:   raw.ProcessID,
		Message:     raw.Message,
	}, nil
}
