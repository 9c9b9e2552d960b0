package translate

import (
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/macos-observer/pkg/events"
)

type diskTranslator struct{}

// NewDiskTranslator creates the translator for iostat rows. iostat prints
// device and column headers between samples; those are not data rows and
// are skipped without a diagnostic.
func NewDiskTranslator() Translator {
	return &diskTranslator{}
}

func (t *diskTranslator) Translate(record []byte) (events.Event, error) {
	fields := strings.Fields(string(record))
	if len(fields) < 5 {
		return nil, nil
	}

	// device, KB/t, tps, MB/s read, MB/s write
	if _, err := strconv.ParseFloat(fields[1], 64); err != nil {
		return nil, nil
	}
	tps, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return nil, nil
	}
	readMB, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return nil, nil
	}
	writeMB, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return nil, nil
	}

	readKB := readMB * 1024.0
	writeKB := writeMB * 1024.0

	// iostat does not separate read from write operations; apportion the
	// transfer rate by byte ratio, 50/50 when the disk is idle
	readRatio := 0.5
	if readKB+writeKB > 0 {
		readRatio = readKB / (readKB + writeKB)
	}

	return &events.DiskEvent{
		Timestamp:      time.Now().UTC(),
		ReadKBPerSec:   readKB,
		WriteKBPerSec:  writeKB,
		ReadOpsPerSec:  tps * readRatio,
		WriteOpsPerSec: tps * (1.0 - readRatio),
		DiskName:       fields[0],
	}, nil
}

type fsUsageTranslator struct{}

// NewFSUsageTranslator creates the best-effort translator for fs_usage
// lines. fs_usage output is noisy; only lines mentioning a read or write
// yield an event, everything else is skipped.
func NewFSUsageTranslator() Translator {
	return &fsUsageTranslator{}
}

func (t *fsUsageTranslator) Translate(record []byte) (events.Event, error) {
	tokens := strings.Fields(string(record))
	if len(tokens) < 4 {
		return nil, nil
	}

	var isRead, isWrite bool
	for _, token := range tokens {
		if strings.EqualFold(token, "read") {
			isRead = true
		}
		if strings.EqualFold(token, "write") {
			isWrite = true
		}
	}
	if !isRead && !isWrite {
		return nil, nil
	}

	// last token that looks like a path
	var filesystemPath *string
	for i := len(tokens) - 1; i >= 0; i-- {
		if strings.HasPrefix(tokens[i], "/") {
			path := tokens[i]
			filesystemPath = &path
			break
		}
	}

	// the B=0x.. byte count wins when present; fs_usage ends lines with an
	// elapsed-time float, so a bare number is only trusted as a fallback
	var bytesMoved float64
	found := false
	for i := len(tokens) - 1; i >= 0; i-- {
		if !strings.HasPrefix(tokens[i], "B=") {
			continue
		}
		if v, err := strconv.ParseUint(strings.TrimPrefix(tokens[i], "B="), 0, 64); err == nil {
			bytesMoved = float64(v)
			found = true
			break
		}
	}
	if !found {
		for i := len(tokens) - 1; i >= 0; i-- {
			if v, err := strconv.ParseFloat(tokens[i], 64); err == nil {
				bytesMoved = v
				break
			}
		}
	}

	kb := bytesMoved / 1024.0
	event := &events.DiskEvent{
		Timestamp:      time.Now().UTC(),
		DiskName:       "fs_usage",
		FilesystemPath: filesystemPath,
	}
	switch {
	case isRead && !isWrite:
		event.ReadKBPerSec = kb
		event.ReadOpsPerSec = 1.0
	case isWrite && !isRead:
		event.WriteKBPerSec = kb
		event.WriteOpsPerSec = 1.0
	default:
		event.ReadKBPerSec = kb / 2.0
		event.WriteKBPerSec = kb / 2.0
		event.ReadOpsPerSec = 1.0
		event.WriteOpsPerSec = 1.0
	}
	return event, nil
}
