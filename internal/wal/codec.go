package wal

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// encodeLine serializes an Entry to a single JSON line (without trailing newline).
func encodeLine(e Entry) ([]byte, error) {
	return json.Marshal(e)
}

// decodeLine parses a single WAL line into an Entry.
func decodeLine(line []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return Entry{}, fmt.Errorf("decode wal entry: %w", err)
	}
	return e, nil
}

// splitLines splits file content into non-empty, trimmed lines.
func splitLines(data []byte) [][]byte {
	var lines [][]byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		lines = append(lines, trimmed)
	}
	return lines
}
