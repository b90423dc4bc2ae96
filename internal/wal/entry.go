// Package wal implements the write-ahead log that gives the hot tier of the
// context store its durability: every chunk is appended here before it is
// considered committed, so a crash can be recovered from by replaying the
// log back into memory.
package wal

import (
	"encoding/json"
	"fmt"
	"strconv"

	"contextforge/internal/chunk"
)

// maxWALSize is the rotation threshold for a single WAL file (1 MiB).
const maxWALSize = 1024 * 1024

// keepFileCount is how many WAL files survive a rotation; older files are
// deleted.
const keepFileCount = 3

// Entry wraps a chunk with a sequence number and integrity checksum for
// on-disk storage.
type Entry struct {
	WALSequence uint64      `json:"wal_sequence"`
	Chunk       chunk.Chunk `json:"chunk"`
	Checksum    uint32      `json:"checksum"`
}

// NewEntry builds an Entry, computing its checksum over the chunk's
// serialized form.
func NewEntry(c chunk.Chunk, walSequence uint64) (Entry, error) {
	checksum, err := computeChecksum(c)
	if err != nil {
		return Entry{}, err
	}
	return Entry{WALSequence: walSequence, Chunk: c, Checksum: checksum}, nil
}

// Verify reports whether the entry's checksum still matches its chunk.
func (e Entry) Verify() bool {
	checksum, err := computeChecksum(e.Chunk)
	if err != nil {
		return false
	}
	return checksum == e.Checksum
}

// computeChecksum is a rolling hash (hash = (hash + byte) * 31, wrapping
// uint32 arithmetic) over the chunk's JSON encoding. It is not
// cryptographically strong; it exists only to catch truncated or corrupted
// WAL lines on replay.
func computeChecksum(c chunk.Chunk) (uint32, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return 0, fmt.Errorf("serialize chunk for checksum: %w", err)
	}
	var hash uint32
	for _, b := range data {
		hash += uint32(b)
		hash *= 31
	}
	return hash, nil
}

// filename returns the on-disk name for a WAL file of the given sequence.
func filename(sequence uint64) string {
	return fmt.Sprintf("%08d.wal", sequence)
}

// parseFilename extracts the sequence number from a WAL filename, returning
// false if the name doesn't end in ".wal" or its stem isn't numeric.
func parseFilename(name string) (uint64, bool) {
	const suffix = ".wal"
	if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
		return 0, false
	}
	stem := name[:len(name)-len(suffix)]
	seq, err := strconv.ParseUint(stem, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}
