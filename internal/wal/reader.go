package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"contextforge/internal/chunk"
	"contextforge/internal/logging"
)

// Reader replays WAL files back into chunks for crash recovery.
type Reader struct {
	dir string
}

// NewReader returns a Reader over the given WAL directory.
func NewReader(dir string) *Reader {
	return &Reader{dir: dir}
}

// ReadAll replays every WAL file in sequence order, verifying each entry's
// checksum and skipping (with a warning) any that fail to parse or verify.
func (r *Reader) ReadAll() ([]chunk.Chunk, error) {
	files, err := r.listWALFiles()
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].seq < files[j].seq })

	var entries []Entry
	for _, f := range files {
		fileEntries, err := r.readFile(f.path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fileEntries...)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].WALSequence < entries[j].WALSequence })

	chunks := make([]chunk.Chunk, 0, len(entries))
	for _, e := range entries {
		if !e.Verify() {
			logging.Get(logging.CategoryWAL).Warn("skipping corrupted wal entry (checksum mismatch): %s", e.Chunk.ID)
			continue
		}
		chunks = append(chunks, e.Chunk)
	}
	return chunks, nil
}

type walFile struct {
	seq  uint64
	path string
}

func (r *Reader) listWALFiles() ([]walFile, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list wal directory: %w", err)
	}

	var files []walFile
	for _, e := range entries {
		if seq, ok := parseFilename(e.Name()); ok {
			files = append(files, walFile{seq: seq, path: filepath.Join(r.dir, e.Name())})
		}
	}
	return files, nil
}

func (r *Reader) readFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logging.Get(logging.CategoryWAL).Warn("failed to read wal file %s: %v", path, err)
		return nil, nil
	}

	var entries []Entry
	for i, line := range splitLines(data) {
		entry, err := decodeLine(line)
		if err != nil {
			logging.Get(logging.CategoryWAL).Warn("failed to parse wal entry at %s:%d: %v", path, i+1, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ReadSince returns all chunks with a sequence number greater than the given one.
func (r *Reader) ReadSince(sequence uint64) ([]chunk.Chunk, error) {
	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]chunk.Chunk, 0, len(all))
	for _, c := range all {
		if c.Sequence > sequence {
			out = append(out, c)
		}
	}
	return out, nil
}

// LatestSequence returns the highest chunk sequence number recorded in the WAL.
func (r *Reader) LatestSequence() (uint64, error) {
	chunks, err := r.ReadAll()
	if err != nil {
		return 0, err
	}
	var latest uint64
	for _, c := range chunks {
		if c.Sequence > latest {
			latest = c.Sequence
		}
	}
	return latest, nil
}

// HasData reports whether the WAL directory contains any WAL files.
func (r *Reader) HasData() bool {
	files, err := r.listWALFiles()
	if err != nil {
		return false
	}
	return len(files) > 0
}
