package wal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"contextforge/internal/chunk"
	"contextforge/internal/logging"
)

// Writer appends chunks to an append-only, rotating write-ahead log.
type Writer struct {
	mu sync.Mutex

	dir             string
	currentFileSeq  uint64
	entrySeq        uint64
	file            *os.File
	bufw            *bufio.Writer
	currentFileSize int64
}

// NewWriter opens (or creates) the WAL directory and resumes from the
// latest file and entry sequence found there.
func NewWriter(dir string) (*Writer, error) {
	timer := logging.StartTimer(logging.CategoryWAL, "NewWriter")
	defer timer.Stop()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create wal directory: %w", err)
	}

	fileSeq, entrySeq, err := findLatestSequence(dir)
	if err != nil {
		return nil, fmt.Errorf("scan wal directory: %w", err)
	}

	w := &Writer{
		dir:            dir,
		currentFileSeq: fileSeq,
		entrySeq:       entrySeq,
	}
	if err := w.ensureWriter(); err != nil {
		return nil, err
	}

	logging.WALDebug("resumed wal at %s: file_seq=%d entry_seq=%d", dir, fileSeq, entrySeq)
	return w, nil
}

// findLatestSequence scans dir for the highest-numbered WAL file and the
// highest wal_sequence recorded inside it (and any higher-numbered file).
func findLatestSequence(dir string) (fileSeq, entrySeq uint64, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}

	for _, e := range entries {
		seq, ok := parseFilename(e.Name())
		if !ok || seq < fileSeq {
			continue
		}
		fileSeq = seq

		data, readErr := os.ReadFile(filepath.Join(dir, e.Name()))
		if readErr != nil {
			continue
		}
		for _, line := range splitLines(data) {
			entry, decodeErr := decodeLine(line)
			if decodeErr != nil {
				continue
			}
			if entry.WALSequence > entrySeq {
				entrySeq = entry.WALSequence
			}
		}
	}
	return fileSeq, entrySeq, nil
}

// ensureWriter opens the current WAL file for appending if it isn't already open.
func (w *Writer) ensureWriter() error {
	if w.file != nil {
		return nil
	}

	path := filepath.Join(w.dir, filename(w.currentFileSeq))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open wal file %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat wal file %s: %w", path, err)
	}

	w.file = f
	w.bufw = bufio.NewWriter(f)
	w.currentFileSize = info.Size()
	return nil
}

// Append writes a chunk to the WAL, assigning it the next entry sequence,
// and rotates to a new file if the current one has grown past maxWALSize.
func (w *Writer) Append(c chunk.Chunk) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureWriter(); err != nil {
		return err
	}

	w.entrySeq++
	entry, err := NewEntry(c, w.entrySeq)
	if err != nil {
		return err
	}

	line, err := encodeLine(entry)
	if err != nil {
		return fmt.Errorf("encode wal entry: %w", err)
	}

	if _, err := w.bufw.Write(line); err != nil {
		return fmt.Errorf("write wal entry: %w", err)
	}
	if _, err := w.bufw.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write wal newline: %w", err)
	}
	if err := w.bufw.Flush(); err != nil {
		return fmt.Errorf("flush wal writer: %w", err)
	}
	w.currentFileSize += int64(len(line)) + 1

	if w.currentFileSize >= maxWALSize {
		return w.rotateLocked()
	}
	return nil
}

// Rotate closes the current WAL file and begins a new one, pruning old
// files down to keepFileCount.
func (w *Writer) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateLocked()
}

func (w *Writer) rotateLocked() error {
	if w.bufw != nil {
		if err := w.bufw.Flush(); err != nil {
			return fmt.Errorf("flush wal before rotate: %w", err)
		}
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("close wal file before rotate: %w", err)
		}
		w.file = nil
		w.bufw = nil
	}

	w.currentFileSeq++
	w.currentFileSize = 0

	if err := w.ensureWriter(); err != nil {
		return err
	}

	logging.WALDebug("rotated wal to file_seq=%d", w.currentFileSeq)
	return w.cleanupOldFiles()
}

// cleanupOldFiles deletes all but the newest keepFileCount WAL files.
func (w *Writer) cleanupOldFiles() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("list wal directory: %w", err)
	}

	var seqs []uint64
	byName := map[uint64]string{}
	for _, e := range entries {
		seq, ok := parseFilename(e.Name())
		if !ok {
			continue
		}
		seqs = append(seqs, seq)
		byName[seq] = e.Name()
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	if len(seqs) <= keepFileCount {
		return nil
	}
	toDelete := seqs[:len(seqs)-keepFileCount]
	for _, seq := range toDelete {
		path := filepath.Join(w.dir, byName[seq])
		if err := os.Remove(path); err != nil {
			logging.Get(logging.CategoryWAL).Warn("failed to delete old wal file %s: %v", path, err)
		}
	}
	return nil
}

// Clear deletes every WAL file and resets sequence counters to zero.
func (w *Writer) Clear() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.bufw != nil {
		w.bufw.Flush()
	}
	if w.file != nil {
		w.file.Close()
		w.file = nil
		w.bufw = nil
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("list wal directory: %w", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".wal" {
			if err := os.Remove(filepath.Join(w.dir, e.Name())); err != nil {
				return fmt.Errorf("remove wal file %s: %w", e.Name(), err)
			}
		}
	}

	w.currentFileSeq = 0
	w.entrySeq = 0
	w.currentFileSize = 0
	return nil
}

// Sync flushes buffered writes and fsyncs the current WAL file.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.bufw != nil {
		if err := w.bufw.Flush(); err != nil {
			return fmt.Errorf("flush wal: %w", err)
		}
	}
	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("fsync wal: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the current WAL file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.bufw != nil {
		w.bufw.Flush()
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
