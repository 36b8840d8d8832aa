// Package covstore implements the coverage-addressed persister (spec.md
// §4.5): content-derived filenames written idempotently under a flat
// output directory, plus an optional on-disk index so repeated runs
// against the same directory don't have to touch the filesystem for
// every write.
package covstore

import (
	"errors"
	"fmt"
	"hash/crc64"
	"os"
	"path/filepath"

	"github.com/honggfuzz-go/corpus/internal/corpuslog"
)

var isoTable = crc64.MakeTable(crc64.ISO)

// CRC64 is the forward 64-bit CRC over data (util_CRC64 in
// original_source/input.c's collaborator list).
func CRC64(data []byte) uint64 {
	return crc64.Checksum(data, isoTable)
}

// CRC64Rev is the reverse-direction 64-bit CRC: the same checksum
// computed over data read back to front, giving the dual-CRC scheme an
// independent second coordinate without a second polynomial or a
// cryptographic digest (util_CRC64Rev).
func CRC64Rev(data []byte) uint64 {
	rev := make([]byte, len(data))
	for i, b := range data {
		rev[len(data)-1-i] = b
	}
	return crc64.Checksum(rev, isoTable)
}

// FileName computes the content-addressed filename spec.md §4.5 defines:
// <crc64f:016x><crc64r:016x>.<len:08x>.honggfuzz.cov.
func FileName(data []byte) string {
	return fmt.Sprintf("%016x%016x.%08x.honggfuzz.cov", CRC64(data), CRC64Rev(data), len(data))
}

// Store is a coverage-addressed persister. Index may be nil, in which
// case every write falls through to a real filesystem check.
type Store struct {
	index *Index
}

// New creates a Store. index may be nil.
func New(index *Index) *Store {
	return &Store{index: index}
}

// WriteCovFile writes data under dir using its content-addressed
// filename. An existing file with that name is treated as success
// (idempotent); a write failure is reported but returned as an error so
// the caller (dynq.Corpus.Add) can log it without aborting the insertion
// that triggered it.
func (s *Store) WriteCovFile(dir string, data []byte) error {
	key := digestKey(data)
	if s.index != nil && s.index.Seen(key) {
		return nil
	}

	name := FileName(data)
	path := filepath.Join(dir, name)

	corpuslog.Debugf("covstore: adding file %q to corpus directory %q", name, dir)

	// os.OpenFile already opens with the non-inheritable (close-on-exec)
	// flag on unix; no extra step is needed to match files_writeBufToFile's
	// O_CLOEXEC.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			if s.index != nil {
				s.index.MarkSeen(key)
			}
			return nil
		}
		return fmt.Errorf("covstore: couldn't write buffer to file %q: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("covstore: couldn't write buffer to file %q: %w", path, err)
	}

	if s.index != nil {
		s.index.MarkSeen(key)
	}
	return nil
}
