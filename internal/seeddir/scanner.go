// Package seeddir enumerates seed files under an input directory and hands
// them out one at a time, with optional rewind (spec.md §4.1).
//
// Grounded on the teacher's internal/scanner package for its general shape
// (a struct built with New, stats tracked for an optional progress bar,
// os.DirEntry-based traversal) but restructured for the spec's very
// different access pattern: dupedog's scanner recursively fans out a
// worker-per-directory walk and returns everything at once, while this
// scanner holds one open *os.File directory handle across many serialized
// Next() calls, rewinding it in place — the concurrency model is a single
// process-wide mutex (spec.md §5), not a semaphore-bounded goroutine pool.
package seeddir

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/honggfuzz-go/corpus/internal/config"
	"github.com/honggfuzz-go/corpus/internal/corpuslog"
	"github.com/honggfuzz-go/corpus/internal/progress"
)

// Scanner owns the open directory handle and cursor described in spec.md
// §3 ("Input directory handle"). Next serializes on mu, matching the
// single process-wide mutex spec.md §5 requires. StatAndRewind does not
// acquire mu itself: Next runs it with mu held, and Initialize runs it
// before the scanner is handed out.
type Scanner struct {
	global *config.Global

	mu  sync.Mutex
	dir *os.File // open directory handle; re-opened on rewind

	fileCnt atomic.Uint64 // mirrors global.FileCnt, readable without the lock

	showProgress bool
}

// New creates a Scanner bound to global. ShowProgress, when true, renders a
// spinner during StatAndRewind the way dupedog's scanner does during its
// walk (internal/scanner/scanner.go:Run).
func New(global *config.Global, showProgress bool) *Scanner {
	return &Scanner{global: global, showProgress: showProgress}
}

// Initialize opens the input directory read-only, close-on-exec, and runs
// the first StatAndRewind pass. It fails if the path is missing or isn't a
// directory (spec.md §4.1, §7 ConfigurationError).
func (s *Scanner) Initialize() error {
	if s.global.InputDir == "" {
		return errors.New("seeddir: no input directory specified")
	}

	f, err := os.OpenFile(s.global.InputDir, os.O_RDONLY, 0)
	if err != nil {
		corpuslog.Warnf("seeddir: open(%q): %v", s.global.InputDir, err)
		return fmt.Errorf("seeddir: open %s: %w", s.global.InputDir, err)
	}
	info, err := f.Stat()
	if err != nil || !info.IsDir() {
		_ = f.Close()
		return fmt.Errorf("seeddir: %s is not a directory", s.global.InputDir)
	}

	s.mu.Lock()
	s.dir = f
	s.mu.Unlock()

	if err := s.StatAndRewind(); err != nil {
		s.global.FileCnt = 0
		corpuslog.Warnf("seeddir: StatAndRewind(%q) failed: %v", s.global.InputDir, err)
		return fmt.Errorf("seeddir: initial scan of %s: %w", s.global.InputDir, err)
	}
	return nil
}

// statsCounter renders the scan's progress spinner description.
type statsCounter struct {
	scanned uint64
	maxSeen uint64
}

func (c statsCounter) String() string {
	return fmt.Sprintf("scanned %d seed(s), max size %s", c.scanned, humanize.IBytes(c.maxSeen))
}

// StatAndRewind performs one full traversal of the input directory,
// tallying regular files and the largest size observed, then rewinds the
// directory cursor to the beginning (spec.md §4.1).
//
// Callers (seeddir.Next with rewind=true) must already hold the scanner's
// mutex; StatAndRewind itself does not re-acquire it, mirroring
// input_getDirStatsAndRewind being called with the lock already held by
// input_getNext in original_source/input.c.
func (s *Scanner) StatAndRewind() error {
	return s.statAndRewindLocked()
}

func (s *Scanner) statAndRewindLocked() error {
	if _, err := s.dir.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding %s: %w", s.global.InputDir, err)
	}

	var fileCnt, maxInputSz uint64
	bar := progress.New(s.showProgress, -1)
	stats := statsCounter{}
	bar.Describe(stats)

	const batchSize = 256
	for {
		entries, err := s.dir.ReadDir(batchSize)
		if len(entries) == 0 {
			if err != nil && !errors.Is(err, io.EOF) {
				corpuslog.Warnf("seeddir: readdir(%q): %v", s.global.InputDir, err)
				return err
			}
			break
		}

		for _, entry := range entries {
			name := entry.Name()
			info, statErr := entry.Info()
			if statErr != nil {
				corpuslog.Warnf("seeddir: couldn't stat() %q", name)
				continue
			}
			if !info.Mode().IsRegular() {
				corpuslog.Debugf("seeddir: %q is not a regular file, skipping", name)
				continue
			}

			size := uint64(info.Size())
			if s.global.MaxFileSz != 0 && size > s.global.MaxFileSz {
				corpuslog.Debugf("seeddir: %q (%s) is bigger than the maximum defined file size (%s)",
					name, humanize.IBytes(size), humanize.IBytes(s.global.MaxFileSz))
			}
			maxInputSz = config.MaxUint64(maxInputSz, size)
			fileCnt++

			stats.scanned = fileCnt
			stats.maxSeen = maxInputSz
			bar.Describe(stats)
		}
	}
	bar.Finish(stats)

	s.global.MaxInputSz = s.global.ClampMaxInputSz(maxInputSz)
	atomic.StoreUint64(&s.global.FileCnt, fileCnt)
	s.fileCnt.Store(fileCnt)

	if fileCnt == 0 {
		corpuslog.Warnf("seeddir: no usable files in the input directory %q", s.global.InputDir)
	}
	corpuslog.Debugf("seeddir: analyzed %q: maxInputSz=%d, usable files=%d",
		s.global.InputDir, s.global.MaxInputSz, fileCnt)

	if _, err := s.dir.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding %s after scan: %w", s.global.InputDir, err)
	}
	return nil
}

// FileCnt returns the most recently published file count (advisory, read
// without the scanner's lock, matching spec.md §5's atomic-counter model).
func (s *Scanner) FileCnt() uint64 {
	return s.fileCnt.Load()
}

// Next returns the next regular file's name from the input directory, or
// ok=false when exhausted and rewind is false. With rewind=true, hitting
// the end triggers a fresh StatAndRewind pass and continues from the
// (now-rewound) beginning (spec.md §4.1).
//
// Callers must serialize on the scanner, which Next does internally via
// its mutex — matching the single process-wide input_mutex in
// original_source/input.c's input_getNext.
func (s *Scanner) Next(rewind bool) (name string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.global.FileCnt == 0 {
		corpuslog.Warnf("seeddir: no useful files in the input directory")
		return "", false
	}

	for {
		entries, err := s.dir.ReadDir(1)
		if len(entries) == 0 {
			if err != nil && !errors.Is(err, io.EOF) {
				corpuslog.Warnf("seeddir: readdir(%q): %v", s.global.InputDir, err)
				return "", false
			}
			if !rewind {
				return "", false
			}
			if rerr := s.statAndRewindLocked(); rerr != nil {
				corpuslog.Errorf("seeddir: StatAndRewind(%q): %v", s.global.InputDir, rerr)
				return "", false
			}
			continue
		}

		entry := entries[0]
		info, statErr := entry.Info()
		if statErr != nil {
			corpuslog.Warnf("seeddir: couldn't stat() %q", entry.Name())
			continue
		}
		if !info.Mode().IsRegular() {
			corpuslog.Debugf("seeddir: %q is not a regular file, skipping", entry.Name())
			continue
		}
		return entry.Name(), true
	}
}

// Remove deletes a static seed file (spec.md supplement:
// input_removeStaticFile, used by corpus minimization once a seed has been
// folded into the dynamic corpus).
func (s *Scanner) Remove(name string) error {
	path := filepath.Join(s.global.InputDir, name)
	if err := os.Remove(path); err != nil {
		corpuslog.Errorf("seeddir: unlink(%q) failed: %v", path, err)
		return err
	}
	return nil
}

// Close releases the directory handle.
func (s *Scanner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == nil {
		return nil
	}
	err := s.dir.Close()
	s.dir = nil
	return err
}
