//go:build unix

package dynq

import (
	"fmt"
	"os"

	"github.com/honggfuzz-go/corpus/internal/config"
	"github.com/honggfuzz-go/corpus/internal/corpuslog"
	"github.com/honggfuzz-go/corpus/internal/seeddir"
	"github.com/honggfuzz-go/corpus/internal/workerbuf"
)

// Mangle mutates a worker's buffer in place, standing in for the external
// mangle_mangleContent collaborator (spec.md §6). A nil Mangle means the
// caller never requested mutation.
type Mangle func(run *config.Run, buf *workerbuf.Buffer)

// PrepareDynamic is the hot path during main fuzzing (spec.md §4.3): pick
// the cursor entry, charge it one test against its quota, advance the
// cursor once the quota is exhausted, then copy its bytes into the
// worker's buffer outside the lock.
func (c *Corpus) PrepareDynamic(run *config.Run, buf *workerbuf.Buffer, needsMangle bool, mangle Mangle) {
	if c.Count() == 0 {
		fatalf("dynq: the dynamic file corpus is empty. This shouldn't happen")
		return
	}

	c.mu.Lock()
	if c.cursor == nil {
		c.cursor = c.head
	}
	current := c.cursor

	quota := testQuota(current.idx, c.count)
	current.tested++
	if current.tested >= quota {
		current.tested = 0
		c.cursor = current.next
	}
	c.mu.Unlock()

	buf.CopyFrom(current.data)

	if needsMangle && mangle != nil {
		mangle(run, buf)
	}
}

// PrepareDynamicForMinimization performs one serial step of a
// minimization sweep (spec.md §4.3): advance the cursor (initializing to
// the head if null), returning false once it walks off the end. On
// success, the current entry's bytes are copied into the worker buffer
// and its path recorded in run.OrigFileName.
func (c *Corpus) PrepareDynamicForMinimization(run *config.Run, buf *workerbuf.Buffer) bool {
	c.mu.Lock()
	if c.count == 0 {
		c.mu.Unlock()
		fatalf("dynq: the dynamic file corpus is empty (for minimization). This shouldn't happen")
		return false
	}

	if c.cursor == nil {
		c.cursor = c.head
	} else {
		c.cursor = c.cursor.next
	}
	current := c.cursor
	c.mu.Unlock()

	if current == nil {
		return false
	}

	buf.CopyFrom(current.data)
	run.OrigFileName = current.path
	corpuslog.Debugf("dynq: cov: %d/%d/%d/%d", current.cov[0], current.cov[1], current.cov[2], current.cov[3])
	return true
}

// shouldReadNewFile implements input_shouldReadNewFile's dry-run size-ramp
// policy: outside dry-run (or while minimizing) every call reads a fresh
// seed at full size; during dry-run a seed is first read at a 1024-byte
// prefix, then the prefix doubles on each subsequent call against the
// *same* seed until it reaches maxInputSz, at which point the next call
// moves on to a new seed.
func shouldReadNewFile(run *config.Run, phase config.State, minimize bool, buf *workerbuf.Buffer) bool {
	maxInputSz := run.Global.MaxInputSz

	if phase != config.StateDynamicDryRun || minimize {
		buf.SetSize(maxInputSz)
		return true
	}

	if !run.StaticFileTryMore {
		run.StaticFileTryMore = true
		newSz := maxInputSz
		if newSz > 1024 {
			newSz = 1024
		}
		buf.SetSize(newSz)
		return true
	}

	newSz := buf.Size() * 2
	if newSz >= maxInputSz {
		newSz = maxInputSz
		run.StaticFileTryMore = false
	}
	buf.SetSize(newSz)
	return false
}

// PrepareStaticFile implements input_prepareStaticFile: dispense the next
// (or current, mid-ramp) static seed name from scanner, read up to the
// worker buffer's current logical size (as set by shouldReadNewFile) from
// it, and optionally mangle.
// Returns false when the scanner is exhausted (rewind=false) or a read
// fails.
func PrepareStaticFile(run *config.Run, buf *workerbuf.Buffer, scanner *seeddir.Scanner, phase config.State, minimize, rewind, needsMangle bool, mangle Mangle) (bool, error) {
	if shouldReadNewFile(run, phase, minimize, buf) {
		name, ok := scanner.Next(rewind)
		if !ok {
			return false, nil
		}
		run.OrigFileName = name
	}
	requestedSz := buf.Size()

	path := run.Global.InputDir + string(os.PathSeparator) + run.OrigFileName
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("dynq: couldn't open %q: %w", path, err)
	}
	defer f.Close()

	n, err := buf.FillFrom(f, requestedSz)
	if err != nil {
		return false, fmt.Errorf("dynq: couldn't read contents of %q: %w", path, err)
	}

	if run.StaticFileTryMore && uint64(n) < requestedSz {
		// The file is smaller than the requested ramp size; no need to
		// re-read it at a larger size on a later call.
		run.StaticFileTryMore = false
	}

	if needsMangle && mangle != nil {
		mangle(run, buf)
	}
	return true, nil
}
