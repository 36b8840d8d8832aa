//go:build unix

// Package workerbuf implements the per-worker input buffer (spec.md §4.4):
// a file-backed memory region addressable both as a file descriptor (for
// the target process) and as a memory mapping (for in-place mutation).
//
// Grounded on the mmap-backed-buffer shape used elsewhere in the retrieval
// pack for read-side file buffers (Azure azcopy's common/mmf_unix.go:
// NewMMF/Unmap/MMFSlice), adapted here for read-write, resizable content:
// the mapping is created once at the buffer's maximum capacity and SetSize
// only ever truncates the backing file, never remaps.
package workerbuf

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/honggfuzz-go/corpus/internal/corpuslog"
)

// fatalf is swapped out in tests so the oversize path doesn't tear down
// the test binary, mirroring corpuslog's own exitFunc indirection.
var fatalf = corpuslog.Fatalf

// Buffer is a resizable, file-backed memory region. The mapping's capacity
// is fixed at maxInputSz for the buffer's lifetime; Size reports the
// logical size within that capacity (spec.md §4.4: "dynamicFileSz distinct
// from the mapping's capacity").
type Buffer struct {
	mu sync.Mutex

	file       *os.File
	mapped     []byte // len == maxInputSz, or nil when maxInputSz == 0
	size       uint64
	maxInputSz uint64
}

// New creates a Buffer backed by a close-on-exec temp file under workDir,
// pre-sized to maxInputSz and mapped once for the buffer's lifetime.
func New(maxInputSz uint64, workDir string) (*Buffer, error) {
	f, err := os.CreateTemp(workDir, "honggfuzz-input-*")
	if err != nil {
		return nil, fmt.Errorf("workerbuf: create temp file in %s: %w", workDir, err)
	}

	if err := f.Truncate(int64(maxInputSz)); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("workerbuf: truncate to capacity %d: %w", maxInputSz, err)
	}

	var mapped []byte
	if maxInputSz > 0 {
		mapped, err = unix.Mmap(int(f.Fd()), 0, int(maxInputSz), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			return nil, fmt.Errorf("workerbuf: mmap(cap=%d): %w", maxInputSz, err)
		}
	}

	return &Buffer{file: f, mapped: mapped, maxInputSz: maxInputSz}, nil
}

// SetSize implements the §4.4 contract: a no-op when sz already matches,
// fatal when sz exceeds the buffer's capacity, otherwise truncates the
// backing file to sz (skipped on darwin, where truncating a live mapping
// is slow, matching original_source/input.c's _HF_ARCH_DARWIN guard).
func (b *Buffer) SetSize(sz uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setSizeLocked(sz)
}

func (b *Buffer) setSizeLocked(sz uint64) {
	if b.size == sz {
		return
	}
	if sz > b.maxInputSz {
		fatalf("workerbuf: requested size %d > maxInputSz %d", sz, b.maxInputSz)
	}
	if runtime.GOOS != "darwin" {
		if err := b.file.Truncate(int64(sz)); err != nil {
			corpuslog.Warnf("workerbuf: ftruncate(fd=%d, sz=%d): %v", b.file.Fd(), sz, err)
		}
	}
	b.size = sz
}

// Size returns the current logical size.
func (b *Buffer) Size() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Bytes returns the logical content of the buffer. The returned slice
// aliases the mapping; callers must not retain it past the next mutation.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mapped[:b.size]
}

// CopyFrom resizes the buffer to len(data) and copies data into the
// mapping, matching input_prepareDynamicInput's setSize-then-memcpy pair.
func (b *Buffer) CopyFrom(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setSizeLocked(uint64(len(data)))
	copy(b.mapped[:len(data)], data)
}

// FillFrom reads up to limit bytes from r into the mapping and sets the
// logical size to the number of bytes actually read. limit must not
// exceed the buffer's capacity. Callers reading a whole external input
// (files_readFromFdSeek(fd, dynamicFile, maxInputSz, 0)) pass maxInputSz;
// callers bounded by a ramp step (files_readFileToBufMax(path,
// dynamicFile, dynamicFileSz)) pass the current logical size instead.
func (b *Buffer) FillFrom(r io.Reader, limit uint64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit > b.maxInputSz {
		fatalf("workerbuf: FillFrom limit %d > maxInputSz %d", limit, b.maxInputSz)
		return 0, nil
	}

	n, err := io.ReadFull(r, b.mapped[:limit])
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, fmt.Errorf("workerbuf: read: %w", err)
	}
	b.setSizeLocked(uint64(n))
	return n, nil
}

// Fd returns the underlying file descriptor, usable by a subprocess via
// the /dev/fd/<n> convention (spec.md §6).
func (b *Buffer) Fd() int { return int(b.file.Fd()) }

// Path returns the backing temp file's path.
func (b *Buffer) Path() string { return b.file.Name() }

// Close unmaps and removes the backing file.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if b.mapped != nil {
		if uerr := unix.Munmap(b.mapped); uerr != nil {
			err = fmt.Errorf("workerbuf: munmap: %w", uerr)
		}
		b.mapped = nil
	}
	if cerr := b.file.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("workerbuf: close: %w", cerr)
	}
	_ = os.Remove(b.file.Name())
	return err
}
