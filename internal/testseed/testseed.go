// Package testseed builds throwaway seed-directory fixtures for tests.
//
// Adapted from the teacher's testfs.SowFileTree/writeChunkedFile (a
// declarative spec -> temp-directory writer used to set up duplicate-file
// trees across multiple volumes). The corpus engine only ever scans a
// single flat input directory, so the volume/hardlink/symlink machinery
// that existed to test cross-device deduplication is gone; what remains is
// the streaming, pattern-filled chunk writer, which is still the cheapest
// way to produce large deterministic seed files without holding them all
// in memory.
package testseed

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dustin/go-humanize"
)

// Chunk fills a region of a file with a repeated pattern byte.
type Chunk struct {
	Pattern byte
	Size    string // IEC/SI size string, parsed via go-humanize (e.g. "1MiB", "200")
}

// File describes one seed file to create.
//
// Exactly one of Data or Chunks should be set: Data for small,
// explicitly-valued fixtures; Chunks for large, pattern-filled ones.
type File struct {
	Name   string
	Data   []byte
	Chunks []Chunk
}

// Build creates dir (if needed) and populates it with the given files,
// returning the directory path for convenience chaining.
func Build(t *testing.T, dir string, files []File) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("testseed: mkdir %s: %v", dir, err)
	}
	for _, f := range files {
		path := filepath.Join(dir, f.Name)
		if err := writeFile(path, f); err != nil {
			t.Fatalf("testseed: write %s: %v", path, err)
		}
	}
	return dir
}

// BuildDir is a convenience wrapper that creates a fresh t.TempDir() and
// populates it, returning the directory path.
func BuildDir(t *testing.T, files []File) string {
	t.Helper()
	return Build(t, t.TempDir(), files)
}

func writeFile(path string, f File) (err error) {
	if len(f.Data) > 0 && len(f.Chunks) > 0 {
		return fmt.Errorf("%s: Data and Chunks are mutually exclusive", f.Name)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if len(f.Chunks) == 0 {
		_, err = out.Write(f.Data)
		return err
	}
	for _, c := range f.Chunks {
		if err := writeChunk(out, c); err != nil {
			return err
		}
	}
	return nil
}

// writeChunk streams size bytes of the pattern byte to f, buffering in
// at most 1MiB at a time so multi-gigabyte fixtures don't need to be
// materialized in RAM.
func writeChunk(f *os.File, c Chunk) error {
	const maxBufSize = 1 << 20

	size, err := humanize.ParseBytes(c.Size)
	if err != nil {
		return fmt.Errorf("parse chunk size %q: %w", c.Size, err)
	}

	bufSize := int(size)
	if bufSize > maxBufSize {
		bufSize = maxBufSize
	}
	buf := bytes.Repeat([]byte{c.Pattern}, bufSize)

	remaining := int64(size)
	for remaining > 0 {
		toWrite := int64(len(buf))
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			return err
		}
		remaining -= toWrite
	}
	return nil
}
