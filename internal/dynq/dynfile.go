// Package dynq implements the dynamic corpus and its selection policy
// (spec.md §4.2, §4.3): an intrusive, coverage-ordered doubly-linked list
// of DynInput records, mutated under a reader-writer lock, plus the
// quota-based iteration that decides what a worker tests next.
//
// This is the core of the engine and has no direct teacher analogue —
// the teacher's only comparable structure, types.Sorted[T,K], is built
// once from a completed slice and never mutated again, the wrong shape
// for a list that grows concurrently and occasionally re-heads itself.
// It is grounded instead on the concurrency idioms the teacher applies
// throughout (a short critical section under a lock, with copies and
// I/O done outside it — see verifier.Verify's sync.RWMutex-guarded
// stats) and on original_source/input.c's exact algorithm
// (input_cmpCov, input_numTests, input_addDynamicInput,
// input_prepareDynamicInput, input_renumerateInputs,
// input_prepareDynamicFileForMinimization) for everything spec.md only
// summarizes.
package dynq

import "github.com/honggfuzz-go/corpus/internal/corpuslog"

// fatalf is swapped out in tests so the invariant-violation paths below
// don't tear down the test binary (mirrors workerbuf's identical hook
// over corpuslog.Fatalf).
var fatalf = corpuslog.Fatalf

// CoverageTuple is the opaque 4-tuple of coverage metrics the feedback
// layer (out of scope per spec.md §1) hands the engine. Index 0 is the
// most significant for ordering purposes.
type CoverageTuple [4]uint64

// cmpCov reports whether a is strictly greater than b under the
// lexicographic comparator spec.md §4.2 defines: the first differing
// index decides, and equal tuples compare as "not greater".
func cmpCov(a, b CoverageTuple) bool {
	for i := range a {
		if a[i] > b[i] {
			return true
		}
		if a[i] < b[i] {
			return false
		}
	}
	return false
}

// DynInput is one entry of the dynamic corpus (spec.md §3). The prev/next
// pointers make the corpus an intrusive list: Corpus owns every DynInput
// it contains and is the only thing that ever mutates them.
type DynInput struct {
	data []byte
	size uint64
	cov  CoverageTuple
	idx  uint64
	tested uint64
	path string

	prev, next *DynInput
}

// Data returns the entry's owned byte buffer. Callers must treat it as
// read-only; the corpus never mutates an entry's bytes after insertion.
func (d *DynInput) Data() []byte { return d.data }

// Size returns the entry's byte length.
func (d *DynInput) Size() uint64 { return d.size }

// Cov returns the entry's coverage tuple.
func (d *DynInput) Cov() CoverageTuple { return d.cov }

// Idx returns the entry's current rank, valid only between renumerations.
func (d *DynInput) Idx() uint64 { return d.idx }

// Path returns the entry's provenance string.
func (d *DynInput) Path() string { return d.path }

// testQuota computes the number of selections an entry at idx (out of
// count total) receives before the cursor advances past it (spec.md
// §4.3). idx > count is a programmer error and is fatal, matching
// input_numTests's LOG_F.
func testQuota(idx, count uint64) uint64 {
	if idx > count {
		fatalf("idx (%d) > count (%d)", idx, count)
	}
	percentile := idx * 100 / count
	switch {
	case percentile <= 90:
		return 1
	case percentile <= 92:
		return 2
	case percentile <= 94:
		return 3
	case percentile <= 96:
		return 4
	case percentile <= 98:
		return 5
	default: // 99-100
		return 10
	}
}
