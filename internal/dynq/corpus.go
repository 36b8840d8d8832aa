package dynq

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/honggfuzz-go/corpus/internal/config"
	"github.com/honggfuzz-go/corpus/internal/corpuslog"
)

// Persister is the coverage-addressed persistence side effect Add
// triggers after releasing its write lock (spec.md §4.2 step 6). covstore
// implements it; tests can substitute a fake to observe calls without
// touching a filesystem.
type Persister interface {
	WriteCovFile(dir string, data []byte) error
}

// Corpus is the dynamic corpus: an intrusive, coverage-ordered doubly
// linked list of DynInput records (spec.md §4.2), protected by a
// reader-writer lock. All mutating operations take the write lock; the
// critical sections are kept short, with copying and persistence done
// outside them (spec.md §5, §9 "Scoped acquisition").
type Corpus struct {
	global   *config.Global
	persist  Persister

	mu     sync.RWMutex
	head   *DynInput
	tail   *DynInput
	cursor *DynInput
	count  uint64
	maxSz  uint64

	// Advisory mirrors, read without the lock (spec.md §5, §9 "Atomic
	// counters as statistics, not synchronization").
	countPublished atomic.Uint64
	maxSzPublished atomic.Uint64
	lastCovUpdate  atomic.Int64
}

// New creates an empty Corpus bound to global. persist may be nil, in
// which case Add's persistence side effect is skipped entirely (useful
// for minimization-only or test callers that never configured an
// output directory).
func New(global *config.Global, persist Persister) *Corpus {
	return &Corpus{global: global, persist: persist}
}

// Count returns the advisory, lock-free entry count.
func (c *Corpus) Count() uint64 { return c.countPublished.Load() }

// MaxSize returns the advisory, lock-free largest observed entry size.
func (c *Corpus) MaxSize() uint64 { return c.maxSzPublished.Load() }

// LastCovUpdate returns the unix-second timestamp of the most recent Add.
func (c *Corpus) LastCovUpdate() int64 { return c.lastCovUpdate.Load() }

// Add inserts a copy of data into the corpus (spec.md §4.2). In
// config.StateDynamicMain, the new entry is prepended at the head and
// becomes the cursor unconditionally — the orphaned previous cursor's
// partial quota progress is simply lost, preserved verbatim per spec.md
// §9's first open question. Otherwise the entry is inserted in
// coverage-sorted position.
func (c *Corpus) Add(data []byte, cov CoverageTuple, path string, phase config.State) *DynInput {
	node := &DynInput{
		data: append([]byte(nil), data...),
		size: uint64(len(data)),
		cov:  cov,
		path: path,
	}

	c.mu.Lock()
	node.idx = c.count // transient; overwritten by the next Renumerate

	if phase == config.StateDynamicMain {
		c.pushFront(node)
		c.cursor = node
	} else {
		c.insertSorted(node)
	}

	c.count++
	if node.size > c.maxSz {
		c.maxSz = node.size
	}

	now := nowUnix()
	c.countPublished.Store(c.count)
	c.maxSzPublished.Store(c.maxSz)
	c.lastCovUpdate.Store(now)
	if c.global != nil {
		atomic.StoreUint64(&c.global.DynfileqCnt, c.count)
		atomic.StoreUint64(&c.global.DynfileqMaxSz, c.maxSz)
		c.global.LastCovUpdate = now
	}
	mainPhase := phase == config.StateDynamicMain
	c.mu.Unlock()

	c.persistAfterAdd(node, mainPhase)
	return node
}

// pushFront and insertSorted assume the caller already holds the write lock.

func (c *Corpus) pushFront(node *DynInput) {
	node.next = c.head
	node.prev = nil
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *Corpus) insertSorted(node *DynInput) {
	var iter *DynInput
	for iter = c.head; iter != nil; iter = iter.next {
		if cmpCov(node.cov, iter.cov) {
			break
		}
	}
	if iter == nil {
		// No element has strictly lower coverage; append at the tail.
		node.prev = c.tail
		node.next = nil
		if c.tail != nil {
			c.tail.next = node
		} else {
			c.head = node
		}
		c.tail = node
		return
	}

	node.prev = iter.prev
	node.next = iter
	if iter.prev != nil {
		iter.prev.next = node
	} else {
		c.head = node
	}
	iter.prev = node
}

// persistAfterAdd mirrors input_addDynamicInput's tail: it runs after the
// write lock is released, is skipped in minimize/socket-fuzzer mode, and
// in the main phase also mirrors into covDirNew and bumps newUnitsAdded.
func (c *Corpus) persistAfterAdd(node *DynInput, mainPhase bool) {
	if c.global == nil || c.persist == nil {
		return
	}
	if c.global.SocketFuzzer || c.global.Minimize {
		return
	}

	outDir := c.global.OutputDir
	if outDir == "" {
		outDir = c.global.InputDir
	}
	if err := c.persist.WriteCovFile(outDir, node.data); err != nil {
		corpuslog.Errorf("dynq: couldn't save coverage data to %q: %v", outDir, err)
	}

	if !mainPhase {
		return
	}
	atomic.AddUint64(&c.global.NewUnitsAdded, 1)

	if c.global.CovDirNew != "" {
		if err := c.persist.WriteCovFile(c.global.CovDirNew, node.data); err != nil {
			corpuslog.Errorf("dynq: couldn't save new coverage data to %q: %v", c.global.CovDirNew, err)
		}
	}
}

// Renumerate walks the list head to tail and assigns idx = count, ...,
// 1, so higher idx always means a better-ranked entry closer to the head
// (spec.md §4.2).
func (c *Corpus) Renumerate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.count
	for iter := c.head; iter != nil; iter = iter.next {
		iter.idx = idx
		idx--
	}
}

// nowUnix is a small indirection so Add's default timestamp source can be
// swapped out in tests without threading time.Now() through every call
// site.
var nowUnix = func() int64 { return time.Now().Unix() }
