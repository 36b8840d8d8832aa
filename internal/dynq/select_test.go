//go:build unix

package dynq

import (
	"bytes"
	"testing"

	"github.com/honggfuzz-go/corpus/internal/config"
	"github.com/honggfuzz-go/corpus/internal/seeddir"
	"github.com/honggfuzz-go/corpus/internal/testseed"
	"github.com/honggfuzz-go/corpus/internal/workerbuf"
)

// TestQuotaScheduling mirrors spec.md §8 scenario 5.
func TestQuotaScheduling(t *testing.T) {
	if got := testQuota(100, 100); got != 10 {
		t.Errorf("testQuota(100, 100) = %d, want 10", got)
	}
	if got := testQuota(50, 100); got != 1 {
		t.Errorf("testQuota(50, 100) = %d, want 1", got)
	}
}

func TestQuotaBucketBoundaries(t *testing.T) {
	cases := []struct {
		idx, count, want uint64
	}{
		{90, 100, 1},
		{91, 100, 2},
		{92, 100, 2},
		{93, 100, 3},
		{94, 100, 3},
		{95, 100, 4},
		{96, 100, 4},
		{97, 100, 5},
		{98, 100, 5},
		{99, 100, 10},
	}
	for _, tc := range cases {
		if got := testQuota(tc.idx, tc.count); got != tc.want {
			t.Errorf("testQuota(%d, %d) = %d, want %d", tc.idx, tc.count, got, tc.want)
		}
	}
}

func TestQuotaFatalWhenIdxExceedsCount(t *testing.T) {
	old := fatalf
	defer func() { fatalf = old }()
	called := false
	fatalf = func(format string, args ...any) { called = true }

	testQuota(101, 100)
	if !called {
		t.Fatal("testQuota(101, 100) did not trigger the fatal path")
	}
}

func newBuffer(t *testing.T, maxInputSz uint64) *workerbuf.Buffer {
	t.Helper()
	b, err := workerbuf.New(maxInputSz, t.TempDir())
	if err != nil {
		t.Fatalf("workerbuf.New: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestPrepareDynamicCopiesCurrentEntry(t *testing.T) {
	g := &config.Global{}
	c := New(g, nil)
	c.Add([]byte("first"), CoverageTuple{1, 0, 0, 0}, "first", config.StateDynamicDryRun)
	c.Renumerate()

	buf := newBuffer(t, 4096)
	run := &config.Run{Global: g}

	c.PrepareDynamic(run, buf, false, nil)

	if string(buf.Bytes()) != "first" {
		t.Fatalf("buf = %q, want %q", buf.Bytes(), "first")
	}
}

func TestPrepareDynamicAdvancesCursorAfterQuota(t *testing.T) {
	g := &config.Global{}
	c := New(g, nil)
	// Two entries, count=2: idx 2 and 1 after renumerate. "a" (idx 2) is at
	// percentile 100 (quota=10); "b" (idx 1) is at percentile 50 (quota=1).
	c.Add([]byte("a"), CoverageTuple{2, 0, 0, 0}, "a", config.StateDynamicDryRun)
	c.Add([]byte("b"), CoverageTuple{1, 0, 0, 0}, "b", config.StateDynamicDryRun)
	c.Renumerate()

	buf := newBuffer(t, 4096)
	run := &config.Run{Global: g}

	var seen []string
	for i := 0; i < 12; i++ {
		c.PrepareDynamic(run, buf, false, nil)
		seen = append(seen, string(buf.Bytes()))
	}
	// The cursor stays on "a" for its 10 selections, advances to "b" for
	// one, then walks off the end and re-heads onto "a".
	want := []string{"a", "a", "a", "a", "a", "a", "a", "a", "a", "a", "b", "a"}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("selection sequence = %v, want %v", seen, want)
		}
	}
}

func TestPrepareDynamicForMinimizationWalksToEnd(t *testing.T) {
	g := &config.Global{}
	c := New(g, nil)
	c.Add([]byte("a"), CoverageTuple{1, 0, 0, 0}, "a", config.StateDynamicDryRun)
	c.Add([]byte("b"), CoverageTuple{2, 0, 0, 0}, "b", config.StateDynamicDryRun)

	buf := newBuffer(t, 4096)
	run := &config.Run{Global: g}

	var got []string
	for {
		ok := c.PrepareDynamicForMinimization(run, buf)
		if !ok {
			break
		}
		got = append(got, run.OrigFileName)
	}

	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("minimization walk = %v, want [b a]", got)
	}
}

func TestShouldReadNewFileDryRunRamp(t *testing.T) {
	g := &config.Global{MaxInputSz: 4096}
	run := &config.Run{Global: g}
	buf := newBuffer(t, 4096)

	if !shouldReadNewFile(run, config.StateDynamicDryRun, false, buf) {
		t.Fatal("first dry-run call should report true (new seed needed)")
	}
	if buf.Size() != 1024 {
		t.Fatalf("first ramp size = %d, want 1024", buf.Size())
	}
	if !run.StaticFileTryMore {
		t.Fatal("StaticFileTryMore should be set after the first dry-run call")
	}

	if shouldReadNewFile(run, config.StateDynamicDryRun, false, buf) {
		t.Fatal("second dry-run call should report false (ramping the same seed)")
	}
	if buf.Size() != 2048 {
		t.Fatalf("second ramp size = %d, want 2048", buf.Size())
	}

	if shouldReadNewFile(run, config.StateDynamicDryRun, false, buf) {
		t.Fatal("third dry-run call should report false (still ramping)")
	}
	if buf.Size() != 4096 {
		t.Fatalf("third ramp size = %d, want 4096 (clamped to maxInputSz)", buf.Size())
	}
	if run.StaticFileTryMore {
		t.Fatal("StaticFileTryMore should clear once the ramp reaches maxInputSz")
	}
}

func TestShouldReadNewFileMainPhaseAlwaysFullSize(t *testing.T) {
	g := &config.Global{MaxInputSz: 2048}
	run := &config.Run{Global: g}
	buf := newBuffer(t, 2048)

	if !shouldReadNewFile(run, config.StateDynamicMain, false, buf) {
		t.Fatal("main phase should always report true (fresh seed every call)")
	}
	if buf.Size() != 2048 {
		t.Fatalf("main phase size = %d, want maxInputSz (2048)", buf.Size())
	}
}

func TestPrepareStaticFileReadsSeedContent(t *testing.T) {
	dir := testseed.BuildDir(t, []testseed.File{
		{Name: "seed", Data: []byte("the quick brown fox")},
	})
	g := &config.Global{InputDir: dir, MaxFileSz: 4096}
	if err := (func() error {
		s := seeddir.New(g, false)
		if err := s.Initialize(); err != nil {
			return err
		}
		run := &config.Run{Global: g}
		buf := newBuffer(t, 4096)

		ok, err := PrepareStaticFile(run, buf, s, config.StateDynamicMain, false, false, false, nil)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatal("PrepareStaticFile returned ok=false for a populated seed directory")
		}
		if string(buf.Bytes()) != "the quick brown fox" {
			t.Fatalf("buf = %q, want seed content", buf.Bytes())
		}
		if run.OrigFileName != "seed" {
			t.Fatalf("OrigFileName = %q, want %q", run.OrigFileName, "seed")
		}
		return nil
	})(); err != nil {
		t.Fatal(err)
	}
}

// TestPrepareStaticFileDryRunRampTruncatesReads exercises PrepareStaticFile
// under StateDynamicDryRun against a seed bigger than the first ramp step,
// asserting that each call actually truncates the read to the ramp size
// rather than reading the whole file every time (the bug FillFrom's limit
// parameter was introduced to fix: previously every ramp step still read
// the full file because FillFrom was bounded by maxInputSz, not by the
// ramp-set buffer size).
func TestPrepareStaticFileDryRunRampTruncatesReads(t *testing.T) {
	seedData := bytes.Repeat([]byte("A"), 3000)
	dir := testseed.BuildDir(t, []testseed.File{
		{Name: "big", Data: seedData},
	})
	g := &config.Global{InputDir: dir, MaxInputSz: 4096}
	s := seeddir.New(g, false)
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	run := &config.Run{Global: g}
	buf := newBuffer(t, 4096)

	// First call: ramp step 1024, truncated even though the seed is 3000 bytes.
	ok, err := PrepareStaticFile(run, buf, s, config.StateDynamicDryRun, false, false, false, nil)
	if err != nil || !ok {
		t.Fatalf("first PrepareStaticFile = (%v, %v), want (true, nil)", ok, err)
	}
	if buf.Size() != 1024 {
		t.Fatalf("buf.Size() after first ramp step = %d, want 1024", buf.Size())
	}
	if !bytes.Equal(buf.Bytes(), seedData[:1024]) {
		t.Fatalf("buf.Bytes() after first ramp step is not the first 1024 bytes of the seed")
	}

	// Second call: same seed, ramp step doubles to 2048, still truncated.
	ok, err = PrepareStaticFile(run, buf, s, config.StateDynamicDryRun, false, false, false, nil)
	if err != nil || !ok {
		t.Fatalf("second PrepareStaticFile = (%v, %v), want (true, nil)", ok, err)
	}
	if buf.Size() != 2048 {
		t.Fatalf("buf.Size() after second ramp step = %d, want 2048", buf.Size())
	}
	if !bytes.Equal(buf.Bytes(), seedData[:2048]) {
		t.Fatalf("buf.Bytes() after second ramp step is not the first 2048 bytes of the seed")
	}

	// Third call: ramp step would double to 4096, within maxInputSz, still
	// bounded by the seed's own 3000 bytes (io.ReadFull short-reads).
	ok, err = PrepareStaticFile(run, buf, s, config.StateDynamicDryRun, false, false, false, nil)
	if err != nil || !ok {
		t.Fatalf("third PrepareStaticFile = (%v, %v), want (true, nil)", ok, err)
	}
	if buf.Size() != 3000 {
		t.Fatalf("buf.Size() after third ramp step = %d, want 3000 (whole seed)", buf.Size())
	}
	if !bytes.Equal(buf.Bytes(), seedData) {
		t.Fatalf("buf.Bytes() after third ramp step is not the whole seed")
	}
	if run.StaticFileTryMore {
		t.Fatal("StaticFileTryMore should clear once the seed is read in full")
	}
}

func TestPrepareStaticFileExhaustedWithoutRewind(t *testing.T) {
	dir := testseed.BuildDir(t, []testseed.File{{Name: "only", Data: []byte("x")}})
	g := &config.Global{InputDir: dir, MaxFileSz: 4096}
	s := seeddir.New(g, false)
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	run := &config.Run{Global: g}
	buf := newBuffer(t, 4096)

	ok, err := PrepareStaticFile(run, buf, s, config.StateDynamicMain, false, false, false, nil)
	if err != nil || !ok {
		t.Fatalf("first PrepareStaticFile = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = PrepareStaticFile(run, buf, s, config.StateDynamicMain, false, false, false, nil)
	if err != nil {
		t.Fatalf("second PrepareStaticFile error: %v", err)
	}
	if ok {
		t.Fatal("second PrepareStaticFile should report ok=false once the directory is exhausted")
	}
}
