// Package corpuslog provides the leveled logging the corpus engine writes
// through instead of returning an error from every call.
//
// The teacher (ivoronin/dupedog) never reaches for a structured-logging
// library: pipeline stages push non-fatal problems into a shared
// `errCh chan error` that one goroutine drains to stderr
// (cmd/dupedog/dedupe.go:drainErrors), and stats are rendered with plain
// fmt.Stringer + fmt.Fprintf. corpuslog keeps that shape but adds the four
// levels the fuzzer's original C source distinguishes (LOG_D/LOG_W/LOG_E/
// LOG_F in original_source/input.c), since the spec's error-kind taxonomy
// (§7) needs somewhere to land.
package corpuslog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// Level orders log severities; higher is more severe.
type Level int32

const (
	LevelDebug Level = iota
	LevelWarning
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "D"
	case LevelWarning:
		return "W"
	case LevelError:
		return "E"
	case LevelFatal:
		return "F"
	default:
		return "?"
	}
}

// exitFunc is swapped out in tests so Fatalf doesn't tear down the test binary.
var exitFunc = os.Exit

var (
	mu       sync.Mutex
	minLevel atomic.Int32
	out      io.Writer = os.Stderr
)

func init() {
	minLevel.Store(int32(LevelWarning))
}

// SetMinLevel controls which levels actually print; it's read with relaxed
// atomics the same way the corpus engine reads fileCnt/newUnitsAdded — it's
// advisory configuration, not a synchronization point.
func SetMinLevel(l Level) {
	minLevel.Store(int32(l))
}

func shouldLog(l Level) bool {
	return int32(l) >= minLevel.Load()
}

func logf(l Level, format string, args ...any) {
	if !shouldLog(l) {
		return
	}
	mu.Lock()
	fmt.Fprintf(out, "[%s] %s\n", l, fmt.Sprintf(format, args...))
	mu.Unlock()
}

// Debugf logs a TransientIOError-adjacent diagnostic: verbose, never fatal.
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }

// Warnf logs a ConfigurationError/TransientIOError/CapacityExhausted: the
// caller recovers and continues.
func Warnf(format string, args ...any) { logf(LevelWarning, format, args...) }

// Errorf logs a PersistenceFailure: the triggering operation (e.g. an Add)
// still succeeds, only the side-effect failed.
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }

// Fatalf logs an InvariantViolation or BufferTooLarge and terminates the
// process, mirroring LOG_F in original_source/input.c: these indicate a
// caller bug, not a recoverable condition.
func Fatalf(format string, args ...any) {
	logf(LevelFatal, format, args...)
	exitFunc(1)
}
