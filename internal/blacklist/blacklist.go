// Package blacklist loads the stack-hash blacklist (spec.md §4.7): a
// sorted list of 64-bit hex hashes identifying known crash signatures to
// suppress.
package blacklist

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/honggfuzz-go/corpus/internal/config"
	"github.com/honggfuzz-go/corpus/internal/corpuslog"
)

// fatalf is swapped out in tests so the sortedness/empty-file fatal
// paths don't tear down the test binary.
var fatalf = corpuslog.Fatalf

// Load reads path line by line, parsing each as a hexadecimal uint64 and
// appending it to feedback.Blacklist. Downstream consumers rely on the
// list being sorted ascending to apply interpolation search, so an
// out-of-order entry is fatal, matching LOG_F in
// original_source/input.c. An empty file is likewise fatal
// (spec.md §4.7, §7 ConfigurationError).
func Load(path string, feedback *config.FeedbackConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("blacklist: open %s: %w", path, err)
	}
	defer f.Close()

	var entries []uint64
	lineNo := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		line = strings.TrimPrefix(line, "0x")
		v, err := strconv.ParseUint(line, 16, 64)
		if err != nil {
			return fmt.Errorf("blacklist: %s:%d: malformed hex hash %q: %w", path, lineNo, line, err)
		}

		if len(entries) > 0 && v < entries[len(entries)-1] {
			fatalf("blacklist: %s:%d: entry %#x is smaller than the previous entry %#x; the blacklist must be sorted ascending",
				path, lineNo, v, entries[len(entries)-1])
			return fmt.Errorf("blacklist: %s: out-of-order entry", path)
		}

		entries = append(entries, v)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("blacklist: read %s: %w", path, err)
	}

	if len(entries) == 0 {
		fatalf("blacklist: %s: empty blacklist file", path)
		return fmt.Errorf("blacklist: %s: empty blacklist file", path)
	}

	feedback.BlacklistFile = path
	feedback.Blacklist = entries
	feedback.BlacklistCnt = uint64(len(entries))
	corpuslog.Debugf("blacklist: loaded %d stack hash(es) to the blacklist", feedback.BlacklistCnt)
	return nil
}
