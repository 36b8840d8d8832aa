// Package dict loads the mutator's dictionary file (spec.md §4.6):
// quote-delimited, C-escaped literal byte-strings, one per line.
package dict

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/honggfuzz-go/corpus/internal/config"
	"github.com/honggfuzz-go/corpus/internal/corpuslog"
)

// Load reads path line by line and appends decoded entries to the
// mutate config's dictionary array up to config.MaxDictionaryEntries,
// using bufio.Scanner the way the teacher reads line-oriented input
// elsewhere (cmd/dupedog reads its options from flags, not files, but
// scanner-over-a-file is the idiomatic Go shape for this and is used the
// same way across the retrieval pack).
func Load(path string, mutate *config.MutateConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("dict: open %s: %w", path, err)
	}
	defer f.Close()

	lineNo := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		first := strings.IndexByte(line, '"')
		last := strings.LastIndexByte(line, '"')
		if first < 0 || last <= first {
			corpuslog.Warnf("dict: %s:%d: malformed line (missing quotes), skipping", path, lineNo)
			continue
		}

		content := line[first+1 : last]
		decoded := decodeCString(content)
		if len(decoded) > config.MaxDictEntryLen {
			decoded = decoded[:config.MaxDictEntryLen]
		}

		if uint32(len(mutate.Dictionary)) >= config.MaxDictionaryEntries {
			corpuslog.Warnf("dict: %s:%d: dictionary is full (%d entries), discarding further entries",
				path, lineNo, config.MaxDictionaryEntries)
			continue
		}

		mutate.Dictionary = append(mutate.Dictionary, config.DictEntry{Val: decoded, Len: len(decoded)})
		atomic.AddUint32(&mutate.DictionaryCnt, 1)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("dict: read %s: %w", path, err)
	}

	mutate.DictionaryFile = path
	corpuslog.Debugf("dict: loaded %d dictionary entries from %q", len(mutate.Dictionary), path)
	return nil
}
