package covstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"github.com/opencontainers/go-digest"

	"github.com/honggfuzz-go/corpus/internal/corpuslog"
)

const bucketName = "written"

// digestKey identifies a buffer by content for the index, replacing the
// teacher's (path, size, ino, mtime, range) filesystem-identity key
// (internal/cache/cache.go:makeKey) with a pure content digest, since the
// persister addresses by bytes, not by filesystem location.
func digestKey(data []byte) digest.Digest {
	return digest.FromBytes(data)
}

// Index is a self-cleaning on-disk record of which content digests have
// already been written to a given output directory, adapted directly
// from the teacher's two-database cache (internal/cache/cache.go): a
// read-only database from the previous run and a freshly created
// write database for this run, atomically swapped in on Close. Only
// entries actually looked up this run survive into the next one.
//
// The index is advisory: Seen returning false never blocks a write, it
// only means Store.WriteCovFile must fall through to the real O_EXCL
// create on the filesystem, so a missing or corrupt index can never make the
// idempotency guarantee in spec.md §4.5 weaker.
type Index struct {
	readDB  *bolt.DB
	writeDB *bolt.DB
	path    string
	enabled bool
}

// OpenIndex opens path's existing index for reading (if present) and
// creates a fresh "<path>.new" database for writing. An empty path
// disables the index.
func OpenIndex(path string) (*Index, error) {
	if path == "" {
		return &Index{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("covstore: create index dir: %w", err)
	}

	idx := &Index{path: path, enabled: true}

	if _, statErr := os.Stat(path); statErr == nil {
		db, err := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true, Timeout: time.Second})
		if err == nil {
			idx.readDB = db
		}
	}

	writeDB, err := bolt.Open(path+".new", 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("covstore: create new index (locked by another instance?): %w", err)
	}
	idx.writeDB = writeDB

	if err := idx.writeDB.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("covstore: create index bucket: %w", err)
	}

	return idx, nil
}

// Seen reports whether key was previously recorded. A hit is copied
// forward into the write database (self-cleaning).
func (idx *Index) Seen(key digest.Digest) bool {
	if !idx.enabled || idx.readDB == nil {
		return false
	}

	found := false
	_ = idx.readDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		found = b.Get([]byte(key.String())) != nil
		return nil
	})
	if !found {
		return false
	}

	idx.MarkSeen(key)
	return true
}

// MarkSeen records key in the write database.
func (idx *Index) MarkSeen(key digest.Digest) {
	if !idx.enabled || idx.writeDB == nil {
		return
	}
	if err := idx.writeDB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Put([]byte(key.String()), []byte{1})
	}); err != nil {
		corpuslog.Errorf("covstore: index store: %v", err)
	}
}

// Close closes both databases and atomically replaces the prior index
// with this run's write database, mirroring cache.Cache.Close.
func (idx *Index) Close() error {
	var errs []error
	if idx.readDB != nil {
		if err := idx.readDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if idx.writeDB != nil {
		if err := idx.writeDB.Close(); err != nil {
			errs = append(errs, err)
		} else if idx.path != "" {
			if err := os.Rename(idx.path+".new", idx.path); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
