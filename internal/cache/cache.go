// Package cache implements the global content-addressed cache tracker:
// last-use timestamps and sizes for downloaded registry indexes,
// tarballs, unpacked sources, and git checkouts, plus size/age garbage
// collection over them (spec.md §4.H, component H).
//
// Grounded directly on the teacher's internal/gps/source_cache_bolt.go
// boltCache/singleSourceCacheBolt bucket layout, adapted from
// per-source version/revision caching to this spec's flat entry-kind
// model. Library: github.com/boltdb/bolt.
package cache

import (
	"encoding/binary"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

// EntryKind classifies one tracked cache entry (spec.md §3 "Global
// cache entry").
type EntryKind uint8

const (
	RegistryIndex EntryKind = iota
	RegistryCrate
	RegistrySrc
	GitDb
	GitCheckout
)

func (k EntryKind) String() string {
	switch k {
	case RegistryIndex:
		return "registry-index"
	case RegistryCrate:
		return "registry-crate"
	case RegistrySrc:
		return "registry-src"
	case GitDb:
		return "git-db"
	case GitCheckout:
		return "git-checkout"
	default:
		return "unknown"
	}
}

var bucketNames = map[EntryKind][]byte{
	RegistryIndex: []byte("registry-index"),
	RegistryCrate: []byte("registry-crate"),
	RegistrySrc:   []byte("registry-src"),
	GitDb:         []byte("git-db"),
	GitCheckout:   []byte("git-checkout"),
}

// Entry is one tracked cache item, keyed by its on-disk directory/file
// name.
type Entry struct {
	Kind    EntryKind
	Key     string
	Size    uint64
	LastUse time.Time
}

// Tracker is the last-use/size database backing one cache root. It is
// safe for concurrent use from goroutines within this process; the
// cross-process write discipline (writes only under MutateExclusive,
// reads allowed under DownloadExclusive) is enforced by callers using
// internal/filelock, not by Tracker itself -- the two components are
// deliberately independent per spec.md §4.H/§4.I.
type Tracker struct {
	db *bolt.DB
}

// Open returns a Tracker backed by a BoltDB file under cacheDir.
func Open(cacheDir string) (*Tracker, error) {
	path := filepath.Join(cacheDir, "cache-tracker.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open cache tracker database %q", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range bucketNames {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "failed to create bucket %q", name)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Tracker{db: db}, nil
}

// Close releases the tracker's database file.
func (t *Tracker) Close() error {
	return errors.Wrap(t.db.Close(), "failed to close cache tracker database")
}

// encodeRecord produces the fixed 16-byte encoding of (size uint64, last_use
// unix-nano int64) stored as a bucket value.
func encodeRecord(size uint64, lastUse time.Time) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], size)
	binary.BigEndian.PutUint64(buf[8:], uint64(lastUse.UnixNano()))
	return buf
}

func decodeRecord(b []byte) (size uint64, lastUse time.Time, ok bool) {
	if len(b) != 16 {
		return 0, time.Time{}, false
	}
	size = binary.BigEndian.Uint64(b[:8])
	lastUse = time.Unix(0, int64(binary.BigEndian.Uint64(b[8:])))
	return size, lastUse, true
}

// Touch records that key (of the given kind and size) was used at now,
// creating the entry if it did not already exist.
func (t *Tracker) Touch(kind EntryKind, key string, size uint64, now time.Time) error {
	name, ok := bucketNames[kind]
	if !ok {
		return errors.Errorf("cache: unknown entry kind %v", kind)
	}
	return t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(name)
		return b.Put([]byte(key), encodeRecord(size, now))
	})
}

// Remove deletes a tracked entry's bookkeeping record (not the
// underlying file -- that is the GC caller's job once it has decided to
// evict).
func (t *Tracker) Remove(kind EntryKind, key string) error {
	name, ok := bucketNames[kind]
	if !ok {
		return errors.Errorf("cache: unknown entry kind %v", kind)
	}
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(name).Delete([]byte(key))
	})
}

// Entries returns every tracked entry of the given kind.
func (t *Tracker) Entries(kind EntryKind) ([]Entry, error) {
	name, ok := bucketNames[kind]
	if !ok {
		return nil, errors.Errorf("cache: unknown entry kind %v", kind)
	}
	var out []Entry
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(name)
		return b.ForEach(func(k, v []byte) error {
			size, lastUse, ok := decodeRecord(v)
			if !ok {
				return nil
			}
			out = append(out, Entry{Kind: kind, Key: string(k), Size: size, LastUse: lastUse})
			return nil
		})
	})
	return out, err
}

// All returns every tracked entry across every kind.
func (t *Tracker) All() ([]Entry, error) {
	var out []Entry
	for kind := range bucketNames {
		es, err := t.Entries(kind)
		if err != nil {
			return nil, err
		}
		out = append(out, es...)
	}
	return out, nil
}
