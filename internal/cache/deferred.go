package cache

import (
	"sync"
	"time"
)

// DeferredLastUse buffers Touch calls in memory for the duration of one
// run, so hot-path readers don't take a database write lock per access.
// Flush writes the accumulated touches to a Tracker, one Tracker.Touch
// (and so one database transaction) per buffered entry; callers are expected to hold a MutateExclusive internal/filelock
// guard across the Flush call (spec.md §4.H: "updated in two phases:
// in-memory DeferredGlobalLastUse during a run, then flushed under the
// cache lock on commit").
type DeferredLastUse struct {
	mu      sync.Mutex
	touches map[string]touch
}

type touch struct {
	kind    EntryKind
	key     string
	size    uint64
	lastUse time.Time
}

// NewDeferredLastUse returns an empty buffer.
func NewDeferredLastUse() *DeferredLastUse {
	return &DeferredLastUse{touches: make(map[string]touch)}
}

// Touch records, in memory only, that key (of kind, with the given
// size) was used at now. A later touch of the same (kind, key)
// overwrites the earlier one rather than accumulating.
func (d *DeferredLastUse) Touch(kind EntryKind, key string, size uint64, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touches[bufferKey(kind, key)] = touch{kind: kind, key: key, size: size, lastUse: now}
}

func bufferKey(kind EntryKind, key string) string {
	return string([]byte{byte(kind)}) + key
}

// Len reports how many distinct entries have been touched since the
// last Flush.
func (d *DeferredLastUse) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.touches)
}

// Flush writes every buffered touch to t in a single pass and clears
// the buffer. The caller must already hold the appropriate
// internal/filelock guard; Flush performs no locking of its own.
func (d *DeferredLastUse) Flush(t *Tracker) error {
	d.mu.Lock()
	pending := d.touches
	d.touches = make(map[string]touch)
	d.mu.Unlock()

	for _, tc := range pending {
		if err := t.Touch(tc.kind, tc.key, tc.size, tc.lastUse); err != nil {
			return err
		}
	}
	return nil
}
