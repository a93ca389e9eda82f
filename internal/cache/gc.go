package cache

import (
	"sort"
	"time"
)

// GCOptions mirrors the GC operation surface's flag set verbatim
// (spec.md §6): `max-src-age`, `max-crate-age`, `max-index-age`,
// `max-git-co-age`, `max-git-db-age`, `max-download-age`,
// `max-src-size`, `max-crate-size`, `max-git-size`,
// `max-download-size`. A zero value means "no threshold" for that
// dimension. `*DownloadAge`/`*DownloadSize` are an umbrella that
// applies to RegistryIndex and RegistryCrate only when the more
// specific `*IndexAge`/`*CrateSize`-style field is unset, since the
// original index/crate split is itself just "the two things that get
// downloaded."
type GCOptions struct {
	MaxSrcAge      time.Duration
	MaxCrateAge    time.Duration
	MaxIndexAge    time.Duration
	MaxGitCoAge    time.Duration
	MaxGitDbAge    time.Duration
	MaxDownloadAge time.Duration

	MaxSrcSize      uint64
	MaxCrateSize    uint64
	MaxGitSize      uint64
	MaxDownloadSize uint64
}

func (o GCOptions) ageFor(kind EntryKind) time.Duration {
	switch kind {
	case RegistrySrc:
		return o.MaxSrcAge
	case RegistryCrate:
		if o.MaxCrateAge > 0 {
			return o.MaxCrateAge
		}
		return o.MaxDownloadAge
	case RegistryIndex:
		if o.MaxIndexAge > 0 {
			return o.MaxIndexAge
		}
		return o.MaxDownloadAge
	case GitCheckout:
		return o.MaxGitCoAge
	case GitDb:
		return o.MaxGitDbAge
	default:
		return 0
	}
}

func (o GCOptions) sizeFor(kind EntryKind) uint64 {
	switch kind {
	case RegistrySrc:
		return o.MaxSrcSize
	case RegistryCrate:
		if o.MaxCrateSize > 0 {
			return o.MaxCrateSize
		}
		return o.MaxDownloadSize
	case RegistryIndex:
		return o.MaxDownloadSize
	case GitCheckout, GitDb:
		return o.MaxGitSize
	default:
		return 0
	}
}

// Protected reports whether a cache entry must never be evicted because
// some still-valid lockfile references it (spec.md Testable Property
// 10, "GC safety").
type Protected func(kind EntryKind, key string) bool

// Evicted is one entry GC decided to remove.
type Evicted struct {
	Entry  Entry
	Reason string // "age" or "size"
}

// Plan computes, without mutating the tracker or touching any file, the
// set of entries GC would evict under opts. Age-based eviction runs
// first per kind (anything older than the kind's threshold, unless
// protected); size-based eviction then runs per kind against whatever
// remains, evicting in increasing last_use order (oldest first) with
// ties broken by size descending -- "favor reclaiming big entries
// first" (spec.md §4.H) -- until the remaining total is at or under the
// kind's size threshold.
func Plan(t *Tracker, opts GCOptions, protected Protected, now time.Time) ([]Evicted, error) {
	if protected == nil {
		protected = func(EntryKind, string) bool { return false }
	}

	var evicted []Evicted
	for kind := range bucketNames {
		entries, err := t.Entries(kind)
		if err != nil {
			return nil, err
		}

		remaining := entries[:0:0]
		maxAge := opts.ageFor(kind)
		for _, e := range entries {
			if protected(kind, e.Key) {
				remaining = append(remaining, e)
				continue
			}
			if maxAge > 0 && now.Sub(e.LastUse) > maxAge {
				evicted = append(evicted, Evicted{Entry: e, Reason: "age"})
				continue
			}
			remaining = append(remaining, e)
		}

		maxSize := opts.sizeFor(kind)
		if maxSize == 0 {
			continue
		}
		sortForEviction(remaining)
		var total uint64
		for _, e := range remaining {
			total += e.Size
		}
		kept := remaining[:0:0]
		for _, e := range remaining {
			if total > maxSize && !protected(kind, e.Key) {
				evicted = append(evicted, Evicted{Entry: e, Reason: "size"})
				total -= e.Size
				continue
			}
			kept = append(kept, e)
		}
	}
	return evicted, nil
}

// sortForEviction orders entries increasing by last_use (oldest/
// least-recently-used first), ties broken by size descending.
func sortForEviction(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].LastUse.Equal(entries[j].LastUse) {
			return entries[i].LastUse.Before(entries[j].LastUse)
		}
		return entries[i].Size > entries[j].Size
	})
}

// Apply runs Plan and then, for every evicted entry, calls remove(kind,
// key) to delete the underlying file and removes the tracker's
// bookkeeping record. remove errors abort the run; entries already
// removed before the error stay removed (GC is not transactional across
// files, matching the teacher's per-bucket Bolt updates, each of which
// commits independently).
func Apply(t *Tracker, opts GCOptions, protected Protected, now time.Time, remove func(kind EntryKind, key string) error) ([]Evicted, error) {
	plan, err := Plan(t, opts, protected, now)
	if err != nil {
		return nil, err
	}
	for _, ev := range plan {
		if err := remove(ev.Entry.Kind, ev.Entry.Key); err != nil {
			return nil, err
		}
		if err := t.Remove(ev.Entry.Kind, ev.Entry.Key); err != nil {
			return nil, err
		}
	}
	return plan, nil
}
