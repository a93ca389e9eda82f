package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestTouchAndEntries(t *testing.T) {
	tr := openTestTracker(t)
	now := time.Unix(1_700_000_000, 0)

	if err := tr.Touch(RegistryCrate, "bar-0.0.1", 128, now); err != nil {
		t.Fatal(err)
	}
	if err := tr.Touch(RegistryCrate, "baz-0.0.1", 256, now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	entries, err := tr.Entries(RegistryCrate)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	other, err := tr.Entries(GitDb)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Fatalf("GitDb bucket should be empty, got %d", len(other))
	}
}

func TestRemove(t *testing.T) {
	tr := openTestTracker(t)
	now := time.Now()
	if err := tr.Touch(GitCheckout, "repo-abc123", 10, now); err != nil {
		t.Fatal(err)
	}
	if err := tr.Remove(GitCheckout, "repo-abc123"); err != nil {
		t.Fatal(err)
	}
	entries, err := tr.Entries(GitCheckout)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("entry should have been removed, got %v", entries)
	}
}

func TestDeferredLastUseFlush(t *testing.T) {
	tr := openTestTracker(t)
	d := NewDeferredLastUse()
	now := time.Now()

	d.Touch(RegistrySrc, "foo-1.0.0", 500, now)
	d.Touch(RegistrySrc, "foo-1.0.0", 500, now.Add(time.Minute)) // overwrite, not accumulate
	d.Touch(RegistrySrc, "bar-2.0.0", 100, now)

	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}

	if err := d.Flush(tr); err != nil {
		t.Fatal(err)
	}
	if d.Len() != 0 {
		t.Fatalf("buffer should be empty after Flush, got %d", d.Len())
	}

	entries, err := tr.Entries(RegistrySrc)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries after flush, want 2", len(entries))
	}
}

func TestGCAgeEviction(t *testing.T) {
	tr := openTestTracker(t)
	now := time.Now()

	tr.Touch(RegistryCrate, "stale", 1, now.Add(-48*time.Hour))
	tr.Touch(RegistryCrate, "fresh", 1, now)

	plan, err := Plan(tr, GCOptions{MaxCrateAge: 24 * time.Hour}, nil, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan) != 1 || plan[0].Entry.Key != "stale" || plan[0].Reason != "age" {
		t.Fatalf("Plan() = %+v, want exactly [stale/age]", plan)
	}
}

func TestGCSizeEvictionOldestFirst(t *testing.T) {
	tr := openTestTracker(t)
	now := time.Now()

	tr.Touch(RegistryCrate, "oldest", 50, now.Add(-3*time.Hour))
	tr.Touch(RegistryCrate, "middle", 50, now.Add(-2*time.Hour))
	tr.Touch(RegistryCrate, "newest", 50, now.Add(-1*time.Hour))

	// Total is 150; cap at 100 should evict the single oldest entry
	// first, leaving 100 which is within budget.
	plan, err := Plan(tr, GCOptions{MaxCrateSize: 100}, nil, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan) != 1 || plan[0].Entry.Key != "oldest" {
		t.Fatalf("Plan() = %+v, want exactly [oldest]", plan)
	}
}

func TestGCProtectedEntriesNeverEvicted(t *testing.T) {
	tr := openTestTracker(t)
	now := time.Now()

	tr.Touch(RegistryCrate, "locked-dep", 1000, now.Add(-100*24*time.Hour))

	protected := func(kind EntryKind, key string) bool {
		return kind == RegistryCrate && key == "locked-dep"
	}

	plan, err := Plan(tr, GCOptions{MaxCrateAge: time.Hour, MaxCrateSize: 1}, protected, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan) != 0 {
		t.Fatalf("Plan() = %+v, want no evictions for a protected entry", plan)
	}
}

func TestApplyRemovesTrackerRecord(t *testing.T) {
	tr := openTestTracker(t)
	now := time.Now()
	tr.Touch(RegistryCrate, "gone", 1, now.Add(-72*time.Hour))

	var removedPaths []string
	plan, err := Apply(tr, GCOptions{MaxCrateAge: time.Hour}, nil, now, func(kind EntryKind, key string) error {
		removedPaths = append(removedPaths, filepath.Join(kind.String(), key))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan) != 1 {
		t.Fatalf("plan len = %d, want 1", len(plan))
	}
	if len(removedPaths) != 1 {
		t.Fatalf("remove callback invoked %d times, want 1", len(removedPaths))
	}
	entries, err := tr.Entries(RegistryCrate)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("tracker record should have been removed, got %v", entries)
	}
}

func TestParseAge(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"5days", 5 * 24 * time.Hour},
		{"3 weeks", 3 * 7 * 24 * time.Hour},
		{"1hour", time.Hour},
		{"30minutes", 30 * time.Minute},
	}
	for _, c := range cases {
		got, err := ParseAge(c.in)
		if err != nil {
			t.Errorf("ParseAge(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseAge(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseAgeRejectsUnknownUnit(t *testing.T) {
	if _, err := ParseAge("5fortnights"); err == nil {
		t.Fatal("expected an error for an unknown unit")
	}
}

func TestParseSize(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"100", 100},
		{"1KB", 1024},
		{"2MB", 2 << 20},
		{"1GB", 1 << 30},
		{"512K", 512 * 1024},
	}
	for _, c := range cases {
		got, err := ParseSize(c.in)
		if err != nil {
			t.Errorf("ParseSize(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}
