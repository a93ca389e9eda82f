package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
)

// fakeReader maps a directory path to a pre-built Summary, standing in
// for the real manifest reader without pulling in TOML parsing.
type fakeReader struct {
	byDir map[string]pkgmeta.Summary
}

func (r fakeReader) ReadSummary(dir string) (pkgmeta.Summary, error) {
	sum, ok := r.byDir[dir]
	if !ok {
		return pkgmeta.Summary{}, os.ErrNotExist
	}
	return sum, nil
}

func mustVer(t *testing.T, s string) ident.Version {
	t.Helper()
	v, err := ident.ParseVersion(s)
	if err != nil {
		t.Fatalf("ParseVersion(%q): %v", s, err)
	}
	return v
}

func depFor(name ident.PackageName) pkgmeta.Dependency {
	return pkgmeta.Dependency{Name: name}
}

func TestPathSourceQueryAndDownload(t *testing.T) {
	dir := t.TempDir()
	sum := pkgmeta.Summary{ID: pkgmeta.PackageID{Name: "libby", Version: mustVer(t, "1.2.3")}}
	reader := fakeReader{byDir: map[string]pkgmeta.Summary{dir: sum}}

	src := NewPathSource(dir, reader)

	var got []QueriedSummary
	pending, err := src.Query(depFor("libby"), Exact, func(qs QueriedSummary) { got = append(got, qs) })
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if pending {
		t.Fatal("PathSource.Query reported pending=true")
	}
	if len(got) != 1 || got[0].Summary.ID.Name != "libby" {
		t.Fatalf("Query results = %+v", got)
	}

	pending, err = src.Query(depFor("other"), Exact, func(QueriedSummary) { t.Fatal("sink called for non-matching name") })
	if err != nil || pending {
		t.Fatalf("Query(other) = pending=%v, err=%v", pending, err)
	}

	res, err := src.Download(sum.ID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !res.Ready || res.Path != dir {
		t.Errorf("Download() = %+v, want Ready at %q", res, dir)
	}

	if !src.RequiresPrecise() {
		t.Error("PathSource.RequiresPrecise() = false, want true")
	}
	if _, err := src.Fingerprint(sum.ID); err != nil {
		t.Errorf("Fingerprint: %v", err)
	}
}

func TestPathSourceDownloadMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	src := NewPathSource(dir, fakeReader{byDir: map[string]pkgmeta.Summary{}})
	if _, err := src.Download(pkgmeta.PackageID{}); err == nil {
		t.Error("Download() on a missing directory: expected error, got nil")
	}
}

func TestDirectorySourceQueryFiltersByRequirement(t *testing.T) {
	root := t.TempDir()
	oldDir := filepath.Join(root, "libby-1.0.0")
	newDir := filepath.Join(root, "libby-2.0.0")
	for _, d := range []string{oldDir, newDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	reader := fakeReader{byDir: map[string]pkgmeta.Summary{
		oldDir: {ID: pkgmeta.PackageID{Name: "libby", Version: mustVer(t, "1.0.0")}},
		newDir: {ID: pkgmeta.PackageID{Name: "libby", Version: mustVer(t, "2.0.0")}},
	}}
	src := NewDirectorySource(root, reader)

	req, err := ident.ParseRequirement("^1")
	if err != nil {
		t.Fatal(err)
	}
	dep := pkgmeta.Dependency{Name: "libby", Requirement: req}

	var got []pkgmeta.Summary
	if _, err := src.Query(dep, Exact, func(qs QueriedSummary) { got = append(got, qs.Summary) }); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].ID.Version.String() != "1.0.0" {
		t.Fatalf("Query results = %+v, want only 1.0.0", got)
	}
}

func TestDirectorySourceDownload(t *testing.T) {
	root := t.TempDir()
	pkgDir := filepath.Join(root, "libby-1.0.0")
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	src := NewDirectorySource(root, fakeReader{})

	id := pkgmeta.PackageID{Name: "libby", Version: mustVer(t, "1.0.0")}
	res, err := src.Download(id)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !res.Ready || res.Path != pkgDir {
		t.Errorf("Download() = %+v, want Ready at %q", res, pkgDir)
	}

	missing := pkgmeta.PackageID{Name: "libby", Version: mustVer(t, "9.9.9")}
	if _, err := src.Download(missing); err == nil {
		t.Error("Download() of an absent version: expected error, got nil")
	}
}
