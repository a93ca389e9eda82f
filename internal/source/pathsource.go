package source

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	shutil "github.com/termie/go-shutil"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
)

// PathSource enumerates a single package rooted at a filesystem
// directory. It always requires a precise version (there is exactly one
// version available: whatever is on disk right now).
type PathSource struct {
	yankWhitelist

	Dir    string
	Reader ManifestReader

	summary *pkgmeta.Summary
}

func NewPathSource(dir string, reader ManifestReader) *PathSource {
	return &PathSource{Dir: dir, Reader: reader}
}

func (s *PathSource) load() (pkgmeta.Summary, error) {
	if s.summary != nil {
		return *s.summary, nil
	}
	sum, err := s.Reader.ReadSummary(s.Dir)
	if err != nil {
		return pkgmeta.Summary{}, errors.Wrapf(err, "reading package at %s", s.Dir)
	}
	s.summary = &sum
	return sum, nil
}

func (s *PathSource) Query(dep pkgmeta.Dependency, kind QueryKind, sink func(QueriedSummary)) (bool, error) {
	sum, err := s.load()
	if err != nil {
		return false, err
	}
	if !matchesName(sum.ID.Name, dep.Name, kind) {
		return false, nil
	}
	sink(QueriedSummary{Summary: sum})
	return false, nil
}

func (s *PathSource) BlockUntilReady() error { return nil }

func (s *PathSource) Download(pkg pkgmeta.PackageID) (DownloadResult, error) {
	if _, err := os.Stat(s.Dir); err != nil {
		return DownloadResult{}, errors.Wrapf(err, "path source %s", s.Dir)
	}
	return DownloadResult{Ready: true, Path: s.Dir}, nil
}

func (s *PathSource) FinishDownload(pkgmeta.PackageID, []byte) error {
	return errors.New("path sources are always ready; FinishDownload should not be called")
}

func (s *PathSource) Fingerprint(pkgmeta.PackageID) (string, error) {
	return "path:" + s.Dir, nil
}

func (s *PathSource) Verify(pkgmeta.PackageID) error { return nil }

func (s *PathSource) Describe() string { return fmt.Sprintf("path+%s", s.Dir) }

func (s *PathSource) IsReplaced() bool { return false }

func (s *PathSource) IsYanked(pkgmeta.PackageID) (bool, error) { return false, nil }

func (s *PathSource) RequiresPrecise() bool { return true }

// DirectorySource is a directory of already-unpacked packages, each
// accompanied by a checksum manifest (spec.md §4.B). Unlike PathSource it
// may contain many package versions side by side, one subdirectory each.
type DirectorySource struct {
	yankWhitelist

	Root   string
	Reader ManifestReader
}

func NewDirectorySource(root string, reader ManifestReader) *DirectorySource {
	return &DirectorySource{Root: root, Reader: reader}
}

func (s *DirectorySource) packageDir(name ident.PackageName, version ident.Version) string {
	return s.Root + "/" + string(name) + "-" + version.String()
}

func (s *DirectorySource) Query(dep pkgmeta.Dependency, kind QueryKind, sink func(QueriedSummary)) (bool, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return false, errors.Wrapf(err, "reading directory source %s", s.Root)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sum, err := s.Reader.ReadSummary(s.Root + "/" + e.Name())
		if err != nil {
			continue
		}
		if matchesName(sum.ID.Name, dep.Name, kind) && dep.Requirement.Matches(sum.ID.Version) {
			sink(QueriedSummary{Summary: sum})
		}
	}
	return false, nil
}

func (s *DirectorySource) BlockUntilReady() error { return nil }

func (s *DirectorySource) Download(pkg pkgmeta.PackageID) (DownloadResult, error) {
	dir := s.packageDir(pkg.Name, pkg.Version)
	if _, err := os.Stat(dir); err != nil {
		return DownloadResult{}, errors.Wrapf(err, "directory source missing package %s", pkg)
	}
	return DownloadResult{Ready: true, Path: dir}, nil
}

func (s *DirectorySource) FinishDownload(pkgmeta.PackageID, []byte) error {
	return errors.New("directory sources are always ready; FinishDownload should not be called")
}

func (s *DirectorySource) Fingerprint(pkg pkgmeta.PackageID) (string, error) {
	return "directory:" + s.packageDir(pkg.Name, pkg.Version), nil
}

func (s *DirectorySource) Verify(pkgmeta.PackageID) error { return nil }

func (s *DirectorySource) Describe() string { return fmt.Sprintf("directory+%s", s.Root) }

func (s *DirectorySource) IsReplaced() bool { return false }

func (s *DirectorySource) IsYanked(pkgmeta.PackageID) (bool, error) { return false, nil }

func (s *DirectorySource) RequiresPrecise() bool { return false }

// MaterializeInto replaces destDir with a recursive copy of srcDir. The
// build pipeline in this module does not call it. Grounded on the
// teacher's reliance on a recursive copy-with-metadata utility for
// populating its vendor directory.
func MaterializeInto(srcDir, destDir string) error {
	if _, err := os.Stat(destDir); err == nil {
		if err := os.RemoveAll(destDir); err != nil {
			return errors.Wrapf(err, "clearing %s before materializing", destDir)
		}
	}
	if err := shutil.CopyTree(srcDir, destDir, nil); err != nil {
		return errors.Wrapf(err, "copying %s to %s", srcDir, destDir)
	}
	return nil
}
