package source

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
	"github.com/forgelang/forge/internal/registryindex"
)

// LocalRegistrySource is a directory holding a precomputed index subtree
// plus already-downloaded tarballs, used for vendoring or offline mirrors
// (spec.md §4.B). Nothing here ever touches the network: Download never
// returns NeedsURL, since the tarball is expected to already be present
// under Root.
type LocalRegistrySource struct {
	yankWhitelist

	Root string // contains index/ and cache/<name>-<version>.tar
}

func NewLocalRegistrySource(root string) *LocalRegistrySource {
	return &LocalRegistrySource{Root: root}
}

func (s *LocalRegistrySource) sourceID() ident.SourceID {
	return ident.NewSourceID(ident.KindLocalRegistry, "registry+file://"+s.Root)
}

func (s *LocalRegistrySource) indexShard(name string) string {
	return filepath.Join(s.Root, "index", registryindex.ShardPath(name))
}

func (s *LocalRegistrySource) tarballPath(pkg pkgmeta.PackageID) string {
	return filepath.Join(s.Root, "cache", string(pkg.Name)+"-"+pkg.Version.String()+".tar")
}

func (s *LocalRegistrySource) entriesFor(name string) ([]registryindex.Entry, error) {
	data, err := os.ReadFile(s.indexShard(name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading local registry shard for %s", name)
	}
	return registryindex.ParseFile(data)
}

func (s *LocalRegistrySource) Query(dep pkgmeta.Dependency, kind QueryKind, sink func(QueriedSummary)) (bool, error) {
	entries, err := s.entriesFor(string(dep.Name))
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !matchesName(ident.PackageName(e.Name), dep.Name, kind) {
			continue
		}
		sum, err := registryindex.ToSummary(e, s.sourceID())
		if err != nil {
			return false, err
		}
		if e.IsYanked() && !s.allowed(sum.ID) {
			continue
		}
		sink(QueriedSummary{Summary: sum, Yanked: e.IsYanked()})
	}
	return false, nil
}

func (s *LocalRegistrySource) BlockUntilReady() error { return nil }

func (s *LocalRegistrySource) Download(pkg pkgmeta.PackageID) (DownloadResult, error) {
	path := s.tarballPath(pkg)
	if _, err := os.Stat(path); err != nil {
		return DownloadResult{}, errors.Wrapf(err, "local registry missing tarball for %s", pkg)
	}
	return DownloadResult{Ready: true, Path: path}, nil
}

func (s *LocalRegistrySource) FinishDownload(pkgmeta.PackageID, []byte) error {
	return errors.New("local registry sources are always ready; FinishDownload should not be called")
}

func (s *LocalRegistrySource) entryFor(pkg pkgmeta.PackageID) (registryindex.Entry, error) {
	entries, err := s.entriesFor(string(pkg.Name))
	if err != nil {
		return registryindex.Entry{}, err
	}
	for _, e := range entries {
		if e.Name == string(pkg.Name) && e.Vers == pkg.Version.String() {
			return e, nil
		}
	}
	return registryindex.Entry{}, errors.Errorf("no index entry for %s", pkg)
}

func (s *LocalRegistrySource) Fingerprint(pkg pkgmeta.PackageID) (string, error) {
	e, err := s.entryFor(pkg)
	if err != nil {
		return "", err
	}
	return "local-registry:" + e.Cksum, nil
}

func (s *LocalRegistrySource) Verify(pkg pkgmeta.PackageID) error {
	e, err := s.entryFor(pkg)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(s.tarballPath(pkg))
	if err != nil {
		return errors.Wrapf(err, "reading cached tarball for %s", pkg)
	}
	return registryindex.VerifyChecksum(data, e.Cksum)
}

func (s *LocalRegistrySource) Describe() string { return "registry+file://" + s.Root }

func (s *LocalRegistrySource) IsReplaced() bool { return false }

func (s *LocalRegistrySource) IsYanked(pkg pkgmeta.PackageID) (bool, error) {
	if s.allowed(pkg) {
		return false, nil
	}
	e, err := s.entryFor(pkg)
	if err != nil {
		return false, err
	}
	return e.IsYanked(), nil
}

func (s *LocalRegistrySource) RequiresPrecise() bool { return false }
