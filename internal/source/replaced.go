package source

import (
	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
)

// ReplacedSource wraps an inner source and rewrites SourceIDs on the
// boundary so that a package obtained through a replacement still
// advertises its *original* SourceID to the rest of the system. This
// keeps lockfiles stable under source-replacement policy changes: the
// lockfile records the package as if it still came from the original
// source, even though these bytes were actually fetched from Inner
// (spec.md §4.B).
type ReplacedSource struct {
	Inner    Source
	Original ident.SourceID
}

func NewReplacedSource(inner Source, original ident.SourceID) *ReplacedSource {
	return &ReplacedSource{Inner: inner, Original: original}
}

func (s *ReplacedSource) rewrite(sum pkgmeta.Summary) pkgmeta.Summary {
	sum.ID.Source = s.Original
	return sum
}

func (s *ReplacedSource) Query(dep pkgmeta.Dependency, kind QueryKind, sink func(QueriedSummary)) (bool, error) {
	return s.Inner.Query(dep, kind, func(qs QueriedSummary) {
		qs.Summary = s.rewrite(qs.Summary)
		sink(qs)
	})
}

func (s *ReplacedSource) BlockUntilReady() error { return s.Inner.BlockUntilReady() }

func (s *ReplacedSource) rewritePkg(pkg pkgmeta.PackageID) pkgmeta.PackageID {
	pkg.Source = s.Original
	return pkg
}

func (s *ReplacedSource) Download(pkg pkgmeta.PackageID) (DownloadResult, error) {
	return s.Inner.Download(pkg)
}

func (s *ReplacedSource) FinishDownload(pkg pkgmeta.PackageID, data []byte) error {
	return s.Inner.FinishDownload(pkg, data)
}

func (s *ReplacedSource) Fingerprint(pkg pkgmeta.PackageID) (string, error) {
	return s.Inner.Fingerprint(pkg)
}

func (s *ReplacedSource) Verify(pkg pkgmeta.PackageID) error { return s.Inner.Verify(pkg) }

func (s *ReplacedSource) Describe() string {
	return "replaced(" + s.Original.String() + " -> " + s.Inner.Describe() + ")"
}

func (s *ReplacedSource) IsReplaced() bool { return true }

func (s *ReplacedSource) AddToYankedWhitelist(pkgs []pkgmeta.PackageID) {
	s.Inner.AddToYankedWhitelist(pkgs)
}

func (s *ReplacedSource) IsYanked(pkg pkgmeta.PackageID) (bool, error) {
	return s.Inner.IsYanked(pkg)
}

func (s *ReplacedSource) RequiresPrecise() bool { return s.Inner.RequiresPrecise() }
