// Package source implements the uniform Source abstraction over
// heterogeneous package origins: path, registry (git index + tarball),
// sparse HTTP registry, local tarball registry, bare directory, and
// version-control checkout (spec.md §4.B).
package source

import (
	"sync"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
)

// QueryKind selects how a Source should match a dependency against its
// candidates.
type QueryKind uint8

const (
	// Exact matches only the requested name.
	Exact QueryKind = iota
	// Fuzzy additionally considers case/hyphen-underscore variants.
	Fuzzy
	// AlternativeNames additionally considers a source's own notion of
	// renamed/aliased packages (e.g. a registry's "also-known-as" list).
	AlternativeNames
)

// QueriedSummary is one candidate returned from Source.Query: a Summary
// plus whatever the source knows about its yanked status.
type QueriedSummary struct {
	Summary pkgmeta.Summary
	Yanked  bool
}

// DownloadResult is the outcome of Source.Download: either the package is
// already materialized on disk (Ready), or the caller must fetch NeedsURL
// and hand the bytes to FinishDownload.
type DownloadResult struct {
	Ready     bool
	Path      string
	NeedsURL  string
	Checksum  string // expected sha256, hex, empty if none recorded
}

// ManifestReader is the externally-supplied capability for turning a
// directory on disk into a Summary. Manifest parsing itself is out of
// scope for this core (spec.md §1); sources that read from a local
// checkout (Path, Directory, Git) are handed one of these rather than
// parsing manifests themselves.
type ManifestReader interface {
	ReadSummary(dir string) (pkgmeta.Summary, error)
}

// Source is the uniform interface every package origin implements.
type Source interface {
	// Query pushes matching candidates into sink. If the source cannot
	// answer synchronously (a sparse registry fetching an index shard
	// over HTTP) it returns pending=true; the caller must call
	// BlockUntilReady and retry.
	Query(dep pkgmeta.Dependency, kind QueryKind, sink func(QueriedSummary)) (pending bool, err error)

	// BlockUntilReady blocks until a prior Pending Query result can be
	// retried synchronously.
	BlockUntilReady() error

	Download(pkg pkgmeta.PackageID) (DownloadResult, error)
	FinishDownload(pkg pkgmeta.PackageID, data []byte) error

	// Fingerprint returns a stable identity string for pkg's content,
	// used as one input to a compilation unit's fingerprint.
	Fingerprint(pkg pkgmeta.PackageID) (string, error)

	// Verify checks the on-disk content against any checksum the source
	// knows about. A mismatch is fatal (spec.md §7).
	Verify(pkg pkgmeta.PackageID) error

	Describe() string
	IsReplaced() bool

	AddToYankedWhitelist(pkgs []pkgmeta.PackageID)
	IsYanked(pkg pkgmeta.PackageID) (bool, error)

	// RequiresPrecise reports whether the resolver must not leave the
	// exact version of this source's packages ambiguous (true for
	// path/git sources, which have exactly one available version at a
	// time).
	RequiresPrecise() bool
}

// yankWhitelist is a small mixin sources can embed for
// AddToYankedWhitelist/IsYanked bookkeeping: packages can be selected even
// if yanked when they are already explicitly whitelisted (e.g. because
// they appear in a previously-accepted lockfile).
type yankWhitelist struct {
	mu    sync.RWMutex
	allow map[string]bool
}

// AddToYankedWhitelist records packages that may be selected even if a
// source later reports them as yanked (e.g. because they already appear
// in an accepted lockfile).
func (w *yankWhitelist) AddToYankedWhitelist(pkgs []pkgmeta.PackageID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.allow == nil {
		w.allow = make(map[string]bool)
	}
	for _, p := range pkgs {
		w.allow[p.Key()] = true
	}
}

func (w *yankWhitelist) allowed(pkg pkgmeta.PackageID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.allow[pkg.Key()]
}

// matchesName applies the case/hyphen-underscore folding rule registries
// use for Fuzzy queries.
func matchesName(have ident.PackageName, want ident.PackageName, kind QueryKind) bool {
	if kind == Exact {
		return have == want
	}
	return foldName(string(have)) == foldName(string(want))
}

func foldName(s string) string { return ident.FoldName(s) }
