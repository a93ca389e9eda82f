package forge

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/lockfile"
	"github.com/forgelang/forge/internal/manifest"
	"github.com/forgelang/forge/internal/pkgmeta"
	"github.com/forgelang/forge/internal/resolve"
)

// Project is one loaded Forge.toml (and, if present, its Forge.lock),
// rooted at AbsRoot.
type Project struct {
	Ctx *Ctx

	AbsRoot  string
	Manifest *manifest.Manifest
	Lock     *lockfile.Resolve
}

// rootSourceID is the SourceID the project's own package is addressed
// under: a Path source at its own root, same convention the teacher
// uses for the workspace root itself.
func (p *Project) rootSourceID() ident.SourceID {
	return ident.NewSourceID(ident.KindPath, p.AbsRoot)
}

func readLockFile(path string, root string) (*lockfile.Resolve, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return lockfile.Decode(b, ident.NewSourceID(ident.KindPath, root))
}

// ResolveOptions configures one call to Project.Resolve.
type ResolveOptions struct {
	Sources *SourceSet

	// ChangeAll forces every package to be re-resolved, ignoring the
	// existing lockfile entirely (a bare "forge update").
	ChangeAll bool
	// ToChange lists individual packages to re-resolve even though the
	// lockfile has an entry for them ("forge update -p foo").
	ToChange []ident.PackageName

	IncludeDev        bool
	RequestedFeatures []string
	NoDefaultFeatures bool
	Ordering          resolve.VersionOrdering
	Platforms         []ident.CfgSet
}

// Resolve runs the dependency solver over the project's manifest,
// honoring any existing lockfile's selections unless overridden by
// opts, and returns the selected package graph.
func (p *Project) Resolve(opts ResolveOptions) (*resolve.Graph, error) {
	rootSrc := p.rootSourceID()
	rootSummary := p.Manifest.ToSummary(rootSrc)

	locked := make(map[ident.PackageName]pkgmeta.PackageID)
	if p.Lock != nil && !opts.ChangeAll {
		for _, id := range p.Lock.Packages {
			locked[id.Name] = id
		}
	}
	toChange := make(map[ident.PackageName]bool, len(opts.ToChange))
	for _, name := range opts.ToChange {
		toChange[name] = true
	}

	graph, err := resolve.Solve(resolve.Params{
		Root:              rootSummary,
		Registry:          opts.Sources,
		Locked:            locked,
		ToChange:          toChange,
		ChangeAll:         opts.ChangeAll,
		Ordering:          opts.Ordering,
		IncludeDev:        opts.IncludeDev,
		RequestedFeatures: opts.RequestedFeatures,
		NoDefaultFeatures: opts.NoDefaultFeatures,
		Platforms:         opts.Platforms,
		Suggest:           opts.Sources.Suggest,
	})
	if err != nil {
		return nil, errors.Wrap(err, "resolving dependencies")
	}
	return graph, nil
}

// graphToResolve converts a solved resolve.Graph plus whatever checksum/
// replacement bookkeeping the sources reported into the lockfile's
// logical Resolve form.
func graphToResolve(g *resolve.Graph, sources *SourceSet) (*lockfile.Resolve, error) {
	r := &lockfile.Resolve{
		Edges:        make(map[string][]pkgmeta.PackageID),
		Checksums:    make(map[string]string),
		Replacements: make(map[string]pkgmeta.PackageID),
	}

	for _, id := range g.Packages {
		r.Packages = append(r.Packages, id)
	}
	for _, e := range g.Edges {
		// Edges from the root package itself (e.From == "") are not
		// part of the lockfile: Encode only ever walks r.Edges keyed by
		// one of r.Packages' own Key()s, and the root is never one of
		// those (spec.md §4.E's lockfile records dependencies, not the
		// project being built).
		from, ok := g.Packages[e.From]
		if !ok {
			continue
		}
		to, ok := g.Packages[e.To]
		if !ok {
			continue
		}
		r.Edges[from.Key()] = append(r.Edges[from.Key()], to)
	}

	for _, id := range g.Packages {
		src, err := sources.sourceFor(id.Source)
		if err != nil {
			continue
		}
		if fp, err := src.Fingerprint(id); err == nil {
			r.Checksums[id.Key()] = fp
		}
	}

	return r, nil
}

// WriteLock resolves graph into the lockfile's logical form, encodes
// it, and writes it to Forge.lock in the project root. Writes are
// skipped (returning false, nil) if the freshly computed lock is
// Equivalent to the one already on disk, so an unmodified `forge
// resolve` does not spuriously touch the file's mtime.
func (p *Project) WriteLock(graph *resolve.Graph, sources *SourceSet) (changed bool, err error) {
	next, err := graphToResolve(graph, sources)
	if err != nil {
		return false, err
	}
	if p.Lock != nil && lockfile.Equivalent(p.Lock, next) {
		return false, nil
	}

	b, err := lockfile.Encode(next, p.rootSourceID())
	if err != nil {
		return false, errors.Wrap(err, "encoding lockfile")
	}

	path := filepath.Join(p.AbsRoot, LockName)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return false, errors.Wrapf(err, "writing %s", LockName)
	}
	p.Lock = next
	return true, nil
}
