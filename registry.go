package forge

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/manifest"
	"github.com/forgelang/forge/internal/pkgmeta"
	"github.com/forgelang/forge/internal/registryindex"
	"github.com/forgelang/forge/internal/resolve"
	"github.com/forgelang/forge/internal/source"
)

// manifestReader adapts internal/manifest into source.ManifestReader so
// path/directory/git sources can turn an on-disk checkout into a
// pkgmeta.Summary without knowing anything about TOML themselves.
type manifestReader struct{}

func (manifestReader) ReadSummary(dir string) (pkgmeta.Summary, error) {
	m, err := manifest.ReadFile(fmt.Sprintf("%s/%s", dir, manifest.FileName))
	if err != nil {
		return pkgmeta.Summary{}, err
	}
	return m.ToSummary(ident.NewSourceID(ident.KindPath, dir)), nil
}

// SourceSet lazily builds and caches one internal/source.Source per
// distinct ident.SourceID a dependency graph references, and implements
// resolve.Registry by fanning a query out to the right one. Grounded on
// the teacher's SourceManager, which plays the same role of owning
// exactly one source instance per distinct project root/URL.
type SourceSet struct {
	ctx     *Ctx
	sources map[string]source.Source
	reader  source.ManifestReader

	// names accumulates every package name a Query has actually seen
	// returned from a source, so a later query for a typo'd or
	// nonexistent name can offer a "did you mean ...?" suggestion
	// (spec.md §4.J diagnostics). It is necessarily a record of names
	// observed this run, not a global index: sharded registries never
	// hand back a full name listing up front.
	names *registryindex.NameIndex
}

// NewSourceSet returns an empty SourceSet backed by ctx's cache
// directory for any registry/git sources it has to materialize.
func NewSourceSet(ctx *Ctx) *SourceSet {
	return &SourceSet{
		ctx:     ctx,
		sources: make(map[string]source.Source),
		reader:  manifestReader{},
		names:   registryindex.NewNameIndex(),
	}
}

// sourceFor returns (creating if necessary) the Source backing id.
func (s *SourceSet) sourceFor(id ident.SourceID) (source.Source, error) {
	key := id.String()
	if src, ok := s.sources[key]; ok {
		return src, nil
	}

	var src source.Source
	switch id.Kind {
	case ident.KindPath:
		src = source.NewPathSource(id.URL, s.reader)
	case ident.KindDirectory:
		src = source.NewDirectorySource(id.URL, s.reader)
	case ident.KindGit:
		src = source.NewGitSource(id.URL, id.Ref, s.ctx.CacheDir, s.reader)
	case ident.KindLocalRegistry:
		src = source.NewLocalRegistrySource(id.URL)
	case ident.KindSparseRegistry:
		return nil, errors.Errorf("sparse registry %q requires an HTTP fetcher; configure one via RegisterSparseRegistry before resolving", id.URL)
	case ident.KindRegistry:
		src = source.NewRegistrySource(id.URL, "", s.ctx.CacheDir)
	default:
		return nil, errors.Errorf("unsupported source kind %v for %q", id.Kind, id.URL)
	}

	s.sources[key] = src
	return src, nil
}

// RegisterSparseRegistry installs a concrete sparse (HTTP index) source
// for id ahead of time, since it needs an injected source.Fetcher the
// SourceSet cannot construct on its own.
func (s *SourceSet) RegisterSparseRegistry(id ident.SourceID, fetcher source.Fetcher) {
	s.sources[id.String()] = source.NewSparseRegistrySource(id.URL, s.ctx.CacheDir, fetcher)
}

// RegisterReplacement wraps whatever source backs replacement so every
// summary and package id it returns is reported under original instead
// (spec.md §4.D "[patch]"/"[replace]" rewriting).
func (s *SourceSet) RegisterReplacement(original, replacement ident.SourceID) error {
	inner, err := s.sourceFor(replacement)
	if err != nil {
		return err
	}
	s.sources[original.String()] = source.NewReplacedSource(inner, original)
	return nil
}

// Query implements resolve.Registry.
func (s *SourceSet) Query(dep pkgmeta.Dependency) ([]pkgmeta.Summary, error) {
	src, err := s.sourceFor(dep.Source)
	if err != nil {
		return nil, err
	}

	var out []pkgmeta.Summary
	sink := func(qs source.QueriedSummary) {
		if qs.Yanked {
			return
		}
		out = append(out, qs.Summary)
	}

	pending, err := src.Query(dep, source.Exact, sink)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %q for %q", src.Describe(), dep.EffectiveName())
	}
	if pending {
		if err := src.BlockUntilReady(); err != nil {
			return nil, errors.Wrapf(err, "waiting on %q", src.Describe())
		}
		out = nil
		if _, err := src.Query(dep, source.Exact, sink); err != nil {
			return nil, errors.Wrapf(err, "re-querying %q for %q", src.Describe(), dep.EffectiveName())
		}
	}
	for _, sum := range out {
		s.names.Add(string(sum.ID.Name))
	}
	return out, nil
}

// Suggest implements resolve.Params.Suggest: near-miss names against
// every package name this SourceSet has actually seen so far this run.
func (s *SourceSet) Suggest(name ident.PackageName) []string {
	return s.names.Suggest(string(name), 5)
}

var _ resolve.Registry = (*SourceSet)(nil)
