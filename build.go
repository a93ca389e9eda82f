package forge

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/forgelang/forge/internal/cache"
	"github.com/forgelang/forge/internal/diag"
	"github.com/forgelang/forge/internal/filelock"
	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/resolve"
	"github.com/forgelang/forge/internal/sched"
	"github.com/forgelang/forge/internal/unitgraph"
)

// BuildOptions configures one Project.Build call.
type BuildOptions struct {
	Graph   *resolve.Graph
	Sources *SourceSet

	HostPlatform    unitgraph.Platform
	TargetPlatforms []unitgraph.Platform

	Mode     unitgraph.Mode
	Profile  unitgraph.ProfileSettings
	Jobs     int
	Compiler string // e.g. "rustc 1.78.0", hashed into every unit's fingerprint
}

// defaultTargetInfo derives the one piece of target metadata this core
// still needs from a manifest: every package is assumed to expose
// exactly one library target named after itself. Binary/example/bench
// target declarations are ambient manifest surface this core does not
// model (spec.md's scope is the dependency and build-unit machinery,
// not target layout), so every package builds as a library unit only.
func defaultTargetInfo(name ident.PackageName) unitgraph.TargetInfo {
	return unitgraph.TargetInfo{
		Lib: &unitgraph.TargetDescriptor{Kind: unitgraph.TargetLib, Name: string(name)},
	}
}

// Build expands opts.Graph into a unit graph and runs it through the
// scheduler, computing each unit's fingerprint (spec.md §4.G) from its
// source tree and its dependencies' fingerprints and recording the
// package's last use in the cache tracker. Fingerprints are kept only
// in memory for the current run: they are not persisted or compared
// with an earlier run's, so no unit is skipped as fresh.
func (p *Project) Build(ctx context.Context, opts BuildOptions) error {
	targets := make(map[ident.PackageName]unitgraph.TargetInfo, len(opts.Graph.Packages))
	for name := range opts.Graph.Packages {
		targets[name] = defaultTargetInfo(name)
	}

	rootName := ident.PackageName(p.Manifest.Package.Name)
	ug, err := unitgraph.Build(unitgraph.Params{
		Resolve: opts.Graph,
		Targets: targets,
		Requests: []unitgraph.RootRequest{{
			Member:   rootName,
			Mode:     opts.Mode,
			Features: opts.Graph.Features[rootName],
			Profile:  opts.Profile,
		}},
		HostPlatform:    opts.HostPlatform,
		TargetPlatforms: opts.TargetPlatforms,
	})
	if err != nil {
		return errors.Wrap(err, "building unit graph")
	}

	guard, err := p.Ctx.AcquireCacheLock(filelock.MutateExclusive)
	if err != nil {
		return errors.Wrap(err, "acquiring cache lock for build")
	}
	defer guard.Unlock()

	deferred := cache.NewDeferredLastUse()
	fps := make(map[string]string, len(ug.Units))

	work := func(jobCtx context.Context, unit unitgraph.Unit, emit func(sched.Message)) error {
		src, err := opts.Sources.sourceFor(unit.Package.Source)
		if err != nil {
			return err
		}
		root, err := src.Download(unit.Package)
		if err != nil {
			return errors.Wrapf(err, "downloading %s", unit.Package)
		}
		if !root.Ready {
			return errors.Errorf("%s is not yet fetched into the cache (needs %s); run a fetch step before building", unit.Package, root.NeedsURL)
		}
		sourceRoot := root.Path

		var depFPs []string
		for _, dep := range ug.Edges[unit.Key()] {
			depFPs = append(depFPs, fps[dep])
		}

		fp, err := sched.Compute(sched.FingerprintInputs{
			CompilerVersion: opts.Compiler,
			HostTriple:      opts.HostPlatform.String(),
			TargetTriple:    unit.Platform.String(),
			Profile:         unit.Profile,
			Features:        unit.Features,
			DepFingerprints: depFPs,
			SourceRoot:      sourceRoot,
		})
		if err != nil {
			return errors.Wrapf(err, "fingerprinting %s", unit.Package)
		}
		fps[unit.Key()] = fp

		deferred.Touch(cache.RegistryCrate, unit.Package.Key(), 0, time.Now())
		emit(sched.RmetaProducedMessage{})
		return nil
	}

	onMessage := func(unitKey string, m sched.Message) {
		switch msg := m.(type) {
		case sched.DiagnosticMessage:
			kind := diag.KindWarning
			if msg.Level == sched.LevelError {
				kind = diag.KindError
			}
			p.Ctx.Diagnostics.Emit(diag.Diagnostic{Kind: kind, Message: msg.Message})
		case sched.WarningMessage:
			p.Ctx.Diagnostics.Emit(diag.Diagnostic{Kind: diag.KindWarning, Message: msg.Message})
		}
	}

	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}
	s := sched.New(jobs, work, onMessage)
	for _, u := range ug.Units {
		var deps []sched.UnitDep
		for _, depKey := range ug.Edges[u.Key()] {
			deps = append(deps, sched.UnitDep{UnitKey: depKey, Artifact: sched.ArtifactAll})
		}
		s.AddUnit(u.Key(), u, nil, deps)
	}

	if err := s.Run(ctx); err != nil {
		return errors.Wrap(err, "running build")
	}

	if err := deferred.Flush(p.Ctx.cacheTracker); err != nil {
		return errors.Wrap(err, "flushing cache last-use records")
	}
	return nil
}

// GC runs the global cache's age/size eviction plan and deletes
// whatever it reports, guarded by a MutateExclusive cache lock (spec.md
// §4.H, component H).
func (c *Ctx) GC(opts cache.GCOptions, protected cache.Protected, remove func(kind cache.EntryKind, key string) error) ([]cache.Evicted, error) {
	guard, err := c.AcquireCacheLock(filelock.MutateExclusive)
	if err != nil {
		return nil, errors.Wrap(err, "acquiring cache lock for gc")
	}
	defer guard.Unlock()

	evicted, err := cache.Apply(c.cacheTracker, opts, protected, time.Now(), remove)
	if err != nil {
		return nil, errors.Wrap(err, "running cache gc")
	}
	return evicted, nil
}
