// Package unitgraph expands a frozen resolution into the set of compile
// Units a build actually needs to run (spec.md §4.F, component F). No
// example repo in the retrieval pack models a build-unit graph directly
// (the teacher only resolves dependencies, it never compiles anything),
// so this package's expansion rules are grounded straight in spec.md
// §4.F rather than adapted from a specific teacher file; the surrounding
// shape (explicit Params struct, plain functions, no hidden state) still
// follows the teacher's style elsewhere in this module.
package unitgraph

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
	"github.com/forgelang/forge/internal/resolve"
)

// Mode is the purpose a Unit is compiled for.
type Mode uint8

const (
	ModeBuild Mode = iota
	ModeCheck
	ModeTest
	ModeBench
	ModeDoc
	ModeDoctest
	ModeRunCustomBuild
)

func (m Mode) String() string {
	switch m {
	case ModeCheck:
		return "check"
	case ModeTest:
		return "test"
	case ModeBench:
		return "bench"
	case ModeDoc:
		return "doc"
	case ModeDoctest:
		return "doctest"
	case ModeRunCustomBuild:
		return "run-custom-build"
	default:
		return "build"
	}
}

// TargetKind is the kind of build target a Unit compiles.
type TargetKind uint8

const (
	TargetLib TargetKind = iota
	TargetBin
	TargetTest
	TargetExample
	TargetBench
	TargetCustomBuild
)

// TargetDescriptor names one compile target belonging to a package.
type TargetDescriptor struct {
	Kind TargetKind
	Name string
}

// ProfileSettings mirrors the subset of compiler knobs spec.md §4.G's
// fingerprint hashes; unitgraph only carries them, it never interprets
// them.
type ProfileSettings struct {
	OptLevel       string
	DebugInfo      bool
	LTO            bool
	CodegenUnits   int
	Panic          string
	OverflowChecks bool
	Incremental    bool
	Strip          bool
}

// Platform is either the host (the machine running the build) or a
// specific target triple.
type Platform struct {
	Host   bool
	Triple string
}

func (p Platform) String() string {
	if p.Host {
		return "host"
	}
	return p.Triple
}

// Unit is one compile invocation. Two units are equal iff every field
// is equal; equality drives deduplication (spec.md §3 "Unit").
type Unit struct {
	Package  pkgmeta.PackageID
	Target   TargetDescriptor
	Profile  ProfileSettings
	Platform Platform
	Features []string // sorted
	Mode     Mode
	IsStd    bool
}

// Key renders a Unit's full structural identity for dedup purposes.
func (u Unit) Key() string {
	return fmt.Sprintf("%s|%d:%s|%+v|%s|%v|%s|%v",
		u.Package.Key(), u.Target.Kind, u.Target.Name, u.Profile, u.Platform, u.Features, u.Mode, u.IsStd)
}

// TargetInfo is the per-package target metadata the manifest/source
// layer supplies; unitgraph itself has no notion of how a package
// declares its targets.
type TargetInfo struct {
	Lib            *TargetDescriptor
	Bins           []TargetDescriptor
	HasCustomBuild bool
	IsProcMacro    bool
}

// RootRequest is one (member, mode) pair the caller wants built, per
// spec.md §4.F rule 1.
type RootRequest struct {
	Member   ident.PackageName
	Mode     Mode
	Features map[string]bool // resolved enabled features for Member, e.g. resolve.Graph.Features[Member]
	Profile  ProfileSettings
}

// Params is the input to Build.
type Params struct {
	Resolve      *resolve.Graph
	Targets      map[ident.PackageName]TargetInfo
	Requests     []RootRequest
	HostPlatform Platform
	// TargetPlatforms lists the non-host platforms to build each root
	// for. An empty slice means "host only".
	TargetPlatforms []Platform
}

// Graph is the expanded, deduplicated unit graph. Edges map a Unit's key
// to the keys of Units it depends on (must complete first).
type Graph struct {
	Units []Unit
	Edges map[string][]string
}

type builder struct {
	p       Params
	units   map[string]Unit
	order   []string
	edges   map[string][]string
	edgeSet map[string]map[string]bool
}

// Build expands params into a deduplicated Graph. The graph is acyclic
// by construction: cycles would require a dependency cycle across
// non-dev edges in the underlying resolve.Graph, which spec.md §4.D
// already forbids.
func Build(p Params) (*Graph, error) {
	b := &builder{
		p:       p,
		units:   make(map[string]Unit),
		edges:   make(map[string][]string),
		edgeSet: make(map[string]map[string]bool),
	}

	platforms := p.TargetPlatforms
	if len(platforms) == 0 {
		platforms = []Platform{{Host: true}}
	}

	for _, req := range p.Requests {
		id, ok := p.Resolve.Packages[req.Member]
		if !ok {
			return nil, errors.Errorf("unit graph: requested member %q is not in the resolution", req.Member)
		}
		info := p.Targets[req.Member]
		target := rootTarget(info)
		for _, plat := range platforms {
			u := Unit{
				Package:  id,
				Target:   target,
				Profile:  req.Profile,
				Platform: plat,
				Features: sortedFeatures(req.Features),
				Mode:     req.Mode,
			}
			key := b.intern(u)
			if err := b.expand(key, u, true); err != nil {
				return nil, err
			}
		}
	}

	g := &Graph{Edges: b.edges}
	for _, k := range b.order {
		g.Units = append(g.Units, b.units[k])
	}
	return g, nil
}

func rootTarget(info TargetInfo) TargetDescriptor {
	if info.Lib != nil {
		return *info.Lib
	}
	if len(info.Bins) > 0 {
		return info.Bins[0]
	}
	return TargetDescriptor{Kind: TargetLib, Name: ""}
}

func (b *builder) intern(u Unit) string {
	key := u.Key()
	if _, ok := b.units[key]; !ok {
		b.units[key] = u
		b.order = append(b.order, key)
	}
	return key
}

func (b *builder) addEdge(from, to string) {
	if from == to {
		return
	}
	if b.edgeSet[from] == nil {
		b.edgeSet[from] = make(map[string]bool)
	}
	if b.edgeSet[from][to] {
		return
	}
	b.edgeSet[from][to] = true
	b.edges[from] = append(b.edges[from], to)
}

// expand walks u's dependency edges in the resolve graph, emitting and
// linking child Units. isRoot gates dev-dependency edges: only a
// root request's own Test/Bench unit pulls them in (spec.md §4.D
// dev-dependency scoping, §4.F rule 2).
func (b *builder) expand(key string, u Unit, isRoot bool) error {
	wantDev := isRoot && (u.Mode == ModeTest || u.Mode == ModeBench)

	for _, e := range b.p.Resolve.Edges {
		if e.From != u.Package.Name {
			continue
		}
		if e.Dep.Kind == pkgmeta.KindDev && !wantDev {
			continue
		}

		depID, ok := b.p.Resolve.Packages[e.To]
		if !ok {
			continue
		}
		info := b.p.Targets[e.To]

		childMode := ModeBuild
		childPlatform := u.Platform
		if e.Dep.Kind == pkgmeta.KindBuild || info.IsProcMacro {
			childPlatform = b.p.HostPlatform
		}

		target := TargetDescriptor{Kind: TargetLib, Name: string(e.To)}
		if info.Lib != nil {
			target = *info.Lib
		}

		childFeatures := b.p.Resolve.Features[e.To]

		child := Unit{
			Package:  depID,
			Target:   target,
			Profile:  u.Profile,
			Platform: childPlatform,
			Features: sortedFeatureSlice(childFeatures),
			Mode:     childMode,
		}
		childKey := b.intern(child)
		b.addEdge(key, childKey)

		if info.HasCustomBuild {
			if err := b.addCustomBuild(childKey, child, info); err != nil {
				return err
			}
		}

		if err := b.expand(childKey, child, false); err != nil {
			return err
		}
	}
	return nil
}

// addCustomBuild introduces the RunCustomBuild unit and its Build-mode
// build.rs compile unit (spec.md §4.F rule 4).
func (b *builder) addCustomBuild(parentKey string, parent Unit, info TargetInfo) error {
	buildScriptCompile := Unit{
		Package:  parent.Package,
		Target:   TargetDescriptor{Kind: TargetCustomBuild, Name: "build-script-build"},
		Profile:  parent.Profile,
		Platform: b.p.HostPlatform,
		Mode:     ModeBuild,
	}
	compileKey := b.intern(buildScriptCompile)

	run := Unit{
		Package:  parent.Package,
		Target:   TargetDescriptor{Kind: TargetCustomBuild, Name: "run-build-script"},
		Profile:  parent.Profile,
		Platform: b.p.HostPlatform,
		Mode:     ModeRunCustomBuild,
	}
	runKey := b.intern(run)

	b.addEdge(runKey, compileKey)
	b.addEdge(parentKey, runKey)
	return nil
}

func sortedFeatures(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func sortedFeatureSlice(m map[string]bool) []string {
	return sortedFeatures(m)
}
