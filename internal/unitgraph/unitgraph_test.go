package unitgraph

import (
	"testing"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
	"github.com/forgelang/forge/internal/resolve"
)

func mustVersion(t *testing.T, s string) ident.Version {
	t.Helper()
	v, err := ident.ParseVersion(s)
	if err != nil {
		t.Fatalf("ParseVersion(%q): %v", s, err)
	}
	return v
}

func sid() ident.SourceID {
	return ident.NewSourceID(ident.KindRegistry, "https://example.test/index")
}

func buildResolveGraph(t *testing.T) *resolve.Graph {
	t.Helper()
	root := pkgmeta.PackageID{Name: "app", Version: mustVersion(t, "0.1.0"), Source: ident.NewSourceID(ident.KindPath, "/work/app")}
	lib := pkgmeta.PackageID{Name: "mathlib", Version: mustVersion(t, "1.0.0"), Source: sid()}
	buildDep := pkgmeta.PackageID{Name: "codegen", Version: mustVersion(t, "2.0.0"), Source: sid()}
	devDep := pkgmeta.PackageID{Name: "harness", Version: mustVersion(t, "3.0.0"), Source: sid()}

	return &resolve.Graph{
		Packages: map[ident.PackageName]pkgmeta.PackageID{
			"app":      root,
			"mathlib":  lib,
			"codegen":  buildDep,
			"harness":  devDep,
		},
		Features: map[ident.PackageName]map[string]bool{
			"app":     {"default": true},
			"mathlib": {"default": true},
		},
		Edges: []resolve.Edge{
			{From: "app", To: "mathlib", Dep: pkgmeta.Dependency{Name: "mathlib", Kind: pkgmeta.KindNormal}},
			{From: "app", To: "codegen", Dep: pkgmeta.Dependency{Name: "codegen", Kind: pkgmeta.KindBuild}},
			{From: "app", To: "harness", Dep: pkgmeta.Dependency{Name: "harness", Kind: pkgmeta.KindDev}},
		},
	}
}

func TestBuildRootAndLibUnits(t *testing.T) {
	g := buildResolveGraph(t)
	targets := map[ident.PackageName]TargetInfo{
		"app":     {Bins: []TargetDescriptor{{Kind: TargetBin, Name: "app"}}},
		"mathlib": {Lib: &TargetDescriptor{Kind: TargetLib, Name: "mathlib"}},
		"codegen": {Bins: []TargetDescriptor{{Kind: TargetBin, Name: "codegen"}}, HasCustomBuild: true},
		"harness": {Lib: &TargetDescriptor{Kind: TargetLib, Name: "harness"}},
	}

	graph, err := Build(Params{
		Resolve: g,
		Targets: targets,
		Requests: []RootRequest{
			{Member: "app", Mode: ModeBuild, Features: map[string]bool{"default": true}},
		},
		HostPlatform: Platform{Host: true},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(graph.Units) == 0 {
		t.Fatal("expected at least one unit")
	}

	var sawLib, sawBuildDep, sawDev bool
	for _, u := range graph.Units {
		switch u.Package.Name {
		case "mathlib":
			sawLib = true
			if u.Mode != ModeBuild {
				t.Errorf("lib dep unit mode = %v, want ModeBuild", u.Mode)
			}
		case "codegen":
			sawBuildDep = true
			if !u.Platform.Host {
				t.Errorf("build-dep unit platform = %v, want host", u.Platform)
			}
		case "harness":
			sawDev = true
		}
	}
	if !sawLib {
		t.Error("expected a unit for mathlib (normal dep)")
	}
	if !sawBuildDep {
		t.Error("expected a unit for codegen (build dep)")
	}
	if sawDev {
		t.Error("did not expect a unit for harness: build mode root must not pull in dev-deps")
	}
}

func TestBuildTestModeIncludesDevDeps(t *testing.T) {
	g := buildResolveGraph(t)
	targets := map[ident.PackageName]TargetInfo{
		"app":     {Lib: &TargetDescriptor{Kind: TargetLib, Name: "app"}},
		"mathlib": {Lib: &TargetDescriptor{Kind: TargetLib, Name: "mathlib"}},
		"codegen": {Bins: []TargetDescriptor{{Kind: TargetBin, Name: "codegen"}}},
		"harness": {Lib: &TargetDescriptor{Kind: TargetLib, Name: "harness"}},
	}

	graph, err := Build(Params{
		Resolve: g,
		Targets: targets,
		Requests: []RootRequest{
			{Member: "app", Mode: ModeTest, Features: map[string]bool{"default": true}},
		},
		HostPlatform: Platform{Host: true},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var sawDev bool
	for _, u := range graph.Units {
		if u.Package.Name == "harness" {
			sawDev = true
		}
	}
	if !sawDev {
		t.Error("expected a unit for harness: test mode root must pull in dev-deps")
	}
}

func TestCustomBuildUnitsIntroduced(t *testing.T) {
	g := buildResolveGraph(t)
	targets := map[ident.PackageName]TargetInfo{
		"app":     {Lib: &TargetDescriptor{Kind: TargetLib, Name: "app"}},
		"mathlib": {Lib: &TargetDescriptor{Kind: TargetLib, Name: "mathlib"}},
		"codegen": {Bins: []TargetDescriptor{{Kind: TargetBin, Name: "codegen"}}, HasCustomBuild: true},
		"harness": {Lib: &TargetDescriptor{Kind: TargetLib, Name: "harness"}},
	}

	graph, err := Build(Params{
		Resolve: g,
		Targets: targets,
		Requests: []RootRequest{
			{Member: "app", Mode: ModeBuild, Features: map[string]bool{"default": true}},
		},
		HostPlatform: Platform{Host: true},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var sawRun, sawCompile bool
	for _, u := range graph.Units {
		if u.Package.Name != "codegen" {
			continue
		}
		if u.Mode == ModeRunCustomBuild {
			sawRun = true
		}
		if u.Target.Kind == TargetCustomBuild && u.Mode == ModeBuild {
			sawCompile = true
		}
	}
	if !sawRun || !sawCompile {
		t.Error("expected both a RunCustomBuild unit and its build-script compile unit for codegen")
	}
}
