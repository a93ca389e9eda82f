package resolve

import (
	"strings"
	"testing"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
)

type fakeRegistry struct {
	byName map[ident.PackageName][]pkgmeta.Summary
}

func (f *fakeRegistry) Query(dep pkgmeta.Dependency) ([]pkgmeta.Summary, error) {
	return f.byName[dep.Name], nil
}

func mustReq(t *testing.T, s string) ident.Requirement {
	t.Helper()
	r, err := ident.ParseRequirement(s)
	if err != nil {
		t.Fatalf("ParseRequirement(%q): %v", s, err)
	}
	return r
}

func mustVer(t *testing.T, s string) ident.Version {
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

func pkg(t *testing.T, name, version string, deps ...pkgmeta.Dependency) pkgmeta.Summary {
	return pkgmeta.Summary{
		ID: pkgmeta.PackageID{
			Name:    ident.PackageName(name),
			Version: mustVer(t, version),
			Source:  sid(),
		},
		Dependencies: deps,
	}
}

func dep(t *testing.T, name, req string) pkgmeta.Dependency {
	return pkgmeta.Dependency{
		Name:            ident.PackageName(name),
		Requirement:     mustReq(t, req),
		Source:          sid(),
		DefaultFeatures: true,
	}
}

func TestSolveSimpleChain(t *testing.T) {
	reg := &fakeRegistry{byName: map[ident.PackageName][]pkgmeta.Summary{
		"b": {
			pkg(t, "b", "1.1.0", dep(t, "c", "^2.0.0")),
			pkg(t, "b", "1.0.0", dep(t, "c", "^2.0.0")),
		},
		"c": {pkg(t, "c", "2.0.0")},
	}}

	root := pkgmeta.Summary{
		ID:           pkgmeta.PackageID{Name: "root"},
		Dependencies: []pkgmeta.Dependency{dep(t, "b", "^1.0.0")},
	}

	g, err := Solve(Params{Root: root, Registry: reg, Ordering: MaximumVersionsFirst})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got := g.Packages["b"].Version.String(); got != "1.1.0" {
		t.Errorf("expected b@1.1.0 (maximum versions first), got %s", got)
	}
	if _, ok := g.Packages["c"]; !ok {
		t.Errorf("expected transitive dependency c to be resolved")
	}
}

func TestSolveVersionConflictFails(t *testing.T) {
	reg := &fakeRegistry{byName: map[ident.PackageName][]pkgmeta.Summary{
		"b": {pkg(t, "b", "1.0.0")},
		"c": {pkg(t, "c", "1.0.0")},
	}}

	root := pkgmeta.Summary{
		ID: pkgmeta.PackageID{Name: "root"},
		Dependencies: []pkgmeta.Dependency{
			dep(t, "b", "^1.0.0"),
			dep(t, "b", "^2.0.0"),
		},
	}
	_, err := Solve(Params{Root: root, Registry: reg})
	if err == nil {
		t.Fatal("expected a conflict error for incompatible requirements on the same package")
	}
}

func TestSolveOptionalDependencyGatedByFeature(t *testing.T) {
	reg := &fakeRegistry{byName: map[ident.PackageName][]pkgmeta.Summary{
		"extra": {pkg(t, "extra", "1.0.0")},
	}}
	root := pkgmeta.Summary{
		ID: pkgmeta.PackageID{Name: "root"},
		Dependencies: []pkgmeta.Dependency{
			{Name: "extra", Requirement: mustReq(t, "^1.0.0"), Source: sid(), Optional: true, DefaultFeatures: true},
		},
		Features: map[string][]string{
			"default": {},
		},
	}

	g, err := Solve(Params{Root: root, Registry: reg})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if _, ok := g.Packages["extra"]; ok {
		t.Errorf("optional dependency should not activate without its feature enabled")
	}

	g2, err := Solve(Params{Root: root, Registry: reg, RequestedFeatures: []string{"extra"}})
	if err != nil {
		t.Fatalf("Solve with requested feature: %v", err)
	}
	if _, ok := g2.Packages["extra"]; !ok {
		t.Errorf("optional dependency should activate once its feature is requested")
	}
}

func TestSolveLinksUniqueness(t *testing.T) {
	a := pkg(t, "libfoo-a", "1.0.0")
	a.Links = "foo"
	b := pkg(t, "libfoo-b", "1.0.0")
	b.Links = "foo"

	reg := &fakeRegistry{byName: map[ident.PackageName][]pkgmeta.Summary{
		"libfoo-a": {a},
		"libfoo-b": {b},
	}}
	root := pkgmeta.Summary{
		ID: pkgmeta.PackageID{Name: "root"},
		Dependencies: []pkgmeta.Dependency{
			dep(t, "libfoo-a", "^1.0.0"),
			dep(t, "libfoo-b", "^1.0.0"),
		},
	}
	_, err := Solve(Params{Root: root, Registry: reg})
	if err == nil {
		t.Fatal("expected a links-uniqueness conflict when two packages declare the same link name")
	}
	rerr, ok := err.(*Error)
	if !ok || len(rerr.Conflicts) == 0 {
		t.Fatalf("expected a *resolve.Error with at least one Conflict, got %T: %v", err, err)
	}
	c := rerr.Conflicts[0]
	if c.Kind != ConflictLinksClash || c.Links == nil {
		t.Fatalf("expected a ConflictLinksClash conflict naming both packages, got %+v", c)
	}
	if c.Links.Link != "foo" {
		t.Errorf("Links.Link = %q, want %q", c.Links.Link, "foo")
	}
	owners := map[ident.PackageName]bool{c.Links.A: true, c.Links.B: true}
	if !owners["libfoo-a"] || !owners["libfoo-b"] {
		t.Errorf("Links should name both libfoo-a and libfoo-b, got %+v", c.Links)
	}
}

func TestSolveUnknownNameUsesSuggest(t *testing.T) {
	reg := &fakeRegistry{byName: map[ident.PackageName][]pkgmeta.Summary{}}
	root := pkgmeta.Summary{
		ID:           pkgmeta.PackageID{Name: "root"},
		Dependencies: []pkgmeta.Dependency{dep(t, "sevde", "^1.0.0")},
	}

	var asked ident.PackageName
	suggest := func(name ident.PackageName) []string {
		asked = name
		return []string{"serde"}
	}

	_, err := Solve(Params{Root: root, Registry: reg, Suggest: suggest})
	if err == nil {
		t.Fatal("expected an error resolving an unknown package name")
	}
	if asked != "sevde" {
		t.Errorf("Suggest called with %q, want %q", asked, "sevde")
	}
	if !strings.Contains(err.Error(), "did you mean: serde?") {
		t.Errorf("error = %q, want it to include the suggestion", err.Error())
	}
}

func TestSolvePrefersLockedVersion(t *testing.T) {
	reg := &fakeRegistry{byName: map[ident.PackageName][]pkgmeta.Summary{
		"b": {pkg(t, "b", "1.0.0"), pkg(t, "b", "1.2.0")},
	}}
	root := pkgmeta.Summary{
		ID:           pkgmeta.PackageID{Name: "root"},
		Dependencies: []pkgmeta.Dependency{dep(t, "b", "^1.0.0")},
	}
	locked := map[ident.PackageName]pkgmeta.PackageID{
		"b": {Name: "b", Version: mustVer(t, "1.0.0"), Source: sid()},
	}
	g, err := Solve(Params{Root: root, Registry: reg, Locked: locked})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got := g.Packages["b"].Version.String(); got != "1.0.0" {
		t.Errorf("expected the locked version 1.0.0 to be preferred, got %s", got)
	}
}
