// Package resolve implements the backtracking dependency resolver:
// picking exactly one concrete version per package name that satisfies
// every requirement placed on it, while growing the active feature set
// to a fixed point and enforcing native-library-link uniqueness
// (spec.md §4.D).
package resolve

import (
	"fmt"
	"strings"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
)

// Registry is the source of candidate summaries for a dependency. The
// orchestration layer implements this by fanning a query out to whatever
// internal/source.Source backs dep.Source.
type Registry interface {
	Query(dep pkgmeta.Dependency) ([]pkgmeta.Summary, error)
}

// VersionOrdering controls whether Query results are tried
// highest-version-first (the default, matching "upgrade" semantics) or
// lowest-version-first (minimal-version resolution). The ordering applies
// to every package in the resolve; there is no mode that takes the lowest
// versions for the root's direct dependencies only.
type VersionOrdering uint8

const (
	MaximumVersionsFirst VersionOrdering = iota
	MinimumVersionsFirst
)

// Params configures one resolver run.
type Params struct {
	// Root is a synthetic summary for the project being resolved: its
	// Dependencies are the manifest's direct dependencies, its ID names
	// the project itself (conventionally with an empty SourceID).
	Root pkgmeta.Summary

	Registry Registry

	// Locked holds the previous lockfile's selections, by name. A locked
	// package is preferred over any other candidate unless its name
	// appears in ToChange or ChangeAll is set.
	Locked map[ident.PackageName]pkgmeta.PackageID
	ToChange map[ident.PackageName]bool
	ChangeAll bool

	// Ordering picks the direction candidates are tried in for names
	// with no locked (or to-be-changed) selection.
	Ordering VersionOrdering

	// IncludeDev causes the root package's Dev-kind dependencies to
	// participate in the resolve. Dev dependencies of every other
	// package are always excluded (spec.md §4.D): only the root's own
	// test/dev edges are ever built.
	IncludeDev bool

	// RequestedFeatures are extra root-level feature names to activate
	// beyond the root's own declared defaults.
	RequestedFeatures []string
	NoDefaultFeatures bool

	// Platforms is the set of CfgSets the resolved graph must support.
	// A platform-gated dependency is included if it evaluates true for
	// at least one entry. An empty Platforms means "resolve for every
	// platform", so platform-gated dependencies are always included.
	Platforms []ident.CfgSet

	// Suggest offers near-miss package names for a genuinely unknown
	// dependency name (the registry returned no candidates at all),
	// folded into the failure's Reason as a "did you mean ...?" note
	// (spec.md §4.D failure reporting, §4.J diagnostics). The resolver
	// has no notion of "every name a source has ever seen" itself; the
	// orchestration layer supplies this backed by whatever name index it
	// accumulated while querying. Nil disables the suggestion.
	Suggest func(ident.PackageName) []string
}

// Graph is the resolver's output: one selected PackageID and active
// feature set per package name, plus the edges actually walked (for
// lockfile and unit-graph construction downstream).
type Graph struct {
	Packages map[ident.PackageName]pkgmeta.PackageID
	Features map[ident.PackageName]map[string]bool
	Edges    []Edge
}

// Edge records that `From` (empty for the root) activated `To` via `Dep`.
type Edge struct {
	From ident.PackageName
	To   ident.PackageName
	Dep  pkgmeta.Dependency
}

// ConflictKind classifies a Conflict beyond its free-form Reason,
// matching the distinct kinds spec.md §7 names for dependency
// resolution (`Resolve{Unsatisfiable | Conflict | LinksClash |
// MissingFeature}`). The zero value, ConflictGeneric, covers everything
// not yet broken out into its own kind.
type ConflictKind uint8

const (
	ConflictGeneric ConflictKind = iota
	ConflictLinksClash
)

// LinksClash names the two packages that both declare the same native
// link name, of which at most one may ever be activated in a single
// resolve (spec.md §4.D link-uniqueness invariant, §9 scenario S4).
type LinksClash struct {
	A, B ident.PackageName
	Link string
}

func (l LinksClash) String() string {
	return fmt.Sprintf("LinksClash{%s, %s, %q}", l.A, l.B, l.Link)
}

// Conflict describes why a candidate, or every candidate, for a
// dependency could not be used.
type Conflict struct {
	Name   ident.PackageName
	Reason string

	// Kind is ConflictLinksClash when Links is populated; callers that
	// only care about the free-form Reason can ignore both.
	Kind  ConflictKind
	Links *LinksClash
}

func (c Conflict) String() string {
	if c.Kind == ConflictLinksClash && c.Links != nil {
		return c.Links.String()
	}
	return fmt.Sprintf("%s: %s", c.Name, c.Reason)
}

// Error is returned when no assignment satisfies every constraint. It
// carries the chain of conflicts accumulated along the failing
// backtracking path, most-specific first, for diagnostic reporting
// (spec.md §4.D failure reporting requirement).
type Error struct {
	Conflicts []Conflict
}

func (e *Error) Error() string {
	if len(e.Conflicts) == 0 {
		return "dependency resolution failed"
	}
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return "dependency resolution failed:\n  " + strings.Join(parts, "\n  ")
}
