// Package pkgmeta holds the data model shared by the source, registry
// index, and resolver layers: PackageID, Summary, and Dependency
// (spec.md §3).
package pkgmeta

import (
	"fmt"
	"strings"

	"github.com/forgelang/forge/internal/ident"
)

// PackageID is the triple (name, version, SourceID) that uniquely
// identifies one concrete package. Equality and hashing use all three
// components: two packages with the same name+version but a different
// source are distinct.
type PackageID struct {
	Name    ident.PackageName
	Version ident.Version
	Source  ident.SourceID
}

func (id PackageID) String() string {
	return fmt.Sprintf("%s@%s", id.Name, id.Version)
}

// Key is a comparable form suitable for use as a map key.
func (id PackageID) Key() string {
	return string(id.Name) + "@" + id.Version.String() + "@" + id.Source.Hash()
}

// Equal reports whether id and o identify the same concrete package.
func (id PackageID) Equal(o PackageID) bool {
	return id.Name == o.Name && id.Version.Compare(o.Version) == 0 && id.Source.Equal(o.Source)
}

// DepKind classifies a dependency edge by when it is needed.
type DepKind uint8

const (
	KindNormal DepKind = iota
	KindBuild
	KindDev
)

func (k DepKind) String() string {
	switch k {
	case KindBuild:
		return "build"
	case KindDev:
		return "dev"
	default:
		return "normal"
	}
}

// ArtifactSpec describes an artifact-dependency binding (a dependency
// consumed as a pre-built binary rather than linked as a library).
type ArtifactSpec struct {
	Kinds       []string // e.g. "bin", "cdylib"
	Target      string   // optional explicit target triple ("target = ...")
	BinName     string   // optional explicit binary name selection
}

// Dependency is one edge out of a package or the root manifest.
type Dependency struct {
	Name            ident.PackageName
	ExplicitRename  string // "" unless the edge renames the dependency
	Requirement     ident.Requirement
	Source          ident.SourceID
	Kind            DepKind
	Optional        bool
	DefaultFeatures bool
	Features        []string
	Platform        ident.PlatformExpr // nil means "always active"
	Public          bool
	Artifact        *ArtifactSpec
}

// EffectiveName is the name this dependency is referred to as from the
// activating package's feature namespace: the rename if present,
// otherwise the package name.
func (d Dependency) EffectiveName() string {
	if d.ExplicitRename != "" {
		return d.ExplicitRename
	}
	return string(d.Name)
}

// FeatureValue is one parsed element of a feature's value list. The four
// forms (spec.md §3, §4.D):
//
//	"x"     -> Enable{Feature: "x"}
//	"dep:x" -> EnableOptionalDep{Dep: "x"}
//	"x/y"   -> EnableDepFeature{Dep: "x", Feature: "y"}
//	"x?/y"  -> EnableDepFeature{Dep: "x", Feature: "y", WeakOnly: true}
type FeatureValue struct {
	Kind              FeatureValueKind
	Feature           string // for Enable
	Dep               string // for EnableOptionalDep / EnableDepFeature
	DepFeature        string // for EnableDepFeature
	WeakOnly          bool   // "x?/y": only if x is otherwise activated
}

type FeatureValueKind uint8

const (
	FVEnable FeatureValueKind = iota
	FVEnableOptionalDep
	FVEnableDepFeature
)

// ParseFeatureValue parses one entry from a feature's value list.
func ParseFeatureValue(s string) (FeatureValue, error) {
	if strings.HasPrefix(s, "dep:") {
		dep := strings.TrimPrefix(s, "dep:")
		if dep == "" {
			return FeatureValue{}, fmt.Errorf("empty dependency name in feature value %q", s)
		}
		return FeatureValue{Kind: FVEnableOptionalDep, Dep: dep}, nil
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		dep := s[:i]
		feat := s[i+1:]
		weak := false
		if strings.HasSuffix(dep, "?") {
			weak = true
			dep = strings.TrimSuffix(dep, "?")
		}
		if dep == "" || feat == "" {
			return FeatureValue{}, fmt.Errorf("malformed feature value %q", s)
		}
		return FeatureValue{Kind: FVEnableDepFeature, Dep: dep, DepFeature: feat, WeakOnly: weak}, nil
	}
	if s == "" {
		return FeatureValue{}, fmt.Errorf("empty feature value")
	}
	return FeatureValue{Kind: FVEnable, Feature: s}, nil
}

// Summary is the metadata of one concrete package version: everything
// needed to activate it and expand its dependency edges, but nothing
// about how it was obtained (that's the Source layer's job).
type Summary struct {
	ID           PackageID
	Dependencies []Dependency
	Features     map[string][]string // feature name -> raw feature-value strings
	Links        string              // "" means no native link name declared
	MinToolchain *ident.PartialVersion
}

// ValidateFeatureGraph checks the invariant that every feature value
// references an existing feature or an existing dependency (optional or
// not) — never a name that resolves to nothing. For a `dep/feature` value
// only the dependency name is checked, not the feature.
func (s Summary) ValidateFeatureGraph() error {
	depNames := make(map[string]bool, len(s.Dependencies))
	for _, d := range s.Dependencies {
		depNames[d.EffectiveName()] = true
	}
	for feat, vals := range s.Features {
		for _, raw := range vals {
			fv, err := ParseFeatureValue(raw)
			if err != nil {
				return fmt.Errorf("feature %q: %w", feat, err)
			}
			switch fv.Kind {
			case FVEnable:
				if fv.Feature == feat {
					continue
				}
				if _, ok := s.Features[fv.Feature]; !ok && !depNames[fv.Feature] {
					return fmt.Errorf("feature %q references unknown feature or dependency %q", feat, fv.Feature)
				}
			case FVEnableOptionalDep:
				if !depNames[fv.Dep] {
					return fmt.Errorf("feature %q references unknown optional dependency %q", feat, fv.Dep)
				}
			case FVEnableDepFeature:
				if !depNames[fv.Dep] {
					return fmt.Errorf("feature %q references unknown dependency %q", feat, fv.Dep)
				}
			}
		}
	}
	return nil
}

// OptionalDependencyNames derives the set of optional-dependency names,
// which implicitly form a feature of the same name unless referenced only
// via "dep:name".
func (s Summary) OptionalDependencyNames() map[string]bool {
	out := make(map[string]bool)
	for _, d := range s.Dependencies {
		if d.Optional {
			out[d.EffectiveName()] = true
		}
	}
	return out
}
