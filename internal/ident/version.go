// Package ident implements the identifiers and version algebra that the
// rest of forge is built on: package names, semver versions and
// requirements, partial versions, source identifiers, and platform
// expressions.
package ident

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
)

// PackageName is a registry-normalized package name. Names are compared
// case-insensitively but the canonical (as-declared) form is preserved for
// display and for on-disk paths.
type PackageName string

// Normalized returns the case-folded form used for comparisons and lookups.
func (n PackageName) Normalized() string {
	return strings.ToLower(string(n))
}

// FoldName applies the registry-wide name-folding rule used for fuzzy
// name matching: case-insensitive, with '_' and '-' treated as
// equivalent.
func FoldName(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' {
			c = '-'
		}
		if c >= 'A' && c <= 'Z' {
			c = c - 'A' + 'a'
		}
		b = append(b, c)
	}
	return string(b)
}

// Version is a parsed semver version.
type Version struct {
	sv  *semver.Version
	raw string
}

// ParseVersion parses a semver version string.
func ParseVersion(s string) (Version, error) {
	sv, err := semver.NewVersion(s)
	if err != nil {
		return Version{}, errors.Wrapf(err, "invalid version %q", s)
	}
	return Version{sv: sv, raw: s}, nil
}

func (v Version) String() string {
	if v.sv == nil {
		return v.raw
	}
	return v.sv.Original()
}

// IsPrerelease reports whether the version carries a pre-release tag.
func (v Version) IsPrerelease() bool {
	return v.sv != nil && v.sv.Prerelease() != ""
}

// Compare returns -1, 0, or 1 per the semver precedence rules.
func (v Version) Compare(o Version) int {
	return v.sv.Compare(o.sv)
}

func (v Version) LessThan(o Version) bool { return v.Compare(o) < 0 }

// Semver exposes the underlying semver.Version for code (e.g. the
// resolver's candidate sort) that needs library-native comparisons.
func (v Version) Semver() *semver.Version { return v.sv }

// Requirement is a version requirement (what spec.md calls a dependency's
// "requirement"): a semver range that may be exact, compound, or a
// wildcard. Matching defers entirely to the underlying semver constraint
// library so that pre-release admission rules — a pre-release version
// never satisfies a requirement unless some comparator of the requirement
// carries a pre-release tag on the same major.minor.patch — follow the
// reference matcher rather than a reimplementation that could drift from
// it (see spec.md §9 Open Questions).
type Requirement struct {
	c   semver.Constraint
	raw string
}

// ParseRequirement parses a version requirement: exact, `^`, `~`, `*`, or a
// compound comma-separated requirement.
func ParseRequirement(s string) (Requirement, error) {
	if s == "" || s == "*" {
		c, _ := semver.NewConstraint("*")
		return Requirement{c: c, raw: "*"}, nil
	}
	c, err := semver.NewConstraint(s)
	if err != nil {
		return Requirement{}, errors.Wrapf(err, "invalid version requirement %q", s)
	}
	return Requirement{c: c, raw: s}, nil
}

func (r Requirement) String() string {
	if r.raw != "" {
		return r.raw
	}
	return r.c.String()
}

// Matches reports whether v satisfies the requirement.
func (r Requirement) Matches(v Version) bool {
	if r.c == nil {
		return true
	}
	return r.c.Matches(v.sv) == nil
}

// PartialVersion supports major[.minor[.patch[-pre[+build]]]], tracking
// which trailing fields were actually present so that e.g. "1" and "1.0"
// remain distinguishable — used for the manifest's minimum-supported
// toolchain field.
type PartialVersion struct {
	Major      int64
	Minor      *int64
	Patch      *int64
	Pre        string
	hasPre     bool
	Build      string
	raw        string
}

// ParsePartialVersion parses a (possibly truncated) semver-shaped string.
func ParsePartialVersion(s string) (PartialVersion, error) {
	raw := s
	var build string
	if i := strings.IndexByte(s, '+'); i >= 0 {
		build = s[i+1:]
		s = s[:i]
	}
	var pre string
	hasPre := false
	if i := strings.IndexByte(s, '-'); i >= 0 {
		pre = s[i+1:]
		hasPre = true
		s = s[:i]
	}
	parts := strings.Split(s, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return PartialVersion{}, errors.Errorf("invalid partial version %q", raw)
	}
	nums := make([]int64, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return PartialVersion{}, errors.Errorf("invalid partial version %q", raw)
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return PartialVersion{}, errors.Wrapf(err, "invalid partial version %q", raw)
		}
		nums = append(nums, n)
	}
	pv := PartialVersion{Major: nums[0], Pre: pre, hasPre: hasPre, Build: build, raw: raw}
	if len(nums) > 1 {
		pv.Minor = &nums[1]
	}
	if len(nums) > 2 {
		pv.Patch = &nums[2]
	}
	return pv, nil
}

func (p PartialVersion) String() string {
	if p.raw != "" {
		return p.raw
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d", p.Major)
	if p.Minor != nil {
		fmt.Fprintf(&b, ".%d", *p.Minor)
	}
	if p.Patch != nil {
		fmt.Fprintf(&b, ".%d", *p.Patch)
	}
	if p.hasPre {
		b.WriteByte('-')
		b.WriteString(p.Pre)
	}
	if p.Build != "" {
		b.WriteByte('+')
		b.WriteString(p.Build)
	}
	return b.String()
}

// HasPrerelease reports whether a pre-release component was present.
func (p PartialVersion) HasPrerelease() bool { return p.hasPre }
