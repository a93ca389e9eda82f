// Package lockfile encodes and decodes the frozen dependency graph a
// resolver run produces into Forge.lock's TOML form (spec.md §4.E,
// component E). The in-memory Resolve type is the logical form; Encode
// and Decode are its two halves, and must satisfy the preservation law
// decode(encode(r)) == r.
package lockfile

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
)

// SchemaVersion is written to every lockfile this package produces.
// Unknown future versions are rejected rather than silently misread.
const SchemaVersion = 3

// Resolve is the decoded, logical form of a lockfile: a frozen
// dependency graph plus the per-package checksums and source
// replacements recorded alongside it (spec.md §3 "Resolve"). Feature
// sets are deliberately NOT part of this type: like the original
// implementation's own lockfile schema, activated features are
// recomputed during resolution rather than persisted.
type Resolve struct {
	Packages      []pkgmeta.PackageID
	Edges         map[string][]pkgmeta.PackageID // package Key() -> dependency PackageIDs, any DepKind
	Checksums     map[string]string              // package Key() -> sha256 hex, "" if none recorded
	Replacements  map[string]pkgmeta.PackageID    // original package Key() -> replacement PackageID
	UnusedPatches []pkgmeta.PackageID
	Metadata      map[string]string
}

func newResolve() *Resolve {
	return &Resolve{
		Edges:        make(map[string][]pkgmeta.PackageID),
		Checksums:    make(map[string]string),
		Replacements: make(map[string]pkgmeta.PackageID),
		Metadata:     make(map[string]string),
	}
}

// document is the literal TOML shape, matching the teacher's rawLock /
// lockedDep split between an in-memory type and its serialized mirror
// (lock.go), adapted from JSON to struct-tag-driven TOML.
type document struct {
	Version  int               `toml:"version"`
	Package  []encodedPackage  `toml:"package,omitempty"`
	Metadata map[string]string `toml:"metadata,omitempty"`
	Patch    encodedPatch      `toml:"patch,omitempty"`
}

type encodedPatch struct {
	Unused []encodedPackage `toml:"unused,omitempty"`
}

type encodedPackage struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source,omitempty"`
	Checksum     string   `toml:"checksum,omitempty"`
	Dependencies []string `toml:"dependencies,omitempty"`
	Replace      string   `toml:"replace,omitempty"`
}

// Encode converts r into its TOML document bytes. rootSource is the
// SourceID a package's `source` field is omitted against: a package
// whose source equals rootSource is understood to come from the
// project itself, matching the rule in spec.md §4.E ("a missing source
// means same source as the root").
func Encode(r *Resolve, rootSource ident.SourceID) ([]byte, error) {
	doc := document{
		Version:  SchemaVersion,
		Metadata: r.Metadata,
	}

	pkgs := append([]pkgmeta.PackageID(nil), r.Packages...)
	sortPackageIDs(pkgs)

	for _, id := range pkgs {
		ep := encodedPackage{
			Name:    string(id.Name),
			Version: id.Version.String(),
		}
		if !id.Source.Equal(rootSource) {
			ep.Source = id.Source.String()
		}
		ep.Checksum = r.Checksums[id.Key()]

		deps := append([]pkgmeta.PackageID(nil), r.Edges[id.Key()]...)
		sortPackageIDs(deps)
		for _, d := range deps {
			ep.Dependencies = append(ep.Dependencies, depRefString(d, pkgs, rootSource))
		}

		if rep, ok := r.Replacements[id.Key()]; ok {
			ep.Replace = depRefString(rep, pkgs, rootSource)
		}

		doc.Package = append(doc.Package, ep)
	}

	unused := append([]pkgmeta.PackageID(nil), r.UnusedPatches...)
	sortPackageIDs(unused)
	for _, id := range unused {
		ep := encodedPackage{Name: string(id.Name), Version: id.Version.String()}
		if !id.Source.Equal(rootSource) {
			ep.Source = id.Source.String()
		}
		doc.Patch.Unused = append(doc.Patch.Unused, ep)
	}

	b, err := toml.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encoding lockfile")
	}
	return b, nil
}

// Decode parses lockfile TOML bytes back into a Resolve, resolving
// every dependency reference string against the full package list
// exactly as Encode wrote it (two-pass, like the teacher's
// register-then-link shape in lock.go/readLock).
func Decode(b []byte, rootSource ident.SourceID) (*Resolve, error) {
	var doc document
	if err := toml.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing lockfile")
	}
	if doc.Version != 0 && doc.Version > SchemaVersion {
		return nil, errors.Errorf("lockfile schema version %d is newer than this tool understands (max %d)", doc.Version, SchemaVersion)
	}

	r := newResolve()
	r.Metadata = doc.Metadata
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}

	all := make([]pkgmeta.PackageID, 0, len(doc.Package))
	byKey := make(map[string]pkgmeta.PackageID, len(doc.Package))
	for _, ep := range doc.Package {
		id, err := decodePackageID(ep.Name, ep.Version, ep.Source, rootSource)
		if err != nil {
			return nil, err
		}
		all = append(all, id)
		byKey[id.Key()] = id
	}
	r.Packages = all

	resolveRef := func(ref string) (pkgmeta.PackageID, error) {
		return resolveDepRef(ref, all, rootSource)
	}

	for i, ep := range doc.Package {
		id := all[i]
		if ep.Checksum != "" {
			r.Checksums[id.Key()] = ep.Checksum
		}
		for _, dref := range ep.Dependencies {
			target, err := resolveRef(dref)
			if err != nil {
				return nil, errors.Wrapf(err, "package %s %s: dependency %q", ep.Name, ep.Version, dref)
			}
			r.Edges[id.Key()] = append(r.Edges[id.Key()], target)
		}
		if ep.Replace != "" {
			target, err := resolveRef(ep.Replace)
			if err != nil {
				return nil, errors.Wrapf(err, "package %s %s: replace %q", ep.Name, ep.Version, ep.Replace)
			}
			r.Replacements[id.Key()] = target
		}
	}

	for _, ep := range doc.Patch.Unused {
		id, err := decodePackageID(ep.Name, ep.Version, ep.Source, rootSource)
		if err != nil {
			return nil, err
		}
		r.UnusedPatches = append(r.UnusedPatches, id)
	}

	return r, nil
}

func decodePackageID(name, version, source string, rootSource ident.SourceID) (pkgmeta.PackageID, error) {
	v, err := ident.ParseVersion(version)
	if err != nil {
		return pkgmeta.PackageID{}, errors.Wrapf(err, "package %s: invalid version %q", name, version)
	}
	src := rootSource
	if source != "" {
		src, err = ident.ParseSourceIDString(source)
		if err != nil {
			return pkgmeta.PackageID{}, errors.Wrapf(err, "package %s: invalid source %q", name, source)
		}
	}
	return pkgmeta.PackageID{Name: ident.PackageName(name), Version: v, Source: src}, nil
}

// depRefPattern splits a dependency reference written by depRefString
// into its name, optional version, and optional parenthesized source.
var depRefPattern = regexp.MustCompile(`^([^ ]+)(?: ([^ ]+))?(?: \(([^)]+)\))?$`)

// depRefString renders target as "name", "name version", or
// "name version (source)" — the shortest form that is unambiguous
// against the full package set, per spec.md §4.E. This mirrors the
// original implementation's EncodablePackageId rendering rule.
func depRefString(target pkgmeta.PackageID, all []pkgmeta.PackageID, rootSource ident.SourceID) string {
	sameName, sameNameVersion := 0, 0
	for _, p := range all {
		if p.Name != target.Name {
			continue
		}
		sameName++
		if p.Version.Compare(target.Version) == 0 {
			sameNameVersion++
		}
	}
	if sameName <= 1 {
		return string(target.Name)
	}
	if sameNameVersion <= 1 {
		return fmt.Sprintf("%s %s", target.Name, target.Version.String())
	}
	src := target.Source.String()
	if target.Source.Equal(rootSource) {
		src = ""
	}
	if src == "" {
		return fmt.Sprintf("%s %s", target.Name, target.Version.String())
	}
	return fmt.Sprintf("%s %s (%s)", target.Name, target.Version.String(), src)
}

// resolveDepRef parses a dependency reference string written by
// depRefString back into the PackageID it denotes, by matching the
// parsed fields against the full decoded package list.
func resolveDepRef(ref string, all []pkgmeta.PackageID, rootSource ident.SourceID) (pkgmeta.PackageID, error) {
	m := depRefPattern.FindStringSubmatch(ref)
	if m == nil {
		return pkgmeta.PackageID{}, errors.Errorf("malformed dependency reference %q", ref)
	}
	name, version, source := m[1], m[2], m[3]

	var candidates []pkgmeta.PackageID
	for _, p := range all {
		if string(p.Name) != name {
			continue
		}
		if version != "" && p.Version.String() != version {
			continue
		}
		if source != "" {
			sid, err := ident.ParseSourceIDString(source)
			if err != nil {
				return pkgmeta.PackageID{}, errors.Wrapf(err, "dependency reference %q", ref)
			}
			if !p.Source.Equal(sid) {
				continue
			}
		}
		candidates = append(candidates, p)
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return pkgmeta.PackageID{}, errors.Errorf("dependency reference %q matches no package in the lockfile", ref)
	default:
		return pkgmeta.PackageID{}, errors.Errorf("dependency reference %q is ambiguous (%d matching packages)", ref, len(candidates))
	}
}

func sortPackageIDs(ids []pkgmeta.PackageID) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if c := a.Version.Compare(b.Version); c != 0 {
			return c < 0
		}
		return a.Source.Less(b.Source)
	})
}

// Equivalent reports whether two Resolves would produce byte-identical
// lockfiles, ignoring slice ordering. Grounded on the teacher's
// locksAreEquivalent (lock.go), adapted to this domain's richer Resolve
// shape (no single input-hash memo field to short-circuit on, so every
// field is compared directly).
func Equivalent(a, b *Resolve) bool {
	if a == nil || b == nil {
		return false
	}
	pa, pb := append([]pkgmeta.PackageID(nil), a.Packages...), append([]pkgmeta.PackageID(nil), b.Packages...)
	sortPackageIDs(pa)
	sortPackageIDs(pb)
	if len(pa) != len(pb) {
		return false
	}
	for i := range pa {
		if !pa[i].Equal(pb[i]) {
			return false
		}
		key := pa[i].Key()
		if a.Checksums[key] != b.Checksums[key] {
			return false
		}
		da, db := append([]pkgmeta.PackageID(nil), a.Edges[key]...), append([]pkgmeta.PackageID(nil), b.Edges[key]...)
		sortPackageIDs(da)
		sortPackageIDs(db)
		if len(da) != len(db) {
			return false
		}
		for j := range da {
			if !da[j].Equal(db[j]) {
				return false
			}
		}
		ra, rok := a.Replacements[key]
		rb, rbok := b.Replacements[key]
		if rok != rbok || (rok && !ra.Equal(rb)) {
			return false
		}
	}
	if len(a.Metadata) != len(b.Metadata) {
		return false
	}
	for k, v := range a.Metadata {
		if b.Metadata[k] != v {
			return false
		}
	}
	ua, ub := append([]pkgmeta.PackageID(nil), a.UnusedPatches...), append([]pkgmeta.PackageID(nil), b.UnusedPatches...)
	sortPackageIDs(ua)
	sortPackageIDs(ub)
	if len(ua) != len(ub) {
		return false
	}
	for i := range ua {
		if !ua[i].Equal(ub[i]) {
			return false
		}
	}
	return true
}
