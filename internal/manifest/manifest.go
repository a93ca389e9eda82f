// Package manifest holds the in-memory Manifest value the core
// consumes (spec.md §1: "the core consumes an already-parsed,
// already-validated manifest value") plus, as ambient plumbing only, a
// thin Forge.toml reader so cmd/forge has something to feed the
// pipeline. Manifest *parsing* is an explicit Non-goal of the core
// itself; this reader carries none of the core's invariants and exists
// purely so the CLI driver can exercise the rest of the module end to
// end.
//
// Grounded on the teacher's manifest.go/toml.go field-mapping style,
// adapted from dep's JSON manifest.json to Forge.toml, and on spec.md
// §6's field list (package identity, dependency tables, features,
// target.<cfg>.dependencies, [profile.*], [patch.*], [replace],
// [workspace], [lints]). Library: github.com/pelletier/go-toml.
package manifest

import (
	"os"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/forgelang/forge/internal/diag"
	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
	"github.com/forgelang/forge/internal/unitgraph"
)

// FileName is the manifest's conventional file name.
const FileName = "Forge.toml"

// Package is the manifest's own package-identity table.
type Package struct {
	Name       string
	Version    ident.Version
	RustVersion *ident.PartialVersion
	Links      string
}

// ProfileTable is the parsed `[profile.*]` section, name (dev/release/
// custom) to settings.
type ProfileTable map[string]unitgraph.ProfileSettings

// PatchEntry is one `[patch.<registry>]` rule: name -> replacement
// dependency (spec.md §4.D candidate query / §6 "[replace] entries
// that match more than one candidate").
type PatchEntry struct {
	Name string
	Dep  pkgmeta.Dependency
}

// Manifest is the structured value the core receives after parsing and
// validation (spec.md §6).
type Manifest struct {
	Package Package

	Normal []pkgmeta.Dependency
	Dev    []pkgmeta.Dependency
	Build  []pkgmeta.Dependency

	// TargetDependencies holds `[target.<cfg>.dependencies]`-style
	// tables: a platform expression string to the dependencies declared
	// under it, each carrying that same Platform filter already baked
	// into dep.Platform.
	TargetDependencies map[string][]pkgmeta.Dependency

	Features map[string][]string

	Profiles ProfileTable

	// Patch maps a registry/source name (e.g. "crates-io", or a git URL)
	// to the patches declared for it.
	Patch map[string][]PatchEntry
	// Replace is the older, whole-dependency-graph-wide sibling of
	// Patch: one dependency name to its replacement, with no registry
	// scoping.
	Replace []PatchEntry

	Workspace *Workspace

	Lints diag.Table
	// LintsInheritWorkspace is `[lints] workspace = true`.
	LintsInheritWorkspace bool
}

// Workspace is the `[workspace]` table: other manifests that share this
// resolution and lockfile.
type Workspace struct {
	Members        []string
	DefaultMembers []string
	Lints          diag.Table
}

// AllDependencies returns every dependency edge the manifest declares,
// across normal/dev/build kinds and every target-gated table, useful
// for building a pkgmeta.Summary.
func (m *Manifest) AllDependencies() []pkgmeta.Dependency {
	out := make([]pkgmeta.Dependency, 0, len(m.Normal)+len(m.Dev)+len(m.Build))
	out = append(out, m.Normal...)
	out = append(out, m.Dev...)
	out = append(out, m.Build...)
	for _, deps := range m.TargetDependencies {
		out = append(out, deps...)
	}
	return out
}

// ToSummary builds the pkgmeta.Summary this manifest's package
// identity and dependency tables describe, suitable for use as a
// resolver's Params.Root.
func (m *Manifest) ToSummary(source ident.SourceID) pkgmeta.Summary {
	return pkgmeta.Summary{
		ID: pkgmeta.PackageID{
			Name:    ident.PackageName(m.Package.Name),
			Version: m.Package.Version,
			Source:  source,
		},
		Dependencies: m.AllDependencies(),
		Features:     m.Features,
		Links:        m.Package.Links,
		MinToolchain: m.Package.RustVersion,
	}
}

// ReadFile reads and parses a Forge.toml at path.
func ReadFile(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %q", path)
	}
	return Parse(b)
}

// Parse decodes Forge.toml's raw TOML form into a Manifest.
func Parse(b []byte) (*Manifest, error) {
	var raw rawManifest
	if err := toml.Unmarshal(b, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse manifest TOML")
	}
	return raw.toManifest()
}
