package manifest

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/forgelang/forge/internal/diag"
	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
	"github.com/forgelang/forge/internal/unitgraph"
)

// rawManifest is Forge.toml's literal shape: dependencies are always
// written as inline tables (`foo = { version = "1.0" }`), mirroring the
// teacher's own possibleProps shape in manifest.go, just for TOML
// instead of JSON.
type rawManifest struct {
	Package struct {
		Name        string `toml:"name"`
		Version     string `toml:"version"`
		RustVersion string `toml:"rust-version,omitempty"`
		Links       string `toml:"links,omitempty"`
	} `toml:"package"`

	Dependencies    map[string]rawDependency            `toml:"dependencies,omitempty"`
	DevDependencies map[string]rawDependency            `toml:"dev-dependencies,omitempty"`
	BuildDeps       map[string]rawDependency            `toml:"build-dependencies,omitempty"`
	Target          map[string]rawTargetTable           `toml:"target,omitempty"`
	Features        map[string][]string                 `toml:"features,omitempty"`
	Profile         map[string]rawProfile                `toml:"profile,omitempty"`
	Patch           map[string]map[string]rawDependency `toml:"patch,omitempty"`
	Replace         map[string]rawDependency            `toml:"replace,omitempty"`
	Workspace       *rawWorkspace                        `toml:"workspace,omitempty"`
	// Lints holds `[lints]` as a loosely-typed map since the table mixes
	// a plain `workspace = true` scalar with arbitrary lint-name ->
	// level-string entries; toManifest below splits the two apart.
	Lints map[string]interface{} `toml:"lints,omitempty"`
}

type rawTargetTable struct {
	Dependencies map[string]rawDependency `toml:"dependencies,omitempty"`
}

type rawProfile struct {
	OptLevel       string `toml:"opt-level,omitempty"`
	Debug          bool   `toml:"debug,omitempty"`
	LTO            bool   `toml:"lto,omitempty"`
	CodegenUnits   int    `toml:"codegen-units,omitempty"`
	Panic          string `toml:"panic,omitempty"`
	OverflowChecks bool   `toml:"overflow-checks,omitempty"`
	Incremental    bool   `toml:"incremental,omitempty"`
	Strip          bool   `toml:"strip,omitempty"`
}

type rawWorkspace struct {
	Members        []string          `toml:"members,omitempty"`
	DefaultMembers []string          `toml:"default-members,omitempty"`
	Lints          map[string]string `toml:"lints,omitempty"`
}

// rawDependency covers every field a `[dependencies]` entry may carry
// when written as an inline table (spec.md §4.C's dependency record,
// reused here for the manifest's own dependency syntax).
type rawDependency struct {
	Version         string   `toml:"version,omitempty"`
	Path            string   `toml:"path,omitempty"`
	Git             string   `toml:"git,omitempty"`
	Branch          string   `toml:"branch,omitempty"`
	Tag             string   `toml:"tag,omitempty"`
	Rev             string   `toml:"rev,omitempty"`
	Registry        string   `toml:"registry,omitempty"`
	Package         string   `toml:"package,omitempty"`
	Optional        bool     `toml:"optional,omitempty"`
	DefaultFeatures *bool    `toml:"default-features,omitempty"`
	Features        []string `toml:"features,omitempty"`
	Target          string   `toml:"target,omitempty"`
	Public          bool     `toml:"public,omitempty"`
	ArtifactKinds   []string `toml:"artifact,omitempty"`
	ArtifactTarget  string   `toml:"bindep-target,omitempty"`
}

func (d rawDependency) toDependency(name string, kind pkgmeta.DepKind) (pkgmeta.Dependency, error) {
	var src ident.SourceID
	switch {
	case d.Path != "":
		src = ident.NewSourceID(ident.KindPath, d.Path)
	case d.Git != "":
		ref := ident.DefaultBranch
		switch {
		case d.Branch != "":
			ref = ident.Branch(d.Branch)
		case d.Tag != "":
			ref = ident.Tag(d.Tag)
		case d.Rev != "":
			ref = ident.Rev(d.Rev)
		}
		src = ident.NewGitSourceID(d.Git, ref)
	case d.Registry != "":
		src = ident.NewSourceID(ident.KindRegistry, d.Registry)
	default:
		src = ident.NewSourceID(ident.KindRegistry, "")
	}

	req := ident.Requirement{}
	if d.Version != "" {
		var err error
		req, err = ident.ParseRequirement(d.Version)
		if err != nil {
			return pkgmeta.Dependency{}, errors.Wrapf(err, "dependency %q", name)
		}
	} else {
		req, _ = ident.ParseRequirement("*")
	}

	var platform ident.PlatformExpr
	if d.Target != "" {
		p, err := ident.ParsePlatformExpr(d.Target)
		if err != nil {
			return pkgmeta.Dependency{}, errors.Wrapf(err, "dependency %q target", name)
		}
		platform = p
	}

	defaultFeatures := true
	if d.DefaultFeatures != nil {
		defaultFeatures = *d.DefaultFeatures
	}

	rename := ""
	depName := name
	if d.Package != "" {
		rename = name
		depName = d.Package
	}

	var artifact *pkgmeta.ArtifactSpec
	if len(d.ArtifactKinds) > 0 || d.ArtifactTarget != "" {
		artifact = &pkgmeta.ArtifactSpec{Kinds: d.ArtifactKinds, Target: d.ArtifactTarget}
	}

	return pkgmeta.Dependency{
		Name:            ident.PackageName(depName),
		ExplicitRename:  rename,
		Requirement:     req,
		Source:          src,
		Kind:            kind,
		Optional:        d.Optional,
		DefaultFeatures: defaultFeatures,
		Features:        d.Features,
		Platform:        platform,
		Public:          d.Public,
		Artifact:        artifact,
	}, nil
}

func (r rawManifest) toManifest() (*Manifest, error) {
	m := &Manifest{
		Features:           r.Features,
		TargetDependencies: make(map[string][]pkgmeta.Dependency),
		Profiles:           make(ProfileTable),
		Patch:              make(map[string][]PatchEntry),
	}

	v, err := ident.ParseVersion(r.Package.Version)
	if err != nil {
		return nil, errors.Wrapf(err, "package %q version", r.Package.Name)
	}
	m.Package = Package{Name: r.Package.Name, Version: v, Links: r.Package.Links}
	if r.Package.RustVersion != "" {
		pv, err := ident.ParsePartialVersion(r.Package.RustVersion)
		if err != nil {
			return nil, errors.Wrap(err, "package rust-version")
		}
		m.Package.RustVersion = &pv
	}

	for name, rd := range r.Dependencies {
		d, err := rd.toDependency(name, pkgmeta.KindNormal)
		if err != nil {
			return nil, err
		}
		m.Normal = append(m.Normal, d)
	}
	for name, rd := range r.DevDependencies {
		d, err := rd.toDependency(name, pkgmeta.KindDev)
		if err != nil {
			return nil, err
		}
		m.Dev = append(m.Dev, d)
	}
	for name, rd := range r.BuildDeps {
		d, err := rd.toDependency(name, pkgmeta.KindBuild)
		if err != nil {
			return nil, err
		}
		m.Build = append(m.Build, d)
	}

	for cfg, table := range r.Target {
		platform, err := ident.ParsePlatformExpr(cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "target %q", cfg)
		}
		var deps []pkgmeta.Dependency
		for name, rd := range table.Dependencies {
			d, err := rd.toDependency(name, pkgmeta.KindNormal)
			if err != nil {
				return nil, err
			}
			d.Platform = platform
			deps = append(deps, d)
		}
		m.TargetDependencies[cfg] = deps
	}

	for name, rp := range r.Profile {
		m.Profiles[name] = unitgraph.ProfileSettings{
			OptLevel:       rp.OptLevel,
			DebugInfo:      rp.Debug,
			LTO:            rp.LTO,
			CodegenUnits:   rp.CodegenUnits,
			Panic:          rp.Panic,
			OverflowChecks: rp.OverflowChecks,
			Incremental:    rp.Incremental,
			Strip:          rp.Strip,
		}
	}

	for registry, entries := range r.Patch {
		var patches []PatchEntry
		for name, rd := range entries {
			d, err := rd.toDependency(name, pkgmeta.KindNormal)
			if err != nil {
				return nil, errors.Wrapf(err, "patch.%s", registry)
			}
			patches = append(patches, PatchEntry{Name: name, Dep: d})
		}
		m.Patch[registry] = patches
	}

	for name, rd := range r.Replace {
		d, err := rd.toDependency(name, pkgmeta.KindNormal)
		if err != nil {
			return nil, errors.Wrap(err, "replace")
		}
		m.Replace = append(m.Replace, PatchEntry{Name: name, Dep: d})
	}

	if r.Workspace != nil {
		ws := &Workspace{Members: r.Workspace.Members, DefaultMembers: r.Workspace.DefaultMembers}
		lints, err := parseLintTable(r.Workspace.Lints)
		if err != nil {
			return nil, errors.Wrap(err, "workspace.lints")
		}
		ws.Lints = lints
		m.Workspace = ws
	}

	inherit, lints, err := splitLintsTable(r.Lints)
	if err != nil {
		return nil, errors.Wrap(err, "lints")
	}
	m.LintsInheritWorkspace = inherit
	m.Lints = lints

	return m, nil
}

// splitLintsTable separates `[lints]`'s plain `workspace = true` opt-in
// scalar from its arbitrary lint-name -> level-string entries; go-toml
// decodes a mixed table like this into map[string]interface{} rather
// than a fixed struct shape.
func splitLintsTable(raw map[string]interface{}) (inherit bool, table diag.Table, err error) {
	for name, v := range raw {
		if name == "workspace" {
			if b, ok := v.(bool); ok {
				inherit = b
			}
			continue
		}
		levelStr, ok := v.(string)
		if !ok {
			return false, nil, fmt.Errorf("lint %q: expected a level string, got %T", name, v)
		}
		level, err := diag.ParseLevel(levelStr)
		if err != nil {
			return false, nil, fmt.Errorf("lint %q: %w", name, err)
		}
		if table == nil {
			table = make(diag.Table)
		}
		table[name] = level
	}
	return inherit, table, nil
}

func parseLintTable(raw map[string]string) (diag.Table, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(diag.Table, len(raw))
	for name, levelStr := range raw {
		level, err := diag.ParseLevel(levelStr)
		if err != nil {
			return nil, fmt.Errorf("lint %q: %w", name, err)
		}
		out[name] = level
	}
	return out, nil
}
