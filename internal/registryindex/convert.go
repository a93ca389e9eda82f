package registryindex

import (
	"github.com/pkg/errors"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
)

// ToSummary converts one index Entry into a pkgmeta.Summary anchored at
// the given SourceID.
func ToSummary(e Entry, src ident.SourceID) (pkgmeta.Summary, error) {
	v, err := ident.ParseVersion(e.Vers)
	if err != nil {
		return pkgmeta.Summary{}, errors.Wrapf(err, "index entry %s", e.Name)
	}

	deps := make([]pkgmeta.Dependency, 0, len(e.Deps))
	for _, d := range e.Deps {
		req, err := ident.ParseRequirement(d.Req)
		if err != nil {
			return pkgmeta.Summary{}, errors.Wrapf(err, "index entry %s dependency %s", e.Name, d.Name)
		}
		var platform ident.PlatformExpr
		if d.Target != "" {
			platform, err = ident.ParsePlatformExpr(d.Target)
			if err != nil {
				return pkgmeta.Summary{}, errors.Wrapf(err, "index entry %s dependency %s target", e.Name, d.Name)
			}
		}
		kind := pkgmeta.KindNormal
		switch d.Kind {
		case "dev":
			kind = pkgmeta.KindDev
		case "build":
			kind = pkgmeta.KindBuild
		}
		rename := ""
		name := d.Name
		if d.Package != "" {
			rename = d.Name
			name = d.Package
		}
		var artifact *pkgmeta.ArtifactSpec
		if len(d.Artifact) > 0 || d.BinDepTarget != "" {
			artifact = &pkgmeta.ArtifactSpec{Kinds: d.Artifact, Target: d.BinDepTarget}
		}
		deps = append(deps, pkgmeta.Dependency{
			Name:            ident.PackageName(name),
			ExplicitRename:  rename,
			Requirement:     req,
			Source:          src,
			Kind:            kind,
			Optional:        d.Optional,
			DefaultFeatures: d.DefaultFeaturesEnabled(),
			Features:        d.Features,
			Platform:        platform,
			Public:          d.Public,
			Artifact:        artifact,
		})
	}

	sum := pkgmeta.Summary{
		ID: pkgmeta.PackageID{
			Name:    ident.PackageName(e.Name),
			Version: v,
			Source:  src,
		},
		Dependencies: deps,
		Features:     e.MergedFeatures(),
		Links:        e.Links,
	}
	if e.ToolVersion != "" {
		pv, err := ident.ParsePartialVersion(e.ToolVersion)
		if err == nil {
			sum.MinToolchain = &pv
		}
	}
	return sum, nil
}
