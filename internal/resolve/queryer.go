package resolve

import (
	"github.com/pkg/errors"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
)

// versionPreferences tracks which package versions should sort ahead of
// their peers regardless of the configured VersionOrdering: versions
// already pinned in the lockfile, so an otherwise-unconstrained resolve
// does not gratuitously churn selections that are still valid.
type versionPreferences struct {
	tryToUse map[string]bool // PackageID.Key()
}

func newVersionPreferences(locked map[ident.PackageName]pkgmeta.PackageID, toChange map[ident.PackageName]bool, changeAll bool) *versionPreferences {
	vp := &versionPreferences{tryToUse: make(map[string]bool)}
	if changeAll {
		return vp
	}
	for name, id := range locked {
		if toChange[name] {
			continue
		}
		vp.tryToUse[id.Key()] = true
	}
	return vp
}

func (vp *versionPreferences) prefers(id pkgmeta.PackageID) bool {
	return vp.tryToUse[id.Key()]
}

// sortCandidates orders candidates so that preferred (locked) versions
// come first, then the remainder ordered per `ordering`. Grounded on the
// original implementation's two-key sort: preference first, version
// second (version_prefs.rs's `sort_summaries`, dep_cache.rs's
// `RegistryQueryer::query` sort).
func (vp *versionPreferences) sortCandidates(cands []pkgmeta.Summary, ordering VersionOrdering) {
	less := func(i, j int) bool {
		pi, pj := vp.prefers(cands[i].ID), vp.prefers(cands[j].ID)
		if pi != pj {
			return pi && !pj
		}
		switch ordering {
		case MinimumVersionsFirst:
			return cands[i].ID.Version.LessThan(cands[j].ID.Version)
		default:
			return cands[j].ID.Version.LessThan(cands[i].ID.Version)
		}
	}
	insertionSort(cands, less)
}

func insertionSort(cands []pkgmeta.Summary, less func(i, j int) bool) {
	for i := 1; i < len(cands); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			cands[j], cands[j-1] = cands[j-1], cands[j]
		}
	}
}

// registryQueryer memoizes Registry.Query results per distinct
// dependency signature (name + requirement + source), since the same
// dependency edge is frequently revisited along different backtracking
// paths. Grounded on dep_cache.rs's `RegistryQueryer`.
type registryQueryer struct {
	reg   Registry
	prefs *versionPreferences
	order VersionOrdering
	cache map[string][]pkgmeta.Summary
}

func newRegistryQueryer(reg Registry, prefs *versionPreferences, order VersionOrdering) *registryQueryer {
	return &registryQueryer{reg: reg, prefs: prefs, order: order, cache: make(map[string][]pkgmeta.Summary)}
}

func depSignature(dep pkgmeta.Dependency) string {
	return string(dep.Name) + "|" + dep.Requirement.String() + "|" + dep.Source.String()
}

func (q *registryQueryer) query(dep pkgmeta.Dependency) ([]pkgmeta.Summary, error) {
	sig := depSignature(dep)
	if cached, ok := q.cache[sig]; ok {
		return cached, nil
	}
	cands, err := q.reg.Query(dep)
	if err != nil {
		return nil, errors.Wrapf(err, "querying candidates for %s", dep.Name)
	}
	out := make([]pkgmeta.Summary, len(cands))
	copy(out, cands)
	q.prefs.sortCandidates(out, q.order)
	q.cache[sig] = out
	return out, nil
}
