package resolve

import (
	"fmt"
	"strings"

	"github.com/forgelang/forge/internal/ident"
	"github.com/forgelang/forge/internal/pkgmeta"
)

// queueItem is one dependency edge still awaiting resolution.
type queueItem struct {
	from ident.PackageName // "" for the root project
	dep  pkgmeta.Dependency
}

// activation is the solver's bookkeeping for one currently-selected
// package: its chosen candidate plus the cumulative requested and
// resolved feature state driving which of its own dependencies are live.
type activation struct {
	pkg               pkgmeta.PackageID
	summary           pkgmeta.Summary
	requestedFeatures map[string]bool
	wantDefault       bool
	enabled           map[string]bool
	depFeatureReq     map[string]map[string]bool
}

type state struct {
	params     *Params
	q          *registryQueryer
	activated  map[ident.PackageName]*activation
	linksOwner map[string]ident.PackageName
	edges      []Edge
	edgeSeen   map[string]bool
}

// Solve runs the backtracking resolver described by params and returns
// the selected package graph, or an *Error describing why no
// assignment satisfies every constraint.
func Solve(params Params) (*Graph, error) {
	vp := newVersionPreferences(params.Locked, params.ToChange, params.ChangeAll)
	st := &state{
		params:     &params,
		q:          newRegistryQueryer(params.Registry, vp, params.Ordering),
		activated:  make(map[ident.PackageName]*activation),
		linksOwner: make(map[string]ident.PackageName),
		edgeSeen:   make(map[string]bool),
	}

	requested := make(map[string]bool, len(params.RequestedFeatures))
	for _, f := range params.RequestedFeatures {
		requested[f] = true
	}
	rootEnabled, rootDepFeatures := featureClosure(params.Root, requested, !params.NoDefaultFeatures)
	queue := st.dependencyEdgesFrom(params.Root, rootEnabled, rootDepFeatures, "")

	ok, rerr := st.solve(queue)
	if !ok {
		return nil, rerr
	}

	g := &Graph{
		Packages: make(map[ident.PackageName]pkgmeta.PackageID, len(st.activated)),
		Features: make(map[ident.PackageName]map[string]bool, len(st.activated)),
		Edges:    st.edges,
	}
	for name, act := range st.activated {
		g.Packages[name] = act.pkg
		g.Features[name] = act.enabled
	}
	return g, nil
}

// dependencyEdgesFrom expands summary's dependency list into queue items,
// applying optional-dependency gating (only active if its implicit
// feature name is enabled) and attaching each dependency's declared
// feature list plus anything routed to it via an `x/y` feature value.
func (st *state) dependencyEdgesFrom(summary pkgmeta.Summary, enabled map[string]bool, depFeatureReq map[string]map[string]bool, from ident.PackageName) []queueItem {
	var out []queueItem
	for _, d := range summary.Dependencies {
		if d.Kind == pkgmeta.KindDev {
			if from != "" {
				continue // non-root dev-dependencies never participate
			}
			if !st.params.IncludeDev {
				continue
			}
		}
		if d.Optional && !enabled[d.EffectiveName()] {
			continue
		}
		features := append([]string{}, d.Features...)
		for f := range depFeatureReq[d.EffectiveName()] {
			features = append(features, f)
		}
		edgeDep := d
		edgeDep.Features = features
		out = append(out, queueItem{from: from, dep: edgeDep})
	}
	return out
}

func (st *state) solve(queue []queueItem) (bool, *Error) {
	if len(queue) == 0 {
		return true, nil
	}
	item := queue[0]
	rest := queue[1:]
	dep := item.dep

	if dep.Platform != nil && len(st.params.Platforms) > 0 && !platformMatchesAny(dep.Platform, st.params.Platforms) {
		return st.solve(rest)
	}

	if act, ok := st.activated[dep.Name]; ok {
		if !dep.Requirement.Matches(act.pkg.Version) {
			return false, &Error{Conflicts: []Conflict{{
				Name:   dep.Name,
				Reason: fmt.Sprintf("already resolved to %s (required by %s), which does not satisfy requirement %s required by %s", act.pkg.Version, act.pkg, dep.Requirement, displayFrom(item.from)),
			}}}
		}
		st.recordEdge(item.from, dep)
		grew, newEdges := st.growFeatures(act, dep, item.from)
		if !grew {
			return st.solve(rest)
		}
		return st.solve(append(newEdges, rest...))
	}

	cands, err := st.q.query(dep)
	if err != nil {
		return false, &Error{Conflicts: []Conflict{{Name: dep.Name, Reason: err.Error()}}}
	}

	var lastConflict *Error
	var linksClash *Conflict
	tried := false
	for _, cand := range cands {
		if !dep.Requirement.Matches(cand.ID.Version) {
			continue
		}
		if cand.Links != "" {
			if owner, taken := st.linksOwner[cand.Links]; taken && owner != cand.ID.Name {
				if linksClash == nil {
					linksClash = &Conflict{
						Name:   dep.Name,
						Reason: fmt.Sprintf("%s and %s both declare links = %q; only one may be activated (required by %s)", owner, cand.ID.Name, cand.Links, displayFrom(item.from)),
						Kind:   ConflictLinksClash,
						Links:  &LinksClash{A: owner, B: cand.ID.Name, Link: cand.Links},
					}
				}
				continue
			}
		}
		tried = true
		edges := st.activate(cand, dep, item.from)
		ok, cerr := st.solve(append(edges, rest...))
		if ok {
			return true, nil
		}
		st.deactivate(cand)
		lastConflict = cerr
	}
	if !tried {
		if linksClash != nil {
			return false, &Error{Conflicts: []Conflict{*linksClash}}
		}
		if len(cands) == 0 {
			reason := fmt.Sprintf("no such package %q (required by %s)", dep.Name, displayFrom(item.from))
			if st.params.Suggest != nil {
				if suggestions := st.params.Suggest(dep.Name); len(suggestions) > 0 {
					reason += fmt.Sprintf("; did you mean: %s?", strings.Join(suggestions, ", "))
				}
			}
			return false, &Error{Conflicts: []Conflict{{Name: dep.Name, Reason: reason}}}
		}
		return false, &Error{Conflicts: []Conflict{{
			Name:   dep.Name,
			Reason: fmt.Sprintf("no candidate satisfies requirement %s (required by %s)", dep.Requirement, displayFrom(item.from)),
		}}}
	}
	if lastConflict != nil {
		if linksClash != nil {
			lastConflict.Conflicts = append(lastConflict.Conflicts, *linksClash)
		}
		lastConflict.Conflicts = append(lastConflict.Conflicts, Conflict{
			Name:   dep.Name,
			Reason: fmt.Sprintf("every candidate satisfying %s (required by %s) led to a downstream conflict", dep.Requirement, displayFrom(item.from)),
		})
	}
	return false, lastConflict
}

func (st *state) activate(cand pkgmeta.Summary, dep pkgmeta.Dependency, from ident.PackageName) []queueItem {
	requested := make(map[string]bool, len(dep.Features))
	for _, f := range dep.Features {
		requested[f] = true
	}
	enabled, depFeatureReq := featureClosure(cand, requested, dep.DefaultFeatures)
	act := &activation{
		pkg:               cand.ID,
		summary:           cand,
		requestedFeatures: requested,
		wantDefault:       dep.DefaultFeatures,
		enabled:           enabled,
		depFeatureReq:     depFeatureReq,
	}
	st.activated[cand.ID.Name] = act
	if cand.Links != "" {
		st.linksOwner[cand.Links] = cand.ID.Name
	}
	st.recordEdge(from, dep)
	return st.dependencyEdgesFrom(cand, enabled, depFeatureReq, cand.ID.Name)
}

func (st *state) deactivate(cand pkgmeta.Summary) {
	delete(st.activated, cand.ID.Name)
	if cand.Links != "" && st.linksOwner[cand.Links] == cand.ID.Name {
		delete(st.linksOwner, cand.Links)
	}
	for k := range st.edgeSeen {
		// edges recorded while this activation's subtree was live must be
		// forgettable on backtrack so a later, different candidate can
		// re-derive them; they are namespaced by target name in the key.
		if hasEdgeTarget(k, cand.ID.Name) {
			delete(st.edgeSeen, k)
		}
	}
	var kept []Edge
	for _, e := range st.edges {
		if e.To != cand.ID.Name {
			kept = append(kept, e)
		}
	}
	st.edges = kept
}

// growFeatures merges dep's requested features into act's cumulative
// request and recomputes the fixed point. It reports whether anything
// new became enabled, and if so, the dependency edges to (re)expand.
func (st *state) growFeatures(act *activation, dep pkgmeta.Dependency, from ident.PackageName) (bool, []queueItem) {
	for _, f := range dep.Features {
		act.requestedFeatures[f] = true
	}
	act.wantDefault = act.wantDefault || dep.DefaultFeatures
	enabled, depFeatureReq := featureClosure(act.summary, act.requestedFeatures, act.wantDefault)
	if mapsEqualBool(enabled, act.enabled) && depFeatureReqEqual(depFeatureReq, act.depFeatureReq) {
		return false, nil
	}
	act.enabled = enabled
	act.depFeatureReq = depFeatureReq
	return true, st.dependencyEdgesFrom(act.summary, enabled, depFeatureReq, act.pkg.Name)
}

func (st *state) recordEdge(from ident.PackageName, dep pkgmeta.Dependency) {
	key := edgeKey(from, dep)
	if st.edgeSeen[key] {
		return
	}
	st.edgeSeen[key] = true
	st.edges = append(st.edges, Edge{From: from, To: dep.Name, Dep: dep})
}

func edgeKey(from ident.PackageName, dep pkgmeta.Dependency) string {
	return string(from) + "=>" + string(dep.Name) + "#" + dep.Requirement.String()
}

func hasEdgeTarget(key string, name ident.PackageName) bool {
	return strings.Contains(key, "=>"+string(name)+"#")
}

func displayFrom(from ident.PackageName) string {
	if from == "" {
		return "the project root"
	}
	return string(from)
}

func platformMatchesAny(expr ident.PlatformExpr, sets []ident.CfgSet) bool {
	for _, c := range sets {
		if expr.Eval(c) {
			return true
		}
	}
	return false
}
