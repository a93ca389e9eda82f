package resolve

import "github.com/forgelang/forge/internal/pkgmeta"

// featureClosure computes the fixed point of active features for sum,
// starting from requested plus "default" (when defaultFeatures is true),
// expanding every enabled feature's value list until nothing new is
// added. It also collects, per dependency, any additional features that
// enabling reached via an `x/y` or `x?/y` feature value (spec.md §3's
// feature-value grammar); weak (`x?/y`) entries are pruned back out for
// dependencies that never otherwise became activated.
//
// Features only ever grow across repeated calls with a superset of
// `requested` (feature monotonicity, spec.md §4.D): this function is
// pure, so callers rely on that property by re-running it on a growing
// `requested` set rather than mutating any running state directly.
func featureClosure(sum pkgmeta.Summary, requested map[string]bool, defaultFeatures bool) (enabled map[string]bool, depFeatures map[string]map[string]bool) {
	enabled = make(map[string]bool)
	depFeatures = make(map[string]map[string]bool)
	optionalDeps := sum.OptionalDependencyNames()

	var queue []string
	enable := func(name string) {
		if enabled[name] {
			return
		}
		enabled[name] = true
		queue = append(queue, name)
	}

	if defaultFeatures {
		if _, ok := sum.Features["default"]; ok {
			enable("default")
		}
	}
	for name := range requested {
		enable(name)
	}

	addDepFeature := func(dep, feat string) {
		if depFeatures[dep] == nil {
			depFeatures[dep] = make(map[string]bool)
		}
		depFeatures[dep][feat] = true
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if optionalDeps[name] {
			// Activating an optional dependency by its implicit
			// same-named feature just turns the dependency on; it has
			// no feature-value list of its own unless the summary also
			// declares a real feature with that name (uncommon, but
			// not forbidden).
			if _, hasOwnFeature := sum.Features[name]; !hasOwnFeature {
				continue
			}
		}
		vals, ok := sum.Features[name]
		if !ok {
			continue
		}
		for _, raw := range vals {
			fv, err := pkgmeta.ParseFeatureValue(raw)
			if err != nil {
				continue
			}
			switch fv.Kind {
			case pkgmeta.FVEnable:
				enable(fv.Feature)
			case pkgmeta.FVEnableOptionalDep:
				enable(fv.Dep)
			case pkgmeta.FVEnableDepFeature:
				addDepFeature(fv.Dep, fv.DepFeature)
				if !fv.WeakOnly {
					enable(fv.Dep)
				}
			}
		}
	}

	for dep := range depFeatures {
		if optionalDeps[dep] && !enabled[dep] {
			delete(depFeatures, dep)
		}
	}
	return enabled, depFeatures
}

func mapsEqualBool(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func depFeatureReqEqual(a, b map[string]map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !mapsEqualBool(av, bv) {
			return false
		}
	}
	return true
}
