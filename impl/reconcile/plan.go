package reconcile

import (
	"sort"

	"github.com/aceeric/shellcache/impl/manifest"
	"github.com/aceeric/shellcache/impl/resourcekey"
)

// Plan is the outcome of diffing the live cache against a new manifest
type Plan struct {
	// Keep holds live keys whose fingerprint is unchanged
	Keep []string
	// Evict holds live keys that are gone from the new manifest or whose
	// fingerprint changed. On a cold start it holds every live key.
	Evict []string
	// Write holds the staged keys to copy into the live cache. Staged entries
	// always replace live ones, even when the fingerprint is unchanged.
	Write []string
}

// Diff computes the reconciliation plan. 'cached' are the keys in the live cache as
// stored, 'previous' is the ledger (nil if there is none), 'current' is the manifest
// being activated, and 'staged' are the keys in the staging cache. Keys are
// canonicalized for the comparison but reported as passed, so Evict can be used to
// delete from the store directly. All output slices are sorted.
func Diff(cached []string, previous manifest.Resources, current manifest.Resources, staged []string) Plan {
	plan := Plan{
		Keep:  []string{},
		Evict: []string{},
		Write: append([]string{}, staged...),
	}
	for _, key := range cached {
		if previous == nil {
			plan.Evict = append(plan.Evict, key)
			continue
		}
		canonical := resourcekey.Canonical(key)
		fp, inCurrent := current[canonical]
		if !inCurrent || fp != previous[canonical] {
			plan.Evict = append(plan.Evict, key)
		} else {
			plan.Keep = append(plan.Keep, key)
		}
	}
	sort.Strings(plan.Keep)
	sort.Strings(plan.Evict)
	sort.Strings(plan.Write)
	return plan
}
