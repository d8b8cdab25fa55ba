// Package reconcile brings the live cache in line with a newly activated manifest.
//
// Reconciliation diffs the live cache against the ledger (the manifest of the last
// successful reconciliation) and the new manifest, evicts what changed, copies the
// staged core files in, deletes the staging cache, and records the new manifest as
// the ledger. If there is no ledger the live cache is rebuilt from the staging cache
// alone. If anything fails, all three caches are deleted so the next activation
// starts cold and no mix of two versions can survive.
package reconcile

import (
	"fmt"

	"github.com/aceeric/shellcache/impl/globals"
	"github.com/aceeric/shellcache/impl/ledger"
	"github.com/aceeric/shellcache/impl/manifest"
	"github.com/aceeric/shellcache/impl/metrics"
	"github.com/aceeric/shellcache/impl/store"

	log "github.com/sirupsen/logrus"
	"github.com/tunabay/go-infounit"
)

// Result summarizes a successful reconciliation
type Result struct {
	Plan
	// Cold is true if there was no ledger and the live cache was rebuilt
	Cold bool
	// Bytes is the total body size of the staged entries written to the live cache
	Bytes infounit.ByteCount
	// Live is the number of entries in the live cache after the commit
	Live int
}

// Reconciler reconciles the caches in one storage
type Reconciler struct {
	s      store.Storage
	ledger *ledger.Ledger
}

// New returns a Reconciler over the passed storage
func New(s store.Storage) *Reconciler {
	return &Reconciler{s: s, ledger: ledger.New(s)}
}

// Run reconciles against 'current'. A nil error means the live cache now holds only
// entries that are valid for 'current' and the caller may claim clients. On error
// the caches have been wiped and the error describes the original failure.
func (r *Reconciler) Run(current *manifest.Manifest) (Result, error) {
	result, err := r.run(current)
	if err != nil {
		metrics.IncReconciliations(metrics.OutcomeFailed)
		log.Errorf("reconciliation of version %s failed, deleting all caches: %s", current.Version(), err)
		r.wipe()
		return Result{}, err
	}
	outcome := metrics.OutcomeDiff
	if result.Cold {
		outcome = metrics.OutcomeCold
	}
	metrics.IncReconciliations(outcome)
	metrics.AddEvictions(len(result.Evict))
	metrics.AddRetained(len(result.Keep))
	metrics.AddStagedWrites(len(result.Write))
	metrics.SetLiveEntries(result.Live)
	log.Infof("reconciled version %s (%s): kept %d, evicted %d, wrote %d staged (%.1S)",
		current.Version(), outcome, len(result.Keep), len(result.Evict), len(result.Write), result.Bytes)
	return result, nil
}

func (r *Reconciler) run(current *manifest.Manifest) (Result, error) {
	live, err := r.s.Open(globals.LiveCache)
	if err != nil {
		return Result{}, fmt.Errorf("open live cache: %w", err)
	}
	staging, err := r.s.Open(globals.StagingCache)
	if err != nil {
		return Result{}, fmt.Errorf("open staging cache: %w", err)
	}
	previous, found, err := r.ledger.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read ledger: %w", err)
	}
	staged, err := staging.Keys()
	if err != nil {
		return Result{}, fmt.Errorf("list staging cache: %w", err)
	}

	var result Result
	if !found {
		// cold start: nothing in the live cache can be trusted
		result.Cold = true
		if _, err := r.s.Delete(globals.LiveCache); err != nil {
			return Result{}, fmt.Errorf("delete live cache: %w", err)
		}
		if live, err = r.s.Open(globals.LiveCache); err != nil {
			return Result{}, fmt.Errorf("open live cache: %w", err)
		}
		result.Plan = Diff(nil, nil, current.Resources(), staged)
	} else {
		cached, err := live.Keys()
		if err != nil {
			return Result{}, fmt.Errorf("list live cache: %w", err)
		}
		result.Plan = Diff(cached, previous, current.Resources(), staged)
		for _, key := range result.Evict {
			if _, err := live.Delete(key); err != nil {
				return Result{}, fmt.Errorf("evict %q: %w", key, err)
			}
			log.Debugf("evicted %s", key)
		}
	}

	for _, key := range result.Write {
		resp, found, err := staging.Match(key)
		if err != nil {
			return Result{}, fmt.Errorf("read staged %q: %w", key, err)
		} else if !found {
			return Result{}, fmt.Errorf("staged entry %q disappeared", key)
		}
		if err := live.Put(key, resp); err != nil {
			return Result{}, fmt.Errorf("write %q: %w", key, err)
		}
		result.Bytes += infounit.ByteCount(len(resp.Body))
	}
	// a staged key can also be a kept key so count what is actually there
	liveKeys, err := live.Keys()
	if err != nil {
		return Result{}, fmt.Errorf("list live cache: %w", err)
	}
	result.Live = len(liveKeys)
	if _, err := r.s.Delete(globals.StagingCache); err != nil {
		return Result{}, fmt.Errorf("delete staging cache: %w", err)
	}
	if err := r.ledger.Write(current.Resources()); err != nil {
		return Result{}, fmt.Errorf("write ledger: %w", err)
	}
	return result, nil
}

// wipe deletes all three caches. Errors are logged since there is nothing more
// that can be done about them.
func (r *Reconciler) wipe() {
	for _, name := range []string{globals.LiveCache, globals.StagingCache, globals.LedgerCache} {
		if _, err := r.s.Delete(name); err != nil {
			log.Errorf("unable to delete cache %s: %s", name, err)
		}
	}
}
