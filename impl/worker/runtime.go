package worker

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/aceeric/shellcache/impl/fetch"
	"github.com/aceeric/shellcache/impl/globals"
	"github.com/aceeric/shellcache/impl/ledger"
	"github.com/aceeric/shellcache/impl/manifest"
	"github.com/aceeric/shellcache/impl/metrics"
	"github.com/aceeric/shellcache/impl/store"

	log "github.com/sirupsen/logrus"
)

// RuntimeOpts configures a Runtime
type RuntimeOpts struct {
	// HoldNewVersions keeps a newly installed version waiting until a skipWaiting
	// message arrives. Otherwise it activates as soon as it is installed.
	HoldNewVersions bool
	// SyncConcurrency bounds parallel fetches of an offline sync
	SyncConcurrency int
	// SyncFetcher, if set, is used for offline sync instead of the runtime's
	// fetcher, e.g. to throttle bulk downloads without throttling requests.
	SyncFetcher fetch.Fetcher
}

// Runtime hosts the active worker and at most one waiting worker. Lifecycle steps
// (install, activate) are serialized so only one reconciliation ever runs at a time.
type Runtime struct {
	lifecycle sync.Mutex
	mu        sync.RWMutex
	s         store.Storage
	f         fetch.Fetcher
	opts      RuntimeOpts
	active    *Worker
	waiting   *Worker
}

// NewRuntime creates a Runtime with no workers
func NewRuntime(s store.Storage, f fetch.Fetcher, opts RuntimeOpts) *Runtime {
	return &Runtime{s: s, f: f, opts: opts}
}

// Restore resumes serving a version that was activated by an earlier process. If the
// ledger matches the passed manifest the live cache is already reconciled for it, so a
// worker is created in the activated and claimed state without installing. Returns
// false if there is no matching ledger, in which case Register must be used. Restore
// only applies when no worker is active yet.
func (rt *Runtime) Restore(m *manifest.Manifest) (bool, error) {
	rt.lifecycle.Lock()
	defer rt.lifecycle.Unlock()
	if rt.Active() != nil {
		return false, nil
	}
	recorded, found, err := ledger.New(rt.s).Read()
	if err != nil || !found {
		return false, err
	}
	if !maps.Equal(recorded, m.Resources()) {
		log.Infof("cached version differs from version %s", m.Version())
		return false, nil
	}
	w := rt.newWorker(m)
	w.state = Activated
	w.claimed = true
	rt.mu.Lock()
	rt.active = w
	rt.mu.Unlock()
	log.Infof("restored version %s from the live cache", m.Version())
	return true, nil
}

// Register installs a worker for the passed manifest. Registering the version that is
// already active or waiting does nothing. Any waiting worker is retired before the
// install starts because the install overwrites the staging cache it depends on. If
// install fails the error is returned and the active worker keeps serving. If install
// succeeds the new worker waits or, unless new versions are held, activates
// immediately. An activation error is returned but the new worker is active regardless.
func (rt *Runtime) Register(ctx context.Context, m *manifest.Manifest) error {
	rt.lifecycle.Lock()
	defer rt.lifecycle.Unlock()

	rt.mu.RLock()
	active, waiting := rt.active, rt.waiting
	rt.mu.RUnlock()
	if active != nil && active.Version() == m.Version() {
		log.Infof("version %s is already active", m.Version())
		return nil
	}
	if waiting != nil && waiting.Version() == m.Version() {
		log.Infof("version %s is already waiting", m.Version())
		return nil
	}

	if waiting != nil {
		log.Infof("version %s is superseded by version %s", waiting.Version(), m.Version())
		rt.mu.Lock()
		waiting.retire()
		rt.waiting = nil
		rt.mu.Unlock()
	}
	w := rt.newWorker(m)
	if err := w.Install(ctx); err != nil {
		log.Errorf("%s", err)
		return err
	}
	rt.mu.Lock()
	rt.waiting = w
	rt.mu.Unlock()

	if rt.opts.HoldNewVersions && active != nil {
		log.Infof("version %s is installed and waiting", m.Version())
		return nil
	}
	return rt.activateWaiting(ctx)
}

// newWorker creates a worker for the passed manifest with the runtime's options
func (rt *Runtime) newWorker(m *manifest.Manifest) *Worker {
	w := New(m, rt.s, rt.f, rt.opts.SyncConcurrency)
	if rt.opts.SyncFetcher != nil {
		w.syncF = rt.opts.SyncFetcher
	}
	return w
}

// activateWaiting promotes the waiting worker. The caller holds the lifecycle lock.
// No worker is in control while the new one reconciles, so requests pass through to
// the network until it claims.
func (rt *Runtime) activateWaiting(ctx context.Context) error {
	rt.mu.Lock()
	w := rt.waiting
	if w == nil {
		rt.mu.Unlock()
		return nil
	}
	if rt.active != nil {
		rt.active.retire()
	}
	rt.active, rt.waiting = w, nil
	rt.mu.Unlock()

	log.Infof("activating version %s", w.Version())
	claimed, err := w.Activate(ctx)
	if err != nil {
		return fmt.Errorf("activation of version %s failed: %w", w.Version(), err)
	}
	if claimed {
		log.Infof("version %s is active and serving", w.Version())
	}
	return nil
}

// Controller returns the worker that serves requests, or nil if requests should pass
// through to the network.
func (rt *Runtime) Controller() *Worker {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.active != nil && rt.active.Claimed() {
		return rt.active
	}
	return nil
}

// Active returns the active worker, claimed or not, or nil
func (rt *Runtime) Active() *Worker {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.active
}

// Waiting returns the installed worker waiting to activate, or nil
func (rt *Runtime) Waiting() *Worker {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.waiting
}

// Message handles a control message. skipWaiting activates the waiting worker, if
// there is one. downloadOffline runs an offline sync on the controlling worker.
// Anything else is ignored.
func (rt *Runtime) Message(ctx context.Context, msg string) error {
	switch msg {
	case globals.MsgSkipWaiting:
		metrics.IncControlMessages(msg)
		rt.lifecycle.Lock()
		defer rt.lifecycle.Unlock()
		return rt.activateWaiting(ctx)
	case globals.MsgDownloadOffline:
		metrics.IncControlMessages(msg)
		w := rt.Controller()
		if w == nil {
			return fmt.Errorf("no version is serving, can't sync")
		}
		return w.Message(ctx, msg)
	}
	metrics.IncControlMessages("unknown")
	log.Debugf("ignoring unknown message %q", msg)
	return nil
}
