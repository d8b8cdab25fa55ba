// Package worker implements the cache manager lifecycle. A Worker bundles one
// manifest version with the storage and the fetcher and moves through install
// (stage the core files), activate (reconcile and claim), and then serves requests
// and control messages. The Runtime hosts workers: it installs new versions as they
// are registered, decides when a waiting version takes over, and hands requests to
// the worker in control.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aceeric/shellcache/impl/fetch"
	"github.com/aceeric/shellcache/impl/globals"
	"github.com/aceeric/shellcache/impl/manifest"
	"github.com/aceeric/shellcache/impl/offline"
	"github.com/aceeric/shellcache/impl/reconcile"
	"github.com/aceeric/shellcache/impl/router"
	"github.com/aceeric/shellcache/impl/staging"
	"github.com/aceeric/shellcache/impl/store"

	"github.com/opencontainers/go-digest"
	log "github.com/sirupsen/logrus"
)

// ErrInstallFailed is returned when the core files of a version could not be staged
var ErrInstallFailed = errors.New("install failed")

// State is the lifecycle state of a Worker
type State int

const (
	Parsed State = iota
	Installing
	Installed
	Activating
	Activated
	Redundant
)

func (s State) String() string {
	switch s {
	case Parsed:
		return "parsed"
	case Installing:
		return "installing"
	case Installed:
		return "installed"
	case Activating:
		return "activating"
	case Activated:
		return "activated"
	case Redundant:
		return "redundant"
	}
	return "unknown"
}

// Worker is one version of the cache manager
type Worker struct {
	sync.RWMutex
	m               *manifest.Manifest
	s               store.Storage
	f               fetch.Fetcher
	r               *router.Router
	state           State
	claimed         bool
	syncF           fetch.Fetcher
	syncConcurrency int
}

// New creates a Worker in the Parsed state. 'syncConcurrency' bounds the
// parallel fetches of an offline sync.
func New(m *manifest.Manifest, s store.Storage, f fetch.Fetcher, syncConcurrency int) *Worker {
	return &Worker{
		m:               m,
		s:               s,
		f:               f,
		r:               router.New(s, f, m),
		syncF:           f,
		syncConcurrency: syncConcurrency,
	}
}

// Version is the manifest version of the worker
func (w *Worker) Version() digest.Digest {
	return w.m.Version()
}

// Manifest returns the worker's manifest
func (w *Worker) Manifest() *manifest.Manifest {
	return w.m
}

// State returns the lifecycle state
func (w *Worker) State() State {
	w.RLock()
	defer w.RUnlock()
	return w.state
}

// Claimed is true once activation has succeeded. Only a claimed worker serves
// requests.
func (w *Worker) Claimed() bool {
	w.RLock()
	defer w.RUnlock()
	return w.claimed
}

func (w *Worker) setState(s State) {
	w.Lock()
	defer w.Unlock()
	w.state = s
}

// transition moves from 'from' to 'to' or returns an error if the worker is not in
// the 'from' state
func (w *Worker) transition(from State, to State) error {
	w.Lock()
	defer w.Unlock()
	if w.state != from {
		return fmt.Errorf("worker %s: can't move to %s from %s", w.m.Version(), to, w.state)
	}
	w.state = to
	return nil
}

// Install stages the core files. On failure the worker becomes redundant and the
// returned error wraps ErrInstallFailed.
func (w *Worker) Install(ctx context.Context) error {
	if err := w.transition(Parsed, Installing); err != nil {
		return err
	}
	log.Infof("installing version %s", w.m.Version())
	if err := staging.Populate(ctx, w.s, w.f, w.m.Core()); err != nil {
		w.setState(Redundant)
		return fmt.Errorf("%w: version %s: %w", ErrInstallFailed, w.m.Version(), err)
	}
	w.setState(Installed)
	log.Infof("installed version %s", w.m.Version())
	return nil
}

// Activate reconciles the caches with the worker's manifest. The worker is
// activated either way. It claims (starts serving requests) only if reconciliation
// succeeded. A failed reconciliation leaves no caches behind so requests pass through
// to the network until a later version activates.
func (w *Worker) Activate(ctx context.Context) (bool, error) {
	if err := w.transition(Installed, Activating); err != nil {
		return false, err
	}
	_, err := reconcile.New(w.s).Run(w.m)
	w.Lock()
	defer w.Unlock()
	w.state = Activated
	w.claimed = err == nil
	return w.claimed, err
}

// Fetch answers an intercepted request. The bool is false if the request should pass
// through to the network.
func (w *Worker) Fetch(ctx context.Context, method string, requestUri string) (store.Response, bool, error) {
	if !w.Claimed() {
		return store.Response{}, false, nil
	}
	return w.r.Handle(ctx, method, requestUri)
}

// Message handles a control message addressed to this worker. Only downloadOffline
// is handled here; skipWaiting is a runtime concern. Unknown messages are ignored.
func (w *Worker) Message(ctx context.Context, msg string) error {
	switch msg {
	case globals.MsgDownloadOffline:
		if !w.Claimed() {
			return fmt.Errorf("version %s is not serving, can't sync", w.m.Version())
		}
		_, err := offline.Sync(ctx, w.s, w.syncF, w.m, w.syncConcurrency)
		return err
	case globals.MsgSkipWaiting:
		return nil
	}
	log.Debugf("ignoring unknown message %q", msg)
	return nil
}

// retire marks the worker redundant. It no longer serves requests.
func (w *Worker) retire() {
	w.Lock()
	defer w.Unlock()
	w.state = Redundant
	w.claimed = false
}
