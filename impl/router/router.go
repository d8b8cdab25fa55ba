// Package router decides how each intercepted request is answered: passed through to
// the network, served cache-first, or served network-first with a cache fallback.
package router

import (
	"context"
	"net/http"

	"github.com/aceeric/shellcache/impl/fetch"
	"github.com/aceeric/shellcache/impl/globals"
	"github.com/aceeric/shellcache/impl/manifest"
	"github.com/aceeric/shellcache/impl/metrics"
	"github.com/aceeric/shellcache/impl/resourcekey"
	"github.com/aceeric/shellcache/impl/store"

	log "github.com/sirupsen/logrus"
)

// Strategy is how a request is answered
type Strategy int

const (
	// PassThrough leaves the request to the network with no caching
	PassThrough Strategy = iota
	// CacheFirst serves from the live cache, falling back to the network
	CacheFirst
	// OnlineFirst serves from the network, falling back to the live cache
	OnlineFirst
)

func (s Strategy) String() string {
	switch s {
	case CacheFirst:
		return "cache-first"
	case OnlineFirst:
		return "online-first"
	}
	return "pass-through"
}

// Decide picks the strategy for a request. Only GETs for resources in the manifest
// are cached. The entry document is always fetched network-first so a new
// deployment is picked up on the next load.
func Decide(method string, key string, m *manifest.Manifest) Strategy {
	if method != http.MethodGet || !m.Has(key) {
		return PassThrough
	}
	if key == globals.RootKey {
		return OnlineFirst
	}
	return CacheFirst
}

// Router serves requests for one manifest version
type Router struct {
	s store.Storage
	f fetch.Fetcher
	m *manifest.Manifest
}

// New creates a Router
func New(s store.Storage, f fetch.Fetcher, m *manifest.Manifest) *Router {
	return &Router{s: s, f: f, m: m}
}

// Handle answers a request given its method and request URI (path plus optional
// query). The bool is false if the request is not handled and should pass through to
// the network untouched. If handled, either the response or an error is returned. An
// error means the network failed and there was no cached copy to fall back on.
func (r *Router) Handle(ctx context.Context, method string, requestUri string) (store.Response, bool, error) {
	key := resourcekey.FromRequestURI(requestUri)
	strategy := Decide(method, key, r.m)
	if strategy == PassThrough {
		metrics.IncPassThrough()
		return store.Response{}, false, nil
	}
	var resp store.Response
	var err error
	if strategy == OnlineFirst {
		resp, err = r.onlineFirst(ctx, key)
	} else {
		resp, err = r.cacheFirst(ctx, key)
	}
	return resp, true, err
}

// cacheFirst serves the cached entry if there is one. Otherwise it fetches from the
// network and stores a copy of an ok response. A network failure is returned as is.
// If the live cache can't be read the request is answered from the network.
func (r *Router) cacheFirst(ctx context.Context, key string) (store.Response, error) {
	live := r.openLive()
	if live != nil {
		if resp, found, err := live.Match(key); err != nil {
			log.Warnf("error reading %s from live cache, fetching instead: %s", key, err)
		} else if found {
			metrics.IncCacheHits()
			return resp, nil
		}
	}
	metrics.IncCacheMisses()
	resp, err := r.f.Fetch(ctx, key, false)
	if err != nil {
		return store.Response{}, err
	}
	r.putOK(live, key, resp)
	return resp, nil
}

// onlineFirst fetches from the network and stores a copy of an ok response. If the
// network fails the cached entry is served, if there is one. The live cache is only
// opened after the fetch.
func (r *Router) onlineFirst(ctx context.Context, key string) (store.Response, error) {
	resp, fetchErr := r.f.Fetch(ctx, key, false)
	live := r.openLive()
	if fetchErr == nil {
		r.putOK(live, key, resp)
		return resp, nil
	}
	if live == nil {
		return store.Response{}, fetchErr
	}
	cached, found, err := live.Match(key)
	if err != nil || !found {
		return store.Response{}, fetchErr
	}
	log.Debugf("network failed for %s, serving cached copy: %s", key, fetchErr)
	metrics.IncCacheHits()
	return cached, nil
}

// openLive opens the live cache or returns nil, logging the error
func (r *Router) openLive() store.Cache {
	live, err := r.s.Open(globals.LiveCache)
	if err != nil {
		log.Warnf("unable to open live cache: %s", err)
		return nil
	}
	return live
}

// putOK writes an ok response to the live cache. A failed write only costs a future
// cache hit so it is logged and otherwise ignored.
func (r *Router) putOK(live store.Cache, key string, resp store.Response) {
	if live == nil || !resp.OK() {
		return
	}
	if err := live.Put(key, resp); err != nil {
		log.Warnf("unable to cache %s: %s", key, err)
	}
}
