package subcmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/aceeric/shellcache/impl/config"
	"github.com/aceeric/shellcache/impl/fetch"
	"github.com/aceeric/shellcache/impl/manifest"
	"github.com/aceeric/shellcache/impl/store"
	"github.com/aceeric/shellcache/impl/worker"
)

// loadManifest loads the configured manifest file
func loadManifest() (*manifest.Manifest, error) {
	if config.GetManifestFile() == "" {
		return nil, errors.New("a manifest file is required (--manifest-file)")
	}
	return manifest.Load(config.GetManifestFile())
}

// openStore opens the configured cache storage
func openStore() (store.Storage, error) {
	s, err := store.New(config.GetStoreType(), config.GetCachePath())
	if err != nil {
		return nil, fmt.Errorf("error opening the cache storage: %w", err)
	}
	return s, nil
}

// newFetcher creates a fetcher for the configured origin. 'rateLimit' caps fetches
// per second, zero means no limit.
func newFetcher(rateLimit int64) (*fetch.HTTPFetcher, error) {
	if config.GetOrigin().Url == "" {
		return nil, errors.New("an origin url is required (--origin)")
	}
	tlsCfg, err := config.OriginTls()
	if err != nil {
		return nil, err
	}
	return fetch.NewHTTPFetcher(fetch.Opts{
		Origin:    config.GetOrigin().Url,
		Timeout:   time.Duration(config.GetFetchTimeout()) * time.Millisecond,
		TlsCfg:    tlsCfg,
		RateLimit: rateLimit,
	})
}

// newRuntime creates a worker runtime from the configuration. Only offline sync is
// throttled by the sync rate limit, so it gets a fetcher of its own when one is set.
func newRuntime(s store.Storage, f fetch.Fetcher) (*worker.Runtime, error) {
	opts := worker.RuntimeOpts{
		HoldNewVersions: config.GetHoldNewVersions(),
		SyncConcurrency: int(config.GetSyncConcurrency()),
	}
	if config.GetSyncRateLimit() > 0 {
		syncF, err := newFetcher(config.GetSyncRateLimit())
		if err != nil {
			return nil, err
		}
		opts.SyncFetcher = syncF
	}
	return worker.NewRuntime(s, f, opts), nil
}
