// Package offline fills the live cache with every manifest resource it does not yet
// hold, so the whole application works without the network.
package offline

import (
	"context"
	"fmt"

	"github.com/aceeric/shellcache/impl/fetch"
	"github.com/aceeric/shellcache/impl/globals"
	"github.com/aceeric/shellcache/impl/manifest"
	"github.com/aceeric/shellcache/impl/metrics"
	"github.com/aceeric/shellcache/impl/store"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// defaultConcurrency is used when the caller passes zero
const defaultConcurrency = 4

// Missing returns the manifest keys, sorted, that are not in the live cache
func Missing(live store.Cache, m *manifest.Manifest) ([]string, error) {
	cached, err := live.Keys()
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(cached))
	for _, key := range cached {
		have[key] = true
	}
	missing := []string{}
	for _, key := range m.Keys() {
		if !have[key] {
			missing = append(missing, key)
		}
	}
	return missing, nil
}

// Sync fetches every missing resource and stores it in the live cache, with up to
// 'concurrency' fetches in flight. Existing entries are never touched. Entries fetched
// before a failure stay in the cache. The first error is returned after the in-flight
// fetches finish. The return value is the number of entries added.
func Sync(ctx context.Context, s store.Storage, f fetch.Fetcher, m *manifest.Manifest, concurrency int) (int, error) {
	live, err := s.Open(globals.LiveCache)
	if err != nil {
		return 0, err
	}
	missing, err := Missing(live, m)
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		log.Info("offline sync: nothing to do")
		return 0, nil
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	log.Infof("offline sync: fetching %d resources", len(missing))
	added := make([]bool, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, key := range missing {
		g.Go(func() error {
			resp, err := f.Fetch(gctx, key, false)
			if err != nil {
				return fmt.Errorf("offline sync %q: %w", key, err)
			}
			if !resp.OK() {
				return fmt.Errorf("offline sync %q: origin returned status %d", key, resp.Status)
			}
			if err := live.Put(key, resp); err != nil {
				return fmt.Errorf("offline sync %q: %w", key, err)
			}
			metrics.IncOfflineSyncFetches()
			added[i] = true
			return nil
		})
	}
	err = g.Wait()
	cnt := 0
	for _, a := range added {
		if a {
			cnt++
		}
	}
	if err != nil {
		log.Errorf("offline sync failed after adding %d of %d resources: %s", cnt, len(missing), err)
		return cnt, err
	}
	log.Infof("offline sync: added %d resources", cnt)
	return cnt, nil
}
