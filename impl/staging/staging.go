// Package staging fills the staging cache with the core shell files of a new
// version before that version is allowed to take over.
package staging

import (
	"context"
	"fmt"

	"github.com/aceeric/shellcache/impl/fetch"
	"github.com/aceeric/shellcache/impl/globals"
	"github.com/aceeric/shellcache/impl/store"

	log "github.com/sirupsen/logrus"
)

// Populate fetches every core key with reload semantics and stores the responses in
// the staging cache. Keys are fetched in order and the first failure stops the
// population: a fetch error, a non-ok response or a store error all fail the install.
// The staging cache is emptied first, and deleted again on failure, so nothing staged
// for one version can be migrated into the live cache by another.
func Populate(ctx context.Context, s store.Storage, f fetch.Fetcher, core []string) error {
	if _, err := s.Delete(globals.StagingCache); err != nil {
		return fmt.Errorf("unable to clear staging cache: %w", err)
	}
	c, err := s.Open(globals.StagingCache)
	if err != nil {
		return fmt.Errorf("unable to open staging cache: %w", err)
	}
	for _, key := range core {
		if err := stageOne(ctx, c, f, key); err != nil {
			if _, delErr := s.Delete(globals.StagingCache); delErr != nil {
				log.Errorf("unable to delete staging cache after failed install: %s", delErr)
			}
			return err
		}
	}
	log.Infof("staged %d core resources", len(core))
	return nil
}

func stageOne(ctx context.Context, c store.Cache, f fetch.Fetcher, key string) error {
	resp, err := f.Fetch(ctx, key, true)
	if err != nil {
		return fmt.Errorf("staging %q: %w", key, err)
	}
	if !resp.OK() {
		return fmt.Errorf("staging %q: origin returned status %d", key, resp.Status)
	}
	if err := c.Put(key, resp); err != nil {
		return fmt.Errorf("staging %q: %w", key, err)
	}
	log.Debugf("staged %s", key)
	return nil
}
