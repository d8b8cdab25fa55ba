package subcmd

import (
	"context"
	"fmt"

	"github.com/aceeric/shellcache/impl/globals"
)

// Sync fetches every resource of the configured manifest that is missing from the live
// cache and exits. The manifest must be the one the caches were last reconciled with.
func Sync() error {
	m, err := loadManifest()
	if err != nil {
		return err
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	f, err := newFetcher(0)
	if err != nil {
		return err
	}
	rt, err := newRuntime(s, f)
	if err != nil {
		return err
	}
	restored, err := rt.Restore(m)
	if err != nil {
		return err
	} else if !restored {
		return fmt.Errorf("the caches are not reconciled with version %s, run reconcile first", m.Version())
	}
	return rt.Message(context.Background(), globals.MsgDownloadOffline)
}
