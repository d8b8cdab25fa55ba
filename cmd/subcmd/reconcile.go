package subcmd

import (
	"context"
	"fmt"

	"github.com/aceeric/shellcache/impl/config"

	log "github.com/sirupsen/logrus"
)

// Reconcile installs and activates the configured manifest against the caches and
// exits. The gateway should not be running.
func Reconcile() error {
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
	if restored, err := rt.Restore(m); err != nil {
		return err
	} else if restored {
		fmt.Printf("version %s is already active in %s\n", m.Version(), config.GetCachePath())
		return nil
	}
	if err := rt.Register(context.Background(), m); err != nil {
		return err
	}
	if rt.Controller() == nil {
		return fmt.Errorf("version %s installed but did not activate", m.Version())
	}
	log.Infof("reconciled version %s", m.Version())
	fmt.Printf("version %s is active in %s\n", m.Version(), config.GetCachePath())
	return nil
}
