package subcmd

import (
	"fmt"

	"github.com/aceeric/shellcache/impl/config"
	"github.com/aceeric/shellcache/impl/globals"
	"github.com/aceeric/shellcache/impl/ledger"
	"github.com/aceeric/shellcache/impl/manifest"

	"github.com/tunabay/go-infounit"
)

// entry states in the listing
const (
	stateCurrent   = "current"
	stateStale     = "stale"
	stateCore      = "core"
	stateUnmanaged = "unmanaged"
)

// ListCache lists the live cache to the console. Each entry is shown with its status,
// body size, stored time, and state relative to the manifest: 'current' if the cached
// fingerprint matches, 'stale' if it doesn't, 'core' for a core file outside the
// resource map, and 'unmanaged' if the key is not in the manifest. If no manifest file
// is configured the ledger is used as the manifest.
func ListCache() error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	recorded, _, err := ledger.New(s).Read()
	if err != nil {
		return err
	}
	var m *manifest.Manifest
	if config.GetManifestFile() != "" {
		if m, err = manifest.Load(config.GetManifestFile()); err != nil {
			return err
		}
	}
	if has, err := s.Has(globals.LiveCache); err != nil {
		return err
	} else if !has {
		fmt.Println("the live cache is empty")
		return nil
	}
	live, err := s.Open(globals.LiveCache)
	if err != nil {
		return err
	}
	keys, err := live.Keys()
	if err != nil {
		return fmt.Errorf("error listing the cache: %s", err)
	}
	if config.GetListConfig().Header {
		fmt.Println("KEY STATUS SIZE STORED STATE")
	}
	var total infounit.ByteCount
	for _, key := range keys {
		resp, found, err := live.Match(key)
		if err != nil {
			return fmt.Errorf("error reading %s: %s", key, err)
		} else if !found {
			continue
		}
		size := infounit.ByteCount(len(resp.Body))
		total += size
		fmt.Printf("%s %d %.1S %s %s\n", key, resp.Status, size, resp.Stored.Format(dateFormat), entryState(key, recorded, m))
	}
	fmt.Printf("%d entries, %.1S\n", len(keys), total)
	return nil
}

// entryState classifies a cached key. 'recorded' is the ledger, which holds the
// fingerprints the live entries were cached under.
func entryState(key string, recorded manifest.Resources, m *manifest.Manifest) string {
	current := recorded
	if m != nil {
		current = m.Resources()
	}
	fp, inManifest := current[key]
	if !inManifest {
		if m != nil {
			for _, coreKey := range m.Core() {
				if coreKey == key {
					return stateCore
				}
			}
		}
		return stateUnmanaged
	}
	if recorded != nil && recorded[key] == fp {
		return stateCurrent
	}
	return stateStale
}

// magic numbers from 'format.go' in package 'time'
const dateFormat = "2006-01-02T15:04:05"
