// Package ledger persists the resource map of the last successful reconciliation.
// The ledger is what the next reconciliation diffs the new manifest against, so it
// must only ever be written after the live cache has been brought in line with it.
package ledger

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aceeric/shellcache/impl/globals"
	"github.com/aceeric/shellcache/impl/manifest"
	"github.com/aceeric/shellcache/impl/store"
)

// Ledger reads and writes the single ledger record
type Ledger struct {
	s store.Storage
}

// New returns a Ledger backed by the passed storage
func New(s store.Storage) *Ledger {
	return &Ledger{s: s}
}

// Read returns the recorded resource map. The bool is false if there is no ledger,
// which is the case on first run and after a failed reconciliation.
func (l *Ledger) Read() (manifest.Resources, bool, error) {
	if has, err := l.s.Has(globals.LedgerCache); err != nil || !has {
		return nil, false, err
	}
	c, err := l.s.Open(globals.LedgerCache)
	if err != nil {
		return nil, false, err
	}
	r, found, err := c.Match(globals.LedgerKey)
	if err != nil || !found {
		return nil, false, err
	}
	var resources manifest.Resources
	if err := json.Unmarshal(r.Body, &resources); err != nil {
		return nil, false, fmt.Errorf("corrupt manifest ledger: %w", err)
	}
	return resources, true, nil
}

// Write replaces the ledger with the passed resource map
func (l *Ledger) Write(resources manifest.Resources) error {
	b, err := json.Marshal(resources)
	if err != nil {
		return err
	}
	c, err := l.s.Open(globals.LedgerCache)
	if err != nil {
		return err
	}
	return c.Put(globals.LedgerKey, store.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   b,
		Stored: time.Now(),
	})
}

// Delete removes the ledger store entirely
func (l *Ledger) Delete() error {
	_, err := l.s.Delete(globals.LedgerCache)
	return err
}
