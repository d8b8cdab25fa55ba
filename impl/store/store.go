// Package store is the named, durable key -> response storage that the cache
// manager keeps its three caches in (live, staging and the manifest ledger). A
// Storage holds any number of named caches. Each Cache maps a logical resource
// key to a stored HTTP response. All implementations are safe for concurrent use;
// concurrent writes to the same key are last-writer-wins.
package store

import (
	"fmt"
	"net/http"
	"time"
)

// Supported storage backends
const (
	FS      = "fs"
	LevelDB = "leveldb"
	Memory  = "memory"
)

// Response is a stored HTTP response
type Response struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body"`
	Stored time.Time   `json:"stored"`
}

// OK returns true for a 2xx status, matching what a browser considers an ok response
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status <= 299
}

// Clone returns a deep copy of the response
func (r Response) Clone() Response {
	c := r
	if r.Header != nil {
		c.Header = r.Header.Clone()
	}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return c
}

// Cache is one named cache
type Cache interface {
	// Match returns the response stored under 'key'. The bool is false if there is none.
	Match(key string) (Response, bool, error)
	// Put stores the response under 'key', replacing anything stored there
	Put(key string, resp Response) error
	// Delete removes 'key'. The bool is false if there was nothing to remove.
	Delete(key string) (bool, error)
	// Keys returns every key in the cache, sorted
	Keys() ([]string, error)
}

// Storage is the set of named caches
type Storage interface {
	// Open opens the named cache, creating it if it does not exist
	Open(name string) (Cache, error)
	// Has returns true if the named cache exists
	Has(name string) (bool, error)
	// Delete deletes the named cache and all its entries. The bool is false if
	// the cache did not exist.
	Delete(name string) (bool, error)
	// Names returns the names of all caches, sorted
	Names() ([]string, error)
	// Close releases the storage
	Close() error
}

// New creates a Storage of the passed type rooted at 'path'. The memory storage
// ignores the path.
func New(storeType string, path string) (Storage, error) {
	switch storeType {
	case FS, "":
		return NewFSStorage(path)
	case LevelDB:
		return NewLevelDBStorage(path)
	case Memory:
		return NewMemStorage(), nil
	}
	return nil, fmt.Errorf("unsupported store type: %q", storeType)
}
