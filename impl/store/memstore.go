package store

import (
	"sort"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// MemStorage keeps caches in memory. Nothing survives a restart so it is only
// useful for tests and for running as a plain offline-capable proxy.
type MemStorage struct {
	sync.Mutex
	caches map[string]*memCache
}

type memCache struct {
	c *gocache.Cache
}

// NewMemStorage creates an empty in-memory storage
func NewMemStorage() *MemStorage {
	return &MemStorage{caches: make(map[string]*memCache)}
}

func (s *MemStorage) Open(name string) (Cache, error) {
	s.Lock()
	defer s.Unlock()
	if c, exists := s.caches[name]; exists {
		return c, nil
	}
	c := &memCache{c: gocache.New(gocache.NoExpiration, 0)}
	s.caches[name] = c
	return c, nil
}

func (s *MemStorage) Has(name string) (bool, error) {
	s.Lock()
	defer s.Unlock()
	_, exists := s.caches[name]
	return exists, nil
}

// Delete drops the named cache. Handles already opened on it keep working but are
// detached, so a later Open returns a new, empty cache.
func (s *MemStorage) Delete(name string) (bool, error) {
	s.Lock()
	defer s.Unlock()
	c, exists := s.caches[name]
	if !exists {
		return false, nil
	}
	c.c.Flush()
	delete(s.caches, name)
	return true, nil
}

func (s *MemStorage) Names() ([]string, error) {
	s.Lock()
	defer s.Unlock()
	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemStorage) Close() error {
	return nil
}

func (c *memCache) Match(key string) (Response, bool, error) {
	v, found := c.c.Get(key)
	if !found {
		return Response{}, false, nil
	}
	return v.(Response).Clone(), true, nil
}

func (c *memCache) Put(key string, resp Response) error {
	c.c.Set(key, resp.Clone(), gocache.NoExpiration)
	return nil
}

func (c *memCache) Delete(key string) (bool, error) {
	_, found := c.c.Get(key)
	c.c.Delete(key)
	return found, nil
}

func (c *memCache) Keys() ([]string, error) {
	items := c.c.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
