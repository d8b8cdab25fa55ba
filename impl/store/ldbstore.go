package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ldbFile is the database directory under the storage path
const ldbFile = "shellcache.leveldb"

// key layout:
//
//	registry: 'N' name          -> empty
//	entries:  'E' name 0x00 key -> json(Response)
const (
	registryPrefix = 'N'
	entryPrefix    = 'E'
)

// LevelDBStorage keeps all caches in a single LevelDB database
type LevelDBStorage struct {
	db *leveldb.DB
}

type ldbCache struct {
	db     *leveldb.DB
	prefix []byte
}

// NewLevelDBStorage opens (or creates) the database under 'path'
func NewLevelDBStorage(path string) (*LevelDBStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("leveldb storage requires a path")
	}
	db, err := leveldb.OpenFile(filepath.Join(path, ldbFile), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to open leveldb storage at %s: %w", path, err)
	}
	return &LevelDBStorage{db: db}, nil
}

func registryKey(name string) []byte {
	return append([]byte{registryPrefix}, name...)
}

func entryKeyPrefix(name string) []byte {
	p := append([]byte{entryPrefix}, name...)
	return append(p, 0x00)
}

func (s *LevelDBStorage) Open(name string) (Cache, error) {
	if name == "" || bytes.IndexByte([]byte(name), 0x00) != -1 {
		return nil, fmt.Errorf("invalid cache name: %q", name)
	}
	exists, err := s.Has(name)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := s.db.Put(registryKey(name), []byte{}, nil); err != nil {
			return nil, err
		}
	}
	return &ldbCache{db: s.db, prefix: entryKeyPrefix(name)}, nil
}

func (s *LevelDBStorage) Has(name string) (bool, error) {
	return s.db.Has(registryKey(name), nil)
}

// Delete removes the registry record and every entry in one batch so a crash can't
// leave half a cache behind.
func (s *LevelDBStorage) Delete(name string) (bool, error) {
	exists, err := s.Has(name)
	if err != nil || !exists {
		return false, err
	}
	batch := new(leveldb.Batch)
	batch.Delete(registryKey(name))
	iter := s.db.NewIterator(util.BytesPrefix(entryKeyPrefix(name)), nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return false, err
	}
	if err := s.db.Write(batch, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *LevelDBStorage) Names() ([]string, error) {
	names := []string{}
	iter := s.db.NewIterator(util.BytesPrefix([]byte{registryPrefix}), nil)
	for iter.Next() {
		names = append(names, string(iter.Key()[1:]))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *LevelDBStorage) Close() error {
	return s.db.Close()
}

func (c *ldbCache) dbKey(key string) []byte {
	return append(append([]byte(nil), c.prefix...), key...)
}

func (c *ldbCache) Match(key string) (Response, bool, error) {
	b, err := c.db.Get(c.dbKey(key), nil)
	if err == leveldb.ErrNotFound {
		return Response{}, false, nil
	} else if err != nil {
		return Response{}, false, err
	}
	var resp Response
	if err := json.Unmarshal(b, &resp); err != nil {
		return Response{}, false, fmt.Errorf("corrupt cache entry for key %q: %w", key, err)
	}
	return resp, true, nil
}

func (c *ldbCache) Put(key string, resp Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.db.Put(c.dbKey(key), b, nil)
}

func (c *ldbCache) Delete(key string) (bool, error) {
	k := c.dbKey(key)
	exists, err := c.db.Has(k, nil)
	if err != nil || !exists {
		return false, err
	}
	return true, c.db.Delete(k, nil)
}

func (c *ldbCache) Keys() ([]string, error) {
	keys := []string{}
	iter := c.db.NewIterator(util.BytesPrefix(c.prefix), nil)
	for iter.Next() {
		keys = append(keys, string(iter.Key()[len(c.prefix):]))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return keys, nil
}
