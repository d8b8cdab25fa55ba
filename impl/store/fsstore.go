package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/opencontainers/go-digest"
)

// tmpPrefix marks in-progress writes. Entries are written to a temp file and renamed
// into place so a reader never sees a partial entry.
const tmpPrefix = ".tmp-"

// fsEntry is the on-disk form of one cache entry. The key is kept in the file since
// the file name is a digest of the key.
type fsEntry struct {
	Key      string   `json:"key"`
	Response Response `json:"response"`
}

// FSStorage keeps each cache in a directory under the root, and each entry in a file
// in the cache directory named by the sha256 digest of the entry key.
type FSStorage struct {
	sync.RWMutex
	root string
}

type fsCache struct {
	s   *FSStorage
	dir string
}

// NewFSStorage creates a file system storage rooted at 'root', creating the directory
// if needed.
func NewFSStorage(root string) (*FSStorage, error) {
	if root == "" {
		return nil, errors.New("file system storage requires a path")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("unable to create cache directory %s: %w", root, err)
	}
	return &FSStorage{root: root}, nil
}

func (s *FSStorage) cacheDir(name string) string {
	return filepath.Join(s.root, name)
}

func (s *FSStorage) Open(name string) (Cache, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid cache name: %q", name)
	}
	s.Lock()
	defer s.Unlock()
	dir := s.cacheDir(name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &fsCache{s: s, dir: dir}, nil
}

func (s *FSStorage) Has(name string) (bool, error) {
	s.RLock()
	defer s.RUnlock()
	fi, err := os.Stat(s.cacheDir(name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}

func (s *FSStorage) Delete(name string) (bool, error) {
	s.Lock()
	defer s.Unlock()
	dir := s.cacheDir(name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FSStorage) Names() ([]string, error) {
	s.RLock()
	defer s.RUnlock()
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *FSStorage) Close() error {
	return nil
}

// entryPath returns the path of the file holding 'key'
func (c *fsCache) entryPath(key string) string {
	return filepath.Join(c.dir, digest.FromString(key).Encoded())
}

func (c *fsCache) Match(key string) (Response, bool, error) {
	c.s.RLock()
	defer c.s.RUnlock()
	b, err := os.ReadFile(c.entryPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return Response{}, false, nil
	} else if err != nil {
		return Response{}, false, err
	}
	var entry fsEntry
	if err := json.Unmarshal(b, &entry); err != nil {
		return Response{}, false, fmt.Errorf("corrupt cache entry for key %q: %w", key, err)
	}
	return entry.Response, true, nil
}

func (c *fsCache) Put(key string, resp Response) error {
	b, err := json.Marshal(fsEntry{Key: key, Response: resp})
	if err != nil {
		return err
	}
	c.s.Lock()
	defer c.s.Unlock()
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(c.dir, tmpPrefix)
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, c.entryPath(key)); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (c *fsCache) Delete(key string) (bool, error) {
	c.s.Lock()
	defer c.s.Unlock()
	err := os.Remove(c.entryPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (c *fsCache) Keys() ([]string, error) {
	c.s.RLock()
	defer c.s.RUnlock()
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	} else if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		b, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var entry fsEntry
		if err := json.Unmarshal(b, &entry); err != nil {
			return nil, fmt.Errorf("corrupt cache entry %s: %w", e.Name(), err)
		}
		keys = append(keys, entry.Key)
	}
	sort.Strings(keys)
	return keys, nil
}
