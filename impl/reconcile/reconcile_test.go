package reconcile

import (
	"errors"
	"net/http"
	"reflect"
	"testing"

	"github.com/aceeric/shellcache/impl/globals"
	"github.com/aceeric/shellcache/impl/ledger"
	"github.com/aceeric/shellcache/impl/manifest"
	"github.com/aceeric/shellcache/impl/store"
)

func ok(body string) store.Response {
	return store.Response{Status: http.StatusOK, Body: []byte(body)}
}

func mustManifest(t *testing.T, r manifest.Resources, core []string) *manifest.Manifest {
	m, err := manifest.New(r, core)
	if err != nil {
		t.FailNow()
	}
	return m
}

func put(t *testing.T, s store.Storage, cache string, entries map[string]string) {
	c, err := s.Open(cache)
	if err != nil {
		t.FailNow()
	}
	for k, v := range entries {
		if err := c.Put(k, ok(v)); err != nil {
			t.FailNow()
		}
	}
}

func liveContents(t *testing.T, s store.Storage) map[string]string {
	c, _ := s.Open(globals.LiveCache)
	keys, err := c.Keys()
	if err != nil {
		t.FailNow()
	}
	contents := map[string]string{}
	for _, k := range keys {
		r, _, _ := c.Match(k)
		contents[k] = string(r.Body)
	}
	return contents
}

// Scenario: first install on a clean machine
func TestColdStart(t *testing.T) {
	s := store.NewMemStorage()
	// junk from some earlier, unrecorded run
	put(t, s, globals.LiveCache, map[string]string{"old.js": "old"})
	put(t, s, globals.StagingCache, map[string]string{"index.html": "v1-index", "main.dart.js": "v1-main", "flutter_bootstrap.js": "v1-boot"})
	m := mustManifest(t, manifest.Resources{"/": "h1", "index.html": "h1", "main.dart.js": "h2"}, []string{"index.html", "main.dart.js", "flutter_bootstrap.js"})

	result, err := New(s).Run(m)
	if err != nil {
		t.FailNow()
	}
	if !result.Cold || result.Bytes != 22 || result.Live != 3 {
		t.Fail()
	}
	expect := map[string]string{"index.html": "v1-index", "main.dart.js": "v1-main", "flutter_bootstrap.js": "v1-boot"}
	if !reflect.DeepEqual(liveContents(t, s), expect) {
		t.Fail()
	}
	if has, _ := s.Has(globals.StagingCache); has {
		t.Fail()
	}
	recorded, found, _ := ledger.New(s).Read()
	if !found || !reflect.DeepEqual(recorded, m.Resources()) {
		t.Fail()
	}
}

// Scenario: upgrade where one asset changed and one was removed
func TestUpgrade(t *testing.T) {
	s := store.NewMemStorage()
	v1 := manifest.Resources{"/": "r1", "index.html": "i1", "main.dart.js": "m1", "assets/logo.png": "l1", "assets/old.png": "o1"}
	if err := ledger.New(s).Write(v1); err != nil {
		t.FailNow()
	}
	put(t, s, globals.LiveCache, map[string]string{
		"/": "v1-root", "index.html": "v1-index", "main.dart.js": "v1-main",
		"assets/logo.png": "v1-logo", "assets/old.png": "v1-old",
	})
	put(t, s, globals.StagingCache, map[string]string{"index.html": "v2-index", "main.dart.js": "v2-main"})
	v2 := mustManifest(t, manifest.Resources{"/": "r2", "index.html": "i1", "main.dart.js": "m2", "assets/logo.png": "l1"}, []string{"index.html", "main.dart.js"})

	result, err := New(s).Run(v2)
	if err != nil {
		t.FailNow()
	}
	if result.Cold {
		t.Fail()
	}
	if !reflect.DeepEqual(result.Evict, []string{"/", "assets/old.png", "main.dart.js"}) {
		t.Errorf("evicted %v", result.Evict)
	}
	// index.html is both kept and staged
	if result.Live != 3 {
		t.Errorf("live entries %d", result.Live)
	}
	expect := map[string]string{
		"index.html":      "v2-index",
		"main.dart.js":    "v2-main",
		"assets/logo.png": "v1-logo",
	}
	if !reflect.DeepEqual(liveContents(t, s), expect) {
		t.Errorf("live %v", liveContents(t, s))
	}
	recorded, _, _ := ledger.New(s).Read()
	if !reflect.DeepEqual(recorded, v2.Resources()) {
		t.Fail()
	}
	if has, _ := s.Has(globals.StagingCache); has {
		t.Fail()
	}
}

// running again with the same manifest and nothing staged changes nothing
func TestIdempotent(t *testing.T) {
	s := store.NewMemStorage()
	r := manifest.Resources{"/": "r1", "a.js": "1", "b.js": "2"}
	ledger.New(s).Write(r)
	put(t, s, globals.LiveCache, map[string]string{"/": "root", "a.js": "a", "b.js": "b"})
	before := liveContents(t, s)
	result, err := New(s).Run(mustManifest(t, r, nil))
	if err != nil || len(result.Evict) != 0 {
		t.FailNow()
	}
	if !reflect.DeepEqual(before, liveContents(t, s)) {
		t.Fail()
	}
}

// failingStorage fails Put on the live cache for one key
type failingStorage struct {
	store.Storage
	failKey string
}

type failingCache struct {
	store.Cache
	failKey string
}

func (f *failingStorage) Open(name string) (store.Cache, error) {
	c, err := f.Storage.Open(name)
	if err != nil || name != globals.LiveCache {
		return c, err
	}
	return &failingCache{Cache: c, failKey: f.failKey}, nil
}

func (f *failingCache) Put(key string, resp store.Response) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.Cache.Put(key, resp)
}

func TestFailureWipesEverything(t *testing.T) {
	mem := store.NewMemStorage()
	s := &failingStorage{Storage: mem, failKey: "main.dart.js"}
	v1 := manifest.Resources{"/": "r1", "index.html": "i1", "main.dart.js": "m1"}
	ledger.New(s).Write(v1)
	put(t, mem, globals.LiveCache, map[string]string{"/": "v1-root", "index.html": "v1-index", "main.dart.js": "v1-main"})
	put(t, mem, globals.StagingCache, map[string]string{"index.html": "v2-index", "main.dart.js": "v2-main"})
	v2 := mustManifest(t, manifest.Resources{"/": "r2", "index.html": "i2", "main.dart.js": "m2"}, []string{"index.html", "main.dart.js"})

	if _, err := New(s).Run(v2); err == nil {
		t.FailNow()
	}
	for _, name := range []string{globals.LiveCache, globals.StagingCache, globals.LedgerCache} {
		if has, _ := mem.Has(name); has {
			t.Errorf("cache %s survived a failed reconciliation", name)
		}
	}
	// the next attempt starts cold and succeeds
	put(t, mem, globals.StagingCache, map[string]string{"index.html": "v2-index"})
	s.failKey = ""
	result, err := New(s).Run(v2)
	if err != nil || !result.Cold {
		t.Fail()
	}
}
