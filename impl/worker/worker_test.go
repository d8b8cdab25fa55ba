package worker

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aceeric/shellcache/impl/fetch"
	"github.com/aceeric/shellcache/impl/globals"
	"github.com/aceeric/shellcache/impl/manifest"
	"github.com/aceeric/shellcache/impl/store"
	"github.com/aceeric/shellcache/mock"
)

var core = []string{"main.dart.js", "index.html", "flutter_bootstrap.js"}

func v1(t *testing.T) *manifest.Manifest {
	m, err := manifest.New(manifest.Resources{
		"/":                        "i1",
		"index.html":               "i1",
		"main.dart.js":             "m1",
		"assets/FontManifest.json": "f1",
		"canvaskit/canvaskit.wasm": "c1",
	}, core)
	if err != nil {
		t.FailNow()
	}
	return m
}

func v2(t *testing.T) *manifest.Manifest {
	m, err := manifest.New(manifest.Resources{
		"/":                        "i2",
		"index.html":               "i2",
		"main.dart.js":             "m2",
		"assets/FontManifest.json": "f1",
		"canvaskit/canvaskit.wasm": "c1",
	}, core)
	if err != nil {
		t.FailNow()
	}
	return m
}

func setup(t *testing.T, opts RuntimeOpts) (*Runtime, *mock.Origin, store.Storage) {
	o := mock.NewOrigin(mock.ShellFiles(), nil)
	t.Cleanup(o.Close)
	f, err := fetch.NewHTTPFetcher(fetch.Opts{Origin: o.URL, Timeout: 2 * time.Second})
	if err != nil {
		t.FailNow()
	}
	s := store.NewMemStorage()
	return NewRuntime(s, f, opts), o, s
}

func get(t *testing.T, rt *Runtime, uri string) string {
	w := rt.Controller()
	if w == nil {
		t.Fatalf("no controller for %s", uri)
	}
	resp, handled, err := w.Fetch(context.Background(), http.MethodGet, uri)
	if !handled || err != nil {
		t.Fatalf("fetch %s: handled %t err %v", uri, handled, err)
	}
	return string(resp.Body)
}

func TestRegisterAndServe(t *testing.T) {
	rt, o, _ := setup(t, RuntimeOpts{})
	if err := rt.Register(context.Background(), v1(t)); err != nil {
		t.FailNow()
	}
	w := rt.Controller()
	if w == nil || w.State() != Activated || w.Version() != v1(t).Version() {
		t.FailNow()
	}
	o.ResetHits()
	// staged at install so no network
	if get(t, rt, "/main.dart.js?v=abc") != "main();" || o.TotalHits() != 0 {
		t.Fail()
	}
	// lazily cached on first use
	get(t, rt, "/canvaskit/canvaskit.wasm")
	get(t, rt, "/canvaskit/canvaskit.wasm")
	if o.Hits("/canvaskit/canvaskit.wasm") != 1 {
		t.Fail()
	}
}

func TestUpgrade(t *testing.T) {
	rt, o, s := setup(t, RuntimeOpts{})
	ctx := context.Background()
	if err := rt.Register(ctx, v1(t)); err != nil {
		t.FailNow()
	}
	get(t, rt, "/canvaskit/canvaskit.wasm")
	get(t, rt, "/")
	old := rt.Controller()

	o.SetFile("/main.dart.js", "main2();")
	o.SetFile("/", "<html>index2</html>")
	if err := rt.Register(ctx, v2(t)); err != nil {
		t.FailNow()
	}
	if old.State() != Redundant || old.Claimed() {
		t.Fail()
	}
	if get(t, rt, "/main.dart.js") != "main2();" {
		t.Fail()
	}
	live, _ := s.Open(globals.LiveCache)
	// the root changed fingerprint so it was evicted, the wasm was kept
	if _, found, _ := live.Match("/"); found {
		t.Fail()
	}
	if _, found, _ := live.Match("canvaskit/canvaskit.wasm"); !found {
		t.Fail()
	}
}

func TestRegisterSameVersion(t *testing.T) {
	rt, o, _ := setup(t, RuntimeOpts{})
	rt.Register(context.Background(), v1(t))
	o.ResetHits()
	if err := rt.Register(context.Background(), v1(t)); err != nil {
		t.Fail()
	}
	if o.TotalHits() != 0 {
		t.Fail()
	}
}

// Scenario: install of the new version fails and the old one keeps serving
func TestInstallFailureKeepsOld(t *testing.T) {
	rt, o, _ := setup(t, RuntimeOpts{})
	ctx := context.Background()
	rt.Register(ctx, v1(t))
	o.SetMode(mock.DOWN)
	err := rt.Register(ctx, v2(t))
	if !errors.Is(err, ErrInstallFailed) {
		t.FailNow()
	}
	if rt.Waiting() != nil || rt.Controller().Version() != v1(t).Version() {
		t.Fail()
	}
	// and serves from cache with the origin down
	if get(t, rt, "/index.html") != "<html>index</html>" {
		t.Fail()
	}
}

func TestHoldNewVersions(t *testing.T) {
	rt, o, _ := setup(t, RuntimeOpts{HoldNewVersions: true})
	ctx := context.Background()
	// the first version has nothing to wait for
	rt.Register(ctx, v1(t))
	if rt.Controller() == nil {
		t.FailNow()
	}
	o.SetFile("/main.dart.js", "main2();")
	if err := rt.Register(ctx, v2(t)); err != nil {
		t.FailNow()
	}
	if rt.Waiting() == nil || rt.Waiting().State() != Installed {
		t.FailNow()
	}
	if get(t, rt, "/main.dart.js") != "main();" {
		t.Fail()
	}
	if err := rt.Message(ctx, globals.MsgSkipWaiting); err != nil {
		t.FailNow()
	}
	if rt.Waiting() != nil || get(t, rt, "/main.dart.js") != "main2();" {
		t.Fail()
	}
	// nothing waiting is fine too
	if err := rt.Message(ctx, globals.MsgSkipWaiting); err != nil {
		t.Fail()
	}
}

func TestFailedInstallRetiresWaiting(t *testing.T) {
	rt, o, s := setup(t, RuntimeOpts{HoldNewVersions: true})
	ctx := context.Background()
	rt.Register(ctx, v1(t))
	o.SetFile("/main.dart.js", "main2();")
	if err := rt.Register(ctx, v2(t)); err != nil {
		t.FailNow()
	}
	held := rt.Waiting()
	if held == nil {
		t.FailNow()
	}
	v3, err := manifest.New(manifest.Resources{
		"/":            "i3",
		"index.html":   "i3",
		"main.dart.js": "m3",
	}, append([]string{"missing.js"}, core...))
	if err != nil {
		t.FailNow()
	}
	if err := rt.Register(ctx, v3); !errors.Is(err, ErrInstallFailed) {
		t.FailNow()
	}
	// the staging cache the held version depended on is gone, so it can't activate
	if rt.Waiting() != nil || held.State() != Redundant {
		t.FailNow()
	}
	if err := rt.Message(ctx, globals.MsgSkipWaiting); err != nil {
		t.FailNow()
	}
	if rt.Active() == nil || rt.Active().Version() != v1(t).Version() {
		t.FailNow()
	}
	live, err := s.Open(globals.LiveCache)
	if err != nil {
		t.FailNow()
	}
	for _, key := range core {
		if _, found, err := live.Match(key); !found || err != nil {
			t.Errorf("core file %s is missing from the live cache", key)
		}
	}
	if get(t, rt, "/main.dart.js") != "main();" {
		t.Fail()
	}
}

type brokenStorage struct {
	store.Storage
}

func (b *brokenStorage) Delete(name string) (bool, error) {
	if name == globals.StagingCache {
		return false, errors.New("io error")
	}
	return b.Storage.Delete(name)
}

// staging deletes succeed during install but fail during reconciliation
type flakyStorage struct {
	store.Storage
	failing bool
}

func (f *flakyStorage) Delete(name string) (bool, error) {
	if f.failing && name == globals.StagingCache {
		return false, errors.New("io error")
	}
	return f.Storage.Delete(name)
}

func TestActivationFailurePassesThrough(t *testing.T) {
	o := mock.NewOrigin(mock.ShellFiles(), nil)
	defer o.Close()
	f, _ := fetch.NewHTTPFetcher(fetch.Opts{Origin: o.URL})
	s := &flakyStorage{Storage: store.NewMemStorage()}
	w := New(v1(t), s, f, 1)
	if err := w.Install(context.Background()); err != nil {
		t.FailNow()
	}
	s.failing = true
	claimed, err := w.Activate(context.Background())
	if claimed || err == nil || w.State() != Activated {
		t.FailNow()
	}
	if _, handled, _ := w.Fetch(context.Background(), http.MethodGet, "/main.dart.js"); handled {
		t.Fail()
	}
	if has, _ := s.Storage.Has(globals.LiveCache); has {
		t.Fail()
	}
}

func TestInstallFailsOnStorage(t *testing.T) {
	o := mock.NewOrigin(mock.ShellFiles(), nil)
	defer o.Close()
	f, _ := fetch.NewHTTPFetcher(fetch.Opts{Origin: o.URL})
	w := New(v1(t), &brokenStorage{Storage: store.NewMemStorage()}, f, 1)
	if err := w.Install(context.Background()); !errors.Is(err, ErrInstallFailed) {
		t.Fail()
	}
	if w.State() != Redundant {
		t.Fail()
	}
	if _, err := w.Activate(context.Background()); err == nil {
		t.Fail()
	}
}

func TestDownloadOffline(t *testing.T) {
	rt, o, s := setup(t, RuntimeOpts{SyncConcurrency: 2})
	ctx := context.Background()
	if err := rt.Message(ctx, globals.MsgDownloadOffline); err == nil {
		t.Fail()
	}
	rt.Register(ctx, v1(t))
	if err := rt.Message(ctx, globals.MsgDownloadOffline); err != nil {
		t.FailNow()
	}
	live, _ := s.Open(globals.LiveCache)
	for _, key := range v1(t).Keys() {
		if _, found, _ := live.Match(key); !found {
			t.Errorf("missing %s after offline sync", key)
		}
	}
	o.SetMode(mock.DOWN)
	if get(t, rt, "/assets/FontManifest.json") != "[]" {
		t.Fail()
	}
	if err := rt.Message(ctx, "hello"); err != nil {
		t.Fail()
	}
}

func TestDownloadOfflineUsesSyncFetcher(t *testing.T) {
	syncOrigin := mock.NewOrigin(mock.ShellFiles(), nil)
	defer syncOrigin.Close()
	syncF, err := fetch.NewHTTPFetcher(fetch.Opts{Origin: syncOrigin.URL, Timeout: 2 * time.Second, RateLimit: 100})
	if err != nil {
		t.FailNow()
	}
	rt, o, _ := setup(t, RuntimeOpts{SyncFetcher: syncF})
	ctx := context.Background()
	if err := rt.Register(ctx, v1(t)); err != nil {
		t.FailNow()
	}
	// install fetches go to the request fetcher
	if o.Hits("/main.dart.js") != 1 || syncOrigin.TotalHits() != 0 {
		t.FailNow()
	}
	if err := rt.Message(ctx, globals.MsgDownloadOffline); err != nil {
		t.FailNow()
	}
	if syncOrigin.Hits("/assets/FontManifest.json") != 1 || o.Hits("/assets/FontManifest.json") != 0 {
		t.Fail()
	}
}

func TestWatchManifest(t *testing.T) {
	rt, o, _ := setup(t, RuntimeOpts{})
	d, err := os.MkdirTemp("", "")
	if err != nil {
		t.FailNow()
	}
	defer os.RemoveAll(d)
	path := filepath.Join(d, "manifest.yaml")
	v1yaml := "resources:\n  /: i1\n  index.html: i1\n  main.dart.js: m1\ncore:\n  - main.dart.js\n  - index.html\n"
	if err := os.WriteFile(path, []byte(v1yaml), 0644); err != nil {
		t.FailNow()
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := WatchManifest(ctx, path, rt); err != nil {
		t.FailNow()
	}
	o.SetFile("/main.dart.js", "main2();")
	if err := os.WriteFile(path, []byte(v1yaml+"  - flutter_bootstrap.js\n"), 0644); err != nil {
		t.FailNow()
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if w := rt.Controller(); w != nil && len(w.Manifest().Core()) == 3 {
			if get(t, rt, "/main.dart.js") != "main2();" {
				t.Fail()
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fail()
}

func TestWatchMissingFile(t *testing.T) {
	rt, _, _ := setup(t, RuntimeOpts{})
	if err := WatchManifest(context.Background(), "/no/such/manifest.json", rt); err == nil {
		t.Fail()
	}
}

func TestRestore(t *testing.T) {
	rt, o, s := setup(t, RuntimeOpts{})
	ctx := context.Background()
	// nothing to restore yet
	if restored, err := rt.Restore(v1(t)); restored || err != nil {
		t.FailNow()
	}
	rt.Register(ctx, v1(t))

	// a new process over the same storage with the origin down
	o.SetMode(mock.DOWN)
	f, _ := fetch.NewHTTPFetcher(fetch.Opts{Origin: o.URL, Timeout: time.Second})
	rt2 := NewRuntime(s, f, RuntimeOpts{})
	if restored, err := rt2.Restore(v2(t)); restored || err != nil {
		t.FailNow()
	}
	restored, err := rt2.Restore(v1(t))
	if !restored || err != nil {
		t.FailNow()
	}
	if get(t, rt2, "/index.html") != "<html>index</html>" {
		t.Fail()
	}
	// registering the restored version is a no-op
	if err := rt2.Register(ctx, v1(t)); err != nil {
		t.Fail()
	}
}
