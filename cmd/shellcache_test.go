package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aceeric/shellcache/cmd/subcmd"
	"github.com/aceeric/shellcache/mock"
)

var manifestJson = `{
  "resources": {
    "/": "i1",
    "index.html": "i1",
    "main.dart.js": "m1",
    "assets/FontManifest.json": "f1"
  },
  "core": ["main.dart.js", "index.html", "flutter_bootstrap.js"]
}`

var otherManifestJson = `{
  "resources": {"/": "i2", "index.html": "i2", "main.dart.js": "m2"},
  "core": ["main.dart.js", "index.html"]
}`

// Test the top-level commands that function as CLIs (they perform an action and then
// immediately exit to the console.)
func TestTopLvlCLIs(t *testing.T) {
	td, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fail()
	}
	defer os.RemoveAll(td)
	o := mock.NewOrigin(mock.ShellFiles(), nil)
	defer o.Close()
	manifestFile := filepath.Join(td, "manifest.json")
	os.WriteFile(manifestFile, []byte(manifestJson), 0644)
	otherManifestFile := filepath.Join(td, "other.json")
	os.WriteFile(otherManifestFile, []byte(otherManifestJson), 0644)
	cachePath := filepath.Join(td, "cache")

	common := []string{"bin/shellcache", "--cache-path", cachePath, "--origin", o.URL}
	with := func(args ...string) []string {
		return append(append([]string{}, common...), args...)
	}
	testCases := []struct {
		name      string
		args      []string
		expResult int
	}{
		{name: "No command", args: []string{"bin/shellcache"}, expResult: 0},
		{name: "Version", args: []string{"bin/shellcache", "version"}, expResult: 0},
		{name: "Sync before reconcile", args: with("--manifest-file", manifestFile, "sync"), expResult: 1},
		{name: "Reconcile", args: with("--manifest-file", manifestFile, "reconcile"), expResult: 0},
		{name: "Reconcile again", args: with("--manifest-file", manifestFile, "reconcile"), expResult: 0},
		{name: "Sync", args: with("--manifest-file", manifestFile, "sync"), expResult: 0},
		{name: "List", args: with("--manifest-file", manifestFile, "list", "--header"), expResult: 0},
		{name: "List against another version", args: with("--manifest-file", otherManifestFile, "list"), expResult: 0},
		{name: "Sync with another version", args: with("--manifest-file", otherManifestFile, "sync"), expResult: 1},
		{name: "Reconcile - bad store type", args: with("--store-type", "s3", "--manifest-file", manifestFile, "reconcile"), expResult: 1},
	}
	for _, testCase := range testCases {
		setup()
		os.Args = testCase.args
		result := realMain()
		if result != testCase.expResult {
			t.Errorf("shellcache top-level test case %s failed", testCase.name)
		}
	}
	// sync filled in everything
	if o.Hits("/assets/FontManifest.json") != 1 {
		t.Fail()
	}
}

// Test the "serve" command
func TestTopLvlServe(t *testing.T) {
	for _, storeType := range []string{"fs", "leveldb", "memory"} {
		subcmd.InitListener()
		if err := doTestServe(storeType); err != nil {
			t.Errorf("serve with store type %s: %s", storeType, err)
		}
	}
}

// Starts the "serve" sub-command, fetches through it, and stops it
func doTestServe(storeType string) error {
	td, err := os.MkdirTemp("", "")
	if err != nil {
		return err
	}
	defer os.RemoveAll(td)
	o := mock.NewOrigin(mock.ShellFiles(), nil)
	defer o.Close()
	manifestFile := filepath.Join(td, "manifest.json")
	os.WriteFile(manifestFile, []byte(manifestJson), 0644)

	setup()
	os.Args = []string{"bin/shellcache", "--cache-path", td, "--store-type", storeType, "--origin", o.URL,
		"--manifest-file", manifestFile, "serve", "--port", "0"}
	go realMain()
	err = waitForEchoListener()
	if err != nil {
		return err
	}
	echoListener := subcmd.GetListener()
	if echoListener == nil {
		return errors.New("failed to get echo listener")
	}
	tcpAddr, ok := echoListener.Addr().(*net.TCPAddr)
	if !ok {
		return errors.New("unexpected listener address type")
	}
	o.ResetHits()
	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/main.dart.js?v=1", tcpAddr.Port))
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || o.TotalHits() != 0 {
		return errors.New("core file was not served from the cache")
	}
	// shut the server down
	_, err = http.Get(fmt.Sprintf("http://localhost:%d/cmd/stop", tcpAddr.Port))
	return err
}

// waitForEchoListener waits for the Echo server to initialize. This allows to
// get the port number that the server is listening on.
func waitForEchoListener() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if subcmd.GetListener() != nil {
				return nil
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}
