package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/aceeric/shellcache/impl/manifest"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// WatchManifest registers a new version with the runtime every time the manifest file
// at 'path' is written or replaced. The directory is watched rather than the file so
// that deployments which rename a new file into place are seen. A manifest that fails
// to load is logged and skipped. Watching stops when the context is cancelled.
func WatchManifest(ctx context.Context, path string, rt *Runtime) error {
	filePath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return err
	}
	if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(filePath)); err != nil {
		watcher.Close()
		return err
	}
	log.Infof("watching manifest file %s", filePath)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("manifest watcher error: %s", err)
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filePath || !manifestChanged(event) {
					continue
				}
				log.Debugf("manifest file event: %s", event)
				m, err := manifest.Load(filePath)
				if err != nil {
					log.Errorf("unable to load changed manifest: %s", err)
					continue
				}
				if err := rt.Register(ctx, m); err != nil {
					log.Errorf("unable to register version %s: %s", m.Version(), err)
				}
			}
		}
	}()
	return nil
}

func manifestChanged(event fsnotify.Event) bool {
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}
