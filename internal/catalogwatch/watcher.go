package catalogwatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

const DefaultDebounce = 2 * time.Second

type ReloadFunc func(ctx context.Context) error

// Watcher calls reload after files under the watched directories change.
// Bursts of events within the debounce window trigger a single reload.
type Watcher struct {
	dirs     []string
	reload   ReloadFunc
	debounce time.Duration
}

func New(reload ReloadFunc, debounce time.Duration, dirs ...string) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dirs:     dirs,
		reload:   reload,
		debounce: debounce,
	}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new fs watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			log.Warnf("close fs watcher: %s", err)
		}
	}()

	for _, dir := range w.dirs {
		if err := addTree(watcher, dir); err != nil {
			return err
		}
	}
	log.Infof("watching %v for template changes", w.dirs)

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			// new subdirectories are watched too
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(watcher, event.Name); err != nil {
						log.Warnf("watch new dir: %s", err)
					}
				}
			}
			log.Debugf("template change: %s", event)
			timer.Reset(w.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("fs watcher: %s", err)
		case <-timer.C:
			if err := w.reload(ctx); err != nil {
				log.Errorf("reload after template change: %s", err)
			}
		}
	}
}

func relevant(event fsnotify.Event) bool {
	return event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) ||
		event.Has(fsnotify.Rename)
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch [%s]: %w", path, err)
		}
		return nil
	})
}
