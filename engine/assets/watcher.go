package assets

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/lumen/engine/core"
)

// Watcher reports changed shader binaries under a directory tree. Bursts of
// writes are coalesced into one notification after a quiet period.
type Watcher struct {
	fsnotify *fsnotify.Watcher
	debounce time.Duration
	changes  chan string

	mutex    sync.Mutex
	isClosed bool
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewWatcher(dir string, debounce time.Duration) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating file watcher")
	}
	w := &Watcher{
		fsnotify: fsWatch,
		debounce: debounce,
		changes:  make(chan string, 1),
		done:     make(chan struct{}),
	}
	if err := w.watchRecursive(dir); err != nil {
		fsWatch.Close()
		return nil, err
	}
	w.wg.Add(1)
	go w.start()
	return w, nil
}

// Changes delivers the last changed path of each burst. It is closed by
// Close.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

func (w *Watcher) Close() error {
	w.mutex.Lock()
	if w.isClosed {
		w.mutex.Unlock()
		return nil
	}
	w.isClosed = true
	w.mutex.Unlock()
	close(w.done)
	w.wg.Wait()
	return nil
}

func (w *Watcher) start() {
	defer w.wg.Done()
	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending string
	)
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := w.watchRecursive(e.Name); err != nil {
						core.LogWarn("watching %s: %s", e.Name, err)
					}
				}
				continue
			}
			if !isShaderFile(e.Name) || e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			pending = e.Name
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			select {
			case w.changes <- pending:
			default:
				// a reload is already queued
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("file watcher: %s", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			w.fsnotify.Close()
			close(w.changes)
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list.
func (w *Watcher) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return w.fsnotify.Add(walkPath)
		}
		return nil
	})
}

func isShaderFile(path string) bool {
	switch filepath.Ext(path) {
	case ".spv":
		return true
	}
	return filepath.Base(path) == ManifestName
}
