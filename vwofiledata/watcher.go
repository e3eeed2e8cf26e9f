package vwofiledata

import (
	"bytes"
	"fmt"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

const retryDuration = time.Second

// Options configures a Watcher.
type Options struct {
	// Path is the settings file to watch. JSON or YAML.
	Path string

	// OnUpdate receives the file's contents as JSON after every change.
	// Typically it forwards to VWOClient.UpdateSettings.
	OnUpdate func(raw []byte)

	Loggers ldlog.Loggers
}

// Watcher reloads a settings file whenever it changes and pushes the
// parsed document to the update callback. Editors that replace files
// atomically are handled by watching the containing directory too.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onUpdate func(raw []byte)
	loggers  ldlog.Loggers

	lastRaw   []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewWatcher starts watching the file. The callback fires once
// immediately with the file's current contents, then again after every
// change.
func NewWatcher(opts Options) (*Watcher, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if opts.OnUpdate == nil {
		return nil, fmt.Errorf("an OnUpdate callback is required")
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("unable to create file watcher: %w", err)
	}
	w := &Watcher{
		watcher:  fsWatcher,
		path:     opts.Path,
		onUpdate: opts.OnUpdate,
		loggers:  opts.Loggers,
		closeCh:  make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops watching. The callback will not fire again after Close
// returns.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.closeCh)
	})
	return nil
}

func (w *Watcher) run() {
	retryCh := make(chan struct{}, 1)
	scheduleRetry := func() {
		time.AfterFunc(retryDuration, func() {
			select {
			case retryCh <- struct{}{}: // only one pending retry is needed
			default:
			}
		})
	}
	for {
		if err := w.setupWatch(); err != nil {
			w.loggers.Error(err.Error())
			scheduleRetry()
		}

		// Reload here rather than after waitForEvents: a change could
		// land between reading the file and the watch being in place,
		// and the redundant startup load is harmless.
		w.reload()

		if quit := w.waitForEvents(retryCh); quit {
			if err := w.watcher.Close(); err != nil {
				w.loggers.Errorf("error closing file watcher: %s", err)
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	raw, err := ReadSettingsFile(w.path)
	if err != nil {
		w.loggers.Errorf("settings file reload failed: %s; keeping last good document", err)
		return
	}
	if bytes.Equal(raw, w.lastRaw) {
		return
	}
	w.lastRaw = raw
	w.onUpdate(raw)
}

func (w *Watcher) setupWatch() error {
	dirPath := path.Dir(w.path)
	realDirPath, err := filepath.EvalSymlinks(dirPath)
	if err != nil {
		return fmt.Errorf("unable to evaluate symlinks for %q: %w", dirPath, err)
	}
	realPath := path.Join(realDirPath, path.Base(w.path))
	if err := w.watcher.Add(realPath); err != nil {
		return fmt.Errorf("unable to watch %q: %w", realPath, err)
	}
	if err := w.watcher.Add(realDirPath); err != nil {
		return fmt.Errorf("unable to watch %q: %w", realDirPath, err)
	}
	return nil
}

func (w *Watcher) waitForEvents(retryCh <-chan struct{}) bool {
	for {
		select {
		case <-w.closeCh:
			return true
		case event := <-w.watcher.Events:
			if path.Base(event.Name) != path.Base(w.path) {
				break
			}
			w.consumeExtraEvents()
			return false
		case err := <-w.watcher.Errors:
			w.loggers.Errorf("file watcher error: %s", err)
		case <-retryCh:
			consumeExtraRetries(retryCh)
			return false
		}
	}
}

func (w *Watcher) consumeExtraEvents() {
	for {
		select {
		case <-w.watcher.Events:
		default:
			return
		}
	}
}

func consumeExtraRetries(retryCh <-chan struct{}) {
	for {
		select {
		case <-retryCh:
		default:
			return
		}
	}
}
