// Package watcher observes the configured search roots for manifest churn
// and flags the cached inventory as stale so the next command rescans.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/pkgup/internal/logging"
	"github.com/blackwell-systems/pkgup/internal/manifest"
	"github.com/blackwell-systems/pkgup/internal/store"
)

// Watcher tails filesystem events under the search roots. Events touching
// package metadata are debounced and collapsed into a single staleness mark,
// so a bulk install does not hammer the database.
type Watcher struct {
	store    *store.Store
	fsw      *fsnotify.Watcher
	log      zerolog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// Debounce is how long the watcher waits after the last interesting
	// event before marking the cache stale.
	Debounce time.Duration

	// OnChange, if set, is called after each staleness mark.
	OnChange func()
}

// New creates a Watcher backed by the given store.
func New(st *store.Store) (*Watcher, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	return &Watcher{
		store:    st,
		fsw:      fsw,
		log:      logging.GetLogger("watcher"),
		stopCh:   make(chan struct{}),
		Debounce: 2 * time.Second,
	}, nil
}

// Start registers every directory under the given roots and begins
// processing events. Missing roots are skipped with a warning.
func (w *Watcher) Start(roots []string) error {
	var watched int
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			watched++
			return nil
		})
		if err != nil {
			if os.IsNotExist(err) {
				w.log.Warn().Str("root", root).Msg("search root does not exist, skipping")
				continue
			}
			return err
		}
	}
	w.log.Debug().Int("directories", watched).Msg("watching search roots")

	w.wg.Add(1)
	go w.run()
	return nil
}

func (w *Watcher) run() {
	defer w.wg.Done()

	// The timer starts drained; it is armed by the first interesting event.
	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := w.fsw.Add(ev.Name); err != nil {
						w.log.Warn().Err(err).Str("path", ev.Name).Msg("failed to watch new directory")
					}
				}
			}
			if w.interesting(ev) {
				w.log.Trace().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("metadata event")
				debounce.Reset(w.Debounce)
			}

		case <-debounce.C:
			if err := w.store.MarkStale(); err != nil {
				w.log.Error().Err(err).Msg("failed to mark inventory stale")
			} else {
				w.log.Info().Msg("inventory marked stale")
			}
			if w.OnChange != nil {
				w.OnChange()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watch error")

		case <-w.stopCh:
			return
		}
	}
}

// interesting reports whether an event could change the inventory: package
// metadata written or anything removed or renamed away.
func (w *Watcher) interesting(ev fsnotify.Event) bool {
	if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
		return true
	}
	return manifest.Classify(ev.Name) != manifest.KindUnknown
}

// Stop halts event processing and releases the filesystem watcher.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}
