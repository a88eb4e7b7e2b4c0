package blacklist

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher reloads the blacklist file whenever it changes on disk and hands the
// new ranges to onReload.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func([]Range)
}

// NewWatcher watches the directory containing path, since editors and Save
// both replace the file rather than writing it in place.
func NewWatcher(path string, onReload func([]Range)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(path), err)
	}
	return &Watcher{path: filepath.Clean(path), watcher: w, onReload: onReload}, nil
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != w.path {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("path", w.path).Msg("blacklist watcher error")
		}
	}
}

func (w *Watcher) reload() {
	ranges, err := Load(w.path)
	if err != nil {
		log.Warn().Err(err).Msg("blacklist reload failed; keeping previous ranges")
		return
	}
	log.Info().Int("ranges", len(ranges)).Msg("blacklist reloaded")
	w.onReload(ranges)
}
