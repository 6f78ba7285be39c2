// Package watch monitors the watchlist file and re-enqueues analysis runs
// when it changes.
package watch

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"adsio/internal/config"
	"adsio/internal/jobs"
	"adsio/internal/validate"
)

// Watcher reloads the watchlist on file changes and enqueues a run for every
// listed drug.
type Watcher struct {
	cfg    config.Config
	runner *jobs.Runner
}

func New(cfg config.Config, runner *jobs.Runner) *Watcher {
	return &Watcher{cfg: cfg, runner: runner}
}

// Start begins watching the watchlist file. Editors replace files on save,
// so write, create, and rename events all trigger a reload.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.cfg.EnableWatcher || w.cfg.WatchlistPath == "" {
		log.Println("watchlist watcher disabled")
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	target := filepath.Clean(w.cfg.WatchlistPath)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-watcher.Events:
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					w.enqueueAll(ctx)
				}
			case err := <-watcher.Errors:
				log.Printf("watcher error: %v", err)
			}
		}
	}()
	// Watch the directory; the file itself disappears during atomic saves.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}
	return nil
}

// Bootstrap enqueues runs for the current watchlist contents at startup.
func (w *Watcher) Bootstrap(ctx context.Context) {
	w.enqueueAll(ctx)
}

func (w *Watcher) enqueueAll(ctx context.Context) {
	wl, err := config.LoadWatchlist(w.cfg.WatchlistPath)
	if err != nil {
		log.Printf("watchlist reload: %v", err)
		return
	}
	limit := wl.FetchLimit
	if limit <= 0 {
		limit = w.cfg.DefaultLimit
	}
	for _, raw := range wl.Drugs {
		drug, err := validate.DrugName(raw)
		if err != nil {
			log.Printf("watchlist entry skipped: %v", err)
			continue
		}
		if _, err := w.runner.Enqueue(ctx, drug, limit); err != nil {
			log.Printf("watchlist enqueue %s: %v", drug, err)
		}
	}
}
