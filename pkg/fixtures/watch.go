package fixtures

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/justinhartfield/protein-empire-cms/pkg/engine"
	"github.com/justinhartfield/protein-empire-cms/pkg/telemetry"
)

// DefaultDebounce is how long the watcher waits after the last change to a
// site's fixtures before re-seeding it.
const DefaultDebounce = 500 * time.Millisecond

// Watcher re-seeds a site whenever its fixture files change.
type Watcher struct {
	layout   *Layout
	sites    []engine.Site
	debounce time.Duration
	logger   *telemetry.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer

	// counts scheduled and running re-seeds
	pending sync.WaitGroup

	// serializes reseed calls
	seedMu sync.Mutex
}

// NewWatcher creates a watcher for the fixture directories of sites.
func NewWatcher(layout *Layout, sites []engine.Site, debounce time.Duration, logger *telemetry.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Watcher{
		layout:   layout,
		sites:    sites,
		debounce: debounce,
		logger:   logger.NewComponentLogger("fixture-watcher"),
		timers:   make(map[string]*time.Timer),
	}
}

// Watch blocks until ctx is cancelled, calling reseed for a site after its
// recipes.json or packs.json is written or created. Calls to reseed never
// overlap, and Watch does not return while one is still running.
func (w *Watcher) Watch(ctx context.Context, reseed func(context.Context, engine.Site)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	watched := 0
	for _, site := range w.sites {
		dir := filepath.Join(w.layout.Root, DomainKey(site.Domain))
		if _, err := os.Stat(dir); err != nil {
			w.logger.WithSite(site.Domain).Debug("No fixture directory, not watching")
			continue
		}
		if err := watcher.Add(dir); err != nil {
			w.logger.WithError(err).WithField("path", dir).Warn("Failed to watch fixture directory")
			continue
		}
		watched++
	}
	w.logger.WithField("directories", watched).Info("Watching fixtures for changes")

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				w.drain()
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			site, ok := w.layout.SiteForPath(event.Name, w.sites)
			if !ok {
				continue
			}
			w.logger.WithSite(site.Domain).WithField("file", event.Name).Debug("Fixture changed")
			w.schedule(ctx, site, reseed)

		case err, ok := <-watcher.Errors:
			if !ok {
				w.drain()
				return nil
			}
			w.logger.WithError(err).Error("Watcher error")
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, site engine.Site, reseed func(context.Context, engine.Site)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[site.Domain]; ok && t.Stop() {
		w.pending.Done()
	}
	w.pending.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		defer w.pending.Done()

		w.mu.Lock()
		if w.timers[site.Domain] == timer {
			delete(w.timers, site.Domain)
		}
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		w.seedMu.Lock()
		defer w.seedMu.Unlock()
		w.logger.WithSite(site.Domain).Info("Re-seeding site after fixture change")
		reseed(ctx, site)
	})
	w.timers[site.Domain] = timer
}

// drain cancels re-seeds that have not started and waits for a running one.
func (w *Watcher) drain() {
	w.mu.Lock()
	for domain, t := range w.timers {
		if t.Stop() {
			w.pending.Done()
		}
		delete(w.timers, domain)
	}
	w.mu.Unlock()

	w.pending.Wait()
}
