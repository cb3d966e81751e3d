package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 500 * time.Millisecond

// ReportImporter imports one nmap XML report from disk
type ReportImporter interface {
	ImportFile(ctx context.Context, path string) (ImportResult, error)
}

// Watcher imports nmap XML reports dropped into a directory. Each report is
// imported once it has stopped changing for the debounce period, so a scan
// still writing its output is picked up when nmap finishes.
type Watcher struct {
	dir      string
	importer ReportImporter
	log      zerolog.Logger
	debounce time.Duration

	// onImport is called after every import attempt; used by tests
	onImport func(path string, res ImportResult, err error)
}

// NewWatcher creates a watcher for dir
func NewWatcher(dir string, importer ReportImporter, log zerolog.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		importer: importer,
		log:      log,
		debounce: defaultDebounce,
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// isReport reports whether name looks like an nmap XML report
func isReport(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xml")
}

// ImportExisting imports every report already in the directory, in name
// order. Failures are logged and do not stop the others.
func (w *Watcher) ImportExisting(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("read report dir: %w", err)
	}

	imported := 0
	for _, e := range entries {
		if e.IsDir() || !isReport(e.Name()) {
			continue
		}
		if w.importOne(ctx, filepath.Join(w.dir, e.Name())) == nil {
			imported++
		}
	}
	return imported, nil
}

// Watch blocks until the context is cancelled or the watcher fails
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info().Str("dir", w.dir).Msg("watching for nmap reports")

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
		gens   = make(map[string]uint64) // latest event per path
		wg     sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			if t.Stop() {
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}()

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isReport(event.Name) || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			path := event.Name
			mu.Lock()
			if t, exists := timers[path]; exists && t.Stop() {
				wg.Done()
			}
			gens[path]++
			gen := gens[path]
			wg.Add(1)
			timers[path] = time.AfterFunc(w.debounce, func() {
				defer wg.Done()
				mu.Lock()
				if gens[path] == gen {
					delete(timers, path)
				}
				mu.Unlock()
				_ = w.importOne(ctx, path)
			})
			mu.Unlock()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watcher error")

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) importOne(ctx context.Context, path string) error {
	res, err := w.importer.ImportFile(ctx, path)
	if err != nil {
		w.log.Error().Err(err).Str("path", path).Msg("report import failed")
	} else {
		w.log.Info().Str("path", path).Int("recorded", res.Recorded).Int("skipped", res.Skipped).Msg("report imported")
	}
	if w.onImport != nil {
		w.onImport(path, res, err)
	}
	return err
}
