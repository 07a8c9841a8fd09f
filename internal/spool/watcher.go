// Package spool ingests sale files dropped by the register.
//
// The register writes one JSON file per finished sale into a spool directory.
// The watcher picks each file up, routes the sale through the offline-first
// write path (so a sale recorded during an outage lands in the local cache
// and the outbox), and archives the file. Files that do not parse are moved
// aside rather than retried forever.
package spool

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tillworks/tillsync/internal/pos"
	"github.com/tillworks/tillsync/internal/syncer"
)

const (
	archiveDir = "processed"
	rejectDir  = "rejected"
)

// Config holds watcher configuration.
type Config struct {
	// Dir is the spool directory the register writes into.
	Dir string

	// DebounceInterval is how long a file must sit unchanged before it is
	// processed. The register writes files non-atomically; this keeps the
	// watcher from reading half a sale.
	DebounceInterval time.Duration

	// Logger for watcher activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults for dir.
func DefaultConfig(dir string) *Config {
	return &Config{
		Dir:              dir,
		DebounceInterval: 200 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[spool] ", log.LstdFlags),
	}
}

// Watcher watches the spool directory and feeds sales into the write path.
type Watcher struct {
	config *Config
	writer *syncer.Writer

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time
	changeQueueMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a spool watcher over the given write path.
func New(config *Config, writer *syncer.Writer) (*Watcher, error) {
	if config == nil || config.Dir == "" {
		return nil, fmt.Errorf("spool directory must be configured")
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[spool] ", log.LstdFlags)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 200 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		config:      config,
		writer:      writer,
		watcher:     fsw,
		changeQueue: make(map[string]time.Time),
		done:        make(chan struct{}),
	}, nil
}

// Start sweeps files already sitting in the spool, then begins watching for
// new ones.
func (w *Watcher) Start(ctx context.Context) error {
	for _, dir := range []string{w.config.Dir, filepath.Join(w.config.Dir, archiveDir), filepath.Join(w.config.Dir, rejectDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create spool directory: %w", err)
		}
	}

	if err := w.sweep(ctx); err != nil {
		return err
	}

	if err := w.watcher.Add(w.config.Dir); err != nil {
		return fmt.Errorf("failed to watch spool directory: %w", err)
	}

	w.config.Logger.Printf("Watching spool: %s", w.config.Dir)

	w.wg.Add(2)
	go w.watchFileEvents(ctx)
	go w.processChangeQueue(ctx)

	return nil
}

// Stop halts watching and waits for the goroutines to exit.
func (w *Watcher) Stop() error {
	close(w.done)
	if err := w.watcher.Close(); err != nil {
		w.config.Logger.Printf("Error closing watcher: %v", err)
	}
	w.wg.Wait()
	return nil
}

// sweep processes files that accumulated while the daemon was down.
func (w *Watcher) sweep(ctx context.Context) error {
	entries, err := os.ReadDir(w.config.Dir)
	if err != nil {
		return fmt.Errorf("failed to read spool directory: %w", err)
	}

	var processed int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		w.ProcessFile(ctx, filepath.Join(w.config.Dir, entry.Name()))
		processed++
	}

	if processed > 0 {
		w.config.Logger.Printf("Swept %d spooled files", processed)
	}
	return nil
}

// watchFileEvents queues spool file events for debounced processing.
func (w *Watcher) watchFileEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			if filepath.Dir(event.Name) != filepath.Clean(w.config.Dir) {
				continue
			}
			w.queueChange(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange records a file event for debounced processing.
func (w *Watcher) queueChange(path string) {
	w.changeQueueMu.Lock()
	defer w.changeQueueMu.Unlock()
	w.changeQueue[path] = time.Now()
}

// processChangeQueue drains files that have sat unchanged long enough.
func (w *Watcher) processChangeQueue(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPendingChanges(ctx)
		}
	}
}

func (w *Watcher) processPendingChanges(ctx context.Context) {
	w.changeQueueMu.Lock()
	now := time.Now()
	var ready []string
	for path, queuedAt := range w.changeQueue {
		if now.Sub(queuedAt) < w.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(w.changeQueue, path)
	}
	w.changeQueueMu.Unlock()

	for _, path := range ready {
		w.ProcessFile(ctx, path)
	}
}

// ProcessFile ingests one spooled sale file: decode, save through the
// offline-first write path, archive. Undecodable files move to the rejected
// directory so the register's output is never silently lost.
func (w *Watcher) ProcessFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		w.config.Logger.Printf("Warning: failed to read %s: %v", path, err)
		return
	}

	rec, err := pos.Decode(pos.CollectionPayments, data)
	if err != nil {
		w.config.Logger.Printf("Warning: rejecting %s: %v", filepath.Base(path), err)
		w.moveTo(path, rejectDir)
		return
	}

	if err := w.writer.Save(ctx, pos.CollectionPayments, rec); err != nil {
		// Leave the file in place; the next sweep or event retries it.
		w.config.Logger.Printf("Warning: failed to save sale from %s: %v", filepath.Base(path), err)
		return
	}

	w.config.Logger.Printf("Ingested sale %s from %s", rec.RecordID(), filepath.Base(path))
	w.moveTo(path, archiveDir)
}

func (w *Watcher) moveTo(path, subdir string) {
	dest := filepath.Join(w.config.Dir, subdir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		w.config.Logger.Printf("Warning: failed to move %s to %s: %v", path, subdir, err)
	}
}
