// Package connectivity tracks whether the back-office document store is
// reachable and drives the reconnect pipeline.
//
// Reachability is probed on an interval against the remote store's health
// endpoint. The resulting flag is best-effort: a true reading can go stale
// between probes, which is why every write path keeps a local fallback
// instead of trusting the flag alone.
package connectivity

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tillworks/tillsync/internal/remote"
)

// Monitor polls the remote store and fires the registered callback on each
// offline-to-online transition. Nothing runs on the transition to offline;
// subsequent writes simply route through the local path.
type Monitor struct {
	pinger   remote.Pinger
	interval time.Duration
	logger   *log.Logger

	online   atomic.Bool
	onOnline func(context.Context)
	onChange func(online bool)

	done chan struct{}
	wg   sync.WaitGroup
	mu   sync.Mutex
	run  bool
}

// New creates a monitor probing at the given interval. If logger is nil, a
// default logger writing to stderr is used.
func New(pinger remote.Pinger, interval time.Duration, logger *log.Logger) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}
	return &Monitor{
		pinger:   pinger,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// OnOnline registers the callback invoked on each offline-to-online
// transition. Must be called before Start.
func (m *Monitor) OnOnline(fn func(context.Context)) {
	m.onOnline = fn
}

// OnChange registers a callback invoked on every flip of the online flag,
// in either direction. Must be called before Start.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.onChange = fn
}

// Online reports the state observed by the most recent probe. The process
// starts offline until the first probe succeeds.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// CheckNow performs one probe, updates the flag, and fires the reconnect
// callback if this probe flipped the state to online. It returns the new
// state.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	nowOnline := m.pinger.Ping(ctx) == nil
	wasOnline := m.online.Swap(nowOnline)

	if nowOnline != wasOnline && m.onChange != nil {
		m.onChange(nowOnline)
	}

	switch {
	case nowOnline && !wasOnline:
		m.logger.Printf("Back office reachable, starting reconnect sync")
		if m.onOnline != nil {
			m.onOnline(ctx)
		}
	case !nowOnline && wasOnline:
		m.logger.Printf("Back office unreachable, entering offline mode")
	}

	return nowOnline
}

// Start launches the probe loop. An immediate probe runs before the first
// tick so the daemon doesn't sit in the unknown state for a full interval.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.run {
		m.mu.Unlock()
		return
	}
	m.run = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		m.CheckNow(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CheckNow(ctx)
			}
		}
	}()
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.run {
		m.mu.Unlock()
		return
	}
	m.run = false
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()
}
