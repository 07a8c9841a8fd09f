package syncer

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/tillworks/tillsync/internal/localstore"
	"github.com/tillworks/tillsync/internal/pos"
	"github.com/tillworks/tillsync/internal/remote"
)

// Refresher overwrites local cache entries with current remote state.
type Refresher struct {
	store  *localstore.Store
	remote remote.Store
	conn   Connectivity
	logger *log.Logger

	// onRefresh, when set, receives the outcome of every completed refresh.
	onRefresh func(collection string, stored, skipped int)
}

// NewRefresher creates a Refresher. If logger is nil, a default logger
// writing to stderr is used.
func NewRefresher(store *localstore.Store, rs remote.Store, conn Connectivity, logger *log.Logger) *Refresher {
	if logger == nil {
		logger = log.New(os.Stderr, "[refresh] ", log.LstdFlags)
	}
	return &Refresher{
		store:  store,
		remote: rs,
		conn:   conn,
		logger: logger,
	}
}

// OnRefresh registers a callback receiving each completed refresh outcome.
// Must be called before refreshes start.
func (r *Refresher) OnRefresh(fn func(collection string, stored, skipped int)) {
	r.onRefresh = fn
}

// Refresh pulls every record in the remote collection into the local cache,
// overwriting existing copies with the same id. Local entries absent from the
// fetch are left untouched; records deleted elsewhere linger until a write
// path removes them. Offline, Refresh is a no-op.
func (r *Refresher) Refresh(ctx context.Context, collection string) error {
	if !r.conn.Online() {
		r.logger.Printf("Offline, skipping refresh of %s", collection)
		return nil
	}

	docs, err := r.remote.FetchAll(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to refresh %s: %w", collection, err)
	}

	var stored, skipped int
	for _, doc := range docs {
		rec, err := pos.Decode(collection, doc)
		if err != nil {
			r.logger.Printf("Warning: skipping bad remote %s record: %v", collection, err)
			skipped++
			continue
		}
		if err := r.store.Put(ctx, collection, rec); err != nil {
			r.logger.Printf("Warning: failed to cache %s/%s: %v", collection, rec.RecordID(), err)
			skipped++
			continue
		}
		stored++
	}

	r.logger.Printf("Refreshed %s: %d cached, %d skipped", collection, stored, skipped)
	if r.onRefresh != nil {
		r.onRefresh(collection, stored, skipped)
	}
	return nil
}

// RefreshAll refreshes every known collection in parallel and waits for all
// of them to settle. Per-collection failures are logged, not returned; the
// sync engine runs regardless.
func (r *Refresher) RefreshAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, collection := range pos.Collections() {
		wg.Add(1)
		go func(c string) {
			defer wg.Done()
			if err := r.Refresh(ctx, c); err != nil {
				r.logger.Printf("Warning: refresh of %s failed: %v", c, err)
			}
		}(collection)
	}
	wg.Wait()
}
