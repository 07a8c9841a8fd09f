package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/tillworks/tillsync/internal/localstore"
	"github.com/tillworks/tillsync/internal/pos"
	"github.com/tillworks/tillsync/internal/remote"
)

// Connectivity reports the current best-effort network state. A true result
// does not guarantee the remote store is reachable; remote calls still fail
// and fall back to the retry path.
type Connectivity interface {
	Online() bool
}

// Engine replays queued mutations against the remote store.
type Engine struct {
	store  *localstore.Store
	remote remote.Store
	conn   Connectivity
	coord  *Coordinator
	logger *log.Logger
}

// NewEngine creates a replay engine. If logger is nil, a default logger
// writing to stderr is used.
func NewEngine(store *localstore.Store, rs remote.Store, conn Connectivity, coord *Coordinator, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[syncer] ", log.LstdFlags)
	}
	return &Engine{
		store:  store,
		remote: rs,
		conn:   conn,
		coord:  coord,
		logger: logger,
	}
}

// Run replays every queued mutation in order.
//
// StatusStart is emitted immediately and StatusEnd unconditionally when the
// traversal completes, including the offline no-op case. A failure on one
// item leaves it queued for the next run and does not abort the rest. The
// returned error covers only queue access itself, never individual replays.
func (e *Engine) Run(ctx context.Context) error {
	e.coord.Begin()
	defer e.coord.End()

	if !e.conn.Online() {
		e.logger.Printf("Offline, skipping sync run")
		return nil
	}

	mutations, err := e.store.PendingMutations(ctx)
	if err != nil {
		return fmt.Errorf("failed to read outbox: %w", err)
	}
	if len(mutations) == 0 {
		return nil
	}

	e.logger.Printf("Replaying %d queued mutations", len(mutations))

	var stillQueued int
	for _, m := range mutations {
		if err := e.replay(ctx, m); err != nil {
			e.logger.Printf("Warning: %s %s left queued: %v", m.Action, m.Key, err)
			stillQueued++
			continue
		}
		removed, err := e.store.RemoveReplayedMutation(ctx, m.Key, m.Seq)
		if err != nil {
			// The remote write went through but the queue entry survived; the
			// next run's duplicate detection cleans this up for adds, and
			// updates/deletes are idempotent at the remote store.
			e.logger.Printf("Warning: failed to dequeue %s: %v", m.Key, err)
		} else if !removed {
			// A newer write for this key was collapsed in while the replay
			// was in flight. It stays queued for the next run.
			e.logger.Printf("Newer write queued for %s during replay, keeping it", m.Key)
			stillQueued++
		}
	}

	e.logger.Printf("Sync run complete: %d visited, %d still queued", len(mutations), stillQueued)
	return nil
}

// replay applies a single queued mutation to the remote store and mirrors
// the outcome into the local cache.
func (e *Engine) replay(ctx context.Context, m localstore.Mutation) error {
	switch m.Action {
	case localstore.ActionAdd:
		return e.replayAdd(ctx, m)

	case localstore.ActionUpdate:
		err := e.remote.Update(ctx, m.Collection, m.RecordID, m.Payload)
		if errors.Is(err, remote.ErrNotFound) {
			// Record was deleted remotely; abandon the update.
			e.logger.Printf("Abandoning update for %s: record gone remotely", m.Key)
			return nil
		}
		return err

	case localstore.ActionDelete:
		err := e.remote.Remove(ctx, m.Collection, m.RecordID)
		if errors.Is(err, remote.ErrNotFound) {
			return nil
		}
		return err

	default:
		// Unknown actions are abandoned rather than retried forever.
		e.logger.Printf("Abandoning mutation %s with unknown action %q", m.Key, m.Action)
		return nil
	}
}

// replayAdd creates a record remotely, handling duplicate detection for
// records created while offline.
func (e *Engine) replayAdd(ctx context.Context, m localstore.Mutation) error {
	rec, err := pos.Decode(m.Collection, m.Payload)
	if err != nil {
		// An undecodable payload would never replay; abandon it.
		e.logger.Printf("Abandoning add %s with bad payload: %v", m.Key, err)
		return nil
	}

	localID := m.RecordID

	if pos.IsTempID(localID) {
		match, err := e.findRemoteMatch(ctx, m.Collection, rec.Fingerprint())
		if err != nil {
			return err
		}
		if match {
			// A previous attempt already created this record (remote write
			// succeeded, dequeue failed) or it was submitted twice offline.
			// Drop the local temporary copy without writing again.
			e.logger.Printf("Duplicate of %s already synced, dropping local copy", m.Key)
			return e.store.Delete(ctx, m.Collection, localID)
		}
	}

	// The remote store assigns ids; strip the local one before creating.
	rec.SetRecordID("")
	payload, err := pos.Encode(rec)
	if err != nil {
		return err
	}

	assignedID, err := e.remote.Create(ctx, m.Collection, payload)
	if err != nil {
		return err
	}

	// Swap the local copy over to the remote-assigned id.
	if assignedID != localID {
		if err := e.store.Delete(ctx, m.Collection, localID); err != nil {
			return err
		}
	}
	rec.SetRecordID(assignedID)
	if err := e.store.Put(ctx, m.Collection, rec); err != nil {
		return err
	}

	e.logger.Printf("Created %s/%s (was %s)", m.Collection, assignedID, localID)
	return nil
}

// findRemoteMatch reports whether any remote record in the collection shares
// the given business fingerprint.
func (e *Engine) findRemoteMatch(ctx context.Context, collection, fingerprint string) (bool, error) {
	docs, err := e.remote.FetchAll(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("duplicate check failed: %w", err)
	}

	for _, doc := range docs {
		existing, err := pos.Decode(collection, doc)
		if err != nil {
			e.logger.Printf("Warning: skipping undecodable remote %s record in duplicate check: %v", collection, err)
			continue
		}
		if existing.Fingerprint() == fingerprint {
			return true, nil
		}
	}
	return false, nil
}
