package syncer

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/tillworks/tillsync/internal/localstore"
	"github.com/tillworks/tillsync/internal/pos"
	"github.com/tillworks/tillsync/internal/remote"
)

// Writer is the write-path entry point used by sale processing, the spool
// watcher and the HTTP API.
//
// Every remote mutation attempt has a uniform local fallback: the local cache
// is updated first, then the remote call is attempted when the connectivity
// flag reads true, and on any failure (not just a false pre-check) the
// mutation is transparently queued for replay. A stale-true online flag
// therefore degrades to the ordinary retry path instead of losing the write.
type Writer struct {
	store  *localstore.Store
	remote remote.Store
	conn   Connectivity
	logger *log.Logger
}

// NewWriter creates a Writer. If logger is nil, a default logger writing to
// stderr is used.
func NewWriter(store *localstore.Store, rs remote.Store, conn Connectivity, logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.New(os.Stderr, "[writer] ", log.LstdFlags)
	}
	return &Writer{
		store:  store,
		remote: rs,
		conn:   conn,
		logger: logger,
	}
}

// Save records a create (empty id) or update (existing id) of rec.
// The local cache always reflects the write; the remote store reflects it
// either immediately or after replay.
func (w *Writer) Save(ctx context.Context, collection string, rec pos.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid %s record: %w", collection, err)
	}

	if rec.RecordID() == "" {
		return w.create(ctx, collection, rec)
	}
	return w.update(ctx, collection, rec)
}

func (w *Writer) create(ctx context.Context, collection string, rec pos.Record) error {
	if w.conn.Online() {
		payload, err := pos.Encode(rec)
		if err != nil {
			return err
		}
		assignedID, err := w.remote.Create(ctx, collection, payload)
		if err == nil {
			rec.SetRecordID(assignedID)
			return w.store.Put(ctx, collection, rec)
		}
		w.logger.Printf("Remote create in %s failed, queuing for replay: %v", collection, err)
	}

	rec.SetRecordID(pos.NewTempID())
	if err := w.store.Put(ctx, collection, rec); err != nil {
		return err
	}
	return w.enqueue(ctx, localstore.ActionAdd, collection, rec)
}

func (w *Writer) update(ctx context.Context, collection string, rec pos.Record) error {
	if err := w.store.Put(ctx, collection, rec); err != nil {
		return err
	}

	// A record still carrying a temporary id has never been created remotely;
	// its pending add simply picks up the newer fields (queue collapse).
	if pos.IsTempID(rec.RecordID()) {
		return w.enqueue(ctx, localstore.ActionAdd, collection, rec)
	}

	if w.conn.Online() {
		payload, err := pos.Encode(rec)
		if err != nil {
			return err
		}
		err = w.remote.Update(ctx, collection, rec.RecordID(), payload)
		if err == nil {
			return nil
		}
		w.logger.Printf("Remote update of %s/%s failed, queuing for replay: %v", collection, rec.RecordID(), err)
	}

	return w.enqueue(ctx, localstore.ActionUpdate, collection, rec)
}

// Delete removes the record locally and remotely, queuing the remote removal
// when it cannot be performed now.
func (w *Writer) Delete(ctx context.Context, collection, id string) error {
	// Capture the record before it disappears; it becomes the queued payload.
	rec, err := w.store.Get(ctx, collection, id)
	if err != nil {
		return err
	}

	if err := w.store.Delete(ctx, collection, id); err != nil {
		return err
	}

	// A temp-id record was never created remotely; dropping any pending add
	// is the whole delete.
	if pos.IsTempID(id) {
		return w.store.RemoveMutation(ctx, localstore.MutationKey(collection, id))
	}

	if w.conn.Online() {
		err := w.remote.Remove(ctx, collection, id)
		if err == nil {
			return nil
		}
		w.logger.Printf("Remote delete of %s/%s failed, queuing for replay: %v", collection, id, err)
	}

	payload := []byte(fmt.Sprintf(`{"id":%q}`, id))
	if rec != nil {
		if encoded, err := pos.Encode(rec); err == nil {
			payload = encoded
		}
	}
	return w.store.Enqueue(ctx, localstore.ActionDelete, collection, id, payload)
}

func (w *Writer) enqueue(ctx context.Context, action localstore.Action, collection string, rec pos.Record) error {
	payload, err := pos.Encode(rec)
	if err != nil {
		return err
	}
	return w.store.Enqueue(ctx, action, collection, rec.RecordID(), payload)
}
