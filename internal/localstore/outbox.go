package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tillworks/tillsync/internal/pos"
)

// Action is the kind of pending write carried by a queued mutation.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Mutation is one pending write destined for the remote store.
//
// At most one mutation exists per (collection, record id) at any time: a
// later Enqueue for the same key replaces the earlier one, so the outbox
// always holds the latest intended state transition per record, not an
// operation log.
//
// Seq is the entry's revision: it increments every time an Enqueue
// overwrites the key. The sync engine dequeues with the seq it read, so a
// write collapsed in while its predecessor was being replayed survives to
// the next run instead of being dequeued unseen.
type Mutation struct {
	Key        string
	Collection string
	RecordID   string
	Action     Action
	Payload    json.RawMessage
	Seq        int64
	QueuedAt   time.Time
}

// MutationKey builds the outbox key for a record.
func MutationKey(collection, id string) string {
	return collection + ":" + id
}

// Enqueue stores or overwrites the queued mutation for (collection, id).
//
// Last intent wins: queuing an update after a queued add for the same
// not-yet-synced record keeps the single entry (still under the local id,
// still an add from the remote store's point of view once the payload merges
// the latest fields). A replaced entry keeps its original queue position.
func (s *Store) Enqueue(ctx context.Context, action Action, collection, id string, payload []byte) error {
	if !pos.KnownCollection(collection) {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if id == "" {
		return fmt.Errorf("cannot enqueue %s for %s without a record id", action, collection)
	}

	query := `
	INSERT INTO outbox (key, collection, record_id, action, payload, seq, queued_at)
	VALUES (?, ?, ?, ?, ?, 1, ?)
	ON CONFLICT(key) DO UPDATE SET
		action = excluded.action,
		payload = excluded.payload,
		seq = outbox.seq + 1,
		queued_at = excluded.queued_at
	`

	_, err := s.conn.ExecContext(ctx, query,
		MutationKey(collection, id),
		collection,
		id,
		string(action),
		string(payload),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s for %s/%s: %w", action, collection, id, err)
	}
	return nil
}

// PendingMutations returns every queued mutation in insertion order.
func (s *Store) PendingMutations(ctx context.Context) ([]Mutation, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT key, collection, record_id, action, payload, seq, queued_at
		FROM outbox ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var mutations []Mutation
	for rows.Next() {
		var m Mutation
		var action, payload, queuedAt string
		if err := rows.Scan(&m.Key, &m.Collection, &m.RecordID, &action, &payload, &m.Seq, &queuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		m.Action = Action(action)
		m.Payload = json.RawMessage(payload)
		if t, err := time.Parse(time.RFC3339Nano, queuedAt); err == nil {
			m.QueuedAt = t
		}
		mutations = append(mutations, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}

	return mutations, nil
}

// RemoveMutation deletes the queued mutation for key regardless of revision.
// Used by the write path to cancel a pending add when its temp-id record is
// deleted. Removing an absent key is not an error.
func (s *Store) RemoveMutation(ctx context.Context, key string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM outbox WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to remove mutation %s: %w", key, err)
	}
	return nil
}

// RemoveReplayedMutation deletes the queued mutation for key only if it is
// still at revision seq, the one the caller replayed. It reports whether the
// entry was removed; false means a newer write was collapsed in during the
// replay and must stay queued.
func (s *Store) RemoveReplayedMutation(ctx context.Context, key string, seq int64) (bool, error) {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM outbox WHERE key = ? AND seq = ?`, key, seq)
	if err != nil {
		return false, fmt.Errorf("failed to remove mutation %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to remove mutation %s: %w", key, err)
	}
	return affected > 0, nil
}

// CountPending returns the number of queued mutations.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return count, nil
}
