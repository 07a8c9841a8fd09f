// Package remote defines the interface to the back-office document store and
// its HTTP implementation.
//
// The remote store is an opaque network service exposing collection-level
// operations keyed by identifiers it assigns itself. This package deliberately
// knows nothing about sync state: callers decide when to reach for the network
// and how to recover when it fails.
package remote

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when the remote store has no record at the
// requested id.
var ErrNotFound = errors.New("remote record not found")

// Store is the collection-level surface of the back-office document store.
//
// FetchAll returns each record as raw JSON including its remote-assigned id.
// Create submits a record without an id and returns the id the store
// assigned. Update applies the payload as a field update at id. Remove
// deletes the record at id.
type Store interface {
	FetchAll(ctx context.Context, collection string) ([]json.RawMessage, error)
	Create(ctx context.Context, collection string, payload json.RawMessage) (string, error)
	Update(ctx context.Context, collection, id string, payload json.RawMessage) error
	Remove(ctx context.Context, collection, id string) error
}

// Pinger is the reachability probe used by the connectivity monitor. A nil
// error means the remote store answered; it does not guarantee subsequent
// calls will succeed.
type Pinger interface {
	Ping(ctx context.Context) error
}
