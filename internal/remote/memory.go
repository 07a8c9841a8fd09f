package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and by `tilld serve`
// running against a fixture back office. It assigns sequential ids and
// supports per-call failure injection through FailNext.
type MemoryStore struct {
	mu      sync.Mutex
	data    map[string]map[string]json.RawMessage // collection -> id -> record
	nextID  int
	offline bool

	// FailNext, when non-nil, is consulted before every operation; returning
	// a non-nil error aborts the call without touching state.
	FailNext func(op, collection, id string) error

	// Calls records every operation for assertions, as "op collection id".
	Calls []string
}

// NewMemoryStore creates an empty in-memory remote store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:   make(map[string]map[string]json.RawMessage),
		nextID: 1,
	}
}

// SetOffline makes every subsequent call fail, simulating an unreachable
// back office behind a stale-true online flag.
func (m *MemoryStore) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// Seed stores a record directly, bypassing failure injection.
func (m *MemoryStore) Seed(collection, id string, record json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(collection)[id] = record
}

// Records returns the stored records for a collection, keyed by id.
func (m *MemoryStore) Records(collection string) map[string]json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]json.RawMessage, len(m.data[collection]))
	for id, rec := range m.data[collection] {
		out[id] = rec
	}
	return out
}

// FetchAll implements Store.
func (m *MemoryStore) FetchAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.gate("fetchAll", collection, ""); err != nil {
		return nil, err
	}

	var records []json.RawMessage
	for _, rec := range m.data[collection] {
		records = append(records, rec)
	}
	return records, nil
}

// Create implements Store. The stored record is the payload with the
// assigned id injected.
func (m *MemoryStore) Create(ctx context.Context, collection string, payload json.RawMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.gate("create", collection, ""); err != nil {
		return "", err
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return "", fmt.Errorf("bad create payload: %w", err)
	}

	id := fmt.Sprintf("rec-%d", m.nextID)
	m.nextID++
	fields["id"] = id

	stored, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	m.bucket(collection)[id] = stored
	return id, nil
}

// Update implements Store, merging the payload's fields into the stored
// record (partial update, last writer wins).
func (m *MemoryStore) Update(ctx context.Context, collection, id string, payload json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.gate("update", collection, id); err != nil {
		return err
	}

	existing, ok := m.bucket(collection)[id]
	if !ok {
		return ErrNotFound
	}

	var fields, patch map[string]any
	if err := json.Unmarshal(existing, &fields); err != nil {
		return err
	}
	if err := json.Unmarshal(payload, &patch); err != nil {
		return fmt.Errorf("bad update payload: %w", err)
	}
	for k, v := range patch {
		fields[k] = v
	}
	fields["id"] = id

	stored, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	m.bucket(collection)[id] = stored
	return nil
}

// Remove implements Store.
func (m *MemoryStore) Remove(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.gate("remove", collection, id); err != nil {
		return err
	}

	if _, ok := m.bucket(collection)[id]; !ok {
		return ErrNotFound
	}
	delete(m.bucket(collection), id)
	return nil
}

// Ping implements Pinger.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gate("ping", "", "")
}

// gate applies the offline switch and failure injection. Callers hold mu.
func (m *MemoryStore) gate(op, collection, id string) error {
	m.Calls = append(m.Calls, fmt.Sprintf("%s %s %s", op, collection, id))
	if m.offline {
		return fmt.Errorf("remote store unreachable")
	}
	if m.FailNext != nil {
		if err := m.FailNext(op, collection, id); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) bucket(collection string) map[string]json.RawMessage {
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]json.RawMessage)
	}
	return m.data[collection]
}
