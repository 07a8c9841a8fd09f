package pos

import (
	"encoding/json"
	"fmt"
)

// codecs maps each collection to a constructor for its record type.
var codecs = map[string]func() Record{
	CollectionPayments: func() Record { return &Sale{} },
	CollectionProducts: func() Record { return &Product{} },
}

// Decode unmarshals and validates a record belonging to collection.
//
// This is the validation boundary for everything entering the local store:
// records read from the remote store, from the register spool, and from the
// HTTP API all pass through here before being persisted.
func Decode(collection string, data []byte) (Record, error) {
	newRecord, ok := codecs[collection]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}

	rec := newRecord()
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to decode %s record: %w", collection, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s record: %w", collection, err)
	}
	return rec, nil
}

// Encode marshals a record to its stored JSON form.
// A record with an empty id serializes without the id field, which is the
// shape the remote store expects on creation.
func Encode(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s record: %w", rec.Collection(), err)
	}
	return data, nil
}
