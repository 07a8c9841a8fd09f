// Package pos defines the business records synchronized between a register's
// local cache and the back-office document store.
//
// Each record type belongs to exactly one collection. The set of collections
// is fixed at startup; records are validated at the local-store boundary
// through the codec registry in this package.
package pos

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Collection names. Every record belongs to exactly one of these.
const (
	CollectionPayments = "payments"
	CollectionProducts = "products"
)

// Collections returns every known collection name.
func Collections() []string {
	return []string{CollectionPayments, CollectionProducts}
}

// KnownCollection reports whether name is one of the fixed collections.
func KnownCollection(name string) bool {
	switch name {
	case CollectionPayments, CollectionProducts:
		return true
	}
	return false
}

// Record is one business entity instance within a collection.
//
// RecordID returns the record's identifier: either an id assigned by the
// remote store, or a temporary id synthesized while offline (see NewTempID).
// Fingerprint returns the tuple of business-identifying fields used for
// duplicate detection at sync time; two records with equal fingerprints in
// the same collection are treated as the same entity.
type Record interface {
	RecordID() string
	SetRecordID(id string)
	Collection() string
	Fingerprint() string
	Validate() error
}

// tempIDPrefix tags identifiers synthesized while the remote store was
// unreachable. Synced records get a remote-assigned id and lose the prefix.
const tempIDPrefix = "offline-"

// NewTempID synthesizes a temporary record identifier for offline creation.
// The id is of the form "offline-<unix millis>-<random suffix>".
func NewTempID() string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s%d-%s", tempIDPrefix, time.Now().UnixMilli(), suffix)
}

// IsTempID reports whether id was synthesized locally by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}
