package lockmgr

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LockRecord is the persisted state of one lock. There is at most one record per
// (Collection, ResourceKey) and a record whose ExpiresAt has passed counts as absent.
type LockRecord struct {
	Collection       string    `json:"collection"`
	ResourceKey      string    `json:"resourceKey"`
	ResourceID       string    `json:"resourceId"`
	OwnerUserID      string    `json:"ownerUserId"`
	OwnerEmail       string    `json:"ownerEmail"`
	OwnerDisplayName string    `json:"ownerDisplayName"`
	OwnerTabID       string    `json:"ownerTabId,omitempty"`
	LockGroup        string    `json:"lockGroup,omitempty"`
	AcquiredAt       time.Time `json:"acquiredAt"`
	RenewedAt        time.Time `json:"renewedAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
	Transferable     bool      `json:"transferable"`

	// Version is the store's conditional write token of the document the record was read from.
	Version uint64 `json:"-"`
}

// IsLive reports whether the record still holds the lock at the given time.
func (r *LockRecord) IsLive(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

// OwnedBy reports whether the record belongs to exactly this user and tab. Another tab
// of the same user, or a caller without a tab, is not the owner.
func (r *LockRecord) OwnedBy(userID, tabID string) bool {
	return r.OwnerUserID == userID && r.OwnerTabID == tabID
}

// Validate checks the fields every persisted record must have.
func (r *LockRecord) Validate() error {
	switch {
	case r.Collection == "":
		return fmt.Errorf("%w: collection is empty", ErrMalformedRecord)
	case r.ResourceKey == "":
		return fmt.Errorf("%w: resourceKey is empty", ErrMalformedRecord)
	case r.OwnerUserID == "":
		return fmt.Errorf("%w: ownerUserId is empty", ErrMalformedRecord)
	case r.ExpiresAt.IsZero():
		return fmt.Errorf("%w: expiresAt is missing", ErrMalformedRecord)
	case r.ExpiresAt.Before(r.AcquiredAt):
		return fmt.Errorf("%w: expiresAt before acquiredAt", ErrMalformedRecord)
	}
	return nil
}

// storeKey returns the document key of a lock
func storeKey(collection, resourceKey string) string {
	return collectionPrefix(collection) + resourceKey
}

// collectionPrefix returns the key prefix shared by all locks of a collection
func collectionPrefix(collection string) string {
	return "lock/" + collection + "/"
}

func encodeRecord(r *LockRecord) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

func decodeRecord(data []byte, version uint64) (*LockRecord, error) {
	rec := &LockRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	rec.Version = version
	return rec, nil
}

// validateName rejects empty names and names that would break the key layout
func validateName(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return newValidationError(field, "must not be empty")
	}
	if field == "collection" && strings.Contains(value, "/") {
		return newValidationError(field, "must not contain '/'")
	}
	// '#' separates resource id and group in a lock key
	if field == "resourceId" && strings.Contains(value, groupSeparator) {
		return newValidationError(field, "must not contain '"+groupSeparator+"'")
	}
	return nil
}
