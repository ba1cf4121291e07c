package lockmgr

import (
	"context"
	"time"
)

// ILockService defines the interface of the collaborative lock manager.
//
// Routine outcomes (conflicts, foreign or missing locks) are reported inside the results.
// The error return is reserved for invalid input (*ValidationError) and infrastructure
// failures (store errors, ErrMalformedRecord).
type ILockService interface {
	// AcquireLock grants the lock on a resource to the requester for the given lease,
	// or reports who holds it. Re-acquiring from the same user and tab refreshes the lease.
	AcquireLock(ctx context.Context, collection, resourceID string, req Requester, lease time.Duration) (LockResult, error)

	// ExtendLock gives the owner (same user and tab) a fresh lease of extendBy starting now.
	ExtendLock(ctx context.Context, collection, resourceID string, req Requester, extendBy time.Duration) (ExtendResult, error)

	// ReleaseLock frees a lock held by the caller's tab. An expired lock is removed for anyone.
	ReleaseLock(ctx context.Context, collection, resourceID string, req Requester, reason string) (ReleaseResult, error)

	// GetLockStatus reports the lock state of a resource as seen by the caller. Read-only.
	GetLockStatus(ctx context.Context, collection, resourceID string, req Requester) (LockStatus, error)

	// TransferLock moves a live lock of the same user to the requester's tab.
	TransferLock(ctx context.Context, collection, resourceID string, req Requester, lease time.Duration) (TransferResult, error)

	// ListLocks returns the live locks of a collection ordered by resource key.
	ListLocks(ctx context.Context, collection string) ([]LockRecord, error)
}
