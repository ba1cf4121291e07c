// Package lockmgr implements an advisory, lease based lock manager for collaborative
// editing on top of any store.IStore. Several editors (and several browser tabs of the
// same editor) can work on the same records without overwriting each other.
//
// The service holds no lock state of its own. Everything lives in the store, so any
// number of service instances (in one process or on many nodes) may share one store.
// Creating a new service per request is fine.
//
// Locks:
//
//	A lock is a LockRecord stored as JSON under "lock/{collection}/{resourceKey}". It names
//	the owner (user and tab) and a lease end (ExpiresAt). Expiry is evaluated lazily on the
//	next access: an expired record counts as absent and is replaced by the next acquirer.
//	There is no background cleanup.
//
// Conditional Writes:
//
//	Every mutation is a read-modify-write cycle whose write is a PutIf or DeleteIf on the
//	version that was read. If another writer got there first the store reports
//	RetCConditionFailed, the cycle is run once more and a second loss is reported as a
//	conflict. Of two concurrent acquires on a free resource exactly one is granted.
//
// Lock Groups:
//
//	A GroupResolver maps the fields (or tabs) of an editor to a group name, so that all
//	of them lock the same key. See GroupResolver.Resolve for the rules.
//
// Multiple Tabs:
//
//	A user who holds a lock in one tab and acquires it from another tab gets a multi tab
//	conflict. TransferLock moves the lock to the new tab if the record is transferable and
//	the old tab did not renew it within Options.TransferGrace.
//
// Usage Example:
//
//	svc := lockmgr.NewLockService(store, nil)
//
//	req := lockmgr.Requester{UserID: "u-1", DisplayName: "Jane", TabID: "tab-1"}
//	res, err := svc.AcquireLock(ctx, "magazine_sections", "sec-42", req, 10*time.Minute)
//	if err != nil {
//	    // invalid input or store failure
//	}
//	if !res.Granted {
//	    // res.Holder tells who is editing, res.IsMultiTabConflict if it is the same user
//	}
//
//	// heartbeat well inside the lease
//	_, _ = svc.ExtendLock(ctx, "magazine_sections", "sec-42", req, 5*time.Minute)
//
//	_, _ = svc.ReleaseLock(ctx, "magazine_sections", "sec-42", req, "done editing")
package lockmgr
