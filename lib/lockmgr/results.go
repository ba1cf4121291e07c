package lockmgr

import "time"

// Requester identifies the caller of an operation. Email and DisplayName are only stored
// by operations that write an owner (acquire, transfer). TabID is required by every
// operation except GetLockStatus, where a caller without a tab never has the lock.
type Requester struct {
	UserID      string
	Email       string
	DisplayName string
	TabID       string
	LockGroup   string // optional group hint, see GroupResolver
}

// Outcome is the routine result of a lock operation.
type Outcome uint8

const (
	OutcomeGranted  Outcome = iota // The operation took effect.
	OutcomeConflict                // Someone else (or another tab) holds the lock.
	OutcomeNotOwner                // The caller does not hold the lock.
	OutcomeNotFound                // There is no lock record.
	OutcomeExpired                 // The lock record has expired.
)

func (o Outcome) String() string {
	switch o {
	case OutcomeGranted:
		return "granted"
	case OutcomeConflict:
		return "conflict"
	case OutcomeNotOwner:
		return "not_owner"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Holder describes the owner of a lock for display.
type Holder struct {
	UserID      string
	Email       string
	DisplayName string
	TabID       string
}

func holderOf(rec *LockRecord) Holder {
	return Holder{
		UserID:      rec.OwnerUserID,
		Email:       rec.OwnerEmail,
		DisplayName: rec.OwnerDisplayName,
		TabID:       rec.OwnerTabID,
	}
}

// LockResult is the result of AcquireLock.
type LockResult struct {
	Granted            bool
	Outcome            Outcome
	Message            string
	ResourceKey        string
	LockGroup          string
	ExpiresAt          time.Time
	Holder             Holder
	IsMultiTabConflict bool
	Transferable       bool
}

// ExtendResult is the result of ExtendLock.
type ExtendResult struct {
	Extended  bool
	Outcome   Outcome
	Message   string
	ExpiresAt time.Time
}

// ReleaseResult is the result of ReleaseLock.
type ReleaseResult struct {
	Released bool
	Outcome  Outcome
	Message  string
}

// TransferResult is the result of TransferLock.
type TransferResult struct {
	Transferred bool
	Outcome     Outcome
	Message     string
	ExpiresAt   time.Time
	Holder      Holder
}

// LockStatus is the result of GetLockStatus. IsLocked == false implies CanEdit.
type LockStatus struct {
	Collection  string
	ResourceID  string
	ResourceKey string
	LockGroup   string
	IsLocked    bool
	CanEdit     bool
	HasLock     bool
	ExpiresAt   time.Time
	Holder      Holder
}
