package lockmgr

import (
	"context"
	"time"

	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("lockmgr")

// Options configures a lock service.
type Options struct {
	// Clock is the time source (default: wall clock).
	Clock Clock
	// Groups resolves grouped resources (default: every resource locks itself).
	Groups *GroupResolver
	// Transferable is written to every new record and decides whether another tab
	// of the same user may take the lock over.
	Transferable bool
	// TransferGrace refuses a transfer while the holder renewed the lock within this period.
	// Zero allows immediate takeover.
	TransferGrace time.Duration
}

// DefaultOptions returns the options used when nil is passed to NewLockService
func DefaultOptions() *Options {
	return &Options{
		Clock:        SystemClock(),
		Transferable: true,
	}
}

type lockServiceImpl struct {
	locks         *lockStore
	groups        *GroupResolver
	clock         Clock
	transferable  bool
	transferGrace time.Duration
}

// NewLockService creates a lock service on top of a store. The service keeps no state
// besides its configuration, so any number of instances may share the same store.
func NewLockService(st store.IStore, opts *Options) ILockService {
	if opts == nil {
		opts = DefaultOptions()
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	return &lockServiceImpl{
		locks:         &lockStore{store: st},
		groups:        opts.Groups,
		clock:         clock,
		transferable:  opts.Transferable,
		transferGrace: opts.TransferGrace,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func validateTarget(collection, resourceID, userID string) error {
	if err := validateName("collection", collection); err != nil {
		return err
	}
	if err := validateName("resourceId", resourceID); err != nil {
		return err
	}
	return validateName("userId", userID)
}

func validateDuration(field string, d time.Duration) error {
	if d <= 0 {
		return newValidationError(field, "must be positive")
	}
	return nil
}

// newRecord builds a record owned by req, valid for lease from now
func (s *lockServiceImpl) newRecord(collection, resourceID string, res Resolution, req Requester, now time.Time, lease time.Duration) *LockRecord {
	return &LockRecord{
		Collection:       collection,
		ResourceKey:      res.ResourceKey,
		ResourceID:       resourceID,
		OwnerUserID:      req.UserID,
		OwnerEmail:       req.Email,
		OwnerDisplayName: req.DisplayName,
		OwnerTabID:       req.TabID,
		LockGroup:        res.LockGroup,
		AcquiredAt:       now,
		RenewedAt:        now,
		ExpiresAt:        now.Add(lease),
		Transferable:     s.transferable,
	}
}

// conflictResult describes a live lock held by someone other than req
func conflictResult(rec *LockRecord, req Requester) LockResult {
	res := LockResult{
		Outcome:     OutcomeConflict,
		ResourceKey: rec.ResourceKey,
		LockGroup:   rec.LockGroup,
		ExpiresAt:   rec.ExpiresAt,
		Holder:      holderOf(rec),
	}
	if rec.OwnerUserID == req.UserID {
		res.IsMultiTabConflict = true
		res.Transferable = rec.Transferable
		res.Message = "you are already editing this resource in another tab"
	} else {
		res.Message = "resource is locked by " + displayName(rec)
	}
	return res
}

func displayName(rec *LockRecord) string {
	if rec.OwnerDisplayName != "" {
		return rec.OwnerDisplayName
	}
	if rec.OwnerEmail != "" {
		return rec.OwnerEmail
	}
	return rec.OwnerUserID
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr/interface.go)
// --------------------------------------------------------------------------

func (s *lockServiceImpl) AcquireLock(ctx context.Context, collection, resourceID string, req Requester, lease time.Duration) (result LockResult, err error) {
	ctx, done := observe(ctx, "acquire", collection, resourceID)
	defer func() { done(result.Outcome, err) }()

	if err = validateTarget(collection, resourceID, req.UserID); err != nil {
		return LockResult{}, err
	}
	if err = validateName("tabId", req.TabID); err != nil {
		return LockResult{}, err
	}
	if err = validateDuration("lease", lease); err != nil {
		return LockResult{}, err
	}

	res := s.groups.Resolve(collection, resourceID, req.LockGroup)

	result, err = withRetry(ctx, "acquire", func() (LockResult, error) {
		now := s.clock.Now()
		current, found, err := s.locks.read(ctx, collection, res.ResourceKey)
		if err != nil {
			return LockResult{}, err
		}

		var next *LockRecord
		switch {
		case !found:
			next = s.newRecord(collection, resourceID, res, req, now, lease)
			err = s.locks.create(ctx, next)
		case !current.IsLive(now):
			next = s.newRecord(collection, resourceID, res, req, now, lease)
			err = s.locks.write(ctx, next, current.Version)
		case current.OwnerUserID != req.UserID || current.OwnerTabID != req.TabID:
			return conflictResult(current, req), nil
		default:
			// re-entrant acquire refreshes the lease
			refreshed := *current
			refreshed.OwnerEmail = req.Email
			refreshed.OwnerDisplayName = req.DisplayName
			refreshed.RenewedAt = now
			refreshed.ExpiresAt = now.Add(lease)
			next = &refreshed
			err = s.locks.write(ctx, next, current.Version)
		}
		if err != nil {
			return LockResult{}, err
		}
		return LockResult{
			Granted:     true,
			Outcome:     OutcomeGranted,
			Message:     "lock acquired",
			ResourceKey: next.ResourceKey,
			LockGroup:   next.LockGroup,
			ExpiresAt:   next.ExpiresAt,
			Holder:      holderOf(next),
		}, nil
	})

	if store.IsConditionFailed(err) {
		// lost the race twice, report the winner
		current, found, readErr := s.locks.read(ctx, collection, res.ResourceKey)
		if readErr != nil {
			return LockResult{}, readErr
		}
		if found && current.IsLive(s.clock.Now()) {
			return conflictResult(current, req), nil
		}
		return LockResult{
			Outcome:     OutcomeConflict,
			Message:     "lock changed concurrently, try again",
			ResourceKey: res.ResourceKey,
			LockGroup:   res.LockGroup,
		}, nil
	}
	return result, err
}

func (s *lockServiceImpl) ExtendLock(ctx context.Context, collection, resourceID string, req Requester, extendBy time.Duration) (result ExtendResult, err error) {
	ctx, done := observe(ctx, "extend", collection, resourceID)
	defer func() { done(result.Outcome, err) }()

	if err = validateTarget(collection, resourceID, req.UserID); err != nil {
		return ExtendResult{}, err
	}
	if err = validateName("tabId", req.TabID); err != nil {
		return ExtendResult{}, err
	}
	if err = validateDuration("extendBy", extendBy); err != nil {
		return ExtendResult{}, err
	}

	res := s.groups.Resolve(collection, resourceID, req.LockGroup)

	result, err = withRetry(ctx, "extend", func() (ExtendResult, error) {
		now := s.clock.Now()
		current, found, err := s.locks.read(ctx, collection, res.ResourceKey)
		if err != nil {
			return ExtendResult{}, err
		}
		switch {
		case !found:
			return ExtendResult{Outcome: OutcomeNotFound, Message: "no lock to extend, acquire it again"}, nil
		case !current.IsLive(now):
			return ExtendResult{Outcome: OutcomeExpired, Message: "lock has expired, acquire it again", ExpiresAt: current.ExpiresAt}, nil
		case !current.OwnedBy(req.UserID, req.TabID):
			return ExtendResult{Outcome: OutcomeNotOwner, Message: "lock is held by someone else", ExpiresAt: current.ExpiresAt}, nil
		}

		extended := *current
		extended.RenewedAt = now
		extended.ExpiresAt = now.Add(extendBy)
		if err := s.locks.write(ctx, &extended, current.Version); err != nil {
			return ExtendResult{}, err
		}
		return ExtendResult{
			Extended:  true,
			Outcome:   OutcomeGranted,
			Message:   "lock extended",
			ExpiresAt: extended.ExpiresAt,
		}, nil
	})

	if store.IsConditionFailed(err) {
		return ExtendResult{Outcome: OutcomeConflict, Message: "lock changed concurrently, acquire it again"}, nil
	}
	return result, err
}

func (s *lockServiceImpl) ReleaseLock(ctx context.Context, collection, resourceID string, req Requester, reason string) (result ReleaseResult, err error) {
	ctx, done := observe(ctx, "release", collection, resourceID)
	defer func() { done(result.Outcome, err) }()

	if err = validateTarget(collection, resourceID, req.UserID); err != nil {
		return ReleaseResult{}, err
	}
	if err = validateName("tabId", req.TabID); err != nil {
		return ReleaseResult{}, err
	}

	res := s.groups.Resolve(collection, resourceID, req.LockGroup)

	result, err = withRetry(ctx, "release", func() (ReleaseResult, error) {
		current, found, err := s.locks.read(ctx, collection, res.ResourceKey)
		if err != nil {
			return ReleaseResult{}, err
		}
		if !found {
			return ReleaseResult{Outcome: OutcomeNotFound, Message: "lock is already free"}, nil
		}

		live := current.IsLive(s.clock.Now())
		if live && !current.OwnedBy(req.UserID, req.TabID) {
			return ReleaseResult{Outcome: OutcomeNotOwner, Message: "lock is held by someone else"}, nil
		}
		if err := s.locks.remove(ctx, collection, res.ResourceKey, current.Version); err != nil {
			return ReleaseResult{}, err
		}
		if !live {
			return ReleaseResult{Released: true, Outcome: OutcomeExpired, Message: "expired lock removed"}, nil
		}
		return ReleaseResult{Released: true, Outcome: OutcomeGranted, Message: "lock released"}, nil
	})

	if store.IsConditionFailed(err) {
		return ReleaseResult{Outcome: OutcomeConflict, Message: "lock changed concurrently"}, nil
	}
	if err == nil && result.Released {
		log.Infof("lock %s/%s released by %s (reason: %q)", collection, res.ResourceKey, req.UserID, reason)
	}
	return result, err
}

func (s *lockServiceImpl) GetLockStatus(ctx context.Context, collection, resourceID string, req Requester) (status LockStatus, err error) {
	ctx, done := observe(ctx, "status", collection, resourceID)
	defer func() { done(OutcomeGranted, err) }()

	if err = validateTarget(collection, resourceID, req.UserID); err != nil {
		return LockStatus{}, err
	}

	res := s.groups.Resolve(collection, resourceID, req.LockGroup)
	status = LockStatus{
		Collection:  collection,
		ResourceID:  resourceID,
		ResourceKey: res.ResourceKey,
		LockGroup:   res.LockGroup,
		CanEdit:     true,
	}

	current, found, err := s.locks.read(ctx, collection, res.ResourceKey)
	if err != nil {
		return LockStatus{}, err
	}
	if !found || !current.IsLive(s.clock.Now()) {
		return status, nil
	}

	status.IsLocked = true
	status.HasLock = current.OwnedBy(req.UserID, req.TabID)
	status.CanEdit = status.HasLock
	status.ExpiresAt = current.ExpiresAt
	status.Holder = holderOf(current)
	return status, nil
}

func (s *lockServiceImpl) TransferLock(ctx context.Context, collection, resourceID string, req Requester, lease time.Duration) (result TransferResult, err error) {
	ctx, done := observe(ctx, "transfer", collection, resourceID)
	defer func() { done(result.Outcome, err) }()

	if err = validateTarget(collection, resourceID, req.UserID); err != nil {
		return TransferResult{}, err
	}
	if err = validateName("tabId", req.TabID); err != nil {
		return TransferResult{}, err
	}
	if err = validateDuration("lease", lease); err != nil {
		return TransferResult{}, err
	}

	res := s.groups.Resolve(collection, resourceID, req.LockGroup)

	result, err = withRetry(ctx, "transfer", func() (TransferResult, error) {
		now := s.clock.Now()
		current, found, err := s.locks.read(ctx, collection, res.ResourceKey)
		if err != nil {
			return TransferResult{}, err
		}
		switch {
		case !found || !current.IsLive(now):
			return TransferResult{Outcome: OutcomeNotFound, Message: "no live lock to transfer, acquire it instead"}, nil
		case current.OwnerUserID != req.UserID:
			return TransferResult{Outcome: OutcomeNotOwner, Message: "lock is held by another user", ExpiresAt: current.ExpiresAt, Holder: holderOf(current)}, nil
		case current.OwnerTabID != req.TabID && !current.Transferable:
			return TransferResult{Outcome: OutcomeConflict, Message: "lock is not transferable", ExpiresAt: current.ExpiresAt, Holder: holderOf(current)}, nil
		case current.OwnerTabID != req.TabID && s.transferGrace > 0 && now.Sub(current.RenewedAt) < s.transferGrace:
			return TransferResult{Outcome: OutcomeConflict, Message: "the other tab is still active", ExpiresAt: current.ExpiresAt, Holder: holderOf(current)}, nil
		}

		moved := *current
		moved.OwnerTabID = req.TabID
		moved.OwnerEmail = req.Email
		moved.OwnerDisplayName = req.DisplayName
		moved.RenewedAt = now
		moved.ExpiresAt = now.Add(lease)
		if err := s.locks.write(ctx, &moved, current.Version); err != nil {
			return TransferResult{}, err
		}
		return TransferResult{
			Transferred: true,
			Outcome:     OutcomeGranted,
			Message:     "lock transferred",
			ExpiresAt:   moved.ExpiresAt,
			Holder:      holderOf(&moved),
		}, nil
	})

	if store.IsConditionFailed(err) {
		return TransferResult{Outcome: OutcomeConflict, Message: "lock changed concurrently"}, nil
	}
	if err == nil && result.Transferred {
		log.Infof("lock %s/%s transferred to tab %s of %s", collection, res.ResourceKey, req.TabID, req.UserID)
	}
	return result, err
}

func (s *lockServiceImpl) ListLocks(ctx context.Context, collection string) (locks []LockRecord, err error) {
	ctx, done := observe(ctx, "list", collection, "")
	defer func() { done(OutcomeGranted, err) }()

	if err = validateName("collection", collection); err != nil {
		return nil, err
	}

	records, err := s.locks.list(ctx, collection)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	locks = make([]LockRecord, 0, len(records))
	for _, rec := range records {
		if rec.IsLive(now) {
			locks = append(locks, *rec)
		}
	}
	return locks, nil
}
