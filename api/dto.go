package api

import (
	"time"

	"github.com/ValentinKolb/dLock/lib/lockmgr"
)

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

// AcquireRequest is the body of an acquire call. TabID may also be sent as X-Tab-ID header.
type AcquireRequest struct {
	TabID     string `json:"tabId,omitempty"`
	LockGroup string `json:"lockGroup,omitempty"`
}

// ExtendRequest is the body of an extend call. A missing ExtendByMinutes means 5 minutes.
type ExtendRequest struct {
	ExtendByMinutes *float64 `json:"extendByMinutes,omitempty"`
	TabID           string   `json:"tabId,omitempty"`
	LockGroup       string   `json:"lockGroup,omitempty"`
}

// ReleaseRequest is the body of a release call
type ReleaseRequest struct {
	Reason    string `json:"reason,omitempty"`
	TabID     string `json:"tabId,omitempty"`
	LockGroup string `json:"lockGroup,omitempty"`
}

// TransferRequest is the body of a transfer call, TabID is the tab that takes the lock over
type TransferRequest struct {
	TabID     string `json:"tabId,omitempty"`
	LockGroup string `json:"lockGroup,omitempty"`
}

// --------------------------------------------------------------------------
// Responses
// --------------------------------------------------------------------------

// MessageResponse is returned by extend, release, transfer and for errors
type MessageResponse struct {
	Success       bool       `json:"success"`
	Message       string     `json:"message,omitempty"`
	LockExpiresAt *time.Time `json:"lockExpiresAt,omitempty"`
}

// AcquireResponse is returned by acquire (200 and 423)
type AcquireResponse struct {
	Success            bool       `json:"success"`
	Message            string     `json:"message,omitempty"`
	ResourceKey        string     `json:"resourceKey,omitempty"`
	LockGroup          string     `json:"lockGroup,omitempty"`
	LockExpiresAt      *time.Time `json:"lockExpiresAt,omitempty"`
	LockedBy           string     `json:"lockedBy,omitempty"`
	LockedByName       string     `json:"lockedByName,omitempty"`
	LockedByEmail      string     `json:"lockedByEmail,omitempty"`
	IsMultiTabConflict bool       `json:"isMultiTabConflict"`
	AllowTransfer      bool       `json:"allowTransfer"`
}

// StatusView is the lock state of one resource as seen by the caller
type StatusView struct {
	ResourceID    string     `json:"resourceId"`
	Collection    string     `json:"collection"`
	ResourceKey   string     `json:"resourceKey"`
	LockGroup     string     `json:"lockGroup,omitempty"`
	IsLocked      bool       `json:"isLocked"`
	CanEdit       bool       `json:"canEdit"`
	HasLock       bool       `json:"hasLock"`
	LockExpiresAt *time.Time `json:"lockExpiresAt"`
	LockedBy      string     `json:"lockedBy,omitempty"`
	LockedByName  string     `json:"lockedByName,omitempty"`
	LockedByEmail string     `json:"lockedByEmail,omitempty"`
	LockedTabID   string     `json:"lockedTabId,omitempty"`
}

// StatusResponse is returned by status
type StatusResponse struct {
	Success bool       `json:"success"`
	Status  StatusView `json:"status"`
}

// LockView is one entry of a lock listing
type LockView struct {
	Collection    string    `json:"collection"`
	ResourceKey   string    `json:"resourceKey"`
	ResourceID    string    `json:"resourceId"`
	LockGroup     string    `json:"lockGroup,omitempty"`
	LockedBy      string    `json:"lockedBy"`
	LockedByName  string    `json:"lockedByName,omitempty"`
	LockedByEmail string    `json:"lockedByEmail,omitempty"`
	LockedTabID   string    `json:"lockedTabId,omitempty"`
	AcquiredAt    time.Time `json:"acquiredAt"`
	LockExpiresAt time.Time `json:"lockExpiresAt"`
	Transferable  bool      `json:"transferable"`
}

// ListResponse is returned by the listing of a collection
type ListResponse struct {
	Success bool       `json:"success"`
	Locks   []LockView `json:"locks"`
}

// --------------------------------------------------------------------------
// Mapping
// --------------------------------------------------------------------------

// timePtr returns nil for the zero time so that it is rendered as null
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func acquireResponseOf(res lockmgr.LockResult) AcquireResponse {
	return AcquireResponse{
		Success:            res.Granted,
		Message:            res.Message,
		ResourceKey:        res.ResourceKey,
		LockGroup:          res.LockGroup,
		LockExpiresAt:      timePtr(res.ExpiresAt),
		LockedBy:           res.Holder.UserID,
		LockedByName:       res.Holder.DisplayName,
		LockedByEmail:      res.Holder.Email,
		IsMultiTabConflict: res.IsMultiTabConflict,
		AllowTransfer:      res.Transferable,
	}
}

func statusViewOf(st lockmgr.LockStatus) StatusView {
	return StatusView{
		ResourceID:    st.ResourceID,
		Collection:    st.Collection,
		ResourceKey:   st.ResourceKey,
		LockGroup:     st.LockGroup,
		IsLocked:      st.IsLocked,
		CanEdit:       st.CanEdit,
		HasLock:       st.HasLock,
		LockExpiresAt: timePtr(st.ExpiresAt),
		LockedBy:      st.Holder.UserID,
		LockedByName:  st.Holder.DisplayName,
		LockedByEmail: st.Holder.Email,
		LockedTabID:   st.Holder.TabID,
	}
}

func lockViewOf(rec lockmgr.LockRecord) LockView {
	return LockView{
		Collection:    rec.Collection,
		ResourceKey:   rec.ResourceKey,
		ResourceID:    rec.ResourceID,
		LockGroup:     rec.LockGroup,
		LockedBy:      rec.OwnerUserID,
		LockedByName:  rec.OwnerDisplayName,
		LockedByEmail: rec.OwnerEmail,
		LockedTabID:   rec.OwnerTabID,
		AcquiredAt:    rec.AcquiredAt,
		LockExpiresAt: rec.ExpiresAt,
		Transferable:  rec.Transferable,
	}
}
