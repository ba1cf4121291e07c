package store

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dLock/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KVDB

// IStore is the generic interface for interacting with a versioned document store.
// All operations return a *Error (nil on success) so that callers can branch on the
// return code. A conditional write whose expected version does not match the stored
// one fails with RetCConditionFailed; this is a routine outcome and not an outage.
type IStore interface {
	// Get returns the document for a key. The boolean return value indicates whether the key was found.
	Get(ctx context.Context, key string) (doc db.Document, loaded bool, err error)
	// Put inserts or replaces a document unconditionally and returns its new version.
	Put(ctx context.Context, key string, value []byte) (version uint64, err error)
	// PutIf writes the document only if the stored version equals expectedVersion
	// (db.VersionAbsent: the key must not exist) and returns the new version.
	PutIf(ctx context.Context, key string, value []byte, expectedVersion uint64) (version uint64, err error)
	// Delete removes a document unconditionally. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) (err error)
	// DeleteIf removes the document only if the stored version equals expectedVersion.
	DeleteIf(ctx context.Context, key string, expectedVersion uint64) (err error)
	// Scan returns the documents whose key starts with prefix, ordered by key (limit <= 0 = all).
	Scan(ctx context.Context, prefix string, limit int) (docs []db.Document, err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo(ctx context.Context) (info db.DatabaseInfo, err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// NewConditionFailedError reports a conditional write whose expected version did not match.
func NewConditionFailedError(key string, expected, actual uint64) *Error {
	return NewError(RetCConditionFailed, fmt.Sprintf("version mismatch for key %q (expected %d, actual %d)", key, expected, actual))
}

// CodeOf returns the return code of err. Errors that are not a *Error count as
// internal errors, a nil error as success.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Code
	}
	return RetCInternalError
}

// IsConditionFailed reports whether err is a failed conditional write.
func IsConditionFailed(err error) bool {
	return err != nil && CodeOf(err) == RetCConditionFailed
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCConditionFailed                     // 4: The expected version did not match the stored version.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCConditionFailed:
		return "ConditionFailed"
	default:
		return "Unknown"
	}
}
