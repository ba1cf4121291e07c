package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple  Implementation = "maple"
	ImplSQLite Implementation = "sqlite"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeaturePut      Feature = 1 << iota // Support for unconditional Put operations
	FeaturePutIf                        // Support for conditional PutIf operations
	FeatureGet                          // Support for Get operations
	FeatureDelete                       // Support for unconditional Delete operations
	FeatureDeleteIf                     // Support for conditional DeleteIf operations
	FeatureScan                         // Support for prefix Scan operations
	FeatureSave                         // Support for Save operations
	FeatureLoad                         // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeaturePut:
		return "Put"
	case FeaturePutIf:
		return "PutIf"
	case FeatureGet:
		return "Get"
	case FeatureDelete:
		return "Delete"
	case FeatureDeleteIf:
		return "DeleteIf"
	case FeatureScan:
		return "Scan"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

// VersionAbsent is the expected version that a conditional write uses
// to state that the key must not exist yet
const VersionAbsent uint64 = 0

// Document is a stored value together with its version. The version is the
// write index of the last successful write to the key.
type Document struct {
	Key     string `json:"key"`
	Value   []byte `json:"value"`
	Version uint64 `json:"version"`
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	Entries           int            `json:"entries"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for versioned document database implementations.
// Every key holds one document; every successful write stamps the document with
// the write index it was applied at, and that index is the document's version.
// Conditional operations compare the caller's expected version with the stored
// one atomically per key.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Put inserts or replaces the document for key unconditionally.
	// The writeIndex parameter is used as the new version of the document.
	Put(key string, value []byte, writeIndex uint64)

	// PutIf writes the document only if the stored version equals expectedVersion.
	// expectedVersion=VersionAbsent means the key must not exist.
	// On success the new version (= writeIndex) is returned. On failure the
	// currently stored version is returned (VersionAbsent if the key does not exist).
	PutIf(key string, value []byte, writeIndex, expectedVersion uint64) (version uint64, ok bool)

	// Delete removes the document for key. Deleting a missing key is a no-op.
	Delete(key string, writeIndex uint64)

	// DeleteIf removes the document only if the stored version equals expectedVersion.
	// On failure the currently stored version is returned.
	DeleteIf(key string, writeIndex, expectedVersion uint64) (version uint64, ok bool)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the document for an exact key. The returned value is a copy.
	// The boolean return value indicates whether the key was found.
	Get(key string) (doc Document, loaded bool)

	// Scan returns all documents whose key starts with prefix, ordered by key.
	// limit <= 0 means no limit.
	Scan(prefix string, limit int) (docs []Document)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Write Index Operations
	// --------------------------------------------------------------------------

	// SetWriteIdx sets the current index of the database only if the provided index is greater than the current index.
	SetWriteIdx(index uint64)

	// WriteIdx returns the current index of the database.
	WriteIdx() (index uint64)

	// Close closes the database.
	Close() (err error)
}
