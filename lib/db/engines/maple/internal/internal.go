package internal

import (
	"github.com/ValentinKolb/dLock/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (document with metadata)
// --------------------------------------------------------------------------

// Entry stores a value with the write index it was written at
type Entry struct {
	Value []byte // Document body
	Index uint64 // Write index of the last write, doubles as the document version
}

// Clone returns a deep copy of the entry
func (e Entry) Clone() Entry {
	value := make([]byte, len(e.Value))
	copy(value, e.Value)
	return Entry{Value: value, Index: e.Index}
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database
type Shard struct {
	Data *xsync.MapOf[string, Entry] // Map of active documents
}

// NewShard creates a new, empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, Entry](),
	}
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key string, seed uint64, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(util.HashString(key, seed)) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}
