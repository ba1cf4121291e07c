package maple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/dLock/lib/db/util"
	"io"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum     = "MAPLEDB\x00" // File format identifier
	mapleVersion = 4             // Database version (4 = versioned documents with string keys)
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements a versioned document database with sharded data
type mapleImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for the shard hash function
	shards    []*internal.Shard // Array of shards
	currIndex atomic.Uint64     // Current logical timestamp
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = auto)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(), // Auto-determine based on CPU count
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewMapleDB(opts *DBOptions) db.KVDB {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	newDB := &mapleImpl{
		numShards: opts.NumShards,
		seed:      util.GenerateSeed(),
		shards:    newShards(opts.NumShards),
	}
	newDB.currIndex.Store(0)

	return newDB
}

func newShards(n int) []*internal.Shard {
	shards := make([]*internal.Shard, n)
	for i := 0; i < n; i++ {
		shards[i] = internal.NewShard()
	}
	return shards
}

func (maple *mapleImpl) shardFor(key string) *internal.Shard {
	return internal.GetShard(key, maple.seed, maple.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Put inserts or replaces the document for key.
// Writes with an index lower than the stored version are ignored.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Put(key string, value []byte, writeIndex uint64) {
	maple.compute(key, value, writeIndex, func(new, old internal.Entry, loaded bool) (internal.Entry, bool, bool) {
		return new, false, true
	})
}

// PutIf writes the document only if the stored version equals expectedVersion.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) PutIf(key string, value []byte, writeIndex, expectedVersion uint64) (uint64, bool) {
	var current uint64
	applied := maple.compute(key, value, writeIndex, func(new, old internal.Entry, loaded bool) (internal.Entry, bool, bool) {
		if loaded {
			current = old.Index
		}
		if current != expectedVersion {
			return old, !loaded, false
		}
		return new, false, true
	})
	if !applied {
		return maple.versionHint(key, current), false
	}
	return writeIndex, true
}

// Delete removes the document for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string, writeIndex uint64) {
	maple.compute(key, nil, writeIndex, func(_, old internal.Entry, loaded bool) (internal.Entry, bool, bool) {
		return old, true, loaded
	})
}

// DeleteIf removes the document only if the stored version equals expectedVersion.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) DeleteIf(key string, writeIndex, expectedVersion uint64) (uint64, bool) {
	var current uint64
	applied := maple.compute(key, nil, writeIndex, func(_, old internal.Entry, loaded bool) (internal.Entry, bool, bool) {
		if !loaded {
			return old, true, false
		}
		current = old.Index
		if current != expectedVersion {
			return old, false, false
		}
		return old, true, true
	})
	if !applied {
		return maple.versionHint(key, current), false
	}
	return current, true
}

// versionHint returns the version seen by a failed conditional write. A stale
// write never reaches the condition check, so the version is read again.
func (maple *mapleImpl) versionHint(key string, seen uint64) uint64 {
	if seen != 0 {
		return seen
	}
	if doc, ok := maple.Get(key); ok {
		return doc.Version
	}
	return 0
}

// compute is the shared implementation of all write operations.
// It runs fn atomically for the key and takes care of copying the value,
// advancing the write index and rejecting stale writes.
//
// fn receives the new entry, the old entry and whether the old entry exists.
// It returns the entry to keep, whether the key should be removed and whether
// the operation counts as applied. compute returns the applied flag.
//
// Thread-safety: xsync.MapOf.Compute serializes fn per key.
func (maple *mapleImpl) compute(key string, value []byte, writeIndex uint64, fn func(new, old internal.Entry, loaded bool) (entry internal.Entry, delete bool, applied bool)) bool {

	// update the current index
	maple.SetWriteIdx(writeIndex)

	shard := maple.shardFor(key)

	// Copy value to prevent memory corruption
	var valueCopy []byte
	if value != nil {
		valueCopy = make([]byte, len(value))
		copy(valueCopy, value)
	}

	applied := false
	shard.Data.Compute(key, func(oldEntry internal.Entry, loaded bool) (internal.Entry, bool) {
		// stale writes are ignored
		if loaded && writeIndex <= oldEntry.Index {
			return oldEntry, false
		}

		entry, del, ok := fn(internal.Entry{
			Value: valueCopy,
			Index: writeIndex,
		}, oldEntry, loaded)
		applied = ok

		return entry, del
	})

	return applied
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves the document for a key.
// The returned value is a copy of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string) (db.Document, bool) {
	entry, ok := maple.shardFor(key).Data.Load(key)
	if !ok {
		return db.Document{}, false
	}
	entry = entry.Clone()
	return db.Document{Key: key, Value: entry.Value, Version: entry.Index}, true
}

// Scan returns all documents whose key has the given prefix, ordered by key.
// The result is a fuzzy view: writes that happen during the scan may or may not be included.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Scan(prefix string, limit int) []db.Document {
	docs := make([]db.Document, 0)
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			if strings.HasPrefix(key, prefix) {
				entry = entry.Clone()
				docs = append(docs, db.Document{Key: key, Value: entry.Value, Version: entry.Index})
			}
			return true
		})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })

	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Persistence
// --------------------------------------------------------------------------

// Save writes a fuzzy snapshot of the database to the writer
//
// Thread-safety: This function is thread-safe, concurrent writes may or may not be part of the snapshot
func (maple *mapleImpl) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	docs := maple.Scan("", 0)

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}

	// Write maple version
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}

	// Write the current write index
	if err := binary.Write(bw, binary.LittleEndian, maple.currIndex.Load()); err != nil {
		return err
	}

	// Write total entries count
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(docs))); err != nil {
		return err
	}

	for _, doc := range docs {
		// Write key
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(doc.Key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(doc.Key); err != nil {
			return err
		}

		// Write version
		if err := binary.Write(bw, binary.LittleEndian, doc.Version); err != nil {
			return err
		}

		// Write value
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(doc.Value))); err != nil {
			return err
		}
		if _, err := bw.Write(doc.Value); err != nil {
			return err
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load replaces the content of the database with the snapshot read from r
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (maple *mapleImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	var writeIdx uint64
	if err := binary.Read(br, binary.LittleEndian, &writeIdx); err != nil {
		return err
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	shards := newShards(maple.numShards)
	for i := uint64(0); i < count; i++ {
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		keyBytes := make([]byte, keyLen)
		if _, err := io.ReadFull(br, keyBytes); err != nil {
			return err
		}

		var index uint64
		if err := binary.Read(br, binary.LittleEndian, &index); err != nil {
			return err
		}

		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}
		value := make([]byte, valueLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return err
		}

		key := string(keyBytes)
		internal.GetShard(key, maple.seed, shards).Data.Store(key, internal.Entry{Value: value, Index: index})
	}

	maple.shards = shards
	maple.currIndex.Store(0)
	maple.SetWriteIdx(writeIdx)

	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	entries := 0
	sizeBytes := 0
	shardSizes := make([]int, len(maple.shards))

	for i, shard := range maple.shards {
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			entries++
			sizeBytes += len(key) + len(entry.Value) + 8 // 8 bytes for the index
			return true
		})
		shardSizes[i] = shard.Data.Size()
	}

	minShard, maxShard := 0, 0
	for i, size := range shardSizes {
		if i == 0 || size < minShard {
			minShard = size
		}
		if size > maxShard {
			maxShard = size
		}
	}

	// Metadata for this specific database implementation
	meta := &struct {
		CurrentWriteIndex uint64 `json:"current_write_index"`
		ShardCount        int    `json:"shard_count"`
		SmallestShard     int    `json:"smallest_shard"`
		LargestShard      int    `json:"largest_shard"`
	}{
		CurrentWriteIndex: maple.currIndex.Load(),
		ShardCount:        len(maple.shards),
		SmallestShard:     minShard,
		LargestShard:      maxShard,
	}

	return db.DatabaseInfo{
		SizeBytes: sizeBytes,
		Entries:   entries,
		DbType:    db.ImplMaple,
		SupportedFeatures: []db.Feature{
			db.FeaturePut, db.FeaturePutIf,
			db.FeatureDelete, db.FeatureDeleteIf,
			db.FeatureGet, db.FeatureScan,
			db.FeatureSave, db.FeatureLoad,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeaturePut |
		db.FeaturePutIf |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureDeleteIf |
		db.FeatureScan |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// Close is a no-op, maple holds no background resources
func (maple *mapleImpl) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Index and Timestamp Management
// --------------------------------------------------------------------------

// SetWriteIdx safely updates the current index
// It only updates if the new index is greater than the current one
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := maple.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if maple.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

// WriteIdx returns the current index of the database
func (maple *mapleImpl) WriteIdx() uint64 {
	return maple.currIndex.Load()
}
