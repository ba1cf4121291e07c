package internal

import "github.com/ValentinKolb/dLock/lib/db"

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet       QueryType = iota // Retrieve a document by key.
	QueryTScan                       // Retrieve all documents with a key prefix.
	QueryTGetDBInfo                  // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTScan:
		return "Scan"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or ReadStale
type Query struct {
	Type  QueryType // The type of Query to perform.
	Key   string    // The key (Get) or the prefix (Scan).
	Limit int       // Maximum number of results for Scan (<= 0 = all).
}

// QueryResult is the result of a QueryTGet operation.
// Scan returns []db.Document, GetDBInfo returns db.DatabaseInfo.
type QueryResult struct {
	Ok  bool
	Doc db.Document
}
