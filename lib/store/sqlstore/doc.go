// Package sqlstore implements store.IStore on top of a single SQLite file (modernc.org/sqlite,
// no cgo). It is meant for single node deployments that need the lock table to survive
// restarts without running a raft cluster.
//
// Documents live in the documents table. Every write claims the next value of a persisted
// write index inside its own transaction and stores it as the document version, so versions
// keep growing across restarts. Conditional writes are expressed as
// "UPDATE ... WHERE key = ? AND version = ?" and a failed primary key insert, a write that
// matches no row is reported as store.RetCConditionFailed.
//
// The schema is created by the embedded migrations in the migrations package.
package sqlstore
