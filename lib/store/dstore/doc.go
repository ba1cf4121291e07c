// Package dstore replicates a versioned document store with the Dragonboat RAFT library.
// It implements store.IStore, so lock services on different nodes can share lock records
// and still get exactly one winner per conditional write.
//
// Components:
//
//   - storeImpl (store.go): the IStore seen by callers. Writes become an internal.Command
//     proposed with SyncPropose, reads become an internal.Query run with SyncRead.
//
//   - stateMachine (statemachine.go): a Dragonboat IConcurrentStateMachine that owns one
//     db.KVDB per replica and applies committed commands to it.
//
//   - internal: the binary encoding of commands and queries.
//
// Versions:
//
//	The raft log index of the entry that performed a write is the version of the written
//	document. Every replica applies the same entries in the same order, so they all hand
//	out the same version and never reuse one for a key. PutIf and DeleteIf compare the
//	expected version while the entry is applied. A mismatch is reported back with
//	store.RetCConditionFailed and the current version, nothing is written on any replica.
//
// Reads:
//
//	Get and Scan use SyncRead and therefore see every write committed before the read
//	started, no matter which replica answers. GetDBInfo uses StaleRead.
//
// Failures:
//
//	Proposals rejected with ErrSystemBusy are retried after a short pause until the
//	timeout passed to NewDistributedStore or the context ends. Every other Dragonboat
//	error is returned as store.RetCInternalError. A caller can not tell whether a write
//	that timed out was applied, the lock service handles this by reading again.
//
// Snapshots:
//
//	Snapshots are written with db.KVDB.Save without blocking updates and restored with
//	db.KVDB.Load. A replica that rejoins loads the latest snapshot and then replays the
//	log entries committed after it.
//
// Example:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	err = nh.StartConcurrentReplica(members, false,
//	    dstore.CreateStateMachineFactory(func() db.KVDB { return maple.NewMapleDB(nil) }),
//	    shardConfig)
//	if err != nil { ... }
//
//	st := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//	svc := lockmgr.NewLockService(st, nil)
//
// Run an odd number of replicas (3 or 5). Writes need the leader and a majority, when
// no majority is reachable every lock operation fails with an internal error. For a
// single node use lstore (memory) or sqlstore (file) instead.
package dstore
