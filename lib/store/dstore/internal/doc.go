// Package internal holds the wire structures of the dstore package: the Command
// that is proposed to the raft log and the Query that is answered locally by the
// state machine.
//
// Commands use a fixed binary layout (type, expected version, key length, key,
// value) so that every replica decodes identical bytes into identical operations.
// Queries never leave the process and are passed to dragonboat as Go values.
//
// This package is intended for internal use by the dstore implementation.
package internal
