package internal

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dLock/lib/db"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTPut      CommandType = iota // Insert or replace a document.
	CommandTPutIf                       // Write a document if the stored version matches.
	CommandTDelete                      // Delete a document.
	CommandTDeleteIf                    // Delete a document if the stored version matches.
)

// headerSize is Type + ExpectedVersion + KeyLen
const headerSize = 1 + 8 + 4

func (ct CommandType) String() string {
	switch ct {
	case CommandTPut:
		return "Put"
	case CommandTPutIf:
		return "PutIf"
	case CommandTDelete:
		return "Delete"
	case CommandTDeleteIf:
		return "DeleteIf"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToDBFeature converts a CommandType to the corresponding db.Feature.
// This can be used for checking if the database supports a certain operation.
func (ct CommandType) ToDBFeature() (db.Feature, error) {
	switch ct {
	case CommandTPut:
		return db.FeaturePut, nil
	case CommandTPutIf:
		return db.FeaturePutIf, nil
	case CommandTDelete:
		return db.FeatureDelete, nil
	case CommandTDeleteIf:
		return db.FeatureDeleteIf, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type            CommandType
	Key             string
	ExpectedVersion uint64 // only used by the conditional commands
	Value           []byte
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return headerSize + len(command.Key) + len(command.Value)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes for the expected version (big endian),
// 4 bytes for key length (big endian),
// N bytes for key data,
// N bytes for value data (optional)
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], command.ExpectedVersion)
	binary.BigEndian.PutUint32(result[9:13], uint32(len(command.Key)))

	copy(result[headerSize:], command.Key)
	copy(result[headerSize+len(command.Key):], command.Value)

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.ExpectedVersion = binary.BigEndian.Uint64(data[1:9])
	keyLen := int(binary.BigEndian.Uint32(data[9:13]))

	if len(data) < headerSize+keyLen {
		return fmt.Errorf("data too short for key of length %d", keyLen)
	}
	command.Key = string(data[headerSize : headerSize+keyLen])

	if rest := data[headerSize+keyLen:]; len(rest) > 0 {
		command.Value = make([]byte, len(rest))
		copy(command.Value, rest)
	} else {
		command.Value = nil
	}

	return nil
}

// --------------------------------------------------------------------------
// Command results
// --------------------------------------------------------------------------

// EncodeVersion encodes a version for the Data field of a raft result
func EncodeVersion(version uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, version)
	return b
}

// DecodeVersion is the inverse of EncodeVersion. Data of a different length decodes to 0.
func DecodeVersion(data []byte) uint64 {
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}
