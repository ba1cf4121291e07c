package common

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key     string `json:"key,omitempty"`     // Used for: all requests except DBInfo (Scan: the prefix)
	Value   []byte `json:"value,omitempty"`   // Used for: Put, PutIf (request), Get (response)
	Version uint64 `json:"version,omitempty"` // Used for: PutIf, DeleteIf (expected), Get, Put, PutIf (response)
	Limit   uint64 `json:"limit,omitempty"`   // Used for: Scan requests

	// Response only fields
	Ok   bool   `json:"ok,omitempty"`   // Used for: Get responses
	Code uint64 `json:"code,omitempty"` // store.RetCode of a failed operation
	Err  string `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Scan (encoded documents) and DBInfo (json) responses
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewGetRequest creates a new Get request
func NewGetRequest(key string) *Message {
	return &Message{MsgType: MsgTGet, Key: key}
}

// NewPutRequest creates a new Put request
func NewPutRequest(key string, value []byte) *Message {
	return &Message{MsgType: MsgTPut, Key: key, Value: value}
}

// NewPutIfRequest creates a new PutIf request
func NewPutIfRequest(key string, value []byte, expectedVersion uint64) *Message {
	return &Message{MsgType: MsgTPutIf, Key: key, Value: value, Version: expectedVersion}
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(key string) *Message {
	return &Message{MsgType: MsgTDelete, Key: key}
}

// NewDeleteIfRequest creates a new DeleteIf request
func NewDeleteIfRequest(key string, expectedVersion uint64) *Message {
	return &Message{MsgType: MsgTDeleteIf, Key: key, Version: expectedVersion}
}

// NewScanRequest creates a new Scan request
func NewScanRequest(prefix string, limit int) *Message {
	if limit < 0 {
		limit = 0
	}
	return &Message{MsgType: MsgTScan, Key: prefix, Limit: uint64(limit)}
}

// NewDBInfoRequest creates a new DBInfo request
func NewDBInfoRequest() *Message {
	return &Message{MsgType: MsgTDBInfo}
}

// NewResponse creates a response of the given type. If err is not nil, its
// store.RetCode and message are copied into the response.
func NewResponse(t MessageType, err error) *Message {
	msg := &Message{MsgType: t}
	if err != nil {
		msg.Code = uint64(store.CodeOf(err))
		var storeErr *store.Error
		if errors.As(err, &storeErr) {
			msg.Err = storeErr.Msg
		} else {
			msg.Err = err.Error()
		}
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Code:    uint64(store.RetCInternalError),
		Err:     err,
	}
}

// ResponseError turns the error fields of a response back into a *store.Error (nil on success)
func (m *Message) ResponseError() error {
	if m.Code == uint64(store.RetCSuccess) && m.Err == "" && m.MsgType != MsgTError {
		return nil
	}
	code := store.RetCode(m.Code)
	if code == store.RetCSuccess {
		code = store.RetCInternalError
	}
	return store.NewError(code, m.Err)
}

// --------------------------------------------------------------------------
// Document Codec (Scan responses)
// --------------------------------------------------------------------------

// ErrMalformedDocuments is returned if the encoded document list is truncated
var ErrMalformedDocuments = errors.New("malformed document list")

// EncodeDocuments encodes a list of documents as
// count | (keyLen key valueLen value version)*, all integers as uvarint.
func EncodeDocuments(docs []db.Document) []byte {
	size := binary.MaxVarintLen64
	for _, doc := range docs {
		size += 3*binary.MaxVarintLen64 + len(doc.Key) + len(doc.Value)
	}
	buf := make([]byte, 0, size)
	buf = binary.AppendUvarint(buf, uint64(len(docs)))
	for _, doc := range docs {
		buf = binary.AppendUvarint(buf, uint64(len(doc.Key)))
		buf = append(buf, doc.Key...)
		buf = binary.AppendUvarint(buf, uint64(len(doc.Value)))
		buf = append(buf, doc.Value...)
		buf = binary.AppendUvarint(buf, doc.Version)
	}
	return buf
}

// DecodeDocuments is the inverse of EncodeDocuments
func DecodeDocuments(data []byte) ([]db.Document, error) {
	if len(data) == 0 {
		return nil, nil
	}

	readUvarint := func() (uint64, error) {
		v, n := binary.Uvarint(data)
		if n <= 0 {
			return 0, ErrMalformedDocuments
		}
		data = data[n:]
		return v, nil
	}
	readBytes := func() ([]byte, error) {
		l, err := readUvarint()
		if err != nil {
			return nil, err
		}
		if uint64(len(data)) < l {
			return nil, ErrMalformedDocuments
		}
		b := data[:l:l]
		data = data[l:]
		return b, nil
	}

	count, err := readUvarint()
	if err != nil {
		return nil, err
	}
	if count > uint64(len(data)) {
		return nil, ErrMalformedDocuments
	}

	docs := make([]db.Document, 0, count)
	for i := uint64(0); i < count; i++ {
		key, err := readBytes()
		if err != nil {
			return nil, err
		}
		value, err := readBytes()
		if err != nil {
			return nil, err
		}
		version, err := readUvarint()
		if err != nil {
			return nil, err
		}
		docs = append(docs, db.Document{Key: string(key), Value: append([]byte(nil), value...), Version: version})
	}
	return docs, nil
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTUnknown:  "unknown",
	MsgTSuccess:  "success",
	MsgTError:    "error",
	MsgTGet:      "get",
	MsgTPut:      "put",
	MsgTPutIf:    "putIf",
	MsgTDelete:   "delete",
	MsgTDeleteIf: "deleteIf",
	MsgTScan:     "scan",
	MsgTDBInfo:   "dbInfo",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	for mt, name := range messageTypeNames {
		if name == s {
			*t = mt
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations

	MsgTGet      // Get a document by key
	MsgTPut      // Write a document unconditionally
	MsgTPutIf    // Write a document if the version matches
	MsgTDelete   // Delete a document unconditionally
	MsgTDeleteIf // Delete a document if the version matches
	MsgTScan     // List documents by key prefix
	MsgTDBInfo   // Metadata of the underlying database
)
