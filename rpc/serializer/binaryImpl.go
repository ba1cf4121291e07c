package serializer

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dLock/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format:
//
//	MsgType (1 byte) | flags (1 byte) | present fields in flag order
//
// Strings and byte slices are written as uint32 length + data, integers as uint64.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present.
// Ok has no payload, the flag is the value.
const (
	hasKey     byte = 1 << 0
	hasValue   byte = 1 << 1
	hasVersion byte = 1 << 2
	hasLimit   byte = 1 << 3
	flagOk     byte = 1 << 4
	hasCode    byte = 1 << 5
	hasErr     byte = 1 << 6
	hasMeta    byte = 1 << 7
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, 2, b.sizeBytes(msg))
	result[0] = byte(msg.MsgType)

	var flags byte
	if msg.Key != "" {
		flags |= hasKey
		result = appendBytes(result, []byte(msg.Key))
	}
	if msg.Value != nil {
		flags |= hasValue
		result = appendBytes(result, msg.Value)
	}
	if msg.Version > 0 {
		flags |= hasVersion
		result = binary.BigEndian.AppendUint64(result, msg.Version)
	}
	if msg.Limit > 0 {
		flags |= hasLimit
		result = binary.BigEndian.AppendUint64(result, msg.Limit)
	}
	if msg.Ok {
		flags |= flagOk
	}
	if msg.Code > 0 {
		flags |= hasCode
		result = binary.BigEndian.AppendUint64(result, msg.Code)
	}
	if msg.Err != "" {
		flags |= hasErr
		result = appendBytes(result, []byte(msg.Err))
	}
	if msg.Meta != nil {
		flags |= hasMeta
		result = appendBytes(result, msg.Meta)
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	r := binaryReader{data: data, pos: 2}
	flags := data[1]

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	msg.Ok = flags&flagOk != 0

	if flags&hasKey != 0 {
		key, err := r.bytes("key")
		if err != nil {
			return err
		}
		msg.Key = string(key)
	}
	if flags&hasValue != 0 {
		value, err := r.bytes("value")
		if err != nil {
			return err
		}
		msg.Value = append(make([]byte, 0, len(value)), value...)
	}
	if flags&hasVersion != 0 {
		v, err := r.uint64("version")
		if err != nil {
			return err
		}
		msg.Version = v
	}
	if flags&hasLimit != 0 {
		v, err := r.uint64("limit")
		if err != nil {
			return err
		}
		msg.Limit = v
	}
	if flags&hasCode != 0 {
		v, err := r.uint64("code")
		if err != nil {
			return err
		}
		msg.Code = v
	}
	if flags&hasErr != 0 {
		e, err := r.bytes("error")
		if err != nil {
			return err
		}
		msg.Err = string(e)
	}
	if flags&hasMeta != 0 {
		meta, err := r.bytes("meta")
		if err != nil {
			return err
		}
		msg.Meta = append(make([]byte, 0, len(meta)), meta...)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Version > 0 {
		size += 8
	}
	if msg.Limit > 0 {
		size += 8
	}
	if msg.Code > 0 {
		size += 8
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}
	return size
}

// appendBytes writes the length prefixed data to buf
func appendBytes(buf []byte, data []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

// binaryReader reads the fields of a serialized message in order
type binaryReader struct {
	data []byte
	pos  int
}

func (r *binaryReader) uint64(field string) (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("data too short for %s", field)
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

// bytes returns a sub slice of the input, callers must copy it if they keep it
func (r *binaryReader) bytes(field string) ([]byte, error) {
	if r.pos+4 > len(r.data) {
		return nil, fmt.Errorf("data too short for %s length", field)
	}
	l := int(binary.BigEndian.Uint32(r.data[r.pos : r.pos+4]))
	r.pos += 4
	if l < 0 || r.pos+l > len(r.data) {
		return nil, fmt.Errorf("data too short for %s data", field)
	}
	b := r.data[r.pos : r.pos+l]
	r.pos += l
	return b, nil
}
