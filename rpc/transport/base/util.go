package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Frame layout, all integers big endian:
//
//	shardID uint64 | requestID uint64 | length uint32 | payload
const (
	frameHeaderSize = 20
	maxFrameSize    = 64 << 20 // largest payload a peer may announce
)

// writeFrame sends header and payload with a single writev
func writeFrame(conn net.Conn, shardID uint64, requestID uint64, data []byte) error {
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint64(header[0:], shardID)
	binary.BigEndian.PutUint64(header[8:], requestID)
	binary.BigEndian.PutUint32(header[16:], uint32(len(data)))

	frame := net.Buffers{header[:], data}
	_, err := frame.WriteTo(conn)
	return err
}

// readFrame reads the next frame. The payload is read into buf if it fits,
// so it is only valid until buf is reused. A nil buf is fine.
func readFrame(conn net.Conn, buf []byte) (shardID, requestID uint64, payload []byte, err error) {
	if len(buf) < frameHeaderSize {
		buf = make([]byte, frameHeaderSize)
	}
	if _, err = io.ReadFull(conn, buf[:frameHeaderSize]); err != nil {
		return 0, 0, nil, err
	}

	shardID = binary.BigEndian.Uint64(buf[0:])
	requestID = binary.BigEndian.Uint64(buf[8:])
	size := binary.BigEndian.Uint32(buf[16:])
	switch {
	case size > maxFrameSize:
		return shardID, requestID, nil, fmt.Errorf("frame of %d bytes exceeds the limit of %d bytes", size, maxFrameSize)
	case size == 0:
		return shardID, requestID, []byte{}, nil
	case int(size) > len(buf):
		buf = make([]byte, size)
	}

	if _, err = io.ReadFull(conn, buf[:size]); err != nil {
		return 0, 0, nil, err
	}
	return shardID, requestID, buf[:size], nil
}
