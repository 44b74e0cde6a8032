package sclink

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Frame layout constants.
const (
	// Marker starts every frame.
	Marker byte = 0xA5

	// MaxFrameLength is the largest allowed value of the length field
	// (seq + type + payload).
	MaxFrameLength = 512

	// minFrameLength covers seq and type.
	minFrameLength = 2

	// headerSize is marker plus the 16-bit length field.
	headerSize = 3

	crcSize = 2

	// MaxPayload is the largest payload a frame can carry.
	MaxPayload = MaxFrameLength - minFrameLength
)

// MsgType identifies a request or reply.
type MsgType byte

// Message types. Replies set the high bit of their request type.
const (
	MsgLogin         MsgType = 0x01
	MsgStatusRequest MsgType = 0x02
	MsgWrite         MsgType = 0x03
	MsgLoginReply    MsgType = 0x81
	MsgStatusReply   MsgType = 0x82
	MsgWriteAck      MsgType = 0x83
	MsgError         MsgType = 0x7F
)

func (t MsgType) String() string {
	switch t {
	case MsgLogin:
		return "login"
	case MsgStatusRequest:
		return "status_request"
	case MsgWrite:
		return "write"
	case MsgLoginReply:
		return "login_reply"
	case MsgStatusReply:
		return "status_reply"
	case MsgWriteAck:
		return "write_ack"
	case MsgError:
		return "error"
	}
	return fmt.Sprintf("0x%02X", byte(t))
}

// Frame is one decoded message.
type Frame struct {
	Seq     byte
	Type    MsgType
	Payload []byte
}

// EncodeFrame serialises a frame with marker, length and checksum.
//
// Wire format:
//
//	Byte 0:     0xA5
//	Byte 1-2:   length = 2 + len(payload), big-endian
//	Byte 3:     sequence number
//	Byte 4:     message type
//	Byte 5..n:  payload
//	Last 2:     CRC-16/MODBUS over bytes 1..n, big-endian
func EncodeFrame(f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, &EncodeError{Reason: fmt.Sprintf("payload of %d bytes exceeds %d", len(f.Payload), MaxPayload)}
	}

	length := minFrameLength + len(f.Payload)
	buf := make([]byte, headerSize+length+crcSize)
	buf[0] = Marker
	binary.BigEndian.PutUint16(buf[1:3], uint16(length))
	buf[3] = f.Seq
	buf[4] = byte(f.Type)
	copy(buf[5:], f.Payload)

	crc := checksum(buf[1 : headerSize+length])
	binary.BigEndian.PutUint16(buf[headerSize+length:], crc)
	return buf, nil
}

// DecodeFrame parses exactly one frame from raw.
//
// Returns:
//   - Frame: The decoded frame; Payload does not alias raw
//   - error: *DecodeError for a bad marker, length or checksum
func DecodeFrame(raw []byte) (Frame, error) {
	if len(raw) < headerSize+minFrameLength+crcSize {
		return Frame{}, decodeErrorf("frame too short (%d bytes)", len(raw))
	}
	if raw[0] != Marker {
		return Frame{}, decodeErrorf("bad marker 0x%02X", raw[0])
	}

	length := int(binary.BigEndian.Uint16(raw[1:3]))
	if err := checkLength(length); err != nil {
		return Frame{}, err
	}
	if len(raw) != headerSize+length+crcSize {
		return Frame{}, decodeErrorf("length field %d does not match frame size %d", length, len(raw))
	}

	return verifyAndSplit(raw[1 : headerSize+length], binary.BigEndian.Uint16(raw[headerSize+length:]))
}

func checkLength(length int) error {
	if length < minFrameLength {
		return decodeErrorf("length %d below minimum %d", length, minFrameLength)
	}
	if length > MaxFrameLength {
		return decodeErrorf("length %d exceeds maximum %d", length, MaxFrameLength)
	}
	return nil
}

// verifyAndSplit checks the CRC over length..payload and splits the body.
func verifyAndSplit(covered []byte, crc uint16) (Frame, error) {
	if got := checksum(covered); got != crc {
		return Frame{}, decodeErrorf("checksum mismatch: got 0x%04X, want 0x%04X", crc, got)
	}
	body := covered[2:]
	payload := make([]byte, len(body)-minFrameLength)
	copy(payload, body[minFrameLength:])
	return Frame{Seq: body[0], Type: MsgType(body[1]), Payload: payload}, nil
}

// FrameReader reads frames from a byte stream, resynchronising on the
// marker after garbage or a corrupt frame.
//
// Not safe for concurrent use.
type FrameReader struct {
	r       *bufio.Reader
	skipped uint64
}

// NewFrameReader wraps r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, headerSize+MaxFrameLength+crcSize)}
}

// Skipped returns how many bytes were discarded while hunting for a marker.
func (fr *FrameReader) Skipped() uint64 {
	return fr.skipped
}

// Next returns the next frame.
//
// A *DecodeError means one frame was dropped and the stream is still usable;
// any other error comes from the underlying reader.
func (fr *FrameReader) Next() (Frame, error) {
	for {
		b, err := fr.r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if b == Marker {
			break
		}
		fr.skipped++
	}

	var covered [headerSize + MaxFrameLength]byte
	if _, err := io.ReadFull(fr.r, covered[:2]); err != nil {
		return Frame{}, err
	}
	length := int(binary.BigEndian.Uint16(covered[:2]))
	if err := checkLength(length); err != nil {
		return Frame{}, err
	}

	if _, err := io.ReadFull(fr.r, covered[2:2+length]); err != nil {
		return Frame{}, err
	}
	var crcBuf [crcSize]byte
	if _, err := io.ReadFull(fr.r, crcBuf[:]); err != nil {
		return Frame{}, err
	}

	return verifyAndSplit(covered[:2+length], binary.BigEndian.Uint16(crcBuf[:]))
}
