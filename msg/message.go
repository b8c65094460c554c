// Package msg provides the software bus packet model and its CCSDS wire codec
package msg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// MsgID identifies a packet stream on the software bus. For CCSDS version 1
// packets the id is the primary header stream id.
type MsgID uint16

const (
	// msgIDTypeBit marks a command packet
	msgIDTypeBit MsgID = 0x1000

	// msgIDSecHdrBit marks the presence of a secondary header
	msgIDSecHdrBit MsgID = 0x0800

	// CmdMIDBase is the first command message id
	CmdMIDBase MsgID = msgIDTypeBit | msgIDSecHdrBit

	// TlmMIDBase is the first telemetry message id
	TlmMIDBase MsgID = msgIDSecHdrBit

	// InvalidMsgID is never routed
	InvalidMsgID MsgID = 0
)

// IsCommand reports whether the id belongs to a command packet
func (id MsgID) IsCommand() bool {
	return id&msgIDTypeBit != 0
}

// IsValid reports whether the id may be used for routing
func (id MsgID) IsValid() bool {
	return id != InvalidMsgID && id <= 0x1FFF
}

// String returns the id in hexadecimal
func (id MsgID) String() string {
	return fmt.Sprintf("0x%04X", uint16(id))
}

// FcnCode is the command code carried in a command secondary header
type FcnCode uint8

// Header sizes in bytes
const (
	PrimaryHeaderSize   = 6
	CommandHeaderSize   = PrimaryHeaderSize + 2
	TelemetryHeaderSize = PrimaryHeaderSize + 6

	// MaxMessageSize bounds a single packet, length field included
	MaxMessageSize = PrimaryHeaderSize + 0xFFFF + 1
)

// Codec errors
var (
	ErrNilMessage      = errors.New("msg: message is nil")
	ErrShortBuffer     = errors.New("msg: buffer too short for header")
	ErrLengthMismatch  = errors.New("msg: length field does not match buffer")
	ErrPayloadTooLarge = errors.New("msg: payload too large")
)

// Time is the spacecraft time carried in telemetry secondary headers
type Time struct {
	Seconds    uint32
	Subseconds uint16 // units of 1/65536 s
}

// TimeFromDuration converts elapsed mission time into header time
func TimeFromDuration(d time.Duration) Time {
	if d < 0 {
		d = 0
	}
	secs := d / time.Second
	frac := d % time.Second
	return Time{
		Seconds:    uint32(secs),
		Subseconds: uint16((uint64(frac) << 16) / uint64(time.Second)),
	}
}

// Duration converts header time back into elapsed mission time
func (t Time) Duration() time.Duration {
	frac := (uint64(t.Subseconds) * uint64(time.Second)) >> 16
	return time.Duration(t.Seconds)*time.Second + time.Duration(frac)
}

// String returns decimal seconds with microsecond resolution
func (t Time) String() string {
	frac := (t.Duration() % time.Second) / time.Microsecond
	return fmt.Sprintf("%d.%06d", t.Seconds, frac)
}

// Message is a software bus packet. Command packets carry FcnCode and
// Checksum, telemetry packets carry Time; Payload follows the header.
type Message struct {
	ID       MsgID
	Sequence uint16
	FcnCode  FcnCode
	Checksum uint8
	Time     Time
	Payload  []byte
}

// NewCommand creates a command packet with a valid checksum
func NewCommand(id MsgID, code FcnCode, payload []byte) *Message {
	m := &Message{ID: id, FcnCode: code, Payload: payload}
	m.Checksum = m.computeChecksum()
	return m
}

// NewTelemetry creates a telemetry packet with a zeroed payload of the given size
func NewTelemetry(id MsgID, payloadSize int) *Message {
	return &Message{ID: id, Payload: make([]byte, payloadSize)}
}

// HeaderSize returns the header length for the packet's kind
func (m *Message) HeaderSize() int {
	if m.ID.IsCommand() {
		return CommandHeaderSize
	}
	return TelemetryHeaderSize
}

// Size returns the total packet size in bytes
func (m *Message) Size() int {
	return m.HeaderSize() + len(m.Payload)
}

// SetTime stamps a telemetry packet with the given mission elapsed time
func (m *Message) SetTime(met time.Duration) {
	m.Time = TimeFromDuration(met)
}

// GenerateChecksum recomputes the command checksum
func (m *Message) GenerateChecksum() {
	if m.ID.IsCommand() {
		m.Checksum = m.computeChecksum()
	}
}

// ValidateChecksum reports whether the XOR of every packet byte is 0xFF.
// Telemetry packets carry no checksum and always validate.
func (m *Message) ValidateChecksum() bool {
	if !m.ID.IsCommand() {
		return true
	}
	return m.xorAll()^m.Checksum == 0xFF
}

func (m *Message) computeChecksum() uint8 {
	return m.xorAll() ^ 0xFF
}

// xorAll folds every byte except the checksum itself
func (m *Message) xorAll() uint8 {
	buf := make([]byte, m.Size())
	m.putHeader(buf)
	buf[PrimaryHeaderSize+1] = 0
	copy(buf[CommandHeaderSize:], m.Payload)

	var sum uint8
	for _, b := range buf {
		sum ^= b
	}
	return sum
}

// Clone returns a deep copy of the packet
func (m *Message) Clone() *Message {
	clone := *m
	if m.Payload != nil {
		clone.Payload = make([]byte, len(m.Payload))
		copy(clone.Payload, m.Payload)
	}
	return &clone
}

// Encode serializes the packet in CCSDS version 1 layout
func Encode(m *Message) ([]byte, error) {
	if m == nil {
		return nil, ErrNilMessage
	}
	if m.Size() > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(m.Payload))
	}

	buf := make([]byte, m.Size())
	m.putHeader(buf)
	copy(buf[m.HeaderSize():], m.Payload)
	return buf, nil
}

func (m *Message) putHeader(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], uint16(m.ID))
	binary.BigEndian.PutUint16(buf[2:4], 0xC000|(m.Sequence&0x3FFF))
	binary.BigEndian.PutUint16(buf[4:6], uint16(m.Size()-7))

	if m.ID.IsCommand() {
		buf[6] = uint8(m.FcnCode) & 0x7F
		buf[7] = m.Checksum
		return
	}
	binary.BigEndian.PutUint32(buf[6:10], m.Time.Seconds)
	binary.BigEndian.PutUint16(buf[10:12], m.Time.Subseconds)
}

// Decode parses a CCSDS version 1 packet
func Decode(data []byte) (*Message, error) {
	if len(data) < PrimaryHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortBuffer, len(data))
	}

	m := &Message{
		ID:       MsgID(binary.BigEndian.Uint16(data[0:2]) & 0x1FFF),
		Sequence: binary.BigEndian.Uint16(data[2:4]) & 0x3FFF,
	}

	total := int(binary.BigEndian.Uint16(data[4:6])) + 7
	if total != len(data) {
		return nil, fmt.Errorf("%w: header says %d, got %d", ErrLengthMismatch, total, len(data))
	}

	hdr := m.HeaderSize()
	if len(data) < hdr {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrShortBuffer, len(data), hdr)
	}

	if m.ID.IsCommand() {
		m.FcnCode = FcnCode(data[6] & 0x7F)
		m.Checksum = data[7]
	} else {
		m.Time.Seconds = binary.BigEndian.Uint32(data[6:10])
		m.Time.Subseconds = binary.BigEndian.Uint16(data[10:12])
	}

	if len(data) > hdr {
		m.Payload = make([]byte, len(data)-hdr)
		copy(m.Payload, data[hdr:])
	}
	return m, nil
}
