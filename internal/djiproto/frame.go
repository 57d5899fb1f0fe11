package djiproto

import (
	"encoding/binary"
	"fmt"
)

const (
	// MaxPayloadLen is the largest payload that fits the one-byte length
	// field: 255 total frame bytes minus the 13-byte header/trailer.
	MaxPayloadLen = 255 - frameOverhead
	frameOverhead = 13
	magicByte     = 0x55
	versionByte   = 0x04
)

// Frame is a single on-wire DJI BLE message: fixed header, subsystem/message
// routing, and a variable payload, trailed by a CRC-16.
type Frame struct {
	Subsystem   SubsystemID
	MessageID   MessageID
	MessageType MessageType
	Payload     []byte
}

// Serialize builds the wire bytes for f. It panics if the payload exceeds
// MaxPayloadLen — an oversized payload is a programming error, not a
// runtime condition a caller should recover from.
func (f Frame) Serialize() []byte {
	if len(f.Payload) > MaxPayloadLen {
		panic(fmt.Sprintf("djiproto: payload too long: %d bytes (max %d)", len(f.Payload), MaxPayloadLen))
	}

	total := frameOverhead + len(f.Payload)
	buf := make([]byte, total)

	buf[0] = magicByte
	buf[1] = byte(total)
	buf[2] = versionByte
	buf[3] = CRC8(buf[0:3])

	binary.BigEndian.PutUint16(buf[4:6], uint16(f.Subsystem))
	binary.BigEndian.PutUint16(buf[6:8], uint16(f.MessageID))

	mt := uint32(f.MessageType)
	buf[8] = byte(mt >> 16)
	buf[9] = byte(mt >> 8)
	buf[10] = byte(mt)

	copy(buf[11:11+len(f.Payload)], f.Payload)

	crc := CRC16(buf[:total-2])
	binary.LittleEndian.PutUint16(buf[total-2:total], crc)

	return buf
}

// Parse validates and decodes raw bytes into a Frame. Any validation
// failure (too short, bad magic/version, either CRC mismatch, a declared
// length longer than the actual buffer, or a declared length shorter than
// the header itself) yields ok=false and a zero Frame — never partial data.
func Parse(data []byte) (f Frame, ok bool) {
	if len(data) < frameOverhead {
		return Frame{}, false
	}
	if data[0] != magicByte {
		return Frame{}, false
	}

	length := int(data[1])
	if length > len(data) {
		return Frame{}, false
	}
	if data[2] != versionByte {
		return Frame{}, false
	}
	if CRC8(data[0:3]) != data[3] {
		return Frame{}, false
	}
	if length < frameOverhead {
		return Frame{}, false
	}

	crcRegion := data[:length-2]
	wantCRC := binary.LittleEndian.Uint16(data[length-2 : length])
	if CRC16(crcRegion) != wantCRC {
		return Frame{}, false
	}

	subsystem := SubsystemID(binary.BigEndian.Uint16(data[4:6]))
	msgID := MessageID(binary.BigEndian.Uint16(data[6:8]))
	msgType := MessageType(uint32(data[8])<<16 | uint32(data[9])<<8 | uint32(data[10]))

	payload := make([]byte, length-frameOverhead)
	copy(payload, data[11:length-2])

	return Frame{
		Subsystem:   subsystem,
		MessageID:   msgID,
		MessageType: msgType,
		Payload:     payload,
	}, true
}

// PackShortString encodes a one-byte length prefix followed by the UTF-8
// bytes of s. It panics if s doesn't fit in a byte — callers validate
// lengths before reaching the wire layer.
func PackShortString(s string) []byte {
	if len(s) > 255 {
		panic(fmt.Sprintf("djiproto: string too long for PackShortString: %d bytes", len(s)))
	}
	out := make([]byte, 1+len(s))
	out[0] = byte(len(s))
	copy(out[1:], s)
	return out
}

// PackURL encodes a two-byte little-endian length prefix followed by the
// UTF-8 bytes of s.
func PackURL(s string) []byte {
	if len(s) > 65535 {
		panic(fmt.Sprintf("djiproto: string too long for PackURL: %d bytes", len(s)))
	}
	out := make([]byte, 2+len(s))
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(s)))
	copy(out[2:], s)
	return out
}
