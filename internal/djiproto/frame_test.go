package djiproto

import (
	"bytes"
	"testing"
)

// Byte-by-byte layout of a serialized one-byte-payload frame.
func TestSerializeSeedScenario(t *testing.T) {
	f := Frame{
		Subsystem:   SubsystemPairer, // 0x0207
		MessageID:   MessageID(0x0400),
		MessageType: MessageTypePairingStage1, // 0xC00746
		Payload:     []byte{0x00},
	}

	out := f.Serialize()
	if len(out) != 14 {
		t.Fatalf("serialized length = %d, want 14", len(out))
	}
	if !bytes.Equal(out[0:3], []byte{0x55, 0x0E, 0x04}) {
		t.Errorf("header bytes = % X, want 55 0E 04", out[0:3])
	}
	if out[3] != CRC8(out[0:3]) {
		t.Errorf("header CRC mismatch")
	}
	if !bytes.Equal(out[4:6], []byte{0x02, 0x07}) {
		t.Errorf("subsystem bytes = % X, want 02 07", out[4:6])
	}
	if !bytes.Equal(out[6:8], []byte{0x04, 0x00}) {
		t.Errorf("message_id bytes = % X, want 04 00", out[6:8])
	}
	if !bytes.Equal(out[8:11], []byte{0xC0, 0x07, 0x46}) {
		t.Errorf("message_type bytes = % X, want C0 07 46", out[8:11])
	}
	if out[11] != 0x00 {
		t.Errorf("payload byte = 0x%02X, want 0x00", out[11])
	}
	wantCRC16 := CRC16(out[0:12])
	if out[12] != byte(wantCRC16) || out[13] != byte(wantCRC16>>8) {
		t.Errorf("trailing CRC16 bytes = % X, want little-endian 0x%04X", out[12:14], wantCRC16)
	}
}

func TestRoundTrip(t *testing.T) {
	frames := []Frame{
		{Subsystem: SubsystemStreamer, MessageID: MessageIDStartStreaming, MessageType: MessageTypeStartStopStreaming, Payload: []byte{0x01, 0x01, 0x1A, 0x00, 0x01, 0x01}},
		{Subsystem: SubsystemPairer, MessageID: MessageIDSetPairingPIN, MessageType: MessageTypeSetPairingPIN, Payload: append(PackShortString("001749319286102"), PackShortString("5160")...)},
		{Subsystem: SubsystemConfigurer, MessageID: 0, MessageType: MessageTypeConfigure, Payload: nil},
	}

	for i, want := range frames {
		got, ok := Parse(want.Serialize())
		if !ok {
			t.Fatalf("case %d: parse failed", i)
		}
		if got.Subsystem != want.Subsystem || got.MessageID != want.MessageID || got.MessageType != want.MessageType {
			t.Fatalf("case %d: header mismatch: got %+v, want %+v", i, got, want)
		}
		if !bytes.Equal(got.Payload, want.Payload) && !(len(got.Payload) == 0 && len(want.Payload) == 0) {
			t.Fatalf("case %d: payload mismatch: got % X, want % X", i, got.Payload, want.Payload)
		}
	}
}

func TestParseTrustsDeclaredLengthPrefix(t *testing.T) {
	f := Frame{Subsystem: SubsystemPairer, MessageID: 1, MessageType: MessageTypePairingStatus, Payload: []byte{0x00, 0x01}}
	serialized := f.Serialize()

	padded := append(append([]byte{}, serialized...), 0xAA, 0xBB, 0xCC)
	got, ok := Parse(padded)
	if !ok {
		t.Fatal("parse of padded buffer failed")
	}
	if !bytes.Equal(got.Payload, f.Payload) {
		t.Errorf("payload = % X, want % X", got.Payload, f.Payload)
	}

	// Re-serializing must reproduce exactly the declared-length prefix of
	// the padded input.
	reSerialized := got.Serialize()
	if !bytes.Equal(reSerialized, padded[:int(padded[1])]) {
		t.Errorf("re-serialized frame does not match declared-length prefix of input")
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	f := Frame{Subsystem: SubsystemPairer, MessageID: 1, MessageType: MessageTypePairingStatus, Payload: []byte{0x00, 0x01}}
	b := f.Serialize()
	b[0] = 0x00
	if _, ok := Parse(b); ok {
		t.Error("expected parse to reject bad magic")
	}
}

func TestParseRejectsBadVersion(t *testing.T) {
	f := Frame{Subsystem: SubsystemPairer, MessageID: 1, MessageType: MessageTypePairingStatus}
	b := f.Serialize()
	b[2] = 0x05
	if _, ok := Parse(b); ok {
		t.Error("expected parse to reject bad version")
	}
}

func TestParseRejectsTooShort(t *testing.T) {
	if _, ok := Parse([]byte{0x55, 0x0D, 0x04}); ok {
		t.Error("expected parse to reject short buffer")
	}
}

// A garbled declared length shorter than the header itself must be
// rejected, not turned into a negative-size payload allocation.
func TestParseRejectsShortDeclaredLength(t *testing.T) {
	header := []byte{0x55, 0x05, 0x04, 0x00}
	header[3] = CRC8(header[0:3])
	buf := append(header, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x11, 0x22, 0x33)

	if _, ok := Parse(buf); ok {
		t.Error("expected parse to reject a declared length shorter than the frame header")
	}
}

// Seed scenario (f): corrupting any single byte must cause rejection.
func TestParseRejectsCorruptedByte(t *testing.T) {
	f := Frame{Subsystem: SubsystemStreamer, MessageID: MessageIDStartStreaming, MessageType: MessageTypeStartStopStreaming, Payload: []byte{0x01, 0x01, 0x1A, 0x00, 0x01, 0x01}}
	original := f.Serialize()

	for i := range original {
		corrupted := append([]byte{}, original...)
		corrupted[i] ^= 0xFF
		if _, ok := Parse(corrupted); ok {
			t.Errorf("byte %d: corrupted frame unexpectedly parsed", i)
		}
	}
}

func TestSerializedLengthEqualsPayloadPlus13(t *testing.T) {
	for n := 0; n <= MaxPayloadLen; n++ {
		f := Frame{Payload: make([]byte, n)}
		if got := len(f.Serialize()); got != n+13 {
			t.Fatalf("payload len %d: serialized len = %d, want %d", n, got, n+13)
		}
	}
}

func TestSerializeRejectsOversizedPayload(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for oversized payload")
		}
	}()
	Frame{Payload: make([]byte, MaxPayloadLen+1)}.Serialize()
}

func TestPackShortString(t *testing.T) {
	got := PackShortString("Hello")
	want := []byte{0x05, 0x48, 0x65, 0x6C, 0x6C, 0x6F}
	if !bytes.Equal(got, want) {
		t.Errorf("PackShortString(%q) = % X, want % X", "Hello", got, want)
	}
}

func TestPackURL(t *testing.T) {
	got := PackURL("http://example.com")
	want := []byte{0x12, 0x00, 0x68, 0x74, 0x74, 0x70, 0x3A, 0x2F, 0x2F, 0x65, 0x78, 0x61, 0x6D, 0x70, 0x6C, 0x65, 0x2E, 0x63, 0x6F, 0x6D}
	if !bytes.Equal(got, want) {
		t.Errorf("PackURL(...) = % X, want % X", got, want)
	}
}

func TestIdentifyVariant(t *testing.T) {
	cases := []struct {
		data []byte
		want DeviceVariant
	}{
		{[]byte{0x12, 0x00}, VariantOsmoAction3},
		{[]byte{0x14, 0x00}, VariantOsmoAction4},
		{[]byte{0x15, 0x00}, VariantOsmoAction5Pro},
		{[]byte{0x20, 0x00}, VariantOsmoPocket3},
		{[]byte{0x99, 0x99}, VariantUnknown},
		{nil, VariantUndefined},
		{[]byte{0x12}, VariantUndefined},
	}
	for _, c := range cases {
		if got := IdentifyVariant(c.data); got != c.want {
			t.Errorf("IdentifyVariant(% X) = %v, want %v", c.data, got, c.want)
		}
	}
}
