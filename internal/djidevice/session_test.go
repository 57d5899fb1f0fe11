package djidevice

import (
	"testing"
	"time"

	"djistream/internal/djiproto"
)

// Scenario: a PairingStatus notification with
// payload 00 01 short-circuits the handshake straight to PairingComplete.
func TestPairerShortCircuitsOnAlreadyPaired(t *testing.T) {
	duplex := newFakeDuplex(nil)
	sess := NewSession(djiproto.VariantOsmoAction4)
	sess.Bind(duplex, duplex)
	defer sess.Close()

	events := make(chan PairerEvent, 4)
	cancel := sess.SubscribePairerEvents(func(e PairerEvent) { events <- e })
	defer cancel()

	sess.Pair()

	duplex.push(djiproto.Frame{
		Subsystem:   djiproto.SubsystemPairer,
		MessageType: djiproto.MessageTypePairingStatus,
		Payload:     []byte{0x00, 0x01},
	})

	select {
	case e := <-events:
		if e.Kind != PairingComplete {
			t.Fatalf("got event kind %v, want PairingComplete", e.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for PairingComplete")
	}

	if !sess.PairedHint() {
		t.Error("PairedHint() = false after short-circuit pairing")
	}

	sent := duplex.sentFrames()
	if len(sent) != 1 {
		t.Fatalf("expected exactly 1 frame sent (the PIN frame; the initial pairing write is raw), got %d", len(sent))
	}
	if sent[0].MessageType != djiproto.MessageTypeSetPairingPIN {
		t.Errorf("sent frame type = 0x%06X, want SetPairingPIN", uint32(sent[0].MessageType))
	}
}

func TestSendRejectedWhileUninitialized(t *testing.T) {
	sess := NewSession(djiproto.VariantOsmoAction3)
	err := sess.SendFrame(djiproto.Frame{Subsystem: djiproto.SubsystemPairer}, true)
	if err == nil {
		t.Fatal("expected error sending on an unbound session")
	}
	var derr *Error
	if !asDeviceError(err, &derr) || derr.Kind != ErrNotInitialized {
		t.Errorf("got error %v, want ErrNotInitialized", err)
	}
}

func asDeviceError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
