// Package transport defines the byte-duplex and pairing side-channel the
// protocol core consumes, plus a concrete BLE implementation. The core
// itself (internal/djidevice) never imports a BLE library directly — it
// only depends on the interfaces below, so it can be driven by the real
// adapter or by an in-memory mock in tests.
package transport

import "context"

// Duplex is the opaque byte channel a device session sends frames to and
// receives notifications from. This is treated as an external
// collaborator; the core only ever calls Write and reads Notifications.
type Duplex interface {
	// Write sends one already-serialized frame. withResponse selects
	// GATT write-with-response vs write-without-response.
	Write(ctx context.Context, frame []byte, withResponse bool) error

	// Notifications delivers raw inbound notification payloads in receive
	// order. It is closed when the underlying link is lost.
	Notifications() <-chan []byte
}

// PairingChannel is the out-of-band side-channel the pairing subsystem
// abuses to kick off the handshake (a CCCD descriptor write that is not a
// frame at all).
type PairingChannel interface {
	WriteRaw(ctx context.Context, b []byte) error
}
