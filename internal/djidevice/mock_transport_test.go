package djidevice

import (
	"context"
	"sync"

	"djistream/internal/djiproto"
)

// fakeDuplex is an in-memory transport.Duplex + transport.PairingChannel
// used to drive a Session without any real BLE stack. onWrite is invoked
// synchronously after every Write/WriteRaw and may push notifications back
// by calling push — this is what lets a test script a canned response to
// each outbound frame.
type fakeDuplex struct {
	mu      sync.Mutex
	notifCh chan []byte
	sent    [][]byte
	onWrite func(d *fakeDuplex, frame []byte, raw bool)
}

func newFakeDuplex(onWrite func(d *fakeDuplex, frame []byte, raw bool)) *fakeDuplex {
	return &fakeDuplex{notifCh: make(chan []byte, 32), onWrite: onWrite}
}

func (d *fakeDuplex) Write(ctx context.Context, frame []byte, withResponse bool) error {
	d.mu.Lock()
	d.sent = append(d.sent, append([]byte{}, frame...))
	d.mu.Unlock()
	if d.onWrite != nil {
		d.onWrite(d, frame, false)
	}
	return nil
}

func (d *fakeDuplex) WriteRaw(ctx context.Context, b []byte) error {
	if d.onWrite != nil {
		d.onWrite(d, b, true)
	}
	return nil
}

func (d *fakeDuplex) Notifications() <-chan []byte { return d.notifCh }

func (d *fakeDuplex) push(f djiproto.Frame) { d.notifCh <- f.Serialize() }

func (d *fakeDuplex) sentFrames() []djiproto.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]djiproto.Frame, 0, len(d.sent))
	for _, raw := range d.sent {
		if f, ok := djiproto.Parse(raw); ok {
			out = append(out, f)
		}
	}
	return out
}
