// Package djidevice implements the device-facing protocol core: the
// pairing, streaming and configuration subsystems, the session that binds
// them to a transport and dispatches inbound frames, and the flow
// orchestrator that sequences a full connect-to-streaming run.
package djidevice

import (
	"context"
	"fmt"
	"sync"

	"djistream/internal/djiproto"
	"djistream/internal/transport"
)

// LinkState is the lifecycle of a Session's binding to its transport.
type LinkState int

const (
	LinkUninitialized LinkState = iota
	LinkInitialized
	LinkLost
)

func (s LinkState) String() string {
	switch s {
	case LinkInitialized:
		return "initialized"
	case LinkLost:
		return "lost"
	default:
		return "uninitialized"
	}
}

// frameSender is the callback surface subsystems use to talk back to their
// owning Session: send a frame or a raw pairing write, emit a log line.
// Implemented by *Session; kept as an interface so subsystems never reach
// into Session internals directly.
type frameSender interface {
	sendFrame(f djiproto.Frame, noResponse bool) error
	sendRawPairing(b []byte) error
	log(line string)
}

// Session binds the three GATT
// characteristics for one physical device, dispatches inbound frames to
// the Pairer, Streamer and Configurer subsystems in that fixed order, and
// rejects outbound sends while uninitialized.
//
// All subsystem state transitions and all dispatch happen on a single
// goroutine (the run loop started at construction) — the "one logical
// executor per device" model. Exported methods hop onto that goroutine via
// do() so callers never need their own locking, and work whether or not
// Bind has happened yet.
type Session struct {
	variant djiproto.DeviceVariant

	pairer     *pairer
	streamer   *streamer
	configurer *configurer

	mu        sync.RWMutex
	linkState LinkState
	duplex    transport.Duplex
	pairing   transport.PairingChannel

	execCh  chan func()
	stopCh  chan struct{}
	doneCh  chan struct{}
	notifCh <-chan []byte // set by Bind; nil (blocks forever in select) until then

	logCh chan string
	errCh chan error

	hints struct {
		sync.RWMutex
		paired        bool
		wifiConnected bool
		streaming     bool
	}
}

// NewSession constructs a Session for a device already identified as
// variant and starts its executor goroutine immediately. Subsystems are
// created once and live for the lifetime of the Session, independent of
// any particular Flow run. The session is usable (do-routed methods like
// SubscribePairerEvents or SendFrame work, the latter returning
// ErrNotInitialized) before Bind is ever called — only Bind makes sending
// frames to a real device possible.
func NewSession(variant djiproto.DeviceVariant) *Session {
	s := &Session{
		variant: variant,
		execCh:  make(chan func()),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logCh:   make(chan string, 64),
		errCh:   make(chan error, 16),
	}
	s.pairer = newPairer(s)
	s.streamer = newStreamer(s, variant)
	s.configurer = newConfigurer(s, variant)

	// Permanent listeners (added before the run loop starts, so no
	// synchronization is needed yet) that keep the coarse session-level
	// hints in sync regardless of whether any Flow is currently observing
	// the same events.
	s.pairer.listeners.add(func(e PairerEvent) {
		switch e.Kind {
		case PairingComplete:
			s.hints.Lock()
			s.hints.paired = true
			s.hints.Unlock()
		case WiFiConnected:
			s.hints.Lock()
			s.hints.wifiConnected = true
			s.hints.Unlock()
		}
	})
	s.streamer.listeners.add(func(e StreamerEvent) {
		switch e.Kind {
		case StreamStarted:
			s.hints.Lock()
			s.hints.streaming = true
			s.hints.Unlock()
		case StreamStopped:
			s.hints.Lock()
			s.hints.streaming = false
			s.hints.Unlock()
		}
	})

	go s.run()
	return s
}

// PairedHint reports whether this session has ever observed a successful
// pairing. It is a best-effort cache, not a live query of device state —
// there is no "am I paired" query on the wire, only events the pairer observes.
func (s *Session) PairedHint() bool {
	s.hints.RLock()
	defer s.hints.RUnlock()
	return s.hints.paired
}

// WiFiConnectedHint reports whether this session has ever observed a
// successful WiFi connect.
func (s *Session) WiFiConnectedHint() bool {
	s.hints.RLock()
	defer s.hints.RUnlock()
	return s.hints.wifiConnected
}

// Streaming reports whether this session believes a live stream is
// currently active.
func (s *Session) Streaming() bool {
	s.hints.RLock()
	defer s.hints.RUnlock()
	return s.hints.streaming
}

// Variant reports the device model this session was built for.
func (s *Session) Variant() djiproto.DeviceVariant { return s.variant }

// LinkState reports the current binding state.
func (s *Session) LinkState() LinkState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.linkState
}

// Log streams human-readable diagnostic lines from the session and its
// subsystems. The channel is never closed; callers select on it alongside
// their own shutdown signal.
func (s *Session) Log() <-chan string { return s.logCh }

// Errors streams transport write failures. Subsystem failures are not sent
// here; they reach subscribers as PairerFailed/StreamerFailed events.
func (s *Session) Errors() <-chan error { return s.errCh }

// Bind attaches a transport to the already-running session: outbound
// sends become possible and inbound notifications start dispatching to the
// subsystems. Calling Bind a second time on the same Session is a
// programming error; callers build a fresh Session per physical
// connection.
func (s *Session) Bind(duplex transport.Duplex, pairing transport.PairingChannel) {
	s.do(func() {
		s.mu.Lock()
		s.duplex = duplex
		s.pairing = pairing
		s.linkState = LinkInitialized
		s.mu.Unlock()
		s.notifCh = duplex.Notifications()
	})
}

// Close tears down the run loop. Safe to call multiple times.
func (s *Session) Close() {
	select {
	case <-s.doneCh:
		return
	default:
	}
	close(s.stopCh)
	<-s.doneCh
}

// run is the session's single executor goroutine. It starts at
// construction time, before any transport exists: s.notifCh is nil until
// Bind sets it, and a nil channel in a select simply never fires, so the
// execCh/stopCh cases keep working unattended. Once bound, a closed
// notifCh (transport gone) ends the loop for good, same as an explicit
// Close.
func (s *Session) run() {
	defer close(s.doneCh)
	defer func() {
		s.mu.Lock()
		s.linkState = LinkLost
		s.mu.Unlock()
	}()

	for {
		select {
		case <-s.stopCh:
			return
		case fn, ok := <-s.execCh:
			if !ok {
				return
			}
			fn()
		case raw, ok := <-s.notifCh:
			if !ok {
				return
			}
			s.dispatch(raw)
		}
	}
}

// do runs fn on the session's executor goroutine and blocks until it
// completes. It is the synchronization primitive every exported operation
// and every subscribe/unsubscribe call funnels through, giving the single-
// single-executor ordering guarantee without per-field locking.
func (s *Session) do(fn func()) {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case s.execCh <- wrapped:
		<-done
	case <-s.stopCh:
	case <-s.doneCh:
	}
}

func (s *Session) dispatch(raw []byte) {
	f, ok := djiproto.Parse(raw)
	if !ok {
		s.log(fmt.Sprintf("session: failed to parse incoming frame: % X", raw))
		return
	}
	s.log(fmt.Sprintf("session: parsed frame subsystem=0x%04X id=0x%04X type=0x%06X", uint16(f.Subsystem), uint16(f.MessageID), uint32(f.MessageType)))

	s.pairer.handleIncoming(f)
	s.streamer.handleIncoming(f)
	s.configurer.handleIncoming(f)
}

// sendFrame implements frameSender for the subsystems.
func (s *Session) sendFrame(f djiproto.Frame, noResponse bool) error {
	s.mu.RLock()
	state, duplex := s.linkState, s.duplex
	s.mu.RUnlock()

	if state != LinkInitialized {
		return newError(ErrNotInitialized, "cannot send frame: session not initialized", nil)
	}
	if err := duplex.Write(context.Background(), f.Serialize(), !noResponse); err != nil {
		wrapped := newError(ErrTransport, "write failed", err)
		s.errCh <- wrapped
		return wrapped
	}
	return nil
}

// sendRawPairing implements frameSender for the subsystems.
func (s *Session) sendRawPairing(b []byte) error {
	s.mu.RLock()
	state, pairing := s.linkState, s.pairing
	s.mu.RUnlock()

	if state != LinkInitialized {
		return newError(ErrNotInitialized, "cannot send raw pairing write: session not initialized", nil)
	}
	if err := pairing.WriteRaw(context.Background(), b); err != nil {
		wrapped := newError(ErrTransport, "raw pairing write failed", err)
		s.errCh <- wrapped
		return wrapped
	}
	return nil
}

func (s *Session) log(line string) {
	select {
	case s.logCh <- line:
	default:
	}
}

// SendFrame exposes a raw-frame send for callers outside the subsystem
// package boundary (tests, demo tooling). Production flows operate through
// Pair/ConnectToWiFi/PrepareToLiveStream/etc instead.
func (s *Session) SendFrame(f djiproto.Frame, noResponse bool) error {
	var err error
	s.do(func() { err = s.sendFrame(f, noResponse) })
	return err
}

// Pair starts the pairing handshake.
func (s *Session) Pair() { s.do(func() { s.pairer.pair() }) }

// ConnectToWiFi sends the WiFi credentials frame.
func (s *Session) ConnectToWiFi(ssid, psk string) { s.do(func() { s.pairer.connectToWiFi(ssid, psk) }) }

// StartScanningWiFi kicks off a WiFi scan.
func (s *Session) StartScanningWiFi() { s.do(func() { s.pairer.startScanningWiFi() }) }

// PrepareToLiveStream starts the two-stage stream-prepare handshake.
func (s *Session) PrepareToLiveStream() { s.do(func() { s.streamer.prepareToLiveStream() }) }

// StartLiveStream configures and starts streaming with the given params.
func (s *Session) StartLiveStream(p StreamParams) { s.do(func() { s.streamer.startLiveStream(p) }) }

// StopLiveStream stops an active stream.
func (s *Session) StopLiveStream() { s.do(func() { s.streamer.stopLiveStream() }) }

// SetImageStabilization pushes a stabilization mode.
func (s *Session) SetImageStabilization(mode djiproto.Stabilization) {
	s.do(func() { s.configurer.setImageStabilization(mode) })
}

// SetPairingPIN overrides the PIN sent during the pairing handshake. Call
// before Pair(); a blank pin leaves the existing (default) PIN in place.
func (s *Session) SetPairingPIN(pin string) {
	s.do(func() { s.pairer.setPIN(pin) })
}

// SubscribePairerEvents registers fn to be called (on the session's
// executor goroutine) for every pairing subsystem event. The returned
// cancel func detaches the listener atomically.
func (s *Session) SubscribePairerEvents(fn func(PairerEvent)) (cancel func()) {
	var id int
	s.do(func() { id = s.pairer.listeners.add(fn) })
	return func() { s.do(func() { s.pairer.listeners.remove(id) }) }
}

// SubscribeStreamerEvents registers fn for streaming subsystem events.
func (s *Session) SubscribeStreamerEvents(fn func(StreamerEvent)) (cancel func()) {
	var id int
	s.do(func() { id = s.streamer.listeners.add(fn) })
	return func() { s.do(func() { s.streamer.listeners.remove(id) }) }
}
