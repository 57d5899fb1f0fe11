package djidevice

import (
	"fmt"

	"djistream/internal/djiproto"
)

const defaultPairingPIN = "5160"

// pairerState tracks where the pairing handshake is. The two named
// intermediate states (WaitingForApproval, Finalizing) exist so a reader
// of the state can tell "sent the PIN, waiting on the device" from
// "PIN approved, sending the closing frames" apart. WaitingForApproval is
// entered by pair() once the PIN frame is sent; Finalizing lasts only for
// the handleIncoming call that sends the closing frames.
type pairerState int

const (
	pairerIdle pairerState = iota
	pairerWaitingForStatus
	pairerWaitingForApproval
	pairerFinalizing
)

// pairer implements the pairing handshake, WiFi
// connect, and WiFi scan kickoff. It never owns the transport — all
// outbound frames go through the sender it was built with.
type pairer struct {
	sender    frameSender
	state     pairerState
	listeners pairerListeners
	pin       string
}

func newPairer(sender frameSender) *pairer {
	return &pairer{sender: sender, state: pairerIdle, pin: defaultPairingPIN}
}

// setPIN overrides the PIN sent in the next pair() call. A blank pin is a
// no-op, so callers can always pass a config value through unconditionally.
func (p *pairer) setPIN(pin string) {
	if pin != "" {
		p.pin = pin
	}
}

// pair kicks off the handshake: a raw write on the pairing side-channel
// followed by the PIN frame. It is a no-op outside the Idle state.
func (p *pairer) pair() {
	if p.state != pairerIdle {
		return
	}
	p.sender.log("pairing: starting pairing process")
	p.state = pairerWaitingForStatus

	if err := p.sender.sendRawPairing([]byte{0x01, 0x00}); err != nil {
		p.fail(err)
		return
	}

	payload := append(djiproto.PackShortString("001749319286102"), djiproto.PackShortString(p.pin)...)
	if err := p.sender.sendFrame(djiproto.Frame{
		Subsystem:   djiproto.SubsystemPairer,
		MessageID:   djiproto.MessageIDSetPairingPIN,
		MessageType: djiproto.MessageTypeSetPairingPIN,
		Payload:     payload,
	}, true); err != nil {
		p.fail(err)
		return
	}
	p.state = pairerWaitingForApproval
}

// connectToWiFi sends the SSID/PSK frame. Completion is observed
// asynchronously via handleIncoming (ConnectToWiFiResult).
func (p *pairer) connectToWiFi(ssid, psk string) {
	p.sender.log(fmt.Sprintf("pairing: connecting to WiFi SSID %q", ssid))
	payload := append(djiproto.PackShortString(ssid), djiproto.PackShortString(psk)...)
	if err := p.sender.sendFrame(djiproto.Frame{
		Subsystem:   djiproto.SubsystemPairer,
		MessageID:   djiproto.MessageIDConnectToWiFi,
		MessageType: djiproto.MessageTypeConnectToWiFi,
		Payload:     payload,
	}, true); err != nil {
		p.fail(err)
	}
}

func (p *pairer) startScanningWiFi() {
	p.sender.log("pairing: starting WiFi scan")
	if err := p.sender.sendFrame(djiproto.Frame{
		Subsystem:   djiproto.SubsystemPairer,
		MessageID:   djiproto.MessageIDStartScanningWiFi,
		MessageType: djiproto.MessageTypeStartScanningWiFi,
	}, true); err != nil {
		p.fail(err)
	}
}

// handleIncoming processes one inbound frame. The session hands every
// parsed frame to every subsystem; this one acts only on the message types
// below. It never returns an error; failures are reported through the
// listener set like every other signal.
func (p *pairer) handleIncoming(f djiproto.Frame) {
	switch f.MessageType {
	case djiproto.MessageTypePairingStatus:
		if len(f.Payload) >= 2 && f.Payload[1] == 0x01 {
			p.sender.log("pairing: device is already paired")
			p.state = pairerIdle
			p.listeners.fire(PairerEvent{Kind: PairingComplete})
		}

	case djiproto.MessageTypePairingPINApproved:
		p.sender.log("pairing: PIN approved, finalizing")
		p.state = pairerFinalizing

		if err := p.sender.sendFrame(djiproto.Frame{
			Subsystem:   djiproto.SubsystemPairer,
			MessageID:   djiproto.MessageIDPairingStage1,
			MessageType: djiproto.MessageTypePairingStage1,
			Payload:     []byte{0x00},
		}, true); err != nil {
			p.fail(err)
			return
		}
		if err := p.sender.sendFrame(djiproto.Frame{
			Subsystem:   djiproto.SubsystemOneMorePairer,
			MessageID:   djiproto.MessageIDPairingStage2,
			MessageType: djiproto.MessageTypePairingStage2,
			Payload:     []byte{0x31, 0x31, 0x00, 0x00, 0x00},
		}, true); err != nil {
			p.fail(err)
			return
		}

		p.state = pairerIdle
		p.listeners.fire(PairerEvent{Kind: PairingComplete})

	case djiproto.MessageTypeConnectToWiFiResult:
		if len(f.Payload) >= 2 && f.Payload[0] == 0x00 && f.Payload[1] == 0x00 {
			p.sender.log("pairing: WiFi connected successfully")
			p.listeners.fire(PairerEvent{Kind: WiFiConnected})
		} else {
			p.fail(fmt.Errorf("wifi connection failed, payload % X", f.Payload))
		}

	case djiproto.MessageTypeWiFiScanReport:
		p.sender.log("pairing: received WiFi scan report")
		p.listeners.fire(PairerEvent{Kind: WiFiScanReport, Scan: f.Payload})
	}
}

func (p *pairer) fail(err error) {
	p.sender.log(fmt.Sprintf("pairing: error: %v", err))
	p.listeners.fire(PairerEvent{Kind: PairerFailed, Err: err})
}
