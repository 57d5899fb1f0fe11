package djidevice

import (
	"context"
	"testing"
	"time"

	"djistream/internal/djiproto"
)

type alreadyBoundConnector struct{}

func (alreadyBoundConnector) Connect(ctx context.Context) error { return nil }

// An end-to-end scenario: a full mock flow where a scripted
// transport answers each outbound frame the way a real device would,
// expecting the flow to finish successfully and the battery telemetry to
// be observed along the way.
func TestFlowEndToEndWithBatteryTelemetry(t *testing.T) {
	var duplex *fakeDuplex
	duplex = newFakeDuplex(func(d *fakeDuplex, raw []byte, isRaw bool) {
		if isRaw {
			return // raw pairing CCCD write, no response scripted
		}
		f, ok := djiproto.Parse(raw)
		if !ok {
			t.Fatalf("test harness sent an unparseable frame: % X", raw)
		}

		switch f.MessageType {
		case djiproto.MessageTypeSetPairingPIN:
			d.push(djiproto.Frame{Subsystem: djiproto.SubsystemPairer, MessageType: djiproto.MessageTypePairingPINApproved})

		case djiproto.MessageTypePrepareToLiveStream:
			d.push(djiproto.Frame{Subsystem: djiproto.SubsystemStreamer, MessageType: djiproto.MessageTypePrepareToLiveStreamResult, Payload: []byte{0x00}})

		case djiproto.MessageTypeStartStopStreaming:
			if f.MessageID == djiproto.MessageIDStartStreaming {
				// Sent twice: once as the prepare-stage-2 frame, once as the
				// real start-stream frame. Reply to both; the subsystem
				// itself decides which reply matters based on its state.
				d.push(djiproto.Frame{Subsystem: djiproto.SubsystemStreamer, MessageID: djiproto.MessageIDStartStreaming, MessageType: djiproto.MessageTypeStartStopStreamingResult})

				// After each of these acks, also emit a battery telemetry
				// notification, as the device would once streaming is live.
				status := make([]byte, 21)
				status[20] = 100
				d.push(djiproto.Frame{Subsystem: djiproto.SubsystemStreamer, MessageType: djiproto.MessageTypeStreamingStatus, Payload: status})
			}

		case djiproto.MessageTypeConnectToWiFi:
			d.push(djiproto.Frame{Subsystem: djiproto.SubsystemPairer, MessageType: djiproto.MessageTypeConnectToWiFiResult, Payload: []byte{0x00, 0x00}})
		}
	})

	sess := NewSession(djiproto.VariantOsmoAction5Pro)
	sess.Bind(duplex, duplex)
	defer sess.Close()

	battery := make(chan int, 4)
	cancelBattery := sess.SubscribeStreamerEvents(func(e StreamerEvent) {
		if e.Kind == BatteryChanged {
			battery <- e.Battery
		}
	})
	defer cancelBattery()

	flow := NewFlow(sess, alreadyBoundConnector{}, FlowOptions{
		SSID:        "test-ssid",
		PSK:         "test-psk",
		Stream:      StreamParams{Resolution: djiproto.Resolution1080p, BitrateKbps: 4000, FPS: djiproto.FPS30, RTMPURL: "rtmp://example.com/live"},
		StepTimeout: 2 * time.Second,
	})
	flow.Start(context.Background())

	select {
	case res := <-flow.Done():
		if !res.Success {
			t.Fatalf("flow failed: %v", res.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("flow did not finish in time")
	}

	select {
	case b := <-battery:
		if b != 100 {
			t.Errorf("battery = %d, want 100", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for battery telemetry")
	}

	if !sess.Streaming() {
		t.Error("Streaming() = false after successful flow")
	}
}
