package djidevice

import (
	"encoding/binary"
	"fmt"

	"djistream/internal/djiproto"
)

type streamerState int

const (
	streamerIdle streamerState = iota
	streamerPreparingStage1
	streamerPreparingStage2
	streamerStarting
	streamerStopping
)

// StreamParams is the set of values the device needs to begin publishing
// an RTMP stream: resolution/bitrate/fps plus the destination URL.
type StreamParams struct {
	Resolution  djiproto.Resolution
	BitrateKbps uint16
	FPS         djiproto.FPS
	RTMPURL     string
}

// streamer implements the two-stage
// prepare-to-stream handshake, start/stop, and battery telemetry parsed
// out of StreamingStatus notifications.
type streamer struct {
	sender    frameSender
	variant   djiproto.DeviceVariant
	state     streamerState
	listeners streamerListeners
}

func newStreamer(sender frameSender, variant djiproto.DeviceVariant) *streamer {
	return &streamer{sender: sender, variant: variant, state: streamerIdle}
}

func (s *streamer) prepareToLiveStream() {
	s.sender.log("streaming: preparing to live stream (stage 1)")
	s.state = streamerPreparingStage1
	if err := s.sender.sendFrame(djiproto.Frame{
		Subsystem:   djiproto.SubsystemStreamer,
		MessageID:   djiproto.MessageIDPrepareToLiveStreamStage1,
		MessageType: djiproto.MessageTypePrepareToLiveStream,
		Payload:     []byte{0x1A},
	}, true); err != nil {
		s.fail(err)
	}
}

func (s *streamer) startLiveStream(p StreamParams) {
	s.sender.log(fmt.Sprintf("streaming: starting live stream to %s", p.RTMPURL))

	configPayload := make([]byte, 0, 16)
	configPayload = append(configPayload, 0x00, djiproto.DeviceKindByte(s.variant), 0x00, byte(p.Resolution))
	bitrate := make([]byte, 2)
	binary.LittleEndian.PutUint16(bitrate, p.BitrateKbps)
	configPayload = append(configPayload, bitrate...)
	configPayload = append(configPayload, 0x02, 0x00, byte(p.FPS), 0x00, 0x00, 0x00)
	configPayload = append(configPayload, djiproto.PackURL(p.RTMPURL)...)

	if err := s.sender.sendFrame(djiproto.Frame{
		Subsystem:   djiproto.SubsystemStreamer,
		MessageID:   djiproto.MessageIDConfigureStreaming,
		MessageType: djiproto.MessageTypeConfigureStreaming,
		Payload:     configPayload,
	}, true); err != nil {
		s.fail(err)
		return
	}

	s.state = streamerStarting
	if err := s.sender.sendFrame(djiproto.Frame{
		Subsystem:   djiproto.SubsystemStreamer,
		MessageID:   djiproto.MessageIDStartStreaming,
		MessageType: djiproto.MessageTypeStartStopStreaming,
		Payload:     []byte{0x01, 0x01, 0x1A, 0x00, 0x01, 0x01},
	}, true); err != nil {
		s.fail(err)
	}
}

func (s *streamer) stopLiveStream() {
	s.sender.log("streaming: stopping live stream")
	s.state = streamerStopping
	if err := s.sender.sendFrame(djiproto.Frame{
		Subsystem:   djiproto.SubsystemStreamer,
		MessageID:   djiproto.MessageIDStopStreaming,
		MessageType: djiproto.MessageTypeStartStopStreaming,
		Payload:     []byte{0x01, 0x01, 0x1A, 0x00, 0x01, 0x02},
	}, true); err != nil {
		s.fail(err)
	}
}

func (s *streamer) handleIncoming(f djiproto.Frame) {
	switch f.MessageType {
	case djiproto.MessageTypePrepareToLiveStreamResult:
		if s.state != streamerPreparingStage1 {
			return
		}
		if len(f.Payload) == 1 && f.Payload[0] == 0x00 {
			s.sender.log("streaming: prepare stage 1 success, sending stage 2")
			s.state = streamerPreparingStage2
			// The device firmware reuses the StartStreaming message ID for
			// this frame instead of PrepareToLiveStreamStage2; disambiguation
			// on the way back relies on subsystem state, not MessageID.
			if err := s.sender.sendFrame(djiproto.Frame{
				Subsystem:   djiproto.SubsystemStreamer,
				MessageID:   djiproto.MessageIDStartStreaming,
				MessageType: djiproto.MessageTypeStartStopStreaming,
				Payload:     []byte{0x00, 0x01, 0x1C, 0x00},
			}, true); err != nil {
				s.fail(err)
			}
		} else {
			s.fail(fmt.Errorf("prepare stage 1 failed, payload % X", f.Payload))
		}

	case djiproto.MessageTypeStartStopStreamingResult:
		switch s.state {
		case streamerPreparingStage2:
			s.sender.log("streaming: prepare stage 2 success")
			s.state = streamerIdle
			s.listeners.fire(StreamerEvent{Kind: PrepareComplete})
		case streamerStarting:
			if f.MessageID == djiproto.MessageIDStartStreaming {
				s.sender.log("streaming: start live stream success")
				s.state = streamerIdle
				s.listeners.fire(StreamerEvent{Kind: StreamStarted})
			}
		case streamerStopping:
			s.sender.log("streaming: stop live stream success")
			s.state = streamerIdle
			s.listeners.fire(StreamerEvent{Kind: StreamStopped})
		}

	case djiproto.MessageTypeStreamingStatus:
		if len(f.Payload) >= 21 {
			s.listeners.fire(StreamerEvent{Kind: BatteryChanged, Battery: int(f.Payload[20])})
		}
	}
}

func (s *streamer) fail(err error) {
	s.sender.log(fmt.Sprintf("streaming: error: %v", err))
	s.listeners.fire(StreamerEvent{Kind: StreamerFailed, Err: err})
}
