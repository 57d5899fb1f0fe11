package djiproto

// SubsystemID selects the logical channel a frame is addressed to. Closed
// set; there is no per-subsystem session state carried on the wire.
type SubsystemID uint16

const (
	SubsystemStatus        SubsystemID = 0x0000
	SubsystemConfigurer    SubsystemID = 0x0201
	SubsystemPairer        SubsystemID = 0x0207
	SubsystemStreamer      SubsystemID = 0x0208
	SubsystemPrePairer     SubsystemID = 0x0402
	SubsystemOneMorePairer SubsystemID = 0x0288
)

// MessageID is the per-subsystem command code. Several wire MessageTypes are
// shared across distinct operations (see MessageTypeStartStopStreaming); MessageID is
// what actually disambiguates an outbound frame.
type MessageID uint16

const (
	MessageIDPairingStarted              MessageID = 0x7911
	MessageIDSetPairingPIN               MessageID = 0x72AA
	MessageIDPairingStage1               MessageID = 0x0400
	MessageIDPairingStage2                MessageID = 0x74AA
	MessageIDPrepareToLiveStreamStage1    MessageID = 0xFEAB
	MessageIDPrepareToLiveStreamStage2    MessageID = 0xFFAB
	MessageIDStartScanningWiFi            MessageID = 0x8EBB
	MessageIDConnectToWiFi                MessageID = 0x98BB
	MessageIDConfigureStreaming           MessageID = 0xB3BB
	MessageIDStartStreaming                MessageID = 0xB4BB
	MessageIDStopStreaming                 MessageID = 0xB5BB
)

// MessageType is the 24-bit semantic category carried on the wire, stored
// here as a 32-bit value with the top byte always zero.
type MessageType uint32

const (
	MessageTypeConfigure MessageType = 0x40028E // == MessageTypeStartStopStreaming, see below

	MessageTypeMaybeStatus    MessageType = 0x000405
	MessageTypeMaybeKeepAlive MessageType = 0x000427

	MessageTypePairingStage2        MessageType = 0x400032
	MessageTypePairingStarted       MessageType = 0x000280
	MessageTypeSetPairingPIN        MessageType = 0x400745
	MessageTypePairingStatus        MessageType = 0xC00745
	MessageTypePairingPINApproved   MessageType = 0x400746
	MessageTypePairingStage1        MessageType = 0xC00746
	MessageTypeConnectToWiFi        MessageType = 0x400747
	MessageTypeConnectToWiFiResult  MessageType = 0xC00747
	MessageTypeStartScanningWiFi       MessageType = 0x4007AB
	MessageTypeStartScanningWiFiResult MessageType = 0xC007AB
	MessageTypeWiFiScanReport          MessageType = 0x4007AC

	// MessageTypeStartStopStreaming and MessageTypeConfigure share a wire
	// value. The Configurer subsystem uses it for image-stabilization
	// pushes; the Streamer subsystem uses the same value (disambiguated by
	// MessageID) for the PrepareToLiveStreamStage2/StartStreaming/
	// StopStreaming quirk; see streamer.go for how disambiguation works.
	MessageTypeStartStopStreaming       MessageType = 0x40028E
	MessageTypeStartStopStreamingResult MessageType = 0x80028E
	MessageTypePrepareToLiveStream       MessageType = 0x4002E1
	MessageTypePrepareToLiveStreamResult MessageType = 0xC002E1
	MessageTypeConfigureStreaming        MessageType = 0x400878
	MessageTypeStreamingStatus           MessageType = 0x000D02

	// Unknown* / Maybe* types are accepted and logged, never acted upon
	// (left as a formal enum value; never sent on the wire).
	MessageTypeUnknown0 MessageType = 0x400081
	MessageTypeUnknown1 MessageType = 0x0000F1
	MessageTypeUnknown2 MessageType = 0x0002DC
	MessageTypeUnknown3 MessageType = 0x00041C
	MessageTypeUnknown4 MessageType = 0x000438
	MessageTypeUnknown5 MessageType = 0x000745
)

// DeviceVariant is the recognized camera/gimbal model, derived from BLE
// advertisement manufacturer data.
type DeviceVariant int

const (
	VariantUndefined DeviceVariant = iota
	VariantUnknown
	VariantOsmoAction3
	VariantOsmoAction4
	VariantOsmoAction5Pro
	VariantOsmoPocket3
)

func (v DeviceVariant) String() string {
	switch v {
	case VariantOsmoAction3:
		return "OsmoAction3"
	case VariantOsmoAction4:
		return "OsmoAction4"
	case VariantOsmoAction5Pro:
		return "OsmoAction5Pro"
	case VariantOsmoPocket3:
		return "OsmoPocket3"
	case VariantUnknown:
		return "Unknown"
	default:
		return "Undefined"
	}
}

// ManufacturerDataKey is the BLE advertisement key carrying the two-byte
// variant-identifying prefix.
const ManufacturerDataKey uint16 = 0x08AA

// IdentifyVariant resolves a DeviceVariant from the raw bytes stored at
// ManufacturerDataKey. An absent/too-short blob is Undefined (not a
// candidate device at all); a present-but-unrecognized prefix is Unknown
// (still a candidate if a name filter matches).
func IdentifyVariant(manufacturerData []byte) DeviceVariant {
	if len(manufacturerData) < 2 {
		return VariantUndefined
	}
	switch {
	case manufacturerData[0] == 0x12 && manufacturerData[1] == 0x00:
		return VariantOsmoAction3
	case manufacturerData[0] == 0x14 && manufacturerData[1] == 0x00:
		return VariantOsmoAction4
	case manufacturerData[0] == 0x15 && manufacturerData[1] == 0x00:
		return VariantOsmoAction5Pro
	case manufacturerData[0] == 0x20 && manufacturerData[1] == 0x00:
		return VariantOsmoPocket3
	default:
		return VariantUnknown
	}
}

// DeviceKindByte returns the "device kind" byte used in ConfigureStreaming
// payloads.
func DeviceKindByte(v DeviceVariant) byte {
	if v == VariantOsmoAction5Pro {
		return 0x2E
	}
	return 0x2A
}

// StabilizationAnchorByte returns the model-dependent anchor byte used in
// Configure (stabilization) payloads.
func StabilizationAnchorByte(v DeviceVariant) byte {
	if v == VariantOsmoAction5Pro {
		return 0x1A
	}
	return 0x08
}

// Resolution is a closed set of supported streaming resolutions.
type Resolution byte

const (
	Resolution480p  Resolution = 0x47
	Resolution720p  Resolution = 0x04
	Resolution1080p Resolution = 0x0A
)

// FPS is a closed set of supported frame rates.
type FPS byte

const (
	FPS25 FPS = 0x02
	FPS30 FPS = 0x03
)

// Stabilization is a closed set of image-stabilization modes.
type Stabilization byte

const (
	StabilizationOff              Stabilization = 0
	StabilizationRockSteady       Stabilization = 1
	StabilizationHorizonSteady    Stabilization = 2
	StabilizationRockSteadyPlus   Stabilization = 3
	StabilizationHorizonBalancing Stabilization = 4
)
