package djidevice

import (
	"fmt"

	"djistream/internal/djiproto"
)

// configurer implements a stateless push of
// image-stabilization settings. It never waits for a reply; inbound
// Configure frames are logged only.
type configurer struct {
	sender  frameSender
	variant djiproto.DeviceVariant
}

func newConfigurer(sender frameSender, variant djiproto.DeviceVariant) *configurer {
	return &configurer{sender: sender, variant: variant}
}

func (c *configurer) setImageStabilization(mode djiproto.Stabilization) {
	c.sender.log(fmt.Sprintf("configurer: setting image stabilization to %d", mode))

	payload := []byte{0x01, 0x01, djiproto.StabilizationAnchorByte(c.variant), 0x00, 0x01, byte(mode)}
	if err := c.sender.sendFrame(djiproto.Frame{
		Subsystem:   djiproto.SubsystemConfigurer,
		MessageID:   0,
		MessageType: djiproto.MessageTypeConfigure,
		Payload:     payload,
	}, true); err != nil {
		c.sender.log(fmt.Sprintf("configurer: error: %v", err))
	}
}

func (c *configurer) handleIncoming(f djiproto.Frame) {
	if f.Subsystem == djiproto.SubsystemConfigurer && f.MessageType == djiproto.MessageTypeConfigure {
		c.sender.log(fmt.Sprintf("configurer: received result %X", f.Payload))
	}
}
