package transport

import (
	"context"
	"fmt"
	"log"
	"strings"

	"tinygo.org/x/bluetooth"
)

// BLEDuplex is the concrete Duplex + PairingChannel backed by a real BLE
// connection: tinygo.org/x/bluetooth for connecting and discovering
// services/characteristics, and a direct BlueZ D-Bus notification
// workaround for actually receiving notification payloads (see
// dbus_notify.go for why).
type BLEDuplex struct {
	adapter *bluetooth.Adapter
	address bluetooth.Address

	device    bluetooth.Device
	sender    bluetooth.DeviceCharacteristic
	hasSender bool

	notifier *dbusNotifier
}

// NewBLEDuplex builds a BLEDuplex for the given adapter and address. The
// returned value is not yet connected — call Connect.
func NewBLEDuplex(adapter *bluetooth.Adapter, address bluetooth.Address) *BLEDuplex {
	return &BLEDuplex{adapter: adapter, address: address}
}

// Connect performs the full bring-up sequence: BLE connect, service and
// characteristic discovery, and D-Bus notification subscription for the
// Receiver (0xFFF4) and PairingRequestor (0xFFF3) characteristics. It
// returns an error unless Receiver, Sender (0xFFF5) and PairingRequestor
// have all been found; a nil return is the point a Session can safely be
// Bound.
func (d *BLEDuplex) Connect(ctx context.Context) error {
	log.Printf("[transport] connecting to %s", d.address.String())
	device, err := d.adapter.Connect(d.address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("transport: ble connect: %w", err)
	}
	d.device = device

	services, err := device.DiscoverServices(nil)
	if err != nil {
		return fmt.Errorf("transport: discover services: %w", err)
	}

	notifier, err := newDBusNotifier()
	if err != nil {
		return fmt.Errorf("transport: dbus notifier: %w", err)
	}
	d.notifier = notifier

	var foundReceiver, foundSender, foundPairing bool
	for _, service := range services {
		chars, err := service.DiscoverCharacteristics(nil)
		if err != nil {
			log.Printf("[transport] characteristic discovery failed for %s: %v", service.UUID(), err)
			continue
		}
		for _, c := range chars {
			uuid := strings.ToLower(c.UUID().String())
			switch {
			case strings.Contains(uuid, "fff4"):
				foundReceiver = true
			case strings.Contains(uuid, "fff5"):
				d.sender = c
				d.hasSender = true
				foundSender = true
			case strings.Contains(uuid, "fff3"):
				foundPairing = true
			}
		}
	}

	if !foundSender {
		return fmt.Errorf("transport: FFF5 write characteristic not found")
	}
	if !foundReceiver {
		return fmt.Errorf("transport: FFF4 notify characteristic not found on %s", d.address.String())
	}
	if !foundPairing {
		return fmt.Errorf("transport: FFF3 pairing characteristic not found on %s", d.address.String())
	}
	if path, err := notifier.findCharacteristicPath(d.address.String(), "fff4"); err != nil {
		log.Printf("[transport] FFF4 D-Bus path lookup failed: %v", err)
	} else if path != "" {
		notifier.register("fff4", path)
	}
	if path, err := notifier.findCharacteristicPath(d.address.String(), "fff3"); err != nil {
		log.Printf("[transport] FFF3 D-Bus path lookup failed: %v", err)
	} else if path != "" {
		notifier.register("fff3", path)
	}

	if err := notifier.enable(); err != nil {
		return fmt.Errorf("transport: enable notifications: %w", err)
	}
	notifier.start(propertiesChangedChan(notifier.conn))

	return nil
}

// Write implements transport.Duplex.
func (d *BLEDuplex) Write(ctx context.Context, frame []byte, withResponse bool) error {
	if !d.hasSender {
		return fmt.Errorf("transport: sender characteristic not bound")
	}
	var err error
	if withResponse {
		_, err = d.sender.Write(frame)
	} else {
		_, err = d.sender.WriteWithoutResponse(frame)
	}
	if err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Notifications implements transport.Duplex.
func (d *BLEDuplex) Notifications() <-chan []byte { return d.notifier.notifications() }

// WriteRaw implements transport.PairingChannel: it writes data to the
// Receiver (0xFFF4) characteristic's CCCD, the out-of-band trigger the
// device expects at the start of pairing. PairingRequestor (0xFFF3) is
// discovered and logged for parity with the device's three-characteristic
// handshake but is never itself written to.
func (d *BLEDuplex) WriteRaw(ctx context.Context, b []byte) error {
	return d.notifier.writeCCCD("fff4", b)
}

// Disconnect tears down the BLE connection and the notifier.
func (d *BLEDuplex) Disconnect() error {
	if d.notifier != nil {
		d.notifier.stop()
	}
	return d.device.Disconnect()
}
