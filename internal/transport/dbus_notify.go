package transport

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

// dbusNotifier delivers GATT notification bytes straight from BlueZ over
// D-Bus, bypassing tinygo.org/x/bluetooth's own notification path — which,
// on this stack, takes exclusive ownership of the notification data and
// starves any other consumer. AcquireNotify is tried first (it hands back
// a file descriptor the kernel writes notification payloads into
// directly); StartNotify plus the PropertiesChanged signal is the
// fallback when AcquireNotify is unavailable.
type dbusNotifier struct {
	conn *dbus.Conn

	mu        sync.Mutex
	charPaths map[string]dbus.ObjectPath
	notifyFDs map[string]int
	out       chan []byte
	stopCh    chan struct{}
	running   bool
}

func newDBusNotifier() (*dbusNotifier, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("transport: connect system bus: %w", err)
	}
	return &dbusNotifier{
		conn:      conn,
		charPaths: make(map[string]dbus.ObjectPath),
		notifyFDs: make(map[string]int),
		out:       make(chan []byte, 64),
		stopCh:    make(chan struct{}),
	}, nil
}

// findCharacteristicPath locates the D-Bus object path for a GATT
// characteristic belonging to deviceAddr by UUID substring.
func (n *dbusNotifier) findCharacteristicPath(deviceAddr, uuidSubstr string) (dbus.ObjectPath, error) {
	devicePathPart := strings.ReplaceAll(strings.ToUpper(deviceAddr), ":", "_")
	want := strings.ToLower(uuidSubstr)

	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	obj := n.conn.Object("org.bluez", "/")
	if err := obj.Call("org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&objects); err != nil {
		return "", fmt.Errorf("transport: list managed objects: %w", err)
	}

	for path, ifaces := range objects {
		if !strings.Contains(string(path), devicePathPart) {
			continue
		}
		iface, ok := ifaces["org.bluez.GattCharacteristic1"]
		if !ok {
			continue
		}
		uuidVar, ok := iface["UUID"]
		if !ok {
			continue
		}
		uuid, _ := uuidVar.Value().(string)
		if strings.Contains(strings.ToLower(uuid), want) {
			return path, nil
		}
	}
	return "", nil
}

// register records a characteristic path under name (e.g. "fff4") so
// enable can subscribe to it.
func (n *dbusNotifier) register(name string, path dbus.ObjectPath) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.charPaths[name] = path
}

// enable subscribes to every registered characteristic and starts
// delivering payloads on Notifications.
func (n *dbusNotifier) enable() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for name, path := range n.charPaths {
		obj := n.conn.Object("org.bluez", path)

		var fd dbus.UnixFD
		var mtu uint16
		call := obj.Call("org.bluez.GattCharacteristic1.AcquireNotify", 0, map[string]dbus.Variant{})
		if call.Err != nil {
			call = obj.Call("org.bluez.GattCharacteristic1.StartNotify", 0)
			if call.Err != nil && !strings.Contains(call.Err.Error(), "Already notifying") {
				log.Printf("[transport] StartNotify failed for %s: %v", name, call.Err)
			}
			continue
		}
		if err := call.Store(&fd, &mtu); err != nil {
			log.Printf("[transport] AcquireNotify result decode failed for %s: %v", name, err)
			continue
		}
		n.notifyFDs[name] = int(fd)
	}

	return nil
}

// propertiesChangedChan subscribes the connection to PropertiesChanged and
// returns the channel it arrives on.
func propertiesChangedChan(conn *dbus.Conn) chan *dbus.Signal {
	ch := make(chan *dbus.Signal, 64)
	conn.Signal(ch)
	matchRule := "type='signal',interface='org.freedesktop.DBus.Properties',member='PropertiesChanged'"
	conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule)
	return ch
}

// start launches the FD readers (for AcquireNotify characteristics) and
// the PropertiesChanged signal loop (for StartNotify fallback ones).
func (n *dbusNotifier) start(signals chan *dbus.Signal) {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return
	}
	n.running = true
	for name, fd := range n.notifyFDs {
		go n.readFD(name, fd)
	}
	n.mu.Unlock()

	go n.processSignals(signals)
}

func (n *dbusNotifier) readFD(name string, fd int) {
	file := os.NewFile(uintptr(fd), "ble-notify-"+name)
	if file == nil {
		return
	}
	defer file.Close()

	buf := make([]byte, 512)
	for {
		select {
		case <-n.stopCh:
			return
		default:
		}
		count, err := file.Read(buf)
		if err != nil {
			return
		}
		if count == 0 {
			continue
		}
		payload := make([]byte, count)
		copy(payload, buf[:count])
		select {
		case n.out <- payload:
		case <-n.stopCh:
			return
		}
	}
}

func (n *dbusNotifier) processSignals(signals chan *dbus.Signal) {
	for {
		select {
		case <-n.stopCh:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			n.handleSignal(sig)
		}
	}
}

func (n *dbusNotifier) handleSignal(sig *dbus.Signal) {
	if sig.Name != "org.freedesktop.DBus.Properties.PropertiesChanged" || len(sig.Body) < 2 {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}
	valueVar, ok := changed["Value"]
	if !ok {
		return
	}
	payload := extractBytes(valueVar.Value())
	if payload == nil {
		return
	}
	select {
	case n.out <- payload:
	case <-n.stopCh:
	}
}

// extractBytes normalizes the two shapes BlueZ uses on the wire for a
// byte-array variant: a real []byte, or (more commonly over D-Bus) a
// []interface{} of boxed bytes.
func extractBytes(v interface{}) []byte {
	switch val := v.(type) {
	case []byte:
		return val
	case []interface{}:
		out := make([]byte, 0, len(val))
		for _, e := range val {
			switch b := e.(type) {
			case byte:
				out = append(out, b)
			default:
				return nil
			}
		}
		return out
	default:
		return nil
	}
}

func (n *dbusNotifier) notifications() <-chan []byte { return n.out }

func (n *dbusNotifier) stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	n.mu.Unlock()
	close(n.stopCh)
}

// writeCCCD writes raw bytes to a characteristic's Client Characteristic
// Configuration descriptor, the mechanism the pairing subsystem uses to
// kick off the handshake out-of-band from the normal write path.
func (n *dbusNotifier) writeCCCD(name string, data []byte) error {
	n.mu.Lock()
	path, ok := n.charPaths[name]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: characteristic %q not registered", name)
	}

	var descPaths map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	obj := n.conn.Object("org.bluez", dbus.ObjectPath("/"))
	if err := obj.Call("org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&descPaths); err != nil {
		return fmt.Errorf("transport: list managed objects: %w", err)
	}

	for descPath, ifaces := range descPaths {
		if !strings.HasPrefix(string(descPath), string(path)) {
			continue
		}
		iface, ok := ifaces["org.bluez.GattDescriptor1"]
		if !ok {
			continue
		}
		uuidVar, ok := iface["UUID"]
		if !ok {
			continue
		}
		uuid, _ := uuidVar.Value().(string)
		if !strings.Contains(strings.ToLower(uuid), "2902") {
			continue
		}
		descObj := n.conn.Object("org.bluez", descPath)
		call := descObj.Call("org.bluez.GattDescriptor1.WriteValue", 0, data, map[string]dbus.Variant{})
		if call.Err != nil {
			return fmt.Errorf("transport: write CCCD: %w", call.Err)
		}
		return nil
	}
	return fmt.Errorf("transport: CCCD descriptor not found under %s", path)
}
