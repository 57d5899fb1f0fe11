// Package discovery implements BLE scanning
// for candidate DJI devices and their model identification.
package discovery

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"djistream/internal/djiproto"
)

// DiscoveredDevice is one candidate found during a scan.
type DiscoveredDevice struct {
	Address      bluetooth.Address
	Name         string
	Variant      djiproto.DeviceVariant
	RSSI         int
	DiscoveredAt time.Time
	LastSeen     time.Time
}

// ScanOptions narrows a scan to devices matching an address or name
// filter. Both are optional; an empty filter matches everything. Modeled
// on ConnectionOptions.deviceAddrFilter/deviceNameFilter in the original
// implementation this package was built from.
type ScanOptions struct {
	AddressFilter string
	NameFilter    string
	Timeout       time.Duration
}

// MatchesNameFilter reports whether name satisfies filter. An empty filter
// matches anything; otherwise the match is a case-insensitive substring
// check, mirroring the original's filter semantics.
func MatchesNameFilter(name, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToUpper(name), strings.ToUpper(filter))
}

// isCandidateName is used as a fallback when a device advertises no
// manufacturer data at all: a name that merely looks like a DJI product.
func isCandidateName(name string) bool {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper == "" {
		return false
	}
	return strings.Contains(upper, "DJI") ||
		strings.Contains(upper, "OSMO") ||
		strings.Contains(upper, "ACTION") ||
		strings.Contains(upper, "POCKET")
}

// Scanner discovers DJI devices over BLE using tinygo.org/x/bluetooth.
type Scanner struct {
	adapter *bluetooth.Adapter

	mu       sync.RWMutex
	devices  map[string]*DiscoveredDevice
	scanning bool
	stopCh   chan struct{}
}

// NewScanner builds a Scanner over the host's default BLE adapter.
func NewScanner() *Scanner {
	return &Scanner{
		adapter: bluetooth.DefaultAdapter,
		devices: make(map[string]*DiscoveredDevice),
	}
}

// Devices returns a snapshot of everything discovered so far.
func (s *Scanner) Devices() []*DiscoveredDevice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*DiscoveredDevice, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	return out
}

// Start begins scanning and blocks until opts.Timeout elapses, ctx is
// canceled, or Stop is called — whichever comes first.
func (s *Scanner) Start(ctx context.Context, opts ScanOptions) error {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return fmt.Errorf("discovery: scan already in progress")
	}
	s.scanning = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
	}()

	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("discovery: enable adapter: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			s.process(result, opts)
		})
	}()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		s.adapter.StopScan()
		return ctx.Err()
	case <-s.stopCh:
		s.adapter.StopScan()
		return nil
	case <-timer.C:
		s.adapter.StopScan()
		return nil
	case err := <-done:
		return err
	}
}

// Stop ends an in-progress scan. Safe to call when no scan is running.
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.scanning {
		return
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

func (s *Scanner) process(result bluetooth.ScanResult, opts ScanOptions) {
	name := result.LocalName()
	addr := result.Address.String()
	if addr == "" {
		return
	}

	if opts.AddressFilter != "" && !strings.EqualFold(addr, opts.AddressFilter) {
		return
	}

	variant := djiproto.VariantUndefined
	for _, md := range result.AdvertisementPayload.ManufacturerData() {
		if md.CompanyID == djiproto.ManufacturerDataKey {
			variant = djiproto.IdentifyVariant(md.Data)
			break
		}
	}

	if variant == djiproto.VariantUndefined {
		if !isCandidateName(name) {
			return
		}
		variant = djiproto.VariantUnknown
	}

	if !MatchesNameFilter(name, opts.NameFilter) {
		return
	}

	s.add(&DiscoveredDevice{
		Address: result.Address,
		Name:    name,
		Variant: variant,
		RSSI:    int(result.RSSI),
	})
}

func (s *Scanner) add(d *DiscoveredDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	id := d.Address.String()
	if existing, ok := s.devices[id]; ok {
		existing.Name = d.Name
		existing.Variant = d.Variant
		existing.RSSI = d.RSSI
		existing.LastSeen = now
		return
	}
	d.DiscoveredAt = now
	d.LastSeen = now
	s.devices[id] = d
	log.Printf("[discovery] found %s (%s) rssi=%d", d.Name, d.Variant, d.RSSI)
}
