// Package sessionstore holds the devices and services discovered during a session.
package sessionstore

import (
	"slices"
	"sync/atomic"

	"github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/puzpuzpuz/xsync/v3"
)

type deviceEntry struct {
	seq    uint64
	device bluetooth.DeviceData
}

// SessionStore holds discovered devices and services, keyed by device address.
type SessionStore struct {
	devices  *xsync.MapOf[bluetooth.MacAddress, deviceEntry]
	services *xsync.MapOf[bluetooth.MacAddress, []bluetooth.ServiceData]

	seq atomic.Uint64
}

// NewSessionStore returns a new, empty store.
func NewSessionStore() SessionStore {
	return SessionStore{
		devices:  xsync.NewMapOf[bluetooth.MacAddress, deviceEntry](),
		services: xsync.NewMapOf[bluetooth.MacAddress, []bluetooth.ServiceData](),
	}
}

// AddDevice adds a device to the store. If a device with the same address
// exists, its data is refreshed and false is returned.
func (s *SessionStore) AddDevice(device bluetooth.DeviceData) bool {
	added := false

	s.devices.Compute(device.Address, func(old deviceEntry, loaded bool) (deviceEntry, bool) {
		if !loaded {
			added = true
			return deviceEntry{seq: s.seq.Add(1), device: device}, false
		}

		if device.Name == "" {
			device.Name = old.device.Name
		}
		old.device = device

		return old, false
	})

	return added
}

// Device returns a device from the store.
func (s *SessionStore) Device(address bluetooth.MacAddress) (bluetooth.DeviceData, bool) {
	entry, ok := s.devices.Load(address)

	return entry.device, ok
}

// Devices returns all the devices in the store, in discovery order.
func (s *SessionStore) Devices() []bluetooth.DeviceData {
	entries := make([]deviceEntry, 0, s.devices.Size())
	s.devices.Range(func(_ bluetooth.MacAddress, entry deviceEntry) bool {
		entries = append(entries, entry)
		return true
	})

	slices.SortFunc(entries, func(a, b deviceEntry) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}

		return 0
	})

	devices := make([]bluetooth.DeviceData, 0, len(entries))
	for _, entry := range entries {
		devices = append(devices, entry.device)
	}

	return devices
}

// DeviceCount returns the number of devices in the store.
func (s *SessionStore) DeviceCount() int {
	return s.devices.Size()
}

// AddService adds a service of a device to the store.
// Duplicate service UUIDs are ignored and false is returned.
func (s *SessionStore) AddService(service bluetooth.ServiceData) bool {
	added := false

	s.services.Compute(service.Address, func(old []bluetooth.ServiceData, _ bool) ([]bluetooth.ServiceData, bool) {
		for _, svc := range old {
			if svc.UUID == service.UUID {
				return old, false
			}
		}

		added = true

		return append(slices.Clip(old), service), false
	})

	return added
}

// Services returns the services of a device, in discovery order.
func (s *SessionStore) Services(address bluetooth.MacAddress) []bluetooth.ServiceData {
	services, _ := s.services.Load(address)

	return slices.Clone(services)
}

// ClearServices removes the services of a device.
func (s *SessionStore) ClearServices(address bluetooth.MacAddress) {
	s.services.Delete(address)
}

// ClearDevices removes all devices and services from the store.
func (s *SessionStore) ClearDevices() {
	s.devices.Clear()
	s.services.Clear()
}
