package sessionstore

import (
	"testing"

	"github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDevice(t *testing.T) {
	store := NewSessionStore()

	first := bluetooth.DeviceData{Address: bluetooth.MustParseMAC("AA:BB:CC:DD:EE:FF"), Name: "Meter", RSSI: -60}
	second := bluetooth.DeviceData{Address: bluetooth.MustParseMAC("11:22:33:44:55:66"), RadioClass: bluetooth.RadioLowEnergy}

	assert.True(t, store.AddDevice(first))
	assert.True(t, store.AddDevice(second))

	// A repeated advertisement refreshes the device but keeps its known name.
	assert.False(t, store.AddDevice(bluetooth.DeviceData{Address: first.Address, RSSI: -40}))

	dev, ok := store.Device(first.Address)
	require.True(t, ok)
	assert.Equal(t, "Meter", dev.Name)
	assert.Equal(t, int16(-40), dev.RSSI)

	devices := store.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, first.Address, devices[0].Address)
	assert.Equal(t, second.Address, devices[1].Address)
	assert.Equal(t, 2, store.DeviceCount())

	store.ClearDevices()
	assert.Empty(t, store.Devices())

	_, ok = store.Device(first.Address)
	assert.False(t, ok)
}

func TestAddService(t *testing.T) {
	store := NewSessionStore()
	addr := bluetooth.MustParseMAC("AA:BB:CC:DD:EE:FF")

	assert.True(t, store.AddService(bluetooth.ServiceData{Address: addr, UUID: bluetooth.UUID16(0x1200)}))
	assert.True(t, store.AddService(bluetooth.ServiceData{Address: addr, UUID: bluetooth.SerialPortUUID}))
	assert.False(t, store.AddService(bluetooth.ServiceData{Address: addr, UUID: bluetooth.SerialPortUUID}))

	services := store.Services(addr)
	require.Len(t, services, 2)
	assert.Equal(t, bluetooth.SerialPortUUID, services[1].UUID)

	services[0].Name = "changed"
	assert.Empty(t, store.Services(addr)[0].Name)

	store.ClearServices(addr)
	assert.Empty(t, store.Services(addr))
}
