//go:build linux

package linux

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
)

func TestDevicePathRoundTrip(t *testing.T) {
	address := api.MustParseMAC("AA:BB:CC:DD:EE:01")

	path := devicePath("/org/bluez/hci0", address)
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_01"), path)

	parsed, ok := macFromPath(path)
	require.True(t, ok)
	assert.Equal(t, address, parsed)
}

func TestMacFromPathInvalid(t *testing.T) {
	for _, path := range []dbus.ObjectPath{
		"/org/bluez/hci0",
		"/org/bluez/hci0/dev_AA_BB",
		"/org/bluez/hci0/dev_ZZ_BB_CC_DD_EE_01",
	} {
		_, ok := macFromPath(path)
		assert.False(t, ok, path)
	}
}

func TestDeviceFromProperties(t *testing.T) {
	path := dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_01")

	t.Run("classic", func(t *testing.T) {
		device, ok := deviceFromProperties(path, map[string]dbus.Variant{
			"Address": dbus.MakeVariant("AA:BB:CC:DD:EE:01"),
			"Alias":   dbus.MakeVariant("Alias"),
			"Name":    dbus.MakeVariant("HC-05"),
			"Class":   dbus.MakeVariant(uint32(0x1f00)),
			"RSSI":    dbus.MakeVariant(int16(-60)),
		})
		require.True(t, ok)

		assert.Equal(t, "HC-05", device.Name)
		assert.Equal(t, api.RadioClassic, device.RadioClass)
		assert.Equal(t, int16(-60), device.RSSI)
	})

	t.Run("low energy with alias and address from path", func(t *testing.T) {
		device, ok := deviceFromProperties(path, map[string]dbus.Variant{
			"Alias": dbus.MakeVariant("BT05"),
		})
		require.True(t, ok)

		assert.Equal(t, api.MustParseMAC("AA:BB:CC:DD:EE:01"), device.Address)
		assert.Equal(t, "BT05", device.Name)
		assert.True(t, device.IsLowEnergy())
	})

	t.Run("no address", func(t *testing.T) {
		_, ok := deviceFromProperties("/org/bluez/hci0", map[string]dbus.Variant{})
		assert.False(t, ok)
	})
}

func TestServiceUUIDs(t *testing.T) {
	services := serviceUUIDs(dbus.MakeVariant([]string{
		"00001101-0000-1000-8000-00805f9b34fb",
		"not-a-uuid",
		"0000110a-0000-1000-8000-00805f9b34fb",
	}))

	require.Len(t, services, 2)
	assert.Equal(t, api.SerialPortUUID, services[0].UUID)
}

func TestSocketErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errorkinds.SocketErrorCode
	}{
		{"unknown object", dbus.NewError("org.freedesktop.DBus.Error.UnknownObject", nil), errorkinds.SocketHostNotFound},
		{"not available", dbus.NewError("org.bluez.Error.NotAvailable", nil), errorkinds.SocketServiceNotFound},
		{"not supported", dbus.NewError("org.bluez.Error.NotSupported", nil), errorkinds.SocketUnsupportedProtocol},
		{"in progress", dbus.NewError("org.bluez.Error.InProgress", nil), errorkinds.SocketOperationError},
		{"host down", dbus.NewError("org.bluez.Error.Failed", []interface{}{"Host is down"}), errorkinds.SocketHostNotFound},
		{"refused", dbus.NewError("org.bluez.Error.Failed", []interface{}{"Connection refused"}), errorkinds.SocketServiceNotFound},
		{"failed", dbus.NewError("org.bluez.Error.Failed", []interface{}{"Input/output error"}), errorkinds.SocketNetworkError},
		{"wrapped", callError(*dbus.NewError("org.bluez.Error.NotReady", nil), "test"), errorkinds.SocketNetworkError},
		{"other", assert.AnError, errorkinds.SocketUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, socketErrorCode(tt.err))
		})
	}
}

func gattObjects() map[dbus.ObjectPath]map[string]map[string]dbus.Variant {
	dev := "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_01"

	return map[dbus.ObjectPath]map[string]map[string]dbus.Variant{
		dbus.ObjectPath(dev): {deviceIface: {"Address": dbus.MakeVariant("AA:BB:CC:DD:EE:01")}},
		dbus.ObjectPath(dev + "/service0010"): {gattServiceIface: {
			"UUID": dbus.MakeVariant("0000fff0-0000-1000-8000-00805f9b34fb"),
		}},
		dbus.ObjectPath(dev + "/service0010/char0011"): {gattCharIface: {
			"UUID":  dbus.MakeVariant("0000fff6-0000-1000-8000-00805f9b34fb"),
			"Flags": dbus.MakeVariant([]string{"read", "write-without-response", "write", "notify"}),
		}},
		dbus.ObjectPath(dev + "/service0010/char0011/desc0013"): {gattDescIface: {
			"UUID": dbus.MakeVariant("00002902-0000-1000-8000-00805f9b34fb"),
		}},
		dbus.ObjectPath(dev + "/service0010/char0014"): {gattCharIface: {
			"UUID":  dbus.MakeVariant("0000fff7-0000-1000-8000-00805f9b34fb"),
			"Flags": dbus.MakeVariant([]string{"write"}),
		}},
		// Same service on another device.
		"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_02/service0010": {gattServiceIface: {
			"UUID": dbus.MakeVariant("0000fff0-0000-1000-8000-00805f9b34fb"),
		}},
	}
}

func TestCharacteristicFromObjects(t *testing.T) {
	device := devicePath("/org/bluez/hci0", api.MustParseMAC("AA:BB:CC:DD:EE:01"))
	service := api.UUID16(0xFFF0)

	t.Run("notify characteristic", func(t *testing.T) {
		ch, ok := characteristicFromObjects(gattObjects(), device, service, api.UUID16(0xFFF6))
		require.True(t, ok)

		assert.Equal(t, api.UUID16(0xFFF6), ch.UUID)
		assert.True(t, ch.Properties.Has(api.PropertyRead|api.PropertyWrite|api.PropertyWriteNoResponse|api.PropertyNotify))
		assert.False(t, ch.Properties.Has(api.PropertyIndicate))

		_, ok = ch.Descriptor(api.ClientCharacteristicConfigurationUUID)
		assert.True(t, ok)
	})

	t.Run("write only characteristic", func(t *testing.T) {
		ch, ok := characteristicFromObjects(gattObjects(), device, service, api.UUID16(0xFFF7))
		require.True(t, ok)

		assert.Equal(t, api.PropertyWrite, ch.Properties)
		assert.Empty(t, ch.Descriptors)
	})

	t.Run("unknown characteristic", func(t *testing.T) {
		_, ok := characteristicFromObjects(gattObjects(), device, service, api.UUID16(0xFFF1))
		assert.False(t, ok)
	})

	t.Run("unknown service", func(t *testing.T) {
		_, ok := characteristicFromObjects(gattObjects(), device, api.UUID16(0x180F), api.UUID16(0xFFF6))
		assert.False(t, ok)
	})

	t.Run("service of another device", func(t *testing.T) {
		other := devicePath("/org/bluez/hci0", api.MustParseMAC("AA:BB:CC:DD:EE:02"))
		_, ok := characteristicFromObjects(gattObjects(), other, service, api.UUID16(0xFFF6))
		assert.False(t, ok)
	})
}

func TestPropertiesFromFlags(t *testing.T) {
	props := propertiesFromFlags(dbus.MakeVariant([]string{"indicate", "broadcast", "unknown-flag"}))
	assert.Equal(t, api.PropertyIndicate|api.PropertyBroadcast, props)

	assert.Zero(t, propertiesFromFlags(dbus.MakeVariant("read")))
}
