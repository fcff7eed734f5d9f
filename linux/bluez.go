//go:build linux

package linux

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	api "github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
)

const (
	bluezService        = "org.bluez"
	bluezPath           = dbus.ObjectPath("/org/bluez")
	adapterIface        = "org.bluez.Adapter1"
	deviceIface         = "org.bluez.Device1"
	profileIface        = "org.bluez.Profile1"
	gattServiceIface    = "org.bluez.GattService1"
	gattCharIface       = "org.bluez.GattCharacteristic1"
	gattDescIface       = "org.bluez.GattDescriptor1"
	profileManagerIface = "org.bluez.ProfileManager1"
	objManagerIface     = "org.freedesktop.DBus.ObjectManager"
	propsIface          = "org.freedesktop.DBus.Properties"
)

// devicePath returns the object path of a device on an adapter.
func devicePath(adapter dbus.ObjectPath, address api.MacAddress) dbus.ObjectPath {
	return adapter + "/dev_" + dbus.ObjectPath(strings.ReplaceAll(address.String(), ":", "_"))
}

// macFromPath extracts the device address from a device object path.
func macFromPath(p dbus.ObjectPath) (api.MacAddress, bool) {
	s := string(p)

	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return api.MacAddress{}, false
	}

	address, err := api.ParseMAC(strings.ReplaceAll(s[idx+5:], "_", ":"))
	if err != nil {
		return api.MacAddress{}, false
	}

	return address, true
}

// deviceFromProperties converts the Device1 properties of an object to a device.
// A device that advertises a Class of Device is reached over Classic.
func deviceFromProperties(path dbus.ObjectPath, props map[string]dbus.Variant) (api.DeviceData, bool) {
	var device api.DeviceData

	if v, ok := props["Address"]; ok {
		if s, ok := v.Value().(string); ok {
			if address, err := api.ParseMAC(s); err == nil {
				device.Address = address
			}
		}
	}
	if device.Address.IsNil() {
		address, ok := macFromPath(path)
		if !ok {
			return device, false
		}

		device.Address = address
	}

	for _, key := range []string{"Name", "Alias"} {
		if v, ok := props[key]; ok {
			if name, ok := v.Value().(string); ok && name != "" {
				device.Name = name
				break
			}
		}
	}

	if v, ok := props["RSSI"]; ok {
		if rssi, ok := v.Value().(int16); ok {
			device.RSSI = rssi
		}
	}

	device.RadioClass = api.RadioLowEnergy
	if _, ok := props["Class"]; ok {
		device.RadioClass = api.RadioClassic
	}

	return device, true
}

// serviceUUIDs returns the parsed UUIDs of a Device1 UUIDs property.
func serviceUUIDs(v dbus.Variant) []api.ServiceData {
	list, _ := v.Value().([]string)

	services := make([]api.ServiceData, 0, len(list))
	for _, s := range list {
		id, err := api.ParseUUID(s)
		if err != nil {
			continue
		}

		services = append(services, api.ServiceData{UUID: id})
	}

	return services
}

// socketErrorCode maps a BlueZ error to an RFCOMM socket error code.
func socketErrorCode(err error) errorkinds.SocketErrorCode {
	var dbusErr dbus.Error
	if !errors.As(err, &dbusErr) {
		var dbusErrPtr *dbus.Error
		if !errors.As(err, &dbusErrPtr) {
			return errorkinds.SocketUnknown
		}

		dbusErr = *dbusErrPtr
	}

	switch dbusErr.Name {
	case "org.freedesktop.DBus.Error.UnknownObject", "org.bluez.Error.DoesNotExist":
		return errorkinds.SocketHostNotFound

	case "org.bluez.Error.NotAvailable":
		return errorkinds.SocketServiceNotFound

	case "org.bluez.Error.NotSupported":
		return errorkinds.SocketUnsupportedProtocol

	case "org.bluez.Error.InvalidArguments", "org.bluez.Error.AlreadyConnected", "org.bluez.Error.InProgress":
		return errorkinds.SocketOperationError

	case "org.bluez.Error.NotReady":
		return errorkinds.SocketNetworkError

	case "org.bluez.Error.Failed":
		msg := strings.ToLower(dbusErr.Error())
		switch {
		case strings.Contains(msg, "host is down"), strings.Contains(msg, "no route"):
			return errorkinds.SocketHostNotFound

		case strings.Contains(msg, "refused"), strings.Contains(msg, "not found"):
			return errorkinds.SocketServiceNotFound

		case strings.Contains(msg, "reset by peer"):
			return errorkinds.SocketRemoteHostClosed
		}

		return errorkinds.SocketNetworkError
	}

	return errorkinds.SocketUnknown
}

// callError wraps the error of a method call on a BlueZ object.
func callError(err error, at string, kv ...string) error {
	return fault.Wrap(err,
		fctx.With(context.Background(), append([]string{"error_at", at}, kv...)...),
		ftag.With(ftag.Internal),
		fmsg.With("BlueZ method call failed"),
	)
}

// characteristicFlags maps GattCharacteristic1 flags to property bits.
var characteristicFlags = map[string]api.CharacteristicProperties{
	"broadcast":                   api.PropertyBroadcast,
	"read":                        api.PropertyRead,
	"write-without-response":      api.PropertyWriteNoResponse,
	"write":                       api.PropertyWrite,
	"notify":                      api.PropertyNotify,
	"indicate":                    api.PropertyIndicate,
	"authenticated-signed-writes": api.PropertyAuthenticatedWrites,
	"extended-properties":         api.PropertyExtended,
}

func propertiesFromFlags(v dbus.Variant) api.CharacteristicProperties {
	flags, _ := v.Value().([]string)

	var props api.CharacteristicProperties
	for _, flag := range flags {
		props |= characteristicFlags[flag]
	}

	return props
}

// characteristicFromObjects describes a characteristic of a service on a
// device from the GATT objects that BlueZ exports. If the service or the
// characteristic has several instances, the first one by path is used.
func characteristicFromObjects(
	objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant,
	device dbus.ObjectPath,
	service, characteristic uuid.UUID,
) (api.Characteristic, bool) {
	var servicePath, charPath dbus.ObjectPath

	for _, path := range sortedPaths(objects) {
		props, ok := objects[path][gattServiceIface]
		if ok && childOf(path, device) && uuidProperty(props) == service {
			servicePath = path
			break
		}
	}
	if servicePath == "" {
		return api.Characteristic{}, false
	}

	ch := api.Characteristic{UUID: characteristic}
	for _, path := range sortedPaths(objects) {
		props, ok := objects[path][gattCharIface]
		if ok && childOf(path, servicePath) && uuidProperty(props) == characteristic {
			charPath = path
			ch.Properties = propertiesFromFlags(props["Flags"])
			break
		}
	}
	if charPath == "" {
		return api.Characteristic{}, false
	}

	for _, path := range sortedPaths(objects) {
		props, ok := objects[path][gattDescIface]
		if !ok || !childOf(path, charPath) {
			continue
		}

		if id := uuidProperty(props); id != uuid.Nil {
			ch.Descriptors = append(ch.Descriptors, api.Descriptor{UUID: id})
		}
	}

	return ch, true
}

func sortedPaths(objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant) []dbus.ObjectPath {
	paths := make([]dbus.ObjectPath, 0, len(objects))
	for path := range objects {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	return paths
}

func childOf(path, parent dbus.ObjectPath) bool {
	return strings.HasPrefix(string(path), string(parent)+"/")
}

func uuidProperty(props map[string]dbus.Variant) uuid.UUID {
	s, _ := props["UUID"].Value().(string)

	id, err := api.ParseUUID(s)
	if err != nil {
		return uuid.Nil
	}

	return id
}
