package gatt

import (
	"context"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"

	api "github.com/bluetuith-org/bluelink/api/bluetooth"
)

// assumedProperties are reported for every resolved characteristic when no
// describer is set. The adapter does not expose characteristic properties
// or descriptors.
const assumedProperties = api.PropertyRead | api.PropertyWrite | api.PropertyWriteNoResponse | api.PropertyNotify

func fromTinyUUID(u bluetooth.UUID) (uuid.UUID, error) {
	id, err := uuid.Parse(u.String())
	if err != nil {
		return uuid.Nil, fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "gatt-parse-uuid", "uuid", u.String()),
			ftag.With(ftag.InvalidArgument),
			fmsg.With("Invalid UUID reported by the adapter"),
		)
	}

	return id, nil
}

// describeCharacteristic returns the characteristic description of a resolved characteristic.
func describeCharacteristic(id uuid.UUID) api.Characteristic {
	return api.Characteristic{
		UUID:        id,
		Properties:  assumedProperties,
		Descriptors: []api.Descriptor{{UUID: api.ClientCharacteristicConfigurationUUID}},
	}
}

// notificationsEnabled reports whether a client characteristic configuration
// value enables notifications or indications.
func notificationsEnabled(value []byte) bool {
	return len(value) > 0 && value[0]&0x03 != 0
}

// scanDevice converts an advertisement to a device. Devices whose address is
// not a MAC address are skipped.
func scanDevice(address, name string, rssi int16) (api.DeviceData, bool) {
	mac, err := api.ParseMAC(strings.TrimSpace(address))
	if err != nil {
		return api.DeviceData{}, false
	}

	return api.DeviceData{
		Address:    mac,
		Name:       name,
		RadioClass: api.RadioLowEnergy,
		RSSI:       rssi,
	}, true
}
