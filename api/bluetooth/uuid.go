package bluetooth

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/google/uuid"
)

// BaseUUID is the Bluetooth base UUID that 16 and 32-bit UUIDs are expanded into.
var BaseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

var (
	// SerialPortUUID identifies the Serial Port Profile, used for RFCOMM serial emulation.
	SerialPortUUID = UUID16(0x1101)

	// ClientCharacteristicConfigurationUUID identifies the descriptor that enables
	// notifications or indications on a characteristic.
	ClientCharacteristicConfigurationUUID = UUID16(0x2902)
)

var (
	// EnableNotificationValue is written to a CCCD to enable notifications.
	EnableNotificationValue = []byte{0x01, 0x00}

	// DisableNotificationValue is written to a CCCD to disable notifications and indications.
	DisableNotificationValue = []byte{0x00, 0x00}
)

var wellKnownServices = map[uuid.UUID]string{
	UUID16(0x1101): "Serial Port",
	UUID16(0x1103): "Dialup Networking",
	UUID16(0x1105): "OBEX Object Push",
	UUID16(0x1106): "OBEX File Transfer",
	UUID16(0x1108): "Headset",
	UUID16(0x110a): "Audio Source",
	UUID16(0x110b): "Audio Sink",
	UUID16(0x110c): "A/V Remote Control Target",
	UUID16(0x110e): "A/V Remote Control",
	UUID16(0x1112): "Headset AG",
	UUID16(0x1115): "PANU",
	UUID16(0x1116): "NAP",
	UUID16(0x111e): "Handsfree",
	UUID16(0x111f): "Handsfree Audio Gateway",
	UUID16(0x1124): "Human Interface Device",
	UUID16(0x112f): "Phonebook Access Server",
	UUID16(0x1200): "PnP Information",
	UUID16(0x1800): "Generic Access",
	UUID16(0x1801): "Generic Attribute",
	UUID16(0x180a): "Device Information",
	UUID16(0x180f): "Battery Service",
}

// UUID16 expands a 16-bit Bluetooth UUID into its 128-bit form.
func UUID16(short uint16) uuid.UUID {
	return UUID32(uint32(short))
}

// UUID32 expands a 32-bit Bluetooth UUID into its 128-bit form.
func UUID32(short uint32) uuid.UUID {
	u := BaseUUID
	binary.BigEndian.PutUint32(u[:4], short)

	return u
}

// ShortUUID returns the 16-bit form of u, if u is derived from the base UUID
// and fits into 16 bits.
func ShortUUID(u uuid.UUID) (uint16, bool) {
	if [12]byte(u[4:]) != [12]byte(BaseUUID[4:]) {
		return 0, false
	}

	v := binary.BigEndian.Uint32(u[:4])
	if v > 0xffff {
		return 0, false
	}

	return uint16(v), true
}

// ParseUUID parses a 16-bit ("fff0", "0xFFF0"), 32-bit ("0000fff0") or a full
// 128-bit UUID string.
func ParseUUID(s string) (uuid.UUID, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")

	var (
		u   uuid.UUID
		err error
	)

	switch len(trimmed) {
	case 4, 8:
		var short uint64
		short, err = strconv.ParseUint(trimmed, 16, 32)
		u = UUID32(uint32(short))

	default:
		u, err = uuid.Parse(trimmed)
	}

	if err != nil {
		return uuid.Nil, fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "parse-uuid", "uuid", s),
			ftag.With(ftag.InvalidArgument),
			fmsg.With("Invalid Bluetooth UUID"),
		)
	}

	return u, nil
}

// ServiceName returns a display name for well-known service UUIDs.
// If the UUID is not known, its string form is returned.
func ServiceName(u uuid.UUID) string {
	if name, ok := wellKnownServices[u]; ok {
		return name
	}

	if short, ok := ShortUUID(u); ok {
		return fmt.Sprintf("0x%04X", short)
	}

	return u.String()
}
