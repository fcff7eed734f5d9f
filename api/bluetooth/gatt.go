package bluetooth

import "github.com/google/uuid"

// CharacteristicProperties holds the GATT characteristic property bits.
type CharacteristicProperties uint8

const (
	PropertyBroadcast           CharacteristicProperties = 0x01
	PropertyRead                CharacteristicProperties = 0x02
	PropertyWriteNoResponse     CharacteristicProperties = 0x04
	PropertyWrite               CharacteristicProperties = 0x08
	PropertyNotify              CharacteristicProperties = 0x10
	PropertyIndicate            CharacteristicProperties = 0x20
	PropertyAuthenticatedWrites CharacteristicProperties = 0x40
	PropertyExtended            CharacteristicProperties = 0x80
)

// Has reports whether all the bits in p are set.
func (c CharacteristicProperties) Has(p CharacteristicProperties) bool {
	return c&p == p
}

// Descriptor describes a characteristic descriptor.
type Descriptor struct {
	UUID uuid.UUID
}

// IsValid reports whether the descriptor was resolved.
func (d Descriptor) IsValid() bool {
	return d.UUID != uuid.Nil
}

// Characteristic describes a resolved GATT characteristic.
// The zero value is an invalid characteristic.
type Characteristic struct {
	UUID        uuid.UUID
	Properties  CharacteristicProperties
	Descriptors []Descriptor
}

// IsValid reports whether the characteristic was resolved.
func (c Characteristic) IsValid() bool {
	return c.UUID != uuid.Nil
}

// Descriptor looks up a descriptor of the characteristic.
func (c Characteristic) Descriptor(id uuid.UUID) (Descriptor, bool) {
	for _, d := range c.Descriptors {
		if d.UUID == id {
			return d, true
		}
	}

	return Descriptor{}, false
}

// ServiceState describes the discovery state of a GATT service object.
type ServiceState uint8

const (
	ServiceInvalid ServiceState = iota
	ServiceRemote
	ServiceDiscovering
	ServiceDiscovered
)

// String converts a ServiceState to a string.
func (s ServiceState) String() string {
	switch s {
	case ServiceRemote:
		return "remote"
	case ServiceDiscovering:
		return "discovering"
	case ServiceDiscovered:
		return "discovered"
	}

	return "invalid"
}

// WriteMode selects how a characteristic write is acknowledged.
type WriteMode uint8

const (
	WriteWithResponse WriteMode = iota
	WriteWithoutResponse
)

// SocketState describes the state of an RFCOMM socket.
type SocketState uint8

const (
	SocketUnconnected SocketState = iota
	SocketConnecting
	SocketConnected
	SocketClosing
)

// String converts a SocketState to a string.
func (s SocketState) String() string {
	switch s {
	case SocketConnecting:
		return "connecting"
	case SocketConnected:
		return "connected"
	case SocketClosing:
		return "closing"
	}

	return "unconnected"
}
