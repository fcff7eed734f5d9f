package bluetooth

import "github.com/bluetuith-org/bluelink/api/errorkinds"

// EventID describes the type of a controller event.
type EventID uint

const (
	EventNone EventID = iota
	EventDeviceDiscovered
	EventDiscoveryFinished
	EventServiceDiscovered
	EventConnectionEstablished
	EventConnectionLost
	EventDataReceived
	EventTransportError
)

// Value returns the numeric event topic.
func (e EventID) Value() uint {
	return uint(e)
}

// String converts an EventID to a string.
func (e EventID) String() string {
	switch e {
	case EventDeviceDiscovered:
		return "device-discovered"
	case EventDiscoveryFinished:
		return "discovery-finished"
	case EventServiceDiscovered:
		return "service-discovered"
	case EventConnectionEstablished:
		return "connection-established"
	case EventConnectionLost:
		return "connection-lost"
	case EventDataReceived:
		return "data-received"
	case EventTransportError:
		return "transport-error"
	}

	return "none"
}

// AllEvents lists every event that a controller publishes.
var AllEvents = []EventID{
	EventDeviceDiscovered,
	EventDiscoveryFinished,
	EventServiceDiscovered,
	EventConnectionEstablished,
	EventConnectionLost,
	EventDataReceived,
	EventTransportError,
}

// Transport describes which transport carries a connection.
type Transport uint8

const (
	TransportNone Transport = iota
	TransportRFCOMM
	TransportGATT
)

// String converts a Transport to a string.
func (t Transport) String() string {
	switch t {
	case TransportRFCOMM:
		return "rfcomm"
	case TransportGATT:
		return "gatt"
	}

	return "none"
}

// DiscoveryFinishedData is published once a device scan completes.
type DiscoveryFinishedData struct {
	Devices int `json:"devices"`
}

// ConnectionData is published when a connection is established or lost.
type ConnectionData struct {
	Address   MacAddress `json:"address"`
	Transport Transport  `json:"transport"`
}

// ReceivedData is published for every chunk of inbound data.
type ReceivedData struct {
	Address MacAddress `json:"address"`
	Data    []byte     `json:"data"`
}

// TransportErrorData is published when a transport reports an error.
type TransportErrorData struct {
	Kind errorkinds.Kind `json:"kind"`
	Code int             `json:"code"`
	Err  error           `json:"-"`
}

// Error returns the message of the underlying error.
func (t TransportErrorData) Error() string {
	if t.Err == nil {
		return t.Kind.String()
	}

	return t.Err.Error()
}
