package bluetooth

import (
	"github.com/bluetuith-org/bluelink/api/config"
	"github.com/google/uuid"
)

// Stack describes a platform Bluetooth stack. It hands out the discovery agents,
// sockets and GATT clients that a controller drives.
//
// All the objects returned by a stack are non-blocking: calls return immediately,
// and completion is reported through the handler that was passed at creation time.
// Handlers may be invoked from any goroutine.
type Stack interface {
	// Start attempts to initialize a session with the system's Bluetooth daemon or service.
	Start(cfg config.Configuration) error

	// Stop attempts to stop a session with the system's Bluetooth daemon or service.
	Stop() error

	// NewDiscoveryAgent returns an agent that scans for nearby devices on both radios.
	NewDiscoveryAgent(handler DiscoveryHandler) (DiscoveryAgent, error)

	// NewServiceDiscoveryAgent returns an agent that enumerates the services of
	// a Classic device.
	NewServiceDiscoveryAgent(address MacAddress, handler ServiceDiscoveryHandler) (ServiceDiscoveryAgent, error)

	// NewRFCOMMSocket returns an unconnected RFCOMM socket.
	NewRFCOMMSocket(handler SocketHandler) (RFCOMMSocket, error)

	// NewLowEnergyController returns a GATT client for a Low Energy device.
	NewLowEnergyController(device DeviceData, handler ControllerHandler) (LowEnergyController, error)
}

// DiscoveryAgent scans for nearby devices.
type DiscoveryAgent interface {
	Start() error

	// Stop cancels a running scan. ScanFinished is not reported for a cancelled scan.
	Stop() error
}

// DiscoveryHandler receives the results of a device scan.
// ScanFinished is called once per completed scan, after the last DeviceFound.
type DiscoveryHandler interface {
	DeviceFound(device DeviceData)
	ScanFinished()
	ScanError(err error)
}

// ServiceDiscoveryAgent enumerates the services of one Classic device.
type ServiceDiscoveryAgent interface {
	// SetRemoteAddress retargets the agent to another device.
	// It must not be called while a scan is running.
	SetRemoteAddress(address MacAddress)
	RemoteAddress() MacAddress
	Start() error

	// Stop cancels a running scan. ServiceScanFinished is not reported for
	// a cancelled scan.
	Stop() error
}

// ServiceDiscoveryHandler receives the results of a service scan.
// Every callback carries the address of the scanned device, since the
// agent may have been retargeted by the time a result is delivered.
type ServiceDiscoveryHandler interface {
	ServiceFound(service ServiceData)
	ServiceScanFinished(address MacAddress)
	ServiceScanError(address MacAddress, err error)
}

// RFCOMMSocket is a byte-stream socket to a Classic service.
type RFCOMMSocket interface {
	ConnectToService(address MacAddress, service uuid.UUID) error
	Write(data []byte) (int, error)

	// ReadAll returns and clears the data that is buffered since the last
	// SocketReadyRead notification.
	ReadAll() []byte

	Close() error
	IsOpen() bool
	State() SocketState
}

// SocketHandler receives RFCOMM socket events.
type SocketHandler interface {
	SocketConnected()
	SocketDisconnected()
	SocketReadyRead()
	SocketError(err error)
}

// LowEnergyController is a GATT client bound to one Low Energy device.
type LowEnergyController interface {
	ConnectToDevice() error
	DiscoverServices() error
	DisconnectFromDevice() error

	// CreateServiceObject returns a service object for a discovered service.
	CreateServiceObject(service uuid.UUID, handler ServiceHandler) (LowEnergyService, error)
}

// ControllerHandler receives GATT client events.
type ControllerHandler interface {
	ControllerConnected()
	ControllerDisconnected()
	ServiceFound(service uuid.UUID)
	ServiceDiscoveryFinished()
	ControllerError(err error)
}

// LowEnergyService is a remote GATT service.
type LowEnergyService interface {
	UUID() uuid.UUID
	State() ServiceState

	// DiscoverDetails resolves the characteristics and descriptors of the service.
	// The service reaches ServiceDiscovered once all details are known.
	DiscoverDetails() error

	// Characteristic returns a resolved characteristic, or an invalid
	// characteristic if it is not known.
	Characteristic(id uuid.UUID) Characteristic

	WriteCharacteristic(c Characteristic, data []byte, mode WriteMode) error
	ReadCharacteristic(c Characteristic) error
	WriteDescriptor(c Characteristic, d Descriptor, data []byte) error
}

// ServiceHandler receives GATT service events.
type ServiceHandler interface {
	ServiceStateChanged(state ServiceState)
	CharacteristicChanged(c uuid.UUID, value []byte)
	CharacteristicRead(c uuid.UUID, value []byte)
	CharacteristicWritten(c uuid.UUID, value []byte)
	DescriptorWritten(d uuid.UUID, value []byte)
	ServiceError(err error)
}
