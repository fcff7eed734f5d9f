package controller

// ConnectionState describes the connection sub-cycle of a controller.
type ConnectionState uint32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateServiceDiscovery
	StateCharacteristicSetup
	StateConnected
)

// String converts a ConnectionState to a string.
func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateServiceDiscovery:
		return "service-discovery"
	case StateCharacteristicSetup:
		return "characteristic-setup"
	case StateConnected:
		return "connected"
	}

	return "disconnected"
}

// DiscoveryState describes the discovery sub-cycle of a controller.
type DiscoveryState uint32

const (
	DiscoveryIdle DiscoveryState = iota
	DiscoveryActive
)

// String converts a DiscoveryState to a string.
func (s DiscoveryState) String() string {
	if s == DiscoveryActive {
		return "active"
	}

	return "idle"
}
