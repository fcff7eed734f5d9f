package bluetooth

import "github.com/google/uuid"

// RadioClass describes which radio a device was discovered on.
type RadioClass uint8

const (
	RadioClassic RadioClass = iota
	RadioLowEnergy
)

// String converts a RadioClass to a string.
func (r RadioClass) String() string {
	if r == RadioLowEnergy {
		return "low-energy"
	}

	return "classic"
}

// DeviceData holds the static information of a discovered device.
type DeviceData struct {
	Address    MacAddress `json:"address"`
	Name       string     `json:"name,omitempty"`
	RadioClass RadioClass `json:"radio_class"`
	RSSI       int16      `json:"rssi,omitempty"`
}

// IsLowEnergy reports whether the device has to be reached over GATT.
func (d DeviceData) IsLowEnergy() bool {
	return d.RadioClass == RadioLowEnergy
}

// DisplayName returns the device name, or its address if the name is unknown.
func (d DeviceData) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}

	return d.Address.String()
}

// ServiceData holds a service that a Classic device exposes.
type ServiceData struct {
	Address MacAddress `json:"address"`
	UUID    uuid.UUID  `json:"uuid"`
	Name    string     `json:"name,omitempty"`
}
