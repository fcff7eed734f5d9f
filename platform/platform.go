// Package platform selects the Bluetooth stack of the running operating system.
package platform

import "runtime"

type BluetoothStack string

const (
	BluezStack     BluetoothStack = "BlueZ (DBus)"
	LowEnergyStack BluetoothStack = "Low Energy (tinygo)"
)

// PlatformInfo describes platform-specific information.
type PlatformInfo struct {
	OS    string         `json:"os,omitempty"`
	Stack BluetoothStack `json:"bluetooth_stack,omitempty"`

	// Classic reports whether Classic devices can be connected.
	Classic bool `json:"classic"`
}

// NewPlatformInfo returns a new PlatformInfo.
func NewPlatformInfo(stack BluetoothStack) PlatformInfo {
	return PlatformInfo{
		OS:      runtime.GOOS + " (" + runtime.GOARCH + ")",
		Stack:   stack,
		Classic: stack == BluezStack,
	}
}

// String converts a BluetoothStack to a string.
func (b BluetoothStack) String() string {
	return string(b)
}
