//go:build !linux

package platform

import (
	"github.com/sirupsen/logrus"

	"github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/gatt"
)

// Stack returns a platform-specific Bluetooth stack.
func Stack(log logrus.FieldLogger) (bluetooth.Stack, PlatformInfo) {
	return gatt.NewStack(log), NewPlatformInfo(LowEnergyStack)
}
