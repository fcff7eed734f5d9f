//go:build linux

package platform

import (
	"github.com/sirupsen/logrus"

	"github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/linux"
)

// Stack returns a platform-specific Bluetooth stack.
func Stack(log logrus.FieldLogger) (bluetooth.Stack, PlatformInfo) {
	return linux.NewBluezSession(log), NewPlatformInfo(BluezStack)
}
